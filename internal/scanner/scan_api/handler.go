// Package scan_api exposes the scanning surface over HTTP: the stateless
// validate endpoint, per-device session endpoints, ledger history, and the
// administrative resets.
package scan_api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ms-admission/internal/codec"
	"ms-admission/internal/codec/qr"
	"ms-admission/internal/ledger"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	"ms-admission/internal/redeem"
	"ms-admission/internal/scanner"
	"ms-admission/internal/utils"
)

type Handler struct {
	Scanner  *scanner.Service
	Sessions *scanner.Manager
	Engine   *redeem.Engine
	Ledger   *ledger.Service
	QR       *qr.Generator
	Logger   *logger.Logger
}

func NewHandler(svc *scanner.Service, sessions *scanner.Manager, engine *redeem.Engine, led *ledger.Service, qrGen *qr.Generator, log *logger.Logger) *Handler {
	return &Handler{
		Scanner:  svc,
		Sessions: sessions,
		Engine:   engine,
		Ledger:   led,
		QR:       qrGen,
		Logger:   log,
	}
}

// Routes mounts every scan endpoint on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/scan/validate", h.Validate)
	r.Route("/devices/{deviceID}", func(r chi.Router) {
		r.Get("/", h.DeviceStatus)
		r.Post("/scan", h.DeviceScan)
		r.Post("/count", h.DeviceSetCount)
		r.Post("/confirm", h.DeviceConfirm)
		r.Post("/cancel", h.DeviceCancel)
		r.Post("/dismiss", h.DeviceDismiss)
	})
	r.Post("/credentials/qr", h.IssueQR)
	r.Get("/history/{credentialRef}", h.History)
	r.Get("/events/{eventID}/scans/count", h.EventScanCount)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/tickets/reset", h.ResetTicket)
		r.Post("/guestlists/{guestlistID}/reset", h.ResetGuestlist)
	})
	return r
}

type scanRequest struct {
	Raw      string `json:"raw"`
	EventID  string `json:"event_id"`
	ScanType string `json:"scan_type"`
}

// Validate runs decode + validation only. Nothing is committed or ledgered.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Raw == "" {
		http.Error(w, "raw is required", http.StatusBadRequest)
		return
	}

	verdict, err := h.Scanner.DecodeAndValidate(r.Context(), h.plaintext(req.Raw), req.EventID, scanType(req.ScanType))
	if err != nil {
		if errors.Is(err, codec.ErrInvalidFormat) {
			writeJSON(w, http.StatusUnprocessableEntity, utils.ErrorResponse("invalid credential format", err.Error()))
			return
		}
		http.Error(w, "Validation failed: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("verdict computed", verdict))
}

func (h *Handler) DeviceScan(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Raw == "" {
		http.Error(w, "raw is required", http.StatusBadRequest)
		return
	}

	sess := h.Sessions.Session(deviceID, req.EventID, scanType(req.ScanType))
	status := sess.Scan(r.Context(), h.plaintext(req.Raw))
	writeJSON(w, http.StatusOK, status)
}

// IssueQR renders a credential as an encrypted QR PNG. The issuing side
// (checkout, guestlist management) calls this when producing passes.
func (h *Handler) IssueQR(w http.ResponseWriter, r *http.Request) {
	if h.QR == nil {
		http.Error(w, "QR issuing is not configured", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Raw  string `json:"raw"`
		Size int    `json:"size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	cred, err := codec.Decode(req.Raw)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, utils.ErrorResponse("invalid credential format", err.Error()))
		return
	}
	if req.Size <= 0 {
		req.Size = 256
	}

	png, err := h.QR.RenderQR(cred, req.Size)
	if err != nil {
		http.Error(w, "Failed to render QR: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) DeviceSetCount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	sess, ok := h.Sessions.Lookup(chi.URLParam(r, "deviceID"))
	if !ok {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.SetCount(req.Count))
}

func (h *Handler) DeviceConfirm(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.Sessions.Lookup(chi.URLParam(r, "deviceID"))
	if !ok {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Confirm(r.Context()))
}

func (h *Handler) DeviceCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.Sessions.Lookup(chi.URLParam(r, "deviceID"))
	if !ok {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Cancel())
}

func (h *Handler) DeviceDismiss(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.Sessions.Lookup(chi.URLParam(r, "deviceID"))
	if !ok {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Dismiss())
}

func (h *Handler) DeviceStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.Sessions.Lookup(chi.URLParam(r, "deviceID"))
	if !ok {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	credentialRef := chi.URLParam(r, "credentialRef")
	records, err := h.Ledger.History(r.Context(), credentialRef)
	if err != nil {
		http.Error(w, "Failed to fetch history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("history", records))
}

func (h *Handler) EventScanCount(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	count, err := h.Ledger.CountAdmitted(r.Context(), eventID, scanType(r.URL.Query().Get("scan_type")))
	if err != nil {
		http.Error(w, "Failed to count scans: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event_id":       eventID,
		"admitted_count": count,
	})
}

func (h *Handler) ResetTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID       string `json:"order_id"`
		TicketTierID  string `json:"ticket_tier_id"`
		CustomerEmail string `json:"customer_email"`
		ScanType      string `json:"scan_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.OrderID == "" || req.TicketTierID == "" || req.CustomerEmail == "" {
		http.Error(w, "order_id, ticket_tier_id and customer_email are required", http.StatusBadRequest)
		return
	}

	st := scanType(req.ScanType)
	if err := h.Engine.ResetTicket(r.Context(), req.OrderID, req.TicketTierID, req.CustomerEmail, st); err != nil {
		http.Error(w, "Failed to reset ticket: "+err.Error(), http.StatusInternalServerError)
		return
	}

	ref := models.IndividualTicket{OrderID: req.OrderID, TicketTierID: req.TicketTierID, CustomerEmail: req.CustomerEmail}.Ref()
	h.Ledger.Append(r.Context(), models.ScanRecord{
		CredentialRef: ref,
		ScanType:      st,
		Result:        models.ResultReset,
		DeviceID:      "admin",
	})
	writeJSON(w, http.StatusOK, utils.SuccessResponse("ticket reset", nil))
}

func (h *Handler) ResetGuestlist(w http.ResponseWriter, r *http.Request) {
	guestlistID := chi.URLParam(r, "guestlistID")
	if err := h.Engine.ResetGroupPass(r.Context(), guestlistID); err != nil {
		if errors.Is(err, redeem.ErrNotFound) {
			http.Error(w, "unknown guestlist", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to reset guestlist: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.Ledger.Append(r.Context(), models.ScanRecord{
		CredentialRef: "guestlist:" + guestlistID,
		ScanType:      models.ScanEntry,
		Result:        models.ResultReset,
		DeviceID:      "admin",
	})
	writeJSON(w, http.StatusOK, utils.SuccessResponse("guestlist reset", nil))
}

// plaintext hands encrypted scan payloads through the QR decryptor before the
// codec sees them. Plain JSON passes straight through, and anything that fails
// to decrypt is left as-is so the codec reports the format error.
func (h *Handler) plaintext(raw string) string {
	if h.QR == nil || strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return raw
	}
	if plain, err := h.QR.Decrypt(raw); err == nil {
		return plain
	}
	return raw
}

func scanType(raw string) models.ScanType {
	if raw == string(models.ScanExit) {
		return models.ScanExit
	}
	return models.ScanEntry
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
