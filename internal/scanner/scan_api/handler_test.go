package scan_api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-admission/internal/codec/qr"
	"ms-admission/internal/ledger"
	"ms-admission/internal/models"
	"ms-admission/internal/redeem"
	redeemredis "ms-admission/internal/redeem/redis"
	"ms-admission/internal/scanner"
	"ms-admission/internal/scanner/scan_api"
)

type memLedgerDB struct {
	mu      sync.Mutex
	records []models.ScanRecord
}

func (l *memLedgerDB) InsertScanRecord(_ context.Context, rec models.ScanRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *memLedgerDB) GetScanRecordsByRef(_ context.Context, credentialRef string) ([]models.ScanRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.ScanRecord
	for _, rec := range l.records {
		if rec.CredentialRef == credentialRef {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *memLedgerDB) CountAdmittedForEvent(_ context.Context, eventID string, scanType models.ScanType) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, rec := range l.records {
		if rec.EventID == eventID && rec.ScanType == scanType &&
			(rec.Result == models.ResultValid || rec.Result == models.ResultRedeemed) {
			total += rec.CommittedCount
		}
	}
	return total, nil
}

type fixture struct {
	server  *httptest.Server
	counter *redeemredis.Counter
	ledger  *memLedgerDB
}

func setupAPI(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	counter := redeemredis.NewCounter(client)
	ledgerDB := &memLedgerDB{}

	engine := redeem.NewEngine(counter, nil)
	ledgerSvc := ledger.NewService(ledgerDB, nil, nil)
	scanSvc := scanner.NewService(engine, ledgerSvc, nil)
	sessions := scanner.NewManager(scanSvc, scanner.Timings{
		DebounceWindow:     time.Hour,
		DebounceClearDelay: time.Millisecond,
	})

	handler := scan_api.NewHandler(scanSvc, sessions, engine, ledgerSvc, qr.NewGenerator("test-secret"), nil)
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)

	return &fixture{server: server, counter: counter, ledger: ledgerDB}
}

func (f *fixture) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(f.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeStatus(t *testing.T, resp *http.Response) scanner.Status {
	t.Helper()
	defer resp.Body.Close()
	var status scanner.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	return status
}

func seedTicket(t *testing.T, f *fixture) string {
	t.Helper()
	require.NoError(t, f.counter.CreateOrderTicket(context.Background(), models.OrderTicket{
		OrderID: "o1", TicketTierID: "t1", CustomerEmail: "a@b.c", EventID: "event-1",
	}))
	return `{"orderId":"o1","ticketTierId":"t1","customer":"a@b.c"}`
}

func seedGuestlist(t *testing.T, f *fixture, remaining int) string {
	t.Helper()
	require.NoError(t, f.counter.CreateGroupPass(context.Background(), models.GroupPassState{
		GroupPassID: "gl-1", EventID: "event-1", TotalUses: 10, RemainingUses: remaining,
	}))
	return `{"type":"guestlist","guestlistId":"gl-1","eventId":"event-1","totalTickets":10,"leadEmail":"l@e.c","leadName":"Lead"}`
}

func TestValidateEndpoint(t *testing.T) {
	f := setupAPI(t)
	raw := seedTicket(t, f)

	resp := f.post(t, "/scan/validate", map[string]string{"raw": raw, "event_id": "event-1"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Code          string `json:"code"`
			CredentialRef string `json:"credential_ref"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "VALID", body.Data.Code)
	assert.Equal(t, "ticket:o1:t1:a@b.c", body.Data.CredentialRef)

	assert.Empty(t, f.ledger.records, "validate never ledgers")
}

func TestValidateRejectsGarbage(t *testing.T) {
	f := setupAPI(t)

	resp := f.post(t, "/scan/validate", map[string]string{"raw": "not-json"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = f.post(t, "/scan/validate", map[string]string{"event_id": "event-1"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "raw is required")
}

func TestDeviceScanTicket(t *testing.T) {
	f := setupAPI(t)
	raw := seedTicket(t, f)

	resp := f.post(t, "/devices/door-1/scan", map[string]string{"raw": raw, "event_id": "event-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeStatus(t, resp)

	assert.Equal(t, scanner.StatePresentingResult, status.State)
	require.NotNil(t, status.Presentation)
	assert.Equal(t, models.ResultValid, status.Presentation.Code)

	statusResp := f.get(t, "/devices/door-1/")
	got := decodeStatus(t, statusResp)
	assert.Equal(t, scanner.StatePresentingResult, got.State)

	dismissed := decodeStatus(t, f.post(t, "/devices/door-1/dismiss", nil))
	assert.Equal(t, scanner.StateIdle, dismissed.State)
}

func TestDeviceGuestlistFlow(t *testing.T) {
	f := setupAPI(t)
	raw := seedGuestlist(t, f, 10)

	status := decodeStatus(t, f.post(t, "/devices/door-1/scan", map[string]string{"raw": raw, "event_id": "event-1"}))
	require.Equal(t, scanner.StateAwaitingBulkInput, status.State)
	assert.Equal(t, 10, status.Remaining)

	status = decodeStatus(t, f.post(t, "/devices/door-1/count", map[string]int{"count": 4}))
	assert.Equal(t, 4, status.RequestedCount)

	status = decodeStatus(t, f.post(t, "/devices/door-1/confirm", nil))
	assert.Equal(t, scanner.StateAwaitingBulkInput, status.State)
	assert.Equal(t, 6, status.Remaining)
	require.NotNil(t, status.Presentation)
	assert.Equal(t, models.ResultRedeemed, status.Presentation.Code)
	assert.Equal(t, 4, status.Presentation.CommittedCount)

	status = decodeStatus(t, f.post(t, "/devices/door-1/cancel", nil))
	assert.Equal(t, scanner.StateIdle, status.State)

	state, err := f.counter.GetGroupPass(context.Background(), "gl-1")
	require.NoError(t, err)
	assert.Equal(t, 6, state.RemainingUses)
}

func TestUnknownDeviceIs404(t *testing.T) {
	f := setupAPI(t)

	for _, path := range []string{"/count", "/confirm", "/cancel", "/dismiss"} {
		resp := f.post(t, "/devices/ghost"+path, map[string]int{"count": 1})
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp := f.get(t, "/devices/ghost/")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHistoryAndEventCount(t *testing.T) {
	f := setupAPI(t)
	raw := seedTicket(t, f)

	resp := f.post(t, "/devices/door-1/scan", map[string]string{"raw": raw, "event_id": "event-1"})
	resp.Body.Close()

	histResp := f.get(t, "/history/ticket:o1:t1:a@b.c")
	defer histResp.Body.Close()
	require.Equal(t, http.StatusOK, histResp.StatusCode)

	var hist struct {
		Data []models.ScanRecord `json:"data"`
	}
	require.NoError(t, json.NewDecoder(histResp.Body).Decode(&hist))
	require.Len(t, hist.Data, 1)
	assert.Equal(t, models.ResultValid, hist.Data[0].Result)

	countResp := f.get(t, "/events/event-1/scans/count?scan_type=entry")
	defer countResp.Body.Close()
	var count struct {
		EventID       string `json:"event_id"`
		AdmittedCount int    `json:"admitted_count"`
	}
	require.NoError(t, json.NewDecoder(countResp.Body).Decode(&count))
	assert.Equal(t, "event-1", count.EventID)
	assert.Equal(t, 1, count.AdmittedCount)
}

func TestAdminResetTicket(t *testing.T) {
	f := setupAPI(t)
	raw := seedTicket(t, f)

	resp := f.post(t, "/devices/door-1/scan", map[string]string{"raw": raw, "event_id": "event-1"})
	resp.Body.Close()

	resetResp := f.post(t, "/admin/tickets/reset", map[string]string{
		"order_id": "o1", "ticket_tier_id": "t1", "customer_email": "a@b.c", "scan_type": "entry",
	})
	resetResp.Body.Close()
	require.Equal(t, http.StatusOK, resetResp.StatusCode)

	// A fresh device can admit the ticket again.
	status := decodeStatus(t, f.post(t, "/devices/door-2/scan", map[string]string{"raw": raw, "event_id": "event-1"}))
	require.NotNil(t, status.Presentation)
	assert.Equal(t, models.ResultValid, status.Presentation.Code)

	history, err := f.ledger.GetScanRecordsByRef(context.Background(), "ticket:o1:t1:a@b.c")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.ResultReset, history[1].Result)
	assert.Equal(t, "admin", history[1].DeviceID)
}

func TestAdminResetGuestlist(t *testing.T) {
	f := setupAPI(t)
	seedGuestlist(t, f, 2)

	_, _, err := f.counter.ConditionalDecrementGroupPass(context.Background(), "gl-1", 2, 2)
	require.NoError(t, err)

	resp := f.post(t, "/admin/guestlists/gl-1/reset", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	state, err := f.counter.GetGroupPass(context.Background(), "gl-1")
	require.NoError(t, err)
	assert.Equal(t, 10, state.RemainingUses, "reset restores the full allowance")

	missing := f.post(t, "/admin/guestlists/gl-none/reset", nil)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestIssueQRAndScanEncryptedPayload(t *testing.T) {
	f := setupAPI(t)
	raw := seedTicket(t, f)

	resp := f.post(t, "/credentials/qr", map[string]interface{}{"raw": raw, "size": 128})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	// An encrypted payload produced with the same secret validates like the
	// plain JSON it wraps.
	encrypted, err := qr.NewGenerator("test-secret").EncryptCredential(models.IndividualTicket{
		OrderID: "o1", TicketTierID: "t1", CustomerEmail: "a@b.c",
	})
	require.NoError(t, err)

	valResp := f.post(t, "/scan/validate", map[string]string{"raw": encrypted, "event_id": "event-1"})
	defer valResp.Body.Close()
	require.Equal(t, http.StatusOK, valResp.StatusCode)

	var body struct {
		Data struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(valResp.Body).Decode(&body))
	assert.Equal(t, "VALID", body.Data.Code)
}

func TestIssueQRRejectsBadCredential(t *testing.T) {
	f := setupAPI(t)

	resp := f.post(t, "/credentials/qr", map[string]string{"raw": "not-json"})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

// Three operators confirming groups of two against a 5-use pass: the pass
// never oversells and at least one request is refused.
func TestConcurrentGroupConfirms(t *testing.T) {
	f := setupAPI(t)
	raw := seedGuestlist(t, f, 5)

	var wg sync.WaitGroup
	results := make(chan scanner.Status, 3)

	for i := 0; i < 3; i++ {
		device := fmt.Sprintf("door-%d", i)
		status := decodeStatus(t, f.post(t, "/devices/"+device+"/scan", map[string]string{"raw": raw, "event_id": "event-1"}))
		require.Equal(t, scanner.StateAwaitingBulkInput, status.State)
		f.post(t, "/devices/"+device+"/count", map[string]int{"count": 2}).Body.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- decodeStatus(t, f.post(t, "/devices/"+device+"/confirm", nil))
		}()
	}
	wg.Wait()
	close(results)

	committed, refused := 0, 0
	for status := range results {
		require.NotNil(t, status.Presentation)
		if status.Presentation.Code == models.ResultRedeemed {
			committed += status.Presentation.CommittedCount
		} else {
			refused++
		}
	}

	assert.LessOrEqual(t, committed, 5)
	assert.GreaterOrEqual(t, refused, 1)

	state, err := f.counter.GetGroupPass(context.Background(), "gl-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, state.RemainingUses, 0)
	assert.Equal(t, 5-committed, state.RemainingUses)
}
