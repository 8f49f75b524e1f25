// Package scanner orchestrates the scan-to-result cycle: decoding, validation
// verdicts, and the atomic commits, plus the per-device session state machine
// that front-ends it all.
package scanner

import (
	"context"
	"errors"
	"fmt"

	"ms-admission/internal/codec"
	"ms-admission/internal/ledger"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	"ms-admission/internal/redeem"
	"ms-admission/internal/validation"
)

type Service struct {
	Engine *redeem.Engine
	Ledger *ledger.Service
	Logger *logger.Logger
}

func NewService(engine *redeem.Engine, led *ledger.Service, log *logger.Logger) *Service {
	return &Service{Engine: engine, Ledger: led, Logger: log}
}

// Verdict is the advisory validation outcome handed to devices. SnapshotEventID
// carries the event the credential belongs to (group passes only) so the
// session can refuse passes scanned at the wrong door.
type Verdict struct {
	Code            validation.Code   `json:"code"`
	Credential      models.Credential `json:"-"`
	CredentialRef   string            `json:"credential_ref,omitempty"`
	Remaining       int               `json:"remaining,omitempty"`
	SnapshotEventID string            `json:"-"`
}

// DecodeAndValidate is the read-only upward surface: decode raw payload text
// and compute a verdict. It never mutates anything and makes no store calls
// when decoding fails.
func (s *Service) DecodeAndValidate(ctx context.Context, raw, eventID string, scanType models.ScanType) (Verdict, error) {
	cred, err := codec.Decode(raw)
	if err != nil {
		return Verdict{}, err
	}
	return s.Validate(ctx, cred, eventID, scanType)
}

// Validate computes the verdict for an already-decoded credential.
func (s *Service) Validate(ctx context.Context, cred models.Credential, eventID string, scanType models.ScanType) (Verdict, error) {
	switch c := cred.(type) {
	case models.IndividualTicket:
		snap, err := s.Engine.SnapshotIndividual(ctx, c, scanType)
		if err != nil {
			return Verdict{}, err
		}
		v := validation.ValidateIndividual(c, eventID, snap)
		return Verdict{Code: v.Code, Credential: cred, CredentialRef: cred.Ref()}, nil
	case models.GroupPass:
		snap, err := s.Engine.SnapshotGroup(ctx, c.GroupPassID)
		if err != nil {
			return Verdict{}, err
		}
		v := validation.ValidateGroup(c, snap)
		verdict := Verdict{Code: v.Code, Credential: cred, CredentialRef: cred.Ref(), Remaining: v.Remaining}
		if snap.Group != nil {
			verdict.SnapshotEventID = snap.Group.EventID
		}
		return verdict, nil
	default:
		return Verdict{}, fmt.Errorf("unsupported credential kind %T", cred)
	}
}

// CommitIndividual redeems one individual ticket and appends the outcome to
// the ledger, success or not. The returned error reflects the commit; the
// ledger append never influences it.
func (s *Service) CommitIndividual(ctx context.Context, cred models.IndividualTicket, scanType models.ScanType, deviceID, eventID string) (models.ScanRecord, error) {
	err := s.Engine.RedeemTicket(ctx, cred, scanType)

	rec := models.ScanRecord{
		CredentialRef: cred.Ref(),
		EventID:       eventID,
		ScanType:      scanType,
		Result:        resultForError(err),
		DeviceID:      deviceID,
	}
	if err == nil {
		rec.CommittedCount = 1
	}
	rec = s.Ledger.Append(ctx, rec)
	return rec, err
}

// CommitGroup redeems count uses of a guestlist pass and ledgers the outcome.
func (s *Service) CommitGroup(ctx context.Context, pass models.GroupPass, count int, scanType models.ScanType, deviceID, eventID string) (*redeem.GroupResult, models.ScanRecord, error) {
	res, err := s.Engine.RedeemGroup(ctx, pass.GroupPassID, count, scanType)

	rec := models.ScanRecord{
		CredentialRef: pass.Ref(),
		EventID:       eventID,
		ScanType:      scanType,
		Result:        resultForError(err),
		DeviceID:      deviceID,
	}
	if err == nil {
		rec.Result = models.ResultRedeemed
		rec.CommittedCount = res.CommittedCount
		remaining := res.RemainingAfter
		rec.RemainingAfter = &remaining
	}
	rec = s.Ledger.Append(ctx, rec)
	return res, rec, err
}

// RecordVerdict ledgers a terminal non-commit outcome (already scanned,
// unknown, exhausted, mismatch) observed during validation.
func (s *Service) RecordVerdict(ctx context.Context, credentialRef, result string, scanType models.ScanType, deviceID, eventID string) models.ScanRecord {
	return s.Ledger.Append(ctx, models.ScanRecord{
		CredentialRef: credentialRef,
		EventID:       eventID,
		ScanType:      scanType,
		Result:        result,
		DeviceID:      deviceID,
	})
}

// resultForError maps commit errors onto ledger result codes. nil maps to
// VALID, which CommitGroup overrides with REDEEMED.
func resultForError(err error) string {
	switch {
	case err == nil:
		return models.ResultValid
	case errors.Is(err, redeem.ErrAlreadyScanned):
		return models.ResultAlreadyScanned
	case errors.Is(err, redeem.ErrExhausted):
		return models.ResultExhausted
	case errors.Is(err, redeem.ErrNotFound):
		return models.ResultUnknown
	case errors.Is(err, redeem.ErrConflict):
		return models.ResultConflict
	default:
		return models.ResultUnavailable
	}
}

// resultForVerdict maps validation codes onto ledger result codes.
func resultForVerdict(code validation.Code) string {
	switch code {
	case validation.Valid, validation.ValidWithRemaining:
		return models.ResultValid
	case validation.AlreadyScanned:
		return models.ResultAlreadyScanned
	case validation.Exhausted:
		return models.ResultExhausted
	case validation.EventMismatch:
		return models.ResultEventMismatch
	default:
		return models.ResultUnknown
	}
}
