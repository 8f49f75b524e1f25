// Package ledger is the append-only audit trail of scan attempts. Appends
// are best effort: a failure here is logged and never unwinds or blocks an
// admission decision.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-admission/internal/logger"
	"ms-admission/internal/models"
)

type LedgerDBLayer interface {
	InsertScanRecord(ctx context.Context, rec models.ScanRecord) error
	GetScanRecordsByRef(ctx context.Context, credentialRef string) ([]models.ScanRecord, error)
	CountAdmittedForEvent(ctx context.Context, eventID string, scanType models.ScanType) (int, error)
}

// ScanEventPublisher streams appended records to downstream consumers
// (dashboards, reporting). Also best effort.
type ScanEventPublisher interface {
	PublishScanRecorded(rec models.ScanRecord) error
}

type Service struct {
	DB        LedgerDBLayer
	Publisher ScanEventPublisher
	Logger    *logger.Logger
}

func NewService(db LedgerDBLayer, publisher ScanEventPublisher, log *logger.Logger) *Service {
	return &Service{DB: db, Publisher: publisher, Logger: log}
}

// Append stores one scan record, filling in ID and timestamp when the caller
// left them empty. It never returns an error: audit is fail-open by
// contract, so problems are logged and the (possibly unstored) record is
// handed back for presentation.
func (s *Service) Append(ctx context.Context, rec models.ScanRecord) models.ScanRecord {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	if err := s.DB.InsertScanRecord(ctx, rec); err != nil {
		s.logError(fmt.Sprintf("append failed for %s (%s): %v", rec.CredentialRef, rec.Result, err))
	} else if s.Logger != nil {
		s.Logger.LogLedger("APPEND", rec.CredentialRef, rec.Result)
	}

	if s.Publisher != nil {
		if err := s.Publisher.PublishScanRecorded(rec); err != nil {
			s.logError(fmt.Sprintf("publish failed for %s: %v", rec.CredentialRef, err))
		}
	}
	return rec
}

// History returns every recorded attempt for a credential, oldest first.
// Used for duplicate-scan diagnostics.
func (s *Service) History(ctx context.Context, credentialRef string) ([]models.ScanRecord, error) {
	records, err := s.DB.GetScanRecordsByRef(ctx, credentialRef)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", credentialRef, err)
	}
	return records, nil
}

// CountAdmitted sums committed admissions for an event and direction.
func (s *Service) CountAdmitted(ctx context.Context, eventID string, scanType models.ScanType) (int, error) {
	count, err := s.DB.CountAdmittedForEvent(ctx, eventID, scanType)
	if err != nil {
		return 0, fmt.Errorf("failed to count admissions for event %s: %w", eventID, err)
	}
	return count, nil
}

func (s *Service) logError(msg string) {
	if s.Logger != nil {
		s.Logger.Error("LEDGER", msg)
	}
}
