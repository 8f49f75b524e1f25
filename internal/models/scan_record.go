package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Scan outcome codes as written to the ledger and presented to operators.
const (
	ResultValid          = "VALID"
	ResultRedeemed       = "REDEEMED"
	ResultAlreadyScanned = "ALREADY_SCANNED"
	ResultExhausted      = "EXHAUSTED"
	ResultUnknown        = "UNKNOWN"
	ResultEventMismatch  = "EVENT_MISMATCH"
	ResultInvalidFormat  = "INVALID_FORMAT"
	ResultConflict       = "CONFLICT"
	ResultUnavailable    = "STORE_UNAVAILABLE"
	ResultReset          = "RESET"
)

// ScanRecord is one immutable ledger entry. Every scan attempt appends one,
// successful or not.
type ScanRecord struct {
	bun.BaseModel `bun:"table:scan_records"`

	ID            string   `bun:"id,pk"`
	CredentialRef string   `bun:"credential_ref"`
	EventID       string   `bun:"event_id"`
	ScanType      ScanType `bun:"scan_type"`
	Result        string   `bun:"result"`
	// CommittedCount is how many admissions this scan granted: 1 for an
	// individual ticket, the confirmed group size for a guestlist, 0 on failure.
	CommittedCount int       `bun:"committed_count"`
	RemainingAfter *int      `bun:"remaining_after"`
	DeviceID       string    `bun:"device_id"`
	Location       *string   `bun:"location"`
	Notes          *string   `bun:"notes"`
	Timestamp      time.Time `bun:"timestamp"`
}
