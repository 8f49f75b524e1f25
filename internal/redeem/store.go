package redeem

import (
	"context"
	"errors"
	"time"

	"ms-admission/internal/models"
)

// Sentinel errors for the redemption taxonomy. Decode errors live in the
// codec package; everything below is detected at lookup or commit time.
var (
	ErrNotFound         = errors.New("credential not found")
	ErrAlreadyScanned   = errors.New("ticket already scanned")
	ErrExhausted        = errors.New("group pass exhausted")
	ErrConflict         = errors.New("conflicting concurrent redemption")
	ErrInvalidCount     = errors.New("requested count must be at least 1")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Store is the conditional-mutation surface the persistence layer implements.
// The only operations that may change scanned flags or remaining_uses are the
// two Conditional* methods and the administrative resets; plain
// read-modify-write of either is not part of this contract.
type Store interface {
	GetOrderTicket(ctx context.Context, orderID, tierID, email string) (*models.OrderTicket, error)
	GetTicketRedemption(ctx context.Context, orderID, tierID, email string, scanType models.ScanType) (*models.TicketRedemption, error)

	// ConditionalSetTicketRedemption marks the ticket scanned only if it was
	// not already. Returns applied=false when another scan won the race.
	ConditionalSetTicketRedemption(ctx context.Context, orderID, tierID, email string, scanType models.ScanType, at time.Time) (applied bool, err error)

	GetGroupPass(ctx context.Context, guestlistID string) (*models.GroupPassState, error)

	// ConditionalDecrementGroupPass applies remaining_uses -= amount only when
	// remaining_uses >= requiredMinimumRemaining, atomically. remainingAfter is
	// the value produced by the same atomic operation, never a separate read.
	ConditionalDecrementGroupPass(ctx context.Context, guestlistID string, amount, requiredMinimumRemaining int) (applied bool, remainingAfter int, err error)

	// Administrative resets. Audit rows are never deleted; these only restore
	// the redeemable state.
	ResetTicketRedemption(ctx context.Context, orderID, tierID, email string, scanType models.ScanType) error
	ResetGroupPass(ctx context.Context, guestlistID string) error
}
