// Package redeem is the capacity counter engine: the atomic commit path for
// ticket scanned flags and group-pass remaining-uses counters. Validation
// reads may be stale; a redemption only exists once a conditional mutation in
// this package has been applied.
package redeem

import (
	"context"
	"fmt"
	"time"

	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	"ms-admission/internal/validation"
)

// defaultCommitRetries bounds the optimistic retry loop for group commits.
const defaultCommitRetries = 3

type Engine struct {
	Store   Store
	Logger  *logger.Logger
	Retries int
}

func NewEngine(store Store, log *logger.Logger) *Engine {
	return &Engine{Store: store, Logger: log, Retries: defaultCommitRetries}
}

// GroupResult reports a committed group redemption. RemainingAfter comes from
// the atomic decrement itself.
type GroupResult struct {
	CommittedCount int `json:"committed_count"`
	RemainingAfter int `json:"remaining_after"`
}

// SnapshotIndividual gathers the read-only state for validating an individual
// ticket.
func (e *Engine) SnapshotIndividual(ctx context.Context, cred models.IndividualTicket, scanType models.ScanType) (validation.Snapshot, error) {
	order, err := e.Store.GetOrderTicket(ctx, cred.OrderID, cred.TicketTierID, cred.CustomerEmail)
	if err != nil {
		return validation.Snapshot{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	redemption, err := e.Store.GetTicketRedemption(ctx, cred.OrderID, cred.TicketTierID, cred.CustomerEmail, scanType)
	if err != nil {
		return validation.Snapshot{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return validation.Snapshot{Order: order, Redemption: redemption}, nil
}

// SnapshotGroup gathers the read-only state for validating a guestlist pass.
func (e *Engine) SnapshotGroup(ctx context.Context, guestlistID string) (validation.Snapshot, error) {
	state, err := e.Store.GetGroupPass(ctx, guestlistID)
	if err != nil {
		return validation.Snapshot{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return validation.Snapshot{Group: state}, nil
}

// RedeemTicket marks an individual ticket scanned for the given direction.
// The compare-and-set in the store is the whole commit: if it did not apply,
// nothing changed.
func (e *Engine) RedeemTicket(ctx context.Context, cred models.IndividualTicket, scanType models.ScanType) error {
	order, err := e.Store.GetOrderTicket(ctx, cred.OrderID, cred.TicketTierID, cred.CustomerEmail)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if order == nil {
		return ErrNotFound
	}

	applied, err := e.Store.ConditionalSetTicketRedemption(ctx, cred.OrderID, cred.TicketTierID, cred.CustomerEmail, scanType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !applied {
		return ErrAlreadyScanned
	}

	e.logf("STORE", "ticket %s redeemed for %s", cred.Ref(), scanType)
	return nil
}

// RedeemGroup consumes count uses of a guestlist pass. The whole request is
// rejected with ErrExhausted when fewer than count uses remain; there are no
// partial commits. Lost optimistic races are retried a bounded number of
// times before surfacing ErrConflict.
func (e *Engine) RedeemGroup(ctx context.Context, guestlistID string, count int, scanType models.ScanType) (*GroupResult, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}

	retries := e.Retries
	if retries < 1 {
		retries = defaultCommitRetries
	}

	for attempt := 0; attempt < retries; attempt++ {
		state, err := e.Store.GetGroupPass(ctx, guestlistID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if state == nil {
			return nil, ErrNotFound
		}
		if state.RemainingUses < count {
			return nil, ErrExhausted
		}

		applied, remaining, err := e.Store.ConditionalDecrementGroupPass(ctx, guestlistID, count, count)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if applied {
			e.logf("STORE", "guestlist %s redeemed %d, %d remaining", guestlistID, count, remaining)
			return &GroupResult{CommittedCount: count, RemainingAfter: remaining}, nil
		}
		// Another device moved the counter between our read and the
		// conditional write; re-read and try again.
	}

	e.logf("STORE", "guestlist %s commit lost %d races, giving up", guestlistID, retries)
	return nil, ErrConflict
}

// ResetTicket administratively clears a scanned flag so the ticket can be
// redeemed again. The ledger keeps the original scan records.
func (e *Engine) ResetTicket(ctx context.Context, orderID, tierID, email string, scanType models.ScanType) error {
	if err := e.Store.ResetTicketRedemption(ctx, orderID, tierID, email, scanType); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ResetGroupPass administratively restores a pass to its full allowance.
func (e *Engine) ResetGroupPass(ctx context.Context, guestlistID string) error {
	state, err := e.Store.GetGroupPass(ctx, guestlistID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if state == nil {
		return ErrNotFound
	}
	if err := e.Store.ResetGroupPass(ctx, guestlistID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (e *Engine) logf(category, format string, args ...interface{}) {
	if e.Logger != nil {
		e.Logger.Info(category, fmt.Sprintf(format, args...))
	}
}
