// Package db is the SQL implementation of the redeem.Store contract, built
// on bun. Both conditional mutations are single guarded statements so the
// database, not this code, decides races.
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-admission/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

func (d *DB) GetOrderTicket(ctx context.Context, orderID, tierID, email string) (*models.OrderTicket, error) {
	var ot models.OrderTicket
	err := d.Bun.NewSelect().
		Model(&ot).
		Where("order_id = ?", orderID).
		Where("ticket_tier_id = ?", tierID).
		Where("customer_email = ?", email).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ot, nil
}

func (d *DB) GetTicketRedemption(ctx context.Context, orderID, tierID, email string, scanType models.ScanType) (*models.TicketRedemption, error) {
	var tr models.TicketRedemption
	err := d.Bun.NewSelect().
		Model(&tr).
		Where("order_id = ?", orderID).
		Where("ticket_tier_id = ?", tierID).
		Where("customer_email = ?", email).
		Where("scan_type = ?", scanType).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// ConditionalSetTicketRedemption is the compare-and-set for the scanned flag.
// An existing unscanned row (left by an administrative reset) is claimed with
// a guarded UPDATE; a missing row is claimed with INSERT ON CONFLICT DO
// NOTHING. Either way exactly one concurrent caller observes applied=true.
func (d *DB) ConditionalSetTicketRedemption(ctx context.Context, orderID, tierID, email string, scanType models.ScanType, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.TicketRedemption)(nil)).
		Set("scanned = ?", true).
		Set("scanned_at = ?", at).
		Where("order_id = ?", orderID).
		Where("ticket_tier_id = ?", tierID).
		Where("customer_email = ?", email).
		Where("scan_type = ?", scanType).
		Where("scanned = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	if rows, err := res.RowsAffected(); err != nil {
		return false, err
	} else if rows == 1 {
		return true, nil
	}

	rec := models.TicketRedemption{
		OrderID:       orderID,
		TicketTierID:  tierID,
		CustomerEmail: email,
		ScanType:      scanType,
		Scanned:       true,
		ScannedAt:     &at,
	}
	res, err = d.Bun.NewInsert().
		Model(&rec).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (d *DB) GetGroupPass(ctx context.Context, guestlistID string) (*models.GroupPassState, error) {
	var gp models.GroupPassState
	err := d.Bun.NewSelect().
		Model(&gp).
		Where("guestlist_id = ?", guestlistID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gp, nil
}

// ConditionalDecrementGroupPass applies the decrement in one guarded UPDATE.
// RETURNING hands back the post-decrement value from the same statement, so
// remainingAfter is never a stale read.
func (d *DB) ConditionalDecrementGroupPass(ctx context.Context, guestlistID string, amount, requiredMinimumRemaining int) (bool, int, error) {
	var remaining int
	err := d.Bun.NewUpdate().
		Model((*models.GroupPassState)(nil)).
		Set("remaining_uses = remaining_uses - ?", amount).
		Where("guestlist_id = ?", guestlistID).
		Where("remaining_uses >= ?", requiredMinimumRemaining).
		Returning("remaining_uses").
		Scan(ctx, &remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return true, remaining, nil
}

func (d *DB) ResetTicketRedemption(ctx context.Context, orderID, tierID, email string, scanType models.ScanType) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.TicketRedemption)(nil)).
		Set("scanned = ?", false).
		Set("scanned_at = NULL").
		Where("order_id = ?", orderID).
		Where("ticket_tier_id = ?", tierID).
		Where("customer_email = ?", email).
		Where("scan_type = ?", scanType).
		Exec(ctx)
	return err
}

func (d *DB) ResetGroupPass(ctx context.Context, guestlistID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.GroupPassState)(nil)).
		Set("remaining_uses = total_uses").
		Where("guestlist_id = ?", guestlistID).
		Exec(ctx)
	return err
}

// Issuance-side helpers, used by seeding and tests. The checkout service
// writes these rows in production.

func (d *DB) CreateOrderTicket(ctx context.Context, ot models.OrderTicket) error {
	_, err := d.Bun.NewInsert().Model(&ot).Exec(ctx)
	return err
}

func (d *DB) CreateGroupPass(ctx context.Context, gp models.GroupPassState) error {
	_, err := d.Bun.NewInsert().Model(&gp).Exec(ctx)
	return err
}
