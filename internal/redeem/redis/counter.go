// Package redis is the Redis-backed implementation of the redeem.Store
// contract. Ticket flags use SetNX and the group counter uses a Lua script,
// so every mutation is a single atomic command on the server.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-admission/internal/models"
)

// decrementScript conditionally lowers the remaining counter. Returns the
// new value, -1 when the pass is unknown, -2 when the guard fails.
const decrementScript = `
local remaining = tonumber(redis.call('GET', KEYS[1]))
if remaining == nil then
  return -1
end
if remaining < tonumber(ARGV[2]) then
  return -2
end
return redis.call('DECRBY', KEYS[1], ARGV[1])
`

type Counter struct {
	Client *redis.Client
}

func NewCounter(client *redis.Client) *Counter {
	return &Counter{Client: client}
}

func orderTicketKey(orderID, tierID, email string) string {
	return fmt.Sprintf("order_ticket:%s:%s:%s", orderID, tierID, email)
}

func ticketScanKey(orderID, tierID, email string, scanType models.ScanType) string {
	return fmt.Sprintf("ticket_scan:%s:%s:%s:%s", orderID, tierID, email, scanType)
}

func guestlistKey(guestlistID string) string {
	return "guestlist:" + guestlistID
}

func guestlistRemainingKey(guestlistID string) string {
	return "guestlist_remaining:" + guestlistID
}

func (c *Counter) GetOrderTicket(ctx context.Context, orderID, tierID, email string) (*models.OrderTicket, error) {
	eventID, err := c.Client.Get(ctx, orderTicketKey(orderID, tierID, email)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.OrderTicket{
		OrderID:       orderID,
		TicketTierID:  tierID,
		CustomerEmail: email,
		EventID:       eventID,
	}, nil
}

func (c *Counter) GetTicketRedemption(ctx context.Context, orderID, tierID, email string, scanType models.ScanType) (*models.TicketRedemption, error) {
	val, err := c.Client.Get(ctx, ticketScanKey(orderID, tierID, email, scanType)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := models.TicketRedemption{
		OrderID:       orderID,
		TicketTierID:  tierID,
		CustomerEmail: email,
		ScanType:      scanType,
		Scanned:       true,
	}
	if at, perr := time.Parse(time.RFC3339Nano, val); perr == nil {
		rec.ScannedAt = &at
	}
	return &rec, nil
}

func (c *Counter) ConditionalSetTicketRedemption(ctx context.Context, orderID, tierID, email string, scanType models.ScanType, at time.Time) (bool, error) {
	key := ticketScanKey(orderID, tierID, email, scanType)
	return c.Client.SetNX(ctx, key, at.UTC().Format(time.RFC3339Nano), 0).Result()
}

func (c *Counter) GetGroupPass(ctx context.Context, guestlistID string) (*models.GroupPassState, error) {
	meta, err := c.Client.HGetAll(ctx, guestlistKey(guestlistID)).Result()
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, nil
	}

	remainingStr, err := c.Client.Get(ctx, guestlistRemainingKey(guestlistID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt remaining counter for %s: %w", guestlistID, err)
	}
	total, _ := strconv.Atoi(meta["total_uses"])

	return &models.GroupPassState{
		GroupPassID:   guestlistID,
		EventID:       meta["event_id"],
		TotalUses:     total,
		RemainingUses: remaining,
		LeadEmail:     meta["lead_email"],
		LeadName:      meta["lead_name"],
	}, nil
}

func (c *Counter) ConditionalDecrementGroupPass(ctx context.Context, guestlistID string, amount, requiredMinimumRemaining int) (bool, int, error) {
	res, err := c.Client.Eval(ctx, decrementScript,
		[]string{guestlistRemainingKey(guestlistID)},
		amount, requiredMinimumRemaining,
	).Int64()
	if err != nil {
		return false, 0, err
	}
	if res < 0 {
		return false, 0, nil
	}
	return true, int(res), nil
}

// ResetTicketRedemption deletes the scan marker; an absent key means not
// scanned, which matches the SQL backend's reset semantics.
func (c *Counter) ResetTicketRedemption(ctx context.Context, orderID, tierID, email string, scanType models.ScanType) error {
	return c.Client.Del(ctx, ticketScanKey(orderID, tierID, email, scanType)).Err()
}

func (c *Counter) ResetGroupPass(ctx context.Context, guestlistID string) error {
	total, err := c.Client.HGet(ctx, guestlistKey(guestlistID), "total_uses").Result()
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, guestlistRemainingKey(guestlistID), total, 0).Err()
}

// Issuance-side seeding helpers.

func (c *Counter) CreateOrderTicket(ctx context.Context, ot models.OrderTicket) error {
	return c.Client.Set(ctx, orderTicketKey(ot.OrderID, ot.TicketTierID, ot.CustomerEmail), ot.EventID, 0).Err()
}

func (c *Counter) CreateGroupPass(ctx context.Context, gp models.GroupPassState) error {
	if err := c.Client.HSet(ctx, guestlistKey(gp.GroupPassID),
		"event_id", gp.EventID,
		"total_uses", strconv.Itoa(gp.TotalUses),
		"lead_email", gp.LeadEmail,
		"lead_name", gp.LeadName,
	).Err(); err != nil {
		return err
	}
	return c.Client.Set(ctx, guestlistRemainingKey(gp.GroupPassID), strconv.Itoa(gp.RemainingUses), 0).Err()
}
