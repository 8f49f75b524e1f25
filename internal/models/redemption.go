package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ScanType distinguishes entry and exit scans. Redemption state is keyed by
// it, so a ticket can be redeemed once per direction.
type ScanType string

const (
	ScanEntry ScanType = "entry"
	ScanExit  ScanType = "exit"
)

// OrderTicket is the read-only snapshot row of a sold ticket, written by the
// checkout service. The scan service only ever reads it.
type OrderTicket struct {
	bun.BaseModel `bun:"table:order_tickets"`

	OrderID       string `bun:"order_id,pk"`
	TicketTierID  string `bun:"ticket_tier_id,pk"`
	CustomerEmail string `bun:"customer_email,pk"`
	EventID       string `bun:"event_id"`
}

// TicketRedemption tracks whether a ticket was scanned for a given direction.
// An absent row means not yet scanned. Rows are never deleted; an
// administrative reset flips scanned back to false.
type TicketRedemption struct {
	bun.BaseModel `bun:"table:ticket_redemptions"`

	OrderID       string     `bun:"order_id,pk"`
	TicketTierID  string     `bun:"ticket_tier_id,pk"`
	CustomerEmail string     `bun:"customer_email,pk"`
	ScanType      ScanType   `bun:"scan_type,pk"`
	Scanned       bool       `bun:"scanned"`
	ScannedAt     *time.Time `bun:"scanned_at"`
}

// GroupPassState is the authoritative remaining-uses counter for a guestlist
// pass. RemainingUses only moves down through the conditional decrement,
// except for an administrative reset back to TotalUses.
type GroupPassState struct {
	bun.BaseModel `bun:"table:group_passes"`

	GroupPassID   string `bun:"guestlist_id,pk"`
	EventID       string `bun:"event_id"`
	TotalUses     int    `bun:"total_uses"`
	RemainingUses int    `bun:"remaining_uses"`
	LeadEmail     string `bun:"lead_email"`
	LeadName      string `bun:"lead_name"`
}
