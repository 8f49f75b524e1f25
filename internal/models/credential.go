package models

import "fmt"

// CredentialKind discriminates the two scan payload shapes.
type CredentialKind string

const (
	KindIndividual CredentialKind = "individual"
	KindGuestlist  CredentialKind = "guestlist"
)

// Credential is a decoded scan payload: either an individual ticket or a
// multi-use group pass (guestlist).
type Credential interface {
	Kind() CredentialKind
	// Ref is the stable identifier used to key ledger records and history lookups.
	Ref() string
}

type IndividualTicket struct {
	OrderID       string
	TicketTierID  string
	CustomerEmail string
	// Quantity is informational (how many seats the order line covers) and
	// optional on the wire; nil means the issuer omitted it.
	Quantity *int
}

func (t IndividualTicket) Kind() CredentialKind { return KindIndividual }

func (t IndividualTicket) Ref() string {
	return fmt.Sprintf("ticket:%s:%s:%s", t.OrderID, t.TicketTierID, t.CustomerEmail)
}

type GroupPass struct {
	GroupPassID string
	EventID     string
	TotalUses   int
	LeadEmail   string
	LeadName    string
}

func (g GroupPass) Kind() CredentialKind { return KindGuestlist }

func (g GroupPass) Ref() string {
	return "guestlist:" + g.GroupPassID
}
