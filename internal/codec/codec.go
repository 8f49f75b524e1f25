// Package codec translates between raw QR payload text and Credential values.
// Two JSON schemas exist on the wire, discriminated by the guestlist type
// marker; anything that does not fully match one of them is rejected, never
// returned as a partial credential.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"ms-admission/internal/models"
)

// ErrInvalidFormat is returned for payloads that are not valid JSON or are
// missing/mistyping a required field.
var ErrInvalidFormat = errors.New("invalid credential format")

// guestlistMarker is the value of the "type" field that selects the group
// pass schema.
const guestlistMarker = "guestlist"

type individualPayload struct {
	OrderID      *string `json:"orderId"`
	TicketTierID *string `json:"ticketTierId"`
	Quantity     *int    `json:"quantity,omitempty"`
	Customer     *string `json:"customer"`
}

type guestlistPayload struct {
	Type         string  `json:"type"`
	GuestlistID  *string `json:"guestlistId"`
	EventID      *string `json:"eventId"`
	TotalTickets *int    `json:"totalTickets"`
	LeadEmail    *string `json:"leadEmail"`
	LeadName     *string `json:"leadName"`
}

// Decode parses raw payload text into a Credential.
func Decode(raw string) (models.Credential, error) {
	var probe struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	if probe.Type != nil {
		if *probe.Type != guestlistMarker {
			return nil, fmt.Errorf("%w: unknown payload type %q", ErrInvalidFormat, *probe.Type)
		}
		return decodeGuestlist(raw)
	}
	return decodeIndividual(raw)
}

func decodeIndividual(raw string) (models.Credential, error) {
	var p individualPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if p.OrderID == nil || *p.OrderID == "" {
		return nil, fmt.Errorf("%w: missing orderId", ErrInvalidFormat)
	}
	if p.TicketTierID == nil || *p.TicketTierID == "" {
		return nil, fmt.Errorf("%w: missing ticketTierId", ErrInvalidFormat)
	}
	if p.Customer == nil || *p.Customer == "" {
		return nil, fmt.Errorf("%w: missing customer", ErrInvalidFormat)
	}
	if p.Quantity != nil && *p.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidFormat)
	}
	return models.IndividualTicket{
		OrderID:       *p.OrderID,
		TicketTierID:  *p.TicketTierID,
		CustomerEmail: *p.Customer,
		Quantity:      p.Quantity,
	}, nil
}

func decodeGuestlist(raw string) (models.Credential, error) {
	var p guestlistPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if p.GuestlistID == nil || *p.GuestlistID == "" {
		return nil, fmt.Errorf("%w: missing guestlistId", ErrInvalidFormat)
	}
	if p.EventID == nil || *p.EventID == "" {
		return nil, fmt.Errorf("%w: missing eventId", ErrInvalidFormat)
	}
	if p.TotalTickets == nil {
		return nil, fmt.Errorf("%w: missing totalTickets", ErrInvalidFormat)
	}
	if *p.TotalTickets < 1 {
		return nil, fmt.Errorf("%w: totalTickets must be positive", ErrInvalidFormat)
	}
	if p.LeadEmail == nil || *p.LeadEmail == "" {
		return nil, fmt.Errorf("%w: missing leadEmail", ErrInvalidFormat)
	}
	if p.LeadName == nil || *p.LeadName == "" {
		return nil, fmt.Errorf("%w: missing leadName", ErrInvalidFormat)
	}
	return models.GroupPass{
		GroupPassID: *p.GuestlistID,
		EventID:     *p.EventID,
		TotalUses:   *p.TotalTickets,
		LeadEmail:   *p.LeadEmail,
		LeadName:    *p.LeadName,
	}, nil
}

// Encode is the structural inverse of Decode. It is used by the issuing side
// when embedding credentials into QR codes; Decode(Encode(c)) == c for every
// valid credential.
func Encode(cred models.Credential) (string, error) {
	switch c := cred.(type) {
	case models.IndividualTicket:
		out, err := json.Marshal(individualPayload{
			OrderID:      &c.OrderID,
			TicketTierID: &c.TicketTierID,
			Quantity:     c.Quantity,
			Customer:     &c.CustomerEmail,
		})
		if err != nil {
			return "", err
		}
		return string(out), nil
	case models.GroupPass:
		out, err := json.Marshal(guestlistPayload{
			Type:         guestlistMarker,
			GuestlistID:  &c.GroupPassID,
			EventID:      &c.EventID,
			TotalTickets: &c.TotalUses,
			LeadEmail:    &c.LeadEmail,
			LeadName:     &c.LeadName,
		})
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unsupported credential kind %T", cred)
	}
}
