package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-admission/internal/codec"
	"ms-admission/internal/models"
)

func TestDecodeIndividualTicket(t *testing.T) {
	raw := `{"orderId":"order-1","ticketTierId":"tier-vip","customer":"alice@example.com"}`

	cred, err := codec.Decode(raw)
	require.NoError(t, err)

	ticket, ok := cred.(models.IndividualTicket)
	require.True(t, ok, "expected an individual ticket")
	assert.Equal(t, "order-1", ticket.OrderID)
	assert.Equal(t, "tier-vip", ticket.TicketTierID)
	assert.Equal(t, "alice@example.com", ticket.CustomerEmail)
	assert.Nil(t, ticket.Quantity, "quantity was omitted")
	assert.Equal(t, models.KindIndividual, cred.Kind())
	assert.Equal(t, "ticket:order-1:tier-vip:alice@example.com", cred.Ref())
}

func TestDecodeIndividualTicketWithQuantity(t *testing.T) {
	raw := `{"orderId":"order-1","ticketTierId":"tier-vip","quantity":2,"customer":"alice@example.com"}`

	cred, err := codec.Decode(raw)
	require.NoError(t, err)

	ticket := cred.(models.IndividualTicket)
	require.NotNil(t, ticket.Quantity)
	assert.Equal(t, 2, *ticket.Quantity)
}

func TestDecodeGroupPass(t *testing.T) {
	raw := `{"type":"guestlist","guestlistId":"gl-9","eventId":"event-7","totalTickets":10,"leadEmail":"lead@example.com","leadName":"Sam Lead"}`

	cred, err := codec.Decode(raw)
	require.NoError(t, err)

	pass, ok := cred.(models.GroupPass)
	require.True(t, ok, "expected a group pass")
	assert.Equal(t, "gl-9", pass.GroupPassID)
	assert.Equal(t, "event-7", pass.EventID)
	assert.Equal(t, 10, pass.TotalUses)
	assert.Equal(t, "lead@example.com", pass.LeadEmail)
	assert.Equal(t, "Sam Lead", pass.LeadName)
	assert.Equal(t, "guestlist:gl-9", cred.Ref())
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"not json":              `not-json`,
		"empty object":          `{}`,
		"missing orderId":       `{"ticketTierId":"t","customer":"a@b.c"}`,
		"empty orderId":         `{"orderId":"","ticketTierId":"t","customer":"a@b.c"}`,
		"missing customer":      `{"orderId":"o","ticketTierId":"t"}`,
		"numeric orderId":       `{"orderId":42,"ticketTierId":"t","customer":"a@b.c"}`,
		"non-numeric quantity":  `{"orderId":"o","ticketTierId":"t","quantity":"two","customer":"a@b.c"}`,
		"zero quantity":         `{"orderId":"o","ticketTierId":"t","quantity":0,"customer":"a@b.c"}`,
		"unknown type marker":   `{"type":"season-pass","guestlistId":"g"}`,
		"missing guestlistId":   `{"type":"guestlist","eventId":"e","totalTickets":5,"leadEmail":"l@e.c","leadName":"L"}`,
		"missing totalTickets":  `{"type":"guestlist","guestlistId":"g","eventId":"e","leadEmail":"l@e.c","leadName":"L"}`,
		"string totalTickets":   `{"type":"guestlist","guestlistId":"g","eventId":"e","totalTickets":"five","leadEmail":"l@e.c","leadName":"L"}`,
		"zero totalTickets":     `{"type":"guestlist","guestlistId":"g","eventId":"e","totalTickets":0,"leadEmail":"l@e.c","leadName":"L"}`,
		"missing leadName":      `{"type":"guestlist","guestlistId":"g","eventId":"e","totalTickets":5,"leadEmail":"l@e.c"}`,
		"guestlist no eventId":  `{"type":"guestlist","guestlistId":"g","totalTickets":5,"leadEmail":"l@e.c","leadName":"L"}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			cred, err := codec.Decode(raw)
			assert.ErrorIs(t, err, codec.ErrInvalidFormat)
			assert.Nil(t, cred, "no partial credential on failure")
		})
	}
}

func TestRoundTripIndividual(t *testing.T) {
	qty := 3
	tickets := []models.IndividualTicket{
		{OrderID: "order-1", TicketTierID: "tier-ga", CustomerEmail: "a@example.com"},
		{OrderID: "order-2", TicketTierID: "tier-vip", CustomerEmail: "b@example.com", Quantity: &qty},
	}

	for _, ticket := range tickets {
		encoded, err := codec.Encode(ticket)
		require.NoError(t, err)

		decoded, err := codec.Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, ticket, decoded)
	}
}

func TestRoundTripGroupPass(t *testing.T) {
	pass := models.GroupPass{
		GroupPassID: "gl-42",
		EventID:     "event-9",
		TotalUses:   25,
		LeadEmail:   "lead@example.com",
		LeadName:    "Lead Name",
	}

	encoded, err := codec.Encode(pass)
	require.NoError(t, err)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, pass, decoded)
}
