// Package validation computes scan verdicts from a credential and a snapshot
// of stored state. It is pure: no I/O, no mutation, safe to call repeatedly.
// Verdicts are advisory; the atomic commit in the redeem package is the final
// authority on admission.
package validation

import "ms-admission/internal/models"

type Code string

const (
	Valid              Code = "VALID"
	ValidWithRemaining Code = "VALID_WITH_REMAINING"
	AlreadyScanned     Code = "ALREADY_SCANNED"
	Unknown            Code = "UNKNOWN"
	EventMismatch      Code = "EVENT_MISMATCH"
	Exhausted          Code = "EXHAUSTED"
)

// Verdict is the outcome of validating one credential against a snapshot.
// Remaining is only meaningful for ValidWithRemaining and reflects the
// snapshot, not a reservation; it may be stale by commit time.
type Verdict struct {
	Code      Code
	Remaining int
}

// Snapshot carries the stored state a verdict is computed from. Nil fields
// mean the row is absent.
type Snapshot struct {
	Order      *models.OrderTicket
	Redemption *models.TicketRedemption
	Group      *models.GroupPassState
}

// ValidateIndividual checks an individual ticket. eventID is the event the
// scanning device is stationed at; an empty eventID skips the mismatch check.
func ValidateIndividual(cred models.IndividualTicket, eventID string, snap Snapshot) Verdict {
	if snap.Order == nil {
		return Verdict{Code: Unknown}
	}
	if eventID != "" && snap.Order.EventID != eventID {
		return Verdict{Code: EventMismatch}
	}
	if snap.Redemption != nil && snap.Redemption.Scanned {
		return Verdict{Code: AlreadyScanned}
	}
	return Verdict{Code: Valid}
}

// ValidateGroup checks a guestlist pass against its stored counter state.
func ValidateGroup(cred models.GroupPass, snap Snapshot) Verdict {
	if snap.Group == nil {
		return Verdict{Code: Unknown}
	}
	if snap.Group.RemainingUses == 0 {
		return Verdict{Code: Exhausted}
	}
	return Verdict{Code: ValidWithRemaining, Remaining: snap.Group.RemainingUses}
}
