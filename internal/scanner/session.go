package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"ms-admission/internal/codec"
	"ms-admission/internal/models"
	"ms-admission/internal/redeem"
	"ms-admission/internal/validation"
)

// State of a device's scan session.
type State string

const (
	StateIdle              State = "IDLE"
	StateDecoding          State = "DECODING"
	StateValidating        State = "VALIDATING"
	StateAwaitingBulkInput State = "AWAITING_BULK_INPUT"
	StateCommitting        State = "COMMITTING"
	StatePresentingResult  State = "PRESENTING_RESULT"
)

// Timings are the session timers. Error presentations clear faster than
// success ones so a queue keeps moving after a bad read.
type Timings struct {
	DebounceWindow     time.Duration
	ErrorClearDelay    time.Duration
	SuccessClearDelay  time.Duration
	DebounceClearDelay time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		DebounceWindow:     2 * time.Second,
		ErrorClearDelay:    1500 * time.Millisecond,
		SuccessClearDelay:  3 * time.Second,
		DebounceClearDelay: 500 * time.Millisecond,
	}
}

// Presentation is what the device screen shows.
type Presentation struct {
	Code           string `json:"code"`
	Message        string `json:"message,omitempty"`
	CommittedCount int    `json:"committed_count,omitempty"`
	RemainingAfter int    `json:"remaining_after,omitempty"`
	Retryable      bool   `json:"retryable,omitempty"`
}

// Status is a snapshot of the session for the device UI.
type Status struct {
	DeviceID       string          `json:"device_id"`
	EventID        string          `json:"event_id,omitempty"`
	ScanType       models.ScanType `json:"scan_type"`
	State          State           `json:"state"`
	Remaining      int             `json:"remaining,omitempty"`
	RequestedCount int             `json:"requested_count,omitempty"`
	Presentation   *Presentation   `json:"presentation,omitempty"`
}

// Session is the state machine for one physical scanning device. A device
// processes one scan at a time; input arriving mid-cycle is ignored.
// Cross-device races are not this type's problem - the store's conditional
// commits resolve those.
type Session struct {
	DeviceID string
	EventID  string
	ScanType models.ScanType

	svc     *Service
	timings Timings

	mu             sync.Mutex
	state          State
	group          *models.GroupPass
	remaining      int
	requestedCount int
	presentation   *Presentation
	lastRaw        string
	debounceUntil  time.Time
	clearTimer     *time.Timer
}

func NewSession(svc *Service, deviceID, eventID string, scanType models.ScanType, timings Timings) *Session {
	return &Session{
		DeviceID: deviceID,
		EventID:  eventID,
		ScanType: scanType,
		svc:      svc,
		timings:  timings,
		state:    StateIdle,
	}
}

// Scan feeds one raw payload into the session. Input is ignored when the
// session is mid-cycle, or when it repeats the previous payload inside the
// debounce window (the same physical code read twice).
func (s *Session) Scan(ctx context.Context, raw string) Status {
	s.mu.Lock()
	if s.state != StateIdle {
		defer s.mu.Unlock()
		return s.statusLocked()
	}
	if raw == s.lastRaw && time.Now().Before(s.debounceUntil) {
		defer s.mu.Unlock()
		return s.statusLocked()
	}
	s.lastRaw = raw
	s.debounceUntil = time.Now().Add(s.timings.DebounceWindow)
	s.state = StateDecoding
	s.mu.Unlock()

	cred, err := codec.Decode(raw)
	if err != nil {
		// Unreadable payload: present and auto-clear quickly. No store or
		// ledger calls are made for undecodable input.
		s.logScan(models.ResultInvalidFormat, "undecodable payload")
		return s.present(Presentation{Code: models.ResultInvalidFormat, Message: "unreadable code"}, s.timings.ErrorClearDelay)
	}

	s.setState(StateValidating)
	verdict, err := s.svc.Validate(ctx, cred, s.EventID, s.ScanType)
	if err != nil {
		s.logScan(models.ResultUnavailable, err.Error())
		return s.present(Presentation{Code: models.ResultUnavailable, Message: "store unavailable, try again", Retryable: true}, s.timings.ErrorClearDelay)
	}

	switch c := cred.(type) {
	case models.IndividualTicket:
		return s.handleIndividual(ctx, c, verdict)
	case models.GroupPass:
		return s.handleGroup(ctx, c, verdict)
	default:
		return s.present(Presentation{Code: models.ResultInvalidFormat}, s.timings.ErrorClearDelay)
	}
}

// handleIndividual commits immediately on a VALID verdict; the conditional
// set in the store is still the final authority, so a lost race surfaces
// here as ALREADY_SCANNED even after a VALID read.
func (s *Session) handleIndividual(ctx context.Context, cred models.IndividualTicket, verdict Verdict) Status {
	if verdict.Code != validation.Valid {
		result := resultForVerdict(verdict.Code)
		s.svc.RecordVerdict(ctx, cred.Ref(), result, s.ScanType, s.DeviceID, s.EventID)
		s.logScan(result, cred.Ref())
		return s.present(Presentation{Code: result}, s.timings.ErrorClearDelay)
	}

	s.setState(StateCommitting)
	_, err := s.svc.CommitIndividual(ctx, cred, s.ScanType, s.DeviceID, s.EventID)
	if err != nil {
		result := resultForError(err)
		s.logScan(result, cred.Ref())
		return s.present(Presentation{Code: result, Retryable: retryable(err)}, s.timings.ErrorClearDelay)
	}

	s.logScan(models.ResultValid, cred.Ref())
	return s.present(Presentation{Code: models.ResultValid, CommittedCount: 1}, s.timings.SuccessClearDelay)
}

// handleGroup opens bulk input on a valid pass; the operator chooses the
// group size before anything commits.
func (s *Session) handleGroup(ctx context.Context, pass models.GroupPass, verdict Verdict) Status {
	if verdict.Code != validation.ValidWithRemaining {
		result := resultForVerdict(verdict.Code)
		s.svc.RecordVerdict(ctx, pass.Ref(), result, s.ScanType, s.DeviceID, s.EventID)
		s.logScan(result, pass.Ref())
		return s.present(Presentation{Code: result}, s.timings.ErrorClearDelay)
	}

	if s.EventID != "" && verdict.SnapshotEventID != "" && verdict.SnapshotEventID != s.EventID {
		s.svc.RecordVerdict(ctx, pass.Ref(), models.ResultEventMismatch, s.ScanType, s.DeviceID, s.EventID)
		s.logScan(models.ResultEventMismatch, pass.Ref())
		return s.present(Presentation{Code: models.ResultEventMismatch}, s.timings.ErrorClearDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAwaitingBulkInput
	s.group = &pass
	s.remaining = verdict.Remaining
	s.requestedCount = 1
	s.presentation = nil
	return s.statusLocked()
}

// SetCount adjusts the requested group size, clamped to [1, remaining].
func (s *Session) SetCount(n int) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingBulkInput {
		return s.statusLocked()
	}
	if n < 1 {
		n = 1
	}
	if n > s.remaining {
		n = s.remaining
	}
	s.requestedCount = n
	return s.statusLocked()
}

// Confirm commits the requested group size. Exhausted or conflicting commits
// keep the session in bulk input so the operator can adjust and retry; a
// fully consumed pass clears automatically, otherwise the session stays open
// for the next group on the same pass.
func (s *Session) Confirm(ctx context.Context) Status {
	s.mu.Lock()
	if s.state != StateAwaitingBulkInput || s.group == nil {
		defer s.mu.Unlock()
		return s.statusLocked()
	}
	s.state = StateCommitting
	pass := *s.group
	count := s.requestedCount
	s.mu.Unlock()

	res, _, err := s.svc.CommitGroup(ctx, pass, count, s.ScanType, s.DeviceID, s.EventID)

	if err != nil {
		result := resultForError(err)
		s.logScan(result, pass.Ref())

		if errors.Is(err, redeem.ErrNotFound) {
			return s.present(Presentation{Code: result}, s.timings.ErrorClearDelay)
		}

		// Retryable: stay in bulk input. Refresh the remaining snapshot so the
		// operator sees why the commit was refused.
		remaining := s.refreshRemaining(ctx, pass.GroupPassID)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.state = StateAwaitingBulkInput
		s.remaining = remaining
		if s.requestedCount > remaining && remaining > 0 {
			s.requestedCount = remaining
		}
		s.presentation = &Presentation{Code: result, Retryable: true}
		return s.statusLocked()
	}

	s.logScan(models.ResultRedeemed, pass.Ref())
	p := Presentation{
		Code:           models.ResultRedeemed,
		CommittedCount: res.CommittedCount,
		RemainingAfter: res.RemainingAfter,
	}

	if res.RemainingAfter == 0 {
		return s.present(p, s.timings.ErrorClearDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAwaitingBulkInput
	s.remaining = res.RemainingAfter
	s.requestedCount = 1
	s.presentation = &p
	return s.statusLocked()
}

// Cancel abandons bulk input without committing anything.
func (s *Session) Cancel() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingBulkInput {
		return s.statusLocked()
	}
	s.toIdleLocked()
	return s.statusLocked()
}

// Dismiss clears a presented result and returns to idle. The debounce marker
// survives a little longer so a code still under the reader isn't processed
// again immediately.
func (s *Session) Dismiss() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePresentingResult {
		return s.statusLocked()
	}
	s.toIdleLocked()
	return s.statusLocked()
}

// Status reports the current session snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	return Status{
		DeviceID:       s.DeviceID,
		EventID:        s.EventID,
		ScanType:       s.ScanType,
		State:          s.state,
		Remaining:      s.remaining,
		RequestedCount: s.requestedCount,
		Presentation:   s.presentation,
	}
}

func (s *Session) toIdleLocked() {
	s.state = StateIdle
	s.presentation = nil
	s.group = nil
	s.remaining = 0
	s.requestedCount = 0
	s.debounceUntil = time.Now().Add(s.timings.DebounceClearDelay)
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
}

func (s *Session) present(p Presentation, clearAfter time.Duration) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StatePresentingResult
	s.presentation = &p
	s.group = nil
	s.remaining = 0
	s.requestedCount = 0
	if s.clearTimer != nil {
		s.clearTimer.Stop()
	}
	if clearAfter > 0 {
		s.clearTimer = time.AfterFunc(clearAfter, func() { s.Dismiss() })
	}
	return s.statusLocked()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) refreshRemaining(ctx context.Context, guestlistID string) int {
	snap, err := s.svc.Engine.SnapshotGroup(ctx, guestlistID)
	if err != nil || snap.Group == nil {
		return 0
	}
	return snap.Group.RemainingUses
}

func (s *Session) logScan(result, detail string) {
	if s.svc.Logger != nil {
		s.svc.Logger.LogScan(s.DeviceID, result, detail)
	}
}

func retryable(err error) bool {
	return errors.Is(err, redeem.ErrConflict) || errors.Is(err, redeem.ErrStoreUnavailable)
}
