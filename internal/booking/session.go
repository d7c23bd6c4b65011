package booking

import (
	"fmt"
	"time"

	"booking-service/internal/catalog"
	"booking-service/internal/distance"
	"booking-service/internal/quote"
	"booking-service/internal/schedule"
)

// Session carries one booking flow from draft to confirmation. It is a plain
// value: every transition returns an updated copy and leaves the receiver
// untouched, so a failed transition never leaves partial state behind.
type Session struct {
	ID            string         `json:"id"`
	ServiceID     string         `json:"service_id"`
	Status        Status         `json:"status"`
	Request       quote.Request  `json:"request"`
	Revision      int            `json:"revision"`
	Quote         *quote.Quote   `json:"quote,omitempty"`
	Slot          *schedule.Slot `json:"slot,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
	BookingID     string         `json:"booking_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ConfirmedAt   *time.Time     `json:"confirmed_at,omitempty"`
}

// NewSession starts a draft for the given service
func NewSession(id string, def catalog.ServiceDefinition, now time.Time) Session {
	return Session{
		ID:        id,
		ServiceID: def.ID,
		Status:    StatusDraft,
		Request:   quote.Request{ServiceID: def.ID},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasFreshQuote reports whether the held quote was derived from the current request
func (s Session) HasFreshQuote() bool {
	return s.Quote != nil && s.Quote.DerivedFrom(s.Request)
}

func (s Session) transition(target Status, now time.Time) (Session, error) {
	if s.Status.IsTerminal() {
		return s, fmt.Errorf("%w: session %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	if !s.Status.CanTransitionTo(target) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, target)
	}
	s.Status = target
	s.UpdatedAt = now
	return s, nil
}

// Revise replaces the request. Any change of locations or relevant factors
// drops the quote and slot and returns the session to draft; an in-flight
// resolution for the old request becomes stale.
func (s Session) Revise(req quote.Request, def catalog.ServiceDefinition, now time.Time) (Session, error) {
	if s.Status.IsTerminal() {
		return s, fmt.Errorf("%w: session %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	if def.ID != s.ServiceID || (req.ServiceID != "" && req.ServiceID != s.ServiceID) {
		return s, fmt.Errorf("%w: %q", ErrServiceMismatch, req.ServiceID)
	}

	normalized := req.Normalize(def)
	if normalized.Equal(s.Request) {
		return s, nil
	}

	next := s
	if s.Status != StatusDraft {
		var err error
		if next, err = s.transition(StatusDraft, now); err != nil {
			return s, err
		}
	}
	next.Request = normalized
	next.Revision++
	next.Quote = nil
	next.Slot = nil
	next.FailureReason = ""
	next.UpdatedAt = now
	return next, nil
}

// Submit starts distance resolution for a complete request. Incomplete
// requests are rejected and the session stays in draft.
func (s Session) Submit(def catalog.ServiceDefinition, now time.Time) (Session, error) {
	if s.Status.IsTerminal() {
		return s, fmt.Errorf("%w: session %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	if err := s.Request.Validate(def); err != nil {
		return s, err
	}

	next, err := s.transition(StatusResolvingDistance, now)
	if err != nil {
		return s, err
	}
	next.Revision++
	next.FailureReason = ""
	return next, nil
}

func (s Session) checkCurrent(revision int) error {
	if s.Status != StatusResolvingDistance || revision != s.Revision {
		return fmt.Errorf("%w: revision %d, session at revision %d (%s)", ErrStaleResult, revision, s.Revision, s.Status)
	}
	return nil
}

// ApplyDistance prices the request with a resolved distance. Results for an
// older revision are rejected with ErrStaleResult. Pricing failures are
// terminal.
func (s Session) ApplyDistance(revision int, d distance.Distance, def catalog.ServiceDefinition, now time.Time) (Session, error) {
	if err := s.checkCurrent(revision); err != nil {
		return s, err
	}

	q, calcErr := quote.Compute(def, s.Request, d.Kilometers, now)
	if calcErr != nil {
		next, err := s.transition(StatusFailed, now)
		if err != nil {
			return s, err
		}
		next.FailureReason = calcErr.Error()
		return next, calcErr
	}

	next, err := s.transition(StatusQuoteReady, now)
	if err != nil {
		return s, err
	}
	next.Quote = &q
	return next, nil
}

// FailResolution records a resolver error for the given revision. Transient
// failures return the session to draft so the caller can retry; anything else
// fails the session.
func (s Session) FailResolution(revision int, cause error, now time.Time) (Session, error) {
	if err := s.checkCurrent(revision); err != nil {
		return s, err
	}

	target := StatusFailed
	if IsResolver(cause) {
		target = StatusDraft
	}

	next, err := s.transition(target, now)
	if err != nil {
		return s, err
	}
	next.FailureReason = cause.Error()
	return next, nil
}

// SelectSchedule attaches a validated slot to a quoted session
func (s Session) SelectSchedule(slot schedule.Slot, reference, now time.Time) (Session, error) {
	if s.Status.IsTerminal() {
		return s, fmt.Errorf("%w: session %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	if s.Status != StatusQuoteReady && s.Status != StatusScheduleSelected {
		return s, fmt.Errorf("%w: %w", ErrInvalidTransition, ErrQuoteRequired)
	}
	slot = slot.Canonical()
	if err := schedule.Validate(slot, reference); err != nil {
		return s, err
	}

	next, err := s.transition(StatusScheduleSelected, now)
	if err != nil {
		return s, err
	}
	next.Slot = &slot
	return next, nil
}

// Confirm finalizes the booking. It requires a quote derived from the current
// request and a slot that still validates against reference.
func (s Session) Confirm(bookingID, userID string, reference, now time.Time) (Session, error) {
	if s.Status.IsTerminal() {
		return s, fmt.Errorf("%w: session %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	if s.Quote == nil {
		return s, ErrQuoteRequired
	}
	if !s.HasFreshQuote() {
		return s, ErrStaleQuote
	}
	if s.Status != StatusScheduleSelected || s.Slot == nil {
		return s, ErrScheduleRequired
	}
	if err := schedule.Validate(*s.Slot, reference); err != nil {
		return s, err
	}

	next, err := s.transition(StatusConfirmed, now)
	if err != nil {
		return s, err
	}
	next.BookingID = bookingID
	next.UserID = userID
	next.ConfirmedAt = &now
	return next, nil
}

// Abandon closes an open session without booking
func (s Session) Abandon(now time.Time) (Session, error) {
	return s.transition(StatusAbandoned, now)
}
