package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"booking-service/internal/auth"
	"booking-service/internal/booking"
	"booking-service/internal/catalog"
	"booking-service/internal/distance"
	"booking-service/internal/kinesis"
	"booking-service/internal/quote"
	"booking-service/internal/schedule"
	"booking-service/internal/storage"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or swept session ids
var ErrSessionNotFound = errors.New("session not found")

// DefaultResolveTimeout bounds a single distance resolution
const DefaultResolveTimeout = 10 * time.Second

// BookingService drives booking sessions through quoting, scheduling and
// confirmation. Sessions are independent; each is guarded by its own lock.
type BookingService struct {
	catalog        *catalog.Catalog
	resolver       distance.Resolver
	repo           storage.BookingRepository
	auth           auth.Session
	streamer       *kinesis.Streamer
	now            func() time.Time
	resolveTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	mu          sync.Mutex
	session     booking.Session
	inflight    *resolution
	lastTouched time.Time
}

// resolution is one in-flight distance lookup for a session revision. err is
// written before done is closed.
type resolution struct {
	revision int
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// NewBookingService creates a new booking service instance
func NewBookingService(cat *catalog.Catalog, resolver distance.Resolver, repo storage.BookingRepository, authSession auth.Session) *BookingService {
	return &BookingService{
		catalog:        cat,
		resolver:       resolver,
		repo:           repo,
		auth:           authSession,
		now:            time.Now,
		resolveTimeout: DefaultResolveTimeout,
		sessions:       make(map[string]*sessionEntry),
	}
}

// SetKinesisStreamer sets the Kinesis streamer for session events
func (b *BookingService) SetKinesisStreamer(streamer *kinesis.Streamer) {
	b.streamer = streamer
}

// SetResolveTimeout overrides the per-resolution deadline
func (b *BookingService) SetResolveTimeout(timeout time.Duration) {
	if timeout > 0 {
		b.resolveTimeout = timeout
	}
}

// Catalog returns the service catalog backing this service
func (b *BookingService) Catalog() *catalog.Catalog {
	return b.catalog
}

// StartSession opens a draft session for a service
func (b *BookingService) StartSession(ctx context.Context, serviceID string) (booking.Session, error) {
	def, err := b.catalog.Lookup(serviceID)
	if err != nil {
		return booking.Session{}, err
	}

	now := b.now()
	s := booking.NewSession(uuid.NewString(), def, now)

	b.mu.Lock()
	b.sessions[s.ID] = &sessionEntry{session: s, lastTouched: now}
	b.mu.Unlock()

	slog.Info("Session started", "session_id", s.ID, "service_id", serviceID)
	return s, nil
}

// GetSession returns a snapshot of a session
func (b *BookingService) GetSession(ctx context.Context, sessionID string) (booking.Session, error) {
	entry, err := b.entry(sessionID)
	if err != nil {
		return booking.Session{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.lastTouched = b.now()
	return entry.session, nil
}

// UpdateRequest replaces the session's request without pricing it. A change
// of locations or relevant factors invalidates the quote and cancels any
// in-flight resolution.
func (b *BookingService) UpdateRequest(ctx context.Context, sessionID string, req quote.Request) (booking.Session, error) {
	entry, err := b.entry(sessionID)
	if err != nil {
		return booking.Session{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := b.revise(entry, req); err != nil {
		return entry.session, err
	}
	return entry.session, nil
}

// SubmitQuote revises the request and starts distance resolution without
// waiting for it. It returns the session as it stands after submission.
func (b *BookingService) SubmitQuote(ctx context.Context, sessionID string, req quote.Request) (booking.Session, error) {
	entry, err := b.entry(sessionID)
	if err != nil {
		return booking.Session{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if _, err := b.submit(entry, req); err != nil {
		return entry.session, err
	}
	return entry.session, nil
}

// ComputeQuote submits the request and waits for its resolution. Resubmitting
// an unchanged request that is already priced returns the existing quote.
// If the request changes while waiting, the result is discarded and
// booking.ErrStaleResult is returned.
func (b *BookingService) ComputeQuote(ctx context.Context, sessionID string, req quote.Request) (quote.Quote, error) {
	entry, err := b.entry(sessionID)
	if err != nil {
		return quote.Quote{}, err
	}

	entry.mu.Lock()
	res, err := b.submit(entry, req)
	if err != nil {
		entry.mu.Unlock()
		return quote.Quote{}, err
	}
	if res == nil {
		q := *entry.session.Quote
		entry.mu.Unlock()
		return q, nil
	}
	entry.mu.Unlock()

	select {
	case <-res.done:
	case <-ctx.Done():
		return quote.Quote{}, ctx.Err()
	}
	if res.err != nil {
		return quote.Quote{}, res.err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	s := entry.session
	if s.Revision != res.revision || !s.HasFreshQuote() {
		return quote.Quote{}, fmt.Errorf("%w: revision %d superseded by %d", booking.ErrStaleResult, res.revision, s.Revision)
	}
	return *s.Quote, nil
}

// SelectSchedule attaches a pickup slot to a quoted session
func (b *BookingService) SelectSchedule(ctx context.Context, sessionID string, slot schedule.Slot) (booking.Session, error) {
	entry, err := b.entry(sessionID)
	if err != nil {
		return booking.Session{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := b.now()
	next, err := entry.session.SelectSchedule(slot, now, now)
	if err != nil {
		return entry.session, err
	}
	entry.session = next
	entry.lastTouched = now
	return next, nil
}

// ConfirmBooking finalizes the session and hands the booking to the
// repository. The session only becomes Confirmed once the record is stored.
func (b *BookingService) ConfirmBooking(ctx context.Context, sessionID string) (*storage.BookingRecord, error) {
	entry, err := b.entry(sessionID)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	record, next, err := b.confirm(ctx, entry)
	entry.mu.Unlock()
	if err != nil {
		return nil, err
	}

	b.streamer.StreamSessionEvent(ctx, kinesis.EventConfirmed, next)

	slog.Info("Booking confirmed", "session_id", next.ID, "booking_id", record.ID, "price", record.Quote.Price)
	return record, nil
}

// confirm stores the booking and moves the session to Confirmed. The lock is
// held across the save so a second confirmation cannot race the first; Sweep
// skips the entry meanwhile. Must hold entry.mu.
func (b *BookingService) confirm(ctx context.Context, entry *sessionEntry) (*storage.BookingRecord, booking.Session, error) {
	userID, _ := b.auth.CurrentUserID(ctx)
	now := b.now()
	entry.lastTouched = now

	next, err := entry.session.Confirm(uuid.NewString(), userID, now, now)
	if err != nil {
		return nil, entry.session, err
	}

	record := &storage.BookingRecord{
		ID:          next.BookingID,
		SessionID:   next.ID,
		UserID:      next.UserID,
		ServiceID:   next.ServiceID,
		Quote:       *next.Quote,
		Slot:        *next.Slot,
		ConfirmedAt: now,
	}
	if err := b.repo.SaveBooking(ctx, record); err != nil {
		return nil, entry.session, fmt.Errorf("failed to save booking: %w", err)
	}

	entry.session = next
	return record, next, nil
}

// AbandonSession closes an open session and cancels its in-flight resolution
func (b *BookingService) AbandonSession(ctx context.Context, sessionID string) (booking.Session, error) {
	entry, err := b.entry(sessionID)
	if err != nil {
		return booking.Session{}, err
	}

	entry.mu.Lock()
	next, err := b.abandon(entry)
	entry.mu.Unlock()
	if err != nil {
		return next, err
	}

	b.streamer.StreamSessionEvent(ctx, kinesis.EventAbandoned, next)
	return next, nil
}

// ListBookings returns the authenticated user's confirmed bookings
func (b *BookingService) ListBookings(ctx context.Context) ([]*storage.BookingRecord, error) {
	userID, ok := b.auth.CurrentUserID(ctx)
	if !ok {
		return nil, auth.ErrUnauthenticated
	}
	return b.repo.ListBookingsByUser(ctx, userID)
}

// GetBooking retrieves a confirmed booking. Bookings owned by another user
// are reported as not found.
func (b *BookingService) GetBooking(ctx context.Context, bookingID string) (*storage.BookingRecord, error) {
	record, err := b.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if record.UserID != "" {
		if userID, _ := b.auth.CurrentUserID(ctx); userID != record.UserID {
			return nil, fmt.Errorf("%w: %s", storage.ErrBookingNotFound, bookingID)
		}
	}
	return record, nil
}

// Sweep drops sessions idle for longer than ttl, abandoning open ones first.
// Sessions busy with another operation are left for the next sweep. It returns
// the number of sessions removed.
func (b *BookingService) Sweep(ctx context.Context, ttl time.Duration) int {
	cutoff := b.now().Add(-ttl)

	b.mu.RLock()
	entries := make(map[string]*sessionEntry, len(b.sessions))
	for id, entry := range b.sessions {
		entries[id] = entry
	}
	b.mu.RUnlock()

	var abandoned []booking.Session
	removed := 0
	for id, entry := range entries {
		if !entry.mu.TryLock() {
			continue
		}
		if !entry.lastTouched.Before(cutoff) {
			entry.mu.Unlock()
			continue
		}
		if !entry.session.Status.IsTerminal() {
			next, err := b.abandon(entry)
			if err != nil {
				slog.Warn("Failed to abandon idle session", "session_id", id, "error", err)
			} else {
				abandoned = append(abandoned, next)
			}
		}
		entry.mu.Unlock()

		b.mu.Lock()
		if b.sessions[id] == entry {
			delete(b.sessions, id)
			removed++
		}
		b.mu.Unlock()
	}

	for _, s := range abandoned {
		b.streamer.StreamSessionEvent(ctx, kinesis.EventAbandoned, s)
	}
	return removed
}

// ActiveSessionCount returns the number of sessions held in memory
func (b *BookingService) ActiveSessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

func (b *BookingService) entry(sessionID string) (*sessionEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return entry, nil
}

// revise applies req to the session held by entry. Must hold entry.mu.
func (b *BookingService) revise(entry *sessionEntry, req quote.Request) error {
	def, err := b.catalog.Lookup(entry.session.ServiceID)
	if err != nil {
		return err
	}

	now := b.now()
	next, err := entry.session.Revise(req, def, now)
	if err != nil {
		return err
	}
	if next.Revision != entry.session.Revision {
		b.cancelInflight(entry)
	}
	entry.session = next
	entry.lastTouched = now
	return nil
}

// submit revises the request and starts a resolution. It returns nil when the
// session already holds a fresh quote for req, and joins a resolution that is
// already running for the current revision. Must hold entry.mu.
func (b *BookingService) submit(entry *sessionEntry, req quote.Request) (*resolution, error) {
	if err := b.revise(entry, req); err != nil {
		return nil, err
	}

	s := entry.session
	switch s.Status {
	case booking.StatusQuoteReady, booking.StatusScheduleSelected:
		if s.HasFreshQuote() {
			return nil, nil
		}
	case booking.StatusResolvingDistance:
		if entry.inflight != nil && entry.inflight.revision == s.Revision {
			return entry.inflight, nil
		}
	}

	def, err := b.catalog.Lookup(s.ServiceID)
	if err != nil {
		return nil, err
	}

	next, err := s.Submit(def, b.now())
	if err != nil {
		return nil, err
	}
	entry.session = next

	ctx, cancel := context.WithTimeout(context.Background(), b.resolveTimeout)
	res := &resolution{
		revision: next.Revision,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	entry.inflight = res

	go b.resolve(ctx, entry, res, def, next.Request)

	slog.Debug("Distance resolution started", "session_id", next.ID, "revision", next.Revision)
	return res, nil
}

// resolve runs one distance lookup and applies its outcome if it still
// belongs to the session's current revision. Waiters are released before the
// event is published.
func (b *BookingService) resolve(ctx context.Context, entry *sessionEntry, res *resolution, def catalog.ServiceDefinition, req quote.Request) {
	defer res.cancel()

	d, resolveErr := b.resolver.Resolve(ctx, req.PickupLocation, req.DestinationLocation)
	if resolveErr != nil && ctx.Err() != nil && !booking.IsResolver(resolveErr) {
		resolveErr = fmt.Errorf("%w: %w", distance.ErrResolverUnavailable, resolveErr)
	}

	event, next := b.applyResolution(entry, res, d, resolveErr, def)
	close(res.done)
	if event != "" {
		b.streamer.StreamSessionEvent(context.Background(), event, next)
	}
}

// applyResolution records the outcome of res on the session and returns the
// event to publish, if any.
func (b *BookingService) applyResolution(entry *sessionEntry, res *resolution, d distance.Distance, resolveErr error, def catalog.ServiceDefinition) (string, booking.Session) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.inflight == res {
		entry.inflight = nil
	}

	now := b.now()
	current := entry.session

	if resolveErr != nil {
		next, err := current.FailResolution(res.revision, resolveErr, now)
		if err != nil {
			res.err = err
			slog.Debug("Discarded stale resolver failure", "session_id", current.ID, "revision", res.revision, "error", resolveErr)
			return "", current
		}
		entry.session = next
		res.err = resolveErr

		slog.Warn("Distance resolution failed", "session_id", next.ID, "status", next.Status, "error", resolveErr)
		if next.Status == booking.StatusFailed {
			return kinesis.EventFailed, next
		}
		return "", next
	}

	next, err := current.ApplyDistance(res.revision, d, def, now)
	if errors.Is(err, booking.ErrStaleResult) {
		res.err = err
		slog.Debug("Discarded stale distance", "session_id", current.ID, "revision", res.revision)
		return "", current
	}
	entry.session = next
	res.err = err

	if err != nil {
		slog.Warn("Quote computation failed", "session_id", next.ID, "error", err)
		return kinesis.EventFailed, next
	}

	slog.Info("Quote ready", "session_id", next.ID, "distance_km", next.Quote.DistanceKm, "price", next.Quote.Price)
	return kinesis.EventQuoted, next
}

// abandon closes the session held by entry. Callers publish the event after
// releasing entry.mu. Must hold entry.mu.
func (b *BookingService) abandon(entry *sessionEntry) (booking.Session, error) {
	now := b.now()
	next, err := entry.session.Abandon(now)
	if err != nil {
		return entry.session, err
	}
	b.cancelInflight(entry)
	entry.session = next
	entry.lastTouched = now

	slog.Info("Session abandoned", "session_id", next.ID)
	return next, nil
}

func (b *BookingService) cancelInflight(entry *sessionEntry) {
	if entry.inflight != nil {
		entry.inflight.cancel()
		entry.inflight = nil
	}
}
