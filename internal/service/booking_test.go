package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-service/internal/booking"
	"booking-service/internal/catalog"
	"booking-service/internal/distance"
	"booking-service/internal/quote"
	"booking-service/internal/schedule"
	"booking-service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver resolves from a fixed table. Pickups with a gate block until
// the gate is closed; with honorCancel they also return on cancellation.
type fakeResolver struct {
	mu          sync.Mutex
	distances   map[string]float64
	errs        map[string]error
	gates       map[string]chan struct{}
	started     chan string
	honorCancel bool
	calls       int
	cancelled   []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		distances:   make(map[string]float64),
		errs:        make(map[string]error),
		gates:       make(map[string]chan struct{}),
		started:     make(chan string, 16),
		honorCancel: true,
	}
}

func (f *fakeResolver) set(pickup string, km float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.distances[pickup] = km
	delete(f.errs, pickup)
}

func (f *fakeResolver) fail(pickup string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[pickup] = err
}

func (f *fakeResolver) gate(pickup string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[pickup] = ch
	return ch
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeResolver) Resolve(ctx context.Context, pickup, destination string) (distance.Distance, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gates[pickup]
	honor := f.honorCancel
	f.mu.Unlock()

	f.started <- pickup

	if gate != nil {
		if honor {
			select {
			case <-gate:
			case <-ctx.Done():
				f.mu.Lock()
				f.cancelled = append(f.cancelled, pickup)
				f.mu.Unlock()
				return distance.Distance{}, ctx.Err()
			}
		} else {
			<-gate
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[pickup]; err != nil {
		return distance.Distance{}, err
	}
	km, ok := f.distances[pickup]
	if !ok {
		return distance.Distance{}, distance.ErrUnresolvableLocation
	}
	return distance.Distance{Pickup: pickup, Destination: destination, Kilometers: km}, nil
}

type fakeAuth struct {
	userID string
}

func (f fakeAuth) CurrentUserID(ctx context.Context) (string, bool) {
	return f.userID, f.userID != ""
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingRepository struct {
	storage.BookingRepository
}

func (failingRepository) SaveBooking(ctx context.Context, record *storage.BookingRecord) error {
	return errors.New("table unavailable")
}

// blockingRepository holds SaveBooking until release is closed
type blockingRepository struct {
	*storage.MemoryBookingRepository
	entered chan struct{}
	release chan struct{}
}

func (r *blockingRepository) SaveBooking(ctx context.Context, record *storage.BookingRecord) error {
	close(r.entered)
	<-r.release
	return r.MemoryBookingRepository.SaveBooking(ctx, record)
}

type testEnv struct {
	service  *BookingService
	resolver *fakeResolver
	repo     *storage.MemoryBookingRepository
	clock    *fakeClock
}

func newTestEnv(userID string) *testEnv {
	resolver := newFakeResolver()
	repo := storage.NewMemoryBookingRepository()
	clock := &fakeClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}

	svc := NewBookingService(catalog.Default(), resolver, repo, fakeAuth{userID: userID})
	svc.now = clock.Now

	return &testEnv{service: svc, resolver: resolver, repo: repo, clock: clock}
}

func ptr[T any](v T) *T {
	return &v
}

func parcelRequest(pickup string, weight float64) quote.Request {
	return quote.Request{
		ServiceID:           "parcel-delivery",
		PickupLocation:      pickup,
		DestinationLocation: "9 Harbor Rd",
		Factors:             quote.Factors{WeightKg: ptr(weight)},
	}
}

var tomorrow = schedule.Slot{Date: "2026-10-19", Time: "10:00"}

func TestBookingService_ParcelDeliveryToConfirmation(t *testing.T) {
	env := newTestEnv("user-1")
	env.resolver.set("123 Main St", 10)
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusDraft, s.Status)

	q, err := env.service.ComputeQuote(ctx, s.ID, parcelRequest("123 Main St", 5))
	require.NoError(t, err)
	assert.Equal(t, 27.50, q.Price)
	assert.Equal(t, 10.0, q.DistanceKm)

	s, err = env.service.SelectSchedule(ctx, s.ID, tomorrow)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusScheduleSelected, s.Status)

	record, err := env.service.ConfirmBooking(ctx, s.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, "parcel-delivery", record.ServiceID)
	assert.Equal(t, 27.50, record.Quote.Price)
	assert.Equal(t, tomorrow, record.Slot)

	stored, err := env.repo.GetBooking(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Quote.Price, stored.Quote.Price)

	s, err = env.service.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, s.Status)
	assert.Equal(t, record.ID, s.BookingID)
}

func TestBookingService_ComputeQuoteByService(t *testing.T) {
	tests := []struct {
		name      string
		serviceID string
		km        float64
		factors   quote.Factors
		wantPrice float64
	}{
		{"airport pickup", "airport-pickup", 20, quote.Factors{PersonCount: ptr(3)}, 75.00},
		{"student pickup", "student-pickup", 15, quote.Factors{VehicleTierID: ptr("suv")}, 50.00},
		{"parcel ignores other factors", "parcel-delivery", 10, quote.Factors{WeightKg: ptr(5.0), PersonCount: ptr(4)}, 27.50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv("")
			env.resolver.set("Campus Gate", tt.km)
			ctx := context.Background()

			s, err := env.service.StartSession(ctx, tt.serviceID)
			require.NoError(t, err)

			q, err := env.service.ComputeQuote(ctx, s.ID, quote.Request{
				PickupLocation:      "Campus Gate",
				DestinationLocation: "Terminal 2",
				Factors:             tt.factors,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrice, q.Price)
			assert.Equal(t, tt.serviceID, q.Request.ServiceID)
		})
	}
}

func TestBookingService_ComputeQuoteIsIdempotent(t *testing.T) {
	env := newTestEnv("")
	env.resolver.set("123 Main St", 10)
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)

	first, err := env.service.ComputeQuote(ctx, s.ID, parcelRequest("123 Main St", 5))
	require.NoError(t, err)
	second, err := env.service.ComputeQuote(ctx, s.ID, parcelRequest("  123 Main St ", 5))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, env.resolver.callCount())
}

func TestBookingService_IncompleteRequestStaysDraft(t *testing.T) {
	env := newTestEnv("")
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "airport-pickup")
	require.NoError(t, err)

	_, err = env.service.ComputeQuote(ctx, s.ID, quote.Request{
		PickupLocation:      "Union Station",
		DestinationLocation: "PDX",
	})
	assert.ErrorIs(t, err, quote.ErrMissingFactor)
	assert.True(t, booking.IsValidation(err))

	s, err = env.service.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusDraft, s.Status)
	assert.Equal(t, "Union Station", s.Request.PickupLocation)
	assert.Equal(t, 0, env.resolver.callCount())
}

func TestBookingService_TransientResolverFailureAllowsRetry(t *testing.T) {
	env := newTestEnv("")
	env.resolver.fail("123 Main St", distance.ErrResolverUnavailable)
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)

	_, err = env.service.ComputeQuote(ctx, s.ID, parcelRequest("123 Main St", 5))
	assert.True(t, booking.IsResolver(err))

	s, err = env.service.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusDraft, s.Status)
	assert.NotEmpty(t, s.FailureReason)

	env.resolver.set("123 Main St", 10)
	q, err := env.service.ComputeQuote(ctx, s.ID, parcelRequest("123 Main St", 5))
	require.NoError(t, err)
	assert.Equal(t, 27.50, q.Price)
}

func TestBookingService_UnresolvableLocationFailsSession(t *testing.T) {
	env := newTestEnv("")
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)

	_, err = env.service.ComputeQuote(ctx, s.ID, parcelRequest("Atlantis", 5))
	assert.ErrorIs(t, err, distance.ErrUnresolvableLocation)

	s, err = env.service.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusFailed, s.Status)

	_, err = env.service.ComputeQuote(ctx, s.ID, parcelRequest("123 Main St", 5))
	assert.ErrorIs(t, err, booking.ErrSessionClosed)
}

func TestBookingService_UnknownVehicleTierFailsSession(t *testing.T) {
	env := newTestEnv("")
	env.resolver.set("Dorm A", 4)
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "student-pickup")
	require.NoError(t, err)

	_, err = env.service.ComputeQuote(ctx, s.ID, quote.Request{
		PickupLocation:      "Dorm A",
		DestinationLocation: "Station",
		Factors:             quote.Factors{VehicleTierID: ptr("limousine")},
	})
	assert.ErrorIs(t, err, quote.ErrUnknownVehicleTier)

	s, err = env.service.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusFailed, s.Status)
	assert.Nil(t, s.Quote)
}

func TestBookingService_ResolutionTimeoutIsRetryable(t *testing.T) {
	env := newTestEnv("")
	env.resolver.set("Slow St", 10)
	env.resolver.gate("Slow St")
	env.service.SetResolveTimeout(20 * time.Millisecond)
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)

	_, err = env.service.ComputeQuote(ctx, s.ID, parcelRequest("Slow St", 1))
	assert.ErrorIs(t, err, distance.ErrResolverUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	s, err = env.service.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusDraft, s.Status)
}

func TestBookingService_MostRecentRequestWins(t *testing.T) {
	env := newTestEnv("")
	env.resolver.honorCancel = false
	env.resolver.set("Old Address", 50)
	env.resolver.set("New Address", 5)
	release := env.resolver.gate("Old Address")
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)

	staleErr := make(chan error, 1)
	go func() {
		_, err := env.service.ComputeQuote(ctx, s.ID, parcelRequest("Old Address", 1))
		staleErr <- err
	}()
	require.Equal(t, "Old Address", <-env.resolver.started)

	q, err := env.service.ComputeQuote(ctx, s.ID, parcelRequest("New Address", 1))
	require.NoError(t, err)
	assert.Equal(t, 11.50, q.Price)

	close(release)
	select {
	case err := <-staleErr:
		assert.ErrorIs(t, err, booking.ErrStaleResult)
	case <-time.After(2 * time.Second):
		t.Fatal("stale resolution never completed")
	}

	s, err = env.service.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusQuoteReady, s.Status)
	assert.Equal(t, "New Address", s.Quote.Request.PickupLocation)
	assert.Equal(t, 11.50, s.Quote.Price)
}

func TestBookingService_RequestChangeCancelsInflight(t *testing.T) {
	env := newTestEnv("")
	env.resolver.set("Old Address", 50)
	env.resolver.gate("Old Address")
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)

	s, err = env.service.SubmitQuote(ctx, s.ID, parcelRequest("Old Address", 1))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusResolvingDistance, s.Status)
	<-env.resolver.started

	s, err = env.service.UpdateRequest(ctx, s.ID, parcelRequest("New Address", 1))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusDraft, s.Status)

	assert.Eventually(t, func() bool {
		env.resolver.mu.Lock()
		defer env.resolver.mu.Unlock()
		return len(env.resolver.cancelled) == 1
	}, time.Second, 5*time.Millisecond)

	s, err = env.service.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusDraft, s.Status)
	assert.Empty(t, s.FailureReason)
}

func TestBookingService_ScheduleInPastIsRejected(t *testing.T) {
	env := newTestEnv("")
	env.resolver.set("123 Main St", 10)
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)
	_, err = env.service.ComputeQuote(ctx, s.ID, parcelRequest("123 Main St", 5))
	require.NoError(t, err)

	_, err = env.service.SelectSchedule(ctx, s.ID, schedule.Slot{Date: "2026-10-17", Time: "10:00"})
	assert.ErrorIs(t, err, schedule.ErrDateInPast)

	s, err = env.service.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusQuoteReady, s.Status)
	assert.Nil(t, s.Slot)

	_, err = env.service.SelectSchedule(ctx, s.ID, schedule.Slot{Date: "2026-10-18", Time: "08:00"})
	assert.NoError(t, err)
}

func TestBookingService_LocationChangeInvalidatesQuote(t *testing.T) {
	env := newTestEnv("")
	env.resolver.set("123 Main St", 10)
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)
	_, err = env.service.ComputeQuote(ctx, s.ID, parcelRequest("123 Main St", 5))
	require.NoError(t, err)
	_, err = env.service.SelectSchedule(ctx, s.ID, tomorrow)
	require.NoError(t, err)

	s, err = env.service.UpdateRequest(ctx, s.ID, parcelRequest("456 Oak Ave", 5))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusDraft, s.Status)
	assert.Nil(t, s.Quote)
	assert.Nil(t, s.Slot)

	_, err = env.service.ConfirmBooking(ctx, s.ID)
	assert.ErrorIs(t, err, booking.ErrQuoteRequired)

	env.resolver.set("456 Oak Ave", 12)
	q, err := env.service.ComputeQuote(ctx, s.ID, parcelRequest("456 Oak Ave", 5))
	require.NoError(t, err)
	assert.Equal(t, 31.50, q.Price)

	_, err = env.service.SelectSchedule(ctx, s.ID, tomorrow)
	require.NoError(t, err)

	record, err := env.service.ConfirmBooking(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "456 Oak Ave", record.Quote.Request.PickupLocation)
	assert.Equal(t, 12.0, record.Quote.DistanceKm)
	assert.Equal(t, 31.50, record.Quote.Price)
}

func TestBookingService_ConfirmKeepsSessionOnSaveFailure(t *testing.T) {
	env := newTestEnv("user-1")
	env.resolver.set("123 Main St", 10)
	env.service.repo = failingRepository{}
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)
	_, err = env.service.ComputeQuote(ctx, s.ID, parcelRequest("123 Main St", 5))
	require.NoError(t, err)
	_, err = env.service.SelectSchedule(ctx, s.ID, tomorrow)
	require.NoError(t, err)

	_, err = env.service.ConfirmBooking(ctx, s.ID)
	assert.Error(t, err)

	s, err = env.service.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusScheduleSelected, s.Status)
	assert.Empty(t, s.BookingID)
}

func TestBookingService_ConfirmAnonymous(t *testing.T) {
	env := newTestEnv("")
	env.resolver.set("123 Main St", 10)
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)
	_, err = env.service.ComputeQuote(ctx, s.ID, parcelRequest("123 Main St", 5))
	require.NoError(t, err)
	_, err = env.service.SelectSchedule(ctx, s.ID, tomorrow)
	require.NoError(t, err)

	record, err := env.service.ConfirmBooking(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, record.UserID)

	_, err = env.service.ConfirmBooking(ctx, s.ID)
	assert.ErrorIs(t, err, booking.ErrSessionClosed)
}

func TestBookingService_AbandonSession(t *testing.T) {
	env := newTestEnv("")
	env.resolver.set("123 Main St", 10)
	env.resolver.gate("123 Main St")
	ctx := context.Background()

	s, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)
	_, err = env.service.SubmitQuote(ctx, s.ID, parcelRequest("123 Main St", 5))
	require.NoError(t, err)
	<-env.resolver.started

	s, err = env.service.AbandonSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusAbandoned, s.Status)

	assert.Eventually(t, func() bool {
		env.resolver.mu.Lock()
		defer env.resolver.mu.Unlock()
		return len(env.resolver.cancelled) == 1
	}, time.Second, 5*time.Millisecond)

	_, err = env.service.AbandonSession(ctx, s.ID)
	assert.ErrorIs(t, err, booking.ErrSessionClosed)
}

func TestBookingService_UnknownSessionAndService(t *testing.T) {
	env := newTestEnv("")
	ctx := context.Background()

	_, err := env.service.StartSession(ctx, "furniture-moving")
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)

	_, err = env.service.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = env.service.ConfirmBooking(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBookingService_ListAndGetBookings(t *testing.T) {
	env := newTestEnv("user-1")
	ctx := context.Background()

	require.NoError(t, env.repo.SaveBooking(ctx, &storage.BookingRecord{ID: "b-1", UserID: "user-1", ConfirmedAt: env.clock.Now()}))
	require.NoError(t, env.repo.SaveBooking(ctx, &storage.BookingRecord{ID: "b-2", UserID: "user-2", ConfirmedAt: env.clock.Now()}))
	require.NoError(t, env.repo.SaveBooking(ctx, &storage.BookingRecord{ID: "b-3", ConfirmedAt: env.clock.Now()}))

	records, err := env.service.ListBookings(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b-1", records[0].ID)

	_, err = env.service.GetBooking(ctx, "b-1")
	assert.NoError(t, err)
	_, err = env.service.GetBooking(ctx, "b-2")
	assert.ErrorIs(t, err, storage.ErrBookingNotFound)
	_, err = env.service.GetBooking(ctx, "b-3")
	assert.NoError(t, err)

	anonymous := newTestEnv("")
	_, err = anonymous.service.ListBookings(ctx)
	assert.Error(t, err)
}

func TestBookingService_SweepIdleSessions(t *testing.T) {
	env := newTestEnv("")
	ctx := context.Background()

	idle, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)

	env.clock.Advance(20 * time.Minute)
	active, err := env.service.StartSession(ctx, "airport-pickup")
	require.NoError(t, err)

	removed := env.service.Sweep(ctx, 15*time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, env.service.ActiveSessionCount())

	_, err = env.service.GetSession(ctx, idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = env.service.GetSession(ctx, active.ID)
	assert.NoError(t, err)
}

func TestBookingService_SweepSkipsBusySessions(t *testing.T) {
	env := newTestEnv("user-1")
	env.resolver.set("123 Main St", 10)
	repo := &blockingRepository{
		MemoryBookingRepository: env.repo,
		entered:                 make(chan struct{}),
		release:                 make(chan struct{}),
	}
	env.service.repo = repo
	ctx := context.Background()

	busy, err := env.service.StartSession(ctx, "parcel-delivery")
	require.NoError(t, err)
	_, err = env.service.ComputeQuote(ctx, busy.ID, parcelRequest("123 Main St", 5))
	require.NoError(t, err)
	_, err = env.service.SelectSchedule(ctx, busy.ID, tomorrow)
	require.NoError(t, err)

	idle, err := env.service.StartSession(ctx, "airport-pickup")
	require.NoError(t, err)

	env.clock.Advance(time.Hour)

	confirmed := make(chan error, 1)
	go func() {
		_, err := env.service.ConfirmBooking(ctx, busy.ID)
		confirmed <- err
	}()
	<-repo.entered

	swept := make(chan int, 1)
	go func() { swept <- env.service.Sweep(ctx, 15*time.Minute) }()
	select {
	case removed := <-swept:
		assert.Equal(t, 1, removed)
	case <-time.After(time.Second):
		t.Fatal("Sweep blocked on a session waiting for storage")
	}

	started := make(chan error, 1)
	go func() {
		_, err := env.service.StartSession(ctx, "student-pickup")
		started <- err
	}()
	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("StartSession blocked while another session was confirming")
	}

	_, err = env.service.GetSession(ctx, idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	close(repo.release)
	require.NoError(t, <-confirmed)

	s, err := env.service.GetSession(ctx, busy.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, s.Status)
}
