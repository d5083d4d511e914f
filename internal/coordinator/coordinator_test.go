package coordinator

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/odai-awartani/wasselny/internal/domain/booking"
	"github.com/odai-awartani/wasselny/internal/domain/ride"
	"github.com/odai-awartani/wasselny/internal/identity"
	"github.com/odai-awartani/wasselny/internal/notify"
	"github.com/odai-awartani/wasselny/internal/seats"
	apperrors "github.com/odai-awartani/wasselny/pkg/errors"
	"github.com/odai-awartani/wasselny/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory repositories mirroring the conditional-update semantics of
// the Postgres implementations.

type memRides struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*ride.Ride
}

func newMemRides() *memRides {
	return &memRides{byID: make(map[uuid.UUID]*ride.Ride)}
}

func (m *memRides) Create(_ context.Context, r *ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

func (m *memRides) GetByID(_ context.Context, id uuid.UUID) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, ride.ErrRideNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRides) ListByDriver(_ context.Context, driverID uuid.UUID) ([]*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ride.Ride
	for _, r := range m.byID {
		if r.DriverID == driverID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRides) ListPending(_ context.Context) ([]*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ride.Ride
	for _, r := range m.byID {
		if r.Status == ride.StatusPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRides) ReserveSeat(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return ride.ErrRideNotFound
	}
	if r.AvailableSeats <= 0 {
		return ride.ErrSeatsUnavailable
	}
	r.AvailableSeats--
	return nil
}

func (m *memRides) ReleaseSeat(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return ride.ErrRideNotFound
	}
	r.AvailableSeats++
	return nil
}

func (m *memRides) ListExpired(_ context.Context, cutoff time.Time, limit int) ([]*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ride.Ride
	for _, r := range m.byID {
		if r.Status == ride.StatusPending && !r.IsRecurring() && r.ScheduledAt.Before(cutoff) {
			cp := *r
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memRides) MarkEnded(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return ride.ErrRideNotFound
	}
	r.Status = ride.StatusEnded
	return nil
}

func (m *memRides) seatsOf(t *testing.T, id uuid.UUID) int {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	require.True(t, ok)
	return r.AvailableSeats
}

type memRequests struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*booking.Request
}

func newMemRequests() *memRequests {
	return &memRequests{byID: make(map[uuid.UUID]*booking.Request)}
}

func (m *memRequests) Create(_ context.Context, req *booking.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// conditional insert, mirroring the partial unique index on
	// (ride_id, user_id) over live statuses
	for _, existing := range m.byID {
		if existing.RideID == req.RideID && existing.UserID == req.UserID && existing.Status.IsActive() {
			return booking.ErrDuplicateActive
		}
	}
	cp := *req
	m.byID[req.ID] = &cp
	return nil
}

func (m *memRequests) GetByID(_ context.Context, id uuid.UUID) (*booking.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.byID[id]
	if !ok {
		return nil, booking.ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *memRequests) GetActiveByRideAndUser(_ context.Context, rideID, userID uuid.UUID) (*booking.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.byID {
		if req.RideID == rideID && req.UserID == userID && req.Status.IsActive() {
			cp := *req
			return &cp, nil
		}
	}
	return nil, booking.ErrNoActiveRequest
}

func (m *memRequests) ListByRide(_ context.Context, rideID uuid.UUID) ([]*booking.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*booking.Request
	for _, req := range m.byID {
		if req.RideID == rideID {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRequests) UpdateStatus(_ context.Context, id uuid.UUID, from, to booking.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.byID[id]
	if !ok {
		return booking.ErrRequestNotFound
	}
	if req.Status != from {
		return booking.ErrStaleStatus
	}
	req.Status = to
	req.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memRequests) SetRating(_ context.Context, id uuid.UUID, rating int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.byID[id]
	if !ok {
		return booking.ErrRequestNotFound
	}
	if req.Status != booking.StatusCheckedOut {
		return booking.ErrStaleStatus
	}
	req.Rating = &rating
	return nil
}

func (m *memRequests) SetNotificationID(_ context.Context, id uuid.UUID, notificationID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.byID[id]
	if !ok {
		return booking.ErrRequestNotFound
	}
	req.NotificationID = notificationID
	return nil
}

func (m *memRequests) statusOf(t *testing.T, id uuid.UUID) booking.Status {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.byID[id]
	require.True(t, ok)
	return req.Status
}

func (m *memRequests) countActive(rideID, userID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, req := range m.byID {
		if req.RideID == rideID && req.UserID == userID && req.Status.IsActive() {
			n++
		}
	}
	return n
}

// staleOnce wraps memRequests and fails the first UpdateStatus with a
// stale-status error, simulating a lost compare-and-set race.
type staleOnce struct {
	*memRequests
	mu    sync.Mutex
	fired bool
}

func (s *staleOnce) UpdateStatus(ctx context.Context, id uuid.UUID, from, to booking.Status) error {
	s.mu.Lock()
	fired := s.fired
	s.fired = true
	s.mu.Unlock()
	if !fired {
		return booking.ErrStaleStatus
	}
	return s.memRequests.UpdateStatus(ctx, id, from, to)
}

type fakeIdentity struct {
	profiles map[uuid.UUID]*identity.Profile
}

func (f *fakeIdentity) Profile(_ context.Context, userID uuid.UUID) (*identity.Profile, error) {
	prof, ok := f.profiles[userID]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return prof, nil
}

type fakeGateway struct {
	mu        sync.Mutex
	sent      []notify.Payload
	scheduled map[string]time.Time
	cancelled []string
	marked    []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{scheduled: make(map[string]time.Time)}
}

func (f *fakeGateway) SendImmediate(_ context.Context, _ uuid.UUID, p notify.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeGateway) ScheduleAt(_ context.Context, id string, _ uuid.UUID, when time.Time, _ notify.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled[id] = when
	return nil
}

func (f *fakeGateway) Cancel(_ context.Context, notificationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.scheduled, notificationID)
	f.cancelled = append(f.cancelled, notificationID)
	return nil
}

func (f *fakeGateway) MarkRead(_ context.Context, _ uuid.UUID, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, kind)
	return nil
}

func (f *fakeGateway) sentTitles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	titles := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		titles = append(titles, p.Title)
	}
	return titles
}

// Test fixture

type env struct {
	coord    *Coordinator
	rides    *memRides
	requests booking.Repository
	memReqs  *memRequests
	gateway  *fakeGateway
	ident    *fakeIdentity

	driverID    uuid.UUID
	passengerID uuid.UUID
	otherID     uuid.UUID
}

func newEnv(t *testing.T, reqs booking.Repository, memReqs *memRequests) *env {
	t.Helper()

	e := &env{
		rides:       newMemRides(),
		requests:    reqs,
		memReqs:     memReqs,
		gateway:     newFakeGateway(),
		driverID:    uuid.New(),
		passengerID: uuid.New(),
		otherID:     uuid.New(),
	}

	e.ident = &fakeIdentity{profiles: map[uuid.UUID]*identity.Profile{
		e.driverID:    {ID: e.driverID, Name: "Odai", Gender: ride.GenderMale},
		e.passengerID: {ID: e.passengerID, Name: "Sara", Gender: ride.GenderFemale},
		e.otherID:     {ID: e.otherID, Name: "Khaled", Gender: ride.GenderMale},
	}}

	log := logger.NewNop()
	e.coord = New(
		e.rides,
		e.requests,
		seats.NewLedger(e.rides, log),
		e.ident,
		e.gateway,
		nil,
		nil,
		log,
		Config{
			CallTimeout:   time.Second,
			RetryAttempts: 1,
			RetryBackoff:  time.Millisecond,
			ReminderLead:  time.Hour,
		},
	)
	return e
}

func newTestEnv(t *testing.T) *env {
	reqs := newMemRequests()
	return newEnv(t, reqs, reqs)
}

func (e *env) publishRide(t *testing.T, seatCount int, gender ride.Gender, scheduledAt time.Time) *ride.Ride {
	t.Helper()
	rd, err := e.coord.PublishRide(context.Background(), PublishRideInput{
		DriverID:       e.driverID,
		Origin:         ride.Location{Address: "Ramallah"},
		Destination:    ride.Location{Address: "Nablus"},
		ScheduledAt:    scheduledAt,
		AvailableSeats: seatCount,
		RequiredGender: gender,
	})
	require.NoError(t, err)
	return rd
}

func (e *env) bookAndAccept(t *testing.T, rideID, userID uuid.UUID) *booking.Request {
	t.Helper()
	ctx := context.Background()
	req, err := e.coord.Book(ctx, rideID, userID)
	require.NoError(t, err)
	require.NoError(t, e.coord.Accept(ctx, req.ID, e.driverID))
	return req
}

func TestPublishRide_Validation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.coord.PublishRide(ctx, PublishRideInput{
		DriverID:       e.driverID,
		AvailableSeats: 0,
		RequiredGender: ride.GenderEither,
	})
	assert.Error(t, err)

	_, err = e.coord.PublishRide(ctx, PublishRideInput{
		DriverID:       e.driverID,
		AvailableSeats: 2,
		RequiredGender: ride.Gender("robot"),
	})
	assert.Error(t, err)
}

func TestBook_CreatesWaitingRequest(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 3, ride.GenderEither, time.Now().Add(2*time.Hour))

	req, err := e.coord.Book(context.Background(), rd.ID, e.passengerID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusWaiting, req.Status)
	assert.Equal(t, e.driverID, req.DriverID)

	// booking alone must not touch the seat counter
	assert.Equal(t, 3, e.rides.seatsOf(t, rd.ID))
	assert.Contains(t, e.gateway.sentTitles(), "New ride request")
}

func TestBook_SelfBookingForbidden(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 3, ride.GenderEither, time.Now().Add(2*time.Hour))

	_, err := e.coord.Book(context.Background(), rd.ID, e.driverID)
	assert.ErrorIs(t, err, apperrors.ErrSelfBookingForbidden)
}

func TestBook_GenderRestriction(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 3, ride.GenderFemale, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	_, err := e.coord.Book(ctx, rd.ID, e.otherID)
	assert.ErrorIs(t, err, apperrors.ErrGenderMismatch)

	_, err = e.coord.Book(ctx, rd.ID, e.passengerID)
	assert.NoError(t, err)
}

func TestBook_DuplicateActiveRequest(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 3, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	req, err := e.coord.Book(ctx, rd.ID, e.passengerID)
	require.NoError(t, err)

	_, err = e.coord.Book(ctx, rd.ID, e.passengerID)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRequest)

	// a terminal request frees the slot for a fresh one
	require.NoError(t, e.coord.Cancel(ctx, req.ID, e.passengerID))
	_, err = e.coord.Book(ctx, rd.ID, e.passengerID)
	assert.NoError(t, err)
}

func TestBook_EndedRideRejected(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 3, ride.GenderEither, time.Now().Add(2*time.Hour))
	require.NoError(t, e.rides.MarkEnded(context.Background(), rd.ID))

	_, err := e.coord.Book(context.Background(), rd.ID, e.passengerID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestBook_UnknownRide(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.coord.Book(context.Background(), uuid.New(), e.passengerID)
	assert.ErrorIs(t, err, apperrors.ErrRideNotFound)
}

func TestAccept_DriverOnly(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 3, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	req, err := e.coord.Book(ctx, rd.ID, e.passengerID)
	require.NoError(t, err)

	err = e.coord.Accept(ctx, req.ID, e.otherID)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, booking.StatusWaiting, e.memReqs.statusOf(t, req.ID))
}

func TestAccept_SchedulesReminder(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 3, ride.GenderEither, time.Now().Add(3*time.Hour))
	ctx := context.Background()

	req, err := e.coord.Book(ctx, rd.ID, e.passengerID)
	require.NoError(t, err)
	require.NoError(t, e.coord.Accept(ctx, req.ID, e.driverID))

	assert.Equal(t, booking.StatusAccepted, e.memReqs.statusOf(t, req.ID))
	// one reminder for the passenger, one for the driver
	assert.Len(t, e.gateway.scheduled, 2)

	stored, err := e.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.NotificationID)
}

func TestAccept_SkipsReminderForImminentDeparture(t *testing.T) {
	e := newTestEnv(t)
	// departure inside the reminder lead window
	rd := e.publishRide(t, 3, ride.GenderEither, time.Now().Add(10*time.Minute))
	ctx := context.Background()

	req, err := e.coord.Book(ctx, rd.ID, e.passengerID)
	require.NoError(t, err)
	require.NoError(t, e.coord.Accept(ctx, req.ID, e.driverID))

	assert.Empty(t, e.gateway.scheduled)
}

func TestAccept_InvalidFromState(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 3, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	req := e.bookAndAccept(t, rd.ID, e.passengerID)

	err := e.coord.Accept(ctx, req.ID, e.driverID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestReject_NotifiesPassenger(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 3, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	req, err := e.coord.Book(ctx, rd.ID, e.passengerID)
	require.NoError(t, err)
	require.NoError(t, e.coord.Reject(ctx, req.ID, e.driverID))

	assert.Equal(t, booking.StatusRejected, e.memReqs.statusOf(t, req.ID))
	assert.Contains(t, e.gateway.sentTitles(), "Request declined")
}

func TestCheckIn_ConsumesSeat(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 2, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	req := e.bookAndAccept(t, rd.ID, e.passengerID)
	require.NoError(t, e.coord.CheckIn(ctx, req.ID, e.passengerID))

	assert.Equal(t, booking.StatusCheckedIn, e.memReqs.statusOf(t, req.ID))
	assert.Equal(t, 1, e.rides.seatsOf(t, rd.ID))
}

func TestCheckIn_WrongActor(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 2, ride.GenderEither, time.Now().Add(2*time.Hour))

	req := e.bookAndAccept(t, rd.ID, e.passengerID)
	err := e.coord.CheckIn(context.Background(), req.ID, e.otherID)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, 2, e.rides.seatsOf(t, rd.ID))
}

func TestCheckIn_LastSeatRace(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 1, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	first := e.bookAndAccept(t, rd.ID, e.passengerID)
	second := e.bookAndAccept(t, rd.ID, e.otherID)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []struct {
		reqID  uuid.UUID
		userID uuid.UUID
	}{
		{first.ID, e.passengerID},
		{second.ID, e.otherID},
	} {
		wg.Add(1)
		go func(reqID, userID uuid.UUID) {
			defer wg.Done()
			results <- e.coord.CheckIn(ctx, reqID, userID)
		}(id.reqID, id.userID)
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		if err == nil {
			won++
		} else {
			lost++
			assert.ErrorIs(t, err, apperrors.ErrSeatsUnavailable)
		}
	}
	assert.Equal(t, 1, won, "exactly one check-in wins the last seat")
	assert.Equal(t, 1, lost)
	assert.Equal(t, 0, e.rides.seatsOf(t, rd.ID))

	// the loser keeps its accepted status and may cancel normally
	statuses := []booking.Status{
		e.memReqs.statusOf(t, first.ID),
		e.memReqs.statusOf(t, second.ID),
	}
	assert.Contains(t, statuses, booking.StatusCheckedIn)
	assert.Contains(t, statuses, booking.StatusAccepted)
}

func TestCheckIn_ReturnsSeatWhenStatusRaceLost(t *testing.T) {
	memReqs := newMemRequests()
	e := newEnv(t, &staleOnce{memRequests: memReqs}, memReqs)
	rd := e.publishRide(t, 2, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	// Book and Accept go through the staleOnce wrapper too, so burn its
	// single failure before driving the check-in path.
	req, err := e.coord.Book(ctx, rd.ID, e.passengerID)
	require.NoError(t, err)
	err = e.coord.Accept(ctx, req.ID, e.driverID)
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	require.NoError(t, e.coord.Accept(ctx, req.ID, e.driverID))

	wrapper := e.requests.(*staleOnce)
	wrapper.mu.Lock()
	wrapper.fired = false
	wrapper.mu.Unlock()

	err = e.coord.CheckIn(ctx, req.ID, e.passengerID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	// seat taken before the compare-and-set must be handed back
	assert.Equal(t, 2, e.rides.seatsOf(t, rd.ID))
	assert.Equal(t, booking.StatusAccepted, memReqs.statusOf(t, req.ID))
}

func TestCancel_BeforeAcceptance(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 2, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	req, err := e.coord.Book(ctx, rd.ID, e.passengerID)
	require.NoError(t, err)
	require.NoError(t, e.coord.Cancel(ctx, req.ID, e.passengerID))

	assert.Equal(t, booking.StatusCancelled, e.memReqs.statusOf(t, req.ID))
	assert.Equal(t, 2, e.rides.seatsOf(t, rd.ID))
}

func TestCancel_FromAccepted_SeatsUnchangedAndReminderRevoked(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 2, ride.GenderEither, time.Now().Add(3*time.Hour))
	ctx := context.Background()

	req := e.bookAndAccept(t, rd.ID, e.passengerID)
	require.NoError(t, e.coord.Cancel(ctx, req.ID, e.passengerID))

	// no seat was consumed at acceptance, so none comes back
	assert.Equal(t, 2, e.rides.seatsOf(t, rd.ID))
	assert.Equal(t, booking.StatusCancelled, e.memReqs.statusOf(t, req.ID))

	// both the passenger's and the driver's reminders are revoked
	assert.Len(t, e.gateway.cancelled, 2)
	assert.Empty(t, e.gateway.scheduled)

	stored, err := e.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.NotificationID)
}

func TestCancel_FromCheckedIn_ReleasesSeat(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 2, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	req := e.bookAndAccept(t, rd.ID, e.passengerID)
	require.NoError(t, e.coord.CheckIn(ctx, req.ID, e.passengerID))
	require.Equal(t, 1, e.rides.seatsOf(t, rd.ID))

	require.NoError(t, e.coord.Cancel(ctx, req.ID, e.passengerID))
	assert.Equal(t, 2, e.rides.seatsOf(t, rd.ID))
}

func TestCancel_TerminalRequest(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 2, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	req, err := e.coord.Book(ctx, rd.ID, e.passengerID)
	require.NoError(t, err)
	require.NoError(t, e.coord.Cancel(ctx, req.ID, e.passengerID))

	err = e.coord.Cancel(ctx, req.ID, e.passengerID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestCheckOut_PromptsRating(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 2, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	req := e.bookAndAccept(t, rd.ID, e.passengerID)
	require.NoError(t, e.coord.CheckIn(ctx, req.ID, e.passengerID))
	require.NoError(t, e.coord.CheckOut(ctx, req.ID, e.passengerID))

	assert.Equal(t, booking.StatusCheckedOut, e.memReqs.statusOf(t, req.ID))
	titles := e.gateway.sentTitles()
	assert.Contains(t, titles, "Passenger checked out")
	assert.Contains(t, titles, "How was your ride?")

	// check-out keeps the seat: the passenger rode, the ride ended
	assert.Equal(t, 1, e.rides.seatsOf(t, rd.ID))
}

func TestRate_OnlyAfterCheckOut(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 2, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	req := e.bookAndAccept(t, rd.ID, e.passengerID)
	err := e.coord.Rate(ctx, req.ID, e.passengerID, 5)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	require.NoError(t, e.coord.CheckIn(ctx, req.ID, e.passengerID))
	require.NoError(t, e.coord.CheckOut(ctx, req.ID, e.passengerID))
	require.NoError(t, e.coord.Rate(ctx, req.ID, e.passengerID, 4))

	stored, err := e.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Rating)
	assert.Equal(t, 4, *stored.Rating)
}

func TestRate_Bounds(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	for _, rating := range []int{0, -1, 6} {
		err := e.coord.Rate(ctx, uuid.New(), e.passengerID, rating)
		assert.ErrorIs(t, err, apperrors.ErrInvalidRating)
	}
}

// blindLookup hides existing requests from the pre-insert lookup so
// racing books both reach Create, leaving the conditional insert as
// the only line of defense.
type blindLookup struct {
	*memRequests
}

func (b *blindLookup) GetActiveByRideAndUser(context.Context, uuid.UUID, uuid.UUID) (*booking.Request, error) {
	return nil, booking.ErrNoActiveRequest
}

func TestBook_ConcurrentDoubleBook(t *testing.T) {
	memReqs := newMemRequests()
	e := newEnv(t, &blindLookup{memRequests: memReqs}, memReqs)
	rd := e.publishRide(t, 3, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.coord.Book(ctx, rd.ID, e.passengerID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		if err == nil {
			won++
		} else {
			lost++
			assert.ErrorIs(t, err, apperrors.ErrDuplicateRequest)
		}
	}
	assert.Equal(t, 1, won, "exactly one book wins the insert race")
	assert.Equal(t, 1, lost)
	assert.Equal(t, 1, memReqs.countActive(rd.ID, e.passengerID))
}

func TestLifecycle_RandomizedConcurrentSequences(t *testing.T) {
	e := newTestEnv(t)
	const seatCount = 4
	const passengers = 12
	rd := e.publishRide(t, seatCount, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	ids := make([]uuid.UUID, passengers)
	reqs := make([]*booking.Request, passengers)
	for i := range ids {
		ids[i] = uuid.New()
		e.ident.profiles[ids[i]] = &identity.Profile{ID: ids[i], Name: "Rider", Gender: ride.GenderMale}
		reqs[i] = e.bookAndAccept(t, rd.ID, ids[i])
	}

	var wg sync.WaitGroup
	for i := 0; i < passengers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(i)))
			for step := 0; step < 4; step++ {
				var err error
				switch rng.Intn(3) {
				case 0:
					err = e.coord.CheckIn(ctx, reqs[i].ID, ids[i])
				case 1:
					err = e.coord.Cancel(ctx, reqs[i].ID, ids[i])
				case 2:
					err = e.coord.CheckOut(ctx, reqs[i].ID, ids[i])
				}
				if err != nil &&
					!errors.Is(err, apperrors.ErrSeatsUnavailable) &&
					!errors.Is(err, apperrors.ErrInvalidTransition) {
					t.Errorf("unexpected error from randomized action: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	// every request that boarded holds a seat until a post-check-in
	// cancel releases it; check-out keeps it consumed
	consumed := 0
	for i := range reqs {
		switch e.memReqs.statusOf(t, reqs[i].ID) {
		case booking.StatusCheckedIn, booking.StatusCheckedOut:
			consumed++
		}
	}
	left := e.rides.seatsOf(t, rd.ID)
	assert.GreaterOrEqual(t, left, 0, "seat counter must never go negative")
	assert.LessOrEqual(t, consumed, seatCount)
	assert.Equal(t, seatCount, left+consumed, "seats on hand plus seats held must equal capacity")
}

func TestRate_PassengerOnly(t *testing.T) {
	e := newTestEnv(t)
	rd := e.publishRide(t, 2, ride.GenderEither, time.Now().Add(2*time.Hour))
	ctx := context.Background()

	req := e.bookAndAccept(t, rd.ID, e.passengerID)
	require.NoError(t, e.coord.CheckIn(ctx, req.ID, e.passengerID))
	require.NoError(t, e.coord.CheckOut(ctx, req.ID, e.passengerID))

	err := e.coord.Rate(ctx, req.ID, e.driverID, 5)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}
