package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/odai-awartani/wasselny/internal/domain/booking"
	"github.com/odai-awartani/wasselny/internal/domain/ride"
	"github.com/odai-awartani/wasselny/internal/events"
	"github.com/odai-awartani/wasselny/internal/identity"
	"github.com/odai-awartani/wasselny/internal/notify"
	"github.com/odai-awartani/wasselny/internal/seats"
	apperrors "github.com/odai-awartani/wasselny/pkg/errors"
	"github.com/odai-awartani/wasselny/pkg/logger"
	"github.com/odai-awartani/wasselny/pkg/websocket"
)

// Pusher pushes state changes to connected UI clients. The websocket
// hub satisfies it; a nil Pusher disables pushes.
type Pusher interface {
	SendToUser(userID string, message websocket.Message)
	BroadcastToRide(rideID string, message websocket.Message)
}

// Config tunes the coordinator's I/O behavior
type Config struct {
	CallTimeout   time.Duration // bound on each storage call
	RetryAttempts int           // bounded retries on transient failures
	RetryBackoff  time.Duration
	ReminderLead  time.Duration // reminders fire this long before departure
}

// Coordinator orchestrates the booking lifecycle. Every operation
// reads fresh state, validates the transition, writes it with a
// compare-and-set, and only then fires best-effort notifications. No
// in-process lock is held across any I/O call.
type Coordinator struct {
	rides     ride.Repository
	requests  booking.Repository
	ledger    *seats.Ledger
	identity  identity.Provider
	notifier  notify.Gateway
	pusher    Pusher
	publisher events.Publisher
	logger    *logger.Logger
	cfg       Config
}

// New creates a lifecycle coordinator
func New(
	rides ride.Repository,
	requests booking.Repository,
	ledger *seats.Ledger,
	identityProvider identity.Provider,
	notifier notify.Gateway,
	pusher Pusher,
	publisher events.Publisher,
	log *logger.Logger,
	cfg Config,
) *Coordinator {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	return &Coordinator{
		rides:     rides,
		requests:  requests,
		ledger:    ledger,
		identity:  identityProvider,
		notifier:  notifier,
		pusher:    pusher,
		publisher: publisher,
		logger:    log,
		cfg:       cfg,
	}
}

// PublishRideInput is the driver's new-ride submission
type PublishRideInput struct {
	DriverID       uuid.UUID
	Origin         ride.Location
	Destination    ride.Location
	ScheduledAt    time.Time
	Recurrence     []ride.Weekday
	AvailableSeats int
	RequiredGender ride.Gender
	Rules          ride.Rules
}

// PublishRide creates a new pending ride offer
func (c *Coordinator) PublishRide(ctx context.Context, in PublishRideInput) (*ride.Ride, error) {
	if in.AvailableSeats < 1 {
		return nil, apperrors.BadRequest("A ride needs at least one seat", nil)
	}
	if !in.RequiredGender.IsValid() {
		return nil, apperrors.BadRequest("Unknown gender restriction", nil)
	}

	now := time.Now().UTC()
	rd := &ride.Ride{
		ID:             uuid.New(),
		DriverID:       in.DriverID,
		Origin:         in.Origin,
		Destination:    in.Destination,
		ScheduledAt:    in.ScheduledAt.UTC(),
		Recurrence:     in.Recurrence,
		AvailableSeats: in.AvailableSeats,
		RequiredGender: in.RequiredGender,
		Rules:          in.Rules,
		Status:         ride.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := c.withRetry(ctx, func(callCtx context.Context) error {
		return c.rides.Create(callCtx, rd)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Ride published",
		logger.String("ride_id", rd.ID.String()),
		logger.String("driver_id", rd.DriverID.String()),
		logger.Int("seats", rd.AvailableSeats),
		logger.Bool("recurring", rd.IsRecurring()),
	)
	return rd, nil
}

// Book creates a waiting request for a passenger on a ride
func (c *Coordinator) Book(ctx context.Context, rideID, userID uuid.UUID) (*booking.Request, error) {
	defer c.observe("book", time.Now())

	rd, err := c.loadRide(ctx, rideID)
	if err != nil {
		c.count("book", err)
		return nil, err
	}

	if !rd.IsBookable() {
		c.count("book", apperrors.ErrInvalidTransition)
		return nil, apperrors.ErrInvalidTransition
	}
	if rd.DriverID == userID {
		c.count("book", apperrors.ErrSelfBookingForbidden)
		return nil, apperrors.ErrSelfBookingForbidden
	}

	prof, err := c.loadProfile(ctx, userID)
	if err != nil {
		c.count("book", err)
		return nil, err
	}
	if !rd.RequiredGender.Allows(prof.Gender) {
		c.count("book", apperrors.ErrGenderMismatch)
		return nil, apperrors.ErrGenderMismatch
	}

	// one live request per (ride, user); terminal requests may be
	// followed by a fresh one. The lookup is an early rejection only,
	// the insert below holds the invariant under races.
	err = c.withRetry(ctx, func(callCtx context.Context) error {
		_, lookupErr := c.requests.GetActiveByRideAndUser(callCtx, rideID, userID)
		return lookupErr
	})
	if err == nil {
		c.count("book", apperrors.ErrDuplicateRequest)
		return nil, apperrors.ErrDuplicateRequest
	}
	if err != booking.ErrNoActiveRequest {
		c.count("book", err)
		return nil, c.storageErr(err)
	}

	now := time.Now().UTC()
	req := &booking.Request{
		ID:        uuid.New(),
		RideID:    rideID,
		UserID:    userID,
		DriverID:  rd.DriverID,
		Status:    booking.StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = c.withRetry(ctx, func(callCtx context.Context) error {
		return c.requests.Create(callCtx, req)
	})
	if err == booking.ErrDuplicateActive {
		// another book for the same (ride, user) won the insert race
		c.count("book", apperrors.ErrDuplicateRequest)
		return nil, apperrors.ErrDuplicateRequest
	}
	if err != nil {
		c.count("book", err)
		return nil, c.storageErr(err)
	}

	c.count("book", nil)
	c.notifyUser(ctx, rd.DriverID, notify.Payload{
		Title: "New ride request",
		Body:  prof.Name + " wants to join your ride",
		Data:  requestData(req),
	})
	c.pushChange(req, "request_created")
	c.publishRequest(ctx, events.TopicRequestCreated, req)

	c.logger.Info("Ride booked",
		logger.String("request_id", req.ID.String()),
		logger.String("ride_id", rideID.String()),
		logger.String("user_id", userID.String()),
	)
	return req, nil
}

// Accept lets the ride's driver approve a waiting request
func (c *Coordinator) Accept(ctx context.Context, requestID, actorID uuid.UUID) error {
	defer c.observe("accept", time.Now())

	req, rd, err := c.loadRequestAndRide(ctx, requestID)
	if err != nil {
		c.count("accept", err)
		return err
	}
	if rd.DriverID != actorID {
		c.count("accept", apperrors.ErrUnauthorized)
		return apperrors.ErrUnauthorized
	}

	if err := c.transition(ctx, req, booking.ActionAccept); err != nil {
		c.count("accept", err)
		return err
	}

	c.count("accept", nil)
	c.scheduleReminders(ctx, req, rd)
	c.markRead(ctx, rd.DriverID, "ride_request")
	c.notifyUser(ctx, req.UserID, notify.Payload{
		Title: "Request accepted",
		Body:  "The driver accepted your request. Check in when you board.",
		Data:  requestData(req),
	})
	c.pushChange(req, "request_accepted")
	c.publishRequest(ctx, events.TopicRequestAccepted, req)
	return nil
}

// Reject lets the ride's driver decline a waiting request
func (c *Coordinator) Reject(ctx context.Context, requestID, actorID uuid.UUID) error {
	defer c.observe("reject", time.Now())

	req, rd, err := c.loadRequestAndRide(ctx, requestID)
	if err != nil {
		c.count("reject", err)
		return err
	}
	if rd.DriverID != actorID {
		c.count("reject", apperrors.ErrUnauthorized)
		return apperrors.ErrUnauthorized
	}

	if err := c.transition(ctx, req, booking.ActionReject); err != nil {
		c.count("reject", err)
		return err
	}

	c.count("reject", nil)
	c.markRead(ctx, rd.DriverID, "ride_request")
	c.notifyUser(ctx, req.UserID, notify.Payload{
		Title: "Request declined",
		Body:  "The driver declined your request for this ride.",
		Data:  requestData(req),
	})
	c.pushChange(req, "request_rejected")
	c.publishRequest(ctx, events.TopicRequestRejected, req)
	return nil
}

// CheckIn marks the passenger as on board, consuming a seat. The seat
// is taken first with a conditional decrement; if the status write
// then loses a race, the seat is returned.
func (c *Coordinator) CheckIn(ctx context.Context, requestID, actorID uuid.UUID) error {
	defer c.observe("check_in", time.Now())

	req, err := c.loadRequest(ctx, requestID)
	if err != nil {
		c.count("check_in", err)
		return err
	}
	if req.UserID != actorID {
		c.count("check_in", apperrors.ErrUnauthorized)
		return apperrors.ErrUnauthorized
	}
	next, err := booking.Next(booking.ActionCheckIn, req.Status)
	if err != nil {
		c.count("check_in", apperrors.ErrInvalidTransition)
		return apperrors.ErrInvalidTransition
	}

	err = c.withRetry(ctx, func(callCtx context.Context) error {
		return c.ledger.Reserve(callCtx, req.RideID)
	})
	if err != nil {
		mapped := c.seatErr(err)
		c.count("check_in", mapped)
		return mapped
	}

	err = c.withRetry(ctx, func(callCtx context.Context) error {
		return c.requests.UpdateStatus(callCtx, req.ID, req.Status, next)
	})
	if err != nil {
		// lost the race after taking the seat; hand it back
		releaseErr := c.withRetry(ctx, func(callCtx context.Context) error {
			return c.ledger.Release(callCtx, req.RideID)
		})
		if releaseErr != nil {
			c.logger.Error("Failed to release seat after lost check-in race",
				logger.String("request_id", req.ID.String()),
				logger.String("ride_id", req.RideID.String()),
				logger.Err(releaseErr),
			)
		}
		if err == booking.ErrStaleStatus {
			c.count("check_in", apperrors.ErrInvalidTransition)
			return apperrors.ErrInvalidTransition
		}
		c.count("check_in", err)
		return c.storageErr(err)
	}
	req.Status = next

	c.count("check_in", nil)
	c.notifyUser(ctx, req.DriverID, notify.Payload{
		Title: "Passenger checked in",
		Body:  "A passenger has boarded your ride.",
		Data:  requestData(req),
	})
	c.pushChange(req, "request_checked_in")
	c.publishRequest(ctx, events.TopicCheckedIn, req)
	return nil
}

// CheckOut completes the passenger's ride segment and prompts a rating
func (c *Coordinator) CheckOut(ctx context.Context, requestID, actorID uuid.UUID) error {
	defer c.observe("check_out", time.Now())

	req, err := c.loadRequest(ctx, requestID)
	if err != nil {
		c.count("check_out", err)
		return err
	}
	if req.UserID != actorID {
		c.count("check_out", apperrors.ErrUnauthorized)
		return apperrors.ErrUnauthorized
	}

	if err := c.transition(ctx, req, booking.ActionCheckOut); err != nil {
		c.count("check_out", err)
		return err
	}

	c.count("check_out", nil)
	c.cancelReminder(ctx, req)
	c.notifyUser(ctx, req.DriverID, notify.Payload{
		Title: "Passenger checked out",
		Body:  "A passenger completed their ride segment.",
		Data:  requestData(req),
	})
	c.notifyUser(ctx, req.UserID, notify.Payload{
		Title: "How was your ride?",
		Body:  "Rate your driver from 1 to 5 stars.",
		Data:  requestData(req),
	})
	c.pushChange(req, "request_checked_out")
	c.publishRequest(ctx, events.TopicCheckedOut, req)
	return nil
}

// Cancel withdraws the passenger's request. A seat is returned only
// when one was actually consumed, i.e. the request was checked in.
func (c *Coordinator) Cancel(ctx context.Context, requestID, actorID uuid.UUID) error {
	defer c.observe("cancel", time.Now())

	req, err := c.loadRequest(ctx, requestID)
	if err != nil {
		c.count("cancel", err)
		return err
	}
	if req.UserID != actorID {
		c.count("cancel", apperrors.ErrUnauthorized)
		return apperrors.ErrUnauthorized
	}

	hadSeat := req.HasReservedSeat()

	if err := c.transition(ctx, req, booking.ActionCancel); err != nil {
		c.count("cancel", err)
		return err
	}

	if hadSeat {
		err = c.withRetry(ctx, func(callCtx context.Context) error {
			return c.ledger.Release(callCtx, req.RideID)
		})
		if err != nil {
			c.logger.Error("Failed to release seat on cancellation",
				logger.String("request_id", req.ID.String()),
				logger.String("ride_id", req.RideID.String()),
				logger.Err(err),
			)
		}
	}

	c.count("cancel", nil)
	c.cancelReminder(ctx, req)
	c.notifyUser(ctx, req.DriverID, notify.Payload{
		Title: "Request cancelled",
		Body:  "A passenger cancelled their request on your ride.",
		Data:  requestData(req),
	})
	c.pushChange(req, "request_cancelled")
	c.publishRequest(ctx, events.TopicCancelled, req)
	return nil
}

// Rate attaches a 1-5 rating to a checked-out request
func (c *Coordinator) Rate(ctx context.Context, requestID, actorID uuid.UUID, rating int) error {
	defer c.observe("rate", time.Now())

	if rating < 1 || rating > 5 {
		c.count("rate", apperrors.ErrInvalidRating)
		return apperrors.ErrInvalidRating
	}

	req, err := c.loadRequest(ctx, requestID)
	if err != nil {
		c.count("rate", err)
		return err
	}
	if req.UserID != actorID {
		c.count("rate", apperrors.ErrUnauthorized)
		return apperrors.ErrUnauthorized
	}
	if _, err := booking.Next(booking.ActionRate, req.Status); err != nil {
		c.count("rate", apperrors.ErrInvalidTransition)
		return apperrors.ErrInvalidTransition
	}

	err = c.withRetry(ctx, func(callCtx context.Context) error {
		return c.requests.SetRating(callCtx, req.ID, rating)
	})
	if err == booking.ErrStaleStatus {
		c.count("rate", apperrors.ErrInvalidTransition)
		return apperrors.ErrInvalidTransition
	}
	if err != nil {
		c.count("rate", err)
		return c.storageErr(err)
	}
	req.Rating = &rating

	c.count("rate", nil)
	c.notifyUser(ctx, req.DriverID, notify.Payload{
		Title: "You received a rating",
		Body:  "A passenger rated their ride with you.",
		Data:  requestData(req),
	})
	c.publishRated(ctx, req, rating)
	return nil
}
