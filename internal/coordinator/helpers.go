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
	"github.com/odai-awartani/wasselny/internal/observability"
	apperrors "github.com/odai-awartani/wasselny/pkg/errors"
	"github.com/odai-awartani/wasselny/pkg/logger"
	"github.com/odai-awartani/wasselny/pkg/websocket"
)

// withRetry runs op with a per-call timeout, retrying a bounded number
// of times on transient failures. Validation errors return immediately.
func (c *Coordinator) withRetry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		err = op(callCtx)
		cancel()

		if err == nil || !apperrors.IsTransient(err) {
			return err
		}

		c.logger.Warn("Transient storage failure, retrying",
			logger.Int("attempt", attempt+1),
			logger.Err(err),
		)

		select {
		case <-ctx.Done():
			return apperrors.Transient(ctx.Err())
		case <-time.After(c.cfg.RetryBackoff << attempt):
		}
	}
	return apperrors.Transient(err)
}

// transition performs validate-then-CAS for actions without seat side
// effects. req.Status is advanced on success.
func (c *Coordinator) transition(ctx context.Context, req *booking.Request, action booking.Action) error {
	next, err := booking.Next(action, req.Status)
	if err != nil {
		return apperrors.ErrInvalidTransition
	}

	err = c.withRetry(ctx, func(callCtx context.Context) error {
		return c.requests.UpdateStatus(callCtx, req.ID, req.Status, next)
	})
	if err == booking.ErrStaleStatus {
		// another actor moved the request first
		return apperrors.ErrInvalidTransition
	}
	if err != nil {
		return c.storageErr(err)
	}

	req.Status = next
	req.UpdatedAt = time.Now().UTC()
	return nil
}

func (c *Coordinator) loadRide(ctx context.Context, rideID uuid.UUID) (*ride.Ride, error) {
	var rd *ride.Ride
	err := c.withRetry(ctx, func(callCtx context.Context) error {
		var loadErr error
		rd, loadErr = c.rides.GetByID(callCtx, rideID)
		return loadErr
	})
	if err == ride.ErrRideNotFound {
		return nil, apperrors.ErrRideNotFound
	}
	if err != nil {
		return nil, c.storageErr(err)
	}
	return rd, nil
}

func (c *Coordinator) loadRequest(ctx context.Context, requestID uuid.UUID) (*booking.Request, error) {
	var req *booking.Request
	err := c.withRetry(ctx, func(callCtx context.Context) error {
		var loadErr error
		req, loadErr = c.requests.GetByID(callCtx, requestID)
		return loadErr
	})
	if err == booking.ErrRequestNotFound {
		return nil, apperrors.ErrRequestNotFound
	}
	if err != nil {
		return nil, c.storageErr(err)
	}
	return req, nil
}

func (c *Coordinator) loadRequestAndRide(ctx context.Context, requestID uuid.UUID) (*booking.Request, *ride.Ride, error) {
	req, err := c.loadRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	rd, err := c.loadRide(ctx, req.RideID)
	if err != nil {
		return nil, nil, err
	}
	return req, rd, nil
}

func (c *Coordinator) loadProfile(ctx context.Context, userID uuid.UUID) (*identity.Profile, error) {
	var prof *identity.Profile
	err := c.withRetry(ctx, func(callCtx context.Context) error {
		var loadErr error
		prof, loadErr = c.identity.Profile(callCtx, userID)
		return loadErr
	})
	if err == identity.ErrUserNotFound {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, c.storageErr(err)
	}
	return prof, nil
}

// storageErr maps unclassified storage failures into the taxonomy
func (c *Coordinator) storageErr(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	if apperrors.IsTransient(err) {
		return apperrors.Transient(err)
	}
	return apperrors.Internal("storage operation failed", err)
}

func (c *Coordinator) seatErr(err error) error {
	switch err {
	case ride.ErrSeatsUnavailable:
		return apperrors.ErrSeatsUnavailable
	case ride.ErrRideNotFound:
		return apperrors.ErrRideNotFound
	default:
		return c.storageErr(err)
	}
}

// notifyUser delivers a push best-effort; failures are logged and
// counted, never propagated.
func (c *Coordinator) notifyUser(ctx context.Context, userID uuid.UUID, p notify.Payload) {
	if c.notifier == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	if err := c.notifier.SendImmediate(callCtx, userID, p); err != nil {
		c.logger.Warn("Notification delivery failed",
			logger.String("user_id", userID.String()),
			logger.String("title", p.Title),
			logger.Err(err),
		)
	}
}

func (c *Coordinator) markRead(ctx context.Context, userID uuid.UUID, kind string) {
	if c.notifier == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	if err := c.notifier.MarkRead(callCtx, userID, kind); err != nil {
		c.logger.Warn("Failed to mark notifications read",
			logger.String("user_id", userID.String()),
			logger.String("kind", kind),
			logger.Err(err),
		)
	}
}

// driverReminderID derives the driver-side reminder id from the
// stored passenger reminder id, so one handle revokes both entries.
func driverReminderID(id string) string {
	return id + ":driver"
}

// scheduleReminders registers departure reminders for both parties.
// The passenger's reminder id is stored on the request; the driver's
// entry lives under a derived id so a later cancel revokes both.
func (c *Coordinator) scheduleReminders(ctx context.Context, req *booking.Request, rd *ride.Ride) {
	if c.notifier == nil {
		return
	}

	due := rd.ScheduledAt.Add(-c.cfg.ReminderLead)
	if due.Before(time.Now()) {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	reminderID := uuid.NewString()
	err := c.notifier.ScheduleAt(callCtx, reminderID, req.UserID, due, notify.Payload{
		Title: "Upcoming ride",
		Body:  "Your ride departs soon. Don't forget to check in.",
		Data:  requestData(req),
	})
	if err != nil {
		c.logger.Warn("Failed to schedule passenger reminder",
			logger.String("request_id", req.ID.String()),
			logger.Err(err),
		)
		return
	}

	req.NotificationID = &reminderID
	if storeErr := c.withRetry(ctx, func(cc context.Context) error {
		return c.requests.SetNotificationID(cc, req.ID, &reminderID)
	}); storeErr != nil {
		c.logger.Warn("Failed to store reminder id",
			logger.String("request_id", req.ID.String()),
			logger.Err(storeErr),
		)
	}

	if err := c.notifier.ScheduleAt(callCtx, driverReminderID(reminderID), req.DriverID, due, notify.Payload{
		Title: "Upcoming ride",
		Body:  "Your ride departs soon. A passenger is expecting you.",
		Data:  requestData(req),
	}); err != nil {
		c.logger.Warn("Failed to schedule driver reminder",
			logger.String("request_id", req.ID.String()),
			logger.Err(err),
		)
	}
}

// cancelReminder revokes both parties' pending reminders, if any
func (c *Coordinator) cancelReminder(ctx context.Context, req *booking.Request) {
	if c.notifier == nil || req.NotificationID == nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	if err := c.notifier.Cancel(callCtx, *req.NotificationID); err != nil {
		c.logger.Warn("Failed to cancel scheduled reminder",
			logger.String("request_id", req.ID.String()),
			logger.String("notification_id", *req.NotificationID),
			logger.Err(err),
		)
		return
	}
	if err := c.notifier.Cancel(callCtx, driverReminderID(*req.NotificationID)); err != nil {
		c.logger.Warn("Failed to cancel driver reminder",
			logger.String("request_id", req.ID.String()),
			logger.Err(err),
		)
	}

	if err := c.withRetry(ctx, func(cc context.Context) error {
		return c.requests.SetNotificationID(cc, req.ID, nil)
	}); err != nil {
		c.logger.Warn("Failed to clear reminder id",
			logger.String("request_id", req.ID.String()),
			logger.Err(err),
		)
	}
	req.NotificationID = nil
}

// pushChange fans the new request state out to connected UI clients
func (c *Coordinator) pushChange(req *booking.Request, eventType string) {
	if c.pusher == nil {
		return
	}
	msg := websocket.Message{Type: eventType, Data: req}
	c.pusher.SendToUser(req.UserID.String(), msg)
	c.pusher.SendToUser(req.DriverID.String(), msg)
	c.pusher.BroadcastToRide(req.RideID.String(), msg)
}

func (c *Coordinator) publishRequest(ctx context.Context, topic string, req *booking.Request) {
	if c.publisher == nil {
		return
	}
	evt := events.RequestEvent{
		RequestID:  req.ID.String(),
		RideID:     req.RideID.String(),
		UserID:     req.UserID.String(),
		DriverID:   req.DriverID.String(),
		Status:     string(req.Status),
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.publisher.Publish(ctx, topic, evt.RideID, evt); err != nil {
		c.logger.Warn("Failed to publish lifecycle event",
			logger.String("topic", topic),
			logger.String("request_id", evt.RequestID),
			logger.Err(err),
		)
	}
}

func (c *Coordinator) publishRated(ctx context.Context, req *booking.Request, rating int) {
	if c.publisher == nil {
		return
	}
	evt := events.RatedEvent{
		RequestID:  req.ID.String(),
		RideID:     req.RideID.String(),
		UserID:     req.UserID.String(),
		DriverID:   req.DriverID.String(),
		Rating:     rating,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.publisher.Publish(ctx, events.TopicRated, evt.RideID, evt); err != nil {
		c.logger.Warn("Failed to publish rating event",
			logger.String("request_id", evt.RequestID),
			logger.Err(err),
		)
	}
}

func requestData(req *booking.Request) map[string]string {
	return map[string]string{
		"request_id": req.ID.String(),
		"ride_id":    req.RideID.String(),
		"status":     string(req.Status),
	}
}

func (c *Coordinator) count(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperrors.GetAppError(err).Code
	}
	observability.TransitionsTotal.WithLabelValues(action, outcome).Inc()
}

func (c *Coordinator) observe(action string, start time.Time) {
	observability.TransitionLatency.WithLabelValues(action).Observe(time.Since(start).Seconds())
}
