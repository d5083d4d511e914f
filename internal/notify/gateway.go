package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Payload is the content of a push notification
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Gateway delivers push notifications and manages time-delayed
// reminders. Delivery is best-effort from the coordinator's point of
// view: a failed send never rolls back a state transition.
type Gateway interface {
	// SendImmediate pushes a notification to the user now.
	SendImmediate(ctx context.Context, userID uuid.UUID, p Payload) error

	// ScheduleAt registers a reminder under the caller-chosen id to be
	// delivered at the given time. Scheduling again under the same id
	// replaces the earlier entry.
	ScheduleAt(ctx context.Context, id string, userID uuid.UUID, when time.Time, p Payload) error

	// Cancel removes a scheduled reminder before it fires. Cancelling
	// an already-delivered or unknown reminder is a no-op.
	Cancel(ctx context.Context, notificationID string) error

	// MarkRead flags the user's pending notifications of a kind as
	// read (e.g. ride_request prompts once the driver has responded).
	MarkRead(ctx context.Context, userID uuid.UUID, kind string) error
}

// ErrDeliveryFailed wraps provider-side delivery failures. Callers log
// it and move on.
var ErrDeliveryFailed = errors.New("notification delivery failed")
