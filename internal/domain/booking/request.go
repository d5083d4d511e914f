package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents a ride request's lifecycle state
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusCheckedIn  Status = "checked_in"
	StatusCheckedOut Status = "checked_out"
	StatusCancelled  Status = "cancelled"
)

// Request represents one passenger's booking against one ride.
// DriverID is denormalized from the ride at creation time.
type Request struct {
	ID             uuid.UUID `json:"id"`
	RideID         uuid.UUID `json:"ride_id"`
	UserID         uuid.UUID `json:"user_id"`
	DriverID       uuid.UUID `json:"driver_id"`
	Status         Status    `json:"status"`
	Rating         *int      `json:"rating,omitempty"`
	NotificationID *string   `json:"notification_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Repository interface. UpdateStatus is a compare-and-set: the write
// applies only while the stored status still equals from, so racing
// transitions resolve to a single winner.
type Repository interface {
	// Create inserts the request. The storage enforces at most one
	// live request per (ride, user); ErrDuplicateActive when one
	// already exists, so racing books resolve to a single winner.
	Create(ctx context.Context, req *Request) error

	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)

	// GetActiveByRideAndUser returns the user's live (waiting,
	// accepted or checked_in) request on the ride, if any.
	GetActiveByRideAndUser(ctx context.Context, rideID, userID uuid.UUID) (*Request, error)

	ListByRide(ctx context.Context, rideID uuid.UUID) ([]*Request, error)

	// UpdateStatus conditionally moves the request from one status to
	// another; ErrStaleStatus when the precondition no longer holds.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error

	SetRating(ctx context.Context, id uuid.UUID, rating int) error
	SetNotificationID(ctx context.Context, id uuid.UUID, notificationID *string) error
}

// Errors
var (
	ErrRequestNotFound = errors.New("ride request not found")
	ErrNoActiveRequest = errors.New("no active request for ride and user")
	ErrStaleStatus     = errors.New("request status changed concurrently")
	ErrDuplicateActive = errors.New("user already has an active request on this ride")
)

// IsValid validates the status value
func (s Status) IsValid() bool {
	switch s {
	case StatusWaiting, StatusAccepted, StatusRejected,
		StatusCheckedIn, StatusCheckedOut, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether the status counts toward the
// one-live-request-per-ride-and-user invariant
func (s Status) IsActive() bool {
	switch s {
	case StatusWaiting, StatusAccepted, StatusCheckedIn:
		return true
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCheckedOut, StatusCancelled:
		return true
	}
	return false
}

// HasReservedSeat reports whether a seat was consumed for this
// request. Seats are taken at check-in, not at acceptance.
func (r *Request) HasReservedSeat() bool {
	return r.Status == StatusCheckedIn
}
