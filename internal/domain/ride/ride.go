package ride

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents ride status
type Status string

const (
	StatusPending Status = "pending"
	StatusEnded   Status = "ended"
)

// Gender restricts who may book a ride
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderEither Gender = "either"
)

// Weekday labels used for recurring rides
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// Location is an address with optional geocoded coordinates
type Location struct {
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Rules are the driver's in-car policy flags
type Rules struct {
	NoSmoking  bool `json:"no_smoking"`
	NoChildren bool `json:"no_children"`
	NoMusic    bool `json:"no_music"`
}

// Ride represents a published trip offer. A recurring ride is a single
// row with a set of valid weekdays, not one row per occurrence; its
// seat counter is shared across occurrences.
type Ride struct {
	ID             uuid.UUID `json:"id"`
	DriverID       uuid.UUID `json:"driver_id"`
	Origin         Location  `json:"origin"`
	Destination    Location  `json:"destination"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Recurrence     []Weekday `json:"recurrence,omitempty"`
	AvailableSeats int       `json:"available_seats"`
	RequiredGender Gender    `json:"required_gender"`
	Rules          Rules     `json:"rules"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Repository interface. Seat mutations are conditional updates executed
// at the storage layer so two racing check-ins on the last seat resolve
// to exactly one winner.
type Repository interface {
	Create(ctx context.Context, r *Ride) error
	GetByID(ctx context.Context, id uuid.UUID) (*Ride, error)
	ListByDriver(ctx context.Context, driverID uuid.UUID) ([]*Ride, error)
	ListPending(ctx context.Context) ([]*Ride, error)

	// ReserveSeat decrements available_seats by one only while the
	// counter is positive; ErrSeatsUnavailable otherwise.
	ReserveSeat(ctx context.Context, id uuid.UUID) error

	// ReleaseSeat increments available_seats by one.
	ReleaseSeat(ctx context.Context, id uuid.UUID) error

	// ListExpired returns pending, non-recurring rides scheduled
	// strictly before the cutoff.
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*Ride, error)

	// MarkEnded transitions a pending ride to ended. A no-op on an
	// already-ended ride.
	MarkEnded(ctx context.Context, id uuid.UUID) error
}

// Errors
var (
	ErrRideNotFound     = errors.New("ride not found")
	ErrSeatsUnavailable = errors.New("no seats available")
)

// IsValid validates the gender restriction
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderEither:
		return true
	}
	return false
}

// Allows reports whether a passenger of the given gender may book
func (g Gender) Allows(passenger Gender) bool {
	return g == GenderEither || g == passenger
}

// IsRecurring reports whether the ride repeats on a weekday set
func (r *Ride) IsRecurring() bool {
	return len(r.Recurrence) > 0
}

// IsBookable reports whether the ride still takes new requests
func (r *Ride) IsBookable() bool {
	return r.Status == StatusPending
}

// IsPastDue reports whether a non-recurring ride's departure has
// passed. Recurring rides always have a next occurrence and never
// expire by time alone.
func (r *Ride) IsPastDue(now time.Time) bool {
	return !r.IsRecurring() && r.ScheduledAt.Before(now)
}
