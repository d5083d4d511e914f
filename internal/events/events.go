package events

// Well-known topic names.
const (
	TopicRequestCreated  = "request.created"
	TopicRequestAccepted = "request.accepted"
	TopicRequestRejected = "request.rejected"
	TopicCheckedIn       = "request.checked_in"
	TopicCheckedOut      = "request.checked_out"
	TopicCancelled       = "request.cancelled"
	TopicRated           = "request.rated"
	TopicRideEnded       = "ride.ended"
)

// RequestEvent is published on every booking transition.
type RequestEvent struct {
	RequestID  string `json:"request_id"`
	RideID     string `json:"ride_id"`
	UserID     string `json:"user_id"`
	DriverID   string `json:"driver_id"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurred_at"`
}

// RatedEvent is published when a passenger rates a completed ride.
type RatedEvent struct {
	RequestID  string `json:"request_id"`
	RideID     string `json:"ride_id"`
	UserID     string `json:"user_id"`
	DriverID   string `json:"driver_id"`
	Rating     int    `json:"rating"`
	OccurredAt string `json:"occurred_at"`
}

// RideEndedEvent is published when the expiry watcher ends a ride.
type RideEndedEvent struct {
	RideID      string `json:"ride_id"`
	DriverID    string `json:"driver_id"`
	ScheduledAt string `json:"scheduled_at"`
	OccurredAt  string `json:"occurred_at"`
}
