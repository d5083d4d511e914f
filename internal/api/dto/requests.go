package dto

import "time"

// LocationPayload is an address with optional coordinates
type LocationPayload struct {
	Address   string   `json:"address" binding:"required"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// RulesPayload carries the driver's in-car policy flags
type RulesPayload struct {
	NoSmoking  bool `json:"no_smoking"`
	NoChildren bool `json:"no_children"`
	NoMusic    bool `json:"no_music"`
}

// PublishRideRequest represents a driver publishing a new ride
type PublishRideRequest struct {
	DriverID       string          `json:"driver_id" binding:"required,uuid"`
	Origin         LocationPayload `json:"origin" binding:"required"`
	Destination    LocationPayload `json:"destination" binding:"required"`
	ScheduledAt    time.Time       `json:"scheduled_at" binding:"required"`
	Recurrence     []string        `json:"recurrence,omitempty"`
	AvailableSeats int             `json:"available_seats" binding:"required,min=1"`
	RequiredGender string          `json:"required_gender" binding:"required,oneof=male female either"`
	Rules          RulesPayload    `json:"rules"`
}

// BookRequest represents a passenger booking a seat on a ride
type BookRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// ActionRequest carries the acting user for a lifecycle action
type ActionRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// RateRequest represents a passenger rating a completed ride
type RateRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
	Rating int    `json:"rating" binding:"required,min=1,max=5"`
}

// ErrorResponse is the uniform error body
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
