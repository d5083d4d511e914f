package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts booking lifecycle transitions by action
	// and outcome (ok, invalid_transition, unauthorized, ...).
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "wasselny", Name: "transitions_total", Help: "Booking lifecycle transitions"},
		[]string{"action", "outcome"},
	)

	// SeatConflicts counts check-ins that lost the race for the last seat.
	SeatConflicts = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "wasselny", Name: "seat_conflicts_total", Help: "Seat reservations rejected at zero seats"},
	)

	// NotificationFailures counts push deliveries that failed after a
	// successful transition. These never roll the transition back.
	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "wasselny", Name: "notification_failures_total", Help: "Best-effort notification delivery failures"},
	)

	// RidesExpired counts rides swept to the ended state.
	RidesExpired = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "wasselny", Name: "rides_expired_total", Help: "Past-due rides transitioned to ended"},
	)

	// TransitionLatency tracks end-to-end coordinator action latency.
	TransitionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wasselny",
			Name:      "transition_duration_seconds",
			Help:      "Coordinator action latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"action"},
	)
)
