package expiry

import (
	"context"
	"time"

	"github.com/odai-awartani/wasselny/internal/domain/ride"
	"github.com/odai-awartani/wasselny/internal/events"
	"github.com/odai-awartani/wasselny/internal/observability"
	"github.com/odai-awartani/wasselny/pkg/logger"
	"github.com/odai-awartani/wasselny/pkg/monitoring"
)

// Watcher periodically transitions past-due pending rides to ended.
// It never touches ride requests: a ride ending does not retroactively
// cancel in-flight bookings.
type Watcher struct {
	rides     ride.Repository
	publisher events.Publisher
	logger    *logger.Logger

	Interval  time.Duration
	BatchSize int

	// Monitor mirrors sweep outcomes into New Relic when set.
	Monitor *monitoring.NewRelicApp

	// now is swapped out in tests
	now func() time.Time
}

// NewWatcher creates an expiry watcher
func NewWatcher(rides ride.Repository, publisher events.Publisher, log *logger.Logger, interval time.Duration, batchSize int) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Watcher{
		rides:     rides,
		publisher: publisher,
		logger:    log,
		Interval:  interval,
		BatchSize: batchSize,
		now:       time.Now,
	}
}

// Run sweeps on the configured interval until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep ends every pending ride whose departure has passed. One ride's
// failure never blocks the rest; the sweep is idempotent because
// MarkEnded only touches pending rows. Returns how many rides ended.
func (w *Watcher) Sweep(ctx context.Context) int {
	cutoff := w.now().UTC()

	expired, err := w.rides.ListExpired(ctx, cutoff, w.BatchSize)
	if err != nil {
		w.logger.Error("Expiry sweep failed to list rides", logger.Err(err))
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	ended := 0
	for _, rd := range expired {
		if err := w.rides.MarkEnded(ctx, rd.ID); err != nil {
			w.logger.Error("Failed to end past-due ride",
				logger.String("ride_id", rd.ID.String()),
				logger.Err(err),
			)
			continue
		}
		ended++
		observability.RidesExpired.Inc()
		w.Monitor.RecordRideExpired(rd.ID.String())

		w.publish(ctx, rd)
		w.logger.Info("Ride ended by expiry",
			logger.String("ride_id", rd.ID.String()),
			logger.Time("scheduled_at", rd.ScheduledAt),
		)
	}

	w.logger.Info("Expiry sweep complete",
		logger.Int("past_due", len(expired)),
		logger.Int("ended", ended),
	)
	return ended
}

func (w *Watcher) publish(ctx context.Context, rd *ride.Ride) {
	if w.publisher == nil {
		return
	}
	evt := events.RideEndedEvent{
		RideID:      rd.ID.String(),
		DriverID:    rd.DriverID.String(),
		ScheduledAt: rd.ScheduledAt.Format(time.RFC3339),
		OccurredAt:  w.now().UTC().Format(time.RFC3339),
	}
	if err := w.publisher.Publish(ctx, events.TopicRideEnded, evt.RideID, evt); err != nil {
		w.logger.Warn("Failed to publish ride ended event",
			logger.String("ride_id", evt.RideID),
			logger.Err(err),
		)
	}
}
