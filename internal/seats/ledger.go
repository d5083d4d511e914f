package seats

import (
	"context"

	"github.com/google/uuid"
	"github.com/odai-awartani/wasselny/internal/domain/ride"
	"github.com/odai-awartani/wasselny/internal/observability"
	"github.com/odai-awartani/wasselny/pkg/logger"
)

// Ledger governs the available_seats counter on a ride. It never
// reads-then-writes the counter in application code: both operations
// delegate to conditional updates in the repository, so concurrent
// check-ins on the last seat produce exactly one winner.
type Ledger struct {
	rides  ride.Repository
	logger *logger.Logger
}

// NewLedger creates a seat ledger over the ride repository
func NewLedger(rides ride.Repository, logger *logger.Logger) *Ledger {
	return &Ledger{rides: rides, logger: logger}
}

// Reserve consumes one seat. Returns ride.ErrSeatsUnavailable when the
// counter is already zero.
func (l *Ledger) Reserve(ctx context.Context, rideID uuid.UUID) error {
	err := l.rides.ReserveSeat(ctx, rideID)
	if err == ride.ErrSeatsUnavailable {
		observability.SeatConflicts.Inc()
		l.logger.Info("Seat reservation lost race",
			logger.String("ride_id", rideID.String()),
		)
		return err
	}
	if err != nil {
		return err
	}
	l.logger.Info("Seat reserved",
		logger.String("ride_id", rideID.String()),
	)
	return nil
}

// Release returns one seat after a checked-in passenger cancels
func (l *Ledger) Release(ctx context.Context, rideID uuid.UUID) error {
	if err := l.rides.ReleaseSeat(ctx, rideID); err != nil {
		return err
	}
	l.logger.Info("Seat released",
		logger.String("ride_id", rideID.String()),
	)
	return nil
}
