package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/odai-awartani/wasselny/internal/domain/ride"
)

// RideRepository implements ride.Repository over PostgreSQL.
type RideRepository struct {
	db *sql.DB
}

// NewRideRepository creates a Postgres-backed ride repository
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{db: db}
}

const rideColumns = `
	id, driver_id, origin_address, origin_lat, origin_lng,
	destination_address, destination_lat, destination_lng,
	scheduled_at, recurrence, available_seats, required_gender,
	no_smoking, no_children, no_music, status, created_at, updated_at`

// Create inserts a new ride
func (r *RideRepository) Create(ctx context.Context, rd *ride.Ride) error {
	recurrence := make([]string, len(rd.Recurrence))
	for i, d := range rd.Recurrence {
		recurrence[i] = string(d)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rides (
			id, driver_id, origin_address, origin_lat, origin_lng,
			destination_address, destination_lat, destination_lng,
			scheduled_at, recurrence, available_seats, required_gender,
			no_smoking, no_children, no_music, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		rd.ID, rd.DriverID,
		rd.Origin.Address, rd.Origin.Latitude, rd.Origin.Longitude,
		rd.Destination.Address, rd.Destination.Latitude, rd.Destination.Longitude,
		rd.ScheduledAt, pq.Array(recurrence), rd.AvailableSeats, rd.RequiredGender,
		rd.Rules.NoSmoking, rd.Rules.NoChildren, rd.Rules.NoMusic,
		rd.Status, rd.CreatedAt, rd.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ride: %w", err)
	}
	return nil
}

// GetByID retrieves a ride by id
func (r *RideRepository) GetByID(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	return scanRide(row)
}

// ListByDriver returns all rides published by a driver
func (r *RideRepository) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]*ride.Ride, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE driver_id = $1 ORDER BY scheduled_at`, driverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rides by driver: %w", err)
	}
	defer rows.Close()
	return collectRides(rows)
}

// ListPending returns all rides still open for booking
func (r *RideRepository) ListPending(ctx context.Context) ([]*ride.Ride, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE status = 'pending' ORDER BY scheduled_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rides: %w", err)
	}
	defer rows.Close()
	return collectRides(rows)
}

// ReserveSeat atomically consumes one seat. The WHERE clause carries
// the non-negativity invariant: the update applies only while seats
// remain, so the counter can never go below zero.
func (r *RideRepository) ReserveSeat(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rides
		SET available_seats = available_seats - 1, updated_at = NOW()
		WHERE id = $1 AND available_seats > 0
	`, id)
	if err != nil {
		return fmt.Errorf("failed to reserve seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reserve seat: %w", err)
	}
	if affected == 0 {
		// either the ride is gone or seats ran out; disambiguate
		exists, err := r.exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return ride.ErrRideNotFound
		}
		return ride.ErrSeatsUnavailable
	}
	return nil
}

// ReleaseSeat atomically returns one seat
func (r *RideRepository) ReleaseSeat(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rides
		SET available_seats = available_seats + 1, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to release seat: %w", err)
	}
	if affected == 0 {
		return ride.ErrRideNotFound
	}
	return nil
}

// ListExpired returns pending non-recurring rides whose departure is
// strictly before the cutoff
func (r *RideRepository) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*ride.Ride, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE status = 'pending'
		  AND scheduled_at < $1
		  AND coalesce(cardinality(recurrence), 0) = 0
		ORDER BY scheduled_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired rides: %w", err)
	}
	defer rows.Close()
	return collectRides(rows)
}

// MarkEnded transitions a pending ride to ended; already-ended rides
// are left untouched, which makes the expiry sweep idempotent
func (r *RideRepository) MarkEnded(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rides
		SET status = 'ended', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark ride ended: %w", err)
	}
	return nil
}

func (r *RideRepository) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM rides WHERE id = $1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check ride existence: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRide(row rowScanner) (*ride.Ride, error) {
	var rd ride.Ride
	var recurrence pq.StringArray
	var gender, status string

	err := row.Scan(
		&rd.ID, &rd.DriverID,
		&rd.Origin.Address, &rd.Origin.Latitude, &rd.Origin.Longitude,
		&rd.Destination.Address, &rd.Destination.Latitude, &rd.Destination.Longitude,
		&rd.ScheduledAt, &recurrence, &rd.AvailableSeats, &gender,
		&rd.Rules.NoSmoking, &rd.Rules.NoChildren, &rd.Rules.NoMusic,
		&status, &rd.CreatedAt, &rd.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ride.ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ride: %w", err)
	}

	rd.RequiredGender = ride.Gender(gender)
	rd.Status = ride.Status(status)
	for _, d := range recurrence {
		rd.Recurrence = append(rd.Recurrence, ride.Weekday(d))
	}
	return &rd, nil
}

func collectRides(rows *sql.Rows) ([]*ride.Ride, error) {
	var out []*ride.Ride
	for rows.Next() {
		rd, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rides: %w", err)
	}
	return out, nil
}
