package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/odai-awartani/wasselny/internal/domain/booking"
)

// RequestRepository implements booking.Repository over PostgreSQL.
type RequestRepository struct {
	db *sql.DB
}

// NewRequestRepository creates a Postgres-backed request repository
func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
	id, ride_id, user_id, driver_id, status, rating,
	notification_id, created_at, updated_at`

// Create inserts a new ride request. The one-active-request-per-
// (ride, user) invariant is enforced here, not by a prior read: a
// partial unique index
//
//	CREATE UNIQUE INDEX ride_requests_one_active
//	ON ride_requests (ride_id, user_id)
//	WHERE status IN ('waiting', 'accepted', 'checked_in')
//
// rejects the insert when a live request already exists, so two racing
// books resolve to a single winner.
func (r *RequestRepository) Create(ctx context.Context, req *booking.Request) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ride_requests (
			id, ride_id, user_id, driver_id, status, rating,
			notification_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		req.ID, req.RideID, req.UserID, req.DriverID, req.Status,
		req.Rating, req.NotificationID, req.CreatedAt, req.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return booking.ErrDuplicateActive
	}
	if err != nil {
		return fmt.Errorf("failed to insert ride request: %w", err)
	}
	return nil
}

// GetByID retrieves a request by id
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*booking.Request, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM ride_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// GetActiveByRideAndUser returns the user's live request on the ride
func (r *RequestRepository) GetActiveByRideAndUser(ctx context.Context, rideID, userID uuid.UUID) (*booking.Request, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM ride_requests
		WHERE ride_id = $1 AND user_id = $2
		  AND status IN ('waiting', 'accepted', 'checked_in')
	`, rideID, userID)

	req, err := scanRequest(row)
	if err == booking.ErrRequestNotFound {
		return nil, booking.ErrNoActiveRequest
	}
	return req, err
}

// ListByRide returns all requests against a ride
func (r *RequestRepository) ListByRide(ctx context.Context, rideID uuid.UUID) ([]*booking.Request, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM ride_requests WHERE ride_id = $1 ORDER BY created_at`, rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ride requests: %w", err)
	}
	defer rows.Close()

	var out []*booking.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ride requests: %w", err)
	}
	return out, nil
}

// UpdateStatus is the compare-and-set write that linearizes
// transitions: the row moves to the new status only while it still
// holds the status the caller read. Zero rows affected means another
// actor won the race.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to booking.Status) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ride_requests
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	if affected == 0 {
		return booking.ErrStaleStatus
	}
	return nil
}

// SetRating attaches a 1-5 rating after check-out
func (r *RequestRepository) SetRating(ctx context.Context, id uuid.UUID, rating int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ride_requests
		SET rating = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'checked_out'
	`, id, rating)
	if err != nil {
		return fmt.Errorf("failed to set rating: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set rating: %w", err)
	}
	if affected == 0 {
		return booking.ErrStaleStatus
	}
	return nil
}

// SetNotificationID records (or clears) the scheduled reminder handle
func (r *RequestRepository) SetNotificationID(ctx context.Context, id uuid.UUID, notificationID *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ride_requests
		SET notification_id = $2, updated_at = NOW()
		WHERE id = $1
	`, id, notificationID)
	if err != nil {
		return fmt.Errorf("failed to set notification id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set notification id: %w", err)
	}
	if affected == 0 {
		return booking.ErrRequestNotFound
	}
	return nil
}

func scanRequest(row rowScanner) (*booking.Request, error) {
	var req booking.Request
	var status string
	var rating sql.NullInt64
	var notificationID sql.NullString

	err := row.Scan(
		&req.ID, &req.RideID, &req.UserID, &req.DriverID, &status,
		&rating, &notificationID, &req.CreatedAt, &req.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, booking.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ride request: %w", err)
	}

	req.Status = booking.Status(status)
	if rating.Valid {
		v := int(rating.Int64)
		req.Rating = &v
	}
	if notificationID.Valid {
		v := notificationID.String
		req.NotificationID = &v
	}
	return &req, nil
}
