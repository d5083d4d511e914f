package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/odai-awartani/wasselny/internal/domain/ride"
)

// Profile is the slice of a user's account the coordinator needs:
// identity is verified upstream, the caller-supplied id is trusted.
type Profile struct {
	ID     uuid.UUID
	Name   string
	Gender ride.Gender
}

// Provider resolves user profiles for eligibility checks
type Provider interface {
	Profile(ctx context.Context, userID uuid.UUID) (*Profile, error)
}

// ErrUserNotFound is returned for unknown user ids
var ErrUserNotFound = errors.New("user not found")

// PostgresProvider reads profiles from the users table
type PostgresProvider struct {
	db *sql.DB
}

// NewPostgresProvider creates a Postgres-backed identity provider
func NewPostgresProvider(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

// Profile retrieves a user profile by id
func (p *PostgresProvider) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var prof Profile
	var gender string
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, gender
		FROM users
		WHERE id = $1
	`, userID).Scan(&prof.ID, &prof.Name, &gender)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}
	prof.Gender = ride.Gender(gender)
	return &prof, nil
}
