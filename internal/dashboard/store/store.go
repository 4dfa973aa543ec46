package store

import (
	"context"
	"errors"
	"time"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement it and expose one sub-repository per collection.
//
// There is no transaction API: every write touches a single row and nothing
// in the dashboard spans rows, so per-statement atomicity is enough.
type Store interface {
	Users() Users
	Sessions() Sessions
	Readings() Readings

	ApplyMigrations() error

	// Close releases the underlying connection pool.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Users interface {
	// GetUserByUsername returns ErrNotFound for unknown usernames.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user, or returns ErrAlreadyExists if the
	// username is taken. The check and the insert are one statement.
	CreateUser(ctx context.Context, u domain.User) error
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSession returns the session even if it has expired; callers decide.
	GetSession(ctx context.Context, id string) (domain.Session, error)

	// MarkSessionMFAValidated flips mfa_validated on.
	MarkSessionMFAValidated(ctx context.Context, id string) error

	// IncrementSessionMFAAttempts bumps the failed attempt counter and
	// returns the new value.
	IncrementSessionMFAAttempts(ctx context.Context, id string) (int, error)

	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, id string) error

	// DeleteExpiredSessions removes sessions that expired at or before
	// the given time and reports how many went.
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

type Readings interface {
	// UpsertReading inserts by entry_id or overwrites the stored row,
	// reporting which of the two happened.
	UpsertReading(ctx context.Context, r domain.Reading) (domain.UpsertOutcome, error)

	// GetReading returns ErrNotFound for unknown entry ids.
	GetReading(ctx context.Context, entryID int64) (domain.Reading, error)

	// CountReadings returns the size of the sensor history.
	CountReadings(ctx context.Context) (int64, error)
}
