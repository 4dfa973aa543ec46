package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
	"github.com/ecobalance/dashboard/internal/dashboard/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func ptr(f float64) *float64 { return &f }

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Users().GetUserByUsername(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	u := domain.User{
		Username:     "alice",
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		MFASecret:    "JBSWY3DPEHPK3PXP",
		CreatedAt:    created,
	}
	require.NoError(t, s.Users().CreateUser(ctx, u))

	got, err := s.Users().GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u, got)

	t.Run("duplicate username", func(t *testing.T) {
		dup := u
		dup.PasswordHash = "other"
		err := s.Users().CreateUser(ctx, dup)
		require.ErrorIs(t, err, store.ErrAlreadyExists)

		// The original record is untouched.
		got, err := s.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, u.PasswordHash, got.PasswordHash)
	})
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	repo := s.Sessions()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := domain.Session{
		ID:        "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV",
		Username:  "alice",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, repo.CreateSession(ctx, sess))

	got, err := repo.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess, got)
	require.Equal(t, domain.StatePasswordOK, got.State())

	n, err := repo.IncrementSessionMFAAttempts(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = repo.IncrementSessionMFAAttempts(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, repo.MarkSessionMFAValidated(ctx, sess.ID))
	got, err = repo.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, got.MFAValidated)
	require.Equal(t, domain.StateAuthenticated, got.State())

	_, err = repo.IncrementSessionMFAAttempts(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, repo.MarkSessionMFAValidated(ctx, "missing"), store.ErrNotFound)

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, repo.DeleteSession(ctx, sess.ID))
		require.NoError(t, repo.DeleteSession(ctx, sess.ID))

		_, err := repo.GetSession(ctx, sess.ID)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestDeleteExpiredSessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	repo := s.Sessions()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, exp := range []time.Duration{-time.Hour, -time.Second, time.Hour} {
		require.NoError(t, repo.CreateSession(ctx, domain.Session{
			ID:        string(rune('a' + i)),
			Username:  "alice",
			CreatedAt: now.Add(-2 * time.Hour),
			ExpiresAt: now.Add(exp),
		}))
	}

	n, err := repo.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = repo.GetSession(ctx, "c")
	require.NoError(t, err)
}

func TestUpsertReading(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	repo := s.Readings()

	created := time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)
	first := domain.Reading{
		EntryID:   42,
		CreatedAt: created,
		Field1:    ptr(10.5),
		Field2:    nil,
		Payload:   json.RawMessage(`{"entry_id":42,"field1":"10.5","field2":null}`),
	}

	outcome, err := repo.UpsertReading(ctx, first)
	require.NoError(t, err)
	require.Equal(t, domain.UpsertInserted, outcome)

	second := first
	second.Field2 = ptr(33)
	second.Payload = json.RawMessage(`{"entry_id":42,"field1":"10.5","field2":"33"}`)

	outcome, err = repo.UpsertReading(ctx, second)
	require.NoError(t, err)
	require.Equal(t, domain.UpsertUpdated, outcome)

	n, err := repo.CountReadings(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := repo.GetReading(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, created, got.CreatedAt)
	require.Equal(t, 10.5, *got.Field1)
	require.Equal(t, 33.0, *got.Field2)
	require.JSONEq(t, string(second.Payload), string(got.Payload))

	var revision int
	require.NoError(t, s.db.QueryRow(`SELECT revision FROM sensor_readings WHERE entry_id = 42`).Scan(&revision))
	require.Equal(t, 2, revision)

	_, err = repo.GetReading(ctx, 7)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return newStoreFromDB(db), mock
}

func TestUpsertReadingDriverError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO sensor_readings`).
		WillReturnError(errors.New("disk I/O error"))

	_, err := s.Readings().UpsertReading(context.Background(), domain.Reading{EntryID: 9})
	require.Error(t, err)
	require.Contains(t, err.Error(), "upsert reading 9")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDriverPaths(t *testing.T) {
	t.Run("conflict reported as no rows", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.Users().CreateUser(context.Background(), domain.User{Username: "bob"})
		require.ErrorIs(t, err, store.ErrAlreadyExists)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec failure", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(`INSERT INTO users`).WillReturnError(errors.New("database is locked"))

		err := s.Users().CreateUser(context.Background(), domain.User{Username: "bob"})
		require.Error(t, err)
		require.NotErrorIs(t, err, store.ErrAlreadyExists)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
