package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
	"github.com/ecobalance/dashboard/internal/dashboard/store"
)

// setupPostgres starts a throwaway PostgreSQL container and returns a
// migrated store bound to it.
func setupPostgres(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "ecobalance",
			"POSTGRES_PASSWORD": "ecobalance",
			"POSTGRES_DB":       "ecobalance",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, container)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://ecobalance:ecobalance@%s:%s/ecobalance?sslmode=disable", host, port.Port())
	s, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.Eventually(t, func() bool { return s.Ping(ctx) == nil }, 30*time.Second, 250*time.Millisecond)
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestPostgresStore(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("users", func(t *testing.T) {
		u := domain.User{Username: "alice", PasswordHash: "h", MFASecret: "JBSWY3DPEHPK3PXP", CreatedAt: now}
		require.NoError(t, s.Users().CreateUser(ctx, u))
		require.ErrorIs(t, s.Users().CreateUser(ctx, u), store.ErrAlreadyExists)

		got, err := s.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, u, got)
	})

	t.Run("sessions", func(t *testing.T) {
		sess := domain.Session{ID: "s1", Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
		require.NoError(t, s.Sessions().CreateSession(ctx, sess))

		n, err := s.Sessions().IncrementSessionMFAAttempts(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, 1, n)

		require.NoError(t, s.Sessions().MarkSessionMFAValidated(ctx, "s1"))
		got, err := s.Sessions().GetSession(ctx, "s1")
		require.NoError(t, err)
		require.Equal(t, domain.StateAuthenticated, got.State())

		deleted, err := s.Sessions().DeleteExpiredSessions(ctx, now.Add(2*time.Hour))
		require.NoError(t, err)
		require.EqualValues(t, 1, deleted)
	})

	t.Run("readings upsert", func(t *testing.T) {
		v := 12.5
		rd := domain.Reading{
			EntryID:   100,
			CreatedAt: now,
			Field1:    &v,
			Payload:   json.RawMessage(`{"entry_id":100,"field1":"12.5"}`),
		}

		out, err := s.Readings().UpsertReading(ctx, rd)
		require.NoError(t, err)
		require.Equal(t, domain.UpsertInserted, out)

		out, err = s.Readings().UpsertReading(ctx, rd)
		require.NoError(t, err)
		require.Equal(t, domain.UpsertUpdated, out)

		count, err := s.Readings().CountReadings(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 1, count)

		got, err := s.Readings().GetReading(ctx, 100)
		require.NoError(t, err)
		require.Nil(t, got.Field2)
		require.JSONEq(t, string(rd.Payload), string(got.Payload))
	})
}
