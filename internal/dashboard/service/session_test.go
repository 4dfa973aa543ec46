package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
	"github.com/ecobalance/dashboard/internal/dashboard/store"
	"github.com/ecobalance/dashboard/pkg/slogx"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newSessionService(t *testing.T) (*SessionService, *testClock, string) {
	t.Helper()

	clock := &testClock{t: fixedNow}
	st := newTestStore(t)
	auth := &AuthService{Store: st, Now: clock.Now}

	secret := "JBSWY3DPEHPK3PXP"
	require.NoError(t, auth.Register(context.Background(), "alice", "S3cret!", secret))

	return &SessionService{
		Store: st,
		Auth:  auth,
		TTL:   time.Hour,
		Now:   clock.Now,
	}, clock, secret
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, clock, secret := newSessionService(t)

	sess, err := svc.Start(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, domain.StatePasswordOK, sess.State())
	require.Equal(t, fixedNow.Add(time.Hour), sess.ExpiresAt)

	got, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatePasswordOK, got.State())

	done, err := svc.CompleteMFA(ctx, sess.ID, codeAt(t, secret, clock.Now()))
	require.NoError(t, err)
	require.Equal(t, domain.StateAuthenticated, done.State())

	got, err = svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, got.MFAValidated)

	require.NoError(t, svc.End(ctx, sess.ID))
	_, err = svc.Get(ctx, sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, svc.End(ctx, sess.ID))
}

func TestCompleteMFAWrongCode(t *testing.T) {
	ctx := context.Background()
	svc, clock, secret := newSessionService(t)

	sess, err := svc.Start(ctx, "alice")
	require.NoError(t, err)

	_, err = svc.CompleteMFA(ctx, sess.ID, "000000")
	require.ErrorIs(t, err, ErrInvalidMFACode)

	got, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.MFAAttempts)
	require.False(t, got.MFAValidated)

	// A right code still works after a wrong one.
	done, err := svc.CompleteMFA(ctx, sess.ID, codeAt(t, secret, clock.Now()))
	require.NoError(t, err)
	require.True(t, done.MFAValidated)
}

func TestCompleteMFAExhaustion(t *testing.T) {
	ctx := context.Background()
	svc, clock, secret := newSessionService(t)
	svc.MaxMFAAttempts = 3

	sess, err := svc.Start(ctx, "alice")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.CompleteMFA(ctx, sess.ID, "000000")
		require.ErrorIs(t, err, ErrInvalidMFACode)
	}

	_, err = svc.CompleteMFA(ctx, sess.ID, "000000")
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// The session is gone: back to anonymous, even with a right code.
	_, err = svc.Get(ctx, sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.CompleteMFA(ctx, sess.ID, codeAt(t, secret, clock.Now()))
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	svc, clock, _ := newSessionService(t)

	sess, err := svc.Start(ctx, "alice")
	require.NoError(t, err)

	clock.t = fixedNow.Add(time.Hour)
	_, err = svc.Get(ctx, sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	// Expired sessions are deleted when seen.
	_, err = svc.Store.Sessions().GetSession(ctx, sess.ID)
	require.Error(t, err)
}

func TestGetUnknownSession(t *testing.T) {
	svc, _, _ := newSessionService(t)

	_, err := svc.Get(context.Background(), "")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Get(context.Background(), "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

// stuckSessionsStore refuses to delete sessions.
type stuckSessionsStore struct {
	store.Store
}

func (s stuckSessionsStore) Sessions() store.Sessions {
	return stuckSessions{Sessions: s.Store.Sessions()}
}

type stuckSessions struct {
	store.Sessions
}

func (stuckSessions) DeleteSession(context.Context, string) error {
	return errors.New("database is locked")
}

func TestCompleteMFALogsFailedDeletes(t *testing.T) {
	svc, clock, secret := newSessionService(t)
	svc.Store = stuckSessionsStore{Store: svc.Store}

	var logs bytes.Buffer
	ctx := slogx.WithContext(context.Background(), slog.New(slog.NewTextHandler(&logs, nil)))

	t.Run("exhausted session", func(t *testing.T) {
		logs.Reset()
		sess, err := svc.Start(ctx, "alice")
		require.NoError(t, err)

		_, err = svc.CompleteMFA(ctx, sess.ID, "000000")
		require.ErrorIs(t, err, ErrInvalidMFACode)

		// Lowering the cap leaves the counter already at the limit.
		svc.MaxMFAAttempts = 1
		t.Cleanup(func() { svc.MaxMFAAttempts = 0 })

		_, err = svc.CompleteMFA(ctx, sess.ID, codeAt(t, secret, clock.Now()))
		require.ErrorIs(t, err, ErrTooManyAttempts)
		require.Contains(t, logs.String(), "failed to delete exhausted session")
		require.Contains(t, logs.String(), "database is locked")
	})

	t.Run("session of a deleted user", func(t *testing.T) {
		logs.Reset()
		sess, err := svc.Start(ctx, "ghost")
		require.NoError(t, err)

		_, err = svc.CompleteMFA(ctx, sess.ID, "123456")
		require.ErrorIs(t, err, ErrSessionNotFound)
		require.Contains(t, logs.String(), "failed to delete orphaned session")
		require.Contains(t, logs.String(), "database is locked")
	})
}
