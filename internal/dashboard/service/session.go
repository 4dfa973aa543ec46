package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
	"github.com/ecobalance/dashboard/internal/dashboard/store"
	"github.com/ecobalance/dashboard/pkg/idx"
	"github.com/ecobalance/dashboard/pkg/slogx"
)

const (
	// MaxMFAAttempts is the default number of failed codes a session may
	// submit before it is thrown away.
	MaxMFAAttempts = 5

	DefaultSessionTTL = 12 * time.Hour
)

var (
	ErrSessionNotFound = errors.New("session_not_found")
	ErrInvalidMFACode  = errors.New("invalid_mfa_code")
	ErrTooManyAttempts = errors.New("too_many_attempts")
)

// SessionService moves a browser session through
// ANONYMOUS -> PASSWORD_OK -> AUTHENTICATED.
type SessionService struct {
	Store store.Store
	Auth  *AuthService

	TTL            time.Duration
	MaxMFAAttempts int

	Now func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SessionService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultSessionTTL
	}
	return s.TTL
}

func (s *SessionService) maxAttempts() int {
	if s.MaxMFAAttempts <= 0 {
		return MaxMFAAttempts
	}
	return s.MaxMFAAttempts
}

// Start opens a PASSWORD_OK session for a user whose password just checked out.
func (s *SessionService) Start(ctx context.Context, username string) (domain.Session, error) {
	now := s.now().UTC()
	sess := domain.Session{
		ID:        idx.NewAt(now).String(),
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl()),
	}

	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		return domain.Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// Get returns a live session. Expired sessions are dropped on sight.
func (s *SessionService) Get(ctx context.Context, id string) (domain.Session, error) {
	if id == "" {
		return domain.Session{}, ErrSessionNotFound
	}

	sess, err := s.Store.Sessions().GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	if sess.Expired(s.now()) {
		if err := s.Store.Sessions().DeleteSession(ctx, id); err != nil {
			slogx.FromContext(ctx).Warn("failed to delete expired session", slog.Any("error", err))
		}
		return domain.Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// CompleteMFA checks code against the session user's secret. Each failure
// counts against the session; the last allowed failure deletes it.
func (s *SessionService) CompleteMFA(ctx context.Context, id, code string) (domain.Session, error) {
	l := slogx.FromContext(ctx)

	sess, err := s.Get(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.Username == "" {
		return domain.Session{}, ErrSessionNotFound
	}
	if sess.MFAValidated {
		return sess, nil
	}

	if sess.MFAAttempts >= s.maxAttempts() {
		if err := s.Store.Sessions().DeleteSession(ctx, id); err != nil {
			l.Error("failed to delete exhausted session", slog.Any("error", err))
		}
		return domain.Session{}, ErrTooManyAttempts
	}

	u, err := s.Store.Users().GetUserByUsername(ctx, sess.Username)
	if errors.Is(err, store.ErrNotFound) {
		if err := s.Store.Sessions().DeleteSession(ctx, id); err != nil {
			l.Error("failed to delete orphaned session", slog.Any("error", err))
		}
		return domain.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to load user: %w", err)
	}

	if s.Auth.VerifyMFA(u.MFASecret, code) {
		if err := s.Store.Sessions().MarkSessionMFAValidated(ctx, id); err != nil {
			return domain.Session{}, fmt.Errorf("failed to mark session: %w", err)
		}
		sess.MFAValidated = true
		l.Info("mfa verified", slog.String("username", sess.Username))
		return sess, nil
	}

	attempts, err := s.Store.Sessions().IncrementSessionMFAAttempts(ctx, id)
	if err != nil {
		l.Error("failed to increment MFA attempts", slog.Any("error", err))
		return domain.Session{}, ErrInvalidMFACode
	}
	l.Warn("mfa validation failed", slog.String("username", sess.Username), slog.Int("attempts", attempts))

	if attempts >= s.maxAttempts() {
		if err := s.Store.Sessions().DeleteSession(ctx, id); err != nil {
			l.Error("failed to delete exhausted session", slog.Any("error", err))
		}
		return domain.Session{}, ErrTooManyAttempts
	}
	return domain.Session{}, ErrInvalidMFACode
}

// End deletes the session. Ending an unknown session is not an error.
func (s *SessionService) End(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.Store.Sessions().DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
