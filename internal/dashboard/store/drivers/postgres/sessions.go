package postgres

import (
	"context"
	"time"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
	"github.com/ecobalance/dashboard/internal/dashboard/store"
)

type sessionsRepo struct {
	q querier
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO sessions (id, username, mfa_validated, mfa_attempts, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Username, s.MFAValidated, s.MFAAttempts, s.CreatedAt.UTC(), s.ExpiresAt.UTC(),
	)
	return err
}

func (r *sessionsRepo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var s domain.Session
	err := r.q.QueryRowContext(ctx,
		`SELECT id, username, mfa_validated, mfa_attempts, created_at, expires_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.Username, &s.MFAValidated, &s.MFAAttempts, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	return s, nil
}

func (r *sessionsRepo) MarkSessionMFAValidated(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE sessions SET mfa_validated = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *sessionsRepo) IncrementSessionMFAAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.q.QueryRowContext(ctx,
		`UPDATE sessions SET mfa_attempts = mfa_attempts + 1 WHERE id = $1 RETURNING mfa_attempts`,
		id,
	).Scan(&attempts)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
