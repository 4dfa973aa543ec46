package sqlite

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
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Username, s.MFAValidated, s.MFAAttempts, toMillis(s.CreatedAt), toMillis(s.ExpiresAt),
	)
	return err
}

func (r *sessionsRepo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var (
		s                    domain.Session
		createdAt, expiresAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT id, username, mfa_validated, mfa_attempts, created_at, expires_at
		 FROM sessions WHERE id = ?`,
		id,
	).Scan(&s.ID, &s.Username, &s.MFAValidated, &s.MFAAttempts, &createdAt, &expiresAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.CreatedAt = fromMillis(createdAt)
	s.ExpiresAt = fromMillis(expiresAt)
	return s, nil
}

func (r *sessionsRepo) MarkSessionMFAValidated(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE sessions SET mfa_validated = 1 WHERE id = ?`, id)
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
		`UPDATE sessions SET mfa_attempts = mfa_attempts + 1 WHERE id = ? RETURNING mfa_attempts`,
		id,
	).Scan(&attempts)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
