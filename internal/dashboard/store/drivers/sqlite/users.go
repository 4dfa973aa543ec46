package sqlite

import (
	"context"
	"fmt"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
	"github.com/ecobalance/dashboard/internal/dashboard/store"
)

type usersRepo struct {
	q querier
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var (
		u         domain.User
		createdAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT username, password_hash, mfa_secret, created_at FROM users WHERE username = ?`,
		username,
	).Scan(&u.Username, &u.PasswordHash, &u.MFASecret, &createdAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, mfa_secret, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (username) DO NOTHING`,
		u.Username, u.PasswordHash, u.MFASecret, toMillis(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if n == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}
