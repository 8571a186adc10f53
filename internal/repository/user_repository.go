package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// UserDirectory resolves accounts into notification recipients.
type UserDirectory interface {
	Get(ctx context.Context, userID string) (*domain.Recipient, error)
	ListActiveByRole(ctx context.Context, role domain.Role) ([]string, error)
}

type userDirectory struct {
	pool *pgxpool.Pool
}

// NewUserDirectory returns a Postgres-backed directory. Wrap it with
// WithPresence to fill Recipient.ActiveSession.
func NewUserDirectory(pool *pgxpool.Pool) UserDirectory {
	return &userDirectory{pool: pool}
}

func (r *userDirectory) Get(ctx context.Context, userID string) (*domain.Recipient, error) {
	const query = `
        SELECT id, name, role, status, email, device_token, push_enabled, email_enabled
        FROM users WHERE id=$1`

	var rec domain.Recipient
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&rec.ID,
		&rec.Name,
		&rec.Role,
		&rec.Status,
		&rec.Email,
		&rec.DeviceToken,
		&rec.Preferences.Push,
		&rec.Preferences.Email,
	); err != nil {
		return nil, mapNotFound(err)
	}
	return &rec, nil
}

func (r *userDirectory) ListActiveByRole(ctx context.Context, role domain.Role) ([]string, error) {
	const query = `SELECT id FROM users WHERE role=$1 AND status=$2 ORDER BY id`
	rows, err := r.pool.Query(ctx, query, role, domain.UserStatusActive)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
