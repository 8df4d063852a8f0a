package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the user has no settings row yet.
var ErrNotFound = errors.New("settings not found")

// Repository owns the store_settings table. One row per user.
type Repository interface {
	Get(ctx context.Context, userID int64) (*StoreSettings, error)
	Upsert(ctx context.Context, s StoreSettings) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, userID int64) (*StoreSettings, error) {
	var s StoreSettings
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, store_name, tax_rate, updated_at
		FROM store_settings WHERE user_id = $1`, userID).Scan(
		&s.UserID, &s.StoreName, &s.TaxRate, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) Upsert(ctx context.Context, s StoreSettings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO store_settings (user_id, store_name, tax_rate, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET store_name = EXCLUDED.store_name, tax_rate = EXCLUDED.tax_rate, updated_at = NOW()`,
		s.UserID, s.StoreName, s.TaxRate)
	return err
}
