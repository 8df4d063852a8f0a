package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no customer with that id belongs to the user.
var ErrNotFound = errors.New("customer not found")

// Repository owns the customers table. Every query is scoped to the owning
// user, so a foreign id behaves exactly like a missing one.
type Repository interface {
	Get(ctx context.Context, userID, id int64) (*Customer, error)
	List(ctx context.Context, userID int64, name string) ([]Customer, error)
	Create(ctx context.Context, c Customer) (int64, error)
	Update(ctx context.Context, c Customer) error
	Delete(ctx context.Context, userID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const customerColumns = `id, user_id, name, email, phone, address, created_at, updated_at`

func (r *repository) Get(ctx context.Context, userID, id int64) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 AND user_id = $2`, id, userID).Scan(
		&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// List returns the user's customers, or only the exact-name matches when name
// is non-empty. The name filter backs prefill lookups on document forms.
func (r *repository) List(ctx context.Context, userID int64, name string) ([]Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE user_id = $1 ORDER BY name, id`
	args := []any{userID}
	if name != "" {
		query = `SELECT ` + customerColumns + ` FROM customers WHERE user_id = $1 AND name = $2 ORDER BY id`
		args = append(args, name)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Customer) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (user_id, name, email, phone, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id`,
		c.UserID, c.Name, c.Email, c.Phone, c.Address).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert customer: %w", err)
	}
	return id, nil
}

func (r *repository) Update(ctx context.Context, c Customer) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers SET name = $1, email = $2, phone = $3, address = $4, updated_at = NOW()
		WHERE id = $5 AND user_id = $6`,
		c.Name, c.Email, c.Phone, c.Address, c.ID, c.UserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
