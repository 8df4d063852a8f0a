package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/cases"

	"github.com/tidebill/tidebill/internal/billing"
)

// ErrNotFound indicates no catalog record with that id belongs to the user.
var ErrNotFound = errors.New("catalog record not found")

// Repository owns the products and variations tables. Variations are scoped
// to the user through their product, so a foreign variation id reads as
// missing rather than leaking another store's prices.
type Repository interface {
	GetProduct(ctx context.Context, userID, id int64) (*Product, error)
	ListProducts(ctx context.Context, req ListProductsRequest) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) (int64, error)
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, userID, id int64) error

	GetVariation(ctx context.Context, userID, id int64) (*Variation, error)
	CreateVariation(ctx context.Context, userID int64, v Variation) (int64, error)
	UpdateVariation(ctx context.Context, userID int64, v Variation) error
	DeleteVariation(ctx context.Context, userID, id int64) error

	VariationRef(ctx context.Context, userID, variationID int64) (*billing.CatalogRef, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// ============================================================================
// PRODUCTS
// ============================================================================

func (r *repository) GetProduct(ctx context.Context, userID, id int64) (*Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM products WHERE id = $1 AND user_id = $2`, id, userID).Scan(
		&p.ID, &p.UserID, &p.Name, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, product_id, size, accessory, price, created_at, updated_at
		FROM variations WHERE product_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var v Variation
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Size, &v.Accessory, &v.Price, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		p.Variations = append(p.Variations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListProducts(ctx context.Context, req ListProductsRequest) ([]Product, error) {
	query := `SELECT id, user_id, name, created_at, updated_at FROM products WHERE user_id = $1`
	args := []any{req.UserID}
	if req.Query != "" {
		// Case-fold the needle so matching agrees with Unicode simple folding,
		// then let ILIKE handle the ASCII remainder server side.
		folded := cases.Fold().String(req.Query)
		query += ` AND LOWER(name) LIKE '%' || $2 || '%'`
		args = append(args, folded)
	}
	query += ` ORDER BY name, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *repository) CreateProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (user_id, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW()) RETURNING id`,
		p.UserID, p.Name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

func (r *repository) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products SET name = $1, updated_at = NOW() WHERE id = $2 AND user_id = $3`,
		p.Name, p.ID, p.UserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteProduct(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// VARIATIONS
// ============================================================================

func (r *repository) GetVariation(ctx context.Context, userID, id int64) (*Variation, error) {
	var v Variation
	err := r.pool.QueryRow(ctx, `
		SELECT v.id, v.product_id, v.size, v.accessory, v.price, v.created_at, v.updated_at
		FROM variations v JOIN products p ON p.id = v.product_id
		WHERE v.id = $1 AND p.user_id = $2`, id, userID).Scan(
		&v.ID, &v.ProductID, &v.Size, &v.Accessory, &v.Price, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *repository) CreateVariation(ctx context.Context, userID int64, v Variation) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO variations (product_id, size, accessory, price, created_at, updated_at)
		SELECT $1, $2, $3, $4, NOW(), NOW()
		WHERE EXISTS (SELECT 1 FROM products WHERE id = $1 AND user_id = $5)
		RETURNING id`,
		v.ProductID, v.Size, v.Accessory, v.Price, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("insert variation: %w", err)
	}
	return id, nil
}

func (r *repository) UpdateVariation(ctx context.Context, userID int64, v Variation) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE variations SET size = $1, accessory = $2, price = $3, updated_at = NOW()
		WHERE id = $4 AND product_id IN (SELECT id FROM products WHERE user_id = $5)`,
		v.Size, v.Accessory, v.Price, v.ID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteVariation(ctx context.Context, userID, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM variations
		WHERE id = $1 AND product_id IN (SELECT id FROM products WHERE user_id = $2)`,
		id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// VariationRef resolves a variation into the canonical pricing record used by
// line resolution. Missing and foreign ids both return ErrNotFound.
func (r *repository) VariationRef(ctx context.Context, userID, variationID int64) (*billing.CatalogRef, error) {
	var ref billing.CatalogRef
	err := r.pool.QueryRow(ctx, `
		SELECT v.id, p.name, v.size, v.accessory, v.price
		FROM variations v JOIN products p ON p.id = v.product_id
		WHERE v.id = $1 AND p.user_id = $2`, variationID, userID).Scan(
		&ref.VariationID, &ref.ProductName, &ref.Size, &ref.Accessory, &ref.Price,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ref, nil
}
