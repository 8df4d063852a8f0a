package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidebill/tidebill/internal/platform/db"
)

var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = errors.New("record not found")
)

// Repository owns header and line persistence for estimates and invoices.
// All multi-row writes run through WithTx; the transactional repository the
// callback receives shares this interface.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	GetEstimate(ctx context.Context, id int64) (*Estimate, error)
	ListEstimates(ctx context.Context, req ListRequest) ([]Estimate, int, error)
	CreateEstimate(ctx context.Context, e Estimate) (int64, error)
	UpdateEstimateHeader(ctx context.Context, e Estimate) error
	UpdateEstimateTotal(ctx context.Context, id int64, total float64) error
	InsertEstimateLine(ctx context.Context, l EstimateLine) (int64, error)
	DeleteEstimateLines(ctx context.Context, estimateID int64) error
	DeleteEstimate(ctx context.Context, id int64) error

	GetInvoice(ctx context.Context, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListRequest) ([]Invoice, int, error)
	CreateInvoice(ctx context.Context, inv Invoice) (int64, error)
	UpdateInvoiceHeader(ctx context.Context, inv Invoice) error
	UpdateInvoiceTotal(ctx context.Context, id int64, total float64) error
	InsertInvoiceLine(ctx context.Context, l InvoiceLine) (int64, error)
	DeleteInvoiceLines(ctx context.Context, invoiceID int64) error
	DeleteInvoice(ctx context.Context, id int64) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

// ============================================================================
// ESTIMATES
// ============================================================================

const estimateColumns = `id, user_id, customer_id, customer_info, notes, total, created_at, updated_at`

func (r *repository) GetEstimate(ctx context.Context, id int64) (*Estimate, error) {
	var e Estimate
	err := r.db.QueryRow(ctx, `SELECT `+estimateColumns+` FROM estimates WHERE id = $1`, id).Scan(
		&e.ID, &e.UserID, &e.CustomerID, &e.CustomerInfo, &e.Notes, &e.Total, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, estimate_id, line_order, variation_id, product_name, size, accessory, quantity, unit_price, taxable, display_name
		FROM estimate_lines WHERE estimate_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var l EstimateLine
		if err := rows.Scan(&l.ID, &l.EstimateID, &l.LineOrder, &l.VariationID, &l.ProductName, &l.Size, &l.Accessory, &l.Quantity, &l.UnitPrice, &l.Taxable, &l.DisplayName); err != nil {
			return nil, err
		}
		e.Lines = append(e.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repository) ListEstimates(ctx context.Context, req ListRequest) ([]Estimate, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM estimates WHERE user_id = $1`, req.UserID).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(req)
	rows, err := r.db.Query(ctx, `SELECT `+estimateColumns+` FROM estimates WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		req.UserID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var estimates []Estimate
	for rows.Next() {
		var e Estimate
		if err := rows.Scan(&e.ID, &e.UserID, &e.CustomerID, &e.CustomerInfo, &e.Notes, &e.Total, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		estimates = append(estimates, e)
	}
	return estimates, total, rows.Err()
}

func (r *repository) CreateEstimate(ctx context.Context, e Estimate) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO estimates (user_id, customer_id, customer_info, notes, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id`,
		e.UserID, e.CustomerID, e.CustomerInfo, e.Notes, e.Total).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert estimate: %w", err)
	}
	return id, nil
}

func (r *repository) UpdateEstimateHeader(ctx context.Context, e Estimate) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE estimates SET customer_id = $1, customer_info = $2, notes = $3, updated_at = NOW() WHERE id = $4`,
		e.CustomerID, e.CustomerInfo, e.Notes, e.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateEstimateTotal(ctx context.Context, id int64, total float64) error {
	_, err := r.db.Exec(ctx, `UPDATE estimates SET total = $1, updated_at = NOW() WHERE id = $2`, total, id)
	return err
}

func (r *repository) InsertEstimateLine(ctx context.Context, l EstimateLine) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO estimate_lines (estimate_id, line_order, variation_id, product_name, size, accessory, quantity, unit_price, taxable, display_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		l.EstimateID, l.LineOrder, l.VariationID, l.ProductName, l.Size, l.Accessory, l.Quantity, l.UnitPrice, l.Taxable, l.DisplayName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert estimate line: %w", err)
	}
	return id, nil
}

func (r *repository) DeleteEstimateLines(ctx context.Context, estimateID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM estimate_lines WHERE estimate_id = $1`, estimateID)
	return err
}

func (r *repository) DeleteEstimate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM estimates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// INVOICES
// ============================================================================

const invoiceColumns = `id, user_id, customer_id, customer_info, notes, discount_type, discount_value, total, created_at, updated_at`

func (r *repository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	var inv Invoice
	err := r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id).Scan(
		&inv.ID, &inv.UserID, &inv.CustomerID, &inv.CustomerInfo, &inv.Notes, &inv.DiscountType, &inv.DiscountValue, &inv.Total, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, line_order, variation_id, product_name, size, accessory, quantity, unit_price, taxable, display_name
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY line_order, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.LineOrder, &l.VariationID, &l.ProductName, &l.Size, &l.Accessory, &l.Quantity, &l.UnitPrice, &l.Taxable, &l.DisplayName); err != nil {
			return nil, err
		}
		inv.Lines = append(inv.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) ListInvoices(ctx context.Context, req ListRequest) ([]Invoice, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE user_id = $1`, req.UserID).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(req)
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		req.UserID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.CustomerID, &inv.CustomerInfo, &inv.Notes, &inv.DiscountType, &inv.DiscountValue, &inv.Total, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}

func (r *repository) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoices (user_id, customer_id, customer_info, notes, discount_type, discount_value, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING id`,
		inv.UserID, inv.CustomerID, inv.CustomerInfo, inv.Notes, inv.DiscountType, inv.DiscountValue, inv.Total).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}
	return id, nil
}

func (r *repository) UpdateInvoiceHeader(ctx context.Context, inv Invoice) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices SET customer_id = $1, customer_info = $2, notes = $3, discount_type = $4, discount_value = $5, updated_at = NOW() WHERE id = $6`,
		inv.CustomerID, inv.CustomerInfo, inv.Notes, inv.DiscountType, inv.DiscountValue, inv.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateInvoiceTotal(ctx context.Context, id int64, total float64) error {
	_, err := r.db.Exec(ctx, `UPDATE invoices SET total = $1, updated_at = NOW() WHERE id = $2`, total, id)
	return err
}

func (r *repository) InsertInvoiceLine(ctx context.Context, l InvoiceLine) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoice_lines (invoice_id, line_order, variation_id, product_name, size, accessory, quantity, unit_price, taxable, display_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		l.InvoiceID, l.LineOrder, l.VariationID, l.ProductName, l.Size, l.Accessory, l.Quantity, l.UnitPrice, l.Taxable, l.DisplayName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert invoice line: %w", err)
	}
	return id, nil
}

func (r *repository) DeleteInvoiceLines(ctx context.Context, invoiceID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, invoiceID)
	return err
}

func (r *repository) DeleteInvoice(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func pageBounds(req ListRequest) (limit, offset int) {
	perPage := req.PerPage
	if perPage <= 0 || perPage > 200 {
		perPage = 20
	}
	page := req.Page
	if page <= 0 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}
