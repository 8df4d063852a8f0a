package billing

import (
	"time"
)

// Notes length caps, enforced before any write. Over-cap notes are rejected,
// never truncated.
const (
	EstimateNotesMaxLen = 150
	InvoiceNotesMaxLen  = 2000
)

// Estimate is a draft document owned by one user. Its total is derived from
// the stored lines at write time and is never taken from the client.
type Estimate struct {
	ID           int64          `json:"id"`
	UserID       int64          `json:"user_id"`
	CustomerID   *int64         `json:"customer_id,omitempty"`
	CustomerInfo string         `json:"customer_info"`
	Notes        *string        `json:"notes,omitempty"`
	Total        float64        `json:"total"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Lines        []EstimateLine `json:"lines,omitempty"`
}

// Invoice is a billable document. Unlike estimates it carries an optional
// discount specification that participates in the total.
type Invoice struct {
	ID            int64         `json:"id"`
	UserID        int64         `json:"user_id"`
	CustomerID    *int64        `json:"customer_id,omitempty"`
	CustomerInfo  string        `json:"customer_info"`
	Notes         *string       `json:"notes,omitempty"`
	DiscountType  *DiscountType `json:"discount_type,omitempty"`
	DiscountValue *float64      `json:"discount_value,omitempty"`
	Total         float64       `json:"total"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Lines         []InvoiceLine `json:"lines,omitempty"`
}

// EstimateLine is one stored line of an estimate. Catalog lines keep the
// caller's overrides as written (nil means "not provided", falling back to
// the catalog at read time); custom lines carry every field explicitly.
type EstimateLine struct {
	ID          int64    `json:"id"`
	EstimateID  int64    `json:"estimate_id"`
	LineOrder   int      `json:"line_order"`
	VariationID *int64   `json:"variation_id,omitempty"`
	ProductName *string  `json:"product_name,omitempty"`
	Size        string   `json:"size"`
	Accessory   string   `json:"accessory"`
	Quantity    int      `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Taxable     *bool    `json:"taxable,omitempty"`
	DisplayName *string  `json:"display_name,omitempty"`
}

// InvoiceLine mirrors EstimateLine for invoices. Conversion copies estimate
// lines into these rows preserving the override columns verbatim.
type InvoiceLine struct {
	ID          int64    `json:"id"`
	InvoiceID   int64    `json:"invoice_id"`
	LineOrder   int      `json:"line_order"`
	VariationID *int64   `json:"variation_id,omitempty"`
	ProductName *string  `json:"product_name,omitempty"`
	Size        string   `json:"size"`
	Accessory   string   `json:"accessory"`
	Quantity    int      `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Taxable     *bool    `json:"taxable,omitempty"`
	DisplayName *string  `json:"display_name,omitempty"`
}

// Item is one normalized line in a read-items response, in stored order.
type Item struct {
	Type        string  `json:"type"` // "variation" or "custom"
	ProductName string  `json:"product_name"`
	Size        string  `json:"size"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	Accessory   string  `json:"accessory"`
	Taxable     bool    `json:"taxable"`
	VariationID *int64  `json:"variation_id"`
}

// VariationItemRequest references a catalog variation with optional per-line
// overrides. Absent pointer fields fall back to the catalog's canonical
// values (taxable defaults to true).
type VariationItemRequest struct {
	VariationID int64    `json:"variation_id" validate:"required,gt=0"`
	Quantity    int      `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Taxable     *bool    `json:"taxable,omitempty"`
	DisplayName *string  `json:"display_name,omitempty" validate:"omitempty,max=200"`
}

// CustomItemRequest is a free-form line with no catalog backing.
type CustomItemRequest struct {
	ProductName string   `json:"product_name" validate:"required,max=200"`
	Size        string   `json:"size" validate:"max=100"`
	Price       float64  `json:"price"`
	Quantity    int      `json:"quantity"`
	Accessory   string   `json:"accessory" validate:"max=200"`
	Taxable     *bool    `json:"taxable,omitempty"`
}

// CreateEstimateRequest creates or fully replaces an estimate's content.
type CreateEstimateRequest struct {
	CustomerID     *int64                 `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	CustomerInfo   string                 `json:"customer_info" validate:"max=2000"`
	Notes          *string                `json:"notes,omitempty"`
	VariationItems []VariationItemRequest `json:"variationItems" validate:"dive"`
	CustomItems    []CustomItemRequest    `json:"customItems" validate:"dive"`
}

// CreateInvoiceRequest mirrors CreateEstimateRequest with a discount.
type CreateInvoiceRequest struct {
	CustomerID     *int64                 `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	CustomerInfo   string                 `json:"customer_info" validate:"max=2000"`
	Notes          *string                `json:"notes,omitempty"`
	VariationItems []VariationItemRequest `json:"variationItems" validate:"dive"`
	CustomItems    []CustomItemRequest    `json:"customItems" validate:"dive"`
	DiscountType   *DiscountType          `json:"discount_type,omitempty" validate:"omitempty,oneof=amount percent"`
	DiscountValue  *float64               `json:"discount_value,omitempty"`
}

// ConvertRequest turns an estimate into an invoice. The discount comes from
// the request, never from the estimate (estimates carry none); notes may be
// overridden, otherwise the estimate's notes carry over.
type ConvertRequest struct {
	DiscountType  *DiscountType `json:"discount_type,omitempty" validate:"omitempty,oneof=amount percent"`
	DiscountValue *float64      `json:"discount_value,omitempty"`
	Notes         *string       `json:"notes,omitempty"`
}

// ListRequest pages a user's documents newest-first.
type ListRequest struct {
	UserID  int64
	Page    int
	PerPage int
}
