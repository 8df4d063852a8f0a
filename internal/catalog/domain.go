package catalog

import "time"

// Product is a user-owned catalog entry grouping sellable variations.
type Product struct {
	ID         int64       `json:"id"`
	UserID     int64       `json:"user_id"`
	Name       string      `json:"name"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Variations []Variation `json:"variations,omitempty"`
}

// Variation is one sellable size/accessory combination with its list price.
type Variation struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Size      string    `json:"size"`
	Accessory string    `json:"accessory"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductRequest creates or renames a product.
type ProductRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// VariationRequest creates or replaces a variation under a product.
type VariationRequest struct {
	Size      string  `json:"size" validate:"max=100"`
	Accessory string  `json:"accessory" validate:"max=200"`
	Price     float64 `json:"price" validate:"gte=0"`
}

// ListProductsRequest filters a user's products. Query matching is
// case-folded, so "Ring" finds "ring" and vice versa.
type ListProductsRequest struct {
	UserID int64
	Query  string
}
