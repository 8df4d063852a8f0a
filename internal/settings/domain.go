package settings

import "time"

// DefaultTaxRate applies when a user has no settings row or the stored rate
// falls outside [0,1].
const DefaultTaxRate = 0.06

// StoreSettings is the per-user configuration record. Exactly one row per
// user; reads fall back to defaults when the row is absent.
type StoreSettings struct {
	UserID    int64     `json:"user_id"`
	StoreName string    `json:"store_name"`
	TaxRate   float64   `json:"tax_rate"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateRequest replaces a user's settings. The tax rate is a fraction, not a
// percentage.
type UpdateRequest struct {
	StoreName string  `json:"store_name" validate:"max=200"`
	TaxRate   float64 `json:"tax_rate" validate:"gte=0,lte=1"`
}
