package billing

// FallbackLabel names a line whose catalog reference could not be resolved.
// The label is the caller-visible marker for the degraded price-0 fallback.
const FallbackLabel = "Item"

// CatalogRef is the canonical catalog record for a variation, as supplied by
// the price lookup. A nil CatalogRef means the reference did not resolve.
type CatalogRef struct {
	VariationID int64
	ProductName string
	Size        string
	Accessory   string
	Price       float64
}

// ResolvedLine is a fully normalized line: effective price, taxable flag and
// label after merging overrides with catalog values. Invariants:
// Quantity >= 1 and UnitPrice >= 0 regardless of input.
type ResolvedLine struct {
	VariationID *int64
	Label       string
	Size        string
	Accessory   string
	UnitPrice   float64
	Quantity    int
	Taxable     bool
}

// Amount is the line's contribution to its document total.
func (l ResolvedLine) Amount() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// ResolveVariationLine merges a catalog line request with its canonical
// catalog record. Overrides win when present; otherwise price and label come
// from the catalog and taxable defaults to true. A nil ref degrades to a
// zero-price line labelled FallbackLabel instead of failing the document.
func ResolveVariationLine(req VariationItemRequest, ref *CatalogRef) ResolvedLine {
	id := req.VariationID
	line := ResolvedLine{
		VariationID: &id,
		Label:       FallbackLabel,
		Quantity:    normalizeQuantity(req.Quantity),
		Taxable:     true,
	}

	if ref != nil {
		line.UnitPrice = ref.Price
		line.Size = ref.Size
		line.Accessory = ref.Accessory
		if ref.ProductName != "" {
			line.Label = ref.ProductName
		}
	}
	if req.UnitPrice != nil {
		line.UnitPrice = *req.UnitPrice
	}
	if req.Taxable != nil {
		line.Taxable = *req.Taxable
	}
	if req.DisplayName != nil && *req.DisplayName != "" {
		line.Label = *req.DisplayName
	}
	if line.UnitPrice < 0 {
		line.UnitPrice = 0
	}
	return line
}

// ResolveCustomLine normalizes a free-form line. All fields come from the
// request under the same clamping rules; taxable defaults to true.
func ResolveCustomLine(req CustomItemRequest) ResolvedLine {
	line := ResolvedLine{
		Label:     req.ProductName,
		Size:      req.Size,
		Accessory: req.Accessory,
		UnitPrice: req.Price,
		Quantity:  normalizeQuantity(req.Quantity),
		Taxable:   true,
	}
	if line.Label == "" {
		line.Label = FallbackLabel
	}
	if req.Taxable != nil {
		line.Taxable = *req.Taxable
	}
	if line.UnitPrice < 0 {
		line.UnitPrice = 0
	}
	return line
}

// resolveStored normalizes an already-persisted line for totals and item
// listings. Stored overrides win; absent ones fall back to the catalog record
// exactly as at create time.
func resolveStored(variationID *int64, productName *string, size, accessory string, quantity int, unitPrice *float64, taxable *bool, displayName *string, ref *CatalogRef) ResolvedLine {
	if variationID == nil {
		req := CustomItemRequest{
			Size:      size,
			Accessory: accessory,
			Quantity:  quantity,
			Taxable:   taxable,
		}
		if productName != nil {
			req.ProductName = *productName
		}
		if unitPrice != nil {
			req.Price = *unitPrice
		}
		return ResolveCustomLine(req)
	}
	return ResolveVariationLine(VariationItemRequest{
		VariationID: *variationID,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Taxable:     taxable,
		DisplayName: displayName,
	}, ref)
}

// ResolveStoredEstimateLine normalizes a persisted estimate line.
func ResolveStoredEstimateLine(l EstimateLine, ref *CatalogRef) ResolvedLine {
	return resolveStored(l.VariationID, l.ProductName, l.Size, l.Accessory, l.Quantity, l.UnitPrice, l.Taxable, l.DisplayName, ref)
}

// ResolveStoredInvoiceLine normalizes a persisted invoice line.
func ResolveStoredInvoiceLine(l InvoiceLine, ref *CatalogRef) ResolvedLine {
	return resolveStored(l.VariationID, l.ProductName, l.Size, l.Accessory, l.Quantity, l.UnitPrice, l.Taxable, l.DisplayName, ref)
}

// normalizeQuantity floors any non-positive quantity to 1.
func normalizeQuantity(q int) int {
	if q < 1 {
		return 1
	}
	return q
}
