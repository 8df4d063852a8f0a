package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"github.com/tidebill/tidebill/internal/shared"
)

var (
	// ErrForbidden indicates the document belongs to a different user.
	// Ownership denials always surface as forbidden, never as not-found.
	ErrForbidden = errors.New("document owned by another user")
	// ErrValidation indicates the request was rejected before any write.
	ErrValidation = errors.New("validation failed")
)

// PriceLookup resolves a catalog variation to its canonical record.
// A missing variation returns (nil, nil): the caller degrades the line to a
// zero-price placeholder rather than failing the document. Errors are
// reserved for infrastructure failures.
type PriceLookup interface {
	Variation(ctx context.Context, userID, variationID int64) (*CatalogRef, error)
}

// TaxRateSource yields the user's store tax rate as a fraction in [0,1],
// already defaulted when the settings record is absent or out of range.
type TaxRateSource interface {
	TaxRate(ctx context.Context, userID int64) (float64, error)
}

// AuditRecorder persists audit trail entries for document mutations.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for estimates and invoices.
type Service struct {
	repo    Repository
	catalog PriceLookup
	rates   TaxRateSource
	audit   AuditRecorder
	logger  *slog.Logger
}

// NewService constructs a billing service.
func NewService(repo Repository, catalog PriceLookup, rates TaxRateSource, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		rates:   rates,
		audit:   audit,
		logger:  logger,
	}
}

// lineDraft is a resolved request line ready for persistence. The stored
// columns keep the caller's overrides verbatim; resolved carries the
// effective values used for totals.
type lineDraft struct {
	VariationID *int64
	ProductName *string
	Size        string
	Accessory   string
	Quantity    int
	UnitPrice   *float64
	Taxable     *bool
	DisplayName *string

	resolved ResolvedLine
}

// resolveRequest normalizes every requested line, looking up catalog records
// one by one. Catalog lines keep override pointers as given; custom lines are
// stored fully resolved. Order: variation items first, then custom items.
func (s *Service) resolveRequest(ctx context.Context, userID int64, variationItems []VariationItemRequest, customItems []CustomItemRequest) ([]lineDraft, error) {
	drafts := make([]lineDraft, 0, len(variationItems)+len(customItems))

	for _, item := range variationItems {
		ref, err := s.lookupRef(ctx, userID, item.VariationID)
		if err != nil {
			return nil, err
		}
		resolved := ResolveVariationLine(item, ref)
		id := item.VariationID
		drafts = append(drafts, lineDraft{
			VariationID: &id,
			Quantity:    resolved.Quantity,
			UnitPrice:   item.UnitPrice,
			Taxable:     item.Taxable,
			DisplayName: item.DisplayName,
			resolved:    resolved,
		})
	}

	for _, item := range customItems {
		resolved := ResolveCustomLine(item)
		name := resolved.Label
		price := resolved.UnitPrice
		taxable := resolved.Taxable
		drafts = append(drafts, lineDraft{
			ProductName: &name,
			Size:        item.Size,
			Accessory:   item.Accessory,
			Quantity:    resolved.Quantity,
			UnitPrice:   &price,
			Taxable:     &taxable,
			resolved:    resolved,
		})
	}

	return drafts, nil
}

func (s *Service) lookupRef(ctx context.Context, userID, variationID int64) (*CatalogRef, error) {
	ref, err := s.catalog.Variation(ctx, userID, variationID)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}
	if ref == nil {
		s.logger.Warn("catalog reference did not resolve, degrading to zero price",
			slog.Int64("user_id", userID), slog.Int64("variation_id", variationID))
	}
	return ref, nil
}

func resolvedOf(drafts []lineDraft) []ResolvedLine {
	lines := make([]ResolvedLine, len(drafts))
	for i, draft := range drafts {
		lines[i] = draft.resolved
	}
	return lines
}

func validateNotes(notes *string, maxLen int) error {
	if notes == nil {
		return nil
	}
	if utf8.RuneCountInString(*notes) > maxLen {
		return fmt.Errorf("%w: notes exceed %d characters", ErrValidation, maxLen)
	}
	return nil
}

func discountOf(discountType *DiscountType, discountValue *float64) *Discount {
	if discountType == nil {
		return nil
	}
	d := Discount{Type: *discountType}
	if discountValue != nil {
		d.Value = *discountValue
	}
	return &d
}

func validateDiscount(discountType *DiscountType) error {
	if discountType == nil {
		return nil
	}
	switch *discountType {
	case DiscountAmount, DiscountPercent:
		return nil
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrValidation, string(*discountType))
	}
}

// ============================================================================
// ESTIMATES
// ============================================================================

// CreateEstimate resolves the requested lines, computes the total at the
// user's tax rate, and persists header plus lines atomically.
func (s *Service) CreateEstimate(ctx context.Context, userID int64, req CreateEstimateRequest) (*Estimate, error) {
	if err := validateNotes(req.Notes, EstimateNotesMaxLen); err != nil {
		return nil, err
	}

	drafts, err := s.resolveRequest(ctx, userID, req.VariationItems, req.CustomItems)
	if err != nil {
		return nil, err
	}

	rate, err := s.rates.TaxRate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tax rate: %w", err)
	}
	taxable, nontaxable := Subtotals(resolvedOf(drafts))
	total := ComputeTotal(taxable, nontaxable, rate, nil)

	var estimateID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		id, err := tx.CreateEstimate(ctx, Estimate{
			UserID:       userID,
			CustomerID:   req.CustomerID,
			CustomerInfo: req.CustomerInfo,
			Notes:        req.Notes,
			Total:        total,
		})
		if err != nil {
			return fmt.Errorf("create estimate: %w", err)
		}
		estimateID = id

		for i, draft := range drafts {
			line := EstimateLine{
				EstimateID:  estimateID,
				LineOrder:   i + 1,
				VariationID: draft.VariationID,
				ProductName: draft.ProductName,
				Size:        draft.Size,
				Accessory:   draft.Accessory,
				Quantity:    draft.Quantity,
				UnitPrice:   draft.UnitPrice,
				Taxable:     draft.Taxable,
				DisplayName: draft.DisplayName,
			}
			if _, err := tx.InsertEstimateLine(ctx, line); err != nil {
				return fmt.Errorf("insert estimate line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, userID, "estimate.create", "estimate", estimateID, map[string]any{"total": total})
	return s.repo.GetEstimate(ctx, estimateID)
}

// UpdateEstimate replaces the estimate's content in full: header fields, all
// lines (delete then re-insert, no diffing), and the recomputed total.
func (s *Service) UpdateEstimate(ctx context.Context, userID, id int64, req CreateEstimateRequest) (*Estimate, error) {
	existing, err := s.ownedEstimate(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := validateNotes(req.Notes, EstimateNotesMaxLen); err != nil {
		return nil, err
	}

	drafts, err := s.resolveRequest(ctx, userID, req.VariationItems, req.CustomItems)
	if err != nil {
		return nil, err
	}

	rate, err := s.rates.TaxRate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tax rate: %w", err)
	}
	taxable, nontaxable := Subtotals(resolvedOf(drafts))
	total := ComputeTotal(taxable, nontaxable, rate, nil)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		header := *existing
		header.CustomerID = req.CustomerID
		header.CustomerInfo = req.CustomerInfo
		header.Notes = req.Notes
		if err := tx.UpdateEstimateHeader(ctx, header); err != nil {
			return fmt.Errorf("update estimate header: %w", err)
		}
		if err := tx.DeleteEstimateLines(ctx, id); err != nil {
			return fmt.Errorf("delete estimate lines: %w", err)
		}
		for i, draft := range drafts {
			line := EstimateLine{
				EstimateID:  id,
				LineOrder:   i + 1,
				VariationID: draft.VariationID,
				ProductName: draft.ProductName,
				Size:        draft.Size,
				Accessory:   draft.Accessory,
				Quantity:    draft.Quantity,
				UnitPrice:   draft.UnitPrice,
				Taxable:     draft.Taxable,
				DisplayName: draft.DisplayName,
			}
			if _, err := tx.InsertEstimateLine(ctx, line); err != nil {
				return fmt.Errorf("insert estimate line: %w", err)
			}
		}
		if err := tx.UpdateEstimateTotal(ctx, id, total); err != nil {
			return fmt.Errorf("update estimate total: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, userID, "estimate.update", "estimate", id, map[string]any{"total": total})
	return s.repo.GetEstimate(ctx, id)
}

// GetEstimate returns an owned estimate with its stored lines.
func (s *Service) GetEstimate(ctx context.Context, userID, id int64) (*Estimate, error) {
	return s.ownedEstimate(ctx, userID, id)
}

// ListEstimates pages the user's estimates newest-first.
func (s *Service) ListEstimates(ctx context.Context, req ListRequest) ([]Estimate, int, error) {
	return s.repo.ListEstimates(ctx, req)
}

// EstimateItems returns the estimate's normalized lines in stored order,
// resolving catalog fallbacks for display.
func (s *Service) EstimateItems(ctx context.Context, userID, id int64) ([]Item, error) {
	estimate, err := s.ownedEstimate(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(estimate.Lines))
	for _, line := range estimate.Lines {
		var ref *CatalogRef
		if line.VariationID != nil {
			ref, err = s.lookupRef(ctx, userID, *line.VariationID)
			if err != nil {
				return nil, err
			}
		}
		items = append(items, itemOf(ResolveStoredEstimateLine(line, ref)))
	}
	return items, nil
}

// DeleteEstimate removes the estimate and its lines atomically.
func (s *Service) DeleteEstimate(ctx context.Context, userID, id int64) error {
	if _, err := s.ownedEstimate(ctx, userID, id); err != nil {
		return err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.DeleteEstimateLines(ctx, id); err != nil {
			return fmt.Errorf("delete estimate lines: %w", err)
		}
		if err := tx.DeleteEstimate(ctx, id); err != nil {
			return fmt.Errorf("delete estimate: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, userID, "estimate.delete", "estimate", id, nil)
	return nil
}

func (s *Service) ownedEstimate(ctx context.Context, userID, id int64) (*Estimate, error) {
	estimate, err := s.repo.GetEstimate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get estimate: %w", err)
	}
	if estimate.UserID != userID {
		return nil, ErrForbidden
	}
	return estimate, nil
}

// ============================================================================
// INVOICES
// ============================================================================

// CreateInvoice resolves the requested lines and persists the invoice with
// the discounted total.
func (s *Service) CreateInvoice(ctx context.Context, userID int64, req CreateInvoiceRequest) (*Invoice, error) {
	if err := validateNotes(req.Notes, InvoiceNotesMaxLen); err != nil {
		return nil, err
	}
	if err := validateDiscount(req.DiscountType); err != nil {
		return nil, err
	}

	drafts, err := s.resolveRequest(ctx, userID, req.VariationItems, req.CustomItems)
	if err != nil {
		return nil, err
	}

	rate, err := s.rates.TaxRate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tax rate: %w", err)
	}
	taxable, nontaxable := Subtotals(resolvedOf(drafts))
	total := ComputeTotal(taxable, nontaxable, rate, discountOf(req.DiscountType, req.DiscountValue))

	var invoiceID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		id, err := tx.CreateInvoice(ctx, Invoice{
			UserID:        userID,
			CustomerID:    req.CustomerID,
			CustomerInfo:  req.CustomerInfo,
			Notes:         req.Notes,
			DiscountType:  req.DiscountType,
			DiscountValue: req.DiscountValue,
			Total:         total,
		})
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		invoiceID = id

		for i, draft := range drafts {
			line := InvoiceLine{
				InvoiceID:   invoiceID,
				LineOrder:   i + 1,
				VariationID: draft.VariationID,
				ProductName: draft.ProductName,
				Size:        draft.Size,
				Accessory:   draft.Accessory,
				Quantity:    draft.Quantity,
				UnitPrice:   draft.UnitPrice,
				Taxable:     draft.Taxable,
				DisplayName: draft.DisplayName,
			}
			if _, err := tx.InsertInvoiceLine(ctx, line); err != nil {
				return fmt.Errorf("insert invoice line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, userID, "invoice.create", "invoice", invoiceID, map[string]any{"total": total})
	return s.repo.GetInvoice(ctx, invoiceID)
}

// UpdateInvoice replaces the invoice's content in full and recomputes the
// total with the request's discount.
func (s *Service) UpdateInvoice(ctx context.Context, userID, id int64, req CreateInvoiceRequest) (*Invoice, error) {
	existing, err := s.ownedInvoice(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := validateNotes(req.Notes, InvoiceNotesMaxLen); err != nil {
		return nil, err
	}
	if err := validateDiscount(req.DiscountType); err != nil {
		return nil, err
	}

	drafts, err := s.resolveRequest(ctx, userID, req.VariationItems, req.CustomItems)
	if err != nil {
		return nil, err
	}

	rate, err := s.rates.TaxRate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tax rate: %w", err)
	}
	taxable, nontaxable := Subtotals(resolvedOf(drafts))
	total := ComputeTotal(taxable, nontaxable, rate, discountOf(req.DiscountType, req.DiscountValue))

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		header := *existing
		header.CustomerID = req.CustomerID
		header.CustomerInfo = req.CustomerInfo
		header.Notes = req.Notes
		header.DiscountType = req.DiscountType
		header.DiscountValue = req.DiscountValue
		if err := tx.UpdateInvoiceHeader(ctx, header); err != nil {
			return fmt.Errorf("update invoice header: %w", err)
		}
		if err := tx.DeleteInvoiceLines(ctx, id); err != nil {
			return fmt.Errorf("delete invoice lines: %w", err)
		}
		for i, draft := range drafts {
			line := InvoiceLine{
				InvoiceID:   id,
				LineOrder:   i + 1,
				VariationID: draft.VariationID,
				ProductName: draft.ProductName,
				Size:        draft.Size,
				Accessory:   draft.Accessory,
				Quantity:    draft.Quantity,
				UnitPrice:   draft.UnitPrice,
				Taxable:     draft.Taxable,
				DisplayName: draft.DisplayName,
			}
			if _, err := tx.InsertInvoiceLine(ctx, line); err != nil {
				return fmt.Errorf("insert invoice line: %w", err)
			}
		}
		if err := tx.UpdateInvoiceTotal(ctx, id, total); err != nil {
			return fmt.Errorf("update invoice total: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, userID, "invoice.update", "invoice", id, map[string]any{"total": total})
	return s.repo.GetInvoice(ctx, id)
}

// GetInvoice returns an owned invoice with its stored lines.
func (s *Service) GetInvoice(ctx context.Context, userID, id int64) (*Invoice, error) {
	return s.ownedInvoice(ctx, userID, id)
}

// ListInvoices pages the user's invoices newest-first.
func (s *Service) ListInvoices(ctx context.Context, req ListRequest) ([]Invoice, int, error) {
	return s.repo.ListInvoices(ctx, req)
}

// InvoiceItems returns the invoice's normalized lines in stored order.
func (s *Service) InvoiceItems(ctx context.Context, userID, id int64) ([]Item, error) {
	invoice, err := s.ownedInvoice(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(invoice.Lines))
	for _, line := range invoice.Lines {
		var ref *CatalogRef
		if line.VariationID != nil {
			ref, err = s.lookupRef(ctx, userID, *line.VariationID)
			if err != nil {
				return nil, err
			}
		}
		items = append(items, itemOf(ResolveStoredInvoiceLine(line, ref)))
	}
	return items, nil
}

// DeleteInvoice removes the invoice and its lines atomically.
func (s *Service) DeleteInvoice(ctx context.Context, userID, id int64) error {
	if _, err := s.ownedInvoice(ctx, userID, id); err != nil {
		return err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.DeleteInvoiceLines(ctx, id); err != nil {
			return fmt.Errorf("delete invoice lines: %w", err)
		}
		if err := tx.DeleteInvoice(ctx, id); err != nil {
			return fmt.Errorf("delete invoice: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, userID, "invoice.delete", "invoice", id, nil)
	return nil
}

func (s *Service) ownedInvoice(ctx context.Context, userID, id int64) (*Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	if invoice.UserID != userID {
		return nil, ErrForbidden
	}
	return invoice, nil
}

// ============================================================================
// CONVERSION
// ============================================================================

// ConvertEstimateToInvoice moves an estimate into a new invoice inside one
// transaction: the invoice is created from the estimate's stored lines
// (preserving line-level overrides), the total is computed with the request's
// discount at the user's tax rate, and the estimate is deleted. Any failure
// rolls the whole operation back, leaving the estimate untouched.
func (s *Service) ConvertEstimateToInvoice(ctx context.Context, userID, estimateID int64, req ConvertRequest) (*Invoice, error) {
	if err := validateNotes(req.Notes, InvoiceNotesMaxLen); err != nil {
		return nil, err
	}
	if err := validateDiscount(req.DiscountType); err != nil {
		return nil, err
	}

	rate, err := s.rates.TaxRate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tax rate: %w", err)
	}
	discount := discountOf(req.DiscountType, req.DiscountValue)

	var invoiceID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		estimate, err := tx.GetEstimate(ctx, estimateID)
		if err != nil {
			return fmt.Errorf("get estimate: %w", err)
		}
		if estimate.UserID != userID {
			return ErrForbidden
		}

		notes := estimate.Notes
		if req.Notes != nil {
			notes = req.Notes
		}

		id, err := tx.CreateInvoice(ctx, Invoice{
			UserID:        userID,
			CustomerID:    estimate.CustomerID,
			CustomerInfo:  estimate.CustomerInfo,
			Notes:         notes,
			DiscountType:  req.DiscountType,
			DiscountValue: req.DiscountValue,
			Total:         0,
		})
		if err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		invoiceID = id

		var taxable, nontaxable float64
		for _, line := range estimate.Lines {
			var ref *CatalogRef
			if line.VariationID != nil {
				ref, err = s.lookupRef(ctx, userID, *line.VariationID)
				if err != nil {
					return err
				}
			}
			resolved := ResolveStoredEstimateLine(line, ref)
			if resolved.Taxable {
				taxable += resolved.Amount()
			} else {
				nontaxable += resolved.Amount()
			}

			invoiceLine := InvoiceLine{
				InvoiceID:   invoiceID,
				LineOrder:   line.LineOrder,
				VariationID: line.VariationID,
				ProductName: line.ProductName,
				Size:        line.Size,
				Accessory:   line.Accessory,
				Quantity:    resolved.Quantity,
				UnitPrice:   line.UnitPrice,
				Taxable:     line.Taxable,
				DisplayName: line.DisplayName,
			}
			if _, err := tx.InsertInvoiceLine(ctx, invoiceLine); err != nil {
				return fmt.Errorf("insert invoice line: %w", err)
			}
		}

		total := ComputeTotal(taxable, nontaxable, rate, discount)
		if err := tx.UpdateInvoiceTotal(ctx, invoiceID, total); err != nil {
			return fmt.Errorf("update invoice total: %w", err)
		}

		if err := tx.DeleteEstimateLines(ctx, estimateID); err != nil {
			return fmt.Errorf("delete estimate lines: %w", err)
		}
		if err := tx.DeleteEstimate(ctx, estimateID); err != nil {
			return fmt.Errorf("delete estimate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, userID, "estimate.convert", "invoice", invoiceID, map[string]any{"estimate_id": estimateID})
	return s.repo.GetInvoice(ctx, invoiceID)
}

// ============================================================================
// HELPERS
// ============================================================================

func itemOf(line ResolvedLine) Item {
	item := Item{
		Type:        "custom",
		ProductName: line.Label,
		Size:        line.Size,
		Price:       line.UnitPrice,
		Quantity:    line.Quantity,
		Accessory:   line.Accessory,
		Taxable:     line.Taxable,
		VariationID: line.VariationID,
	}
	if line.VariationID != nil {
		item.Type = "variation"
	}
	return item
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
