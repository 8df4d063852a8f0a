package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidebill/tidebill/internal/shared"
)

// ============================================================================
// MOCKS
// ============================================================================

type mockRepository struct {
	estimates     map[int64]*Estimate
	estimateLines map[int64][]EstimateLine
	invoices      map[int64]*Invoice
	invoiceLines  map[int64][]InvoiceLine

	nextEstimateID int64
	nextInvoiceID  int64
	nextLineID     int64

	// Error injection
	txError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		estimates:      make(map[int64]*Estimate),
		estimateLines:  make(map[int64][]EstimateLine),
		invoices:       make(map[int64]*Invoice),
		invoiceLines:   make(map[int64][]InvoiceLine),
		nextEstimateID: 1,
		nextInvoiceID:  1,
		nextLineID:     1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, m)
}

func (m *mockRepository) GetEstimate(ctx context.Context, id int64) (*Estimate, error) {
	e, ok := m.estimates[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *e
	out.Lines = append([]EstimateLine(nil), m.estimateLines[id]...)
	return &out, nil
}

func (m *mockRepository) ListEstimates(ctx context.Context, req ListRequest) ([]Estimate, int, error) {
	var out []Estimate
	for _, e := range m.estimates {
		if e.UserID == req.UserID {
			out = append(out, *e)
		}
	}
	return out, len(out), nil
}

func (m *mockRepository) CreateEstimate(ctx context.Context, e Estimate) (int64, error) {
	id := m.nextEstimateID
	m.nextEstimateID++
	e.ID = id
	m.estimates[id] = &e
	return id, nil
}

func (m *mockRepository) UpdateEstimateHeader(ctx context.Context, e Estimate) error {
	existing, ok := m.estimates[e.ID]
	if !ok {
		return ErrNotFound
	}
	existing.CustomerID = e.CustomerID
	existing.CustomerInfo = e.CustomerInfo
	existing.Notes = e.Notes
	return nil
}

func (m *mockRepository) UpdateEstimateTotal(ctx context.Context, id int64, total float64) error {
	e, ok := m.estimates[id]
	if !ok {
		return ErrNotFound
	}
	e.Total = total
	return nil
}

func (m *mockRepository) InsertEstimateLine(ctx context.Context, l EstimateLine) (int64, error) {
	l.ID = m.nextLineID
	m.nextLineID++
	m.estimateLines[l.EstimateID] = append(m.estimateLines[l.EstimateID], l)
	return l.ID, nil
}

func (m *mockRepository) DeleteEstimateLines(ctx context.Context, estimateID int64) error {
	delete(m.estimateLines, estimateID)
	return nil
}

func (m *mockRepository) DeleteEstimate(ctx context.Context, id int64) error {
	if _, ok := m.estimates[id]; !ok {
		return ErrNotFound
	}
	delete(m.estimates, id)
	return nil
}

func (m *mockRepository) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *inv
	out.Lines = append([]InvoiceLine(nil), m.invoiceLines[id]...)
	return &out, nil
}

func (m *mockRepository) ListInvoices(ctx context.Context, req ListRequest) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if inv.UserID == req.UserID {
			out = append(out, *inv)
		}
	}
	return out, len(out), nil
}

func (m *mockRepository) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	id := m.nextInvoiceID
	m.nextInvoiceID++
	inv.ID = id
	m.invoices[id] = &inv
	return id, nil
}

func (m *mockRepository) UpdateInvoiceHeader(ctx context.Context, inv Invoice) error {
	existing, ok := m.invoices[inv.ID]
	if !ok {
		return ErrNotFound
	}
	existing.CustomerID = inv.CustomerID
	existing.CustomerInfo = inv.CustomerInfo
	existing.Notes = inv.Notes
	existing.DiscountType = inv.DiscountType
	existing.DiscountValue = inv.DiscountValue
	return nil
}

func (m *mockRepository) UpdateInvoiceTotal(ctx context.Context, id int64, total float64) error {
	inv, ok := m.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Total = total
	return nil
}

func (m *mockRepository) InsertInvoiceLine(ctx context.Context, l InvoiceLine) (int64, error) {
	l.ID = m.nextLineID
	m.nextLineID++
	m.invoiceLines[l.InvoiceID] = append(m.invoiceLines[l.InvoiceID], l)
	return l.ID, nil
}

func (m *mockRepository) DeleteInvoiceLines(ctx context.Context, invoiceID int64) error {
	delete(m.invoiceLines, invoiceID)
	return nil
}

func (m *mockRepository) DeleteInvoice(ctx context.Context, id int64) error {
	if _, ok := m.invoices[id]; !ok {
		return ErrNotFound
	}
	delete(m.invoices, id)
	return nil
}

type mockCatalog struct {
	refs    map[int64]*CatalogRef
	lookups int
}

func (m *mockCatalog) Variation(ctx context.Context, userID, variationID int64) (*CatalogRef, error) {
	m.lookups++
	return m.refs[variationID], nil
}

type mockRates struct {
	rate float64
	err  error
}

func (m *mockRates) TaxRate(ctx context.Context, userID int64) (float64, error) {
	return m.rate, m.err
}

type mockAudit struct {
	actions []string
}

func (m *mockAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.actions = append(m.actions, log.Action)
	return nil
}

func newTestService(repo *mockRepository) (*Service, *mockCatalog, *mockAudit) {
	catalog := &mockCatalog{refs: map[int64]*CatalogRef{
		7: {VariationID: 7, ProductName: "Widget", Size: "M", Price: 10},
	}}
	audit := &mockAudit{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, catalog, &mockRates{rate: 0.06}, audit, logger), catalog, audit
}

func workedRequest() CreateEstimateRequest {
	nontaxable := false
	return CreateEstimateRequest{
		CustomerInfo: "Jane Doe",
		VariationItems: []VariationItemRequest{
			{VariationID: 7, Quantity: 2},
		},
		CustomItems: []CustomItemRequest{
			{ProductName: "Engraving", Price: 5, Quantity: 1, Taxable: &nontaxable},
		},
	}
}

// ============================================================================
// ESTIMATES
// ============================================================================

func TestCreateEstimateComputesTotal(t *testing.T) {
	repo := newMockRepository()
	svc, _, audit := newTestService(repo)

	estimate, err := svc.CreateEstimate(context.Background(), 1, workedRequest())
	require.NoError(t, err)

	assert.InDelta(t, 26.2, estimate.Total, 1e-9)
	require.Len(t, estimate.Lines, 2)
	assert.Equal(t, 1, estimate.Lines[0].LineOrder)
	assert.NotNil(t, estimate.Lines[0].VariationID)
	assert.Nil(t, estimate.Lines[1].VariationID)
	assert.Contains(t, audit.actions, "estimate.create")
}

func TestCreateEstimateStoresVariationOverridesVerbatim(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	price := 8.0
	req := CreateEstimateRequest{
		VariationItems: []VariationItemRequest{
			{VariationID: 7, Quantity: 1, UnitPrice: &price},
		},
	}
	estimate, err := svc.CreateEstimate(context.Background(), 1, req)
	require.NoError(t, err)

	require.Len(t, estimate.Lines, 1)
	line := estimate.Lines[0]
	require.NotNil(t, line.UnitPrice)
	assert.InDelta(t, 8.0, *line.UnitPrice, 1e-9)
	// Absent overrides stay absent; the catalog fills them at read time.
	assert.Nil(t, line.Taxable)
	assert.Nil(t, line.DisplayName)
	assert.InDelta(t, 8.48, estimate.Total, 1e-9)
}

func TestCreateEstimateStoresCustomLinesFullyResolved(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	estimate, err := svc.CreateEstimate(context.Background(), 1, CreateEstimateRequest{
		CustomItems: []CustomItemRequest{{Price: 5, Quantity: 0}},
	})
	require.NoError(t, err)

	require.Len(t, estimate.Lines, 1)
	line := estimate.Lines[0]
	require.NotNil(t, line.ProductName)
	assert.Equal(t, FallbackLabel, *line.ProductName)
	require.NotNil(t, line.Taxable)
	assert.True(t, *line.Taxable)
	assert.Equal(t, 1, line.Quantity)
}

func TestCreateEstimateMissingCatalogRefDegrades(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	estimate, err := svc.CreateEstimate(context.Background(), 1, CreateEstimateRequest{
		VariationItems: []VariationItemRequest{{VariationID: 999, Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Zero(t, estimate.Total)

	items, err := svc.EstimateItems(context.Background(), 1, estimate.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, FallbackLabel, items[0].ProductName)
	assert.Zero(t, items[0].Price)
	assert.Equal(t, 3, items[0].Quantity)
}

func TestCreateEstimateRejectsLongNotes(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	notes := strings.Repeat("x", EstimateNotesMaxLen+1)
	_, err := svc.CreateEstimate(context.Background(), 1, CreateEstimateRequest{Notes: &notes})
	require.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, repo.estimates)
}

func TestUpdateEstimateReplacesAllLines(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	estimate, err := svc.CreateEstimate(context.Background(), 1, workedRequest())
	require.NoError(t, err)

	updated, err := svc.UpdateEstimate(context.Background(), 1, estimate.ID, CreateEstimateRequest{
		CustomerInfo: "Jane Doe",
		CustomItems:  []CustomItemRequest{{ProductName: "Polish", Price: 3, Quantity: 1}},
	})
	require.NoError(t, err)

	require.Len(t, updated.Lines, 1)
	require.NotNil(t, updated.Lines[0].ProductName)
	assert.Equal(t, "Polish", *updated.Lines[0].ProductName)
	assert.InDelta(t, 3.18, updated.Total, 1e-9)
}

func TestUpdateEstimateWithEmptyLinesZeroesTotal(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	estimate, err := svc.CreateEstimate(context.Background(), 1, workedRequest())
	require.NoError(t, err)
	require.NotZero(t, estimate.Total)

	updated, err := svc.UpdateEstimate(context.Background(), 1, estimate.ID, CreateEstimateRequest{})
	require.NoError(t, err)

	assert.Zero(t, updated.Total)
	assert.Empty(t, updated.Lines)
}

func TestEstimateOwnershipDenied(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	estimate, err := svc.CreateEstimate(context.Background(), 1, workedRequest())
	require.NoError(t, err)

	_, err = svc.GetEstimate(context.Background(), 2, estimate.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.UpdateEstimate(context.Background(), 2, estimate.ID, CreateEstimateRequest{})
	assert.ErrorIs(t, err, ErrForbidden)

	err = svc.DeleteEstimate(context.Background(), 2, estimate.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// The owner still sees the untouched document.
	got, err := svc.GetEstimate(context.Background(), 1, estimate.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 2)
}

func TestDeleteEstimateRemovesLines(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	estimate, err := svc.CreateEstimate(context.Background(), 1, workedRequest())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteEstimate(context.Background(), 1, estimate.ID))
	assert.Empty(t, repo.estimates)
	assert.Empty(t, repo.estimateLines)

	_, err = svc.GetEstimate(context.Background(), 1, estimate.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================================================
// INVOICES
// ============================================================================

func invoiceRequest(discountType *DiscountType, discountValue *float64) CreateInvoiceRequest {
	nontaxable := false
	return CreateInvoiceRequest{
		CustomerInfo: "Jane Doe",
		VariationItems: []VariationItemRequest{
			{VariationID: 7, Quantity: 2},
		},
		CustomItems: []CustomItemRequest{
			{ProductName: "Engraving", Price: 5, Quantity: 1, Taxable: &nontaxable},
		},
		DiscountType:  discountType,
		DiscountValue: discountValue,
	}
}

func TestCreateInvoicePercentDiscount(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	dt := DiscountPercent
	dv := 50.0
	invoice, err := svc.CreateInvoice(context.Background(), 1, invoiceRequest(&dt, &dv))
	require.NoError(t, err)
	assert.InDelta(t, 13.1, invoice.Total, 1e-9)
}

func TestCreateInvoiceAmountDiscount(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	dt := DiscountAmount
	dv := 10.0
	invoice, err := svc.CreateInvoice(context.Background(), 1, invoiceRequest(&dt, &dv))
	require.NoError(t, err)
	assert.InDelta(t, 16.2, invoice.Total, 1e-9)
}

func TestCreateInvoiceRejectsUnknownDiscountType(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	dt := DiscountType("coupon")
	_, err := svc.CreateInvoice(context.Background(), 1, invoiceRequest(&dt, nil))
	require.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, repo.invoices)
}

func TestInvoiceNotesCapIsLargerThanEstimates(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	// 151 runes pass for invoices but fail for estimates.
	notes := strings.Repeat("x", EstimateNotesMaxLen+1)
	_, err := svc.CreateInvoice(context.Background(), 1, CreateInvoiceRequest{Notes: &notes})
	require.NoError(t, err)

	long := strings.Repeat("x", InvoiceNotesMaxLen+1)
	_, err = svc.CreateInvoice(context.Background(), 1, CreateInvoiceRequest{Notes: &long})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateInvoiceEmptyClearsDiscountAndTotal(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	dt := DiscountAmount
	dv := 10.0
	invoice, err := svc.CreateInvoice(context.Background(), 1, invoiceRequest(&dt, &dv))
	require.NoError(t, err)

	updated, err := svc.UpdateInvoice(context.Background(), 1, invoice.ID, CreateInvoiceRequest{})
	require.NoError(t, err)

	assert.Zero(t, updated.Total)
	assert.Empty(t, updated.Lines)
	assert.Nil(t, updated.DiscountType)
}

// ============================================================================
// CONVERSION
// ============================================================================

func TestConvertEstimateToInvoice(t *testing.T) {
	repo := newMockRepository()
	svc, _, audit := newTestService(repo)

	estimate, err := svc.CreateEstimate(context.Background(), 1, workedRequest())
	require.NoError(t, err)

	dt := DiscountAmount
	dv := 10.0
	invoice, err := svc.ConvertEstimateToInvoice(context.Background(), 1, estimate.ID, ConvertRequest{
		DiscountType:  &dt,
		DiscountValue: &dv,
	})
	require.NoError(t, err)

	assert.InDelta(t, 16.2, invoice.Total, 1e-9)
	assert.Equal(t, "Jane Doe", invoice.CustomerInfo)
	require.Len(t, invoice.Lines, 2)
	assert.Equal(t, estimate.Lines[0].VariationID, invoice.Lines[0].VariationID)
	assert.Equal(t, estimate.Lines[1].ProductName, invoice.Lines[1].ProductName)

	// The estimate and its lines are gone.
	_, err = svc.GetEstimate(context.Background(), 1, estimate.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, repo.estimateLines)

	assert.Contains(t, audit.actions, "estimate.convert")
}

func TestConvertEstimateNotesOverride(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	notes := "original"
	req := workedRequest()
	req.Notes = &notes
	estimate, err := svc.CreateEstimate(context.Background(), 1, req)
	require.NoError(t, err)

	override := "replaced"
	invoice, err := svc.ConvertEstimateToInvoice(context.Background(), 1, estimate.ID, ConvertRequest{Notes: &override})
	require.NoError(t, err)
	require.NotNil(t, invoice.Notes)
	assert.Equal(t, "replaced", *invoice.Notes)
}

func TestConvertEstimateCarriesNotesWhenNotOverridden(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	notes := "keep me"
	req := workedRequest()
	req.Notes = &notes
	estimate, err := svc.CreateEstimate(context.Background(), 1, req)
	require.NoError(t, err)

	invoice, err := svc.ConvertEstimateToInvoice(context.Background(), 1, estimate.ID, ConvertRequest{})
	require.NoError(t, err)
	require.NotNil(t, invoice.Notes)
	assert.Equal(t, "keep me", *invoice.Notes)
}

func TestConvertEstimateOwnershipDenied(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	estimate, err := svc.CreateEstimate(context.Background(), 1, workedRequest())
	require.NoError(t, err)

	_, err = svc.ConvertEstimateToInvoice(context.Background(), 2, estimate.ID, ConvertRequest{})
	assert.ErrorIs(t, err, ErrForbidden)

	// The estimate survives a denied conversion.
	_, err = svc.GetEstimate(context.Background(), 1, estimate.ID)
	require.NoError(t, err)
}

func TestConvertEstimateFailureLeavesEstimateIntact(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	estimate, err := svc.CreateEstimate(context.Background(), 1, workedRequest())
	require.NoError(t, err)

	repo.txError = errors.New("connection lost")
	_, err = svc.ConvertEstimateToInvoice(context.Background(), 1, estimate.ID, ConvertRequest{})
	require.Error(t, err)

	repo.txError = nil
	got, err := svc.GetEstimate(context.Background(), 1, estimate.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 2)
	assert.Empty(t, repo.invoices)
}

func TestConvertEstimateWithZeroLines(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	estimate, err := svc.CreateEstimate(context.Background(), 1, CreateEstimateRequest{CustomerInfo: "empty"})
	require.NoError(t, err)

	invoice, err := svc.ConvertEstimateToInvoice(context.Background(), 1, estimate.ID, ConvertRequest{})
	require.NoError(t, err)
	assert.Zero(t, invoice.Total)
	assert.Empty(t, invoice.Lines)
}

// ============================================================================
// ITEMS
// ============================================================================

func TestInvoiceItemsPreserveStoredOrder(t *testing.T) {
	repo := newMockRepository()
	svc, _, _ := newTestService(repo)

	invoice, err := svc.CreateInvoice(context.Background(), 1, invoiceRequest(nil, nil))
	require.NoError(t, err)

	items, err := svc.InvoiceItems(context.Background(), 1, invoice.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "variation", items[0].Type)
	assert.Equal(t, "Widget", items[0].ProductName)
	assert.InDelta(t, 10.0, items[0].Price, 1e-9)

	assert.Equal(t, "custom", items[1].Type)
	assert.Equal(t, "Engraving", items[1].ProductName)
	assert.False(t, items[1].Taxable)
}
