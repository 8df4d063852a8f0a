package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func twoLines() []ResolvedLine {
	// One taxable catalog line (10 x 2) and one non-taxable custom line (5 x 1).
	vid := int64(7)
	return []ResolvedLine{
		{VariationID: &vid, Label: "Widget", UnitPrice: 10, Quantity: 2, Taxable: true},
		{Label: "Engraving", UnitPrice: 5, Quantity: 1, Taxable: false},
	}
}

func TestSubtotalsPartitionsByTaxableFlag(t *testing.T) {
	taxable, nontaxable := Subtotals(twoLines())
	assert.InDelta(t, 20.0, taxable, 1e-9)
	assert.InDelta(t, 5.0, nontaxable, 1e-9)
}

func TestComputeTotalNoDiscount(t *testing.T) {
	taxable, nontaxable := Subtotals(twoLines())
	total := ComputeTotal(taxable, nontaxable, 0.06, nil)
	assert.InDelta(t, 26.2, total, 1e-9)
}

func TestComputeTotalPercentDiscountAppliesBeforeTax(t *testing.T) {
	taxable, nontaxable := Subtotals(twoLines())
	total := ComputeTotal(taxable, nontaxable, 0.06, &Discount{Type: DiscountPercent, Value: 50})
	// 10*1.06 + 2.5
	assert.InDelta(t, 13.1, total, 1e-9)
}

func TestComputeTotalAmountDiscountAppliesAfterTax(t *testing.T) {
	taxable, nontaxable := Subtotals(twoLines())
	total := ComputeTotal(taxable, nontaxable, 0.06, &Discount{Type: DiscountAmount, Value: 10})
	// max(0, 26.2 - 10)
	assert.InDelta(t, 16.2, total, 1e-9)
}

func TestComputeTotalAmountDiscountNeverGoesNegative(t *testing.T) {
	total := ComputeTotal(20, 5, 0.06, &Discount{Type: DiscountAmount, Value: 1000})
	assert.Zero(t, total)
}

func TestComputeTotalNegativeAmountDiscountIgnored(t *testing.T) {
	total := ComputeTotal(20, 5, 0.06, &Discount{Type: DiscountAmount, Value: -10})
	assert.InDelta(t, 26.2, total, 1e-9)
}

func TestComputeTotalPercentDiscountClamps(t *testing.T) {
	assert.InDelta(t, 26.2, ComputeTotal(20, 5, 0.06, &Discount{Type: DiscountPercent, Value: -5}), 1e-9)
	assert.Zero(t, ComputeTotal(20, 5, 0.06, &Discount{Type: DiscountPercent, Value: 150}))
}

func TestComputeTotalNoLines(t *testing.T) {
	taxable, nontaxable := Subtotals(nil)
	assert.Zero(t, ComputeTotal(taxable, nontaxable, 0.06, nil))
	assert.Zero(t, ComputeTotal(taxable, nontaxable, 0.06, &Discount{Type: DiscountAmount, Value: 10}))
}

func TestComputeTotalZeroRate(t *testing.T) {
	total := ComputeTotal(20, 5, 0, nil)
	assert.InDelta(t, 25.0, total, 1e-9)
}
