package billing

// DiscountType selects how a discount value is applied to a total.
type DiscountType string

const (
	// DiscountAmount subtracts a fixed amount from the grand total after tax.
	DiscountAmount DiscountType = "amount"
	// DiscountPercent reduces each subtotal by a percentage before tax.
	DiscountPercent DiscountType = "percent"
)

// Discount is an optional reduction applied by ComputeTotal.
type Discount struct {
	Type  DiscountType
	Value float64
}

// Subtotals partitions normalized lines into taxable and non-taxable sums.
func Subtotals(lines []ResolvedLine) (taxable, nontaxable float64) {
	for _, l := range lines {
		if l.Taxable {
			taxable += l.Amount()
		} else {
			nontaxable += l.Amount()
		}
	}
	return taxable, nontaxable
}

// ComputeTotal folds the subtotals, tax rate and optional discount into the
// document total.
//
// The two discount types deliberately apply in different orders and both
// orders are load-bearing for downstream documents:
//
//	amount:  total = max(0, taxable*(1+r) + nontaxable - clamp(v, 0, pre))
//	percent: total = taxable*(1-p)*(1+r) + nontaxable*(1-p), p = clamp(v,0,100)/100
//
// Negative values clamp instead of erroring; the result is never negative.
func ComputeTotal(taxable, nontaxable, rate float64, disc *Discount) float64 {
	if taxable < 0 {
		taxable = 0
	}
	if nontaxable < 0 {
		nontaxable = 0
	}

	if disc != nil && disc.Type == DiscountPercent {
		p := clamp(disc.Value, 0, 100) / 100
		taxable *= 1 - p
		nontaxable *= 1 - p
		return taxable*(1+rate) + nontaxable
	}

	total := taxable*(1+rate) + nontaxable
	if disc != nil && disc.Type == DiscountAmount {
		total -= clamp(disc.Value, 0, total)
		if total < 0 {
			total = 0
		}
	}
	return total
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
