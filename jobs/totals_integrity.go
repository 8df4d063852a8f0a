package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidebill/tidebill/internal/billing"
	jobmetrics "github.com/tidebill/tidebill/internal/jobs"
)

// driftTolerance is the largest stored-vs-recomputed difference the sweep
// accepts as float rounding rather than drift.
const driftTolerance = 0.01

// InvoiceSource loads one invoice with its stored lines.
type InvoiceSource interface {
	GetInvoice(ctx context.Context, id int64) (*billing.Invoice, error)
}

// TotalsIntegrityChecker recomputes each invoice total from its stored lines,
// discount and the owner's current tax rate. Stored totals are derived state;
// this sweep verifies the derivation still holds in the field.
type TotalsIntegrityChecker struct {
	pool     *pgxpool.Pool
	invoices InvoiceSource
	prices   billing.PriceLookup
	rates    billing.TaxRateSource
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewTotalsIntegrityChecker wires the sweep. metrics may be nil.
func NewTotalsIntegrityChecker(pool *pgxpool.Pool, invoices InvoiceSource, prices billing.PriceLookup, rates billing.TaxRateSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *TotalsIntegrityChecker {
	return &TotalsIntegrityChecker{pool: pool, invoices: invoices, prices: prices, rates: rates, logger: logger, metrics: metrics}
}

// Handle processes TaskTotalsIntegrity tasks.
func (c *TotalsIntegrityChecker) Handle(ctx context.Context, _ *asynq.Task) error {
	return c.metrics.Track("totals_integrity").End(c.run(ctx))
}

func (c *TotalsIntegrityChecker) run(ctx context.Context) error {
	rows, err := c.pool.Query(ctx, `SELECT id, user_id FROM invoices ORDER BY id`)
	if err != nil {
		return fmt.Errorf("totals integrity: list invoices: %w", err)
	}
	defer rows.Close()

	type target struct{ id, userID int64 }
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.userID); err != nil {
			return fmt.Errorf("totals integrity: scan: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("totals integrity: %w", err)
	}

	var drifted int
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := c.check(ctx, t.userID, t.id)
		if err != nil {
			c.logger.Warn("totals integrity check failed",
				slog.Int64("invoice_id", t.id),
				slog.Any("error", err),
			)
			continue
		}
		if !ok {
			drifted++
		}
	}

	c.metrics.AddDrift(drifted)
	c.logger.Info("totals integrity sweep finished",
		slog.Int("checked", len(targets)),
		slog.Int("drifted", drifted),
	)
	return nil
}

func (c *TotalsIntegrityChecker) check(ctx context.Context, userID, invoiceID int64) (bool, error) {
	inv, err := c.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return false, err
	}
	rate, err := c.rates.TaxRate(ctx, userID)
	if err != nil {
		return false, err
	}

	resolved := make([]billing.ResolvedLine, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		var ref *billing.CatalogRef
		if l.VariationID != nil {
			ref, err = c.prices.Variation(ctx, userID, *l.VariationID)
			if err != nil {
				return false, err
			}
		}
		resolved = append(resolved, billing.ResolveStoredInvoiceLine(l, ref))
	}

	taxable, nontaxable := billing.Subtotals(resolved)
	var disc *billing.Discount
	if inv.DiscountType != nil {
		d := billing.Discount{Type: *inv.DiscountType}
		if inv.DiscountValue != nil {
			d.Value = *inv.DiscountValue
		}
		disc = &d
	}
	expected := billing.ComputeTotal(taxable, nontaxable, rate, disc)

	if math.Abs(expected-inv.Total) > driftTolerance {
		c.logger.Warn("invoice total drift",
			slog.Int64("invoice_id", invoiceID),
			slog.Int64("user_id", userID),
			slog.Float64("stored", inv.Total),
			slog.Float64("expected", expected),
		)
		return false, nil
	}
	return true, nil
}
