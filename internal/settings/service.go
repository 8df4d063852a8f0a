package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Service reads and writes per-user store settings and is the tax-rate source
// for totals computation.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService wires the settings service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Get returns the user's settings, or defaults when no row exists.
func (s *Service) Get(ctx context.Context, userID int64) (*StoreSettings, error) {
	st, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &StoreSettings{UserID: userID, TaxRate: DefaultTaxRate}, nil
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return st, nil
}

// Update replaces the user's settings row.
func (s *Service) Update(ctx context.Context, userID int64, req UpdateRequest) (*StoreSettings, error) {
	st := StoreSettings{
		UserID:    userID,
		StoreName: req.StoreName,
		TaxRate:   req.TaxRate,
	}
	if err := s.repo.Upsert(ctx, st); err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return s.Get(ctx, userID)
}

// TaxRate returns the user's effective tax rate as a fraction. Absent rows
// and out-of-range stored values both resolve to DefaultTaxRate so totals
// never fail on a misconfigured store.
func (s *Service) TaxRate(ctx context.Context, userID int64) (float64, error) {
	st, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DefaultTaxRate, nil
		}
		return 0, fmt.Errorf("tax rate lookup: %w", err)
	}
	if st.TaxRate < 0 || st.TaxRate > 1 {
		s.logger.Warn("stored tax rate out of range, using default",
			slog.Int64("user_id", userID),
			slog.Float64("tax_rate", st.TaxRate),
		)
		return DefaultTaxRate, nil
	}
	return st.TaxRate, nil
}
