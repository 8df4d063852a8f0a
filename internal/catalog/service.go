package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

// Service is the catalog use-case layer. Variation mutations invalidate the
// price cache so document creation never resolves a stale price.
type Service struct {
	repo   Repository
	prices *PriceLookup
	logger *slog.Logger
}

// NewService wires the catalog service.
func NewService(repo Repository, prices *PriceLookup, logger *slog.Logger) *Service {
	return &Service{repo: repo, prices: prices, logger: logger}
}

func (s *Service) GetProduct(ctx context.Context, userID, id int64) (*Product, error) {
	return s.repo.GetProduct(ctx, userID, id)
}

func (s *Service) ListProducts(ctx context.Context, req ListProductsRequest) ([]Product, error) {
	return s.repo.ListProducts(ctx, req)
}

func (s *Service) CreateProduct(ctx context.Context, userID int64, req ProductRequest) (*Product, error) {
	id, err := s.repo.CreateProduct(ctx, Product{UserID: userID, Name: req.Name})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	return s.repo.GetProduct(ctx, userID, id)
}

func (s *Service) UpdateProduct(ctx context.Context, userID, id int64, req ProductRequest) (*Product, error) {
	if err := s.repo.UpdateProduct(ctx, Product{ID: id, UserID: userID, Name: req.Name}); err != nil {
		return nil, err
	}
	// The product name feeds resolved line labels, so every variation under it
	// goes stale at once.
	s.invalidateProduct(ctx, userID, id)
	return s.repo.GetProduct(ctx, userID, id)
}

func (s *Service) DeleteProduct(ctx context.Context, userID, id int64) error {
	s.invalidateProduct(ctx, userID, id)
	return s.repo.DeleteProduct(ctx, userID, id)
}

func (s *Service) GetVariation(ctx context.Context, userID, id int64) (*Variation, error) {
	return s.repo.GetVariation(ctx, userID, id)
}

func (s *Service) CreateVariation(ctx context.Context, userID, productID int64, req VariationRequest) (*Variation, error) {
	id, err := s.repo.CreateVariation(ctx, userID, Variation{
		ProductID: productID,
		Size:      req.Size,
		Accessory: req.Accessory,
		Price:     req.Price,
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetVariation(ctx, userID, id)
}

func (s *Service) UpdateVariation(ctx context.Context, userID, id int64, req VariationRequest) (*Variation, error) {
	err := s.repo.UpdateVariation(ctx, userID, Variation{
		ID:        id,
		Size:      req.Size,
		Accessory: req.Accessory,
		Price:     req.Price,
	})
	if err != nil {
		return nil, err
	}
	if s.prices != nil {
		s.prices.Invalidate(ctx, userID, id)
	}
	return s.repo.GetVariation(ctx, userID, id)
}

func (s *Service) DeleteVariation(ctx context.Context, userID, id int64) error {
	if err := s.repo.DeleteVariation(ctx, userID, id); err != nil {
		return err
	}
	if s.prices != nil {
		s.prices.Invalidate(ctx, userID, id)
	}
	return nil
}

func (s *Service) invalidateProduct(ctx context.Context, userID, productID int64) {
	if s.prices == nil {
		return
	}
	p, err := s.repo.GetProduct(ctx, userID, productID)
	if err != nil {
		s.logger.Warn("cache invalidation skipped", slog.Int64("product_id", productID), slog.Any("error", err))
		return
	}
	for _, v := range p.Variations {
		s.prices.Invalidate(ctx, userID, v.ID)
	}
}
