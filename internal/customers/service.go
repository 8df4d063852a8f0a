package customers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tidebill/tidebill/internal/shared"
)

// AuditRecorder persists an audit entry for a customer mutation.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the address-book use-case layer.
type Service struct {
	repo   Repository
	audit  AuditRecorder
	logger *slog.Logger
}

// NewService wires the customers service.
func NewService(repo Repository, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

func (s *Service) Get(ctx context.Context, userID, id int64) (*Customer, error) {
	return s.repo.Get(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID int64, name string) ([]Customer, error) {
	return s.repo.List(ctx, userID, name)
}

func (s *Service) Create(ctx context.Context, userID int64, req UpsertRequest) (*Customer, error) {
	id, err := s.repo.Create(ctx, Customer{
		UserID:  userID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	s.recordAudit(ctx, userID, "customer.created", id)
	return s.repo.Get(ctx, userID, id)
}

func (s *Service) Update(ctx context.Context, userID, id int64, req UpsertRequest) (*Customer, error) {
	err := s.repo.Update(ctx, Customer{
		ID:      id,
		UserID:  userID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, userID, "customer.updated", id)
	return s.repo.Get(ctx, userID, id)
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.recordAudit(ctx, userID, "customer.deleted", id)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, userID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   "customer",
		EntityID: strconv.FormatInt(id, 10),
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
