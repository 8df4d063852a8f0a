package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tidebill/tidebill/internal/auth"
	"github.com/tidebill/tidebill/internal/platform/httpx"
	"github.com/tidebill/tidebill/internal/shared"
)

// DocumentService is the service surface the handler depends on.
type DocumentService interface {
	CreateEstimate(ctx context.Context, userID int64, req CreateEstimateRequest) (*Estimate, error)
	UpdateEstimate(ctx context.Context, userID, id int64, req CreateEstimateRequest) (*Estimate, error)
	GetEstimate(ctx context.Context, userID, id int64) (*Estimate, error)
	ListEstimates(ctx context.Context, req ListRequest) ([]Estimate, int, error)
	EstimateItems(ctx context.Context, userID, id int64) ([]Item, error)
	DeleteEstimate(ctx context.Context, userID, id int64) error
	ConvertEstimateToInvoice(ctx context.Context, userID, estimateID int64, req ConvertRequest) (*Invoice, error)

	CreateInvoice(ctx context.Context, userID int64, req CreateInvoiceRequest) (*Invoice, error)
	UpdateInvoice(ctx context.Context, userID, id int64, req CreateInvoiceRequest) (*Invoice, error)
	GetInvoice(ctx context.Context, userID, id int64) (*Invoice, error)
	ListInvoices(ctx context.Context, req ListRequest) ([]Invoice, int, error)
	InvoiceItems(ctx context.Context, userID, id int64) ([]Item, error)
	DeleteInvoice(ctx context.Context, userID, id int64) error
}

// Handler exposes estimates and invoices over JSON.
type Handler struct {
	logger   *slog.Logger
	service  DocumentService
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service DocumentService) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/estimates", func(r chi.Router) {
		r.Get("/", h.listEstimates)
		r.Post("/", h.createEstimate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getEstimate)
			r.Put("/", h.updateEstimate)
			r.Delete("/", h.deleteEstimate)
			r.Get("/items", h.estimateItems)
			r.Post("/convert", h.convertEstimate)
		})
	})

	r.Route("/invoices", func(r chi.Router) {
		r.Get("/", h.listInvoices)
		r.Post("/", h.createInvoice)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getInvoice)
			r.Put("/", h.updateInvoice)
			r.Delete("/", h.deleteInvoice)
			r.Get("/items", h.invoiceItems)
		})
	})
}

// ============================================================================
// ESTIMATE HANDLERS
// ============================================================================

func (h *Handler) createEstimate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var req CreateEstimateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	estimate, err := h.service.CreateEstimate(r.Context(), userID, req)
	if err != nil {
		h.respondError(w, "create estimate", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"estimate_id": estimate.ID})
}

func (h *Handler) updateEstimate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return
	}

	var req CreateEstimateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	estimate, err := h.service.UpdateEstimate(r.Context(), userID, id, req)
	if err != nil {
		h.respondError(w, "update estimate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"estimate_id": estimate.ID})
}

func (h *Handler) getEstimate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return
	}

	estimate, err := h.service.GetEstimate(r.Context(), userID, id)
	if err != nil {
		h.respondError(w, "get estimate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, estimate)
}

func (h *Handler) listEstimates(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	page, perPage := parsePaging(r)
	estimates, total, err := h.service.ListEstimates(r.Context(), ListRequest{UserID: userID, Page: page, PerPage: perPage})
	if err != nil {
		h.respondError(w, "list estimates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"estimates":  estimates,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) estimateItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return
	}

	items, err := h.service.EstimateItems(r.Context(), userID, id)
	if err != nil {
		h.respondError(w, "estimate items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) deleteEstimate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return
	}

	if err := h.service.DeleteEstimate(r.Context(), userID, id); err != nil {
		h.respondError(w, "delete estimate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) convertEstimate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return
	}

	var req ConvertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	invoice, err := h.service.ConvertEstimateToInvoice(r.Context(), userID, id, req)
	if err != nil {
		h.respondError(w, "convert estimate", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"invoice_id": invoice.ID})
}

// ============================================================================
// INVOICE HANDLERS
// ============================================================================

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	invoice, err := h.service.CreateInvoice(r.Context(), userID, req)
	if err != nil {
		h.respondError(w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"invoice_id": invoice.ID})
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return
	}

	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	invoice, err := h.service.UpdateInvoice(r.Context(), userID, id, req)
	if err != nil {
		h.respondError(w, "update invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice_id": invoice.ID})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return
	}

	invoice, err := h.service.GetInvoice(r.Context(), userID, id)
	if err != nil {
		h.respondError(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	page, perPage := parsePaging(r)
	invoices, total, err := h.service.ListInvoices(r.Context(), ListRequest{UserID: userID, Page: page, PerPage: perPage})
	if err != nil {
		h.respondError(w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices":   invoices,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) invoiceItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return
	}

	items, err := h.service.InvoiceItems(r.Context(), userID, id)
	if err != nil {
		h.respondError(w, "invoice items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := parseID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return
	}

	if err := h.service.DeleteInvoice(r.Context(), userID, id); err != nil {
		h.respondError(w, "delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// HELPERS
// ============================================================================

// respondError is the single boundary mapping domain errors to HTTP.
func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "document belongs to another user")
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "document not found")
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func parsePaging(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 200 {
		perPage = 20
	}
	return page, perPage
}
