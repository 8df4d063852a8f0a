package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidebill/tidebill/internal/auth"
	"github.com/tidebill/tidebill/internal/billing"
	"github.com/tidebill/tidebill/internal/catalog"
	"github.com/tidebill/tidebill/internal/customers"
	"github.com/tidebill/tidebill/internal/observability"
	"github.com/tidebill/tidebill/internal/settings"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	Pool             *pgxpool.Pool
	Auth             *auth.Middleware
	BillingHandler   *billing.Handler
	CatalogHandler   *catalog.Handler
	CustomersHandler *customers.Handler
	SettingsHandler  *settings.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := params.Pool.Ping(ctx); err != nil {
			params.Logger.Error("health check failed", slog.Any("error", err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(params.Auth.Require)
		params.BillingHandler.MountRoutes(r)
		r.Route("/catalog", params.CatalogHandler.MountRoutes)
		params.CustomersHandler.MountRoutes(r)
		params.SettingsHandler.MountRoutes(r)
	})

	return r
}
