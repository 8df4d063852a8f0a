package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tidebill/tidebill/internal/app"
	"github.com/tidebill/tidebill/internal/auth"
	"github.com/tidebill/tidebill/internal/billing"
	"github.com/tidebill/tidebill/internal/catalog"
	"github.com/tidebill/tidebill/internal/customers"
	"github.com/tidebill/tidebill/internal/observability"
	"github.com/tidebill/tidebill/internal/platform/cache"
	"github.com/tidebill/tidebill/internal/platform/db"
	"github.com/tidebill/tidebill/internal/settings"
	"github.com/tidebill/tidebill/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Error("run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// The price cache degrades to direct lookups without redis.
		logger.Warn("redis unavailable, price cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool)

	settingsRepo := settings.NewRepository(pool)
	settingsService := settings.NewService(settingsRepo, logger)
	settingsHandler := settings.NewHandler(logger, settingsService)

	catalogRepo := catalog.NewRepository(pool)
	priceLookup := catalog.NewPriceLookup(catalogRepo, redisClient, logger)
	catalogService := catalog.NewService(catalogRepo, priceLookup, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	customersRepo := customers.NewRepository(pool)
	customersService := customers.NewService(customersRepo, auditLogger, logger)
	customersHandler := customers.NewHandler(logger, customersService)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, priceLookup, settingsService, auditLogger, logger)
	billingHandler := billing.NewHandler(logger, billingService)

	metrics := observability.NewMetrics()
	authMiddleware := auth.NewMiddleware(cfg.JWTSecret, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pool:             pool,
		Auth:             authMiddleware,
		BillingHandler:   billingHandler,
		CatalogHandler:   catalogHandler,
		CustomersHandler: customersHandler,
		SettingsHandler:  settingsHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
