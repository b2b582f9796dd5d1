package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dentflow/dentflow-backend/internal/inventory/events"
	"github.com/dentflow/dentflow-backend/internal/inventory/handler"
	"github.com/dentflow/dentflow-backend/internal/inventory/repository"
	"github.com/dentflow/dentflow-backend/internal/inventory/service"
	"github.com/dentflow/dentflow-backend/migrations"
	"github.com/dentflow/dentflow-backend/pkg/auth"
	"github.com/dentflow/dentflow-backend/pkg/cache"
	"github.com/dentflow/dentflow-backend/pkg/config"
	"github.com/dentflow/dentflow-backend/pkg/database"
	"github.com/dentflow/dentflow-backend/pkg/httputil"
	"github.com/dentflow/dentflow-backend/pkg/i18n"
	"github.com/dentflow/dentflow-backend/pkg/logger"
	"github.com/dentflow/dentflow-backend/pkg/messaging"
	"github.com/dentflow/dentflow-backend/pkg/observability"
)

const serviceName = "inventory-service"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Str("version", version).Msg("starting Inventory Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, version, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		scripts, err := migrations.Inventory()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load migrations")
		}
		if err := migrations.Apply(ctx, db.DB, scripts); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
		log.Info().Int("scripts", len(scripts)).Msg("schema migrated")
	}

	// RabbitMQ is optional; without it no events are published
	var (
		rmq       *messaging.RabbitMQ
		publisher *events.InventoryEventPublisher
	)
	if cfg.RabbitMQ.URL != "" {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err = events.NewInventoryEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	} else {
		log.Warn().Msg("RabbitMQ URL not set, inventory events disabled")
	}

	// Redis is optional; without it idempotency keys are ignored
	var (
		idem        *cache.IdempotencyStore
		idempotency service.IdempotencyStore
	)
	if cfg.Redis.Addr != "" {
		idem, err = cache.New(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer idem.Close()
		idempotency = idem
	} else {
		log.Warn().Msg("Redis address not set, idempotency keys disabled")
	}

	clinicRepo := repository.NewClinicRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	inventoryService := service.NewInventoryService(materialRepo, ledgerRepo, db, publisher, idempotency, log)
	materialHandler := handler.NewMaterialHandler(inventoryService, log)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(i18n.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Request-ID", handler.IdempotencyKeyHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]any{
			"status":   "healthy",
			"service":  serviceName,
			"version":  version,
			"database": db.Health(r.Context()),
			"rabbitmq": map[string]string{"status": "disabled"},
			"redis":    map[string]string{"status": "disabled"},
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		if idem != nil {
			health["redis"] = idem.Health(r.Context())
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	handler.Mount(r, materialHandler, auth.NewManager(&cfg.JWT))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, serviceName),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if publisher != nil {
		scheduler := service.NewLowStockScheduler(clinicRepo, inventoryService, cfg.Inventory.LowStockScanInterval, log)
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to flush traces")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("inventory service stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
