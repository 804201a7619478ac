// Command api runs the Veriface Hub HTTP server: face enrollment with a
// global duplicate policy, region-scoped recognition search, and identity
// profile management.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/veriface/hub/internal/api/handlers"
	"github.com/veriface/hub/internal/api/middleware"
	"github.com/veriface/hub/internal/config"
	"github.com/veriface/hub/internal/detector"
	"github.com/veriface/hub/internal/jobs"
	"github.com/veriface/hub/internal/models"
	"github.com/veriface/hub/internal/observability"
	"github.com/veriface/hub/internal/repository"
	"github.com/veriface/hub/internal/service"
	"github.com/veriface/hub/pkg/cache"
	"github.com/veriface/hub/pkg/database"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, &database.PoolConfig{
		MaxConns:        cfg.DatabaseMaxConns,
		MinConns:        cfg.DatabaseMinConns,
		MaxConnLifetime: cfg.DatabaseMaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	metrics, err := observability.NewOtelMetrics()
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	identitiesRepo, err := buildIdentitiesRepository(pool, cfg, metrics)
	if err != nil {
		return fmt.Errorf("build identities repository: %w", err)
	}

	embeddingsRepo := repository.NewEmbeddingsRepository(pool, cfg.EmbeddingDim)

	enrollmentService := service.NewEnrollmentService(service.EnrollmentServiceParams{
		Identities:         identitiesRepo,
		Embeddings:         embeddingsRepo,
		EmbeddingDim:       cfg.EmbeddingDim,
		DuplicateThreshold: cfg.DuplicateThreshold,
		ScanTimeout:        cfg.ScanTimeout,
		Metrics:            metrics,
	})
	batchService := service.NewBatchService(enrollmentService, cfg.FrameSkipThreshold, nil)
	recognitionService := service.NewRecognitionService(service.RecognitionServiceParams{
		Embeddings:      embeddingsRepo,
		EmbeddingDim:    cfg.EmbeddingDim,
		DefaultMinScore: cfg.SearchMinScore,
		BestEffort:      cfg.SearchBestEffort,
	})
	identityService := service.NewIdentityService(identitiesRepo, embeddingsRepo)

	var (
		riverClient *river.Client[pgx.Tx]
		inserter    jobs.Inserter
	)

	if cfg.RiverEnabled {
		riverClient, err = startRiver(ctx, pool, cfg, batchService)
		if err != nil {
			return fmt.Errorf("start river: %w", err)
		}

		inserter = jobs.NewRiverInserter(riverClient)
	}

	var detectorClient detector.Client
	if cfg.DetectorURL != "" {
		detectorClient = detector.NewHTTPClient(cfg.DetectorURL, cfg.DetectorRateLimit)
	}

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: buildRouter(cfg, routerDeps{
			identity:    identityService,
			enrollment:  enrollmentService,
			batch:       batchService,
			recognition: recognitionService,
			detector:    detectorClient,
			inserter:    inserter,
			db:          pool,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "port", cfg.Port)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}

	if riverClient != nil {
		if err := riverClient.Stop(shutdownCtx); err != nil {
			slog.Error("River client shutdown failed", "error", err)
		}
	}

	slog.Info("Server stopped")

	return nil
}

// setupLogging configures the global structured logger, wrapping the handler
// so trace and request IDs from context land on every record.
func setupLogging(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(observability.NewContextHandler(handler)))
}

// buildIdentitiesRepository wraps the pgx repository with LRU caches for the
// two hot identity lookups.
func buildIdentitiesRepository(pool *pgxpool.Pool, cfg *config.Config, metrics observability.CacheMetrics) (service.IdentitiesRepository, error) {
	inner := repository.NewIdentitiesRepository(pool)

	byID, err := cache.NewLoaderCache[uuid.UUID, *models.Identity](cfg.IdentityCacheSize, func(id uuid.UUID) string {
		return id.String()
	})
	if err != nil {
		return nil, err
	}

	byKey, err := cache.NewLoaderCache[string, *models.Identity](cfg.IdentityCacheSize, func(key string) string {
		return key
	})
	if err != nil {
		return nil, err
	}

	return service.NewCachingIdentitiesRepository(inner, byID, byKey, metrics), nil
}

// startRiver applies the queue schema, registers the batch enrollment worker,
// and starts the job client.
func startRiver(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config, batchService *service.BatchService) (*river.Client[pgx.Tx], error) {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return nil, fmt.Errorf("create river migrator: %w", err)
	}

	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("migrate river schema: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, jobs.NewBatchEnrollmentWorker(batchService, nil))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.RiverWorkers},
		},
		Workers:      workers,
		MaxAttempts:  cfg.RiverMaxRetries,
		ErrorHandler: &jobs.ErrorHandler{},
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}

	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("start river client: %w", err)
	}

	return client, nil
}

type routerDeps struct {
	identity    handlers.IdentityServicer
	enrollment  handlers.EnrollmentServicer
	batch       handlers.BatchServicer
	recognition handlers.RecognitionServicer
	detector    detector.Client
	inserter    jobs.Inserter
	db          handlers.Pinger
}

// buildRouter wires handlers and middleware. The health endpoint is public;
// everything under /v1/ requires the API key.
func buildRouter(cfg *config.Config, deps routerDeps) http.Handler {
	identitiesHandler := handlers.NewIdentitiesHandler(deps.identity)
	enrollmentHandler := handlers.NewEnrollmentHandler(handlers.EnrollmentHandlerParams{
		Enrollment: deps.enrollment,
		Batch:      deps.batch,
		Detector:   deps.detector,
		Inserter:   deps.inserter,
	})
	recognitionHandler := handlers.NewRecognitionHandler(deps.recognition, deps.detector, nil)
	healthHandler := handlers.NewHealthHandler(deps.db)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/identities", identitiesHandler.Create)
	protected.HandleFunc("GET /v1/identities", identitiesHandler.List)
	protected.HandleFunc("GET /v1/identities/{id}", identitiesHandler.Get)
	protected.HandleFunc("PATCH /v1/identities/{id}", identitiesHandler.Update)
	protected.HandleFunc("DELETE /v1/identities/{id}", identitiesHandler.Delete)
	protected.HandleFunc("GET /v1/identities/{id}/embeddings", identitiesHandler.ListEmbeddings)

	protected.HandleFunc("POST /v1/enrollments", enrollmentHandler.Enroll)
	protected.HandleFunc("POST /v1/enrollments/batch", enrollmentHandler.EnrollBatch)

	protected.HandleFunc("POST /v1/recognition/search", recognitionHandler.Search)
	protected.HandleFunc("POST /v1/recognition/identify", recognitionHandler.Identify)

	auth := middleware.Auth(cfg.APIKey)
	maxBody := middleware.MaxBody(cfg.MaxRequestBodyBytes)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", healthHandler.Health)
	root.Handle("/v1/", auth(maxBody(protected)))

	return middleware.RequestID(middleware.Logging(root))
}
