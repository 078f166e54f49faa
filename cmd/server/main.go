package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SAP-F-2025/test-session-service/internal/cache"
	"github.com/SAP-F-2025/test-session-service/internal/config"
	"github.com/SAP-F-2025/test-session-service/internal/events"
	"github.com/SAP-F-2025/test-session-service/internal/handlers"
	"github.com/SAP-F-2025/test-session-service/internal/middleware"
	"github.com/SAP-F-2025/test-session-service/internal/repositories"
	"github.com/SAP-F-2025/test-session-service/internal/repositories/memory"
	"github.com/SAP-F-2025/test-session-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/test-session-service/internal/services"
	"github.com/SAP-F-2025/test-session-service/internal/utils"
	"github.com/SAP-F-2025/test-session-service/internal/validator"
	"github.com/SAP-F-2025/test-session-service/internal/worker"
	"github.com/SAP-F-2025/test-session-service/pkg"
	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("Starting test session service",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"storage", cfg.StorageDriver,
		"auth", cfg.Auth.Mode)

	ctx := context.Background()

	// ─── Redis ─────────────────────────────────────────────────────────
	var rdb *redis.Client
	if cfg.StorageDriver == "postgres" || (cfg.Events.Enabled && strings.Contains(cfg.Events.Publisher, "redis")) {
		rdb, err = pkg.NewRedisClient(cfg)
		if err != nil {
			fatal(logger, "Failed to connect to Redis", err)
		}
		defer rdb.Close()
	}

	// ─── Storage ───────────────────────────────────────────────────────
	var (
		store   repositories.SessionStore
		catalog repositories.TestCatalog
	)
	switch cfg.StorageDriver {
	case "postgres":
		if cfg.MigrateOnStart {
			if err := pkg.MigrateUp(cfg.MigrationsPath, cfg.DatabaseURL, logger); err != nil {
				fatal(logger, "Failed to migrate database", err)
			}
		}

		db, err := pkg.InitDatabase(cfg)
		if err != nil {
			fatal(logger, "Failed to connect to PostgreSQL", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		cachedCatalog := repositories.NewCachedCatalog(
			postgres.NewCatalogPostgreSQL(db),
			cache.NewRedisCache(rdb, logger),
			cfg.CatalogCacheTTL,
			logger,
		)
		// definitions may have changed while the service was down
		if err := cachedCatalog.InvalidateAll(ctx); err != nil {
			logger.Warn("Failed to clear catalog cache", "error", err)
		}

		store = postgres.NewSessionPostgreSQL(db)
		catalog = cachedCatalog
	default:
		logger.Warn("Using in-memory storage, sessions are lost on restart")
		memCatalog := memory.NewCatalog()
		if cfg.CatalogSeedFile != "" {
			n, err := memCatalog.SeedFile(cfg.CatalogSeedFile)
			if err != nil {
				fatal(logger, "Failed to seed catalog", err)
			}
			logger.Info("Seeded in-memory catalog", "tests", n, "file", cfg.CatalogSeedFile)
		} else {
			logger.Warn("No CATALOG_SEED_FILE set, the in-memory catalog is empty")
		}
		store = memory.NewSessionStore()
		catalog = memCatalog
	}

	// ─── Events ────────────────────────────────────────────────────────
	publisher, err := cfg.Events.CreateEventPublisher(logger, rdb)
	if err != nil {
		fatal(logger, "Failed to create event publisher", err)
	}
	dispatcher := events.NewDispatcher(publisher, cfg.Events.BufferSize, logger)
	dispatcher.Start()

	// ─── Services ──────────────────────────────────────────────────────
	sessionService := services.NewSessionService(store, catalog, dispatcher, time.Now, logger)
	exporter := services.NewResultsExporter(store, catalog, logger)

	// ─── Background Workers ────────────────────────────────────────────
	var sweeper *worker.AbandonSweeper
	if cfg.Sweep.Enabled {
		sweeper = worker.NewAbandonSweeper(sessionService, cfg.Sweep.Schedule, cfg.Sweep.BatchSize, logger)
		if err := sweeper.Start(); err != nil {
			fatal(logger, "Failed to start abandon sweeper", err)
		}
	}

	// ─── Router ────────────────────────────────────────────────────────
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	handlerLogger := utils.NewSlogLogger(logger)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		handlers.CORS(cfg.AllowedOrigins),
		utils.ContextLogger(handlerLogger),
		utils.LoggerMiddleware(handlerLogger),
	)

	handlers.NewHandlerManager(
		sessionService,
		exporter,
		validator.New(),
		authMiddleware(cfg.Auth, handlerLogger),
		handlerLogger,
	).SetupRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "Server error", err)
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Shutting down gracefully", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if sweeper != nil {
		sweeper.Stop()
	}
	// flushes queued events before the publisher closes
	if err := dispatcher.Close(); err != nil {
		logger.Error("Failed to close event publisher", "error", err)
	}

	logger.Info("Shutdown complete")
}

func authMiddleware(cfg config.AuthConfig, logger utils.Logger) gin.HandlerFunc {
	if cfg.Mode == "header" {
		logger.Warn("Trusting identity headers from upstream gateway")
		return middleware.HeaderAuth()
	}
	client := casdoorsdk.NewClient(
		cfg.CasdoorEndpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Certificate,
		cfg.OrganizationName,
		cfg.ApplicationName,
	)
	return middleware.CasdoorAuth(client, logger)
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
