package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"fleethub/internal/config"
	"fleethub/internal/domain/analysis"
	"fleethub/internal/domain/crashdump"
	"fleethub/internal/domain/firmware"
	"fleethub/internal/infrastructure/analyzer"
	"fleethub/internal/infrastructure/auth"
	"fleethub/internal/infrastructure/database"
	"fleethub/internal/infrastructure/logger"
	"fleethub/internal/infrastructure/notifier"
	"fleethub/internal/infrastructure/objectstore"
	"fleethub/internal/infrastructure/observability"
	crashdumprepo "fleethub/internal/infrastructure/repository/crashdump"
	firmwarerepo "fleethub/internal/infrastructure/repository/firmware"
	registryrepo "fleethub/internal/infrastructure/repository/registry"
	"fleethub/internal/interfaces/httpserver"
	"fleethub/internal/interfaces/httpserver/handlers"
)

// @title FleetHub API
// @version 1.0
// @description Administrative backend for device fleets: firmware storage, crash dump collection and analysis.
// @BasePath /
type Application struct {
	httpServer *httpserver.HttpServer
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	return a.httpServer.Run(ctx)
}

// ObjectStore is the full object storage surface the server wires up.
type ObjectStore interface {
	firmware.ObjectStore
	crashdump.ObjectStore
	httpserver.HealthChecker
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseDSN,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.Migrate(db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	store, err := provideObjectStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize object store")
	}

	events, err := notifier.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize notifier")
	}
	defer events.Close()

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth")
	}

	firmwareRepo := firmwarerepo.NewRepository(db)
	dumpRepo := crashdumprepo.NewRepository(db)
	registryRepo := registryrepo.NewRepository(db)

	firmwareService := firmware.NewService(cfg, firmwareRepo, store, log)
	worker := analysis.NewWorker(cfg, store, analyzer.NewClient(cfg, log), dumpRepo, log)
	dumpService := crashdump.NewService(cfg, dumpRepo, registryRepo, store, worker, log)

	provider := handlers.NewProvider(cfg, firmwareService, dumpService, registryRepo, events, log)
	httpServer := httpserver.New(cfg, log, provider, authValidator, db, store)
	app := NewApplication(httpServer, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

// provideObjectStore creates the configured storage backend.
func provideObjectStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ObjectStore, error) {
	if cfg.IsLocalStorage() {
		return objectstore.NewLocalStore(cfg.LocalStoragePath, log)
	}
	return objectstore.NewS3Store(ctx, cfg, log)
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
