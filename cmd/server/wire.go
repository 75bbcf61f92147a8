//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
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
	crashdumprepo "fleethub/internal/infrastructure/repository/crashdump"
	firmwarerepo "fleethub/internal/infrastructure/repository/firmware"
	registryrepo "fleethub/internal/infrastructure/repository/registry"
	"fleethub/internal/interfaces/httpserver"
	"fleethub/internal/interfaces/httpserver/handlers"
)

var storeSet = wire.NewSet(
	firmwarerepo.NewRepository,
	wire.Bind(new(firmware.Repository), new(*firmwarerepo.Repository)),
	crashdumprepo.NewRepository,
	wire.Bind(new(crashdump.Repository), new(*crashdumprepo.Repository)),
	wire.Bind(new(analysis.Results), new(*crashdumprepo.Repository)),
	registryrepo.NewRepository,
	wire.Bind(new(crashdump.Registry), new(*registryrepo.Repository)),
	provideObjectStore,
	wire.Bind(new(firmware.ObjectStore), new(ObjectStore)),
	wire.Bind(new(crashdump.ObjectStore), new(ObjectStore)),
	wire.Bind(new(analysis.ObjectStore), new(ObjectStore)),
	wire.Bind(new(httpserver.HealthChecker), new(ObjectStore)),
	firmware.NewService,
	analyzer.NewClient,
	wire.Bind(new(analysis.Client), new(*analyzer.Client)),
	analysis.NewWorker,
	wire.Bind(new(crashdump.Scheduler), new(*analysis.Worker)),
	crashdump.NewService,
)

// BuildApplication assembles the service with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		auth.NewValidator,
		notifier.New,
		newDatabaseConfig,
		newGormDB,
		storeSet,
		handlers.NewProvider,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseDSN,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, log); err != nil {
		return nil, err
	}
	return db, nil
}
