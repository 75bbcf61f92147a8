// fleethub-migrate moves artifacts from the legacy filesystem layout
// into the object store. Offline one-time cutover; safe to re-run.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	gormlogger "gorm.io/gorm/logger"

	"fleethub/internal/config"
	"fleethub/internal/infrastructure/database"
	"fleethub/internal/infrastructure/logger"
	"fleethub/internal/infrastructure/objectstore"
	crashdumprepo "fleethub/internal/infrastructure/repository/crashdump"
	firmwarerepo "fleethub/internal/infrastructure/repository/firmware"
	registryrepo "fleethub/internal/infrastructure/repository/registry"
	"fleethub/internal/migration"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleethub-migrate",
		Short: "Migrate legacy on-disk firmware and crash dump files into the object store",
	}
	cmd.AddCommand(newRunCmd())
	return cmd
}

func newRunCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run <legacy-root>",
		Short: "Run the migration against a legacy storage root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log planned actions without writing anything")
	return cmd
}

func run(ctx context.Context, legacyRoot string, dryRun bool) error {
	_ = godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseDSN,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	var store migration.ObjectStore
	if cfg.IsLocalStorage() {
		store, err = objectstore.NewLocalStore(cfg.LocalStoragePath, log)
	} else {
		store, err = objectstore.NewS3Store(ctx, cfg, log)
	}
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}

	migrator := migration.NewMigrator(
		firmwarerepo.NewRepository(db),
		crashdumprepo.NewRepository(db),
		registryrepo.NewRepository(db),
		store,
		dryRun,
		log,
	)

	report, err := migrator.Run(ctx, legacyRoot)
	if report != nil {
		log.Info().
			Int("firmware_versions", report.FirmwareVersions).
			Int("artifacts", report.Artifacts).
			Int("dumps", report.Dumps).
			Int("skipped", report.Skipped).
			Bool("dry_run", dryRun).
			Msg("migration finished")
	}
	return err
}
