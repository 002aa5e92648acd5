package main

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"

	"github.com/Golden-Age-Club/server/internal/infra/logging"
	"github.com/Golden-Age-Club/server/pkg/envconf"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var baseFS embed.FS

//go:embed test_data/*.sql
var devFS embed.FS

// seeds keep their own version table so they never collide with schema versions
const seedMigrationsTable = "seed_migrations"

type migratorConfig struct {
	DSN       string `envconfig:"PG_DSN" required:"true"`
	LogLevel  string `envconfig:"APP_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	AppEnv    string `envconfig:"APP_ENV" default:"PROD"`
}

func main() {
	cfg := new(migratorConfig)

	err := envconf.Load("", cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logg := logging.New(logging.Options{
		ServiceName: "migrator",
		Level:       logging.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})
	ctx := context.Background()

	err = migrateAll(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "migration run failed", err)
		os.Exit(1)
	}

	logg.Info(ctx, "migration run finished successfully")
}

func migrateAll(ctx context.Context, cfg *migratorConfig, logg *logging.Logger) error {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	//nolint:errcheck
	defer db.Close()

	err = db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	err = runMigrations(db, baseFS, "migrations", &postgres.Config{})
	if err != nil {
		return fmt.Errorf("base migrations failed: %w", err)
	}

	logg.Info(ctx, "base migrations applied")

	if cfg.AppEnv == "DEV" {
		err = runMigrations(db, devFS, "test_data", &postgres.Config{MigrationsTable: seedMigrationsTable})
		if err != nil {
			return fmt.Errorf("dev seed migrations failed: %w", err)
		}

		logg.Info(ctx, "dev seed migrations applied")
	}

	return nil
}

func runMigrations(db *sql.DB, fsys embed.FS, dir string, pgCfg *postgres.Config) error {
	driver, err := postgres.WithInstance(db, pgCfg)
	if err != nil {
		return fmt.Errorf("init postgres driver: %w", err)
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("m.Up: %w", err)
	}

	return nil
}
