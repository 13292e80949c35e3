package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/tablerewards-backend/pkg/config"
	"github.com/angelmondragon/tablerewards-backend/pkg/db"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
	"github.com/angelmondragon/tablerewards-backend/pkg/migrate"
)

const serviceName = "migrate"

var errUsage = errors.New("usage")

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for -cmd=create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (for -cmd=version)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	if err := run(ctx, logg, opts); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			flag.Usage()
			os.Exit(2)
		}
		logg.Error(logg.WithField(ctx, "cmd", opts.cmd), "migration failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logg *logger.Logger, opts options) error {
	// create and validate only touch the filesystem.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return fmt.Errorf("%w: -name is required for create", errUsage)
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "dir", opts.dir), "migrations valid")
		return nil
	case "up", "down", "status":
	case "version":
		if opts.version == "" {
			return fmt.Errorf("%w: -version is required for version", errUsage)
		}
	default:
		return fmt.Errorf("%w: unknown -cmd %q", errUsage, opts.cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd, "dir": opts.dir})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}

	if err := apply(ctx, sqlDB, opts); err != nil {
		return err
	}
	logg.Info(ctx, "migration command finished")
	return nil
}

func apply(ctx context.Context, sqlDB *sql.DB, opts options) error {
	if opts.cmd == "version" {
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	}
	return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd)
}
