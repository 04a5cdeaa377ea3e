package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/rentloop-backend/pkg/config"
	"github.com/angelmondragon/rentloop-backend/pkg/db"
	"github.com/angelmondragon/rentloop-backend/pkg/logger"
	"github.com/angelmondragon/rentloop-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", opts.cmd, err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.cmd, "cmd", "up", "up|down|redo|status|version|create|validate")
	fs.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	fs.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	fs.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS for -cmd=version")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	switch {
	case opts.cmd == "create" && opts.name == "":
		fmt.Fprintln(stderr, "-name is required for create")
		return opts, errUsage
	case opts.cmd == "version" && opts.version == "":
		fmt.Fprintln(stderr, "-version is required for version")
		return opts, errUsage
	case opts.cmd != "create" && opts.cmd != "validate" && opts.cmd != "version" && !migrate.Command(opts.cmd).Valid():
		fmt.Fprintf(stderr, "unknown -cmd %q\n", opts.cmd)
		return opts, errUsage
	}
	return opts, nil
}

func run(ctx context.Context, opts options, stdout io.Writer) error {
	// File-only commands work without config so they can run in CI.
	switch opts.cmd {
	case "create":
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, "created migration:", path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "migration validation passed")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DB.IsSQLite() {
		return fmt.Errorf("goose migrations target %s; sqlite databases are built with RENTLOOP_AUTO_MIGRATE", migrate.Dialect)
	}

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd, "dir": opts.dir})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	if opts.cmd == "version" {
		target, err := migrate.ParseVersion(opts.version)
		if err != nil {
			return err
		}
		err = migrate.MigrateToVersion(ctx, sqlDB, opts.dir, target)
		if err == nil {
			logg.Info(logg.WithField(ctx, "target", target), "schema at target version")
		}
		return err
	}

	if err := migrate.Run(ctx, sqlDB, opts.dir, migrate.Command(opts.cmd)); err != nil {
		return err
	}
	logg.Info(ctx, "migration command finished")
	return nil
}
