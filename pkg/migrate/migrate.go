package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

const (
	DefaultDir = "pkg/migrate/migrations"
	// Dialect is the only dialect the SQL migrations are written for.
	Dialect = "postgres"
)

// Command is a goose command that needs a live connection.
type Command string

const (
	CommandUp     Command = "up"
	CommandDown   Command = "down"
	CommandRedo   Command = "redo"
	CommandStatus Command = "status"
)

func (c Command) Valid() bool {
	switch c {
	case CommandUp, CommandDown, CommandRedo, CommandStatus:
		return true
	}
	return false
}

// Run executes cmd against db. Status output goes to stdout.
func Run(ctx context.Context, db *sql.DB, dir string, cmd Command) error {
	if err := prepare(db, dir); err != nil {
		return err
	}
	if !cmd.Valid() {
		return fmt.Errorf("unsupported goose command %q", cmd)
	}
	if err := goose.RunContext(ctx, string(cmd), db, dir); err != nil {
		return fmt.Errorf("goose %s: %w", cmd, err)
	}
	return nil
}

// ParseVersion accepts the YYYYMMDDHHMMSS prefix used in migration file names.
func ParseVersion(raw string) (int64, error) {
	if len(raw) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q: expected %d digits", raw, len(versionLayout))
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid version %q: expected YYYYMMDDHHMMSS", raw)
	}
	return v, nil
}

// CurrentVersion reports the newest applied migration, 0 on an empty schema.
func CurrentVersion(ctx context.Context, db *sql.DB) (int64, error) {
	if err := goose.SetDialect(Dialect); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	v, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("get db version: %w", err)
	}
	return v, nil
}

// MigrateToVersion moves the schema up or down until it sits at target.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, target int64) error {
	if err := prepare(db, dir); err != nil {
		return err
	}
	current, err := CurrentVersion(ctx, db)
	if err != nil {
		return err
	}
	switch {
	case current < target:
		err = goose.UpToContext(ctx, db, dir, target)
	case current > target:
		err = goose.DownToContext(ctx, db, dir, target)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

func prepare(db *sql.DB, dir string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if err := goose.SetDialect(Dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}
