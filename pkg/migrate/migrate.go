package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the on-disk location used by the create/validate commands.
const DefaultDir = "pkg/migrate/migrations"

// EmbeddedDir is the directory inside Migrations that goose reads from.
const EmbeddedDir = "migrations"

const dialect = "postgres"

//go:embed migrations/*.sql
var Migrations embed.FS

var errNoDB = errors.New("db is required")

// RunEmbedded executes a goose command against the migrations compiled into
// the binary, so deployed workers never depend on the source tree.
func RunEmbedded(ctx context.Context, db *sql.DB, command string, args ...string) error {
	return withEmbedded(func() error {
		return Run(ctx, db, EmbeddedDir, command, args...)
	})
}

// Run executes a goose command against dir.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if err := prepare(db, dir); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until it sits at target, a
// YYYYMMDDHHMMSS migration stamp. Down steps must respect the immutable
// ledger tables, which is why every Down section is validated separately.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, target string) error {
	version, err := parseVersion(target)
	if err != nil {
		return err
	}
	if err := prepare(db, dir); err != nil {
		return err
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current == version:
		return nil
	case current < version:
		err = goose.UpToContext(ctx, db, dir, version)
	default:
		err = goose.DownToContext(ctx, db, dir, version)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, version, err)
	}
	return nil
}

// Status compares the applied schema version with the newest migration
// compiled into the binary.
type Status struct {
	Applied int64
	Latest  int64
}

// Behind reports whether the binary expects migrations that were not applied.
func (s Status) Behind() bool { return s.Applied < s.Latest }

// EmbeddedStatus reads the database version and the newest embedded version.
func EmbeddedStatus(ctx context.Context, db *sql.DB) (Status, error) {
	var status Status
	err := withEmbedded(func() error {
		if err := prepare(db, EmbeddedDir); err != nil {
			return err
		}
		found, err := goose.CollectMigrations(EmbeddedDir, 0, goose.MaxVersion)
		if err != nil {
			return fmt.Errorf("collect migrations: %w", err)
		}
		last, err := found.Last()
		if err != nil {
			return fmt.Errorf("latest migration: %w", err)
		}
		status.Latest = last.Version

		status.Applied, err = goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		return nil
	})
	return status, err
}

func parseVersion(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("target version is required")
	}
	if _, err := time.Parse(versionLayout, raw); err != nil {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", raw)
	}
	return strconv.ParseInt(raw, 10, 64)
}

func prepare(db *sql.DB, dir string) error {
	if db == nil {
		return errNoDB
	}
	if dir == "" {
		return errors.New("dir is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

func withEmbedded(fn func() error) error {
	goose.SetBaseFS(Migrations)
	defer goose.SetBaseFS(nil)
	return fn()
}
