package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"
)

// the schema relies on partial unique indexes, so only postgres is supported
const dialect = "postgres"

// goose keeps its dialect and base filesystem in package globals.
var gooseMu sync.Mutex

// Runner applies a Source to one database.
type Runner struct {
	db  *sql.DB
	src Source
}

func NewRunner(db *sql.DB, src Source) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if src.FS == nil {
		return nil, fmt.Errorf("migration source is required")
	}
	return &Runner{db: db, src: src}, nil
}

// Command runs one of goose's standard commands (up, down, status, ...).
func (r *Runner) Command(ctx context.Context, command string, args ...string) error {
	return r.with(func() error {
		if err := goose.RunContext(ctx, command, r.db, ".", args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) error {
	return r.Command(ctx, "up")
}

// ToVersion migrates up or down until the database sits at target, given as
// the YYYYMMDDHHMMSS prefix of a migration file.
func (r *Runner) ToVersion(ctx context.Context, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}

	return r.with(func() error {
		current, err := goose.GetDBVersion(r.db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		switch {
		case current == version:
			return nil
		case current < version:
			if err := goose.UpToContext(ctx, r.db, ".", version); err != nil {
				return fmt.Errorf("goose up-to %d: %w", version, err)
			}
		default:
			if err := goose.DownToContext(ctx, r.db, ".", version); err != nil {
				return fmt.Errorf("goose down-to %d: %w", version, err)
			}
		}
		return nil
	})
}

func (r *Runner) with(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetBaseFS(r.src.FS)
	defer goose.SetBaseFS(nil)
	return fn()
}
