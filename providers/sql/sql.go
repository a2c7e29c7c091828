// Package sql opens and migrates the FloatChat database.
//
// The DSN scheme selects the driver: postgres:// (or pgx://), mysql:// or sqlite://.
package sql

import (
	"context"
	"database/sql"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/errors"
	"github.com/jpillora/backoff"
)

// ErrConstraint is returned by [Driver.TranslateError] for integrity constraint violations.
var ErrConstraint = errors.New("constraint violation")

type Config struct {
	DSN          string        `default:"sqlite://file:floatchat.db" env:"FLOATCHAT_DSN" help:"DSN for the SQL connection."`
	Migrate      bool          `default:"true" negatable:"" help:"Apply migrations on startup."`
	ConnectRetry time.Duration `default:"30s" help:"How long to retry the initial connection."`
}

// Driver abstracts the differences between SQL databases.
type Driver interface {
	Name() string
	// TranslateError maps driver-specific errors to the sentinel errors in this package.
	TranslateError(err error) error
	// Denormalise rewrites a query using "?" placeholders into the driver's native form.
	Denormalise(query string) string
	Open(dsn string) (*sql.DB, error)
}

// Migrations is a set of filesystems containing "*.sql" migration files.
//
// Files are applied in lexical order of their names across all filesystems.
type Migrations []fs.FS

var (
	driversLock sync.Mutex
	drivers     = map[string]Driver{}
)

// Register a [Driver] for a DSN scheme.
func Register(scheme string, driver Driver) {
	driversLock.Lock()
	defer driversLock.Unlock()
	drivers[scheme] = driver
}

// DriverForConfig returns the [Driver] registered for the scheme of the configured DSN.
func DriverForConfig(config Config) (Driver, error) {
	return DriverForDSN(config.DSN)
}

// DriverForDSN returns the [Driver] registered for the scheme of dsn.
//
// Only the scheme is inspected; the remainder is driver-specific and parsed by [Driver.Open].
func DriverForDSN(dsn string) (Driver, error) {
	scheme, _, ok := strings.Cut(dsn, "://")
	if !ok || scheme == "" {
		return nil, errors.Errorf("SQL DSN must be of the form <scheme>://...: %s", dsn)
	}
	driversLock.Lock()
	defer driversLock.Unlock()
	driver, ok := drivers[scheme]
	if !ok {
		return nil, errors.Errorf("unsupported SQL DSN scheme: %s", scheme)
	}
	return driver, nil
}

// New opens the database, waits for it to become reachable and optionally applies migrations.
func New(ctx context.Context, config Config, logger *slog.Logger, migrations Migrations) (*sql.DB, error) {
	driver, err := DriverForConfig(config)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	db, err := driver.Open(config.DSN)
	if err != nil {
		return nil, errors.Errorf("failed to open %s connection: %w", driver.Name(), err)
	}
	if err := waitForDB(ctx, logger, db, config.ConnectRetry); err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	logger.Debug("Connected to database", "driver", driver.Name())
	if !config.Migrate {
		return db, nil
	}
	if err := Migrate(ctx, logger, db, driver, migrations); err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	return db, nil
}

func waitForDB(ctx context.Context, logger *slog.Logger, db *sql.DB, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	retry := backoff.Backoff{Min: time.Millisecond * 100, Max: time.Second * 5}
	for {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("database not reachable: %w", err)
		}
		delay := retry.Duration()
		logger.Warn("Database not reachable, retrying", "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-time.After(delay):
		}
	}
}

type migration struct {
	name string
	sql  string
}

// Migrate applies any migrations not yet recorded in the "schema_migrations" table.
func Migrate(ctx context.Context, logger *slog.Logger, db *sql.DB, driver Driver, migrations Migrations) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name VARCHAR(255) NOT NULL PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		return errors.Errorf("failed to create schema_migrations: %w", err)
	}
	pending, err := collectMigrations(migrations)
	if err != nil {
		return errors.WithStack(err)
	}
	for _, m := range pending {
		var count int
		err := db.QueryRowContext(ctx, driver.Denormalise(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`), m.name).Scan(&count)
		if err != nil {
			return errors.Errorf("%s: failed to check migration: %w", m.name, err)
		}
		if count > 0 {
			continue
		}
		if err := applyMigration(ctx, db, driver, m); err != nil {
			return errors.WithStack(err)
		}
		logger.Info("Applied migration", "migration", m.name)
	}
	return nil
}

func collectMigrations(migrations Migrations) ([]migration, error) {
	out := []migration{}
	for _, mfs := range migrations {
		matches, err := fs.Glob(mfs, "*.sql")
		if err != nil {
			return nil, errors.Errorf("failed to list migrations: %w", err)
		}
		for _, name := range matches {
			content, err := fs.ReadFile(mfs, name)
			if err != nil {
				return nil, errors.Errorf("%s: failed to read migration: %w", name, err)
			}
			out = append(out, migration{name: name, sql: string(content)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func applyMigration(ctx context.Context, db *sql.DB, driver Driver, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("%s: failed to begin transaction: %w", m.name, err)
	}
	defer tx.Rollback() //nolint
	for _, stmt := range splitStatements(m.sql) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Errorf("%s: %w", m.name, driver.TranslateError(err))
		}
	}
	_, err = tx.ExecContext(ctx, driver.Denormalise(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`), m.name, time.Now().UTC())
	if err != nil {
		return errors.Errorf("%s: failed to record migration: %w", m.name, err)
	}
	return errors.WithStack(tx.Commit())
}

// splitStatements splits a migration into statements terminated by a ";" at the end of a line.
func splitStatements(content string) []string {
	statements := []string{}
	current := &strings.Builder{}
	for line := range strings.SplitSeq(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != ";" {
				statements = append(statements, strings.TrimSuffix(stmt, ";"))
			}
			current.Reset()
		}
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
