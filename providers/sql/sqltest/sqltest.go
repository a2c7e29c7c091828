// Package sqltest provides utilities for testing SQL databases.
package sqltest

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/floatchat/floatchat/internal/flock"
	"github.com/floatchat/floatchat/providers/logging/loggingtest"
	fcsql "github.com/floatchat/floatchat/providers/sql"
)

// MemoryDSN returns a private in-memory SQLite DSN for the current test.
func MemoryDSN(t *testing.T) string {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", name)
}

// NewForTesting creates a migrated database and its driver for testing purposes.
//
// Non-SQLite databases are shared between test processes, so access is serialised with a file lock.
func NewForTesting(t *testing.T, dsn string, migrations fcsql.Migrations) (*sql.DB, fcsql.Driver) {
	t.Helper()
	logger := loggingtest.NewForTesting()

	scheme, _, _ := strings.Cut(dsn, "://")
	if scheme != "sqlite" {
		release, err := flock.Acquire(t.Context(), "/tmp/floatchat-"+scheme+"-test.lock", time.Second*30)
		assert.NoError(t, err)
		t.Cleanup(func() {
			assert.NoError(t, release())
		})
	}

	config := fcsql.Config{
		DSN:          dsn,
		Migrate:      true,
		ConnectRetry: time.Second * 5,
	}

	db, err := fcsql.New(t.Context(), config, logger, migrations)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	driver, err := fcsql.DriverForConfig(config)
	assert.NoError(t, err)

	return db, driver
}
