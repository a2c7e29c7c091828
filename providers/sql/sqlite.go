package sql

import (
	"database/sql"
	"strings"

	"github.com/alecthomas/errors"
	"modernc.org/sqlite"
)

func init() {
	Register("sqlite", SQLiteDriver{})
}

type SQLiteDriver struct{}

var _ Driver = (*SQLiteDriver)(nil)

func (SQLiteDriver) Name() string { return "sqlite" }

func (SQLiteDriver) TranslateError(err error) error {
	var sqliteError *sqlite.Error
	if errors.As(err, &sqliteError) && (sqliteError.Code() == 19 || sqliteError.Code() == 787 || sqliteError.Code() == 1555 || sqliteError.Code() == 2067) { // SQLITE_CONSTRAINT / _FOREIGNKEY / _PRIMARYKEY / _UNIQUE
		return errors.Errorf("%w: %w", ErrConstraint, err)
	}
	return err
}

func (SQLiteDriver) Denormalise(query string) string { return query }

func (SQLiteDriver) Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", transformSQLiteDSN(dsn))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	// SQLite serialises writers; a single connection also keeps in-memory databases alive.
	db.SetMaxOpenConns(1)
	return db, nil
}

func transformSQLiteDSN(dsn string) string {
	return strings.TrimPrefix(dsn, "sqlite://")
}
