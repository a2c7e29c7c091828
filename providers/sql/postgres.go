package sql

import (
	"database/sql"
	"fmt"
	"regexp"

	"github.com/alecthomas/errors"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func init() {
	Register("postgres", PostgresDriver{})
	Register("pgx", PostgresDriver{})
}

type PostgresDriver struct{}

var _ Driver = (*PostgresDriver)(nil)

func (PostgresDriver) Name() string { return "postgres" }

func (PostgresDriver) TranslateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
		return errors.Errorf("%w: %w", ErrConstraint, err)
	}
	return err
}

var placeholderRe = regexp.MustCompile(`\?`)

func (PostgresDriver) Denormalise(query string) string {
	i := 0
	return string(placeholderRe.ReplaceAllFunc([]byte(query), func(b []byte) []byte {
		i++
		return []byte(fmt.Sprintf("$%d", i))
	}))
}

func (PostgresDriver) Open(dsn string) (*sql.DB, error) {
	return errors.WithStack2(sql.Open("pgx", normalisePostgresDSN(dsn)))
}

func normalisePostgresDSN(dsn string) string {
	if after, ok := cutScheme(dsn, "pgx"); ok {
		return "postgres://" + after
	}
	return dsn
}
