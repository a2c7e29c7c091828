package sql

import (
	"database/sql"
	"strings"

	"github.com/alecthomas/errors"
	"github.com/go-sql-driver/mysql"
)

func init() {
	Register("mysql", MySQLDriver{})
}

type MySQLDriver struct{}

var _ Driver = (*MySQLDriver)(nil)

func (MySQLDriver) Name() string { return "mysql" }

// MySQL error numbers for duplicate keys and foreign key failures.
var mysqlConstraintErrors = map[uint16]bool{1062: true, 1451: true, 1452: true}

func (MySQLDriver) TranslateError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && mysqlConstraintErrors[myErr.Number] {
		return errors.Errorf("%w: %w", ErrConstraint, err)
	}
	return err
}

func (MySQLDriver) Denormalise(query string) string { return query }

// Open a MySQL connection. "parseTime=true" is always enabled so TIMESTAMP columns scan into time.Time.
func (MySQLDriver) Open(dsn string) (*sql.DB, error) {
	dsn, _ = cutScheme(dsn, "mysql")
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Errorf("failed to parse MySQL DSN: %w", err)
	}
	cfg.ParseTime = true
	return errors.WithStack2(sql.Open("mysql", cfg.FormatDSN()))
}

func cutScheme(dsn, scheme string) (string, bool) {
	return strings.CutPrefix(dsn, scheme+"://")
}
