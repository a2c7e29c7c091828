// Package migrations contains SQL migrations for the ARGO store.
package migrations

import (
	"embed"

	"github.com/floatchat/floatchat/providers/sql"
)

//go:embed *.sql
var migrations embed.FS

func Migrations() sql.Migrations {
	return sql.Migrations{migrations}
}
