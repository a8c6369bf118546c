// Package migrations contains the SQL migrations for the application database.
package migrations

import (
	"embed"
)

// FS contains the migration files.
//
//go:embed *.sql
var FS embed.FS
