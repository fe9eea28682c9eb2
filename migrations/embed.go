package migrations

import "embed"

// FS holds the SQL migrations applied by tools/migrate.
//
//go:embed *.sql
var FS embed.FS
