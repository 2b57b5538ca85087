package sqlite

import "embed"

// migrationFiles embeds the raw SQL migration set, following
// mchenetz-SPLAI/db/migrations/embed.go's `//go:embed *.sql` pattern.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS
