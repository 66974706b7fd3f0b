package migrations

import "embed"

// FS contains embedded SQLite migrations for the log entry archive.
//
//go:embed *.sql
var FS embed.FS
