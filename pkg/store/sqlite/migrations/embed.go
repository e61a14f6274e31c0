package migrations

import "embed"

// FS contains the embedded SQLite migrations for sheet storage.
//
//go:embed *.sql
var FS embed.FS
