package sql

import (
	"embed"
)

// Content holds the idempotent schema migration files applied at startup
// by internal/store. Each file runs independently so a missing optional
// extension (e.g. TimescaleDB) in one statement does not block the rest.
//
//go:embed schema/*.sql
var Content embed.FS
