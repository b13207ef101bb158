// Package migrations contains embedded SQL migrations for the SQLite store.
package migrations

import "embed"

//go:embed duet/*.sql
var DuetFS embed.FS
