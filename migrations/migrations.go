// Package migrations embeds the SQL schema migrations applied at startup.
package migrations

import "embed"

// FS holds the numbered golang-migrate files (NNN_name.up.sql / .down.sql).
//
//go:embed *.sql
var FS embed.FS
