// Package migrations embeds the PostgreSQL schema of the versioned store,
// applied with goose at server start.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
