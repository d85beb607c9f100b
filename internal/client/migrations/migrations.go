// Package migrations embeds the SQL schema of the client's local SQLite
// cache, applied with goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
