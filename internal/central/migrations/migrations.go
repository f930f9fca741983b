// Package migrations embeds the goose migrations for the central PostgreSQL
// database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
