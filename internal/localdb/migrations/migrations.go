// Package migrations embeds the SQL migrations of the on-device database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
