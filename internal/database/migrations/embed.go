// Package migrations contains the embedded goose migrations for MySQL.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
