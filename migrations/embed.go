// Package migrations holds the goose migrations of the iaso schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
