// Package migrations embeds the admin schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
