// Package migrations embeds the participant schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
