// Package migrations embeds the schema of the terminal store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
