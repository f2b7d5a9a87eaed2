// Package migrations embeds the gateway store schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
