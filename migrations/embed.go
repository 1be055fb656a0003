// Package migrations embeds the SQL schema applied by the server and the
// integration test containers.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
