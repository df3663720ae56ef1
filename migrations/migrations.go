// Package migrations embeds the SQL applied by db.RunMigrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
