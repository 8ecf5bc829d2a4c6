// Package migrations embeds the SQL migration files into the binary so the
// audit database can be created without the files on disk.
package migrations

import "embed"

// FS holds every *.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
