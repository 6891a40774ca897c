// Package migrations embeds the schema files applied by `streamrouter migrate`.
package migrations

import "embed"

// Files are bundled at compile time so the binary migrates without a
// checkout of this directory.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
