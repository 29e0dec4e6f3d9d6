// Package migrations applies the embedded schema files in lexical
// order on startup; migrations must stay idempotent (IF NOT EXISTS).
package migrations

import "embed"

//go:embed postgres/*.sql
var PostgresFS embed.FS

//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
