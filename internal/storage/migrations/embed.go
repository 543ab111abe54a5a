// Package migrations ships the schema with the binary and applies it at
// startup, so a fresh database needs no out-of-band setup step.
package migrations

import "embed"

// PostgresFS holds the PostgreSQL schema files, named so lexical order
// is application order.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the ClickHouse schema files. ClickHouse takes one
// statement per Exec, so these are split before running.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
