// Package database manages the SQLite connection and schema migrations.
//
// The connection is opened with foreign keys enforced and WAL mode enabled,
// and the pool is limited to a single connection to match SQLite's
// single-writer model. Migrations are embedded SQL files registered via
// MigrationsFS and applied in version order, each in its own transaction.
package database
