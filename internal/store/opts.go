// Package store provides storage backends for BookingPipe.
//
// This file defines the functional options shared by the store
// constructors and the DSN-type detection used at bootstrap.
package store

import "strings"

// Opts holds configuration options for store constructors.
type Opts struct {
	// DSN is the database connection string: a file path for SQLite, a
	// connection URL or key=value string for PostgreSQL.
	DSN string
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DSNType identifies which backend a connection string addresses.
type DSNType string

const (
	DSNTypeSQLite   DSNType = "sqlite"
	DSNTypePostgres DSNType = "postgres"
)

// DetectDSNType classifies a DSN string. PostgreSQL URLs and key=value
// connection strings are recognized; anything else is treated as an SQLite
// file path.
func DetectDSNType(dsn string) DSNType {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DSNTypePostgres
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}
