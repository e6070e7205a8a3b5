// Package store provides durable storage backends for the HRM sync agent.
//
// It defines the outbox, response cache, and settings repositories together
// with SQLite, PostgreSQL, and in-memory implementations. The SQLite backend
// is the default on field devices; PostgreSQL serves shared-kiosk deployments
// where several terminals drain one outbox.
package store

import "strings"

// Opts holds configuration options for storage backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for storage backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite".
// PostgreSQL DSNs use URL ("postgres://...") or key-value ("host=... user=...")
// forms; anything else is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Store is the full persistence surface required by the sync agent: the
// durable outbox, the versioned response cache, and agent settings.
type Store interface {
	OutboxRepo
	CacheRepo
	SettingsRepo

	// Close releases the underlying storage resources.
	Close() error
}
