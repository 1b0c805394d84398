package store

import (
	"strings"
	"time"
)

// Opts holds configuration for persistent stores.
type Opts struct {
	DSN string
	Now func() time.Time
}

// Option configures a store.
type Option func(*Opts)

// WithDSN sets the database DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option { return WithDSN(dsn) }

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option { return WithDSN(dsn) }

// WithClock injects the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

func applyOpts(opts []Option) Opts {
	cfg := Opts{Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return cfg
}

// DetectDSNType returns "postgres" for Postgres URLs and key/value connection strings and
// "sqlite3" for everything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(d, "postgres://"), strings.HasPrefix(d, "postgresql://"):
		return "postgres"
	case strings.Contains(d, "host=") || strings.Contains(d, "dbname="):
		return "postgres"
	}
	return "sqlite3"
}

// Open returns the store selected by the DSN: in-memory when empty, otherwise Postgres or
// SQLite according to DetectDSNType.
func Open(opts ...Option) (ChatStore, error) {
	cfg := applyOpts(opts)
	switch {
	case cfg.DSN == "":
		return NewInMemoryStore(opts...), nil
	case DetectDSNType(cfg.DSN) == "postgres":
		return NewPostgresStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}
