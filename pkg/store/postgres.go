package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

var postgresDialect = dialect{
	name: "postgres",
	bind: positional,
	ddl: []string{
		`CREATE TABLE IF NOT EXISTS whitelist_entries (
			dimension TEXT NOT NULL,
			entry_key TEXT NOT NULL,
			approved BOOLEAN NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (dimension, entry_key)
		)`,
		`CREATE TABLE IF NOT EXISTS router_bindings (
			router TEXT PRIMARY KEY,
			escrow TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	},
}

// NewPostgres wraps an open PostgreSQL handle. Call Migrate to create the
// schema when the deployment does not manage it externally.
func NewPostgres(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: postgresDialect}
}

// OpenPostgres connects with a lib/pq DSN and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewPostgres(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
