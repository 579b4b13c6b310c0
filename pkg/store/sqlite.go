package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name: "sqlite",
	bind: identity,
	ddl: []string{
		`CREATE TABLE IF NOT EXISTS whitelist_entries (
			dimension TEXT NOT NULL,
			entry_key TEXT NOT NULL,
			approved BOOLEAN NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (dimension, entry_key)
		)`,
		`CREATE TABLE IF NOT EXISTS router_bindings (
			router TEXT PRIMARY KEY,
			escrow TEXT NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL
		)`,
	},
}

// NewSQLite wraps an open SQLite handle and migrates it.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: sqliteDialect}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; an in-memory database also lives on a single connection.
	db.SetMaxOpenConns(1)
	s, err := NewSQLite(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
