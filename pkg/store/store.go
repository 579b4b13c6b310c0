// Package store persists whitelist entries and router bindings in SQL. The
// same schema serves SQLite (single node, embedded) and PostgreSQL (shared).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

type dialect struct {
	name string
	// bind rewrites '?' placeholders for the driver.
	bind func(q string) string
	ddl  []string
}

func positional(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func identity(q string) string { return q }

const (
	upsertEntry = `INSERT INTO whitelist_entries (dimension, entry_key, approved, note, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (dimension, entry_key) DO UPDATE SET
			approved = EXCLUDED.approved,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at`
	upsertBinding = `INSERT INTO router_bindings (router, escrow, note, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (router) DO UPDATE SET
			escrow = EXCLUDED.escrow,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at`
	deleteBinding = `DELETE FROM router_bindings WHERE router = ?`
	selectEntries = `SELECT dimension, entry_key, approved, note, updated_at FROM whitelist_entries ORDER BY dimension, entry_key`
	selectBinding = `SELECT router, escrow, note, updated_at FROM router_bindings ORDER BY router`
)

// SQLStore implements whitelist.Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

var _ whitelist.Store = (*SQLStore)(nil)

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s migrate: %w", s.dialect.name, err)
		}
	}
	return nil
}

// SaveEntry upserts one whitelist entry.
func (s *SQLStore) SaveEntry(ctx context.Context, e whitelist.Entry) error {
	_, err := s.db.ExecContext(ctx, s.dialect.bind(upsertEntry),
		string(e.Dimension), e.Key.Hex(), e.Approved, e.Note, e.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to persist whitelist entry: %w", err)
	}
	return nil
}

// SaveBinding upserts a router binding; a zero escrow deletes it.
func (s *SQLStore) SaveBinding(ctx context.Context, b whitelist.Binding) error {
	var err error
	if b.Escrow == (common.Address{}) {
		_, err = s.db.ExecContext(ctx, s.dialect.bind(deleteBinding), b.Router.Hex())
	} else {
		_, err = s.db.ExecContext(ctx, s.dialect.bind(upsertBinding),
			b.Router.Hex(), b.Escrow.Hex(), b.Note, b.UpdatedAt.UTC())
	}
	if err != nil {
		return fmt.Errorf("failed to persist router binding: %w", err)
	}
	return nil
}

// LoadEntries returns every stored entry.
func (s *SQLStore) LoadEntries(ctx context.Context) ([]whitelist.Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to load whitelist entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []whitelist.Entry
	for rows.Next() {
		var (
			dim, key, note string
			approved       bool
			updated        time.Time
		)
		if err := rows.Scan(&dim, &key, &approved, &note, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan whitelist entry: %w", err)
		}
		d := whitelist.Dimension(dim)
		k, err := whitelist.ParseKey(d, key)
		if err != nil {
			return nil, err
		}
		out = append(out, whitelist.Entry{Dimension: d, Key: k, Approved: approved, Note: note, UpdatedAt: updated.UTC()})
	}
	return out, rows.Err()
}

// LoadBindings returns every stored router binding.
func (s *SQLStore) LoadBindings(ctx context.Context) ([]whitelist.Binding, error) {
	rows, err := s.db.QueryContext(ctx, selectBinding)
	if err != nil {
		return nil, fmt.Errorf("failed to load router bindings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []whitelist.Binding
	for rows.Next() {
		var (
			router, escrow, note string
			updated              time.Time
		)
		if err := rows.Scan(&router, &escrow, &note, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan router binding: %w", err)
		}
		if !common.IsHexAddress(router) || !common.IsHexAddress(escrow) {
			return nil, fmt.Errorf("router binding %q -> %q: not hex addresses", router, escrow)
		}
		out = append(out, whitelist.Binding{
			Router:    common.HexToAddress(router),
			Escrow:    common.HexToAddress(escrow),
			Note:      note,
			UpdatedAt: updated.UTC(),
		})
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }
