package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

func TestPositional(t *testing.T) {
	assert.Equal(t, "DELETE FROM router_bindings WHERE router = $1", positional(deleteBinding))
	assert.Equal(t, "VALUES ($1, $2, $3)", positional("VALUES (?, ?, ?)"))
}

func TestPostgres_SaveEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)
	key := whitelist.AddressKey(usdc)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO whitelist_entries")).
		WithArgs("asset", key.Hex(), true, "usdc", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.SaveEntry(context.Background(), whitelist.Entry{
		Dimension: whitelist.Asset, Key: key, Approved: true, Note: "usdc", UpdatedAt: now,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveBinding(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO router_bindings")).
		WithArgs(router.Hex(), vault.Hex(), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM router_bindings WHERE router = $1")).
		WithArgs(router.Hex()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SaveBinding(ctx, whitelist.Binding{Router: router, Escrow: vault, UpdatedAt: time.Now()}))
	require.NoError(t, s.SaveBinding(ctx, whitelist.Binding{Router: router, UpdatedAt: time.Now()}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"dimension", "entry_key", "approved", "note", "updated_at"}).
		AddRow("asset", whitelist.AddressKey(usdc).Hex(), true, "usdc", now).
		AddRow("action", whitelist.ActionKey(2).Hex(), true, "vault transfer", now)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT dimension, entry_key, approved, note, updated_at FROM whitelist_entries")).
		WillReturnRows(rows)

	entries, err := s.LoadEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, usdc, entries[0].Key.Address())
	assert.Equal(t, whitelist.ActionKey(2), entries[1].Key)
	assert.Equal(t, whitelist.Action, entries[1].Dimension)
}

func TestPostgres_LoadBindingsRejectsGarbage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)
	rows := sqlmock.NewRows([]string{"router", "escrow", "note", "updated_at"}).
		AddRow(router.Hex(), "not-an-address", "", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT router, escrow, note, updated_at FROM router_bindings")).
		WillReturnRows(rows)

	_, err = s.LoadBindings(context.Background())
	assert.Error(t, err)
}

func TestPostgres_ErrorsWrap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgres(db)
	boom := errors.New("connection reset")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO whitelist_entries")).WillReturnError(boom)

	err = s.SaveEntry(context.Background(), whitelist.Entry{
		Dimension: whitelist.Receiver, Key: whitelist.AddressKey(common.Address{1}), UpdatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, boom)
}
