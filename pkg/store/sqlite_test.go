package store

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	usdc   = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	router = common.HexToAddress("0x7C68C7866A64FA2160F78EEaE12217FFbf871fa8")
	vault  = common.HexToAddress("0x31eF83a530Fde1B38EE9A18093A333D8Bbbc40D5")
)

func openMemory(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_RegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	reg := whitelist.NewRegistry(owner)
	reg.SetStore(s)
	reg.SetClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })

	require.NoError(t, reg.Set(ctx, owner, whitelist.Asset, whitelist.AddressKey(usdc), true, "usdc"))
	require.NoError(t, reg.Set(ctx, owner, whitelist.Action, whitelist.ActionKey(6), true, "spot send"))
	require.NoError(t, reg.Set(ctx, owner, whitelist.Router, whitelist.AddressKey(router), true, ""))
	require.NoError(t, reg.BindRouter(ctx, owner, router, vault, "order vault"))

	fresh := whitelist.NewRegistry(owner)
	fresh.SetStore(s)
	require.NoError(t, fresh.Load(ctx))

	assert.True(t, fresh.IsAllowed(whitelist.Asset, whitelist.AddressKey(usdc)))
	assert.True(t, fresh.IsAllowed(whitelist.Action, whitelist.ActionKey(6)))
	assert.False(t, fresh.IsAllowed(whitelist.Action, whitelist.ActionKey(7)))
	escrow, ok := fresh.Binding(router)
	require.True(t, ok)
	assert.Equal(t, vault, escrow)
}

func TestSQLite_UpsertRevokes(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	key := whitelist.AddressKey(usdc)
	require.NoError(t, s.SaveEntry(ctx, whitelist.Entry{Dimension: whitelist.Asset, Key: key, Approved: true, UpdatedAt: now}))
	require.NoError(t, s.SaveEntry(ctx, whitelist.Entry{Dimension: whitelist.Asset, Key: key, Approved: false, Note: "paused", UpdatedAt: now.Add(time.Hour)}))

	entries, err := s.LoadEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Approved)
	assert.Equal(t, "paused", entries[0].Note)
	assert.Equal(t, key, entries[0].Key)
	assert.True(t, entries[0].UpdatedAt.Equal(now.Add(time.Hour)))
}

func TestSQLite_UnbindDeletes(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	now := time.Now().UTC()

	require.NoError(t, s.SaveBinding(ctx, whitelist.Binding{Router: router, Escrow: vault, UpdatedAt: now}))
	require.NoError(t, s.SaveBinding(ctx, whitelist.Binding{Router: router, UpdatedAt: now}))

	bindings, err := s.LoadBindings(ctx)
	require.NoError(t, err)
	assert.Empty(t, bindings)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := openMemory(t)
	assert.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, s.Migrate(context.Background()))
}
