package hypercore

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	hlpVault  = common.HexToAddress("0xdfc24b077bc1425ad1dea75bcb6f8158e10df303")
	otherVlt  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	friend    = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	paramless = uint32(5)
)

func testEnv(t *testing.T, codes ...uint32) protocol.Env {
	t.Helper()
	ctx := context.Background()
	reg := whitelist.NewRegistry(owner)
	for _, c := range codes {
		require.NoError(t, reg.Set(ctx, owner, whitelist.Action, whitelist.ActionKey(c), true, ""))
	}
	require.NoError(t, reg.Set(ctx, owner, whitelist.Vault, whitelist.AddressKey(hlpVault), true, "HLP"))
	return protocol.Env{Target: CoreWriter, Registry: reg}
}

func TestDecode_HeaderBoundary(t *testing.T) {
	env := testEnv(t, paramless)

	a, err := Decode([]byte{Version, 0x00, 0x00, 0x05}, env)
	require.NoError(t, err)
	assert.Equal(t, paramless, a.Code)
	assert.Empty(t, a.Params)

	_, err = Decode([]byte{Version, 0x00, 0x00}, env)
	assert.True(t, reason.Has(err, reason.MalformedPayload))

	_, err = Decode(nil, env)
	assert.True(t, reason.Has(err, reason.MalformedPayload))
}

func TestDecode_Version(t *testing.T) {
	_, err := Decode([]byte{2, 0x00, 0x00, 0x05}, testEnv(t, paramless))
	assert.True(t, reason.Has(err, reason.UnsupportedVersion))
}

func TestDecode_ActionCodeGate(t *testing.T) {
	_, err := Decode([]byte{Version, 0x00, 0x00, 0x05}, testEnv(t))
	assert.True(t, reason.Has(err, reason.ActionNotWhitelisted))

	// A nil registry admits nothing.
	_, err = Decode([]byte{Version, 0x00, 0x00, 0x05}, protocol.Env{})
	assert.True(t, reason.Has(err, reason.ActionNotWhitelisted))
}

func TestParseHeader_BigEndianCode(t *testing.T) {
	_, code, rest, err := ParseHeader([]byte{Version, 0x01, 0x02, 0x03, 0xff})
	require.NoError(t, err)
	assert.Equal(t, uint32(0x010203), code)
	assert.Equal(t, []byte{0xff}, rest)
}

func TestDecode_VaultTransfer(t *testing.T) {
	env := testEnv(t, ActionVaultTransfer)

	payload, err := Encode(ActionVaultTransfer, hlpVault, true, uint64(1_000_000))
	require.NoError(t, err)
	a, err := Decode(payload, env)
	require.NoError(t, err)
	require.NotNil(t, a.VaultTransfer)
	assert.Equal(t, hlpVault, a.VaultTransfer.Vault)
	assert.True(t, a.VaultTransfer.IsDeposit)
	_, ok := a.Destination()
	assert.False(t, ok)

	payload, err = Encode(ActionVaultTransfer, otherVlt, true, uint64(1))
	require.NoError(t, err)
	_, err = Decode(payload, env)
	assert.True(t, reason.Has(err, reason.VaultNotWhitelisted))

	// Header only for a code that needs parameters.
	_, err = Decode([]byte{Version, 0x00, 0x00, 0x02}, env)
	assert.True(t, reason.Has(err, reason.MalformedPayload))
}

func TestDecode_SpotSendReturnsDestination(t *testing.T) {
	env := testEnv(t, ActionSpotSend)
	payload, err := Encode(ActionSpotSend, friend, uint64(150), uint64(42))
	require.NoError(t, err)

	a, err := Decode(payload, env)
	require.NoError(t, err)
	dst, ok := a.Destination()
	require.True(t, ok)
	assert.Equal(t, friend, dst)
	assert.Equal(t, uint64(42), a.SpotSend.Wei)

	_, err = Decode(payload[:len(payload)-1], env)
	assert.True(t, reason.Has(err, reason.MalformedPayload))
}

func TestValidate_CoreWriter(t *testing.T) {
	env := testEnv(t, ActionSpotSend)
	action, err := Encode(ActionSpotSend, friend, uint64(150), uint64(42))
	require.NoError(t, err)
	data, err := PackSendRawAction(action)
	require.NoError(t, err)

	sel := Selectors()
	require.Len(t, sel, 1)

	checks, err := Validate(env, protocol.KindCoreWriterAction, data[4:])
	require.NoError(t, err)
	assert.Equal(t, []whitelist.Check{whitelist.AddressCheck(whitelist.Receiver, friend)}, checks)

	_, err = Validate(env, protocol.KindCoreWriterAction, data[4:len(data)-1])
	assert.True(t, reason.Has(err, reason.MalformedPayload))
}

func TestEncode_RejectsWideCode(t *testing.T) {
	_, err := Encode(1 << 24)
	assert.Error(t, err)
}
