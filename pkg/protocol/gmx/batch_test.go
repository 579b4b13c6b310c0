package gmx

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	router = common.HexToAddress("0x7C68C7866A64FA2160F78EEaE12217FFbf871fa8")
	vault  = common.HexToAddress("0x31eF83a530Fde1B38EE9A18093A333D8Bbbc40D5")
	usdc   = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	m1     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	m2     = common.HexToAddress("0x0000000000000000000000000000000000000002")
	r1     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	wallet = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func newRegistry(t *testing.T) *whitelist.Registry {
	t.Helper()
	ctx := context.Background()
	reg := whitelist.NewRegistry(owner)
	for _, c := range []whitelist.Check{
		whitelist.AddressCheck(whitelist.Asset, usdc),
		whitelist.AddressCheck(whitelist.Market, m1),
		whitelist.AddressCheck(whitelist.Receiver, r1),
		whitelist.AddressCheck(whitelist.Router, router),
	} {
		require.NoError(t, reg.Set(ctx, owner, c.Dimension, c.Key, true, ""))
	}
	require.NoError(t, reg.BindRouter(ctx, owner, router, vault, "order vault"))
	return reg
}

func env(anyAsset bool) protocol.Env {
	return protocol.Env{Sender: wallet, Target: router, Escrow: vault, AnyAsset: anyAsset}
}

func pack(t *testing.T, method string, args ...any) []byte {
	t.Helper()
	data, err := routerABI.Pack(method, args...)
	require.NoError(t, err)
	return data
}

func order(market, receiver common.Address) CreateOrderParams {
	return CreateOrderParams{
		Addresses: OrderAddresses{
			Receiver:               receiver,
			Market:                 market,
			InitialCollateralToken: usdc,
			SwapPath:               []common.Address{},
		},
		Numbers: OrderNumbers{
			SizeDeltaUsd:                 big.NewInt(1_000),
			InitialCollateralDeltaAmount: big.NewInt(100),
			TriggerPrice:                 big.NewInt(0),
			AcceptablePrice:              big.NewInt(2_000),
			ExecutionFee:                 big.NewInt(10),
			CallbackGasLimit:             big.NewInt(0),
			MinOutputAmount:              big.NewInt(0),
			ValidFromTime:                big.NewInt(0),
		},
		OrderType: 2,
		IsLong:    true,
	}
}

// multicallArgs returns multicall argument bytes, selector stripped.
func multicallArgs(t *testing.T, calls ...[]byte) []byte {
	t.Helper()
	return pack(t, "multicall", calls)[4:]
}

func TestValidate_WhitelistedBatch(t *testing.T) {
	reg := newRegistry(t)
	args := multicallArgs(t,
		pack(t, "sendWnt", vault, big.NewInt(10)),
		pack(t, "sendTokens", usdc, vault, big.NewInt(100)),
		pack(t, "createOrder", order(m1, r1)),
	)

	checks, err := Validate(env(false), protocol.KindGMXMulticall, args)
	require.NoError(t, err)
	assert.NoError(t, reg.Verify(checks))
}

func TestValidate_UnlistedMarketRejectsWholeBatch(t *testing.T) {
	reg := newRegistry(t)
	args := multicallArgs(t,
		pack(t, "sendWnt", vault, big.NewInt(10)),
		pack(t, "sendTokens", usdc, vault, big.NewInt(100)),
		pack(t, "createOrder", order(m2, r1)),
	)

	checks, err := Validate(env(false), protocol.KindGMXMulticall, args)
	require.NoError(t, err)
	err = reg.Verify(checks)
	require.Error(t, err)
	code, _ := reason.CodeOf(err)
	assert.Equal(t, reason.MarketNotWhitelisted, code)
}

func TestValidate_AnyAssetSkipsMarketButNotReceiver(t *testing.T) {
	reg := newRegistry(t)
	unknownToken := common.HexToAddress("0x00000000000000000000000000000000000000d1")

	args := multicallArgs(t,
		pack(t, "sendTokens", unknownToken, vault, big.NewInt(100)),
		pack(t, "createOrder", order(m2, r1)),
	)
	checks, err := Validate(env(true), protocol.KindGMXMulticall, args)
	require.NoError(t, err)
	assert.NoError(t, reg.Verify(checks))

	stranger := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	args = multicallArgs(t, pack(t, "createOrder", order(m2, stranger)))
	checks, err = Validate(env(true), protocol.KindGMXMulticall, args)
	require.NoError(t, err)
	assert.True(t, reason.Has(reg.Verify(checks), reason.ReceiverNotWhitelisted))
}

func TestValidate_OptionalRecipientsAndSwapPath(t *testing.T) {
	o := order(m1, r1)
	o.Addresses.UiFeeReceiver = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	o.Addresses.SwapPath = []common.Address{m1, m2}

	checks, err := Validate(env(false), protocol.KindGMXMulticall, multicallArgs(t, pack(t, "createOrder", o)))
	require.NoError(t, err)

	var receivers, markets int
	for _, c := range checks {
		switch c.Dimension {
		case whitelist.Receiver:
			receivers++
		case whitelist.Market:
			markets++
		}
	}
	assert.Equal(t, 2, receivers)
	assert.Equal(t, 3, markets)
}

func TestValidate_TransferOutsideEscrow(t *testing.T) {
	args := multicallArgs(t,
		pack(t, "sendTokens", usdc, r1, big.NewInt(100)),
		pack(t, "createOrder", order(m1, r1)),
	)
	_, err := Validate(env(false), protocol.KindGMXMulticall, args)
	assert.True(t, reason.Has(err, reason.EscrowMismatch))

	// Even with anyAsset the escrow binding holds.
	_, err = Validate(env(true), protocol.KindGMXMulticall, args)
	assert.True(t, reason.Has(err, reason.EscrowMismatch))
}

func TestValidate_Unbound(t *testing.T) {
	e := env(false)
	e.Escrow = common.Address{}
	_, err := Validate(e, protocol.KindGMXMulticall, multicallArgs(t, pack(t, "sendWnt", vault, big.NewInt(1))))
	assert.True(t, reason.Has(err, reason.RouterNotConfigured))
}

func TestDecodeBatch_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		calls [][]byte
		code  reason.Code
	}{
		{"empty batch", [][]byte{}, reason.MalformedPayload},
		{"short entry", [][]byte{{0x7d, 0x39}}, reason.MalformedPayload},
		{"unknown inner selector", [][]byte{{0xde, 0xad, 0xbe, 0xef}}, reason.UnknownSelector},
		{"nested multicall", [][]byte{pack(t, "multicall", [][]byte{})}, reason.UnknownSelector},
		{"truncated createOrder", [][]byte{pack(t, "createOrder", order(m1, r1))[:100]}, reason.MalformedPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeBatch(multicallArgs(t, tc.calls...))
			require.Error(t, err)
			code, ok := reason.CodeOf(err)
			require.True(t, ok)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestDecodeBatch_OneBadEntryFailsAll(t *testing.T) {
	_, err := DecodeBatch(multicallArgs(t,
		pack(t, "sendWnt", vault, big.NewInt(10)),
		pack(t, "createOrder", order(m1, r1)),
		[]byte{0x01, 0x02, 0x03, 0x04, 0x05},
	))
	assert.True(t, reason.Has(err, reason.UnknownSelector))
}

func TestDecodeBatch_DecodesOrder(t *testing.T) {
	o := order(m1, r1)
	b, err := DecodeBatch(multicallArgs(t, pack(t, "createOrder", o)))
	require.NoError(t, err)
	require.Len(t, b.Entries, 1)
	got := b.Entries[0].Order
	require.NotNil(t, got)
	assert.Equal(t, m1, got.Addresses.Market)
	assert.Equal(t, r1, got.Addresses.Receiver)
	assert.Equal(t, int64(2_000), got.Numbers.AcceptablePrice.Int64())
	assert.True(t, got.IsLong)
}

func TestValidate_TopLevelOnlyMulticall(t *testing.T) {
	_, err := Validate(env(false), protocol.KindGMXSendWnt, nil)
	assert.True(t, reason.Has(err, reason.UnknownSelector))
	assert.Len(t, Selectors(), 1)
}
