package cowswap

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

type staticDomain common.Hash

func (d staticDomain) DomainSeparator(context.Context, common.Address) (common.Hash, error) {
	return common.Hash(d), nil
}

type failingDomain struct{}

func (failingDomain) DomainSeparator(context.Context, common.Address) (common.Hash, error) {
	return common.Hash{}, errors.New("rpc unavailable")
}

var (
	fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	domain   = staticDomain(crypto.Keccak256Hash([]byte("gpv2 test domain")))

	usdc  = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	weth  = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	safe  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	recv  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	other = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newBuilder() *Builder {
	b := NewBuilder(domain)
	b.SetClock(func() time.Time { return fixedNow })
	return b
}

func baseParams() Params {
	return Params{
		Settlement:   Settlement,
		Owner:        safe,
		Receiver:     recv,
		AppData:      crypto.Keccak256Hash([]byte(`{"appCode":"assetguard"}`)),
		TokenIn:      usdc,
		TokenOut:     weth,
		AmountIn:     big.NewInt(1_000_000_000),
		MinAmountOut: big.NewInt(400_000_000_000_000_000),
		Side:         SideSell,
	}
}

func TestBuild_FixedValidityWindow(t *testing.T) {
	so, err := newBuilder().Build(context.Background(), baseParams())
	require.NoError(t, err)
	assert.Equal(t, uint32(fixedNow.Add(20*time.Minute).Unix()), so.Order.ValidTo)

	_, owner, validTo, err := UnpackUID(so.UID)
	require.NoError(t, err)
	assert.Equal(t, safe, owner)
	assert.Equal(t, so.Order.ValidTo, validTo)
}

func TestBuild_OrderShape(t *testing.T) {
	so, err := newBuilder().Build(context.Background(), baseParams())
	require.NoError(t, err)

	assert.Equal(t, usdc, so.Order.SellToken)
	assert.Equal(t, weth, so.Order.BuyToken)
	assert.Equal(t, int64(0), so.Order.FeeAmount.Int64())
	assert.False(t, so.Order.PartiallyFillable)
	assert.Equal(t, BalanceERC20, so.Order.SellTokenBalance)
	assert.Len(t, so.UID, UIDLen)
	assert.Equal(t, Settlement, so.Target)
	assert.True(t, bytes.Equal(so.Hash[:], so.UID[:32]))

	settlement := SettlementABI()
	method, err := settlement.MethodById(so.Calldata[:4])
	require.NoError(t, err)
	assert.Equal(t, "setPreSignature", method.Name)
	args, err := method.Inputs.Unpack(so.Calldata[4:])
	require.NoError(t, err)
	assert.Equal(t, so.UID, args[0].([]byte))
	assert.Equal(t, true, args[1].(bool))
}

func TestParams_Check(t *testing.T) {
	require.NoError(t, baseParams().Check())

	cases := map[string]func(p *Params){
		"unknown side":     func(p *Params) { p.Side = "limit" },
		"zero amount in":   func(p *Params) { p.AmountIn = new(big.Int) },
		"nil amount in":    func(p *Params) { p.AmountIn = nil },
		"negative min out": func(p *Params) { p.MinAmountOut = big.NewInt(-1) },
		"nil min out":      func(p *Params) { p.MinAmountOut = nil },
		"same token":       func(p *Params) { p.TokenOut = p.TokenIn },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			p := baseParams()
			mut(&p)
			assert.True(t, reason.Has(p.Check(), reason.MalformedPayload))
		})
	}
}

func TestBuild_RejectsBadInput(t *testing.T) {
	b := newBuilder()
	p := baseParams()
	p.Side = "limit"
	_, err := b.Build(context.Background(), p)
	assert.Error(t, err)

	p = baseParams()
	p.AmountIn = big.NewInt(0)
	_, err = b.Build(context.Background(), p)
	assert.Error(t, err)

	_, err = NewBuilder(failingDomain{}).Build(context.Background(), baseParams())
	assert.ErrorContains(t, err, "rpc unavailable")
}

func TestOrderHash_DomainBound(t *testing.T) {
	so, err := newBuilder().Build(context.Background(), baseParams())
	require.NoError(t, err)
	h, err := so.Order.Hash(crypto.Keccak256Hash([]byte("another chain")))
	require.NoError(t, err)
	assert.NotEqual(t, so.Hash, h)
}

func TestParamsChecks(t *testing.T) {
	p := baseParams()
	assert.Len(t, p.Checks(false), 3)
	assert.Equal(t, []whitelist.Check{whitelist.AddressCheck(whitelist.Receiver, recv)}, p.Checks(true))
}

func TestPackUID_RoundTrip(t *testing.T) {
	h := crypto.Keccak256Hash([]byte("x"))
	uid := PackUID(h, safe, 0xdeadbeef)
	gotHash, gotOwner, gotValidTo, err := UnpackUID(uid)
	require.NoError(t, err)
	assert.Equal(t, h, gotHash)
	assert.Equal(t, safe, gotOwner)
	assert.Equal(t, uint32(0xdeadbeef), gotValidTo)

	_, _, _, err = UnpackUID(uid[:55])
	assert.Error(t, err)
	_, err = PackSetPreSignature(uid[:55], true)
	assert.Error(t, err)
}

// mutate changes exactly one input field, selected by field.
func mutate(p Params, field int) Params {
	switch field {
	case 0:
		p.Settlement = other
	case 1:
		p.Owner = other
	case 2:
		p.Receiver = other
	case 3:
		p.AppData = crypto.Keccak256Hash(p.AppData[:])
	case 4:
		p.TokenIn = other
	case 5:
		p.TokenOut = other
	case 6:
		p.AmountIn = new(big.Int).Add(p.AmountIn, big.NewInt(1))
	case 7:
		p.MinAmountOut = new(big.Int).Add(p.MinAmountOut, big.NewInt(1))
	default:
		p.Side = SideBuy
	}
	return p
}

// perSettlement returns a different domain separator for each settlement,
// as distinct contracts have distinct domains.
type perSettlement struct{}

func (perSettlement) DomainSeparator(_ context.Context, s common.Address) (common.Hash, error) {
	return crypto.Keccak256Hash(s[:]), nil
}

func TestOrderUIDProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	build := func(p Params) []byte {
		b := NewBuilder(perSettlement{})
		b.SetClock(func() time.Time { return fixedNow })
		so, err := b.Build(context.Background(), p)
		if err != nil {
			return nil
		}
		return so.UID
	}
	params := func(amountIn, minOut uint64) Params {
		p := baseParams()
		p.AmountIn = new(big.Int).SetUint64(amountIn)
		p.MinAmountOut = new(big.Int).SetUint64(minOut)
		return p
	}

	properties.Property("identical inputs give identical uids", prop.ForAll(
		func(amountIn, minOut uint64) bool {
			a, b := build(params(amountIn, minOut)), build(params(amountIn, minOut))
			return a != nil && bytes.Equal(a, b)
		},
		gen.UInt64Range(1, 1<<62),
		gen.UInt64Range(0, 1<<62),
	))

	properties.Property("changing any one field changes the uid", prop.ForAll(
		func(amountIn, minOut uint64, field int) bool {
			p := params(amountIn, minOut)
			a, b := build(p), build(mutate(p, field))
			return a != nil && b != nil && !bytes.Equal(a, b)
		},
		gen.UInt64Range(1, 1<<62),
		gen.UInt64Range(0, 1<<62),
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}
