package velora

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/assetguard/pkg/reason"
)

var (
	usdc   = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	weth   = common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1")
	wallet = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

// fakeWallet credits `out` of weth on every Execute.
type fakeWallet struct {
	balance *big.Int
	out     *big.Int
	fail    error
	calls   int
}

func (f *fakeWallet) Address() common.Address { return wallet }

func (f *fakeWallet) BalanceOf(_ context.Context, token, holder common.Address) (*big.Int, error) {
	if token != weth || holder != wallet {
		return new(big.Int), nil
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeWallet) Execute(_ context.Context, target common.Address, _ []byte, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	f.balance.Add(f.balance, f.out)
	return nil, nil
}

func intent(minOut int64) Intent {
	return Intent{
		Router:       AugustusV6,
		TokenIn:      usdc,
		TokenOut:     weth,
		AmountIn:     big.NewInt(1_000),
		MinAmountOut: big.NewInt(minOut),
		Calldata:     []byte{0xe3, 0xea, 0xd5, 0x9e, 0x00},
	}
}

func TestSwap_ReturnsReceived(t *testing.T) {
	w := &fakeWallet{balance: big.NewInt(50), out: big.NewInt(500)}
	got, err := Swap(context.Background(), w, intent(450))
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.Int64())
	assert.Equal(t, 1, w.calls)
}

func TestSwap_SlippageExceeded(t *testing.T) {
	w := &fakeWallet{balance: big.NewInt(50), out: big.NewInt(449)}
	_, err := Swap(context.Background(), w, intent(450))
	assert.True(t, reason.Has(err, reason.SlippageExceeded))
}

func TestSwap_ExecutionReverted(t *testing.T) {
	w := &fakeWallet{balance: big.NewInt(0), out: big.NewInt(0), fail: errors.New("execution reverted: TRANSFER_FAILED")}
	_, err := Swap(context.Background(), w, intent(1))
	assert.True(t, reason.Has(err, reason.ExecutionReverted))
}

func TestIntentCheck(t *testing.T) {
	assert.NoError(t, intent(0).Check())

	in := intent(1)
	in.AmountIn = big.NewInt(0)
	assert.True(t, reason.Has(in.Check(), reason.MalformedPayload))

	in = intent(1)
	in.Calldata = []byte{0x01}
	assert.True(t, reason.Has(in.Check(), reason.MalformedPayload))

	in = intent(1)
	in.TokenOut = usdc
	assert.True(t, reason.Has(in.Check(), reason.MalformedPayload))

	assert.Len(t, intent(1).Checks(false), 2)
	assert.Empty(t, intent(1).Checks(true))
}

func TestSlippageBoundary(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("passes iff received >= min", prop.ForAll(
		func(pre, received, minOut uint64) bool {
			p := new(big.Int).SetUint64(pre)
			post := new(big.Int).Add(p, new(big.Int).SetUint64(received))
			err := CheckSlippage(p, post, new(big.Int).SetUint64(minOut))
			if received >= minOut {
				return err == nil
			}
			return reason.Has(err, reason.SlippageExceeded)
		},
		gen.UInt64(),
		gen.UInt64Range(0, 1<<40),
		gen.UInt64Range(0, 1<<40),
	))

	properties.Property("exact minimum passes, one less fails", prop.ForAll(
		func(pre, minOut uint64) bool {
			p := new(big.Int).SetUint64(pre)
			m := new(big.Int).SetUint64(minOut)
			exact := new(big.Int).Add(p, m)
			short := new(big.Int).Sub(exact, big.NewInt(1))
			return CheckSlippage(p, exact, m) == nil &&
				reason.Has(CheckSlippage(p, short, m), reason.SlippageExceeded)
		},
		gen.UInt64(),
		gen.UInt64Range(1, 1<<62),
	))

	properties.TestingRun(t)
}
