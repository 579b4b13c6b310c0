package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/assetguard/pkg/protocol/erc20"
)

var (
	self  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	usdc  = common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	payee = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

type staticSource map[common.Address]int64

func (s staticSource) BalanceOf(_ context.Context, token, _ common.Address) (*big.Int, error) {
	return big.NewInt(s[token]), nil
}

func TestSimulator_TokenTransfer(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator(self)
	sim.AddToken(usdc)
	sim.SetBalance(usdc, self, big.NewInt(100))

	data, err := erc20.PackTransfer(payee, big.NewInt(40))
	require.NoError(t, err)
	_, err = sim.Execute(ctx, usdc, data, nil)
	require.NoError(t, err)

	bal, err := sim.BalanceOf(ctx, usdc, payee)
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal.Int64())
	assert.Len(t, sim.Calls(), 1)

	data, err = erc20.PackTransfer(payee, big.NewInt(61))
	require.NoError(t, err)
	_, err = sim.Execute(ctx, usdc, data, nil)
	var rev *RevertError
	require.ErrorAs(t, err, &rev)
	assert.Len(t, sim.Calls(), 1)
}

func TestSimulator_Approve(t *testing.T) {
	sim := NewSimulator(self)
	sim.AddToken(usdc)
	data, err := erc20.PackApprove(payee, big.NewInt(7))
	require.NoError(t, err)
	_, err = sim.Execute(context.Background(), usdc, data, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sim.Allowance(usdc, self, payee).Int64())
}

func TestSimulator_AtomicReverts(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator(self)
	sim.AddToken(usdc)
	sim.SetBalance(usdc, self, big.NewInt(100))
	data, err := erc20.PackTransfer(payee, big.NewInt(40))
	require.NoError(t, err)

	boom := errors.New("post-check failed")
	err = sim.Atomic(ctx, func(ctx context.Context) error {
		if _, err := sim.Execute(ctx, usdc, data, nil); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	bal, err := sim.BalanceOf(ctx, usdc, self)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.Int64())
	assert.Empty(t, sim.Calls())

	require.NoError(t, sim.Atomic(ctx, func(ctx context.Context) error {
		_, err := sim.Execute(ctx, usdc, data, nil)
		return err
	}))
	assert.Len(t, sim.Calls(), 1)
}

func TestSimulator_HandlerAndSource(t *testing.T) {
	ctx := context.Background()
	router := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	sim := NewSimulator(self)
	sim.SetBalanceSource(staticSource{usdc: 5})
	sim.Handle(router, func(ctx context.Context, s *Simulator, call Call) ([]byte, error) {
		s.SetBalance(usdc, router, big.NewInt(1_000))
		return nil, s.Move(ctx, usdc, router, call.From, big.NewInt(10))
	})

	_, err := sim.Execute(ctx, router, []byte{1, 2, 3, 4}, nil)
	require.NoError(t, err)
	bal, err := sim.BalanceOf(ctx, usdc, self)
	require.NoError(t, err)
	assert.Equal(t, int64(15), bal.Int64())
}

func TestSimulator_MoveCreditsFreshHolder(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator(self)
	sim.SetBalance(usdc, self, big.NewInt(1_000))

	require.NoError(t, sim.Move(ctx, usdc, self, payee, big.NewInt(250)))

	got, err := sim.BalanceOf(ctx, usdc, payee)
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.Int64())
	got, err = sim.BalanceOf(ctx, usdc, self)
	require.NoError(t, err)
	assert.Equal(t, int64(750), got.Int64())

	// a shortfall from a holder never seen before reverts without a debit
	err = sim.Move(ctx, usdc, common.HexToAddress("0xe1"), payee, big.NewInt(1))
	var rev *RevertError
	require.ErrorAs(t, err, &rev)
	got, err = sim.BalanceOf(ctx, usdc, payee)
	require.NoError(t, err)
	assert.Equal(t, int64(250), got.Int64())
}

func TestSimulator_AtomicRestoresOnPanic(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulator(self)
	sim.AddToken(usdc)
	sim.SetBalance(usdc, self, big.NewInt(1_000))
	data, err := erc20.PackTransfer(payee, big.NewInt(250))
	require.NoError(t, err)

	err = sim.Atomic(ctx, func(ctx context.Context) error {
		if _, err := sim.Execute(ctx, usdc, data, nil); err != nil {
			return err
		}
		panic("handler bug")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler bug")

	bal, err := sim.BalanceOf(ctx, usdc, self)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), bal.Int64())
	bal, err = sim.BalanceOf(ctx, usdc, payee)
	require.NoError(t, err)
	assert.Zero(t, bal.Sign())
	assert.Empty(t, sim.Calls())
}
