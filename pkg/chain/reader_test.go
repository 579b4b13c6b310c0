package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/assetguard/pkg/protocol/cowswap"
)

type fakeCaller struct {
	results map[common.Address][]byte
	calls   int
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	out, ok := f.results[*msg.To]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func TestDomainSeparator_Cached(t *testing.T) {
	want := crypto.Keccak256Hash([]byte("domain"))
	fc := &fakeCaller{results: map[common.Address][]byte{cowswap.Settlement: want[:]}}
	r := NewReader(fc)

	got, err := r.DomainSeparator(context.Background(), cowswap.Settlement)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = r.DomainSeparator(context.Background(), cowswap.Settlement)
	require.NoError(t, err)
	assert.Equal(t, 1, fc.calls)
}

func TestBalanceOf(t *testing.T) {
	token := common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831")
	empty := common.HexToAddress("0x00000000000000000000000000000000000000e1")
	fc := &fakeCaller{results: map[common.Address][]byte{
		token: common.LeftPadBytes(big.NewInt(1234).Bytes(), 32),
		empty: nil,
	}}
	r := NewReader(fc)

	bal, err := r.BalanceOf(context.Background(), token, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, int64(1234), bal.Int64())

	bal, err = r.BalanceOf(context.Background(), empty, common.Address{})
	require.NoError(t, err)
	assert.Zero(t, bal.Sign())

	_, err = r.BalanceOf(context.Background(), common.Address{}, common.Address{})
	assert.ErrorContains(t, err, "execution reverted")
}
