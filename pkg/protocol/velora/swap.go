// Package velora wraps a single best-effort atomic swap through a Velora
// (ParaSwap) Augustus router and enforces the minimum output by measuring
// the wallet's balance of the output token around the call.
package velora

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/abiutil"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

// AugustusV6 is the Augustus v6.2 router deployment shared across chains.
var AugustusV6 = common.HexToAddress("0x6A000F20005980200259B80c5102003040001068")

// Intent is an opaque swap the agent wants executed.
type Intent struct {
	Router       common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Calldata     []byte
}

// Check validates the intent's shape before any whitelist lookup.
func (in Intent) Check() error {
	if in.AmountIn == nil || in.AmountIn.Sign() <= 0 {
		return reason.New(reason.MalformedPayload, "swap amount in must be positive")
	}
	if in.MinAmountOut == nil || in.MinAmountOut.Sign() < 0 {
		return reason.New(reason.MalformedPayload, "swap min amount out must not be negative")
	}
	if in.TokenIn == in.TokenOut {
		return reason.New(reason.MalformedPayload, "swap token in equals token out")
	}
	if len(in.Calldata) < abiutil.SelectorLen {
		return reason.Newf(reason.MalformedPayload, "swap calldata is %d bytes", len(in.Calldata))
	}
	return nil
}

// Checks lists the whitelist checks for the intent's tokens. The router and
// its binding are checked by the caller.
func (in Intent) Checks(anyAsset bool) []whitelist.Check {
	if anyAsset {
		return nil
	}
	return []whitelist.Check{
		whitelist.AddressCheck(whitelist.Asset, in.TokenIn),
		whitelist.AddressCheck(whitelist.Asset, in.TokenOut),
	}
}

// Executor is the slice of the wallet a swap needs.
type Executor interface {
	Address() common.Address
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
	Execute(ctx context.Context, target common.Address, data []byte, value *big.Int) ([]byte, error)
}

// Received returns post - pre, the amount credited by the swap.
func Received(pre, post *big.Int) *big.Int {
	return new(big.Int).Sub(post, pre)
}

// CheckSlippage passes iff post - pre >= minOut. Unrelated inflows during the
// same atomic section are counted as swap output.
func CheckSlippage(pre, post, minOut *big.Int) error {
	got := Received(pre, post)
	if got.Cmp(minOut) < 0 {
		return reason.Newf(reason.SlippageExceeded, "received %s, minimum %s", got, minOut)
	}
	return nil
}

// Swap runs the pre-balance, execute, post-balance sequence. It must run
// inside an atomic section the caller reverts on error; Swap itself never
// retries.
func Swap(ctx context.Context, w Executor, in Intent) (*big.Int, error) {
	pre, err := w.BalanceOf(ctx, in.TokenOut, w.Address())
	if err != nil {
		return nil, fmt.Errorf("pre-swap balance: %w", err)
	}
	if _, err := w.Execute(ctx, in.Router, in.Calldata, nil); err != nil {
		if _, ok := reason.CodeOf(err); ok {
			return nil, err
		}
		return nil, reason.Newf(reason.ExecutionReverted, "swap via %s: %v", in.Router.Hex(), err)
	}
	post, err := w.BalanceOf(ctx, in.TokenOut, w.Address())
	if err != nil {
		return nil, fmt.Errorf("post-swap balance: %w", err)
	}
	if err := CheckSlippage(pre, post, in.MinAmountOut); err != nil {
		return nil, err
	}
	return Received(pre, post), nil
}
