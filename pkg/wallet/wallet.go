// Package wallet defines the custodial wallet's execution primitive and an
// in-memory journaled implementation used for dry runs and tests.
package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Wallet is the execution primitive the gateway forwards admitted calls to.
type Wallet interface {
	Address() common.Address
	// Execute performs one call from the wallet. A revert is returned as a
	// *RevertError.
	Execute(ctx context.Context, target common.Address, data []byte, value *big.Int) ([]byte, error)
	// BalanceOf reads holder's balance of an ERC-20 token.
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
	// Atomic runs fn so that either all of its effects persist or none do.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

// RevertError reports a failed call.
type RevertError struct {
	Target common.Address
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("call to %s reverted: %s", e.Target.Hex(), e.Reason)
}

// Revert builds a RevertError.
func Revert(target common.Address, format string, args ...any) *RevertError {
	return &RevertError{Target: target, Reason: fmt.Sprintf(format, args...)}
}
