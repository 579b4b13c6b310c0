// Package chain reads contract state over JSON-RPC: settlement domain
// separators and ERC-20 balances.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/Mindburn-Labs/assetguard/pkg/protocol/cowswap"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/erc20"
)

// Reader performs read-only contract calls at the latest block.
type Reader struct {
	caller ethereum.ContractCaller

	mu      sync.RWMutex
	domains map[common.Address]common.Hash
}

// NewReader wraps any contract caller, typically an *ethclient.Client.
func NewReader(caller ethereum.ContractCaller) *Reader {
	return &Reader{caller: caller, domains: make(map[common.Address]common.Hash)}
}

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, url string) (*Reader, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc %s: %w", url, err)
	}
	return NewReader(client), client, nil
}

func (r *Reader) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return r.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// DomainSeparator implements cowswap.DomainSeparatorSource. Separators are
// immutable per deployment and cached after the first read.
func (r *Reader) DomainSeparator(ctx context.Context, settlement common.Address) (common.Hash, error) {
	r.mu.RLock()
	d, ok := r.domains[settlement]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}

	settlementABI := cowswap.SettlementABI()
	data, err := settlementABI.Pack("domainSeparator")
	if err != nil {
		return common.Hash{}, err
	}
	out, err := r.call(ctx, settlement, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("domainSeparator(): %w", err)
	}
	values, err := settlementABI.Unpack("domainSeparator", out)
	if err != nil {
		return common.Hash{}, fmt.Errorf("decode domainSeparator(): %w", err)
	}
	d = common.Hash(values[0].([32]byte))

	r.mu.Lock()
	r.domains[settlement] = d
	r.mu.Unlock()
	return d, nil
}

// BalanceOf reads holder's balance of token.
func (r *Reader) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	data, err := erc20.PackBalanceOf(holder)
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s) on %s: %w", holder.Hex(), token.Hex(), err)
	}
	if len(out) == 0 {
		return new(big.Int), nil
	}
	return erc20.UnpackBalance(out)
}
