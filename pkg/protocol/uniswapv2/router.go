// Package uniswapv2 validates swaps on Uniswap-v2-style routers. Every token
// on the swap path is an asset check and the recipient is a receiver check.
package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/abiutil"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

// sigEntry describes one router function: where the path and recipient sit
// in its argument list.
type sigEntry struct {
	sig  string
	kind protocol.Kind
	args abi.Arguments
	path int
	to   int
}

var (
	exactIn  = abiutil.MustArguments("uint256", "uint256", "address[]", "address", "uint256")
	ethIn    = abiutil.MustArguments("uint256", "address[]", "address", "uint256")
	sigTable = []sigEntry{
		{"swapExactTokensForTokens(uint256,uint256,address[],address,uint256)", protocol.KindV2SwapExactTokensForTokens, exactIn, 2, 3},
		{"swapTokensForExactTokens(uint256,uint256,address[],address,uint256)", protocol.KindV2SwapTokensForExactTokens, exactIn, 2, 3},
		{"swapExactETHForTokens(uint256,address[],address,uint256)", protocol.KindV2SwapExactETHForTokens, ethIn, 1, 2},
		{"swapETHForExactTokens(uint256,address[],address,uint256)", protocol.KindV2SwapETHForExactTokens, ethIn, 1, 2},
		{"swapExactTokensForETH(uint256,uint256,address[],address,uint256)", protocol.KindV2SwapExactTokensForETH, exactIn, 2, 3},
		{"swapTokensForExactETH(uint256,uint256,address[],address,uint256)", protocol.KindV2SwapTokensForExactETH, exactIn, 2, 3},
		{"swapExactTokensForTokensSupportingFeeOnTransferTokens(uint256,uint256,address[],address,uint256)", protocol.KindV2SwapExactTokensForTokensFeeOnTransfer, exactIn, 2, 3},
		{"swapExactETHForTokensSupportingFeeOnTransferTokens(uint256,address[],address,uint256)", protocol.KindV2SwapExactETHForTokensFeeOnTransfer, ethIn, 1, 2},
		{"swapExactTokensForETHSupportingFeeOnTransferTokens(uint256,uint256,address[],address,uint256)", protocol.KindV2SwapExactTokensForETHFeeOnTransfer, exactIn, 2, 3},
	}

	selectors = make(map[abiutil.Selector]protocol.Kind, len(sigTable))
	byKind    = make(map[protocol.Kind]sigEntry, len(sigTable))
)

func init() {
	for _, e := range sigTable {
		selectors[abiutil.SelectorOf(e.sig)] = e.kind
		byKind[e.kind] = e
	}
}

// Selectors returns the selector table for v2 router targets.
func Selectors() map[abiutil.Selector]protocol.Kind {
	out := make(map[abiutil.Selector]protocol.Kind, len(selectors))
	for k, v := range selectors {
		out[k] = v
	}
	return out
}

// Swap is a decoded router swap.
type Swap struct {
	Kind     protocol.Kind
	Path     []common.Address
	To       common.Address
	Deadline *big.Int
}

// Decode strictly decodes the arguments of a swap of the given kind.
func Decode(kind protocol.Kind, args []byte) (*Swap, error) {
	e, ok := byKind[kind]
	if !ok {
		return nil, reason.Newf(reason.UnknownSelector, "%s is not a v2 router swap", kind)
	}
	v, err := abiutil.Decode(e.args, args)
	if err != nil {
		return nil, err
	}
	path := v[e.path].([]common.Address)
	if len(path) < 2 {
		return nil, reason.Newf(reason.MalformedPayload, "swap path has %d tokens", len(path))
	}
	return &Swap{
		Kind:     kind,
		Path:     path,
		To:       v[e.to].(common.Address),
		Deadline: v[len(v)-1].(*big.Int),
	}, nil
}

// Validate decodes a swap and returns its checks.
func Validate(env protocol.Env, kind protocol.Kind, args []byte) ([]whitelist.Check, error) {
	s, err := Decode(kind, args)
	if err != nil {
		return nil, err
	}
	checks := []whitelist.Check{whitelist.AddressCheck(whitelist.Receiver, s.To)}
	if env.AnyAsset {
		return checks, nil
	}
	for _, token := range s.Path {
		checks = append(checks, whitelist.AddressCheck(whitelist.Asset, token))
	}
	return checks, nil
}
