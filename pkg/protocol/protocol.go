// Package protocol holds the vocabulary shared by the per-protocol
// validators: the closed set of recognized call kinds and the explicit
// context each validator runs against.
package protocol

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

// Family groups the targets a validator understands.
type Family string

const (
	FamilyERC20     Family = "erc20"
	FamilyUniswapV2 Family = "uniswapv2"
	FamilyGMX       Family = "gmx"
	FamilyHyperCore Family = "hypercore"
	FamilyCowSwap   Family = "cowswap"
	FamilyVelora    Family = "velora"
)

// Valid reports whether f names a known family.
func (f Family) Valid() bool {
	switch f {
	case FamilyERC20, FamilyUniswapV2, FamilyGMX, FamilyHyperCore, FamilyCowSwap, FamilyVelora:
		return true
	}
	return false
}

// Routed reports whether targets of this family are routers that need a
// whitelisted, bound router entry before any call is admitted.
func (f Family) Routed() bool {
	return f != FamilyERC20 && f != FamilyHyperCore
}

// Kind is a recognized call. Anything else is KindUnknown and denied.
type Kind int

const (
	KindUnknown Kind = iota

	KindERC20Approve
	KindERC20Transfer

	KindV2SwapExactTokensForTokens
	KindV2SwapTokensForExactTokens
	KindV2SwapExactETHForTokens
	KindV2SwapETHForExactTokens
	KindV2SwapExactTokensForETH
	KindV2SwapTokensForExactETH
	KindV2SwapExactTokensForTokensFeeOnTransfer
	KindV2SwapExactETHForTokensFeeOnTransfer
	KindV2SwapExactTokensForETHFeeOnTransfer

	KindGMXMulticall
	KindGMXSendWnt
	KindGMXSendTokens
	KindGMXCreateOrder

	KindCoreWriterAction
)

var kindNames = map[Kind]string{
	KindUnknown:                                 "unknown",
	KindERC20Approve:                            "erc20.approve",
	KindERC20Transfer:                           "erc20.transfer",
	KindV2SwapExactTokensForTokens:              "uniswapv2.swapExactTokensForTokens",
	KindV2SwapTokensForExactTokens:              "uniswapv2.swapTokensForExactTokens",
	KindV2SwapExactETHForTokens:                 "uniswapv2.swapExactETHForTokens",
	KindV2SwapETHForExactTokens:                 "uniswapv2.swapETHForExactTokens",
	KindV2SwapExactTokensForETH:                 "uniswapv2.swapExactTokensForETH",
	KindV2SwapTokensForExactETH:                 "uniswapv2.swapTokensForExactETH",
	KindV2SwapExactTokensForTokensFeeOnTransfer: "uniswapv2.swapExactTokensForTokensSupportingFeeOnTransferTokens",
	KindV2SwapExactETHForTokensFeeOnTransfer:    "uniswapv2.swapExactETHForTokensSupportingFeeOnTransferTokens",
	KindV2SwapExactTokensForETHFeeOnTransfer:    "uniswapv2.swapExactTokensForETHSupportingFeeOnTransferTokens",
	KindGMXMulticall:                            "gmx.multicall",
	KindGMXSendWnt:                              "gmx.sendWnt",
	KindGMXSendTokens:                           "gmx.sendTokens",
	KindGMXCreateOrder:                          "gmx.createOrder",
	KindCoreWriterAction:                        "hypercore.sendRawAction",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Call is one outgoing call the agent asks the wallet to make.
type Call struct {
	Sender common.Address
	Target common.Address
	Data   []byte
	Value  *big.Int
}

// Allowlist is the read side of the whitelist registry.
type Allowlist interface {
	IsAllowed(d whitelist.Dimension, k whitelist.Key) bool
}

// Env is the explicit context a validator reads. It is built by the
// dispatcher from registry state and target configuration; validators only
// read shared state through it.
type Env struct {
	// Sender is the agent that requested the call.
	Sender common.Address
	// Target is the contract being called.
	Target common.Address
	// Escrow is the router's bound escrow or vault, zero for unrouted targets.
	Escrow common.Address
	// AnyAsset suppresses asset and market checks only.
	AnyAsset bool
	// Registry is a read-only registry handle for validators that must gate
	// on a whitelist before decoding further. Nil denies everything.
	Registry Allowlist
}

// Allowed reports whether the registry admits (d, k).
func (e Env) Allowed(d whitelist.Dimension, k whitelist.Key) bool {
	return e.Registry != nil && e.Registry.IsAllowed(d, k)
}
