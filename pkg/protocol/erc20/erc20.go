// Package erc20 validates direct token calls: approvals may only name
// whitelisted spenders and transfers may only pay whitelisted receivers.
package erc20

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/abiutil"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

var (
	tokenABI = abiutil.MustParse(`[
	  {"type":"function","name":"approve","stateMutability":"nonpayable",
	   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	   "outputs":[{"name":"","type":"bool"}]},
	  {"type":"function","name":"transfer","stateMutability":"nonpayable",
	   "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	   "outputs":[{"name":"","type":"bool"}]},
	  {"type":"function","name":"balanceOf","stateMutability":"view",
	   "inputs":[{"name":"owner","type":"address"}],
	   "outputs":[{"name":"","type":"uint256"}]}
	]`)

	methodApprove   = tokenABI.Methods["approve"]
	methodTransfer  = tokenABI.Methods["transfer"]
	methodBalanceOf = tokenABI.Methods["balanceOf"]
)

// Selectors returns the selector table for token targets.
func Selectors() map[abiutil.Selector]protocol.Kind {
	return map[abiutil.Selector]protocol.Kind{
		abiutil.SelectorOf(methodApprove.Sig):  protocol.KindERC20Approve,
		abiutil.SelectorOf(methodTransfer.Sig): protocol.KindERC20Transfer,
	}
}

// Validate returns the checks for an approve or transfer on env.Target. The
// token itself is always an asset check: AnyAsset never widens which tokens
// the wallet may hand out.
func Validate(env protocol.Env, kind protocol.Kind, args []byte) ([]whitelist.Check, error) {
	token := whitelist.AddressCheck(whitelist.Asset, env.Target)
	switch kind {
	case protocol.KindERC20Approve:
		v, err := abiutil.DecodeMethod(methodApprove, args)
		if err != nil {
			return nil, err
		}
		return []whitelist.Check{token, whitelist.AddressCheck(whitelist.Approval, v[0].(common.Address))}, nil

	case protocol.KindERC20Transfer:
		v, err := abiutil.DecodeMethod(methodTransfer, args)
		if err != nil {
			return nil, err
		}
		return []whitelist.Check{token, whitelist.AddressCheck(whitelist.Receiver, v[0].(common.Address))}, nil
	}
	return nil, reason.Newf(reason.UnknownSelector, "%s is not a token call", kind)
}

// PackApprove builds approve(spender, amount) calldata.
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return tokenABI.Pack("approve", spender, amount)
}

// PackTransfer builds transfer(to, amount) calldata.
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return tokenABI.Pack("transfer", to, amount)
}

// PackBalanceOf builds balanceOf(owner) calldata.
func PackBalanceOf(owner common.Address) ([]byte, error) {
	return tokenABI.Pack("balanceOf", owner)
}

// UnpackBalance decodes a balanceOf return value.
func UnpackBalance(ret []byte) (*big.Int, error) {
	v, err := methodBalanceOf.Outputs.Unpack(ret)
	if err != nil {
		return nil, err
	}
	return v[0].(*big.Int), nil
}
