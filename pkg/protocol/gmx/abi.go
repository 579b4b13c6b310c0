package gmx

import (
	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/Mindburn-Labs/assetguard/pkg/abiutil"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
)

// exchangeRouterABI covers the ExchangeRouter entry points an agent may use.
const exchangeRouterABI = `[
  {"type":"function","name":"multicall","stateMutability":"payable",
   "inputs":[{"name":"data","type":"bytes[]"}],
   "outputs":[{"name":"results","type":"bytes[]"}]},
  {"type":"function","name":"sendWnt","stateMutability":"payable",
   "inputs":[{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"sendTokens","stateMutability":"payable",
   "inputs":[{"name":"token","type":"address"},{"name":"receiver","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"createOrder","stateMutability":"payable",
   "inputs":[{"name":"params","type":"tuple","components":[
     {"name":"addresses","type":"tuple","components":[
       {"name":"receiver","type":"address"},
       {"name":"cancellationReceiver","type":"address"},
       {"name":"callbackContract","type":"address"},
       {"name":"uiFeeReceiver","type":"address"},
       {"name":"market","type":"address"},
       {"name":"initialCollateralToken","type":"address"},
       {"name":"swapPath","type":"address[]"}]},
     {"name":"numbers","type":"tuple","components":[
       {"name":"sizeDeltaUsd","type":"uint256"},
       {"name":"initialCollateralDeltaAmount","type":"uint256"},
       {"name":"triggerPrice","type":"uint256"},
       {"name":"acceptablePrice","type":"uint256"},
       {"name":"executionFee","type":"uint256"},
       {"name":"callbackGasLimit","type":"uint256"},
       {"name":"minOutputAmount","type":"uint256"},
       {"name":"validFromTime","type":"uint256"}]},
     {"name":"orderType","type":"uint8"},
     {"name":"decreasePositionSwapType","type":"uint8"},
     {"name":"isLong","type":"bool"},
     {"name":"shouldUnwrapNativeToken","type":"bool"},
     {"name":"autoCancel","type":"bool"},
     {"name":"referralCode","type":"bytes32"}]}],
   "outputs":[{"name":"","type":"bytes32"}]}
]`

var (
	routerABI = abiutil.MustParse(exchangeRouterABI)

	methodMulticall   = routerABI.Methods["multicall"]
	methodSendWnt     = routerABI.Methods["sendWnt"]
	methodSendTokens  = routerABI.Methods["sendTokens"]
	methodCreateOrder = routerABI.Methods["createOrder"]

	// outer is the only top-level entry point admitted on the router.
	outer = map[abiutil.Selector]protocol.Kind{
		selectorOf(methodMulticall): protocol.KindGMXMulticall,
	}

	// inner is the closed set of calls allowed inside a multicall.
	inner = map[abiutil.Selector]protocol.Kind{
		selectorOf(methodSendWnt):     protocol.KindGMXSendWnt,
		selectorOf(methodSendTokens):  protocol.KindGMXSendTokens,
		selectorOf(methodCreateOrder): protocol.KindGMXCreateOrder,
	}
)

func selectorOf(m abi.Method) abiutil.Selector {
	var s abiutil.Selector
	copy(s[:], m.ID)
	return s
}

// Selectors returns the top-level selector table for ExchangeRouter targets.
func Selectors() map[abiutil.Selector]protocol.Kind {
	out := make(map[abiutil.Selector]protocol.Kind, len(outer))
	for k, v := range outer {
		out[k] = v
	}
	return out
}
