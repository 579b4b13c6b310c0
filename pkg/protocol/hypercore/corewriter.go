package hypercore

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/abiutil"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

// CoreWriter is the HyperEVM system contract that forwards raw actions to
// HyperCore.
var CoreWriter = common.HexToAddress("0x3333333333333333333333333333333333333333")

var (
	coreWriterABI = abiutil.MustParse(`[
	  {"type":"function","name":"sendRawAction","stateMutability":"nonpayable",
	   "inputs":[{"name":"data","type":"bytes"}],"outputs":[]}
	]`)
	methodSendRawAction = coreWriterABI.Methods["sendRawAction"]
	sendRawAction       = abiutil.SelectorOf(methodSendRawAction.Sig)
)

// Selectors returns the selector table for the CoreWriter target.
func Selectors() map[abiutil.Selector]protocol.Kind {
	return map[abiutil.Selector]protocol.Kind{sendRawAction: protocol.KindCoreWriterAction}
}

// Validate admits a sendRawAction call. The action's destination, if any,
// is returned as a receiver check.
func Validate(env protocol.Env, kind protocol.Kind, args []byte) ([]whitelist.Check, error) {
	if kind != protocol.KindCoreWriterAction {
		return nil, reason.Newf(reason.UnknownSelector, "%s is not a CoreWriter call", kind)
	}
	v, err := abiutil.DecodeMethod(methodSendRawAction, args)
	if err != nil {
		return nil, err
	}
	action, err := Decode(v[0].([]byte), env)
	if err != nil {
		return nil, err
	}
	var checks []whitelist.Check
	if dst, ok := action.Destination(); ok {
		checks = append(checks, whitelist.AddressCheck(whitelist.Receiver, dst))
	}
	return checks, nil
}

// PackSendRawAction builds CoreWriter calldata for a raw action.
func PackSendRawAction(action []byte) ([]byte, error) {
	return coreWriterABI.Pack("sendRawAction", action)
}
