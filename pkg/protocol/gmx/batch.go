// Package gmx validates leveraged-order batches sent to a GMX v2
// ExchangeRouter: one multicall carrying fund transfers into the order vault
// and order creations. Every inner call is decoded structurally and every
// address it names becomes a whitelist check; the batch is admitted whole or
// not at all.
package gmx

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/abiutil"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

// OrderAddresses mirrors CreateOrderParamsAddresses.
type OrderAddresses struct {
	Receiver               common.Address
	CancellationReceiver   common.Address
	CallbackContract       common.Address
	UiFeeReceiver          common.Address
	Market                 common.Address
	InitialCollateralToken common.Address
	SwapPath               []common.Address
}

// OrderNumbers mirrors CreateOrderParamsNumbers.
type OrderNumbers struct {
	SizeDeltaUsd                 *big.Int
	InitialCollateralDeltaAmount *big.Int
	TriggerPrice                 *big.Int
	AcceptablePrice              *big.Int
	ExecutionFee                 *big.Int
	CallbackGasLimit             *big.Int
	MinOutputAmount              *big.Int
	ValidFromTime                *big.Int
}

// CreateOrderParams mirrors the ExchangeRouter createOrder argument.
type CreateOrderParams struct {
	Addresses                OrderAddresses
	Numbers                  OrderNumbers
	OrderType                uint8
	DecreasePositionSwapType uint8
	IsLong                   bool
	ShouldUnwrapNativeToken  bool
	AutoCancel               bool
	ReferralCode             [32]byte
}

// Transfer is a decoded sendWnt or sendTokens entry. Token is zero for the
// native (wrapped) token.
type Transfer struct {
	Token    common.Address
	Receiver common.Address
	Amount   *big.Int
}

// Entry is one decoded inner call.
type Entry struct {
	Kind     protocol.Kind
	Transfer *Transfer
	Order    *CreateOrderParams
}

// Batch is a fully decoded multicall.
type Batch struct {
	Entries []Entry
}

// DecodeBatch decodes the argument bytes of multicall(bytes[]). Any entry
// shorter than a selector, with an unrecognized selector, or with
// non-canonical arguments fails the whole batch.
func DecodeBatch(args []byte) (*Batch, error) {
	values, err := abiutil.DecodeMethod(methodMulticall, args)
	if err != nil {
		return nil, err
	}
	raw, ok := values[0].([][]byte)
	if !ok {
		return nil, reason.New(reason.MalformedPayload, "multicall: unexpected argument type")
	}
	if len(raw) == 0 {
		return nil, reason.New(reason.MalformedPayload, "multicall: empty batch")
	}

	batch := &Batch{Entries: make([]Entry, 0, len(raw))}
	for i, call := range raw {
		entry, err := decodeEntry(call)
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
		batch.Entries = append(batch.Entries, entry)
	}
	return batch, nil
}

func decodeEntry(call []byte) (Entry, error) {
	sel, args, err := abiutil.Split(call)
	if err != nil {
		return Entry{}, err
	}
	kind, ok := inner[sel]
	if !ok {
		return Entry{}, reason.Newf(reason.UnknownSelector, "selector %s not allowed in a batch", sel.Hex())
	}

	switch kind {
	case protocol.KindGMXSendWnt:
		v, err := abiutil.DecodeMethod(methodSendWnt, args)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Kind: kind, Transfer: &Transfer{
			Receiver: v[0].(common.Address),
			Amount:   v[1].(*big.Int),
		}}, nil

	case protocol.KindGMXSendTokens:
		v, err := abiutil.DecodeMethod(methodSendTokens, args)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Kind: kind, Transfer: &Transfer{
			Token:    v[0].(common.Address),
			Receiver: v[1].(common.Address),
			Amount:   v[2].(*big.Int),
		}}, nil

	case protocol.KindGMXCreateOrder:
		v, err := abiutil.DecodeMethod(methodCreateOrder, args)
		if err != nil {
			return Entry{}, err
		}
		params := *abi.ConvertType(v[0], new(CreateOrderParams)).(*CreateOrderParams)
		return Entry{Kind: kind, Order: &params}, nil
	}

	return Entry{}, reason.Newf(reason.UnknownSelector, "selector %s not allowed in a batch", sel.Hex())
}

// Checks walks the batch in order. Transfers must land in env.Escrow
// exactly; every other address is accumulated for a single registry pass.
func (b *Batch) Checks(env protocol.Env) ([]whitelist.Check, error) {
	if env.Escrow == (common.Address{}) {
		return nil, reason.Newf(reason.RouterNotConfigured, "router %s has no escrow binding", env.Target.Hex())
	}

	var checks []whitelist.Check
	for i, e := range b.Entries {
		switch e.Kind {
		case protocol.KindGMXSendWnt, protocol.KindGMXSendTokens:
			if e.Transfer.Receiver != env.Escrow {
				return nil, reason.Newf(reason.EscrowMismatch, "batch entry %d sends to %s, escrow is %s",
					i, e.Transfer.Receiver.Hex(), env.Escrow.Hex())
			}
			if e.Kind == protocol.KindGMXSendTokens && !env.AnyAsset {
				checks = append(checks, whitelist.AddressCheck(whitelist.Asset, e.Transfer.Token))
			}

		case protocol.KindGMXCreateOrder:
			checks = append(checks, orderChecks(e.Order, env.AnyAsset)...)

		default:
			return nil, reason.Newf(reason.UnknownSelector, "batch entry %d: unrecognized kind", i)
		}
	}
	return checks, nil
}

func orderChecks(p *CreateOrderParams, anyAsset bool) []whitelist.Check {
	a := p.Addresses
	checks := []whitelist.Check{whitelist.AddressCheck(whitelist.Receiver, a.Receiver)}

	// Optional recipients are unset when zero; when set they can receive
	// value (refunds, UI fees, callbacks) and are held to the receiver set.
	for _, optional := range []common.Address{a.CancellationReceiver, a.UiFeeReceiver, a.CallbackContract} {
		if optional != (common.Address{}) {
			checks = append(checks, whitelist.AddressCheck(whitelist.Receiver, optional))
		}
	}

	if anyAsset {
		return checks
	}
	if a.Market != (common.Address{}) {
		checks = append(checks, whitelist.AddressCheck(whitelist.Market, a.Market))
	}
	for _, hop := range a.SwapPath {
		checks = append(checks, whitelist.AddressCheck(whitelist.Market, hop))
	}
	return append(checks, whitelist.AddressCheck(whitelist.Asset, a.InitialCollateralToken))
}

// Validate decodes a top-level router call and returns the checks it needs.
func Validate(env protocol.Env, kind protocol.Kind, args []byte) ([]whitelist.Check, error) {
	if kind != protocol.KindGMXMulticall {
		return nil, reason.Newf(reason.UnknownSelector, "%s is not a top-level router call", kind)
	}
	batch, err := DecodeBatch(args)
	if err != nil {
		return nil, err
	}
	return batch.Checks(env)
}
