// Package abiutil decodes attacker-supplied calldata strictly: anything that
// does not round-trip to the canonical ABI encoding is malformed.
package abiutil

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Mindburn-Labs/assetguard/pkg/reason"
)

// SelectorLen is the size of a function selector.
const SelectorLen = 4

// Selector is a 4-byte function selector.
type Selector [SelectorLen]byte

// SelectorOf hashes a canonical signature such as "transfer(address,uint256)".
func SelectorOf(sig string) Selector {
	var s Selector
	copy(s[:], crypto.Keccak256([]byte(sig))[:SelectorLen])
	return s
}

func (s Selector) Hex() string { return "0x" + hex.EncodeToString(s[:]) }

// Split separates the selector from the argument bytes.
func Split(data []byte) (Selector, []byte, error) {
	var s Selector
	if len(data) < SelectorLen {
		return s, nil, reason.Newf(reason.MalformedPayload, "calldata is %d bytes, need at least %d", len(data), SelectorLen)
	}
	copy(s[:], data[:SelectorLen])
	return s, data[SelectorLen:], nil
}

// MustParse parses a JSON ABI at init time.
func MustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("abiutil: bad abi definition: %v", err))
	}
	return parsed
}

// MustArguments builds an argument list from "type" strings such as
// "address", "bool", "uint64".
func MustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("abiutil: bad type %q: %v", t, err))
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// Decode unpacks data against args and requires the input to be exactly the
// canonical encoding of the decoded values. Trailing bytes, dirty padding and
// non-standard offsets are all rejected.
func Decode(args abi.Arguments, data []byte) ([]any, error) {
	values, err := args.Unpack(data)
	if err != nil {
		return nil, reason.Newf(reason.MalformedPayload, "abi decode: %v", err)
	}
	canonical, err := args.Pack(values...)
	if err != nil {
		return nil, reason.Newf(reason.MalformedPayload, "abi re-encode: %v", err)
	}
	if !bytes.Equal(canonical, data) {
		return nil, reason.New(reason.MalformedPayload, "non-canonical abi encoding")
	}
	return values, nil
}

// DecodeMethod decodes the arguments of m from argument bytes (selector
// already stripped).
func DecodeMethod(m abi.Method, data []byte) ([]any, error) {
	values, err := Decode(m.Inputs, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name, err)
	}
	return values, nil
}
