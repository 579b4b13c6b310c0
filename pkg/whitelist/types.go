package whitelist

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/reason"
)

// Dimension is a disjoint namespace of approved keys.
type Dimension string

const (
	Sender   Dimension = "sender"
	Asset    Dimension = "asset"
	Receiver Dimension = "receiver"
	Router   Dimension = "router"
	Market   Dimension = "market"
	Vault    Dimension = "vault"
	Approval Dimension = "approval"
	Action   Dimension = "action"
)

// Dimensions lists every known namespace.
var Dimensions = []Dimension{Sender, Asset, Receiver, Router, Market, Vault, Approval, Action}

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	for _, k := range Dimensions {
		if k == d {
			return true
		}
	}
	return false
}

// denial maps a failed check in this dimension to its taxonomy code.
func (d Dimension) denial() reason.Code {
	switch d {
	case Sender:
		return reason.SenderNotWhitelisted
	case Asset:
		return reason.AssetNotWhitelisted
	case Receiver:
		return reason.ReceiverNotWhitelisted
	case Router:
		return reason.RouterNotConfigured
	case Market:
		return reason.MarketNotWhitelisted
	case Vault:
		return reason.VaultNotWhitelisted
	case Approval:
		return reason.ApprovalNotWhitelisted
	case Action:
		return reason.ActionNotWhitelisted
	}
	return reason.UnknownSelector
}

// Key is a 32-byte whitelist key. Addresses are left-padded, action codes
// are stored big-endian.
type Key [32]byte

// AddressKey builds the key for an address.
func AddressKey(a common.Address) Key {
	var k Key
	copy(k[12:], a.Bytes())
	return k
}

// ActionKey builds the key for a 24-bit action code.
func ActionKey(code uint32) Key {
	var k Key
	binary.BigEndian.PutUint32(k[28:], code)
	return k
}

// Address interprets the key as an address.
func (k Key) Address() common.Address {
	return common.BytesToAddress(k[12:])
}

// Hex returns the full 32-byte hex form, used for storage.
func (k Key) Hex() string {
	return "0x" + hex.EncodeToString(k[:])
}

// Format renders the key the way operators write it for dimension d.
func (k Key) Format(d Dimension) string {
	if d == Action {
		return new(big.Int).SetBytes(k[:]).String()
	}
	return k.Address().Hex()
}

// ParseKey parses an operator-supplied key for dimension d: a decimal or
// 0x-prefixed integer for action codes, a hex address otherwise. A 32-byte
// hex string (storage form) is accepted for every dimension.
func ParseKey(d Dimension, s string) (Key, error) {
	s = strings.TrimSpace(s)
	if raw, ok := strings.CutPrefix(s, "0x"); ok && len(raw) == 64 {
		b, err := hex.DecodeString(raw)
		if err != nil {
			return Key{}, fmt.Errorf("parse %s key %q: %w", d, s, err)
		}
		var k Key
		copy(k[:], b)
		return k, nil
	}
	if d == Action {
		n, ok := new(big.Int).SetString(s, 0)
		if !ok || n.Sign() < 0 || n.BitLen() > 24 {
			return Key{}, fmt.Errorf("parse action code %q: want a 24-bit unsigned integer", s)
		}
		return ActionKey(uint32(n.Uint64())), nil
	}
	if !common.IsHexAddress(s) {
		return Key{}, fmt.Errorf("parse %s key %q: not a hex address", d, s)
	}
	return AddressKey(common.HexToAddress(s)), nil
}

// Entry is one persisted whitelist record.
type Entry struct {
	Dimension Dimension `json:"dimension"`
	Key       Key       `json:"-"`
	Approved  bool      `json:"approved"`
	Note      string    `json:"note"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Binding associates a router with the escrow or vault address its calls
// must settle through.
type Binding struct {
	Router    common.Address `json:"router"`
	Escrow    common.Address `json:"escrow"`
	Note      string         `json:"note"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Check is one (dimension, key) pair a validator needs verified.
type Check struct {
	Dimension Dimension
	Key       Key
}

// AddressCheck is shorthand for an address-keyed check.
func AddressCheck(d Dimension, a common.Address) Check {
	return Check{Dimension: d, Key: AddressKey(a)}
}

func (c Check) String() string {
	return fmt.Sprintf("%s:%s", c.Dimension, c.Key.Format(c.Dimension))
}
