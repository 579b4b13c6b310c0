// Package hypercore decodes HyperCore actions submitted through the
// CoreWriter system contract. An action is a 4-byte header (version, then a
// big-endian 24-bit action code) followed by ABI-encoded parameters.
package hypercore

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/abiutil"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

const (
	// Version is the only supported action encoding version.
	Version = 1
	// HeaderLen is version (1) plus action code (3).
	HeaderLen = 4
)

// Action codes with a parameter layout this package understands.
const (
	ActionLimitOrder       uint32 = 1
	ActionVaultTransfer    uint32 = 2
	ActionTokenDelegate    uint32 = 3
	ActionStakingDeposit   uint32 = 4
	ActionStakingWithdraw  uint32 = 5
	ActionSpotSend         uint32 = 6
	ActionUSDClassTransfer uint32 = 7
)

// VaultTransfer moves USD between the wallet and a HyperCore vault.
type VaultTransfer struct {
	Vault     common.Address
	IsDeposit bool
	USD       uint64
}

// SpotSend moves a spot token to another HyperCore account.
type SpotSend struct {
	Destination common.Address
	Token       uint64
	Wei         uint64
}

// Action is a decoded, admitted action.
type Action struct {
	Version uint8
	Code    uint32
	Params  []byte

	VaultTransfer *VaultTransfer
	SpotSend      *SpotSend
}

// Destination returns the account that receives funds, when the action moves
// funds to a caller-chosen account. Callers check it against the receiver
// whitelist; the decoder does not own that set.
func (a *Action) Destination() (common.Address, bool) {
	if a.SpotSend != nil {
		return a.SpotSend.Destination, true
	}
	return common.Address{}, false
}

type paramDecoder func(a *Action, env protocol.Env) error

var (
	vaultTransferArgs = abiutil.MustArguments("address", "bool", "uint64")
	spotSendArgs      = abiutil.MustArguments("address", "uint64", "uint64")

	// params lists codes whose parameters are structurally checked. Any other
	// whitelisted code is admitted on the code alone.
	params = map[uint32]paramDecoder{
		ActionVaultTransfer: decodeVaultTransfer,
		ActionSpotSend:      decodeSpotSend,
	}
)

// ParseHeader splits payload into version, action code and parameter bytes.
func ParseHeader(payload []byte) (uint8, uint32, []byte, error) {
	if len(payload) < HeaderLen {
		return 0, 0, nil, reason.Newf(reason.MalformedPayload, "action is %d bytes, header needs %d", len(payload), HeaderLen)
	}
	version := payload[0]
	var word [4]byte
	copy(word[1:], payload[1:HeaderLen])
	return version, binary.BigEndian.Uint32(word[:]), payload[HeaderLen:], nil
}

// Decode admits a raw action: the version must be supported, the action code
// whitelisted, and the parameters of known codes well formed and whitelisted.
func Decode(payload []byte, env protocol.Env) (*Action, error) {
	version, code, rest, err := ParseHeader(payload)
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, reason.Newf(reason.UnsupportedVersion, "action version %d", version)
	}
	if !env.Allowed(whitelist.Action, whitelist.ActionKey(code)) {
		return nil, reason.Newf(reason.ActionNotWhitelisted, "action code %d", code)
	}

	a := &Action{Version: version, Code: code, Params: rest}
	if decode, ok := params[code]; ok {
		if err := decode(a, env); err != nil {
			return nil, fmt.Errorf("action %d: %w", code, err)
		}
	}
	return a, nil
}

func decodeVaultTransfer(a *Action, env protocol.Env) error {
	v, err := abiutil.Decode(vaultTransferArgs, a.Params)
	if err != nil {
		return err
	}
	vt := &VaultTransfer{
		Vault:     v[0].(common.Address),
		IsDeposit: v[1].(bool),
		USD:       v[2].(uint64),
	}
	if !env.Allowed(whitelist.Vault, whitelist.AddressKey(vt.Vault)) {
		return reason.New(reason.VaultNotWhitelisted, vt.Vault.Hex())
	}
	a.VaultTransfer = vt
	return nil
}

func decodeSpotSend(a *Action, _ protocol.Env) error {
	v, err := abiutil.Decode(spotSendArgs, a.Params)
	if err != nil {
		return err
	}
	a.SpotSend = &SpotSend{
		Destination: v[0].(common.Address),
		Token:       v[1].(uint64),
		Wei:         v[2].(uint64),
	}
	return nil
}

// Encode builds a raw action payload. Used by tooling and tests.
func Encode(code uint32, args ...any) ([]byte, error) {
	if code >= 1<<24 {
		return nil, fmt.Errorf("action code %d does not fit 24 bits", code)
	}
	out := []byte{Version, byte(code >> 16), byte(code >> 8), byte(code)}
	if len(args) == 0 {
		return out, nil
	}
	switch code {
	case ActionVaultTransfer:
		p, err := vaultTransferArgs.Pack(args...)
		if err != nil {
			return nil, err
		}
		return append(out, p...), nil
	case ActionSpotSend:
		p, err := spotSendArgs.Pack(args...)
		if err != nil {
			return nil, err
		}
		return append(out, p...), nil
	}
	return nil, fmt.Errorf("no parameter layout for action %d", code)
}
