// Package cowswap builds CoW Protocol (GPv2) orders that the custodial
// wallet authorizes on-chain by pre-signature. Building an order performs no
// authorization; callers admit the sender, tokens, receiver and settlement
// router first.
package cowswap

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Mindburn-Labs/assetguard/pkg/abiutil"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

// ValidityWindow is how long every built order stays fillable.
const ValidityWindow = 20 * time.Minute

// UIDLen is hash (32) + owner (20) + validTo (4).
const UIDLen = 56

// Side is the GPv2 order kind.
type Side string

const (
	SideSell Side = "sell"
	SideBuy  Side = "buy"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideSell || s == SideBuy }

// BalanceERC20 is the only token balance source orders are built with.
const BalanceERC20 = "erc20"

var (
	orderTypeHash = crypto.Keccak256Hash([]byte(
		"Order(address sellToken,address buyToken,address receiver,uint256 sellAmount,uint256 buyAmount," +
			"uint32 validTo,bytes32 appData,uint256 feeAmount,string kind,bool partiallyFillable," +
			"string sellTokenBalance,string buyTokenBalance)"))

	orderStructArgs = abiutil.MustArguments(
		"bytes32", "address", "address", "address", "uint256", "uint256",
		"uint32", "bytes32", "uint256", "bytes32", "bool", "bytes32", "bytes32")
)

// Order is a GPv2 order.
type Order struct {
	SellToken         common.Address `json:"sellToken"`
	BuyToken          common.Address `json:"buyToken"`
	Receiver          common.Address `json:"receiver"`
	SellAmount        *big.Int       `json:"sellAmount"`
	BuyAmount         *big.Int       `json:"buyAmount"`
	ValidTo           uint32         `json:"validTo"`
	AppData           common.Hash    `json:"appData"`
	FeeAmount         *big.Int       `json:"feeAmount"`
	Kind              Side           `json:"kind"`
	PartiallyFillable bool           `json:"partiallyFillable"`
	SellTokenBalance  string         `json:"sellTokenBalance"`
	BuyTokenBalance   string         `json:"buyTokenBalance"`
}

// StructHash is the EIP-712 hashStruct of the order.
func (o Order) StructHash() (common.Hash, error) {
	fee := o.FeeAmount
	if fee == nil {
		fee = new(big.Int)
	}
	enc, err := orderStructArgs.Pack(
		[32]byte(orderTypeHash),
		o.SellToken, o.BuyToken, o.Receiver,
		o.SellAmount, o.BuyAmount,
		o.ValidTo,
		[32]byte(o.AppData),
		fee,
		[32]byte(crypto.Keccak256Hash([]byte(o.Kind))),
		o.PartiallyFillable,
		[32]byte(crypto.Keccak256Hash([]byte(o.SellTokenBalance))),
		[32]byte(crypto.Keccak256Hash([]byte(o.BuyTokenBalance))),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode order: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

// Hash is the EIP-712 digest of the order under domain.
func (o Order) Hash(domain common.Hash) (common.Hash, error) {
	sh, err := o.StructHash()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain[:], sh[:]), nil
}

// PackUID packs hash, owner and validTo into the 56-byte order UID.
func PackUID(hash common.Hash, owner common.Address, validTo uint32) []byte {
	uid := make([]byte, 0, UIDLen)
	uid = append(uid, hash[:]...)
	uid = append(uid, owner[:]...)
	return binary.BigEndian.AppendUint32(uid, validTo)
}

// UnpackUID splits a UID. It fails on any length other than UIDLen.
func UnpackUID(uid []byte) (common.Hash, common.Address, uint32, error) {
	if len(uid) != UIDLen {
		return common.Hash{}, common.Address{}, 0, fmt.Errorf("order uid is %d bytes, want %d", len(uid), UIDLen)
	}
	return common.BytesToHash(uid[:32]), common.BytesToAddress(uid[32:52]), binary.BigEndian.Uint32(uid[52:]), nil
}

// DomainSeparatorSource reads a settlement contract's EIP-712 domain
// separator.
type DomainSeparatorSource interface {
	DomainSeparator(ctx context.Context, settlement common.Address) (common.Hash, error)
}

// Params is an order request.
type Params struct {
	Settlement   common.Address
	Owner        common.Address
	Receiver     common.Address
	AppData      common.Hash
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Side         Side
}

// Check validates the request's shape: a known side, a positive sell amount,
// a non-negative minimum and two distinct tokens.
func (p Params) Check() error {
	if !p.Side.Valid() {
		return reason.Newf(reason.MalformedPayload, "order side %q", p.Side)
	}
	if p.AmountIn == nil || p.AmountIn.Sign() <= 0 {
		return reason.New(reason.MalformedPayload, "amount in must be positive")
	}
	if p.MinAmountOut == nil || p.MinAmountOut.Sign() < 0 {
		return reason.New(reason.MalformedPayload, "min amount out must not be negative")
	}
	if p.TokenIn == p.TokenOut {
		return reason.New(reason.MalformedPayload, "order token in equals token out")
	}
	return nil
}

// Checks lists the whitelist checks an order request needs before it may be
// built. The settlement router is checked by the caller together with its
// binding.
func (p Params) Checks(anyAsset bool) []whitelist.Check {
	checks := []whitelist.Check{whitelist.AddressCheck(whitelist.Receiver, p.Receiver)}
	if !anyAsset {
		checks = append(checks,
			whitelist.AddressCheck(whitelist.Asset, p.TokenIn),
			whitelist.AddressCheck(whitelist.Asset, p.TokenOut))
	}
	return checks
}

// SignedOrder is a built order plus what the wallet must execute to
// pre-sign it.
type SignedOrder struct {
	Order    Order
	Hash     common.Hash
	UID      []byte
	Target   common.Address
	Calldata []byte
}

// Builder builds orders against a domain separator source.
type Builder struct {
	domains DomainSeparatorSource
	now     func() time.Time
}

// NewBuilder returns a Builder reading domain separators from src.
func NewBuilder(src DomainSeparatorSource) *Builder {
	return &Builder{domains: src, now: time.Now}
}

// SetClock overrides the clock (for testing).
func (b *Builder) SetClock(now func() time.Time) { b.now = now }

// Build constructs the order, its UID and the pre-signature calldata. The
// validity window is fixed; callers cannot choose it.
func (b *Builder) Build(ctx context.Context, p Params) (*SignedOrder, error) {
	if err := p.Check(); err != nil {
		return nil, err
	}

	domain, err := b.domains.DomainSeparator(ctx, p.Settlement)
	if err != nil {
		return nil, fmt.Errorf("read domain separator of %s: %w", p.Settlement.Hex(), err)
	}

	order := Order{
		SellToken:        p.TokenIn,
		BuyToken:         p.TokenOut,
		Receiver:         p.Receiver,
		SellAmount:       new(big.Int).Set(p.AmountIn),
		BuyAmount:        new(big.Int).Set(p.MinAmountOut),
		ValidTo:          uint32(b.now().Add(ValidityWindow).Unix()),
		AppData:          p.AppData,
		FeeAmount:        new(big.Int),
		Kind:             p.Side,
		SellTokenBalance: BalanceERC20,
		BuyTokenBalance:  BalanceERC20,
	}
	hash, err := order.Hash(domain)
	if err != nil {
		return nil, err
	}
	uid := PackUID(hash, p.Owner, order.ValidTo)
	calldata, err := PackSetPreSignature(uid, true)
	if err != nil {
		return nil, err
	}
	return &SignedOrder{Order: order, Hash: hash, UID: uid, Target: p.Settlement, Calldata: calldata}, nil
}
