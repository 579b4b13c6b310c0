package api

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/Mindburn-Labs/assetguard/pkg/protocol/cowswap"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

// Wire types shared by the server and the Go client. Amounts accept decimal
// or 0x-prefixed hex strings.

// CallRequest is the body of POST /v1/calls.
type CallRequest struct {
	Target common.Address        `json:"target"`
	Data   hexutil.Bytes         `json:"data"`
	Value  *math.HexOrDecimal256 `json:"value,omitempty"`
}

// CallResponse reports an executed call.
type CallResponse struct {
	DecisionID string         `json:"decision_id"`
	Kind       string         `json:"kind"`
	Target     common.Address `json:"target"`
	ReturnData hexutil.Bytes  `json:"return_data"`
}

// OrderRequest is the body of POST /v1/orders. Side defaults to sell.
type OrderRequest struct {
	Settlement   common.Address        `json:"settlement"`
	Receiver     common.Address        `json:"receiver"`
	AppData      common.Hash           `json:"app_data"`
	TokenIn      common.Address        `json:"token_in"`
	TokenOut     common.Address        `json:"token_out"`
	AmountIn     *math.HexOrDecimal256 `json:"amount_in"`
	MinAmountOut *math.HexOrDecimal256 `json:"min_amount_out"`
	Side         cowswap.Side          `json:"side,omitempty"`
}

// OrderResponse carries the presigned order.
type OrderResponse struct {
	UID        hexutil.Bytes  `json:"uid"`
	Hash       common.Hash    `json:"hash"`
	Order      cowswap.Order  `json:"order"`
	Settlement common.Address `json:"settlement"`
	Calldata   hexutil.Bytes  `json:"calldata"`
}

// SwapRequest is the body of POST /v1/swaps.
type SwapRequest struct {
	Router       common.Address        `json:"router"`
	TokenIn      common.Address        `json:"token_in"`
	TokenOut     common.Address        `json:"token_out"`
	AmountIn     *math.HexOrDecimal256 `json:"amount_in"`
	MinAmountOut *math.HexOrDecimal256 `json:"min_amount_out"`
	Calldata     hexutil.Bytes         `json:"calldata"`
}

// SwapResponse reports the amount received, in base units.
type SwapResponse struct {
	Received string `json:"received"`
}

// WhitelistRequest is the body of PUT /v1/whitelist/{dimension}. Key is an
// address, or an integer action code for the action dimension.
type WhitelistRequest struct {
	Key      string `json:"key"`
	Approved bool   `json:"approved"`
	Note     string `json:"note"`
}

// WhitelistEntry is one row of GET /v1/whitelist/{dimension}.
type WhitelistEntry struct {
	Dimension whitelist.Dimension `json:"dimension"`
	Key       string              `json:"key"`
	Approved  bool                `json:"approved"`
	Note      string              `json:"note"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// BindingRequest is the body of PUT /v1/bindings. A zero escrow unbinds.
type BindingRequest struct {
	Router common.Address `json:"router"`
	Escrow common.Address `json:"escrow"`
	Note   string         `json:"note"`
}
