// Package gateway runs admission cycles end to end: dispatch, execute
// through the custodial wallet inside one atomic section, then publish
// events. Cycles are serialized; a failure anywhere aborts the whole cycle
// and nothing it did persists.
package gateway

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/assetguard/pkg/events"
	"github.com/Mindburn-Labs/assetguard/pkg/guard"
	"github.com/Mindburn-Labs/assetguard/pkg/observability"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/cowswap"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/velora"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/wallet"
)

// Result is the outcome of an admitted, committed call.
type Result struct {
	DecisionID string         `json:"decision_id"`
	Kind       string         `json:"kind"`
	Target     common.Address `json:"target"`
	ReturnData []byte         `json:"return_data,omitempty"`
}

// OrderRequest asks for a presigned CowSwap order. The owner is always the
// custodial wallet and the validity window is fixed.
type OrderRequest struct {
	Settlement   common.Address
	Receiver     common.Address
	AppData      common.Hash
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Side         cowswap.Side
}

// Gateway is the validation and execution entry point used by the agent.
type Gateway struct {
	mu         sync.Mutex
	dispatcher *guard.Dispatcher
	wallet     wallet.Wallet
	orders     *cowswap.Builder
	emitter    events.Emitter
	obs        *observability.Provider
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a gateway. Events are discarded until SetEmitter is called.
func New(d *guard.Dispatcher, w wallet.Wallet, orders *cowswap.Builder) *Gateway {
	obs, _ := observability.New(context.Background(), &observability.Config{Enabled: false})
	return &Gateway{
		dispatcher: d,
		wallet:     w,
		orders:     orders,
		emitter:    events.Discard{},
		obs:        obs,
		logger:     slog.Default().With("component", "gateway"),
		now:        time.Now,
	}
}

// SetEmitter sets the event sink.
func (g *Gateway) SetEmitter(e events.Emitter) {
	if e == nil {
		e = events.Discard{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.emitter = e
}

// SetObservability sets the telemetry provider.
func (g *Gateway) SetObservability(p *observability.Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.obs = p
}

// SetLogger overrides the logger.
func (g *Gateway) SetLogger(l *slog.Logger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logger = l.With("component", "gateway")
}

// SetClock overrides the clock used for event timestamps (for testing).
func (g *Gateway) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Wallet returns the custodial wallet.
func (g *Gateway) Wallet() wallet.Wallet { return g.wallet }

// PerformCall admits and forwards one call from the wallet.
func (g *Gateway) PerformCall(ctx context.Context, sender, target common.Address, payload []byte, value *big.Int) (res *Result, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ctx, done := g.obs.TrackOperation(ctx, "assetguard.perform_call", attribute.String("target", target.Hex()))
	defer func() { done(err) }()

	dec := g.dispatcher.Check(protocol.Call{Sender: sender, Target: target, Data: payload, Value: value})
	if err := g.decided(ctx, dec); err != nil {
		return nil, err
	}

	var buf events.Buffer
	var ret []byte
	err = g.wallet.Atomic(ctx, func(ctx context.Context) error {
		out, err := g.wallet.Execute(ctx, target, payload, value)
		if err != nil {
			return reverted(target, err)
		}
		ret = out
		buf.Add(events.New(g.now(), events.TypeCallExecuted, events.CallExecuted{
			DecisionID: dec.ID,
			Sender:     sender.Hex(),
			Target:     target.Hex(),
			Selector:   dec.Selector.Hex(),
			Kind:       dec.Kind.String(),
			Value:      dec.Value.String(),
			ReturnData: hex.EncodeToString(out),
		}))
		return nil
	})
	if err != nil {
		g.aborted(ctx, dec, err)
		return nil, err
	}
	g.publish(ctx, &buf)
	return &Result{DecisionID: dec.ID, Kind: dec.Kind.String(), Target: target, ReturnData: ret}, nil
}

// CreateAndSignOrder admits an order request, builds the order and executes
// its pre-signature from the wallet. The returned order carries the UID,
// the settlement target and the presign calldata.
func (g *Gateway) CreateAndSignOrder(ctx context.Context, sender common.Address, req OrderRequest) (so *cowswap.SignedOrder, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ctx, done := g.obs.TrackOperation(ctx, "assetguard.create_and_sign_order", attribute.String("settlement", req.Settlement.Hex()))
	defer func() { done(err) }()

	p := cowswap.Params{
		Settlement:   req.Settlement,
		Owner:        g.wallet.Address(),
		Receiver:     req.Receiver,
		AppData:      req.AppData,
		TokenIn:      req.TokenIn,
		TokenOut:     req.TokenOut,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		Side:         req.Side,
	}
	if p.Side == "" {
		p.Side = cowswap.SideSell
	}
	dec := g.dispatcher.CheckOrder(sender, p)
	if err := g.decided(ctx, dec); err != nil {
		return nil, err
	}

	so, err = g.orders.Build(ctx, p)
	if err != nil {
		g.aborted(ctx, dec, err)
		return nil, err
	}

	var buf events.Buffer
	err = g.wallet.Atomic(ctx, func(ctx context.Context) error {
		if _, err := g.wallet.Execute(ctx, so.Target, so.Calldata, nil); err != nil {
			return reverted(so.Target, err)
		}
		buf.Add(events.New(g.now(), events.TypeOrderSigned, events.OrderSigned{
			OrderUID:   "0x" + hex.EncodeToString(so.UID),
			Order:      so.Order,
			ValidTo:    so.Order.ValidTo,
			BuyAmount:  so.Order.BuyAmount.String(),
			SellAmount: so.Order.SellAmount.String(),
		}))
		return nil
	})
	if err != nil {
		g.aborted(ctx, dec, err)
		return nil, err
	}
	g.publish(ctx, &buf)
	return so, nil
}

// SwapAndValidate admits a Velora swap, executes it and enforces the
// minimum output. It returns the amount actually received.
func (g *Gateway) SwapAndValidate(ctx context.Context, sender common.Address, in velora.Intent) (out *big.Int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ctx, done := g.obs.TrackOperation(ctx, "assetguard.swap_and_validate", attribute.String("router", in.Router.Hex()))
	defer func() { done(err) }()

	dec := g.dispatcher.CheckSwap(sender, in)
	if err := g.decided(ctx, dec); err != nil {
		return nil, err
	}

	var buf events.Buffer
	err = g.wallet.Atomic(ctx, func(ctx context.Context) error {
		received, err := velora.Swap(ctx, g.wallet, in)
		if err != nil {
			return err
		}
		out = received
		buf.Add(events.New(g.now(), events.TypeSwapExecuted, events.SwapExecuted{
			Router:       in.Router.Hex(),
			TokenIn:      in.TokenIn.Hex(),
			TokenOut:     in.TokenOut.Hex(),
			AmountIn:     in.AmountIn.String(),
			AmountOut:    received.String(),
			MinAmountOut: in.MinAmountOut.String(),
		}))
		return nil
	})
	if err != nil {
		g.aborted(ctx, dec, err)
		return nil, err
	}
	g.publish(ctx, &buf)
	return out, nil
}

// decided records the decision and, for a denial, emits CallDenied.
func (g *Gateway) decided(ctx context.Context, dec *guard.Decision) error {
	g.obs.RecordDecision(ctx, dec.Allowed, string(dec.Code()), attribute.String("family", string(dec.Family)))
	if dec.Allowed {
		g.logger.DebugContext(ctx, "call admitted",
			"decision", dec.ID, "sender", dec.Sender.Hex(), "target", dec.Target.Hex(), "kind", dec.Kind.String())
		return nil
	}
	g.aborted(ctx, dec, dec.Reason)
	return dec.Reason
}

// aborted logs and announces a cycle that ended without committing.
func (g *Gateway) aborted(ctx context.Context, dec *guard.Decision, err error) {
	code, _ := reason.CodeOf(err)
	detail := err.Error()
	var re *reason.Error
	if errors.As(err, &re) {
		detail = re.Detail
	}
	g.logger.WarnContext(ctx, "call rejected",
		"decision", dec.ID, "sender", dec.Sender.Hex(), "target", dec.Target.Hex(), "code", code, "detail", detail)

	selector := ""
	if dec.Selector != [4]byte{} {
		selector = dec.Selector.Hex()
	}
	ev := events.New(g.now(), events.TypeCallDenied, events.CallDenied{
		DecisionID: dec.ID,
		Sender:     dec.Sender.Hex(),
		Target:     dec.Target.Hex(),
		Selector:   selector,
		Code:       string(code),
		Detail:     detail,
	})
	if err := g.emitter.Emit(ctx, ev); err != nil {
		g.logger.WarnContext(ctx, "failed to emit denial", "error", err)
	}
}

// publish flushes events of a committed cycle. Sink failures cannot undo the
// commit and are only logged.
func (g *Gateway) publish(ctx context.Context, buf *events.Buffer) {
	if err := buf.Flush(ctx, g.emitter); err != nil {
		g.logger.WarnContext(ctx, "failed to publish events", "error", err)
	}
}

func reverted(target common.Address, err error) error {
	if _, ok := reason.CodeOf(err); ok {
		return err
	}
	return reason.Newf(reason.ExecutionReverted, "%s: %v", target.Hex(), err)
}
