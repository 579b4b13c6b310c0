// Package events carries the observable side of the engine: whitelist
// changes, signed orders, executed swaps and call outcomes. Off-chain
// collaborators (the order-book relayer in particular) learn about new
// orders only through these events.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names an event kind on the wire.
type Type string

const (
	TypeWhitelistChanged Type = "whitelist.changed"
	TypeRouterBound      Type = "router.bound"
	TypeOrderSigned      Type = "order.signed"
	TypeSwapExecuted     Type = "swap.executed"
	TypeCallExecuted     Type = "call.executed"
	TypeCallDenied       Type = "call.denied"
)

// Event is the envelope shared by every sink.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New wraps a payload in an envelope with a fresh id.
func New(at time.Time, typ Type, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: at.UTC(),
		Payload:   payload,
	}
}

// WhitelistChanged is emitted on every registry mutation.
type WhitelistChanged struct {
	Dimension string `json:"dimension"`
	Key       string `json:"key"`
	Approved  bool   `json:"approved"`
	Note      string `json:"note"`
	Caller    string `json:"caller"`
}

// RouterBound is emitted when a router's escrow binding changes.
type RouterBound struct {
	Router string `json:"router"`
	Escrow string `json:"escrow"`
	Note   string `json:"note"`
	Caller string `json:"caller"`
}

// OrderSigned announces a presigned off-chain order.
type OrderSigned struct {
	OrderUID   string `json:"order_uid"`
	Order      any    `json:"order"`
	ValidTo    uint32 `json:"valid_to"`
	BuyAmount  string `json:"buy_amount"`
	SellAmount string `json:"sell_amount"`
}

// SwapExecuted reports the measured output of an atomic swap.
type SwapExecuted struct {
	Router       string `json:"router"`
	TokenIn      string `json:"token_in"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in"`
	AmountOut    string `json:"amount_out"`
	MinAmountOut string `json:"min_amount_out"`
}

// CallExecuted records a forwarded call that committed.
type CallExecuted struct {
	DecisionID string `json:"decision_id"`
	Sender     string `json:"sender"`
	Target     string `json:"target"`
	Selector   string `json:"selector"`
	Kind       string `json:"kind"`
	Value      string `json:"value"`
	ReturnData string `json:"return_data,omitempty"`
}

// CallDenied records a rejected call with its reason code.
type CallDenied struct {
	DecisionID string `json:"decision_id"`
	Sender     string `json:"sender"`
	Target     string `json:"target"`
	Selector   string `json:"selector,omitempty"`
	Code       string `json:"code"`
	Detail     string `json:"detail,omitempty"`
}

// Emitter publishes events.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// Multi fans an event out to every emitter and joins their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) error { return nil }

// Buffer holds events produced inside an atomic cycle until it commits.
type Buffer struct {
	pending []Event
}

func (b *Buffer) Add(ev Event) { b.pending = append(b.pending, ev) }

// Len returns the number of held events.
func (b *Buffer) Len() int { return len(b.pending) }

// Reset drops held events; used when the cycle aborts.
func (b *Buffer) Reset() { b.pending = nil }

// Flush publishes held events in order and empties the buffer.
func (b *Buffer) Flush(ctx context.Context, out Emitter) error {
	evs := b.pending
	b.pending = nil
	var errs []error
	for _, ev := range evs {
		if err := out.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns recorded events of the given type.
func (r *Recorder) OfType(typ Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
