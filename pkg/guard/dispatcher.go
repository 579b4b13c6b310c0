// Package guard is the call dispatcher: it admits or denies every outgoing
// call by looking up (target, selector) in a static table, running the bound
// protocol validator and verifying the accumulated whitelist checks in a
// single registry pass. Anything not recognized is denied.
package guard

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/Mindburn-Labs/assetguard/pkg/abiutil"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/cowswap"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/erc20"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/gmx"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/hypercore"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/uniswapv2"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/velora"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

// Validator decodes the arguments of a recognized call and returns the
// whitelist checks it needs, or a hard failure.
type Validator func(env protocol.Env, kind protocol.Kind, args []byte) ([]whitelist.Check, error)

type family struct {
	selectors map[abiutil.Selector]protocol.Kind
	validate  Validator
}

// families is built once. CowSwap settlement and Velora routers take no
// direct calls: they are only reachable through CheckOrder and CheckSwap.
var families = map[protocol.Family]family{
	protocol.FamilyERC20:     {erc20.Selectors(), erc20.Validate},
	protocol.FamilyUniswapV2: {uniswapv2.Selectors(), uniswapv2.Validate},
	protocol.FamilyGMX:       {gmx.Selectors(), gmx.Validate},
	protocol.FamilyHyperCore: {hypercore.Selectors(), hypercore.Validate},
	protocol.FamilyCowSwap:   {},
	protocol.FamilyVelora:    {},
}

// Target configures how calls to one contract are validated.
type Target struct {
	Address common.Address  `json:"address" yaml:"address"`
	Family  protocol.Family `json:"family" yaml:"family"`
	// AnyAsset suppresses asset and market checks for this target only.
	AnyAsset bool `json:"any_asset" yaml:"any_asset"`
	// Constraints are CEL expressions that must all hold for a call to be
	// admitted. They only ever restrict.
	Constraints []string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

type target struct {
	Target
	family      family
	constraints []*constraint
}

// Decision is the terminal state of one admission.
type Decision struct {
	ID       string
	Allowed  bool
	Sender   common.Address
	Target   common.Address
	Selector abiutil.Selector
	Kind     protocol.Kind
	Family   protocol.Family
	Value    *big.Int
	Checks   []whitelist.Check
	Reason   error
}

// Code returns the denial code, empty when allowed.
func (dec *Decision) Code() reason.Code {
	c, _ := reason.CodeOf(dec.Reason)
	return c
}

// Err returns the denial as an error, nil when allowed.
func (dec *Decision) Err() error {
	if dec.Allowed {
		return nil
	}
	return dec.Reason
}

// Dispatcher admits calls against a whitelist registry.
type Dispatcher struct {
	mu       sync.RWMutex
	registry whitelist.Reader
	targets  map[common.Address]*target
	cel      *constraintEnv
}

// NewDispatcher creates a dispatcher with no registered targets: every call
// is denied until targets are registered.
func NewDispatcher(registry whitelist.Reader) (*Dispatcher, error) {
	env, err := newConstraintEnv()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		registry: registry,
		targets:  make(map[common.Address]*target),
		cel:      env,
	}, nil
}

// Register binds a target contract to a protocol family. Re-registering an
// address replaces its configuration.
func (d *Dispatcher) Register(t Target) error {
	fam, ok := families[t.Family]
	if !ok {
		return fmt.Errorf("register %s: unknown protocol family %q", t.Address.Hex(), t.Family)
	}
	if t.Address == (common.Address{}) {
		return fmt.Errorf("register: zero target address")
	}
	compiled := &target{Target: t, family: fam}
	for _, expr := range t.Constraints {
		c, err := d.cel.compile(expr)
		if err != nil {
			return fmt.Errorf("register %s: constraint %q: %w", t.Address.Hex(), expr, err)
		}
		compiled.constraints = append(compiled.constraints, c)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets[t.Address] = compiled
	return nil
}

// Targets lists registered targets ordered by address.
func (d *Dispatcher) Targets() []Target {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Target, 0, len(d.targets))
	for _, t := range d.targets {
		out = append(out, t.Target)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Cmp(out[j].Address) < 0 })
	return out
}

func (d *Dispatcher) lookup(addr common.Address) (*target, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.targets[addr]
	return t, ok
}

func newDecision(sender, to common.Address, value *big.Int) *Decision {
	if value == nil {
		value = new(big.Int)
	}
	return &Decision{ID: uuid.NewString(), Sender: sender, Target: to, Value: value}
}

func (dec *Decision) deny(err error) *Decision {
	if _, ok := reason.CodeOf(err); !ok {
		err = reason.New(reason.MalformedPayload, err.Error())
	}
	dec.Allowed = false
	dec.Reason = err
	return dec
}

// Check runs a generic call through the dispatcher.
func (d *Dispatcher) Check(call protocol.Call) (dec *Decision) {
	dec = newDecision(call.Sender, call.Target, call.Value)
	defer recoverDenial(dec)

	if err := d.checkSender(call.Sender); err != nil {
		return dec.deny(err)
	}
	sel, args, err := abiutil.Split(call.Data)
	if err != nil {
		return dec.deny(err)
	}
	dec.Selector = sel

	t, ok := d.lookup(call.Target)
	if !ok {
		return dec.deny(reason.Newf(reason.UnknownSelector, "target %s is not registered", call.Target.Hex()))
	}
	dec.Family = t.Family
	kind, ok := t.family.selectors[sel]
	if !ok || t.family.validate == nil {
		return dec.deny(reason.Newf(reason.UnknownSelector, "selector %s on %s", sel.Hex(), call.Target.Hex()))
	}
	dec.Kind = kind

	env, err := d.env(call.Sender, t)
	if err != nil {
		return dec.deny(err)
	}
	checks, err := t.family.validate(env, kind, args)
	if err != nil {
		return dec.deny(err)
	}
	return d.finish(dec, t, checks, activation{
		sender: call.Sender, target: call.Target, selector: sel.Hex(),
		kind: kind.String(), family: string(t.Family), value: dec.Value, argsLen: len(args),
	})
}

// CheckOrder admits an order request against a registered CowSwap
// settlement contract.
func (d *Dispatcher) CheckOrder(sender common.Address, p cowswap.Params) (dec *Decision) {
	dec = newDecision(sender, p.Settlement, nil)
	defer recoverDenial(dec)

	t, err := d.routed(dec, sender, p.Settlement, protocol.FamilyCowSwap)
	if err != nil {
		return dec.deny(err)
	}
	if err := p.Check(); err != nil {
		return dec.deny(err)
	}
	return d.finish(dec, t, p.Checks(t.AnyAsset), activation{
		sender: sender, target: p.Settlement, kind: "cowswap.order", family: string(t.Family),
		value: dec.Value, amountIn: p.AmountIn, minAmountOut: p.MinAmountOut,
	})
}

// CheckSwap admits an atomic swap intent against a registered Velora router.
func (d *Dispatcher) CheckSwap(sender common.Address, in velora.Intent) (dec *Decision) {
	dec = newDecision(sender, in.Router, nil)
	defer recoverDenial(dec)

	t, err := d.routed(dec, sender, in.Router, protocol.FamilyVelora)
	if err != nil {
		return dec.deny(err)
	}
	if err := in.Check(); err != nil {
		return dec.deny(err)
	}
	sel, _, _ := abiutil.Split(in.Calldata)
	dec.Selector = sel
	return d.finish(dec, t, in.Checks(t.AnyAsset), activation{
		sender: sender, target: in.Router, selector: sel.Hex(), kind: "velora.swap", family: string(t.Family),
		value: dec.Value, argsLen: len(in.Calldata) - abiutil.SelectorLen,
		amountIn: in.AmountIn, minAmountOut: in.MinAmountOut,
	})
}

// routed resolves a router target of the expected family and applies the
// sender and router checks.
func (d *Dispatcher) routed(dec *Decision, sender, router common.Address, want protocol.Family) (*target, error) {
	if err := d.checkSender(sender); err != nil {
		return nil, err
	}
	t, ok := d.lookup(router)
	if !ok || t.Family != want {
		return nil, reason.Newf(reason.RouterNotConfigured, "%s is not a registered %s router", router.Hex(), want)
	}
	dec.Family = t.Family
	if _, err := d.env(sender, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (d *Dispatcher) checkSender(sender common.Address) error {
	return d.registry.Verify([]whitelist.Check{whitelist.AddressCheck(whitelist.Sender, sender)})
}

// env builds the validator context. Routed families need the target in the
// router set and bound to an escrow.
func (d *Dispatcher) env(sender common.Address, t *target) (protocol.Env, error) {
	env := protocol.Env{Sender: sender, Target: t.Address, AnyAsset: t.AnyAsset, Registry: d.registry}
	if !t.Family.Routed() {
		return env, nil
	}
	if !d.registry.IsAllowed(whitelist.Router, whitelist.AddressKey(t.Address)) {
		return env, reason.Newf(reason.RouterNotConfigured, "router %s is not whitelisted", t.Address.Hex())
	}
	escrow, ok := d.registry.Binding(t.Address)
	if !ok {
		return env, reason.Newf(reason.RouterNotConfigured, "router %s has no escrow binding", t.Address.Hex())
	}
	env.Escrow = escrow
	return env, nil
}

func (d *Dispatcher) finish(dec *Decision, t *target, checks []whitelist.Check, act activation) *Decision {
	dec.Checks = checks
	if err := d.registry.Verify(checks); err != nil {
		return dec.deny(err)
	}
	for _, c := range t.constraints {
		if err := c.eval(act); err != nil {
			return dec.deny(err)
		}
	}
	dec.Allowed = true
	return dec
}

// recoverDenial turns a validator panic into a denial.
func recoverDenial(dec *Decision) {
	if r := recover(); r != nil {
		dec.deny(reason.Newf(reason.MalformedPayload, "decoder panic: %v", r))
	}
}
