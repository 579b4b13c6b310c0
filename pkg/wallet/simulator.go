package wallet

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/protocol/erc20"
)

// Handler simulates a contract. It runs with the simulator as its view of
// chain state and may move balances through it.
type Handler func(ctx context.Context, s *Simulator, call Call) ([]byte, error)

// BalanceSource seeds balances the simulator has not seen yet, e.g. from a
// chain RPC endpoint.
type BalanceSource interface {
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

// Call is one executed call as recorded in the journal.
type Call struct {
	From   common.Address
	Target common.Address
	Data   []byte
	Value  *big.Int
}

type balanceKey struct {
	token  common.Address
	holder common.Address
}

type state struct {
	balances   map[balanceKey]*big.Int
	allowances map[[3]common.Address]*big.Int
	calls      []Call
}

func (st *state) clone() *state {
	out := &state{
		balances:   make(map[balanceKey]*big.Int, len(st.balances)),
		allowances: make(map[[3]common.Address]*big.Int, len(st.allowances)),
		calls:      append([]Call(nil), st.calls...),
	}
	for k, v := range st.balances {
		out.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range st.allowances {
		out.allowances[k] = new(big.Int).Set(v)
	}
	return out
}

// Simulator is an in-memory wallet. Unknown targets accept any call; tokens
// registered with AddToken implement transfer and approve; other contracts
// are simulated by Handlers.
type Simulator struct {
	address  common.Address
	mu       sync.Mutex
	st       *state
	tokens   map[common.Address]bool
	handlers map[common.Address]Handler
	source   BalanceSource
	logger   *slog.Logger
}

// NewSimulator creates an empty simulator for the wallet at addr.
func NewSimulator(addr common.Address) *Simulator {
	return &Simulator{
		address:  addr,
		st:       &state{balances: make(map[balanceKey]*big.Int), allowances: make(map[[3]common.Address]*big.Int)},
		tokens:   make(map[common.Address]bool),
		handlers: make(map[common.Address]Handler),
		logger:   slog.Default().With("component", "wallet"),
	}
}

// SetBalanceSource makes first reads of a (token, holder) pair come from src.
func (s *Simulator) SetBalanceSource(src BalanceSource) { s.source = src }

// AddToken makes token behave as an ERC-20 for transfer and approve.
func (s *Simulator) AddToken(token common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = true
}

// Handle installs a handler for target.
func (s *Simulator) Handle(target common.Address, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[target] = h
}

// Address implements Wallet.
func (s *Simulator) Address() common.Address { return s.address }

// SetBalance overwrites a balance.
func (s *Simulator) SetBalance(token, holder common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.balances[balanceKey{token, holder}] = new(big.Int).Set(amount)
}

// BalanceOf implements Wallet.
func (s *Simulator) BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	s.mu.Lock()
	v, ok := s.st.balances[balanceKey{token, holder}]
	s.mu.Unlock()
	if ok {
		return new(big.Int).Set(v), nil
	}
	if s.source == nil {
		return new(big.Int), nil
	}
	seed, err := s.source.BalanceOf(ctx, token, holder)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.st.balances[balanceKey{token, holder}]; ok {
		return new(big.Int).Set(v), nil
	}
	s.st.balances[balanceKey{token, holder}] = new(big.Int).Set(seed)
	return new(big.Int).Set(seed), nil
}

// Move transfers amount of token between holders, reverting on shortfall.
func (s *Simulator) Move(ctx context.Context, token, from, to common.Address, amount *big.Int) error {
	// Pull live balances in before taking the lock for the update.
	if _, err := s.BalanceOf(ctx, token, from); err != nil {
		return err
	}
	if _, err := s.BalanceOf(ctx, token, to); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.slot(token, from)
	if src.Cmp(amount) < 0 {
		return Revert(token, "transfer amount %s exceeds balance %s", amount, src)
	}
	dst := s.slot(token, to)
	src.Sub(src, amount)
	dst.Add(dst, amount)
	return nil
}

// slot returns the stored balance for (token, holder), creating a zero entry
// if there is none. Callers hold s.mu.
func (s *Simulator) slot(token, holder common.Address) *big.Int {
	k := balanceKey{token, holder}
	v, ok := s.st.balances[k]
	if !ok {
		v = new(big.Int)
		s.st.balances[k] = v
	}
	return v
}

// Allowance returns the approved amount for (token, owner, spender).
func (s *Simulator) Allowance(token, owner, spender common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.st.allowances[[3]common.Address{token, owner, spender}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Calls returns the committed call journal.
func (s *Simulator) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.st.calls...)
}

// Execute implements Wallet.
func (s *Simulator) Execute(ctx context.Context, target common.Address, data []byte, value *big.Int) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	call := Call{From: s.address, Target: target, Data: bytes.Clone(data), Value: new(big.Int).Set(value)}

	s.mu.Lock()
	h, hasHandler := s.handlers[target]
	isToken := s.tokens[target]
	s.mu.Unlock()

	var (
		ret []byte
		err error
	)
	switch {
	case hasHandler:
		ret, err = h(ctx, s, call)
	case isToken:
		ret, err = s.token(ctx, call)
	}
	if err != nil {
		s.logger.Debug("simulated call reverted", "target", target.Hex(), "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.st.calls = append(s.st.calls, call)
	s.mu.Unlock()
	return ret, nil
}

var (
	selTransfer = mustSelector(erc20.PackTransfer(common.Address{}, new(big.Int)))
	selApprove  = mustSelector(erc20.PackApprove(common.Address{}, new(big.Int)))
	wordTrue    = common.LeftPadBytes([]byte{1}, 32)
)

func mustSelector(data []byte, err error) [4]byte {
	if err != nil {
		panic(err)
	}
	return [4]byte(data[:4])
}

func (s *Simulator) token(ctx context.Context, call Call) ([]byte, error) {
	if len(call.Data) != 4+64 {
		return nil, Revert(call.Target, "unsupported token call")
	}
	to := common.BytesToAddress(call.Data[4:36])
	amount := new(big.Int).SetBytes(call.Data[36:68])
	switch [4]byte(call.Data[:4]) {
	case selTransfer:
		if err := s.Move(ctx, call.Target, call.From, to, amount); err != nil {
			return nil, err
		}
	case selApprove:
		s.mu.Lock()
		s.st.allowances[[3]common.Address{call.Target, call.From, to}] = amount
		s.mu.Unlock()
	default:
		return nil, Revert(call.Target, "unsupported token call")
	}
	return wordTrue, nil
}

// Atomic implements Wallet by snapshotting state and restoring it if fn
// fails or panics. A panic is returned as an error. The caller serializes
// atomic sections.
func (s *Simulator) Atomic(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	s.mu.Lock()
	snap := s.st.clone()
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("atomic section panicked: %v", r)
		}
		if err != nil {
			s.mu.Lock()
			s.st = snap
			s.mu.Unlock()
		}
	}()
	return fn(ctx)
}
