// Package whitelist holds the operator-configured approval sets the engine
// checks every call against. Absence of a key means denial.
package whitelist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/assetguard/pkg/events"
	"github.com/Mindburn-Labs/assetguard/pkg/reason"
)

// Store persists registry state across restarts.
type Store interface {
	SaveEntry(ctx context.Context, e Entry) error
	SaveBinding(ctx context.Context, b Binding) error
	LoadEntries(ctx context.Context) ([]Entry, error)
	LoadBindings(ctx context.Context) ([]Binding, error)
}

// Reader is the read-only view validators receive.
type Reader interface {
	IsAllowed(d Dimension, k Key) bool
	Binding(router common.Address) (common.Address, bool)
	Verify(checks []Check) error
}

// Registry is the shared whitelist state. Reads take a shared lock; every
// mutation is owner-gated, serialized, written through to the Store and
// announced on the emitter.
type Registry struct {
	mu       sync.RWMutex
	owner    common.Address
	sets     map[Dimension]map[Key]Entry
	bindings map[common.Address]Binding

	store   Store
	emitter events.Emitter
	now     func() time.Time
	logger  *slog.Logger
}

// NewRegistry creates an empty registry administered by owner.
func NewRegistry(owner common.Address) *Registry {
	sets := make(map[Dimension]map[Key]Entry, len(Dimensions))
	for _, d := range Dimensions {
		sets[d] = make(map[Key]Entry)
	}
	return &Registry{
		owner:    owner,
		sets:     sets,
		bindings: make(map[common.Address]Binding),
		emitter:  events.Discard{},
		now:      time.Now,
		logger:   slog.Default().With("component", "whitelist"),
	}
}

// SetStore enables write-through persistence.
func (r *Registry) SetStore(s Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = s
}

// SetEmitter sets where change events go.
func (r *Registry) SetEmitter(e events.Emitter) {
	if e == nil {
		e = events.Discard{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitter = e
}

// SetLogger sets the logger.
func (r *Registry) SetLogger(l *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l.With("component", "whitelist")
}

// SetClock overrides the timestamp source.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Owner returns the administrative address.
func (r *Registry) Owner() common.Address { return r.owner }

// Load replaces in-memory state with what the store holds.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.RLock()
	store := r.store
	r.mu.RUnlock()
	if store == nil {
		return nil
	}
	entries, err := store.LoadEntries(ctx)
	if err != nil {
		return fmt.Errorf("load whitelist entries: %w", err)
	}
	bindings, err := store.LoadBindings(ctx)
	if err != nil {
		return fmt.Errorf("load router bindings: %w", err)
	}

	for _, e := range entries {
		if !e.Dimension.Valid() {
			return fmt.Errorf("load whitelist entries: unknown dimension %q", e.Dimension)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.sets[e.Dimension][e.Key] = e
	}
	for _, b := range bindings {
		if b.Escrow == (common.Address{}) {
			continue
		}
		r.bindings[b.Router] = b
	}
	r.logger.InfoContext(ctx, "registry loaded", "entries", len(entries), "bindings", len(bindings))
	return nil
}

// IsAllowed reports whether k is approved in dimension d.
func (r *Registry) IsAllowed(d Dimension, k Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sets[d][k].Approved
}

// Binding returns the escrow bound to router.
func (r *Registry) Binding(router common.Address) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[router]
	return b.Escrow, ok
}

// Verify runs every check in order under one read lock and returns the
// first failure.
func (r *Registry) Verify(checks []Check) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range checks {
		set, ok := r.sets[c.Dimension]
		if !ok {
			return reason.Newf(reason.UnknownSelector, "unknown whitelist dimension %q", c.Dimension)
		}
		if !set[c.Key].Approved {
			return reason.New(c.Dimension.denial(), c.Key.Format(c.Dimension))
		}
	}
	return nil
}

// Set approves or revokes key in dimension d.
func (r *Registry) Set(ctx context.Context, caller common.Address, d Dimension, k Key, approved bool, note string) error {
	if caller != r.owner {
		return reason.Newf(reason.Unauthorized, "%s is not the registry owner", caller.Hex())
	}
	if !d.Valid() {
		return fmt.Errorf("unknown whitelist dimension %q", d)
	}
	note = norm.NFC.String(note)

	r.mu.Lock()
	e := Entry{
		Dimension: d,
		Key:       k,
		Approved:  approved,
		Note:      note,
		UpdatedAt: r.now().UTC(),
	}
	if r.store != nil {
		if err := r.store.SaveEntry(ctx, e); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("persist whitelist entry: %w", err)
		}
	}
	r.sets[d][k] = e
	r.mu.Unlock()

	r.emit(ctx, events.New(e.UpdatedAt, events.TypeWhitelistChanged, events.WhitelistChanged{
		Dimension: string(d),
		Key:       k.Format(d),
		Approved:  approved,
		Note:      e.Note,
		Caller:    caller.Hex(),
	}))
	return nil
}

// BindRouter sets the escrow a router settles through. Binding to the zero
// address removes the binding and leaves the router unconfigured.
func (r *Registry) BindRouter(ctx context.Context, caller, router, escrow common.Address, note string) error {
	if caller != r.owner {
		return reason.Newf(reason.Unauthorized, "%s is not the registry owner", caller.Hex())
	}
	note = norm.NFC.String(note)

	r.mu.Lock()
	b := Binding{
		Router:    router,
		Escrow:    escrow,
		Note:      note,
		UpdatedAt: r.now().UTC(),
	}
	if r.store != nil {
		if err := r.store.SaveBinding(ctx, b); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("persist router binding: %w", err)
		}
	}
	if escrow == (common.Address{}) {
		delete(r.bindings, router)
	} else {
		r.bindings[router] = b
	}
	r.mu.Unlock()

	r.emit(ctx, events.New(b.UpdatedAt, events.TypeRouterBound, events.RouterBound{
		Router: router.Hex(),
		Escrow: escrow.Hex(),
		Note:   b.Note,
		Caller: caller.Hex(),
	}))
	return nil
}

// Entries returns every record in dimension d, for export.
func (r *Registry) Entries(d Dimension) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.sets[d]))
	for _, e := range r.sets[d] {
		out = append(out, e)
	}
	return out
}

// Bindings returns every router binding, for export.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Binding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	return out
}

func (r *Registry) emit(ctx context.Context, ev events.Event) {
	r.mu.RLock()
	emitter, logger := r.emitter, r.logger
	r.mu.RUnlock()
	if err := emitter.Emit(ctx, ev); err != nil {
		logger.WarnContext(ctx, "change event not delivered", "type", ev.Type, "error", err)
	}
}
