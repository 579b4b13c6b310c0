package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/chain"
	"github.com/Mindburn-Labs/assetguard/pkg/config"
	"github.com/Mindburn-Labs/assetguard/pkg/events"
	"github.com/Mindburn-Labs/assetguard/pkg/gateway"
	"github.com/Mindburn-Labs/assetguard/pkg/guard"
	"github.com/Mindburn-Labs/assetguard/pkg/observability"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/cowswap"
	"github.com/Mindburn-Labs/assetguard/pkg/store"
	"github.com/Mindburn-Labs/assetguard/pkg/wallet"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

const defaultStream = "assetguard:events"

// app is the fully wired guard.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	registry   *whitelist.Registry
	dispatcher *guard.Dispatcher
	gateway    *gateway.Gateway
	obs        *observability.Provider
	emitter    events.Emitter
	audit      *events.AuditChain
	closers    []func() error
}

// noDomain stands in when no node is configured; order building needs the
// settlement contract's domain separator.
type noDomain struct{}

func (noDomain) DomainSeparator(context.Context, common.Address) (common.Hash, error) {
	return common.Hash{}, errors.New("no rpc_url configured: cannot read settlement domain separator")
}

// buildCore wires everything the dispatcher needs. It is shared by serve and
// the offline check command.
func buildCore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	sinks := events.Multi{events.NewLogSink(logger)}
	if cfg.Events.Audit {
		a.audit = events.NewAuditChain()
		sinks = append(sinks, a.audit)
	}
	if r := cfg.Events.Redis; r != nil && r.Addr != "" {
		stream := r.Stream
		if stream == "" {
			stream = defaultStream
		}
		sink, client := events.DialRedisStream(r.Addr, r.Password, r.DB, stream, r.MaxLen)
		sinks = append(sinks, sink)
		a.closers = append(a.closers, client.Close)
	}

	a.emitter = sinks
	a.registry = whitelist.NewRegistry(cfg.OwnerAddress())
	a.registry.SetEmitter(sinks)
	a.registry.SetLogger(logger)

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		a.close()
		return nil, err
	}
	if st != nil {
		a.closers = append(a.closers, st.Close)
		a.registry.SetStore(st)
		if err := a.registry.Load(ctx); err != nil {
			a.close()
			return nil, err
		}
	}
	if err := seed(ctx, cfg, a.registry); err != nil {
		a.close()
		return nil, err
	}

	a.dispatcher, err = guard.NewDispatcher(a.registry)
	if err != nil {
		a.close()
		return nil, err
	}
	targets, err := cfg.DispatchTargets()
	if err != nil {
		a.close()
		return nil, err
	}
	for _, t := range targets {
		if err := a.dispatcher.Register(t); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

// buildApp adds execution, the chain reader and telemetry on top of the core.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a, err := buildCore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sim := wallet.NewSimulator(cfg.WalletAddress())
	for _, t := range a.dispatcher.Targets() {
		if t.Family == protocol.FamilyERC20 {
			sim.AddToken(t.Address)
		}
	}
	var domains cowswap.DomainSeparatorSource = noDomain{}
	if cfg.Wallet.RPCURL != "" {
		reader, client, err := chain.Dial(ctx, cfg.Wallet.RPCURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() error { client.Close(); return nil })
		sim.SetBalanceSource(reader)
		domains = reader
	}

	a.obs, err = observability.New(ctx, cfg.Observability)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, func() error { return a.obs.Shutdown(context.Background()) })

	a.gateway = gateway.New(a.dispatcher, sim, cowswap.NewBuilder(domains))
	a.gateway.SetEmitter(a.emitter)
	a.gateway.SetObservability(a.obs)
	a.gateway.SetLogger(logger)
	return a, nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (*store.SQLStore, error) {
	switch sc.Driver {
	case "", "memory":
		return nil, nil
	case "sqlite":
		if sc.DSN == "" {
			return nil, errors.New("store.dsn is required for sqlite")
		}
		return store.OpenSQLite(ctx, sc.DSN)
	case "postgres":
		return store.OpenPostgres(ctx, sc.DSN)
	}
	return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}

// seed applies config whitelist entries and bindings that the loaded state
// does not already hold. Persisted revocations are not overridden.
func seed(ctx context.Context, cfg *config.Config, reg *whitelist.Registry) error {
	seeds, err := cfg.Seeds()
	if err != nil {
		return err
	}
	known := make(map[whitelist.Dimension]map[whitelist.Key]bool)
	for _, d := range whitelist.Dimensions {
		known[d] = make(map[whitelist.Key]bool)
		for _, e := range reg.Entries(d) {
			known[d][e.Key] = true
		}
	}
	owner := reg.Owner()
	for _, s := range seeds {
		if known[s.Dimension][s.Key] {
			continue
		}
		if err := reg.Set(ctx, owner, s.Dimension, s.Key, true, "config"); err != nil {
			return err
		}
	}

	bindings, err := cfg.RouterBindings()
	if err != nil {
		return err
	}
	for _, b := range bindings {
		if escrow, ok := reg.Binding(b.Router); ok && escrow == b.Escrow {
			continue
		}
		if err := reg.BindRouter(ctx, owner, b.Router, b.Escrow, b.Note); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
