// Package server exposes the gateway and the whitelist registry over HTTP.
// Owners manage whitelists and router bindings; agents submit calls, orders
// and swaps. The authenticated token subject is the acting address.
package server

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mindburn-Labs/assetguard/pkg/auth"
	"github.com/Mindburn-Labs/assetguard/pkg/gateway"
	"github.com/Mindburn-Labs/assetguard/pkg/guard"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/cowswap"
	"github.com/Mindburn-Labs/assetguard/pkg/protocol/velora"
	"github.com/Mindburn-Labs/assetguard/pkg/whitelist"
)

// Agent is the execution surface.
type Agent interface {
	PerformCall(ctx context.Context, sender, target common.Address, payload []byte, value *big.Int) (*gateway.Result, error)
	CreateAndSignOrder(ctx context.Context, sender common.Address, req gateway.OrderRequest) (*cowswap.SignedOrder, error)
	SwapAndValidate(ctx context.Context, sender common.Address, in velora.Intent) (*big.Int, error)
}

// Registry is the owner surface.
type Registry interface {
	Set(ctx context.Context, caller common.Address, d whitelist.Dimension, k whitelist.Key, approved bool, note string) error
	BindRouter(ctx context.Context, caller, router, escrow common.Address, note string) error
	Entries(d whitelist.Dimension) []whitelist.Entry
	Bindings() []whitelist.Binding
}

// TargetLister reports the registered dispatch targets.
type TargetLister interface {
	Targets() []guard.Target
}

// Server is the HTTP front end.
type Server struct {
	agent     Agent
	registry  Registry
	targets   TargetLister
	validator *auth.Validator
	limiter   *auth.RateLimiter
	logger    *slog.Logger
}

// New creates a server. Until SetValidator is called every authenticated
// route answers 401.
func New(agent Agent, registry Registry, targets TargetLister) *Server {
	return &Server{
		agent:    agent,
		registry: registry,
		targets:  targets,
		logger:   slog.Default().With("component", "server"),
	}
}

// SetValidator installs the JWT validator.
func (s *Server) SetValidator(v *auth.Validator) { s.validator = v }

// SetRateLimiter installs a per-principal rate limiter.
func (s *Server) SetRateLimiter(rl *auth.RateLimiter) { s.limiter = rl }

// SetLogger sets the logger.
func (s *Server) SetLogger(l *slog.Logger) { s.logger = l.With("component", "server") }

// Handler builds the routed, authenticated handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /v1/calls", auth.RequireRole(auth.RoleAgent, s.handlePerformCall))
	mux.HandleFunc("POST /v1/orders", auth.RequireRole(auth.RoleAgent, s.handleCreateOrder))
	mux.HandleFunc("POST /v1/swaps", auth.RequireRole(auth.RoleAgent, s.handleSwap))

	mux.HandleFunc("GET /v1/targets", s.handleTargets)
	mux.HandleFunc("GET /v1/whitelist/{dimension}", auth.RequireRole(auth.RoleOwner, s.handleListWhitelist))
	mux.HandleFunc("PUT /v1/whitelist/{dimension}", auth.RequireRole(auth.RoleOwner, s.handleSetWhitelist))
	mux.HandleFunc("GET /v1/bindings", auth.RequireRole(auth.RoleOwner, s.handleListBindings))
	mux.HandleFunc("PUT /v1/bindings", auth.RequireRole(auth.RoleOwner, s.handleBindRouter))

	var h http.Handler = mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = auth.NewMiddleware(s.validator)(h)
	return auth.RequestIDMiddleware(h)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains for up
// to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
