package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/assetguard/pkg/auth"
	"github.com/Mindburn-Labs/assetguard/pkg/server"
)

func newServeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return o.serve(ctx)
		},
	}
}

func (o *options) serve(ctx context.Context) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	logger := newLogger(o.stderr, cfg.LogLevel)

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.API.JWTSecret == "" {
		logger.Warn("api.jwt_secret is empty: every authenticated route will answer 401")
	}
	srv := server.New(a.gateway, a.registry, a.dispatcher)
	srv.SetLogger(logger)
	srv.SetValidator(auth.NewValidator([]byte(cfg.API.JWTSecret)))
	srv.SetRateLimiter(auth.NewRateLimiter(cfg.API.RatePerSecond, cfg.API.Burst))

	err = srv.ListenAndServe(ctx, cfg.API.Listen)
	if a.audit != nil {
		logger.Info("audit chain head", "head", a.audit.Head(), "entries", len(a.audit.Entries()))
		if verr := a.audit.Verify(); verr != nil {
			err = errors.Join(err, verr)
		}
	}
	return err
}
