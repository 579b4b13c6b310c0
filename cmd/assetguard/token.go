package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/assetguard/pkg/auth"
)

func newTokenCmd(o *options) *cobra.Command {
	var (
		address string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token signed with api.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !common.IsHexAddress(address) {
				return fmt.Errorf("--address %q is not a hex address", address)
			}
			cfg, err := o.load()
			if err != nil {
				return err
			}
			v := auth.NewValidator([]byte(cfg.API.JWTSecret))
			if v == nil {
				return errors.New("api.jwt_secret is not configured")
			}
			token, err := v.Issue(common.HexToAddress(address), auth.Role(role), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(o.stdout, token)
			return err
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "principal address (token subject)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleAgent), "owner or agent")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("address")
	return cmd
}
