package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/assetguard/pkg/protocol"
)

// deniedExit is the exit status of a check that was denied.
const deniedExit = 3

type checkFlags struct {
	sender string
	target string
	data   string
	value  string
}

type checkOutput struct {
	ID      string   `json:"id"`
	Allowed bool     `json:"allowed"`
	Kind    string   `json:"kind"`
	Family  string   `json:"family,omitempty"`
	Checks  []string `json:"checks"`
	Code    string   `json:"code,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

func newCheckCmd(o *options) *cobra.Command {
	f := &checkFlags{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Decide a call against the configured whitelists without executing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.check(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.sender, "sender", "", "agent address making the call")
	cmd.Flags().StringVar(&f.target, "target", "", "contract being called")
	cmd.Flags().StringVar(&f.data, "data", "", "0x-prefixed calldata")
	cmd.Flags().StringVar(&f.value, "value", "0", "wei attached to the call")
	_ = cmd.MarkFlagRequired("sender")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (o *options) check(ctx context.Context, f *checkFlags) error {
	if !common.IsHexAddress(f.sender) || !common.IsHexAddress(f.target) {
		return fmt.Errorf("--sender and --target must be hex addresses")
	}
	data, err := hexutil.Decode(f.data)
	if err != nil {
		return fmt.Errorf("--data: %w", err)
	}
	value, ok := new(big.Int).SetString(f.value, 0)
	if !ok || value.Sign() < 0 {
		return fmt.Errorf("--value %q is not a non-negative integer", f.value)
	}

	cfg, err := o.load()
	if err != nil {
		return err
	}
	// Offline: nothing is published.
	cfg.Events.Redis = nil
	a, err := buildCore(ctx, cfg, newLogger(o.stderr, "error"))
	if err != nil {
		return err
	}
	defer a.close()

	dec := a.dispatcher.Check(protocol.Call{
		Sender: common.HexToAddress(f.sender),
		Target: common.HexToAddress(f.target),
		Data:   data,
		Value:  value,
	})
	out := checkOutput{
		ID:      dec.ID,
		Allowed: dec.Allowed,
		Kind:    dec.Kind.String(),
		Family:  string(dec.Family),
		Checks:  make([]string, 0, len(dec.Checks)),
	}
	for _, c := range dec.Checks {
		out.Checks = append(out.Checks, c.String())
	}
	if !dec.Allowed {
		out.Code = string(dec.Code())
		out.Reason = dec.Reason.Error()
	}

	enc := json.NewEncoder(o.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if !dec.Allowed {
		return exitCode(deniedExit)
	}
	return nil
}
