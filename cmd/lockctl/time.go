package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/chain"
)

func newTimeCmd(a *app) *cobra.Command {
	timeCmd := &cobra.Command{
		Use:   "time",
		Short: "Inspect or move the ledger clock",
	}

	nowCmd := &cobra.Command{
		Use:   "now",
		Short: "Print the latest block time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTime(0)
		},
	}

	increaseCmd := &cobra.Command{
		Use:   "increase <duration>",
		Short: "Advance a development node's clock and mine a block",
		Long: `Advance the clock of a development node (Hardhat, Anvil) with
evm_increaseTime and mine a block so the new time takes effect.

Examples:
  lockctl time increase 8760h --network localhost`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			if err := chain.CheckTimeStep(d); err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			return a.runTime(d)
		},
	}

	timeCmd.AddCommand(nowCmd, increaseCmd)
	return timeCmd
}

func (a *app) runTime(d time.Duration) error {
	ctx := context.Background()

	s, err := a.openSession(ctx, a.network)
	if err != nil {
		return err
	}
	defer s.Close()

	var now time.Time
	if d > 0 {
		now, err = s.backend.IncreaseTime(ctx, d)
	} else {
		now, err = s.backend.Now(ctx)
	}
	if err != nil {
		return err
	}

	if a.jsonOut {
		return printJSON(a.out, map[string]interface{}{
			"network":   s.name,
			"timestamp": now.Unix(),
		})
	}
	fmt.Fprintf(a.out, "%d (%s)\n", now.Unix(), now.UTC().Format(time.RFC3339))
	return nil
}
