package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

// Defaults match the Lock fixture: one year, 1 gwei.
const (
	defaultLockFor = 365 * 24 * time.Hour
	defaultValue   = "1gwei"
)

func newDeployCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a vault locking a deposit until an unlock time",
		Long: `Deploy a Lock vault owned by the selected account. The unlock time is the
latest block time plus --unlock-in and must lie in the future.

Deployments on RPC networks are recorded in the registry so withdraw and
inspect can find them later.

Examples:
  lockctl deploy --network localhost --value 0.001ether --unlock-in 60s
  lockctl deploy --network arbitrum-goerli --account 1 --unlock-in 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDeploy(cmd)
		},
	}

	cmd.Flags().Duration("unlock-in", defaultLockFor, "lock duration from the current block time")
	cmd.Flags().String("value", defaultValue, "amount to lock (e.g., 1ether, 0.5gwei, 1000)")
	cmd.Flags().Int("account", 0, "deployer account index")

	return cmd
}

func (a *app) runDeploy(cmd *cobra.Command) error {
	ctx := context.Background()

	lockFor, _ := cmd.Flags().GetDuration("unlock-in")
	valueStr, _ := cmd.Flags().GetString("value")
	index, _ := cmd.Flags().GetInt("account")

	if lockFor%time.Second != 0 {
		return fmt.Errorf("unlock-in must be a whole number of seconds: %s", lockFor)
	}
	value, err := parseValue(valueStr)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}

	s, err := a.openSession(ctx, a.network)
	if err != nil {
		return err
	}
	defer s.Close()

	from, err := s.account(index)
	if err != nil {
		return err
	}

	h, err := deployVault(ctx, s.backend, from, lockFor, value)
	if err != nil {
		return err
	}

	recordID := ""
	if s.recorded() {
		store, err := a.openRegistry()
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := recordDeployment(store, s.name, s.network.ChainID, h)
		if err != nil {
			// The vault exists on chain; surface its address with the error.
			a.logger.Error("deployment not recorded",
				slog.String("address", h.Address.Hex()),
				slog.String("error", err.Error()),
			)
			return err
		}
		recordID = rec.ID
	}

	if a.jsonOut {
		return printJSON(a.out, map[string]interface{}{
			"network":     s.name,
			"address":     h.Address.Hex(),
			"owner":       h.Owner.Hex(),
			"unlock_time": h.UnlockTime.Unix(),
			"value":       h.Value.String(),
			"tx_hash":     h.TxHash.Hex(),
			"record_id":   recordID,
		})
	}

	fmt.Fprintf(a.out, "%s Lock with %s and unlock timestamp %d deployed to %s\n\n",
		colorGreen("✓"), formatEther(h.Value), h.UnlockTime.Unix(), colorBold(h.Address.Hex()))
	fmt.Fprintf(a.out, "  Network: %s\n", s.name)
	fmt.Fprintf(a.out, "  Owner:   %s\n", h.Owner.Hex())
	fmt.Fprintf(a.out, "  Unlocks: %s\n", h.UnlockTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(a.out, "  TX Hash: %s\n", h.TxHash.Hex())
	if recordID != "" {
		fmt.Fprintf(a.out, "  Record:  %s\n", recordID)
	} else {
		fmt.Fprintf(a.out, "\n%s %s is simulated; the vault is discarded when lockctl exits.\n",
			colorYellow("ℹ"), s.name)
	}
	return nil
}
