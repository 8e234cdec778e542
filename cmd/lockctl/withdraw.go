package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/registry"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/vault"
)

func newWithdrawCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw <address>",
		Short: "Withdraw a vault's deposit to its owner",
		Long: `Withdraw the full deposit of an unlocked vault. Only the owner can withdraw,
only once, and only at or after the unlock time.

Examples:
  lockctl withdraw 0x5FbDB2315678afecb367f032d93F642f64180aa3 --network localhost`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWithdraw(cmd, args[0])
		},
	}
	cmd.Flags().Int("account", 0, "sender account index")
	return cmd
}

func (a *app) runWithdraw(cmd *cobra.Command, addrStr string) error {
	ctx := context.Background()

	if !common.IsHexAddress(addrStr) {
		return fmt.Errorf("invalid address: %s", addrStr)
	}
	addr := common.HexToAddress(addrStr)
	index, _ := cmd.Flags().GetInt("account")

	s, err := a.openSession(ctx, a.network)
	if err != nil {
		return err
	}
	defer s.Close()

	from, err := s.account(index)
	if err != nil {
		return err
	}

	var store registry.Store
	if s.recorded() {
		store, err = a.openRegistry()
		if err != nil {
			return err
		}
		defer store.Close()
	}

	h, rec, err := handleFor(ctx, s.backend, store, s.name, addr)
	if err != nil {
		return err
	}

	receipt, err := s.backend.Withdraw(ctx, h, from)
	if err != nil {
		if reason, ok := vault.ReasonOf(err); ok && a.jsonOut {
			_ = printJSON(a.out, map[string]interface{}{
				"address": addr.Hex(),
				"from":    from.Hex(),
				"status":  "REVERTED",
				"reason":  reason,
			})
		}
		return err
	}

	if rec != nil {
		when := time.Now()
		if len(receipt.Withdrawals) > 0 {
			when = receipt.Withdrawals[0].When
		}
		if err := store.MarkReleased(rec.ID, receipt.TxHash, when); err != nil {
			a.logger.Warn("withdrawal not recorded",
				slog.String("record_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if a.jsonOut {
		out := map[string]interface{}{
			"address": addr.Hex(),
			"from":    from.Hex(),
			"status":  string(receipt.Status),
			"tx_hash": receipt.TxHash.Hex(),
		}
		if len(receipt.Withdrawals) > 0 {
			out["amount"] = receipt.Withdrawals[0].Amount.String()
			out["when"] = receipt.Withdrawals[0].When.Unix()
		}
		return printJSON(a.out, out)
	}

	fmt.Fprintf(a.out, "%s Withdrawn from %s\n\n", colorGreen("✓"), colorBold(addr.Hex()))
	fmt.Fprintf(a.out, "  To:      %s\n", from.Hex())
	for _, w := range receipt.Withdrawals {
		fmt.Fprintf(a.out, "  Amount:  %s\n", formatEther(w.Amount))
		fmt.Fprintf(a.out, "  When:    %d\n", w.When.Unix())
	}
	fmt.Fprintf(a.out, "  TX Hash: %s\n", receipt.TxHash.Hex())
	return nil
}
