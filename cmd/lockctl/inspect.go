package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/registry"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <address>",
		Short: "Show a vault's owner, unlock time and balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInspect(args[0])
		},
	}
}

func (a *app) runInspect(addrStr string) error {
	ctx := context.Background()

	if !common.IsHexAddress(addrStr) {
		return fmt.Errorf("invalid address: %s", addrStr)
	}
	addr := common.HexToAddress(addrStr)

	s, err := a.openSession(ctx, a.network)
	if err != nil {
		return err
	}
	defer s.Close()

	info, err := inspectVault(ctx, s.backend, addr)
	if err != nil {
		return err
	}

	if s.recorded() {
		store, err := a.openRegistry()
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.FindByAddress(s.name, addr)
		switch {
		case err == nil:
			info.Status = string(rec.Status)
		case !errors.Is(err, registry.ErrNotFound):
			return err
		}
	}

	if a.jsonOut {
		return printJSON(a.out, info)
	}

	state := colorYellow("LOCKED")
	if info.Unlocked {
		state = colorGreen("UNLOCKED")
	}
	if info.Status == string(registry.StatusReleased) || (info.Unlocked && info.Balance.Sign() == 0) {
		state = "RELEASED"
	}

	fmt.Fprintf(a.out, "Vault %s\n\n", colorBold(info.Address.Hex()))
	fmt.Fprintf(a.out, "  Owner:   %s\n", info.Owner.Hex())
	fmt.Fprintf(a.out, "  Balance: %s\n", formatEther(info.Balance))
	fmt.Fprintf(a.out, "  Unlocks: %s (%d)\n", info.UnlockTime.UTC().Format(time.RFC3339), info.UnlockTime.Unix())
	fmt.Fprintf(a.out, "  State:   %s\n", state)
	if !info.Unlocked {
		fmt.Fprintf(a.out, "  Remaining: %s\n", info.UnlockTime.Sub(info.Now).Round(time.Second))
	}
	return nil
}
