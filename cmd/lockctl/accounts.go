package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAccountsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts derived for a network",
		Long: `List the HD wallet accounts derived from the network's mnemonic
(m/44'/60'/0'/0/i). With --balances the network is queried for each balance.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			balances, _ := cmd.Flags().GetBool("balances")
			return a.runAccounts(balances)
		},
	}
	cmd.Flags().Bool("balances", false, "query each account's balance")
	return cmd
}

type accountRow struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
	Path    string `json:"path"`
	Balance string `json:"balance,omitempty"`
}

func (a *app) runAccounts(balances bool) error {
	ctx := context.Background()

	name, netCfg, err := a.cfg.Network(a.network)
	if err != nil {
		return err
	}
	keys, err := keyringFor(netCfg)
	if err != nil {
		return err
	}
	if keys == nil {
		return errNoAccounts
	}

	rows := make([]accountRow, 0, len(keys.Accounts()))
	for _, acc := range keys.Accounts() {
		rows = append(rows, accountRow{Index: acc.Index, Address: acc.Address.Hex(), Path: acc.Path})
	}

	if balances {
		s, err := a.openSession(ctx, name)
		if err != nil {
			return err
		}
		defer s.Close()

		for i := range rows {
			acc := keys.Accounts()[i]
			bal, err := s.backend.BalanceAt(ctx, acc.Address)
			if err != nil {
				return err
			}
			rows[i].Balance = bal.String()
		}
	}

	if a.jsonOut {
		return printJSON(a.out, map[string]interface{}{
			"network":  name,
			"accounts": rows,
			"count":    len(rows),
		})
	}

	w := newTable(a.out)
	if balances {
		printTableHeader(w, "INDEX", "ADDRESS", "PATH", "BALANCE (wei)")
	} else {
		printTableHeader(w, "INDEX", "ADDRESS", "PATH")
	}
	for _, r := range rows {
		if balances {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.Index, r.Address, r.Path, r.Balance)
		} else {
			fmt.Fprintf(w, "%d\t%s\t%s\n", r.Index, r.Address, r.Path)
		}
	}
	return w.Flush()
}
