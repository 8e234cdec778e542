package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

func newNetworksCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List configured networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runNetworks()
		},
	}
}

type networkRow struct {
	Name     string `json:"name"`
	ChainID  int64  `json:"chain_id"`
	Endpoint string `json:"endpoint"`
	Accounts int    `json:"accounts"`
	Default  bool   `json:"default"`
}

func (a *app) runNetworks() error {
	rows := make([]networkRow, 0, len(a.cfg.Networks))
	for _, name := range a.cfg.NetworkNames() {
		n := a.cfg.Networks[name]
		accounts := 0
		if n.Accounts.Mnemonic != "" {
			accounts = n.Accounts.Count
		}
		rows = append(rows, networkRow{
			Name:     name,
			ChainID:  n.ChainID,
			Endpoint: redactEndpoint(n.URL),
			Accounts: accounts,
			Default:  name == a.cfg.DefaultNetwork,
		})
	}

	if a.jsonOut {
		return printJSON(a.out, map[string]interface{}{"networks": rows})
	}

	w := newTable(a.out)
	printTableHeader(w, "NAME", "CHAIN ID", "ENDPOINT", "ACCOUNTS")
	for _, r := range rows {
		name := r.Name
		if r.Default {
			name += " *"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\n", name, r.ChainID, r.Endpoint, r.Accounts)
	}
	return w.Flush()
}

// redactEndpoint hides URL paths and queries, which often carry API keys.
func redactEndpoint(raw string) string {
	if raw == "" {
		return "simulated"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(invalid url)"
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
		return u.Scheme + "://" + u.Host + "/…"
	}
	return u.Scheme + "://" + u.Host
}
