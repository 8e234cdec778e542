// Command lockctl deploys and operates time-locked vaults on a simulated
// in-process ledger or any Ethereum JSON-RPC node.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/config"
)

const version = "0.1.0"

// app carries state shared by every subcommand.
type app struct {
	out    io.Writer
	cfg    *config.Config
	logger *slog.Logger

	// Global flags
	configFile string
	network    string
	logFormat  string
	verbose    bool
	jsonOut    bool

	// openSession is replaced in tests.
	openSession func(ctx context.Context, network string) (*session, error)
}

func newApp(out io.Writer) *app {
	a := &app{out: out}
	a.openSession = a.dialSession
	return a
}

func newRootCmd(out io.Writer) *cobra.Command {
	return newApp(out).rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lockctl",
		Short: "Deploy and operate time-locked vaults",
		Long: `lockctl manages Lock vaults: contracts that hold a deposit until an unlock
time, after which only the deploying account can withdraw it, exactly once.

Networks come from lockctl.yaml (or LOCKCTL_* environment variables). The
built-in "hardhat" network is an in-process simulated ledger funded from the
test mnemonic; every other network is reached over JSON-RPC.

Examples:
  # Run the lock/withdraw walkthrough on the simulated ledger
  lockctl simulate

  # Deploy to a local Hardhat or Anvil node, locking 1 ether for a day
  lockctl deploy --network localhost --value 1ether --unlock-in 24h

  # Withdraw once unlocked
  lockctl withdraw 0x5FbDB2315678afecb367f032d93F642f64180aa3 --network localhost`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: ./lockctl.yaml)")
	rootCmd.PersistentFlags().StringVarP(&a.network, "network", "n", "", "network name (default: config default_network)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "output JSON")

	rootCmd.AddCommand(
		newAccountsCmd(a),
		newDeployCmd(a),
		newInspectCmd(a),
		newWithdrawCmd(a),
		newTimeCmd(a),
		newSimulateCmd(a),
		newNetworksCmd(a),
	)

	rootCmd.SetOut(a.out)
	rootCmd.SetErr(os.Stderr)

	return rootCmd
}

// setup loads configuration and builds the logger.
func (a *app) setup() error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := parseLevel(cfg.Log.Level)
	if a.verbose || os.Getenv("DEBUG") == "true" {
		level = slog.LevelDebug
	}
	format := cfg.Log.Format
	if a.logFormat != "" {
		format = a.logFormat
	}

	a.logger = newLogger(os.Stderr, format, level)
	slog.SetDefault(a.logger)

	a.logger.Debug("configuration loaded",
		slog.String("default_network", cfg.DefaultNetwork),
		slog.String("registry_driver", cfg.Registry.Driver),
	)
	return nil
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
