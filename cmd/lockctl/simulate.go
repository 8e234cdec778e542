package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/chain"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/metrics"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/vault"
)

var errScenarioFailed = errors.New("scenario did not behave as expected")

func newSimulateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Walk a vault through its full lifecycle",
		Long: `Deploy a vault from account 0, then check every withdrawal rule in order:

  1. the owner withdraws immediately           -> "You can't withdraw yet"
  2. time passes; account 1 withdraws          -> "You aren't the owner"
  3. time passes; the owner withdraws          -> succeeds, vault balance 0
  4. the owner withdraws again                 -> "Nothing to withdraw"

Runs on the in-process ledger by default. Any network supporting
evm_increaseTime (a local Hardhat or Anvil node) works too.

Examples:
  lockctl simulate
  lockctl simulate --lock-for 1h --value 1ether --metrics
  lockctl simulate --network localhost`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSimulate(cmd)
		},
	}

	cmd.Flags().Duration("lock-for", 5*time.Second, "lock duration, also the time advanced before each later step")
	cmd.Flags().String("value", defaultValue, "amount to lock")
	cmd.Flags().Bool("metrics", false, "print Prometheus metrics after the run")
	return cmd
}

func (a *app) runSimulate(cmd *cobra.Command) error {
	ctx := context.Background()

	lockFor, _ := cmd.Flags().GetDuration("lock-for")
	valueStr, _ := cmd.Flags().GetString("value")
	showMetrics, _ := cmd.Flags().GetBool("metrics")

	if err := chain.CheckTimeStep(lockFor); err != nil {
		return fmt.Errorf("invalid lock-for: %w", err)
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

	owner, err := s.account(0)
	if err != nil {
		return err
	}
	stranger, err := s.account(1)
	if err != nil {
		return err
	}

	report, runErr := runScenario(ctx, s.backend, owner, stranger, lockFor, value)
	if report != nil {
		report.Network = s.name
		if a.jsonOut {
			if err := printJSON(a.out, report); err != nil {
				return err
			}
		} else {
			printScenario(a.out, report)
		}
	}

	if showMetrics {
		if err := writeMetrics(a.out); err != nil {
			return err
		}
	}
	return runErr
}

type scenarioStep struct {
	Step     string `json:"step"`
	Account  string `json:"account"`
	Expected string `json:"expected"`
	Outcome  string `json:"outcome"`
	TxHash   string `json:"tx_hash,omitempty"`
	Passed   bool   `json:"passed"`
}

type scenarioReport struct {
	Network      string         `json:"network"`
	Contract     string         `json:"contract"`
	Owner        string         `json:"owner"`
	Stranger     string         `json:"stranger"`
	UnlockTime   int64          `json:"unlock_time"`
	Amount       string         `json:"amount"`
	Steps        []scenarioStep `json:"steps"`
	FinalBalance string         `json:"final_balance"`
}

// Passed reports whether every step matched its expectation.
func (r *scenarioReport) Passed() bool {
	for _, s := range r.Steps {
		if !s.Passed {
			return false
		}
	}
	return len(r.Steps) > 0
}

const outcomeSuccess = "success"

// runScenario drives one vault through the lifecycle against b. It returns
// errScenarioFailed if any step deviates; the report is still returned.
func runScenario(ctx context.Context, b chain.Backend, owner, stranger common.Address, lockFor time.Duration, amount *big.Int) (*scenarioReport, error) {
	h, err := deployVault(ctx, b, owner, lockFor, amount)
	if err != nil {
		return nil, fmt.Errorf("deploy vault: %w", err)
	}

	report := &scenarioReport{
		Contract:   h.Address.Hex(),
		Owner:      owner.Hex(),
		Stranger:   stranger.Hex(),
		UnlockTime: h.UnlockTime.Unix(),
		Amount:     amount.String(),
	}

	attempt := func(step string, from common.Address, want error) error {
		receipt, err := b.Withdraw(ctx, h, from)
		st := scenarioStep{Step: step, Account: from.Hex(), Expected: outcomeSuccess}
		if want != nil {
			st.Expected = vault.NewRevertError(kindOf(want)).Reason
		}
		if receipt != nil && receipt.TxHash != (common.Hash{}) {
			st.TxHash = receipt.TxHash.Hex()
		}

		switch reason, isRevert := vault.ReasonOf(err); {
		case err == nil:
			st.Outcome = outcomeSuccess
			st.Passed = want == nil
		case isRevert:
			st.Outcome = reason
			st.Passed = want != nil && errors.Is(err, want)
		default:
			return err
		}
		report.Steps = append(report.Steps, st)
		return nil
	}

	advance := func() error {
		_, err := b.IncreaseTime(ctx, lockFor)
		return err
	}

	if err := attempt("withdraw before unlock", owner, vault.ErrTooEarly); err != nil {
		return report, err
	}
	if err := advance(); err != nil {
		return report, err
	}
	if err := attempt("withdraw by another account", stranger, vault.ErrNotOwner); err != nil {
		return report, err
	}
	if err := advance(); err != nil {
		return report, err
	}
	if err := attempt("withdraw by owner after unlock", owner, nil); err != nil {
		return report, err
	}
	if err := attempt("withdraw again", owner, vault.ErrAlreadyReleased); err != nil {
		return report, err
	}

	balance, err := b.BalanceAt(ctx, h.Address)
	if err != nil {
		return report, err
	}
	report.FinalBalance = balance.String()

	if !report.Passed() || balance.Sign() != 0 {
		return report, errScenarioFailed
	}
	return report, nil
}

func kindOf(sentinel error) vault.Kind {
	for _, k := range []vault.Kind{
		vault.KindInvalidUnlockTime,
		vault.KindTooEarly,
		vault.KindNotOwner,
		vault.KindAlreadyReleased,
	} {
		if errors.Is(vault.NewRevertError(k), sentinel) {
			return k
		}
	}
	return vault.KindUnknown
}

func printScenario(w io.Writer, r *scenarioReport) {
	fmt.Fprintf(w, "Vault %s on %s\n", colorBold(r.Contract), r.Network)
	fmt.Fprintf(w, "  Owner:    %s\n", r.Owner)
	fmt.Fprintf(w, "  Stranger: %s\n", r.Stranger)
	fmt.Fprintf(w, "  Locked:   %s wei until %d\n\n", r.Amount, r.UnlockTime)

	for i, st := range r.Steps {
		mark := colorGreen("✓")
		if !st.Passed {
			mark = colorRed("✗")
		}
		fmt.Fprintf(w, "%s %d. %s\n", mark, i+1, st.Step)
		fmt.Fprintf(w, "     expected: %s\n", st.Expected)
		fmt.Fprintf(w, "     got:      %s\n", st.Outcome)
	}
	if r.FinalBalance != "" {
		fmt.Fprintf(w, "\n  Final vault balance: %s wei\n", r.FinalBalance)
	}
}

// writeMetrics prints the default registry in Prometheus text format.
func writeMetrics(w io.Writer) error {
	families, err := metrics.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	fmt.Fprintln(w)
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	return nil
}
