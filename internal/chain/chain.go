// Package chain defines the ledger collaborators a vault deployment talks to:
// deploying, reading state, sending transactions and moving the clock.
//
// Two backends implement Backend: simulated (in-process) and rpc (a JSON-RPC
// node via go-ethereum). Callers only see these interfaces.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Sentinel errors
var (
	ErrUnknownContract = errors.New("chain: no contract at address")
	ErrNilHandle       = errors.New("chain: contract handle is required")
	ErrInvalidTimeStep = errors.New("chain: time step must be a positive whole number of seconds")
)

// ReceiptStatus is the outcome of a mined transaction.
type ReceiptStatus string

const (
	StatusSuccess  ReceiptStatus = "SUCCESS"
	StatusReverted ReceiptStatus = "REVERTED"
)

// DeployRequest contains the constructor arguments of a vault deployment.
type DeployRequest struct {
	From       common.Address
	UnlockTime time.Time
	Value      *big.Int
}

// Handle references a deployed vault.
type Handle struct {
	Address     common.Address
	Owner       common.Address
	UnlockTime  time.Time
	Value       *big.Int
	TxHash      common.Hash
	BlockNumber uint64
	DeployedAt  time.Time
}

// WithdrawalLog is the decoded Withdrawal(amount, when) event.
type WithdrawalLog struct {
	Contract common.Address
	Amount   *big.Int
	When     time.Time
}

// Receipt describes a transaction sent through a Transactor.
type Receipt struct {
	TxHash       common.Hash
	BlockNumber  uint64
	From         common.Address
	To           common.Address
	Method       string
	Status       ReceiptStatus
	RevertReason string
	Logs         []*types.Log
	Withdrawals  []WithdrawalLog
}

// Succeeded reports whether the transaction was not reverted.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// Deployer creates vault contracts.
type Deployer interface {
	// Deploy creates a vault funded with req.Value and owned by req.From.
	// A non-future unlock time fails with an error matching vault.ErrInvalidUnlockTime.
	Deploy(ctx context.Context, req DeployRequest) (*Handle, error)
}

// Reader answers read-only queries against the ledger.
type Reader interface {
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
	Now(ctx context.Context) (time.Time, error)
	Owner(ctx context.Context, h *Handle) (common.Address, error)
	UnlockTime(ctx context.Context, h *Handle) (time.Time, error)
}

// Transactor sends state-changing calls to a deployed vault.
type Transactor interface {
	// Withdraw sends withdraw() from the given account. A revert returns
	// both the receipt and an error matching the vault sentinel.
	Withdraw(ctx context.Context, h *Handle, from common.Address) (*Receipt, error)
}

// TimeTraveler moves the ledger clock forward. Only development ledgers support it.
// Steps are whole seconds, the resolution of block timestamps.
type TimeTraveler interface {
	IncreaseTime(ctx context.Context, d time.Duration) (time.Time, error)
}

// CheckTimeStep rejects clock steps that are not a positive whole number of seconds.
func CheckTimeStep(d time.Duration) error {
	if d <= 0 || d%time.Second != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeStep, d)
	}
	return nil
}

// Backend is the full set of collaborators.
type Backend interface {
	Deployer
	Reader
	Transactor
	TimeTraveler

	ChainID(ctx context.Context) (*big.Int, error)
	Close() error
}
