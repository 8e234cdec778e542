// Package vault implements the time-locked vault: a single deposit held for
// one owner until an unlock time, released exactly once.
package vault

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the lifecycle stage of a vault.
type Status string

const (
	StatusLocked   Status = "LOCKED"
	StatusReleased Status = "RELEASED"
)

// Withdrawal is the notification emitted by a successful Withdraw.
type Withdrawal struct {
	To     common.Address
	Amount *big.Int
	When   time.Time
}

// State is a point-in-time copy of a vault.
type State struct {
	Owner      common.Address
	UnlockTime time.Time
	Balance    *big.Int
	Status     Status
}

// Vault holds a fixed deposit for its owner until UnlockTime.
//
// Safe for concurrent use. Each mutating call is one critical section.
type Vault struct {
	mu         sync.Mutex
	owner      common.Address
	unlockTime time.Time
	balance    *big.Int
	released   bool
}

// New creates a vault owned by caller holding deposit until unlockTime.
// now is the ledger time at creation. Both are compared in whole seconds, as
// block timestamps are, and the unlock second must be strictly after now.
func New(unlockTime time.Time, deposit *big.Int, caller common.Address, now time.Time) (*Vault, error) {
	unlockTime = unlockTime.Truncate(time.Second)
	if unlockTime.Unix() <= now.Unix() {
		return nil, NewRevertError(KindInvalidUnlockTime)
	}
	if deposit == nil || deposit.Sign() < 0 {
		return nil, ErrInvalidDeposit
	}

	return &Vault{
		owner:      caller,
		unlockTime: unlockTime,
		balance:    new(big.Int).Set(deposit),
	}, nil
}

// Withdraw releases the whole balance to the owner.
//
// The owner check comes first, so a stranger is rejected with ErrNotOwner no
// matter the time. Only the owner can observe ErrTooEarly.
func (v *Vault) Withdraw(caller common.Address, now time.Time) (*Withdrawal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.owner {
		return nil, NewRevertError(KindNotOwner)
	}
	if now.Before(v.unlockTime) {
		return nil, NewRevertError(KindTooEarly)
	}
	if v.released {
		return nil, NewRevertError(KindAlreadyReleased)
	}

	amount := v.balance
	v.balance = new(big.Int)
	v.released = true

	return &Withdrawal{
		To:     v.owner,
		Amount: amount,
		When:   now,
	}, nil
}

// Owner returns the identity that created the vault.
func (v *Vault) Owner() common.Address {
	return v.owner
}

// UnlockTime returns the time from which withdrawal is permitted.
func (v *Vault) UnlockTime() time.Time {
	return v.unlockTime
}

// Balance returns a copy of the held amount.
func (v *Vault) Balance() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.balance)
}

// Released reports whether the single withdrawal has happened.
func (v *Vault) Released() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.released
}

// Snapshot returns a consistent copy of the vault state.
func (v *Vault) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	status := StatusLocked
	if v.released {
		status = StatusReleased
	}
	return State{
		Owner:      v.owner,
		UnlockTime: v.unlockTime,
		Balance:    new(big.Int).Set(v.balance),
		Status:     status,
	}
}

// Restore rebuilds a vault from a previously taken snapshot.
func Restore(s State) *Vault {
	balance := new(big.Int)
	if s.Balance != nil {
		balance.Set(s.Balance)
	}
	return &Vault{
		owner:      s.Owner,
		unlockTime: s.UnlockTime,
		balance:    balance,
		released:   s.Status == StatusReleased,
	}
}
