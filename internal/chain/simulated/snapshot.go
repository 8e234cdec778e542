package simulated

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/chain"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/vault"
)

// snapshot is a deep copy of ledger state.
type snapshot struct {
	balances    map[common.Address]*big.Int
	nonces      map[common.Address]uint64
	vaults      map[common.Address]vault.State
	receipts    map[common.Hash]*chain.Receipt
	logs        []*types.Log
	blockNumber uint64
	now         time.Time
}

// Snapshot captures the ledger state and returns an ID for Revert,
// like evm_snapshot.
func (l *Ledger) Snapshot() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := &snapshot{
		balances:    make(map[common.Address]*big.Int, len(l.balances)),
		nonces:      make(map[common.Address]uint64, len(l.nonces)),
		vaults:      make(map[common.Address]vault.State, len(l.vaults)),
		receipts:    make(map[common.Hash]*chain.Receipt, len(l.receipts)),
		logs:        append([]*types.Log(nil), l.logs...),
		blockNumber: l.blockNumber,
		now:         l.clock.Now(),
	}
	for addr, b := range l.balances {
		s.balances[addr] = new(big.Int).Set(b)
	}
	for addr, n := range l.nonces {
		s.nonces[addr] = n
	}
	for addr, v := range l.vaults {
		s.vaults[addr] = v.Snapshot()
	}
	for hash, r := range l.receipts {
		s.receipts[hash] = copyReceipt(r)
	}

	id := newSnapshotID()
	l.snapshots[id] = s
	return id
}

// Revert restores the state captured by Snapshot, including the clock, and
// discards the snapshot, like evm_revert. Take a new snapshot to revert again.
func (l *Ledger) Revert(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.snapshots[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSnapshot, id)
	}
	delete(l.snapshots, id)

	l.balances = make(map[common.Address]*big.Int, len(s.balances))
	for addr, b := range s.balances {
		l.balances[addr] = new(big.Int).Set(b)
	}
	l.nonces = make(map[common.Address]uint64, len(s.nonces))
	for addr, n := range s.nonces {
		l.nonces[addr] = n
	}
	l.vaults = make(map[common.Address]*vault.Vault, len(s.vaults))
	for addr, st := range s.vaults {
		l.vaults[addr] = vault.Restore(st)
	}
	l.receipts = make(map[common.Hash]*chain.Receipt, len(s.receipts))
	for hash, r := range s.receipts {
		l.receipts[hash] = copyReceipt(r)
	}
	l.logs = append([]*types.Log(nil), s.logs...)
	l.blockNumber = s.blockNumber

	// The clock only moves forward for callers; a revert resets it directly.
	l.clock.mu.Lock()
	l.clock.now = s.now
	l.clock.mu.Unlock()

	return nil
}
