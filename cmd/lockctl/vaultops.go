package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/chain"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/registry"
)

// vaultInfo is the observable state of one vault.
type vaultInfo struct {
	Address    common.Address `json:"address"`
	Owner      common.Address `json:"owner"`
	UnlockTime time.Time      `json:"unlock_time"`
	Balance    *big.Int       `json:"balance"`
	Now        time.Time      `json:"now"`
	Unlocked   bool           `json:"unlocked"`
	Status     string         `json:"status,omitempty"`
}

// deployVault locks value for lockFor, measured from the ledger clock.
func deployVault(ctx context.Context, b chain.Backend, from common.Address, lockFor time.Duration, value *big.Int) (*chain.Handle, error) {
	now, err := b.Now(ctx)
	if err != nil {
		return nil, err
	}
	return b.Deploy(ctx, chain.DeployRequest{
		From:       from,
		UnlockTime: now.Add(lockFor),
		Value:      value,
	})
}

// inspectVault reads a vault's state from the chain.
func inspectVault(ctx context.Context, b chain.Reader, addr common.Address) (*vaultInfo, error) {
	h := &chain.Handle{Address: addr}

	owner, err := b.Owner(ctx, h)
	if err != nil {
		return nil, err
	}
	unlockTime, err := b.UnlockTime(ctx, h)
	if err != nil {
		return nil, err
	}
	balance, err := b.BalanceAt(ctx, addr)
	if err != nil {
		return nil, err
	}
	now, err := b.Now(ctx)
	if err != nil {
		return nil, err
	}

	return &vaultInfo{
		Address:    addr,
		Owner:      owner,
		UnlockTime: unlockTime,
		Balance:    balance,
		Now:        now,
		Unlocked:   !now.Before(unlockTime),
	}, nil
}

// handleFor builds a handle for addr, preferring the registry record and
// falling back to on-chain reads.
func handleFor(ctx context.Context, b chain.Reader, store registry.Store, network string, addr common.Address) (*chain.Handle, *registry.Record, error) {
	if store != nil {
		rec, err := store.FindByAddress(network, addr)
		switch {
		case err == nil:
			value, _ := new(big.Int).SetString(rec.Amount, 10)
			return &chain.Handle{
				Address:    addr,
				Owner:      common.HexToAddress(rec.Owner),
				UnlockTime: rec.UnlockTime,
				Value:      value,
				TxHash:     common.HexToHash(rec.TxHash),
				DeployedAt: rec.DeployedAt,
			}, rec, nil
		case !errors.Is(err, registry.ErrNotFound):
			return nil, nil, err
		}
	}

	h := &chain.Handle{Address: addr}
	owner, err := b.Owner(ctx, h)
	if err != nil {
		return nil, nil, err
	}
	unlockTime, err := b.UnlockTime(ctx, h)
	if err != nil {
		return nil, nil, err
	}
	h.Owner = owner
	h.UnlockTime = unlockTime
	return h, nil, nil
}

// recordDeployment stores a new vault in the registry.
func recordDeployment(store registry.Store, network string, chainID int64, h *chain.Handle) (*registry.Record, error) {
	rec := &registry.Record{
		Network:    network,
		ChainID:    chainID,
		Address:    h.Address.Hex(),
		Owner:      h.Owner.Hex(),
		UnlockTime: h.UnlockTime,
		Amount:     h.Value.String(),
		TxHash:     h.TxHash.Hex(),
		DeployedAt: h.DeployedAt,
	}
	if err := store.Save(rec); err != nil {
		return nil, fmt.Errorf("record deployment: %w", err)
	}
	return rec, nil
}
