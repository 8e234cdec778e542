package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/accounts"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/artifacts"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/chain"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/chain/rpc"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/chain/simulated"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/config"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/registry"
)

var errNoAccounts = errors.New("no accounts configured for network (set MNEMONIC)")

// session is an open connection to one network.
type session struct {
	name    string
	network config.NetworkConfig
	backend chain.Backend
	// keys is nil when the network has no mnemonic; only reads work then.
	keys *accounts.Keyring
}

// account returns the address at derivation index i.
func (s *session) account(i int) (common.Address, error) {
	if s.keys == nil {
		return common.Address{}, errNoAccounts
	}
	acc, err := s.keys.At(i)
	if err != nil {
		return common.Address{}, err
	}
	return acc.Address, nil
}

// recorded reports whether deployments on this network belong in the
// registry. Simulated ledgers do not outlive the process.
func (s *session) recorded() bool {
	return !s.network.Simulated()
}

func (s *session) Close() error {
	return s.backend.Close()
}

// dialSession opens the named network.
func (a *app) dialSession(ctx context.Context, name string) (*session, error) {
	name, netCfg, err := a.cfg.Network(name)
	if err != nil {
		return nil, err
	}
	chainID := big.NewInt(netCfg.ChainID)

	keys, err := keyringFor(netCfg)
	if err != nil {
		return nil, err
	}

	logger := a.logger.With(slog.String("network", name))

	if netCfg.Simulated() {
		if keys == nil {
			return nil, errNoAccounts
		}
		balance, err := parseValue(netCfg.Accounts.Balance)
		if err != nil {
			return nil, fmt.Errorf("parse account balance: %w", err)
		}
		if balance.Sign() == 0 {
			balance = nil
		}
		ledger, err := simulated.New(chainID, simulated.FundedAlloc(keys.Addresses(), balance),
			simulated.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		logger.Debug("started simulated ledger", slog.Int("accounts", len(keys.Addresses())))
		return &session{name: name, network: netCfg, backend: ledger, keys: keys}, nil
	}

	artifact, err := artifacts.Load(a.cfg.Artifacts)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		// Reads and withdrawals do not need the bytecode.
		logger.Debug("no compiled artifact found", slog.String("path", a.cfg.Artifacts))
		artifact = nil
	}

	cfg := rpc.Config{
		ChainID:  chainID,
		Artifact: artifact,
		Logger:   logger,
	}
	if keys != nil {
		cfg.Keys = keys
	}

	backend, err := rpc.Dial(ctx, netCfg.URL, cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("connected", slog.Int64("chain_id", netCfg.ChainID))
	return &session{name: name, network: netCfg, backend: backend, keys: keys}, nil
}

// keyringFor derives the network's accounts. A missing mnemonic yields nil.
func keyringFor(netCfg config.NetworkConfig) (*accounts.Keyring, error) {
	if netCfg.Accounts.Mnemonic == "" {
		return nil, nil
	}
	keys, err := accounts.NewKeyring(
		netCfg.Accounts.Mnemonic,
		netCfg.Accounts.Path,
		netCfg.Accounts.Count,
		big.NewInt(netCfg.ChainID),
	)
	if err != nil {
		return nil, fmt.Errorf("derive accounts: %w", err)
	}
	return keys, nil
}

func (a *app) openRegistry() (registry.Store, error) {
	return registry.Open(a.cfg.Registry.Driver, a.cfg.Registry.Path)
}
