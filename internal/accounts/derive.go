// Package accounts derives the configured signer accounts from a mnemonic
// and signs transactions with them.
package accounts

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cosmos/go-bip39"
	gethaccounts "github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultTestMnemonic is the mnemonic used by Hardhat and Anvil dev nodes.
//
// ⚠️  These keys are PUBLICLY KNOWN. Any funds sent to the derived addresses
// on a real network WILL BE STOLEN.
const DefaultTestMnemonic = "test test test test test test test test test test test junk"

// DefaultBasePath is the Ethereum BIP-44 account path; index i is appended.
const DefaultBasePath = "m/44'/60'/0'/0"

// DefaultCount matches the number of accounts Hardhat exposes.
const DefaultCount = 10

// Sentinel errors
var (
	ErrInvalidMnemonic     = errors.New("accounts: invalid mnemonic")
	ErrInvalidPath         = errors.New("accounts: invalid derivation path")
	ErrInvalidCount        = errors.New("accounts: count must be positive")
	ErrUnknownAccount      = errors.New("accounts: no key for address")
	ErrDevKeysOnProduction = errors.New("accounts: well-known development keys refused on production network")
)

// Account is one derived key.
type Account struct {
	Index      int
	Path       string
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey
}

// Derive returns count accounts at basePath/0 .. basePath/count-1.
func Derive(mnemonic, basePath string, count int) ([]*Account, error) {
	if count <= 0 {
		return nil, ErrInvalidCount
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	if basePath == "" {
		basePath = DefaultBasePath
	}

	base, err := gethaccounts.ParseDerivationPath(basePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}

	seed := bip39.NewSeed(mnemonic, "")
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	// The base path is shared by every account, derive it once.
	parent := master
	for _, idx := range base {
		parent, err = parent.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", basePath, err)
		}
	}

	accs := make([]*Account, 0, count)
	for i := 0; i < count; i++ {
		child, err := parent.Derive(uint32(i))
		if err != nil {
			return nil, fmt.Errorf("derive %s/%d: %w", basePath, i, err)
		}

		priv, err := child.ECPrivKey()
		if err != nil {
			return nil, fmt.Errorf("private key %s/%d: %w", basePath, i, err)
		}
		key := priv.ToECDSA()

		accs = append(accs, &Account{
			Index:      i,
			Path:       fmt.Sprintf("%s/%d", base.String(), i),
			Address:    crypto.PubkeyToAddress(key.PublicKey),
			PrivateKey: key,
		})
	}

	return accs, nil
}
