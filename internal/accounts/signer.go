package accounts

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// productionChainIDs lists networks where the well-known test keys must never sign.
var productionChainIDs = map[int64]string{
	1:     "Ethereum Mainnet",
	10:    "Optimism",
	42161: "Arbitrum One",
	137:   "Polygon",
	8453:  "Base",
}

// TransactionSigner signs transactions for a single address.
type TransactionSigner interface {
	Address() common.Address
	ChainID() *big.Int
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// LocalSigner implements TransactionSigner with an in-memory private key.
type LocalSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// NewLocalSigner creates a signer for key on chainID.
func NewLocalSigner(key *ecdsa.PrivateKey, chainID *big.Int) *LocalSigner {
	return &LocalSigner{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		chainID:    new(big.Int).Set(chainID),
	}
}

// Address returns the signer's Ethereum address.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// ChainID returns the chain ID used for EIP-155 signing.
func (s *LocalSigner) ChainID() *big.Int {
	return s.chainID
}

// SignTransaction signs tx with the local key.
func (s *LocalSigner) SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(s.chainID)
	signedTx, err := types.SignTx(tx, signer, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signedTx, nil
}

var _ TransactionSigner = (*LocalSigner)(nil)

// Keyring holds the derived accounts of one network, in derivation order.
//
// Safe for concurrent use after construction.
type Keyring struct {
	accounts []*Account
	byAddr   map[common.Address]*Account
	chainID  *big.Int
}

// NewKeyring derives count accounts and binds them to chainID.
//
// Returns ErrDevKeysOnProduction if mnemonic is DefaultTestMnemonic and
// chainID is a production network.
func NewKeyring(mnemonic, basePath string, count int, chainID *big.Int) (*Keyring, error) {
	if mnemonic == DefaultTestMnemonic {
		if name, isProduction := productionChainIDs[chainID.Int64()]; isProduction {
			return nil, fmt.Errorf("%w: %s (chain_id=%s)", ErrDevKeysOnProduction, name, chainID)
		}
	}

	accs, err := Derive(mnemonic, basePath, count)
	if err != nil {
		return nil, err
	}

	byAddr := make(map[common.Address]*Account, len(accs))
	for _, a := range accs {
		byAddr[a.Address] = a
	}

	return &Keyring{
		accounts: accs,
		byAddr:   byAddr,
		chainID:  new(big.Int).Set(chainID),
	}, nil
}

// Accounts returns the derived accounts in index order.
func (k *Keyring) Accounts() []*Account {
	out := make([]*Account, len(k.accounts))
	copy(out, k.accounts)
	return out
}

// Addresses returns every address in index order.
func (k *Keyring) Addresses() []common.Address {
	addrs := make([]common.Address, 0, len(k.accounts))
	for _, a := range k.accounts {
		addrs = append(addrs, a.Address)
	}
	return addrs
}

// At returns the account at derivation index i.
func (k *Keyring) At(i int) (*Account, error) {
	if i < 0 || i >= len(k.accounts) {
		return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrUnknownAccount, i, len(k.accounts))
	}
	return k.accounts[i], nil
}

// HasKey reports whether the keyring can sign for addr.
func (k *Keyring) HasKey(addr common.Address) bool {
	_, ok := k.byAddr[addr]
	return ok
}

// Signer returns a TransactionSigner for addr.
func (k *Keyring) Signer(addr common.Address) (*LocalSigner, error) {
	a, ok := k.byAddr[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, addr.Hex())
	}
	return NewLocalSigner(a.PrivateKey, k.chainID), nil
}
