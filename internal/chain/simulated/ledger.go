// Package simulated provides an in-process ledger hosting vault contracts.
//
// It plays the role of a Hardhat network: funded dev accounts, a clock that
// tests move explicitly, serialized transactions, receipts with logs, and
// snapshots for fixture reuse.
package simulated

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/artifacts"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/chain"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/metrics"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/vault"
)

// BackendName labels this ledger in metrics and logs.
const BackendName = "simulated"

// DefaultChainID is the chain ID Hardhat uses for its in-process network.
const DefaultChainID = 31337

// Sentinel errors
var (
	ErrInsufficientFunds = errors.New("simulated: insufficient funds for value transfer")
	ErrUnknownSnapshot   = errors.New("simulated: unknown snapshot")
	ErrUnknownTx         = errors.New("simulated: unknown transaction")
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the ledger clock. The default starts at the current wall time.
func WithClock(c *SimClock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// Ledger is a serialized in-memory ledger. Every transaction runs under one
// lock, so balance transfers and vault transitions commit together.
type Ledger struct {
	mu          sync.Mutex
	chainID     *big.Int
	clock       *SimClock
	logger      *slog.Logger
	lockABI     abi.ABI
	balances    map[common.Address]*big.Int
	nonces      map[common.Address]uint64
	vaults      map[common.Address]*vault.Vault
	receipts    map[common.Hash]*chain.Receipt
	logs        []*types.Log
	blockNumber uint64
	snapshots   map[string]*snapshot
}

// New creates a ledger with the given genesis allocation.
func New(chainID *big.Int, alloc map[common.Address]*big.Int, opts ...Option) (*Ledger, error) {
	lockABI, err := artifacts.Lock()
	if err != nil {
		return nil, fmt.Errorf("parse lock abi: %w", err)
	}

	l := &Ledger{
		chainID:   new(big.Int).Set(chainID),
		lockABI:   lockABI,
		balances:  make(map[common.Address]*big.Int, len(alloc)),
		nonces:    make(map[common.Address]uint64),
		vaults:    make(map[common.Address]*vault.Vault),
		receipts:  make(map[common.Hash]*chain.Receipt),
		snapshots: make(map[string]*snapshot),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.clock == nil {
		l.clock = NewSimClock(time.Now())
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}

	for addr, amount := range alloc {
		l.balances[addr] = new(big.Int).Set(amount)
	}

	return l, nil
}

// ChainID returns the ledger's chain ID.
func (l *Ledger) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.chainID), nil
}

// Clock returns the ledger clock.
func (l *Ledger) Clock() *SimClock {
	return l.clock
}

// Deploy creates a vault funded by req.From.
func (l *Ledger) Deploy(ctx context.Context, req chain.DeployRequest) (*chain.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balanceLocked(req.From).Cmp(value) < 0 {
		return nil, fmt.Errorf("%w: have %s want %s", ErrInsufficientFunds, l.balanceLocked(req.From), value)
	}

	nonce := l.nonces[req.From]
	l.nonces[req.From] = nonce + 1
	l.blockNumber++
	now := l.clock.Now()
	txHash := l.txHash(req.From, nonce)

	v, err := vault.New(req.UnlockTime, value, req.From, now)
	if err != nil {
		l.recordRevertLocked(txHash, req.From, common.Address{}, "deploy", err)
		metrics.ObserveTransaction(BackendName, "deploy", string(chain.StatusReverted), time.Since(start))
		return nil, fmt.Errorf("deploy vault: %w", err)
	}

	addr := crypto.CreateAddress(req.From, nonce)
	l.balances[req.From] = new(big.Int).Sub(l.balances[req.From], value)
	l.balances[addr] = new(big.Int).Set(value)
	l.vaults[addr] = v

	h := &chain.Handle{
		Address:     addr,
		Owner:       req.From,
		UnlockTime:  v.UnlockTime(),
		Value:       new(big.Int).Set(value),
		TxHash:      txHash,
		BlockNumber: l.blockNumber,
		DeployedAt:  now,
	}
	l.receipts[txHash] = &chain.Receipt{
		TxHash:      txHash,
		BlockNumber: l.blockNumber,
		From:        req.From,
		Method:      "deploy",
		Status:      chain.StatusSuccess,
	}

	metrics.ObserveTransaction(BackendName, "deploy", string(chain.StatusSuccess), time.Since(start))
	metrics.ObserveDeployment(BackendName)
	l.logger.Debug("vault deployed",
		slog.String("address", addr.Hex()),
		slog.String("owner", req.From.Hex()),
		slog.Int64("unlock_time", h.UnlockTime.Unix()),
		slog.String("value", value.String()),
	)

	return copyHandle(h), nil
}

// Withdraw sends withdraw() to the vault at h from the given account.
func (l *Ledger) Withdraw(ctx context.Context, h *chain.Handle, from common.Address) (*chain.Receipt, error) {
	if h == nil {
		return nil, chain.ErrNilHandle
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.vaults[h.Address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chain.ErrUnknownContract, h.Address.Hex())
	}

	nonce := l.nonces[from]
	l.nonces[from] = nonce + 1
	l.blockNumber++
	now := l.clock.Now()
	txHash := l.txHash(from, nonce)

	before := v.Snapshot()
	w, err := v.Withdraw(from, now)
	if err != nil {
		receipt := l.recordRevertLocked(txHash, from, h.Address, artifacts.MethodWithdraw, err)
		metrics.ObserveTransaction(BackendName, artifacts.MethodWithdraw, string(chain.StatusReverted), time.Since(start))
		l.logger.Debug("withdraw reverted",
			slog.String("address", h.Address.Hex()),
			slog.String("from", from.Hex()),
			slog.String("reason", receipt.RevertReason),
		)
		return copyReceipt(receipt), fmt.Errorf("withdraw %s: %w", h.Address.Hex(), err)
	}

	log, err := artifacts.EncodeWithdrawalLog(l.lockABI, h.Address, w.Amount, w.When)
	if err != nil {
		l.vaults[h.Address] = vault.Restore(before)
		l.nonces[from] = nonce
		l.blockNumber--
		return nil, fmt.Errorf("encode withdrawal log: %w", err)
	}

	l.balances[h.Address] = new(big.Int).Sub(l.balanceLocked(h.Address), w.Amount)
	l.balances[w.To] = new(big.Int).Add(l.balanceLocked(w.To), w.Amount)
	log.BlockNumber = l.blockNumber
	log.TxHash = txHash
	log.Index = uint(len(l.logs))
	l.logs = append(l.logs, log)

	receipt := &chain.Receipt{
		TxHash:      txHash,
		BlockNumber: l.blockNumber,
		From:        from,
		To:          h.Address,
		Method:      artifacts.MethodWithdraw,
		Status:      chain.StatusSuccess,
		Logs:        []*types.Log{log},
		Withdrawals: []chain.WithdrawalLog{{
			Contract: h.Address,
			Amount:   new(big.Int).Set(w.Amount),
			When:     w.When,
		}},
	}
	l.receipts[txHash] = receipt

	amount, _ := new(big.Float).SetInt(w.Amount).Float64()
	metrics.ObserveTransaction(BackendName, artifacts.MethodWithdraw, string(chain.StatusSuccess), time.Since(start))
	metrics.ObserveRelease(BackendName, amount)
	l.logger.Debug("vault released",
		slog.String("address", h.Address.Hex()),
		slog.String("to", w.To.Hex()),
		slog.String("amount", w.Amount.String()),
	)

	return copyReceipt(receipt), nil
}

// BalanceAt returns the balance of addr.
func (l *Ledger) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(addr)), nil
}

// Now returns the timestamp the next transaction will observe.
func (l *Ledger) Now(ctx context.Context) (time.Time, error) {
	return l.clock.Now(), nil
}

// Owner returns the owner stored in the vault at h.
func (l *Ledger) Owner(ctx context.Context, h *chain.Handle) (common.Address, error) {
	v, err := l.vault(h)
	if err != nil {
		return common.Address{}, err
	}
	return v.Owner(), nil
}

// UnlockTime returns the unlock time stored in the vault at h.
func (l *Ledger) UnlockTime(ctx context.Context, h *chain.Handle) (time.Time, error) {
	v, err := l.vault(h)
	if err != nil {
		return time.Time{}, err
	}
	return v.UnlockTime(), nil
}

// IncreaseTime advances the clock and mines an empty block, like evm_increaseTime + evm_mine.
func (l *Ledger) IncreaseTime(ctx context.Context, d time.Duration) (time.Time, error) {
	if err := chain.CheckTimeStep(d); err != nil {
		return time.Time{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now, err := l.clock.Advance(d)
	if err != nil {
		return time.Time{}, err
	}
	l.blockNumber++
	return now, nil
}


// Receipt returns the receipt of a previously sent transaction.
func (l *Ledger) Receipt(txHash common.Hash) (*chain.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTx, txHash.Hex())
	}
	return copyReceipt(r), nil
}

// Logs returns every log emitted by contract, or all logs for the zero address.
func (l *Ledger) Logs(contract common.Address) []*types.Log {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*types.Log
	for _, lg := range l.logs {
		if contract == (common.Address{}) || lg.Address == contract {
			out = append(out, lg)
		}
	}
	return out
}

// SetBalance overwrites the balance of addr, like hardhat_setBalance.
func (l *Ledger) SetBalance(addr common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] = new(big.Int).Set(amount)
}

// BlockNumber returns the number of the latest block.
func (l *Ledger) BlockNumber() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockNumber
}

// Close is a no-op; the ledger holds no external resources.
func (l *Ledger) Close() error {
	return nil
}

func (l *Ledger) vault(h *chain.Handle) (*vault.Vault, error) {
	if h == nil {
		return nil, chain.ErrNilHandle
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.vaults[h.Address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chain.ErrUnknownContract, h.Address.Hex())
	}
	return v, nil
}

// balanceLocked must be called with l.mu held.
func (l *Ledger) balanceLocked(addr common.Address) *big.Int {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return new(big.Int)
}

// recordRevertLocked stores a reverted receipt. Must be called with l.mu held.
func (l *Ledger) recordRevertLocked(txHash common.Hash, from, to common.Address, method string, err error) *chain.Receipt {
	reason, ok := vault.ReasonOf(err)
	kind := vault.KindUnknown
	if ok {
		kind = vault.KindFromReason(reason)
	} else {
		reason = err.Error()
	}

	receipt := &chain.Receipt{
		TxHash:       txHash,
		BlockNumber:  l.blockNumber,
		From:         from,
		To:           to,
		Method:       method,
		Status:       chain.StatusReverted,
		RevertReason: reason,
	}
	l.receipts[txHash] = receipt
	metrics.ObserveRevert(BackendName, string(kind))
	return receipt
}

// txHash derives a unique transaction hash from sender, nonce and chain.
func (l *Ledger) txHash(from common.Address, nonce uint64) common.Hash {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return crypto.Keccak256Hash(l.chainID.Bytes(), from.Bytes(), n[:])
}

func copyHandle(h *chain.Handle) *chain.Handle {
	cp := *h
	if h.Value != nil {
		cp.Value = new(big.Int).Set(h.Value)
	}
	return &cp
}

func copyReceipt(r *chain.Receipt) *chain.Receipt {
	cp := *r
	cp.Logs = append([]*types.Log(nil), r.Logs...)
	cp.Withdrawals = append([]chain.WithdrawalLog(nil), r.Withdrawals...)
	return &cp
}

var _ chain.Backend = (*Ledger)(nil)

// newSnapshotID returns an identifier for a snapshot.
func newSnapshotID() string {
	return uuid.NewString()
}
