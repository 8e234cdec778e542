package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/accounts"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/artifacts"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/chain"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/metrics"
	"github.com/sebastiantf/hardhat-sample-testnet/internal/vault"
)

// BackendName labels this backend in metrics and logs.
const BackendName = "rpc"

// Sentinel errors
var (
	ErrChainIDMismatch = errors.New("rpc: chain ID mismatch")
	ErrNoArtifact      = errors.New("rpc: no compiled Lock artifact configured")
	ErrNoSigner        = errors.New("rpc: no signer configured")
	ErrReceiptTimeout  = errors.New("rpc: timed out waiting for receipt")
)

// Defaults for receipt polling.
const (
	DefaultReceiptTimeout = 5 * time.Minute
	DefaultPollInterval   = 2 * time.Second
	gasBufferPercent      = 120
)

// KeySource returns signers for the configured accounts. *accounts.Keyring implements it.
type KeySource interface {
	Signer(addr common.Address) (*accounts.LocalSigner, error)
}

// Config configures a Backend.
type Config struct {
	// ChainID is the expected chain ID. Nil skips the check.
	ChainID *big.Int
	// Artifact is the compiled Lock contract. Required only for Deploy.
	Artifact *artifacts.ContractArtifact
	// Keys signs transactions. Required only for Deploy and Withdraw.
	Keys KeySource

	Logger         *slog.Logger
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// Backend implements chain.Backend over JSON-RPC.
type Backend struct {
	client  EthClient
	raw     RawCaller
	chainID *big.Int
	lockABI abi.ABI
	cfg     Config
	logger  *slog.Logger
}

// Dial connects to url and verifies the chain ID.
func Dial(ctx context.Context, url string, cfg Config) (*Backend, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}

	b, err := New(ctx, client, client.Client(), cfg)
	if err != nil {
		client.Close()
		return nil, err
	}
	return b, nil
}

// New wraps an existing client. raw may be nil if time travel is not needed.
func New(ctx context.Context, client EthClient, raw RawCaller, cfg Config) (*Backend, error) {
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = DefaultReceiptTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lockABI, err := artifacts.Lock()
	if err != nil {
		return nil, fmt.Errorf("parse lock abi: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain ID: %w", err)
	}
	if cfg.ChainID != nil && chainID.Cmp(cfg.ChainID) != 0 {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrChainIDMismatch, cfg.ChainID, chainID)
	}

	return &Backend{
		client:  client,
		raw:     raw,
		chainID: chainID,
		lockABI: lockABI,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// ChainID returns the chain ID reported by the node at connect time.
func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

// Deploy creates a Lock contract funded with req.Value.
func (b *Backend) Deploy(ctx context.Context, req chain.DeployRequest) (*chain.Handle, error) {
	if b.cfg.Artifact == nil {
		return nil, ErrNoArtifact
	}
	start := time.Now()

	bytecode, err := b.cfg.Artifact.Bytecode.Bytes()
	if err != nil {
		return nil, fmt.Errorf("get bytecode: %w", err)
	}
	unlockTime := req.UnlockTime.Truncate(time.Second)
	data, err := artifacts.PackConstructor(b.lockABI, bytecode, unlockTime)
	if err != nil {
		return nil, err
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	receipt, err := b.transact(ctx, req.From, nil, value, data, "deploy")
	if err != nil {
		metrics.ObserveTransaction(BackendName, "deploy", string(chain.StatusReverted), time.Since(start))
		return nil, fmt.Errorf("deploy vault: %w", err)
	}
	metrics.ObserveTransaction(BackendName, "deploy", string(chain.StatusSuccess), time.Since(start))
	metrics.ObserveDeployment(BackendName)

	deployedAt := time.Now()
	if header, err := b.client.HeaderByNumber(ctx, receipt.BlockNumber); err == nil {
		deployedAt = time.Unix(int64(header.Time), 0)
	}

	b.logger.Info("vault deployed",
		slog.String("address", receipt.ContractAddress.Hex()),
		slog.String("tx_hash", receipt.TxHash.Hex()),
		slog.String("owner", req.From.Hex()),
	)

	return &chain.Handle{
		Address:     receipt.ContractAddress,
		Owner:       req.From,
		UnlockTime:  unlockTime,
		Value:       new(big.Int).Set(value),
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		DeployedAt:  deployedAt,
	}, nil
}

// Withdraw calls withdraw() from the given account.
//
// The call is simulated first; a revert found there is returned without
// broadcasting, with a receipt carrying the reason and a zero TxHash.
func (b *Backend) Withdraw(ctx context.Context, h *chain.Handle, from common.Address) (*chain.Receipt, error) {
	if h == nil {
		return nil, chain.ErrNilHandle
	}
	start := time.Now()

	data, err := artifacts.EncodeContractCall(b.lockABI, artifacts.MethodWithdraw)
	if err != nil {
		return nil, fmt.Errorf("encode withdraw: %w", err)
	}

	to := h.Address
	receipt, err := b.transact(ctx, from, &to, new(big.Int), data, artifacts.MethodWithdraw)
	if err != nil {
		var revert *vault.RevertError
		if errors.As(err, &revert) {
			metrics.ObserveTransaction(BackendName, artifacts.MethodWithdraw, string(chain.StatusReverted), time.Since(start))
			out := &chain.Receipt{
				From:         from,
				To:           h.Address,
				Method:       artifacts.MethodWithdraw,
				Status:       chain.StatusReverted,
				RevertReason: revert.Reason,
			}
			if receipt != nil {
				out.TxHash = receipt.TxHash
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			return out, fmt.Errorf("withdraw %s: %w", h.Address.Hex(), err)
		}
		return nil, fmt.Errorf("withdraw %s: %w", h.Address.Hex(), err)
	}
	metrics.ObserveTransaction(BackendName, artifacts.MethodWithdraw, string(chain.StatusSuccess), time.Since(start))

	events, err := artifacts.DecodeWithdrawals(b.lockABI, receipt.Logs)
	if err != nil {
		return nil, fmt.Errorf("decode withdrawal logs: %w", err)
	}

	out := &chain.Receipt{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		From:        from,
		To:          h.Address,
		Method:      artifacts.MethodWithdraw,
		Status:      chain.StatusSuccess,
		Logs:        receipt.Logs,
	}
	for _, ev := range events {
		out.Withdrawals = append(out.Withdrawals, chain.WithdrawalLog{
			Contract: ev.Contract,
			Amount:   ev.Amount,
			When:     ev.When,
		})
		amount, _ := new(big.Float).SetInt(ev.Amount).Float64()
		metrics.ObserveRelease(BackendName, amount)
	}

	b.logger.Info("vault released",
		slog.String("address", h.Address.Hex()),
		slog.String("tx_hash", receipt.TxHash.Hex()),
	)
	return out, nil
}

// BalanceAt returns the latest balance of addr.
func (b *Backend) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := b.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return bal, nil
}

// Now returns the timestamp of the latest block.
func (b *Backend) Now(ctx context.Context) (time.Time, error) {
	header, err := b.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("get latest header: %w", err)
	}
	return time.Unix(int64(header.Time), 0), nil
}

// Owner reads owner() from the contract.
func (b *Backend) Owner(ctx context.Context, h *chain.Handle) (common.Address, error) {
	out, err := b.view(ctx, h, artifacts.MethodOwner)
	if err != nil {
		return common.Address{}, err
	}
	return artifacts.UnpackOwner(b.lockABI, out)
}

// UnlockTime reads unlockTime() from the contract.
func (b *Backend) UnlockTime(ctx context.Context, h *chain.Handle) (time.Time, error) {
	out, err := b.view(ctx, h, artifacts.MethodUnlockTime)
	if err != nil {
		return time.Time{}, err
	}
	return artifacts.UnpackUnlockTime(b.lockABI, out)
}

// IncreaseTime advances a development node's clock and mines a block.
func (b *Backend) IncreaseTime(ctx context.Context, d time.Duration) (time.Time, error) {
	if err := chain.CheckTimeStep(d); err != nil {
		return time.Time{}, err
	}
	if b.raw == nil {
		return time.Time{}, fmt.Errorf("time travel not supported by this client")
	}
	var ignored interface{}
	if err := b.raw.CallContext(ctx, &ignored, "evm_increaseTime", int64(d/time.Second)); err != nil {
		return time.Time{}, fmt.Errorf("evm_increaseTime: %w", err)
	}
	if err := b.raw.CallContext(ctx, &ignored, "evm_mine"); err != nil {
		return time.Time{}, fmt.Errorf("evm_mine: %w", err)
	}
	return b.Now(ctx)
}

// Close releases the underlying connection.
func (b *Backend) Close() error {
	b.client.Close()
	return nil
}

func (b *Backend) view(ctx context.Context, h *chain.Handle, method string) ([]byte, error) {
	if h == nil {
		return nil, chain.ErrNilHandle
	}
	data, err := artifacts.EncodeContractCall(b.lockABI, method)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	to := h.Address
	out, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", chain.ErrUnknownContract, h.Address.Hex())
	}
	return out, nil
}

// transact simulates, signs, sends and waits for a transaction. to == nil
// creates a contract. A revert, simulated or mined, is returned as a
// *vault.RevertError; the mined receipt accompanies a mined revert.
func (b *Backend) transact(
	ctx context.Context,
	from common.Address,
	to *common.Address,
	value *big.Int,
	data []byte,
	method string,
) (*types.Receipt, error) {
	if b.cfg.Keys == nil {
		return nil, ErrNoSigner
	}
	signer, err := b.cfg.Keys.Signer(from)
	if err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{From: from, To: to, Value: value, Data: data}

	// Gas estimation executes the call; a revert surfaces here with its reason.
	gasLimit, err := b.client.EstimateGas(ctx, msg)
	if err != nil {
		if reason, ok := revertReason(err); ok {
			metrics.ObserveRevert(BackendName, string(vault.KindFromReason(reason)))
			return nil, vault.RevertFromReason(reason)
		}
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit = gasLimit * gasBufferPercent / 100

	nonce, err := b.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}

	var tx *types.Transaction
	if to == nil {
		tx = types.NewContractCreation(nonce, value, gasLimit, gasPrice, data)
	} else {
		tx = types.NewTransaction(nonce, *to, value, gasLimit, gasPrice, data)
	}

	signedTx, err := signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("sending transaction",
		slog.String("method", method),
		slog.String("from", from.Hex()),
		slog.String("tx_hash", signedTx.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", gasLimit),
	)

	if err := b.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	receipt, err := b.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		// The reason is not part of the receipt; replay the call at the
		// mined block to recover it.
		reason := "transaction reverted"
		if _, callErr := b.client.CallContract(ctx, msg, receipt.BlockNumber); callErr != nil {
			if r, ok := revertReason(callErr); ok {
				reason = r
			}
		}
		metrics.ObserveRevert(BackendName, string(vault.KindFromReason(reason)))
		return receipt, vault.RevertFromReason(reason)
	}
	return receipt, nil
}

// waitForReceipt polls for a transaction receipt until it appears, the
// receipt timeout elapses or the caller's context ends.
func (b *Backend) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, b.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, txHash.Hex())
		case <-ticker.C:
			receipt, err := b.client.TransactionReceipt(waitCtx, txHash)
			switch {
			case err == nil:
				return receipt, nil
			case errors.Is(err, ethereum.NotFound):
				// Not mined yet
				continue
			case waitCtx.Err() != nil:
				// Reported by the select on the next pass.
				continue
			default:
				return nil, fmt.Errorf("get receipt %s: %w", txHash.Hex(), err)
			}
		}
	}
}

var _ chain.Backend = (*Backend)(nil)
