// Package rpc implements the chain collaborators against a JSON-RPC node
// using go-ethereum's ethclient and the compiled Lock contract.
package rpc

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// EthClient is the subset of ethclient.Client the backend uses.
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// RawCaller issues JSON-RPC methods ethclient does not wrap, such as
// evm_increaseTime. *rpc.Client implements it.
type RawCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

var _ RawCaller = (*gethrpc.Client)(nil)

const executionRevertedPrefix = "execution reverted: "

// revertReason extracts the Error(string) reason from a failed call.
//
// Nodes report it two ways: as revert data on an rpc.DataError, or only in
// the message as "execution reverted: <reason>" (older Hardhat versions).
func revertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := decodeRevertData(dataErr.ErrorData()); ok {
			return reason, true
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, executionRevertedPrefix); i >= 0 {
		return strings.TrimSpace(msg[i+len(executionRevertedPrefix):]), true
	}
	return "", false
}

func decodeRevertData(data interface{}) (string, bool) {
	var raw []byte
	switch d := data.(type) {
	case string:
		b, err := hexutil.Decode(d)
		if err != nil {
			b, err = hex.DecodeString(strings.TrimPrefix(d, "0x"))
			if err != nil {
				return "", false
			}
		}
		raw = b
	case []byte:
		raw = d
	default:
		return "", false
	}

	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return "", false
	}
	return reason, true
}
