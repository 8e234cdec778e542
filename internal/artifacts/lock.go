package artifacts

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LockABI is the interface of contracts/Lock.sol.
const LockABI = `[
  {"inputs":[{"internalType":"uint256","name":"_unlockTime","type":"uint256"}],"stateMutability":"payable","type":"constructor"},
  {"anonymous":false,"inputs":[{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"when","type":"uint256"}],"name":"Withdrawal","type":"event"},
  {"inputs":[],"name":"owner","outputs":[{"internalType":"address payable","name":"","type":"address"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"unlockTime","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// Lock contract method and event names.
const (
	MethodOwner      = "owner"
	MethodUnlockTime = "unlockTime"
	MethodWithdraw   = "withdraw"
	EventWithdrawal  = "Withdrawal"
)

var (
	lockABIOnce sync.Once
	lockABI     abi.ABI
	lockABIErr  error
)

// Lock returns the parsed LockABI.
func Lock() (abi.ABI, error) {
	lockABIOnce.Do(func() {
		lockABI, lockABIErr = ParseContractABI([]byte(LockABI))
	})
	return lockABI, lockABIErr
}

// PackConstructor returns Lock creation code: bytecode followed by the
// unlock time in whole seconds.
func PackConstructor(contractABI abi.ABI, bytecode []byte, unlockTime time.Time) ([]byte, error) {
	return DeployContractData(bytecode, contractABI, big.NewInt(unlockTime.Unix()))
}

// UnpackOwner decodes the return data of owner().
func UnpackOwner(contractABI abi.ABI, data []byte) (common.Address, error) {
	out, err := contractABI.Unpack(MethodOwner, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack owner: %w", err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("unpack owner: expected 1 value, got %d", len(out))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unpack owner: unexpected type %T", out[0])
	}
	return addr, nil
}

// UnpackUnlockTime decodes the return data of unlockTime().
func UnpackUnlockTime(contractABI abi.ABI, data []byte) (time.Time, error) {
	out, err := contractABI.Unpack(MethodUnlockTime, data)
	if err != nil {
		return time.Time{}, fmt.Errorf("unpack unlockTime: %w", err)
	}
	if len(out) != 1 {
		return time.Time{}, fmt.Errorf("unpack unlockTime: expected 1 value, got %d", len(out))
	}
	ts, ok := out[0].(*big.Int)
	if !ok {
		return time.Time{}, fmt.Errorf("unpack unlockTime: unexpected type %T", out[0])
	}
	return time.Unix(ts.Int64(), 0), nil
}

// WithdrawalEvent is a decoded Withdrawal log.
type WithdrawalEvent struct {
	Contract common.Address
	Amount   *big.Int
	When     time.Time
}

// DecodeWithdrawals extracts Withdrawal events from receipt logs.
// Logs from other events are skipped.
func DecodeWithdrawals(contractABI abi.ABI, logs []*types.Log) ([]WithdrawalEvent, error) {
	event, ok := contractABI.Events[EventWithdrawal]
	if !ok {
		return nil, fmt.Errorf("abi has no %s event", EventWithdrawal)
	}

	var events []WithdrawalEvent
	for _, l := range logs {
		if len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		out, err := contractABI.Unpack(EventWithdrawal, l.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", EventWithdrawal, err)
		}
		if len(out) != 2 {
			return nil, fmt.Errorf("unpack %s: expected 2 values, got %d", EventWithdrawal, len(out))
		}
		amount, _ := out[0].(*big.Int)
		when, _ := out[1].(*big.Int)
		if amount == nil || when == nil {
			return nil, fmt.Errorf("unpack %s: unexpected types", EventWithdrawal)
		}
		events = append(events, WithdrawalEvent{
			Contract: l.Address,
			Amount:   amount,
			When:     time.Unix(when.Int64(), 0),
		})
	}
	return events, nil
}

// EncodeWithdrawalLog builds the log a Withdrawal event produces. Used by
// the simulated ledger so both backends emit identical receipts.
func EncodeWithdrawalLog(contractABI abi.ABI, contract common.Address, amount *big.Int, when time.Time) (*types.Log, error) {
	event, ok := contractABI.Events[EventWithdrawal]
	if !ok {
		return nil, fmt.Errorf("abi has no %s event", EventWithdrawal)
	}
	data, err := event.Inputs.Pack(amount, big.NewInt(when.Unix()))
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", EventWithdrawal, err)
	}
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{event.ID},
		Data:    data,
	}, nil
}
