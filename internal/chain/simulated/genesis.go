package simulated

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// DefaultAccountBalance is the genesis balance of every dev account (10000 ETH).
var DefaultAccountBalance = new(big.Int).Mul(big.NewInt(10_000), big.NewInt(params.Ether))

// FundedAlloc gives each address the same genesis balance.
// A nil balance uses DefaultAccountBalance.
func FundedAlloc(addrs []common.Address, balance *big.Int) map[common.Address]*big.Int {
	if balance == nil {
		balance = DefaultAccountBalance
	}
	alloc := make(map[common.Address]*big.Int, len(addrs))
	for _, a := range addrs {
		alloc[a] = new(big.Int).Set(balance)
	}
	return alloc
}
