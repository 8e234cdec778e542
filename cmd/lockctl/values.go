package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

// parseValue parses amounts like "1ether", "0.5gwei", "1000000000" into wei.
func parseValue(s string) (*big.Int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "0" {
		return big.NewInt(0), nil
	}

	multiplier := big.NewInt(1)
	switch {
	case strings.HasSuffix(s, "ether"):
		multiplier = big.NewInt(params.Ether)
		s = strings.TrimSuffix(s, "ether")
	case strings.HasSuffix(s, "eth"):
		multiplier = big.NewInt(params.Ether)
		s = strings.TrimSuffix(s, "eth")
	case strings.HasSuffix(s, "gwei"):
		multiplier = big.NewInt(params.GWei)
		s = strings.TrimSuffix(s, "gwei")
	case strings.HasSuffix(s, "wei"):
		s = strings.TrimSuffix(s, "wei")
	}
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount: %s", s)
	}

	// Decimal amounts must resolve to a whole number of wei.
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid number: %s", s)
	}
	r.Mul(r, new(big.Rat).SetInt(multiplier))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %s has more precision than 1 wei", s)
	}
	return new(big.Int).Set(r.Num()), nil
}

// formatEther renders wei as a trimmed decimal ether amount.
func formatEther(wei *big.Int) string {
	if wei == nil {
		return "0 ETH"
	}
	s := new(big.Rat).SetFrac(wei, big.NewInt(params.Ether)).FloatString(18)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s + " ETH"
}
