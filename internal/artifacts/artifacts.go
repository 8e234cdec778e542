// Package artifacts loads compiled contract artifacts and encodes calls
// against the Lock contract ABI.
package artifacts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultLockArtifactPath is where Hardhat writes the compiled Lock contract.
const DefaultLockArtifactPath = "artifacts/contracts/Lock.sol/Lock.json"

// Sentinel errors
var (
	ErrEmptyBytecode = errors.New("artifacts: artifact has no bytecode")
	ErrMissingABI    = errors.New("artifacts: artifact has no abi")
)

// ContractArtifact represents a compiled Solidity contract with ABI and bytecode.
type ContractArtifact struct {
	ABI              json.RawMessage `json:"abi"`
	Bytecode         Bytecode        `json:"bytecode"`
	DeployedBytecode Bytecode        `json:"deployedBytecode,omitempty"`
	ContractName     string          `json:"contractName,omitempty"`
	SourceName       string          `json:"sourceName,omitempty"`
}

// Bytecode contains the contract bytecode.
// It handles both formats:
// - Simple string: "0x608060..." (Hardhat)
// - Object with "object" field: {"object": "0x608060..."} (Foundry)
type Bytecode struct {
	hex string
}

// UnmarshalJSON handles both string and object bytecode formats.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.hex = s
		return nil
	}

	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		b.hex = obj.Object
		return nil
	}

	return fmt.Errorf("bytecode must be a string or object with 'object' field")
}

// MarshalJSON marshals the bytecode as a string.
func (b Bytecode) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.hex)
}

// String returns the bytecode hex string.
func (b Bytecode) String() string {
	return b.hex
}

// Bytes decodes the bytecode. Foundry omits the 0x prefix in some outputs.
func (b Bytecode) Bytes() ([]byte, error) {
	h := b.hex
	if h == "" || h == "0x" {
		return nil, ErrEmptyBytecode
	}
	if !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	out, err := hexutil.Decode(h)
	if err != nil {
		return nil, fmt.Errorf("decode bytecode: %w", err)
	}
	return out, nil
}

// Load reads and validates an artifact JSON file.
func Load(path string) (*ContractArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return Parse(data)
}

// Parse decodes artifact JSON.
func Parse(data []byte) (*ContractArtifact, error) {
	var a ContractArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	if len(a.ABI) == 0 || string(a.ABI) == "null" {
		return nil, ErrMissingABI
	}
	if _, err := a.Bytecode.Bytes(); err != nil {
		return nil, err
	}
	return &a, nil
}

// ParsedABI returns the artifact ABI in go-ethereum form.
func (a *ContractArtifact) ParsedABI() (abi.ABI, error) {
	return ParseContractABI(a.ABI)
}

// ParseContractABI parses a JSON ABI into go-ethereum's ABI type.
func ParseContractABI(abiJSON json.RawMessage) (abi.ABI, error) {
	return abi.JSON(bytes.NewReader(abiJSON))
}

// EncodeContractCall encodes a contract function call.
func EncodeContractCall(contractABI abi.ABI, method string, args ...interface{}) ([]byte, error) {
	return contractABI.Pack(method, args...)
}

// DeployContractData combines bytecode with the encoded constructor arguments.
func DeployContractData(bytecode []byte, contractABI abi.ABI, constructorArgs ...interface{}) ([]byte, error) {
	data := make([]byte, len(bytecode))
	copy(data, bytecode)

	if len(constructorArgs) > 0 {
		encodedArgs, err := contractABI.Pack("", constructorArgs...)
		if err != nil {
			return nil, fmt.Errorf("encode constructor args: %w", err)
		}
		data = append(data, encodedArgs...)
	}
	return data, nil
}
