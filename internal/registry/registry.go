// Package registry records where vaults have been deployed so later
// commands can find them by address.
package registry

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/pkg/ulid"
)

// Sentinel errors
var (
	ErrNotFound       = errors.New("registry: record not found")
	ErrExists         = errors.New("registry: address already recorded under another id")
	ErrInvalidRecord  = errors.New("registry: invalid record")
	ErrStoreCorrupted = errors.New("registry: store corrupted")
	ErrStorePersist   = errors.New("registry: failed to persist store")
)

// DefaultStoreVersion is the file store format version.
const DefaultStoreVersion = 1

// Status is the recorded lifecycle state of a vault.
type Status string

const (
	StatusLocked   Status = "LOCKED"
	StatusReleased Status = "RELEASED"
)

// Record describes one deployed vault.
type Record struct {
	ID         string     `json:"id"`
	Network    string     `json:"network"`
	ChainID    int64      `json:"chain_id"`
	Address    string     `json:"address"`
	Owner      string     `json:"owner"`
	UnlockTime time.Time  `json:"unlock_time"`
	Amount     string     `json:"amount"`
	TxHash     string     `json:"tx_hash"`
	DeployedAt time.Time  `json:"deployed_at"`
	Status     Status     `json:"status"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	ReleaseTx  string     `json:"release_tx,omitempty"`
}

// Store persists deployment records.
type Store interface {
	// Save inserts or replaces a record. An empty ID is assigned a new one.
	Save(rec *Record) error
	Get(id string) (*Record, error)
	FindByAddress(network string, address common.Address) (*Record, error)
	// List returns records for network, or all records when network is
	// empty, oldest first.
	List(network string) ([]*Record, error)
	MarkReleased(id string, txHash common.Hash, at time.Time) error
	Close() error
}

// prepare validates rec and fills defaults before it is stored.
func prepare(rec *Record) error {
	if rec == nil {
		return ErrInvalidRecord
	}
	if rec.Network == "" {
		return errors.Join(ErrInvalidRecord, errors.New("network is required"))
	}
	if !common.IsHexAddress(rec.Address) {
		return errors.Join(ErrInvalidRecord, errors.New("address is not a hex address"))
	}
	if rec.ID == "" {
		rec.ID = ulid.NewAt(deployedOrNow(rec))
	} else if !ulid.IsValid(rec.ID) {
		return errors.Join(ErrInvalidRecord, errors.New("id is not a ulid"))
	}
	if rec.Status == "" {
		rec.Status = StatusLocked
	}
	rec.Address = common.HexToAddress(rec.Address).Hex()
	return nil
}

func deployedOrNow(rec *Record) time.Time {
	if rec.DeployedAt.IsZero() {
		return time.Now()
	}
	return rec.DeployedAt
}

// addressKey is the lookup key for a vault address on a network.
func addressKey(network string, address common.Address) string {
	return strings.ToLower(network) + "/" + strings.ToLower(address.Hex())
}

func copyRecord(rec *Record) *Record {
	if rec == nil {
		return nil
	}
	cp := *rec
	if rec.ReleasedAt != nil {
		at := *rec.ReleasedAt
		cp.ReleasedAt = &at
	}
	return &cp
}

func sortByID(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}

func release(rec *Record, txHash common.Hash, at time.Time) {
	rec.Status = StatusReleased
	rec.ReleaseTx = txHash.Hex()
	rec.ReleasedAt = &at
}
