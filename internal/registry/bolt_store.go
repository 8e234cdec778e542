package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.etcd.io/bbolt"
)

var (
	recordsBucket = []byte("records")    // id -> record JSON
	addressBucket = []byte("by_address") // network/address -> id
)

// BoltStore keeps records in a bbolt database.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return fmt.Errorf("create %s bucket: %w", recordsBucket, err)
		}
		if _, err := tx.CreateBucketIfNotExists(addressBucket); err != nil {
			return fmt.Errorf("create %s bucket: %w", addressBucket, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Save inserts or replaces rec.
func (s *BoltStore) Save(rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	key := []byte(addressKey(rec.Network, common.HexToAddress(rec.Address)))

	return s.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		byAddr := tx.Bucket(addressBucket)

		if owner := byAddr.Get(key); owner != nil && string(owner) != rec.ID {
			return fmt.Errorf("%w: %s", ErrExists, rec.Address)
		}

		// A replaced record may have moved address.
		if old := records.Get([]byte(rec.ID)); old != nil {
			var prev Record
			if err := json.Unmarshal(old, &prev); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
			}
			oldKey := []byte(addressKey(prev.Network, common.HexToAddress(prev.Address)))
			if err := byAddr.Delete(oldKey); err != nil {
				return err
			}
		}

		if err := records.Put([]byte(rec.ID), raw); err != nil {
			return fmt.Errorf("%w: %v", ErrStorePersist, err)
		}
		if err := byAddr.Put(key, []byte(rec.ID)); err != nil {
			return fmt.Errorf("%w: %v", ErrStorePersist, err)
		}
		return nil
	})
}

// Get returns the record with id.
func (s *BoltStore) Get(id string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getRecord(tx, id)
		return err
	})
	return rec, err
}

// FindByAddress returns the record for a vault address on network.
func (s *BoltStore) FindByAddress(network string, address common.Address) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(addressBucket).Get([]byte(addressKey(network, address)))
		if id == nil {
			return fmt.Errorf("%w: %s on %s", ErrNotFound, address.Hex(), network)
		}
		var err error
		rec, err = getRecord(tx, string(id))
		return err
	})
	return rec, err
}

// List returns records for network, oldest first. Empty network lists all.
func (s *BoltStore) List(network string) ([]*Record, error) {
	var out []*Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		// Keys are ULIDs, so cursor order is creation order.
		return tx.Bucket(recordsBucket).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
			}
			if network == "" || rec.Network == network {
				out = append(out, &rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkReleased records a successful withdrawal.
func (s *BoltStore) MarkReleased(id string, txHash common.Hash, at time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, id)
		if err != nil {
			return err
		}
		release(rec, txHash, at)

		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		if err := tx.Bucket(recordsBucket).Put([]byte(id), raw); err != nil {
			return fmt.Errorf("%w: %v", ErrStorePersist, err)
		}
		return nil
	})
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func getRecord(tx *bbolt.Tx, id string) (*Record, error) {
	raw := tx.Bucket(recordsBucket).Get([]byte(id))
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	return &rec, nil
}

var _ Store = (*BoltStore)(nil)
