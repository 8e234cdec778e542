package registry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// storeData is the on-disk layout of a FileStore.
type storeData struct {
	Version int                `json:"version"`
	Records map[string]*Record `json:"records"`
}

// FileStore keeps records in a single JSON file with atomic rewrites.
type FileStore struct {
	mu   sync.RWMutex
	path string
	data *storeData
}

// NewFileStore creates or opens a store at path, creating its directory.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		data: &storeData{
			Version: DefaultStoreVersion,
			Records: make(map[string]*Record),
		},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	var data storeData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	if data.Version > DefaultStoreVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrStoreCorrupted, data.Version)
	}
	if data.Records == nil {
		data.Records = make(map[string]*Record)
	}

	s.data = &data
	return nil
}

// persistLocked writes the store via temp file + rename.
// Must be called with write lock held.
func (s *FileStore) persistLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrStorePersist, err)
	}
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write: %v", ErrStorePersist, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: fsync: %v", ErrStorePersist, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close: %v", ErrStorePersist, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename: %v", ErrStorePersist, err)
	}
	return nil
}

// Path returns the store file path.
func (s *FileStore) Path() string {
	return s.path
}

// Save inserts or replaces rec.
func (s *FileStore) Save(rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := addressKey(rec.Network, common.HexToAddress(rec.Address))
	for id, existing := range s.data.Records {
		if id != rec.ID && addressKey(existing.Network, common.HexToAddress(existing.Address)) == key {
			return fmt.Errorf("%w: %s", ErrExists, rec.Address)
		}
	}

	prev, had := s.data.Records[rec.ID]
	s.data.Records[rec.ID] = copyRecord(rec)
	if err := s.persistLocked(); err != nil {
		if had {
			s.data.Records[rec.ID] = prev
		} else {
			delete(s.data.Records, rec.ID)
		}
		return err
	}
	return nil
}

// Get returns the record with id.
func (s *FileStore) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data.Records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copyRecord(rec), nil
}

// FindByAddress returns the record for a vault address on network.
func (s *FileStore) FindByAddress(network string, address common.Address) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := addressKey(network, address)
	for _, rec := range s.data.Records {
		if addressKey(rec.Network, common.HexToAddress(rec.Address)) == key {
			return copyRecord(rec), nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, address.Hex(), network)
}

// List returns records for network, oldest first. Empty network lists all.
func (s *FileStore) List(network string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Record, 0, len(s.data.Records))
	for _, rec := range s.data.Records {
		if network == "" || rec.Network == network {
			out = append(out, copyRecord(rec))
		}
	}
	sortByID(out)
	return out, nil
}

// MarkReleased records a successful withdrawal.
func (s *FileStore) MarkReleased(id string, txHash common.Hash, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data.Records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	prev := copyRecord(rec)
	release(rec, txHash, at)
	if err := s.persistLocked(); err != nil {
		s.data.Records[id] = prev
		return err
	}
	return nil
}

// Close is a no-op; every write is persisted immediately.
func (s *FileStore) Close() error {
	return nil
}

var _ Store = (*FileStore)(nil)
