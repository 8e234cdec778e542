package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sebastiantf/hardhat-sample-testnet/internal/pkg/ulid"
)

var (
	vaultAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	ownerAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
)

func newRecord(network string, addr common.Address, deployedAt time.Time) *Record {
	return &Record{
		Network:    network,
		ChainID:    421613,
		Address:    addr.Hex(),
		Owner:      ownerAddr.Hex(),
		UnlockTime: deployedAt.Add(time.Hour),
		Amount:     "1000000000",
		TxHash:     common.HexToHash("0x01").Hex(),
		DeployedAt: deployedAt,
	}
}

// forEachDriver runs fn against a fresh store of every driver.
func forEachDriver(t *testing.T, fn func(t *testing.T, s Store)) {
	drivers := map[string]string{
		"file": "registry.json",
		"bolt": "registry.db",
	}
	for driver, file := range drivers {
		t.Run(driver, func(t *testing.T) {
			s, err := Open(driver, filepath.Join(t.TempDir(), "deployments", file))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		deployed := time.Unix(1_700_000_000, 0).UTC()
		rec := newRecord("arbitrum-goerli", vaultAddr, deployed)
		require.NoError(t, s.Save(rec))

		assert.True(t, ulid.IsValid(rec.ID))
		assert.Equal(t, StatusLocked, rec.Status)

		got, err := s.Get(rec.ID)
		require.NoError(t, err)
		assert.Equal(t, rec.Address, got.Address)
		assert.Equal(t, rec.Owner, got.Owner)
		assert.Equal(t, "1000000000", got.Amount)
		assert.True(t, rec.UnlockTime.Equal(got.UnlockTime))
		assert.Equal(t, StatusLocked, got.Status)
		assert.Nil(t, got.ReleasedAt)

		idTime, err := ulid.Time(rec.ID)
		require.NoError(t, err)
		assert.True(t, deployed.Equal(idTime))
	})
}

func TestStore_GetNotFound(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		_, err := s.Get(ulid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_FindByAddress(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		// Lowercase input is normalised to the checksummed form.
		rec := newRecord("arbitrum-goerli", vaultAddr, time.Now())
		rec.Address = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
		require.NoError(t, s.Save(rec))
		assert.Equal(t, vaultAddr.Hex(), rec.Address)

		got, err := s.FindByAddress("arbitrum-goerli", vaultAddr)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)

		_, err = s.FindByAddress("localhost", vaultAddr)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_SameAddressOtherID(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		require.NoError(t, s.Save(newRecord("localhost", vaultAddr, time.Now())))

		err := s.Save(newRecord("localhost", vaultAddr, time.Now()))
		assert.ErrorIs(t, err, ErrExists)

		// The same address on another network is a different vault.
		assert.NoError(t, s.Save(newRecord("arbitrum-goerli", vaultAddr, time.Now())))
	})
}

func TestStore_SaveReplaces(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		rec := newRecord("localhost", vaultAddr, time.Now())
		require.NoError(t, s.Save(rec))

		rec.Amount = "42"
		require.NoError(t, s.Save(rec))

		got, err := s.Get(rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "42", got.Amount)

		all, err := s.List("")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestStore_List(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		base := time.Unix(1_700_000_000, 0)
		addrs := []common.Address{
			common.HexToAddress("0x0000000000000000000000000000000000000003"),
			common.HexToAddress("0x0000000000000000000000000000000000000001"),
			common.HexToAddress("0x0000000000000000000000000000000000000002"),
		}
		for i, a := range addrs {
			network := "localhost"
			if i == 1 {
				network = "arbitrum-goerli"
			}
			require.NoError(t, s.Save(newRecord(network, a, base.Add(time.Duration(i)*time.Minute))))
		}

		all, err := s.List("")
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i, a := range addrs {
			assert.Equal(t, a.Hex(), all[i].Address, "records should come back oldest first")
		}

		local, err := s.List("localhost")
		require.NoError(t, err)
		require.Len(t, local, 2)
		assert.Equal(t, addrs[0].Hex(), local[0].Address)
		assert.Equal(t, addrs[2].Hex(), local[1].Address)
	})
}

func TestStore_MarkReleased(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		rec := newRecord("localhost", vaultAddr, time.Now())
		require.NoError(t, s.Save(rec))

		at := time.Unix(1_700_003_600, 0).UTC()
		tx := common.HexToHash("0xbeef")
		require.NoError(t, s.MarkReleased(rec.ID, tx, at))

		got, err := s.Get(rec.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusReleased, got.Status)
		assert.Equal(t, tx.Hex(), got.ReleaseTx)
		require.NotNil(t, got.ReleasedAt)
		assert.True(t, at.Equal(*got.ReleasedAt))

		assert.ErrorIs(t, s.MarkReleased(ulid.New(), tx, at), ErrNotFound)
	})
}

func TestStore_InvalidRecord(t *testing.T) {
	forEachDriver(t, func(t *testing.T, s Store) {
		tests := []struct {
			name string
			rec  *Record
		}{
			{"nil", nil},
			{"missing network", &Record{Address: vaultAddr.Hex()}},
			{"bad address", &Record{Network: "localhost", Address: "0x1234"}},
			{"bad id", &Record{ID: "nope", Network: "localhost", Address: vaultAddr.Hex()}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.ErrorIs(t, s.Save(tt.rec), ErrInvalidRecord)
			})
		}
	})
}

func TestFileStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)
	rec := newRecord("localhost", vaultAddr, time.Now())
	require.NoError(t, s.Save(rec))
	require.NoError(t, s.Close())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := reopened.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Address, got.Address)
}

func TestBoltStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	rec := newRecord("localhost", vaultAddr, time.Now())
	require.NoError(t, s.Save(rec))
	require.NoError(t, s.Close())

	reopened, err := NewBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.FindByAddress("localhost", vaultAddr)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
}

func TestFileStore_Corrupted(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", "{not json"},
		{"future version", `{"version": 99, "records": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "registry.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := NewFileStore(path)
			assert.ErrorIs(t, err, ErrStoreCorrupted)
		})
	}
}

func TestFileStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	all, err := s.List("")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("postgres", filepath.Join(t.TempDir(), "x"))
	assert.Error(t, err)
}
