// Package store persists the consensus engine's authority-list/interval
// snapshot (spec §4.5, §4.1.2 "Status accepted") across process restarts,
// complementing the WAL: the WAL only covers events within the current
// height, so on a restart after a height has already advanced the engine
// needs this record to know the live authority list without waiting for a
// fresh Status.
package store

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/bftlabs/bftcore/consensus/bft"
	"github.com/bftlabs/bftcore/storage"
)

var snapshotKey = []byte("consensus/bft/snapshot")

// Store adapts a storage.Database into a bft.SnapshotStore.
type Store struct {
	db storage.Database
}

// New constructs a Store backed by db.
func New(db storage.Database) *Store {
	return &Store{db: db}
}

type wireSnapshot struct {
	Height        uint64
	AuthorityList [][]byte
	IntervalMs    uint64
}

// SaveSnapshot persists s, overwriting any previously stored snapshot.
func (s *Store) SaveSnapshot(snap bft.Snapshot) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("consensus/store: uninitialised")
	}
	encoded, err := rlp.EncodeToBytes(wireSnapshot{
		Height:        snap.Height,
		AuthorityList: snap.AuthorityList,
		IntervalMs:    snap.IntervalMs,
	})
	if err != nil {
		return fmt.Errorf("consensus/store: encode snapshot: %w", err)
	}
	return s.db.Put(snapshotKey, encoded)
}

// LoadSnapshot returns the most recently saved snapshot, or ok=false if none
// has ever been written.
func (s *Store) LoadSnapshot() (bft.Snapshot, bool, error) {
	if s == nil || s.db == nil {
		return bft.Snapshot{}, false, fmt.Errorf("consensus/store: uninitialised")
	}
	has, err := s.db.Has(snapshotKey)
	if err != nil {
		return bft.Snapshot{}, false, fmt.Errorf("consensus/store: has: %w", err)
	}
	if !has {
		return bft.Snapshot{}, false, nil
	}
	raw, err := s.db.Get(snapshotKey)
	if err != nil {
		return bft.Snapshot{}, false, fmt.Errorf("consensus/store: get: %w", err)
	}
	var w wireSnapshot
	if err := rlp.DecodeBytes(raw, &w); err != nil {
		return bft.Snapshot{}, false, fmt.Errorf("consensus/store: decode snapshot: %w", err)
	}
	return bft.Snapshot{
		Height:        w.Height,
		AuthorityList: w.AuthorityList,
		IntervalMs:    w.IntervalMs,
	}, true, nil
}
