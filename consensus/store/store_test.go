package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftlabs/bftcore/consensus/bft"
	"github.com/bftlabs/bftcore/consensus/store"
	"github.com/bftlabs/bftcore/storage"
)

func TestLoadSnapshotMissingReturnsNotOK(t *testing.T) {
	s := store.New(storage.NewMemDB())

	_, ok, err := s.LoadSnapshot()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveThenLoadSnapshotRoundTrips(t *testing.T) {
	s := store.New(storage.NewMemDB())

	snap := bft.Snapshot{
		Height:        41,
		AuthorityList: []bft.Address{[]byte("A"), []byte("B"), []byte("C"), []byte("D")},
		IntervalMs:    3000,
	}
	require.NoError(t, s.SaveSnapshot(snap))

	got, ok, err := s.LoadSnapshot()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, snap.Height, got.Height)
	require.Equal(t, snap.IntervalMs, got.IntervalMs)
	require.Len(t, got.AuthorityList, len(snap.AuthorityList))
	for i := range snap.AuthorityList {
		require.Equal(t, []byte(snap.AuthorityList[i]), []byte(got.AuthorityList[i]))
	}
}

func TestSaveSnapshotOverwritesPrevious(t *testing.T) {
	s := store.New(storage.NewMemDB())

	require.NoError(t, s.SaveSnapshot(bft.Snapshot{Height: 1, AuthorityList: []bft.Address{[]byte("A")}, IntervalMs: 1000}))
	require.NoError(t, s.SaveSnapshot(bft.Snapshot{Height: 2, AuthorityList: []bft.Address{[]byte("B")}, IntervalMs: 2000}))

	got, ok, err := s.LoadSnapshot()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), got.Height)
	require.Equal(t, uint64(2000), got.IntervalMs)
}
