package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bftlabs/bftcore/storage"
)

func TestMemDBPutGetHas(t *testing.T) {
	db := storage.NewMemDB()

	_, err := db.Get([]byte("missing"))
	require.Error(t, err)

	has, err := db.Has([]byte("missing"))
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, db.Put([]byte("key"), []byte("value")))

	has, err = db.Has([]byte("key"))
	require.NoError(t, err)
	require.True(t, has)

	got, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
	require.NoError(t, db.Close())
}

func TestLevelDBPutGetHasPersists(t *testing.T) {
	dir := t.TempDir()

	db1, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("key"), []byte("value")))
	require.NoError(t, db1.Close())

	db2, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}
