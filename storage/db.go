// Package storage provides the key-value backends the engine's durable
// snapshot store is built on: an in-memory map for tests and a LevelDB-backed
// store for production nodes.
package storage

import (
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
)

// Database is a generic key-value store. Swapping backends (in-memory for
// tests, LevelDB for a running node) never touches consensus/store.
type Database interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Close() error
}

// MemDB is an in-memory Database, used by the store and storage tests and
// the demo node's --memory flag.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB constructs an empty in-memory database.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (db *MemDB) Put(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	v, ok := db.data[string(key)]
	if !ok {
		return nil, fmt.Errorf("storage: key not found")
	}
	return append([]byte(nil), v...), nil
}

func (db *MemDB) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.data[string(key)]
	return ok, nil
}

func (db *MemDB) Close() error { return nil }

// LevelDB is a persistent Database backed by goleveldb, used by a running
// bftnode to survive process restarts between WAL recoveries.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (creating if necessary) a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb: %w", err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Put(key, value []byte) error { return l.db.Put(key, value, nil) }

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, fmt.Errorf("storage: key not found")
	}
	return v, err
}

func (l *LevelDB) Has(key []byte) (bool, error) { return l.db.Has(key, nil) }

func (l *LevelDB) Close() error { return l.db.Close() }
