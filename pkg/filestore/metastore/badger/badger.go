// Package badger accelerates a storage server's metadata lookups with an
// embedded key-value store, as an alternative to the default
// JSON-on-disk metastore.
package badger

import (
	"encoding/json"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/filegrid/filegrid/pkg/filestore"
)

// Metastore implements filestore.Metastore over a badger database.
type Metastore struct {
	db *badgerdb.DB
}

// Open opens (creating if necessary) a badger database at dir.
// cacheSize bounds the block cache in bytes; zero keeps the driver
// default.
func Open(dir string, cacheSize int64) (*Metastore, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	if cacheSize > 0 {
		opts = opts.WithBlockCacheSize(cacheSize)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Metastore{db: db}, nil
}

// Close releases the underlying database.
func (m *Metastore) Close() error {
	return m.db.Close()
}

func (m *Metastore) Load(path string) (filestore.Metadata, bool, error) {
	var meta filestore.Metadata
	found := false

	err := m.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(path))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		return filestore.Metadata{}, false, err
	}
	return meta, found, nil
}

func (m *Metastore) Save(path string, meta filestore.Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(path), data)
	})
}

func (m *Metastore) Delete(path string) error {
	return m.db.Update(func(txn *badgerdb.Txn) error {
		err := txn.Delete([]byte(path))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		return err
	})
}
