package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/ivlev/cruisereel/internal/source"
)

const photoPrefix = "photo:"

// PhotoStore keeps encoded photo blobs in a badger database, keyed by photo id.
type PhotoStore struct {
	db *badgerdb.DB
}

func Open(path string) (*PhotoStore, error) {
	return open(badgerdb.DefaultOptions(path))
}

// OpenInMemory opens a store that is never written to disk.
func OpenInMemory() (*PhotoStore, error) {
	return open(badgerdb.DefaultOptions("").WithInMemory(true))
}

func open(opts badgerdb.Options) (*PhotoStore, error) {
	db, err := badgerdb.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open photo store: %w", err)
	}
	return &PhotoStore{db: db}, nil
}

func (s *PhotoStore) Close() error { return s.db.Close() }

func (s *PhotoStore) Put(ctx context.Context, id string, blob []byte) error {
	if id == "" {
		return errors.New("photo id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(photoPrefix+id), blob)
	})
}

// Get returns a copy of the blob for id, or source.ErrBlobNotFound.
func (s *PhotoStore) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(photoPrefix + id))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, source.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get photo %s: %w", id, err)
	}
	return out, nil
}

func (s *PhotoStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(photoPrefix + id))
	})
}

// IDs lists stored photo ids in key order.
func (s *PhotoStore) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(photoPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			ids = append(ids, string(it.Item().Key()[len(photoPrefix):]))
		}
		return nil
	})
	return ids, err
}
