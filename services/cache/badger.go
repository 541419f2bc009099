package cache

import (
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerService implements CacheService using an embedded badger store,
// so cached listings survive restarts without an external daemon.
type BadgerService struct {
	db *badger.DB
}

// NewBadgerService opens (or creates) a badger store at dir
func NewBadgerService(dir string) (*BadgerService, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerService{db: db}, nil
}

// Get retrieves a value from the store
func (b *BadgerService) Get(key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value with an expiration time; zero expiration never expires
func (b *BadgerService) Set(key string, value []byte, expiration time.Duration) error {
	return b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if expiration > 0 {
			entry = entry.WithTTL(expiration)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes a value from the store
func (b *BadgerService) Delete(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Clear removes all values from the store
func (b *BadgerService) Clear() error {
	return b.db.DropAll()
}

// Close releases the store
func (b *BadgerService) Close() error {
	return b.db.Close()
}
