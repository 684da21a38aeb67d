package storekv

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var rootBucket = []byte("livekv")

// BboltEngine is an Engine backed by a single bbolt database file, with
// every key stored in one bucket. bbolt's B+Tree cursor gives byte-wise
// ascending iteration for free, which is exactly what ScanPrefix needs.
type BboltEngine struct {
	db *bolt.DB
}

// OpenBbolt opens (creating if absent) a bbolt database at path and
// ensures the root bucket exists.
func OpenBbolt(path string) (*BboltEngine, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storekv: open bbolt at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storekv: create root bucket: %w", err)
	}

	return &BboltEngine{db: db}, nil
}

func (e *BboltEngine) Put(key, value []byte) error {
	err := e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).Put(key, value)
	})
	if err != nil {
		return fmt.Errorf("%w: put %q: %v", ErrIO, key, err)
	}
	return nil
}

func (e *BboltEngine) Get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(rootBucket).Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %q: %v", ErrIO, key, err)
	}
	return value, value != nil, nil
}

func (e *BboltEngine) ScanPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	err := e.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(rootBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: scan prefix %q: %v", ErrIO, prefix, err)
	}
	return nil
}

func (e *BboltEngine) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("storekv: close bbolt: %w", err)
	}
	return nil
}

func hasPrefix(key, prefix []byte) bool {
	if len(prefix) > len(key) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}
