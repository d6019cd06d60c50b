// Package cache memoizes transcription results keyed by chunk audio
// content, so identical audio (loops, jingles, repeated chimes) is not
// re-transcribed.
package cache

import (
	"crypto/sha256"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// Cache is a persistent content-addressed store of WAV bytes → text.
type Cache struct {
	db *badger.DB
}

// Open opens (or creates) the cache database in dir.
func Open(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get returns the cached transcription for the given audio, if any.
func (c *Cache) Get(wav []byte) (string, bool) {
	var text string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(wav))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			text = string(val)
			return nil
		})
	})
	if err != nil {
		// Any read failure, not just ErrKeyNotFound, costs only a miss.
		return "", false
	}
	return text, true
}

// Put stores the transcription for the given audio.
func (c *Cache) Put(wav []byte, text string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(wav), []byte(text))
	})
	if err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func key(wav []byte) []byte {
	sum := sha256.Sum256(wav)
	return sum[:]
}
