package client

import (
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var snapshotBucket = []byte("snapshots")

// Cache keeps the latest known snapshot per document in a local bbolt file,
// so an agent can show something meaningful while disconnected and survive
// restarts without a server round-trip.
type Cache struct {
	db *bolt.DB
}

func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache %s: %w", path, err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Put(docID, content string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put([]byte(docID), []byte(content))
	})
}

func (c *Cache) Get(docID string) (string, bool, error) {
	var content string
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(snapshotBucket).Get([]byte(docID)); v != nil {
			content = string(v)
			found = true
		}
		return nil
	})
	return content, found, err
}

func (c *Cache) Close() error { return c.db.Close() }
