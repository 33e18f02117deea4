package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketKV = []byte("kv")

// BoltMedium stores every slot in a single bbolt bucket.
type BoltMedium struct {
	db *bolt.DB
}

// NewBoltMedium opens or creates a bbolt database at the given path.
func NewBoltMedium(dbPath string) (*BoltMedium, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucketKV, err)
	}

	return &BoltMedium{db: db}, nil
}

// Close closes the database.
func (m *BoltMedium) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Get reads a value from the kv bucket.
func (m *BoltMedium) Get(key string) (string, bool, error) {
	var (
		val   string
		found bool
	)
	err := m.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketKV).Get([]byte(key))
		if v != nil {
			val = string(v)
			found = true
		}
		return nil
	})
	return val, found, err
}

// Set writes a value to the kv bucket.
func (m *BoltMedium) Set(key, value string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), []byte(value))
	})
}

// Remove deletes a key from the kv bucket.
func (m *BoltMedium) Remove(key string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Delete([]byte(key))
	})
}

// Keys lists the bucket's keys. bbolt iterates in byte order.
func (m *BoltMedium) Keys() ([]string, error) {
	var keys []string
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}
