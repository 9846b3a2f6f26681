package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/cirrus/pkg/types"
)

var (
	// Bucket names
	bucketPricing = []byte("pricing")
)

// BoltStore implements PricingStore using BoltDB, one key per provider
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the BoltDB database at path
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketPricing); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketPricing, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Load reads every provider's entries
func (s *BoltStore) Load() (PricingFile, error) {
	f := PricingFile{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPricing)
		return b.ForEach(func(k, v []byte) error {
			provider := types.Provider(k)
			entries, err := decodeProvider(provider, v)
			if err != nil {
				return err
			}
			mts, err := decodeEntries(provider, entries)
			if err != nil {
				return err
			}
			f[provider] = mts
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Save replaces one provider's entries in a single transaction
func (s *BoltStore) Save(provider types.Provider, machineTypes []types.MachineType) error {
	data, err := json.Marshal(encodeEntries(machineTypes))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPricing)
		return b.Put([]byte(provider), data)
	})
}
