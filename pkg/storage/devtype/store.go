package devtype

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/nodeos/storaged/pkg/storage/device"
)

var bucketTypes = []byte("device-types")

// Store is a BoltDB-backed device type cache. A nil *Store is valid and
// behaves as an always-empty cache.
type Store struct {
	db *bolt.DB
}

// NewStore opens (or creates) the cache database inside dir.
func NewStore(dir string) (*Store, error) {
	dbPath := filepath.Join(dir, "devtype.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open device type cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTypes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the cached type of the named device, if any.
func (s *Store) Get(name string) (device.Type, bool, error) {
	if s == nil {
		return "", false, nil
	}

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketTypes).Get([]byte(name)); v != nil {
			data = append(data, v...)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if data == nil {
		return "", false, nil
	}

	typ, err := device.ParseType(string(data))
	if err != nil {
		return "", false, fmt.Errorf("corrupt cache entry for '%s': %w", name, err)
	}

	return typ, true, nil
}

// Set stores the type of the named device. No-op on a nil store.
func (s *Store) Set(name string, typ device.Type) error {
	if s == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTypes).Put([]byte(name), []byte(typ.String()))
	})
}

// Close closes the backing database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
