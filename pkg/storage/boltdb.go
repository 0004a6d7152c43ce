package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/worldgs/gameserver/pkg/coreerr"
	bolt "go.etcd.io/bbolt"
)

// BoltStore is the bbolt-backed Storage Port implementation, the default
// persistence backend for a single shard's data directory.
type BoltStore struct {
	db       *bolt.DB
	dataDir  string
	selector TableSelector
	// known is allocated by NewBoltStore but never read or written: Open
	// creates no buckets, and Write creates each bucket on first use with
	// CreateBucketIfNotExists.
	known map[string]bool
}

// NewBoltStore constructs a BoltStore rooted at dataDir, using selector to
// route ids to buckets. A nil selector defaults to DefaultTableSelector.
func NewBoltStore(dataDir string, selector TableSelector) *BoltStore {
	if selector == nil {
		selector = DefaultTableSelector
	}
	return &BoltStore{dataDir: dataDir, selector: selector, known: make(map[string]bool)}
}

// Open opens (creating if absent) the bbolt database file under dataDir.
func (s *BoltStore) Open(ctx context.Context) error {
	dbPath := filepath.Join(s.dataDir, "worldgs.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return coreerr.StorageFatal(fmt.Sprintf("failed to open database at %s", dbPath), err)
	}
	s.db = db
	return nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) bucketFor(id string) []byte {
	return []byte(s.selector(id))
}

// Read loads the record for id, returning ErrNotFound if the bucket or key
// is absent.
func (s *BoltStore) Read(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucketFor(id))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return data, nil
}

// Write upserts the record for id, creating its bucket on first use.
func (s *BoltStore) Write(ctx context.Context, id string, data []byte) error {
	bucket := s.bucketFor(id)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return coreerr.StorageTransient(fmt.Sprintf("write failed for %s", id), err)
	}
	return nil
}

// Delete removes the record for id. A missing bucket or key is not an
// error.
func (s *BoltStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucketFor(id))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return coreerr.StorageTransient(fmt.Sprintf("delete failed for %s", id), err)
	}
	return nil
}
