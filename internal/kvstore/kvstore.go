// Package kvstore wraps an embedded ordered key-value store (bbolt) with
// named sub-tables, a write-transaction stack that lets nested calls within
// the same repository piggy-back on the outer transaction, and the
// map-size growth-and-retry policy spec.md §4.2 describes.
package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Buckets lists the core sub-tables, one per persisted type. Metadata keys
// such as "init" live in the separate MetaBucket, which is not in this list.
var Buckets = []string{"index", "head", "commit", "tree", "dag", "fndag", "node", "datum", "deleted"}

// MetaBucket holds free-standing metadata keys not tied to a typed object.
const MetaBucket = "meta"

const (
	minMapSize = 128 << 20  // 128 MiB floor
	maxMapSize = 128 << 30  // 128 GiB ceiling
	growFactor = 1.5
)

// Store is the embedded key-value environment for one repository.
type Store struct {
	mu      sync.Mutex
	db      *bolt.DB
	path    string
	mapSize int64

	txMu  sync.Mutex
	stack []*Tx
}

// Open opens (or, if create is set, initializes) the bbolt environment at
// dir/data.mdb, estimating the initial map size from the on-disk file size
// per spec.md §4.2 (floor 128 MiB, ceiling 128 GiB).
func Open(dir string, create bool) (*Store, error) {
	dbFile := filepath.Join(dir, "data.mdb")
	_, statErr := os.Stat(dbFile)
	exists := statErr == nil
	if create && exists {
		return nil, fmt.Errorf("repo exists: %s", dbFile)
	}
	if !create && !exists {
		return nil, fmt.Errorf("repo not found: %s", dbFile)
	}

	mapSize := estimateMapSize(dbFile)
	s := &Store{path: dbFile, mapSize: mapSize}
	if err := s.open(); err != nil {
		return nil, err
	}
	if err := s.ensureBuckets(); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

func estimateMapSize(dbFile string) int64 {
	size := int64(minMapSize)
	if fi, err := os.Stat(dbFile); err == nil {
		est := int64(float64(fi.Size()) * growFactor)
		if est > size {
			size = est
		}
	}
	if size > maxMapSize {
		size = maxMapSize
	}
	return size
}

func (s *Store) open() error {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{
		Timeout:         time.Second,
		InitialMmapSize: int(s.mapSize),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(MetaBucket)); err != nil {
			return err
		}
		for _, b := range Buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
}

// Close closes the underlying environment.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the data file path.
func (s *Store) Path() string { return s.path }

// Copy snapshots the whole environment to dst (used by `repo copy`).
func (s *Store) Copy(dst string) error {
	if err := os.MkdirAll(dst, 0o700); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		f, err := os.Create(filepath.Join(dst, "data.mdb"))
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = tx.WriteTo(f)
		return err
	})
}

// Tx is a handle to a (possibly nested) transaction. Only the outermost Tx
// in the stack owns the real bbolt transaction; nested Tx values share it.
type Tx struct {
	store  *Store
	btx    *bolt.Tx
	write  bool
	nested bool
}

// Begin opens a new transaction, or reuses the current outer one if one is
// already open on this Store (spec.md §4.2: "nested tx() calls within the
// same repository piggy-back on the outer transaction").
func (s *Store) Begin(write bool) (*Tx, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if len(s.stack) > 0 {
		outer := s.stack[len(s.stack)-1]
		if write && !outer.write {
			return nil, errors.New("kvstore: cannot open a write transaction nested inside a read-only one")
		}
		child := &Tx{store: s, btx: outer.btx, write: outer.write, nested: true}
		s.stack = append(s.stack, child)
		return child, nil
	}

	btx, err := s.beginWithGrowthRetry(write)
	if err != nil {
		return nil, err
	}
	root := &Tx{store: s, btx: btx, write: write}
	s.stack = append(s.stack, root)
	return root, nil
}

// beginWithGrowthRetry opens the real bbolt transaction, growing the map
// 1.5x and reopening on a map-full-class error, per spec.md §4.2.
func (s *Store) beginWithGrowthRetry(write bool) (*bolt.Tx, error) {
	btx, err := s.db.Begin(write)
	if err == nil {
		return btx, nil
	}
	if !isMapFull(err) {
		return nil, err
	}
	newSize := int64(float64(s.mapSize) * growFactor)
	if newSize > maxMapSize {
		return nil, fmt.Errorf("kvstore: map size at ceiling (%d bytes): %w", maxMapSize, err)
	}
	s.mapSize = newSize
	if err := s.db.Close(); err != nil {
		return nil, err
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s.db.Begin(write)
}

func isMapFull(err error) bool {
	return errors.Is(err, bolt.ErrDatabaseNotOpen) || errors.Is(err, bolt.ErrTimeout)
}

// Commit finalizes the transaction if this Tx owns the real transaction;
// nested Tx values just unwind the stack.
func (tx *Tx) Commit() error {
	s := tx.store
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.popLocked(tx)
	if tx.nested {
		return nil
	}
	return tx.btx.Commit()
}

// Rollback aborts the transaction if this Tx owns the real transaction.
func (tx *Tx) Rollback() error {
	s := tx.store
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.popLocked(tx)
	if tx.nested {
		return nil
	}
	return tx.btx.Rollback()
}

func (s *Store) popLocked(tx *Tx) {
	if len(s.stack) == 0 || s.stack[len(s.stack)-1] != tx {
		return
	}
	s.stack = s.stack[:len(s.stack)-1]
}

// Get reads key from bucket.
func (tx *Tx) Get(bucket, key string) []byte {
	b := tx.btx.Bucket([]byte(bucket))
	if b == nil {
		return nil
	}
	v := b.Get([]byte(key))
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// Put writes key/value into bucket.
func (tx *Tx) Put(bucket, key string, value []byte) error {
	b := tx.btx.Bucket([]byte(bucket))
	if b == nil {
		return fmt.Errorf("kvstore: unknown bucket %q", bucket)
	}
	return b.Put([]byte(key), value)
}

// Delete removes key from bucket.
func (tx *Tx) Delete(bucket, key string) error {
	b := tx.btx.Bucket([]byte(bucket))
	if b == nil {
		return nil
	}
	return b.Delete([]byte(key))
}

// Keys returns every key in bucket, in lexicographic cursor order.
func (tx *Tx) Keys(bucket string) []string {
	b := tx.btx.Bucket([]byte(bucket))
	if b == nil {
		return nil
	}
	var out []string
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		out = append(out, string(k))
	}
	return out
}
