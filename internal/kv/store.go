// Package kv adapts go.etcd.io/bbolt to the narrow ordered-key/value-store
// contract the transaction and collection layers are built against: named
// sub-stores, read/write transactions, get/put(no-overwrite)/delete, and a
// byte-lexicographic cursor. Nothing above this package talks to bbolt
// directly.
package kv

import (
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// Mode selects the capability of a transaction.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Options configures an opened Store.
type Options struct {
	// MaxBytes bounds the data file size; zero means unbounded. Checked
	// on write since bbolt itself auto-grows its mmap with no native
	// "store full" signal.
	MaxBytes int64
}

// Store is an opened environment: one directory, one backing file.
type Store struct {
	db   *bolt.DB
	path string
	opts Options
}

// Open opens (creating if absent) the environment directory dir.
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ErrIO
	}
	path := filepath.Join(dir, "data.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, ErrIO
	}
	return &Store{db: db, path: path, opts: opts}, nil
}

// Close closes the environment.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sync flushes durably to disk. force is accepted for contract symmetry;
// bbolt always fsyncs on commit, so force has no additional effect.
func (s *Store) Sync(force bool) error {
	return s.db.Sync()
}

func (s *Store) overQuota() bool {
	if s.opts.MaxBytes <= 0 {
		return false
	}
	fi, err := os.Stat(s.path)
	if err != nil {
		return false
	}
	return fi.Size() >= s.opts.MaxBytes
}

// Begin starts a transaction in the given mode.
func (s *Store) Begin(mode Mode) (*Txn, error) {
	tx, err := s.db.Begin(mode == ModeWrite)
	if err != nil {
		return nil, mapBoltErr(err)
	}
	return &Txn{tx: tx, mode: mode, store: s}, nil
}

// Txn wraps a single bbolt transaction.
type Txn struct {
	tx    *bolt.Tx
	mode  Mode
	store *Store
}

// Writable reports whether the transaction can mutate sub-stores.
func (t *Txn) Writable() bool { return t.mode == ModeWrite }

// Commit commits the transaction. A read-only transaction has nothing to
// persist, so committing one simply releases it (equivalent to Abort).
func (t *Txn) Commit() error {
	if !t.Writable() {
		return mapBoltErr(t.tx.Rollback())
	}
	return mapBoltErr(t.tx.Commit())
}

// Abort rolls back the transaction.
func (t *Txn) Abort() error {
	return mapBoltErr(t.tx.Rollback())
}

// CreateSubStore creates the named sub-store if it does not already exist.
func (t *Txn) CreateSubStore(name string) error {
	_, err := t.tx.CreateBucketIfNotExists([]byte(name))
	return mapBoltErr(err)
}

// DropSubStore removes the named sub-store. Absent sub-stores are a no-op.
func (t *Txn) DropSubStore(name string) error {
	err := t.tx.DeleteBucket([]byte(name))
	if err == bolt.ErrBucketNotFound {
		return nil
	}
	return mapBoltErr(err)
}

// SubStoreExists reports whether the named sub-store exists.
func (t *Txn) SubStoreExists(name string) bool {
	return t.tx.Bucket([]byte(name)) != nil
}

func (t *Txn) bucket(name string) (*bolt.Bucket, error) {
	b := t.tx.Bucket([]byte(name))
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

// Get returns the value for key in sub-store, or ErrNotFound.
func (t *Txn) Get(subStore string, key []byte) ([]byte, error) {
	b, err := t.bucket(subStore)
	if err != nil {
		return nil, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, ErrNotFound
	}
	// bbolt values are only valid for the lifetime of the transaction;
	// copy out so callers can hold onto the bytes past Commit/Abort.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put writes key/value into sub-store. If noOverwrite is set and the key
// already exists, ErrKeyExists is returned and nothing is written.
func (t *Txn) Put(subStore string, key, value []byte, noOverwrite bool) error {
	if !t.Writable() {
		return ErrIO
	}
	if t.store.overQuota() {
		return ErrMapFull
	}
	b, err := t.bucket(subStore)
	if err != nil {
		return err
	}
	if noOverwrite && b.Get(key) != nil {
		return ErrKeyExists
	}
	return mapBoltErr(b.Put(key, value))
}

// Delete removes key from sub-store. A missing key is a non-fatal no-op,
// matching the ordered-KV-store contract.
func (t *Txn) Delete(subStore string, key []byte) error {
	if !t.Writable() {
		return ErrIO
	}
	b, err := t.bucket(subStore)
	if err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}
	return mapBoltErr(b.Delete(key))
}

// Cursor is a forward iterator over a sub-store's entries in
// byte-lexicographic key order.
type Cursor struct {
	c *bolt.Cursor
}

// OpenCursor opens a cursor on the named sub-store.
func (t *Txn) OpenCursor(subStore string) (*Cursor, error) {
	b, err := t.bucket(subStore)
	if err != nil {
		return nil, err
	}
	return &Cursor{c: b.Cursor()}, nil
}

// First seeks to the first entry.
func (c *Cursor) First() (key, value []byte) { return c.c.First() }

// Seek positions the cursor at the first key >= key.
func (c *Cursor) Seek(key []byte) (k, v []byte) { return c.c.Seek(key) }

// Next advances the cursor.
func (c *Cursor) Next() (key, value []byte) { return c.c.Next() }

// Close releases the cursor. bbolt cursors are tied to their transaction
// and need no explicit release; this exists for contract symmetry and
// so callers can defer it uniformly.
func (c *Cursor) Close() error { return nil }

func mapBoltErr(err error) error {
	switch err {
	case nil:
		return nil
	case bolt.ErrBucketNotFound:
		return ErrNotFound
	case bolt.ErrDatabaseNotOpen, bolt.ErrTxClosed, bolt.ErrTxNotWritable:
		return ErrIO
	case bolt.ErrValueTooLarge, bolt.ErrKeyTooLarge:
		return ErrMapFull
	case bolt.ErrBucketExists:
		return ErrKeyExists
	default:
		return ErrIO
	}
}
