// Package collection maps collection names to their backing sub-store and
// catalog metadata: creation/existence/listing, and the per-collection
// document counter that the façade keeps in lockstep with insert/delete
// under the same transaction as the data mutation.
package collection

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/cuemby/doclite/internal/kv"
)

// CatalogStore is the sub-store name recording collection metadata. It is
// not a valid user collection name (user names are validated by the
// façade not to collide with it).
const CatalogStore = "$catalog"

// Meta is the catalog record for one collection.
type Meta struct {
	Name  string `bson:"name"`
	Count int64  `bson:"count"`
}

// EnsureCatalog creates the catalog sub-store if absent. Called once when
// the handle is opened.
func EnsureCatalog(t *kv.Txn) error {
	return t.CreateSubStore(CatalogStore)
}

// Create creates collection name's sub-store and catalog entry if they do
// not already exist. Idempotent.
func Create(t *kv.Txn, name string) error {
	if err := t.CreateSubStore(name); err != nil {
		return err
	}
	key := []byte(name)
	if _, err := t.Get(CatalogStore, key); err == nil {
		return nil
	} else if err != kv.ErrNotFound {
		return err
	}
	data, err := bson.Marshal(Meta{Name: name, Count: 0})
	if err != nil {
		return err
	}
	return t.Put(CatalogStore, key, data, false)
}

// Drop removes collection name's sub-store and catalog entry.
func Drop(t *kv.Txn, name string) error {
	if err := t.DropSubStore(name); err != nil {
		return err
	}
	return t.Delete(CatalogStore, []byte(name))
}

// Exists reports whether collection name has been created.
func Exists(t *kv.Txn, name string) bool {
	return t.SubStoreExists(name)
}

// List returns every known collection name.
func List(t *kv.Txn) ([]string, error) {
	c, err := t.OpenCursor(CatalogStore)
	if err != nil {
		return nil, err
	}
	var names []string
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		names = append(names, string(k))
	}
	return names, nil
}

func getMeta(t *kv.Txn, name string) (Meta, error) {
	data, err := t.Get(CatalogStore, []byte(name))
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	if err := bson.Unmarshal(data, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Count returns the collection's current document counter.
func Count(t *kv.Txn, name string) (int64, error) {
	m, err := getMeta(t, name)
	if err != nil {
		return 0, err
	}
	return m.Count, nil
}

// AdjustCount applies delta to the collection's document counter, under
// the same transaction as the data mutation that motivated it, so the
// change rolls back together with that mutation on abort.
func AdjustCount(t *kv.Txn, name string, delta int64) error {
	m, err := getMeta(t, name)
	if err != nil {
		return err
	}
	m.Count += delta
	data, err := bson.Marshal(m)
	if err != nil {
		return err
	}
	return t.Put(CatalogStore, []byte(name), data, false)
}

// Reconcile recomputes the counter for name from a full scan of its
// sub-store and persists the corrected value. Used on open to repair a
// counter after a non-graceful shutdown left it inconsistent.
func Reconcile(t *kv.Txn, name string) error {
	c, err := t.OpenCursor(name)
	if err != nil {
		return err
	}
	var n int64
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	m, err := getMeta(t, name)
	if err != nil {
		return err
	}
	if m.Count == n {
		return nil
	}
	m.Count = n
	data, err := bson.Marshal(m)
	if err != nil {
		return err
	}
	return t.Put(CatalogStore, []byte(name), data, false)
}
