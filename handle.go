package doclite

import (
	"github.com/rs/zerolog"

	"github.com/cuemby/doclite/internal/collection"
	"github.com/cuemby/doclite/internal/dlog"
	"github.com/cuemby/doclite/internal/kv"
	"github.com/cuemby/doclite/internal/txn"
)

// Handle is an open document store. It is scoped to single-threaded use by
// one caller at a time, matching an embedded, in-process store with no
// façade-level locking of its own; the transaction manager's bookkeeping
// (explicit-transaction slot, pooled reader) assumes callers do not
// interleave operations on a Handle from multiple goroutines.
type Handle struct {
	kv  *kv.Store
	txm *txn.Manager
	log zerolog.Logger
	cfg Config
}

// Open opens (creating if absent) the store rooted at dir.
func Open(dir string, cfg Config) (*Handle, error) {
	cfg.applyLogging()
	log := dlog.WithComponent("doclite")

	store, err := kv.Open(dir, cfg.kvOptions())
	if err != nil {
		return nil, errStorage(err, "open store at %s", dir)
	}
	txm := txn.NewManager(store)

	h := &Handle{kv: store, txm: txm, log: log, cfg: cfg}

	wt, err := txm.GetWriteTxn()
	if err != nil {
		store.Close()
		return nil, errStorage(err, "begin open-time transaction")
	}
	if err := collection.EnsureCatalog(wt.KV); err != nil {
		txm.AbortIfAuto(wt)
		store.Close()
		return nil, errStorage(err, "ensure catalog")
	}
	if err := reconcileAllCounters(wt.KV); err != nil {
		txm.AbortIfAuto(wt)
		store.Close()
		return nil, errStorage(err, "reconcile collection counters")
	}
	if err := txm.CommitIfAuto(wt); err != nil {
		store.Close()
		return nil, errStorage(err, "commit open-time transaction")
	}
	changesCounter = 0

	h.log.Info().Str("dir", dir).Msg("store opened")
	return h, nil
}

// Close releases all resources held by the handle. Any pending explicit
// transaction is rolled back.
func (h *Handle) Close() error {
	h.txm.Close()
	if err := h.kv.Close(); err != nil {
		return errStorage(err, "close store")
	}
	h.log.Info().Msg("store closed")
	return nil
}

// BeginTx starts an explicit multi-statement transaction. Only one may be
// active on a handle at a time; a nested Begin fails with KindInvalidState.
func (h *Handle) BeginTx() error {
	if _, err := h.txm.Begin(); err != nil {
		return errInvalidState("begin transaction: %v", err)
	}
	return nil
}

// Commit commits the active explicit transaction.
func (h *Handle) Commit() error {
	if err := h.txm.Commit(); err != nil {
		return errInvalidState("commit transaction: %v", err)
	}
	return nil
}

// Rollback aborts the active explicit transaction.
func (h *Handle) Rollback() error {
	if err := h.txm.Rollback(); err != nil {
		return errInvalidState("rollback transaction: %v", err)
	}
	return nil
}

// Collection returns a façade scoped to the named collection. The
// collection need not already exist: InsertOne and InsertMany create it on
// first use. The other CRUD operations do not create it and fail with
// KindCollectionNotFound until it exists.
func (h *Handle) Collection(name string) (*Collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}
	return &Collection{h: h, name: name}, nil
}

// ListCollections returns the names of every collection that has been
// created on this handle.
func (h *Handle) ListCollections() ([]string, error) {
	rt, err := h.txm.GetReadTxn()
	if err != nil {
		return nil, errStorage(err, "begin read transaction")
	}
	defer h.txm.CommitIfAuto(rt)

	names, err := collection.List(rt.KV)
	if err != nil {
		return nil, errStorage(err, "list collections")
	}
	return names, nil
}

// DropCollection drops collection name and its documents entirely.
func (h *Handle) DropCollection(name string) error {
	if err := validateCollectionName(name); err != nil {
		return err
	}
	wt, err := h.txm.GetWriteTxn()
	if err != nil {
		return errStorage(err, "begin write transaction")
	}
	if err := collection.Drop(wt.KV, name); err != nil {
		h.txm.AbortIfAuto(wt)
		return errStorage(err, "drop collection %s", name)
	}
	if err := h.txm.CommitIfAuto(wt); err != nil {
		return errStorage(err, "commit drop collection")
	}
	return nil
}

// reconcileAllCounters recomputes every collection's document counter from
// a full scan, repairing any drift left by a non-graceful prior shutdown.
// Counters are otherwise kept exact under the same transaction as each
// insert/delete, so in the common case the scans find nothing to correct
// and no counter is rewritten.
func reconcileAllCounters(t *kv.Txn) error {
	names, err := collection.List(t)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := collection.Reconcile(t, name); err != nil {
			return err
		}
	}
	return nil
}

func validateCollectionName(name string) error {
	if name == "" {
		return errInvalidArgument("collection name must not be empty")
	}
	if name == collection.CatalogStore {
		return errInvalidArgument("collection name %q is reserved", name)
	}
	return nil
}
