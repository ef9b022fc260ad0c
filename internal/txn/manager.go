// Package txn multiplexes explicit multi-statement transactions and
// auto-commit single-operation transactions over a single handle, per the
// transaction-manager contract: one explicit write transaction at a time,
// a size-1 pooled reader for auto-commit reads, and a write-invalidates-
// readers protocol so a pooled reader never outlives a commit it didn't see.
package txn

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/doclite/internal/kv"
	"github.com/cuemby/doclite/internal/metrics"
)

// Sentinel errors for invalid-state conditions, mapped to doclite.Kind at
// the façade boundary.
var (
	ErrAlreadyActive = errors.New("txn: explicit transaction already active")
	ErrNoActive      = errors.New("txn: no explicit transaction active")
)

// Txn is a handle to an underlying kv.Txn plus bookkeeping the manager
// needs to decide how to release it.
type Txn struct {
	KV   *kv.Txn
	ID   uuid.UUID
	mode kv.Mode
	auto bool
}

// Mode reports the capability of the transaction.
func (t *Txn) Mode() kv.Mode { return t.mode }

// Manager multiplexes explicit and auto-commit transactions over store.
type Manager struct {
	mu           sync.Mutex
	store        *kv.Store
	explicit     *Txn
	pooledReader *Txn
}

// NewManager constructs a Manager bound to store.
func NewManager(store *kv.Store) *Manager {
	return &Manager{store: store}
}

// HasExplicit reports whether an explicit transaction is currently active.
func (m *Manager) HasExplicit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.explicit != nil
}

func (m *Manager) drainPoolLocked() {
	if m.pooledReader != nil {
		_ = m.pooledReader.KV.Abort()
		m.pooledReader = nil
	}
}

// Begin starts an explicit write transaction. Nested begins fail with
// ErrAlreadyActive.
func (m *Manager) Begin() (*Txn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.explicit != nil {
		return nil, ErrAlreadyActive
	}
	m.drainPoolLocked()
	kvTxn, err := m.store.Begin(kv.ModeWrite)
	if err != nil {
		return nil, err
	}
	t := &Txn{KV: kvTxn, ID: uuid.New(), mode: kv.ModeWrite}
	m.explicit = t
	return t, nil
}

// Commit commits the active explicit transaction.
func (m *Manager) Commit() error {
	m.mu.Lock()
	if m.explicit == nil {
		m.mu.Unlock()
		return ErrNoActive
	}
	t := m.explicit
	m.explicit = nil
	m.mu.Unlock()
	return t.KV.Commit()
}

// Rollback aborts the active explicit transaction.
func (m *Manager) Rollback() error {
	m.mu.Lock()
	if m.explicit == nil {
		m.mu.Unlock()
		return ErrNoActive
	}
	t := m.explicit
	m.explicit = nil
	m.mu.Unlock()
	return t.KV.Abort()
}

// GetWriteTxn returns the active explicit transaction if any, else begins
// a fresh auto-commit write transaction, first draining any pooled reader
// so it can never observe the write's snapshot mid-flight.
func (m *Manager) GetWriteTxn() (*Txn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.explicit != nil {
		return m.explicit, nil
	}
	m.drainPoolLocked()
	kvTxn, err := m.store.Begin(kv.ModeWrite)
	if err != nil {
		return nil, err
	}
	return &Txn{KV: kvTxn, ID: uuid.New(), mode: kv.ModeWrite, auto: true}, nil
}

// GetReadTxn returns the active explicit transaction if any, else the
// pooled reader if present, else begins a fresh read transaction.
func (m *Manager) GetReadTxn() (*Txn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.explicit != nil {
		return m.explicit, nil
	}
	if m.pooledReader != nil {
		t := m.pooledReader
		m.pooledReader = nil
		metrics.CursorPoolHits.Inc()
		return t, nil
	}
	metrics.CursorPoolMisses.Inc()
	kvTxn, err := m.store.Begin(kv.ModeRead)
	if err != nil {
		return nil, err
	}
	return &Txn{KV: kvTxn, ID: uuid.New(), mode: kv.ModeRead, auto: true}, nil
}

// ReleaseReadTxn returns t to the size-1 reader pool if t is an
// auto-acquired reader; otherwise it is a no-op (the explicit transaction
// owns its own lifecycle).
func (m *Manager) ReleaseReadTxn(t *Txn) {
	if t == nil || !t.auto || t.mode != kv.ModeRead {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t == m.explicit {
		return
	}
	if m.pooledReader != nil && m.pooledReader != t {
		_ = m.pooledReader.KV.Abort()
	}
	m.pooledReader = t
}

// CommitIfAuto commits t only if it was auto-acquired (not the active
// explicit transaction). Auto-acquired readers are returned to the pool
// instead of being closed, since a read has nothing to persist.
func (m *Manager) CommitIfAuto(t *Txn) error {
	if t == nil || !t.auto {
		return nil
	}
	if t.mode == kv.ModeRead {
		m.ReleaseReadTxn(t)
		return nil
	}
	return t.KV.Commit()
}

// AbortIfAuto aborts t only if it was auto-acquired. Auto-acquired readers
// are pooled rather than aborted, since a read error leaves no state to
// roll back.
func (m *Manager) AbortIfAuto(t *Txn) error {
	if t == nil || !t.auto {
		return nil
	}
	if t.mode == kv.ModeRead {
		m.ReleaseReadTxn(t)
		return nil
	}
	return t.KV.Abort()
}

// Close releases the pooled reader and any active explicit transaction.
// Called when the owning handle is closed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drainPoolLocked()
	if m.explicit != nil {
		_ = m.explicit.KV.Abort()
		m.explicit = nil
	}
}
