package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/doclite/internal/kv"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	s, err := kv.Open(t.TempDir(), kv.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewManager(s)
}

func TestBeginCommitRoundTrip(t *testing.T) {
	m := openTestManager(t)

	tx, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.KV.CreateSubStore("docs"))
	require.NoError(t, m.Commit())
}

func TestNestedBeginFails(t *testing.T) {
	m := openTestManager(t)

	_, err := m.Begin()
	require.NoError(t, err)
	defer m.Rollback()

	_, err = m.Begin()
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

func TestCommitWithoutActiveFails(t *testing.T) {
	m := openTestManager(t)
	assert.ErrorIs(t, m.Commit(), ErrNoActive)
}

func TestRollbackWithoutActiveFails(t *testing.T) {
	m := openTestManager(t)
	assert.ErrorIs(t, m.Rollback(), ErrNoActive)
}

func TestGetWriteTxnReturnsExplicitWhenActive(t *testing.T) {
	m := openTestManager(t)

	explicit, err := m.Begin()
	require.NoError(t, err)
	defer m.Rollback()

	got, err := m.GetWriteTxn()
	require.NoError(t, err)
	assert.Same(t, explicit, got)
}

func TestReaderPoolReuse(t *testing.T) {
	m := openTestManager(t)

	r1, err := m.GetReadTxn()
	require.NoError(t, err)
	m.ReleaseReadTxn(r1)

	r2, err := m.GetReadTxn()
	require.NoError(t, err)
	assert.Same(t, r1, r2, "pooled reader should be reused rather than opening a fresh one")
	m.ReleaseReadTxn(r2)
}

func TestWriteInvalidatesPooledReader(t *testing.T) {
	m := openTestManager(t)

	r1, err := m.GetReadTxn()
	require.NoError(t, err)
	m.ReleaseReadTxn(r1)

	// Beginning an explicit write must drain the pooled reader so it can
	// never straddle the write's snapshot.
	_, err = m.Begin()
	require.NoError(t, err)
	defer m.Rollback()

	assert.Nil(t, m.pooledReader)
}

func TestCommitIfAutoCommitsAutoWriteTxn(t *testing.T) {
	m := openTestManager(t)

	wt, err := m.GetWriteTxn()
	require.NoError(t, err)
	require.NoError(t, wt.KV.CreateSubStore("docs"))
	require.NoError(t, m.CommitIfAuto(wt))
}

func TestCommitIfAutoIsNoopForExplicit(t *testing.T) {
	m := openTestManager(t)

	explicit, err := m.Begin()
	require.NoError(t, err)

	require.NoError(t, m.CommitIfAuto(explicit))
	// Explicit txn must still be active — CommitIfAuto must not have
	// touched it.
	assert.True(t, m.HasExplicit())
	require.NoError(t, m.Rollback())
}
