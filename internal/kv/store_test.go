package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.Begin(ModeWrite)
	require.NoError(t, err)
	require.NoError(t, tx.CreateSubStore("docs"))
	require.NoError(t, tx.Put("docs", []byte("k1"), []byte("v1"), false))
	require.NoError(t, tx.Commit())

	rtx, err := s.Begin(ModeRead)
	require.NoError(t, err)
	defer rtx.Commit()

	got, err := rtx.Get("docs", []byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.Begin(ModeWrite)
	require.NoError(t, err)
	require.NoError(t, tx.CreateSubStore("docs"))
	require.NoError(t, tx.Commit())

	rtx, err := s.Begin(ModeRead)
	require.NoError(t, err)
	defer rtx.Commit()

	_, err = rtx.Get("docs", []byte("absent"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutNoOverwriteRejectsExistingKey(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.Begin(ModeWrite)
	require.NoError(t, err)
	require.NoError(t, tx.CreateSubStore("docs"))
	require.NoError(t, tx.Put("docs", []byte("k1"), []byte("v1"), true))

	err = tx.Put("docs", []byte("k1"), []byte("v2"), true)
	assert.ErrorIs(t, err, ErrKeyExists)
	require.NoError(t, tx.Abort())
}

func TestReadOnlyTxnRejectsWrite(t *testing.T) {
	s := openTestStore(t)

	wtx, err := s.Begin(ModeWrite)
	require.NoError(t, err)
	require.NoError(t, wtx.CreateSubStore("docs"))
	require.NoError(t, wtx.Commit())

	rtx, err := s.Begin(ModeRead)
	require.NoError(t, err)
	defer rtx.Commit()

	err = rtx.Put("docs", []byte("k1"), []byte("v1"), false)
	assert.ErrorIs(t, err, ErrIO)
}

func TestDropSubStoreIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.Begin(ModeWrite)
	require.NoError(t, err)
	require.NoError(t, tx.DropSubStore("never-created"))
	require.NoError(t, tx.Commit())
}

func TestCursorIteratesInKeyOrder(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.Begin(ModeWrite)
	require.NoError(t, err)
	require.NoError(t, tx.CreateSubStore("docs"))
	for _, k := range []string{"b", "a", "c"} {
		require.NoError(t, tx.Put("docs", []byte(k), []byte(k), false))
	}
	require.NoError(t, tx.Commit())

	rtx, err := s.Begin(ModeRead)
	require.NoError(t, err)
	defer rtx.Commit()

	cur, err := rtx.OpenCursor("docs")
	require.NoError(t, err)

	var keys []string
	for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
		keys = append(keys, string(k))
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestMaxBytesQuotaRejectsWrite(t *testing.T) {
	s, err := Open(t.TempDir(), Options{MaxBytes: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tx, err := s.Begin(ModeWrite)
	require.NoError(t, err)
	require.NoError(t, tx.CreateSubStore("docs"))
	require.NoError(t, tx.Commit())

	tx, err = s.Begin(ModeWrite)
	require.NoError(t, err)
	err = tx.Put("docs", []byte("k"), []byte("v"), false)
	assert.ErrorIs(t, err, ErrMapFull)
	require.NoError(t, tx.Abort())
}
