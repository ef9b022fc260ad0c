package doclite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/cuemby/doclite/internal/collection"
)

func openTestHandle(t *testing.T) *Handle {
	t.Helper()
	h, err := Open(t.TempDir(), Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func mustDoc(t *testing.T, v interface{}) bson.Raw {
	t.Helper()
	data, err := bson.Marshal(v)
	require.NoError(t, err)
	return bson.Raw(data)
}

func TestInsertOneGeneratesIDAndFindOneRoundTrips(t *testing.T) {
	h := openTestHandle(t)
	coll, err := h.Collection("widgets")
	require.NoError(t, err)

	id, err := coll.InsertOne(mustDoc(t, bson.M{"name": "bolt"}))
	require.NoError(t, err)
	assert.NotEqual(t, ID{}, id)

	got, err := coll.FindOne(mustDoc(t, bson.M{"_id": id}))
	require.NoError(t, err)
	require.NotNil(t, got)

	var m bson.M
	require.NoError(t, bson.Unmarshal(got, &m))
	assert.Equal(t, "bolt", m["name"])
}

func TestInsertOneRejectsDuplicateIdentifier(t *testing.T) {
	h := openTestHandle(t)
	coll, err := h.Collection("widgets")
	require.NoError(t, err)

	id, err := coll.InsertOne(mustDoc(t, bson.M{"name": "bolt"}))
	require.NoError(t, err)

	_, err = coll.InsertOne(mustDoc(t, bson.M{"_id": id, "name": "dup"}))
	require.Error(t, err)
	derr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindDuplicateIdentifier, derr.Kind)
	assert.Equal(t, 12, derr.Code)
}

func TestFindOnNonexistentCollectionFails(t *testing.T) {
	h := openTestHandle(t)
	coll, err := h.Collection("ghosts")
	require.NoError(t, err)

	_, err = coll.FindOne(nil)
	require.Error(t, err)
	derr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindCollectionNotFound, derr.Kind)
}

func TestUpdateOneAppliesModifierAndCountsMatch(t *testing.T) {
	h := openTestHandle(t)
	coll, err := h.Collection("widgets")
	require.NoError(t, err)

	_, err = coll.InsertOne(mustDoc(t, bson.M{"name": "bolt", "qty": int32(1)}))
	require.NoError(t, err)

	n, err := coll.UpdateOne(mustDoc(t, bson.M{"name": "bolt"}), mustDoc(t, bson.M{"$inc": bson.M{"qty": int32(5)}}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := coll.FindOne(mustDoc(t, bson.M{"name": "bolt"}))
	require.NoError(t, err)
	var m bson.M
	require.NoError(t, bson.Unmarshal(got, &m))
	assert.Equal(t, int32(6), m["qty"])
}

func TestReplaceOnePreservesID(t *testing.T) {
	h := openTestHandle(t)
	coll, err := h.Collection("widgets")
	require.NoError(t, err)

	id, err := coll.InsertOne(mustDoc(t, bson.M{"name": "bolt"}))
	require.NoError(t, err)

	n, err := coll.ReplaceOne(mustDoc(t, bson.M{"_id": id}), mustDoc(t, bson.M{"name": "nut"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := coll.FindOne(mustDoc(t, bson.M{"_id": id}))
	require.NoError(t, err)
	var m bson.M
	require.NoError(t, bson.Unmarshal(got, &m))
	assert.Equal(t, "nut", m["name"])
	assert.Equal(t, id, m["_id"])
}

func TestCountOnNonexistentCollectionFails(t *testing.T) {
	h := openTestHandle(t)
	coll, err := h.Collection("ghosts")
	require.NoError(t, err)

	_, err = coll.Count(nil)
	require.Error(t, err)
	derr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindCollectionNotFound, derr.Kind)
}

func TestDeleteManyRemovesAllMatches(t *testing.T) {
	h := openTestHandle(t)
	coll, err := h.Collection("widgets")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := coll.InsertOne(mustDoc(t, bson.M{"kind": "bolt"}))
		require.NoError(t, err)
	}
	_, err = coll.InsertOne(mustDoc(t, bson.M{"kind": "nut"}))
	require.NoError(t, err)

	n, err := coll.DeleteMany(mustDoc(t, bson.M{"kind": "bolt"}))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	remaining, err := coll.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestCountWithNilFilterUsesMaintainedCounter(t *testing.T) {
	h := openTestHandle(t)
	coll, err := h.Collection("widgets")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := coll.InsertOne(mustDoc(t, bson.M{"n": int32(i)}))
		require.NoError(t, err)
	}

	n, err := coll.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestExplicitTransactionCommitIsVisibleAfterwards(t *testing.T) {
	h := openTestHandle(t)
	coll, err := h.Collection("widgets")
	require.NoError(t, err)

	require.NoError(t, h.BeginTx())
	_, err = coll.InsertOne(mustDoc(t, bson.M{"name": "in-tx"}))
	require.NoError(t, err)
	require.NoError(t, h.Commit())

	n, err := coll.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestExplicitTransactionRollbackDiscardsWrites(t *testing.T) {
	h := openTestHandle(t)
	coll, err := h.Collection("widgets")
	require.NoError(t, err)

	require.NoError(t, h.BeginTx())
	_, err = coll.InsertOne(mustDoc(t, bson.M{"name": "doomed"}))
	require.NoError(t, err)
	require.NoError(t, h.Rollback())

	n, err := coll.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestNestedBeginTxFails(t *testing.T) {
	h := openTestHandle(t)
	require.NoError(t, h.BeginTx())
	defer h.Rollback()

	err := h.BeginTx()
	require.Error(t, err)
	derr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindInvalidState, derr.Kind)
}

func TestDataPersistsAcrossCloseAndReopen(t *testing.T) {
	dir := t.TempDir()

	h1, err := Open(dir, Config{})
	require.NoError(t, err)
	coll1, err := h1.Collection("widgets")
	require.NoError(t, err)
	_, err = coll1.InsertOne(mustDoc(t, bson.M{"name": "bolt"}))
	require.NoError(t, err)
	require.NoError(t, h1.Close())

	h2, err := Open(dir, Config{})
	require.NoError(t, err)
	defer h2.Close()
	coll2, err := h2.Collection("widgets")
	require.NoError(t, err)

	n, err := coll2.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestReopenReconcilesCounterDrift(t *testing.T) {
	dir := t.TempDir()

	h1, err := Open(dir, Config{})
	require.NoError(t, err)
	coll1, err := h1.Collection("widgets")
	require.NoError(t, err)
	_, err = coll1.InsertOne(mustDoc(t, bson.M{"name": "bolt"}))
	require.NoError(t, err)

	// Force the counter out of sync with the actual stored documents,
	// simulating drift left by a non-graceful prior shutdown.
	wt, err := h1.txm.Begin()
	require.NoError(t, err)
	require.NoError(t, collection.AdjustCount(wt.KV, "widgets", 41))
	require.NoError(t, h1.txm.Commit())
	require.NoError(t, h1.Close())

	h2, err := Open(dir, Config{})
	require.NoError(t, err)
	defer h2.Close()
	coll2, err := h2.Collection("widgets")
	require.NoError(t, err)

	n, err := coll2.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestListAndDropCollection(t *testing.T) {
	h := openTestHandle(t)
	coll, err := h.Collection("widgets")
	require.NoError(t, err)
	_, err = coll.InsertOne(mustDoc(t, bson.M{"name": "bolt"}))
	require.NoError(t, err)

	names, err := h.ListCollections()
	require.NoError(t, err)
	assert.Contains(t, names, "widgets")

	require.NoError(t, h.DropCollection("widgets"))

	_, err = coll.FindOne(nil)
	require.Error(t, err)
}

func TestDropCollectionRejectsReservedName(t *testing.T) {
	h := openTestHandle(t)
	err := h.DropCollection("$catalog")
	require.Error(t, err)
	derr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindInvalidArgument, derr.Kind)
}
