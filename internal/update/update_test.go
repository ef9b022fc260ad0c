package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func mustDoc(t *testing.T, v interface{}) bson.Raw {
	t.Helper()
	data, err := bson.Marshal(v)
	require.NoError(t, err)
	return bson.Raw(data)
}

func decodeM(t *testing.T, doc bson.Raw) bson.M {
	t.Helper()
	var m bson.M
	require.NoError(t, bson.Unmarshal(doc, &m))
	return m
}

func TestCombinedUpdate(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{
		"_id": oid, "name": "Test", "age": int32(30), "score": int32(100), "old_field": "x",
	})
	u := mustDoc(t, bson.M{
		"$set":   bson.M{"name": "Test Updated"},
		"$inc":   bson.M{"age": int32(1), "score": int32(50)},
		"$unset": bson.M{"old_field": int32(1)},
	})

	newDoc, err := Apply(old, u)
	require.NoError(t, err)

	got := decodeM(t, newDoc)
	assert.Equal(t, oid, got["_id"])
	assert.Equal(t, "Test Updated", got["name"])
	assert.Equal(t, int32(31), got["age"])
	assert.Equal(t, int32(150), got["score"])
	_, hasOldField := got["old_field"]
	assert.False(t, hasOldField)
}

func TestSetCreatesMissingIntermediateDocuments(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{"_id": oid})
	u := mustDoc(t, bson.M{"$set": bson.M{"address.city": "NYC"}})

	newDoc, err := Apply(old, u)
	require.NoError(t, err)

	got := decodeM(t, newDoc)
	addr, ok := got["address"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, "NYC", addr["city"])
}

func TestUnsetTwiceIsNoop(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{"_id": oid, "field": "x"})

	once, err := Apply(old, mustDoc(t, bson.M{"$unset": bson.M{"field": int32(1)}}))
	require.NoError(t, err)

	twice, err := Apply(once, mustDoc(t, bson.M{"$unset": bson.M{"field": int32(1)}}))
	require.NoError(t, err)

	assert.Equal(t, decodeM(t, once), decodeM(t, twice))
}

func TestPushAppendsAndCreatesArray(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{"_id": oid})

	newDoc, err := Apply(old, mustDoc(t, bson.M{"$push": bson.M{"tags": "a"}}))
	require.NoError(t, err)
	got := decodeM(t, newDoc)
	assert.Equal(t, bson.A{"a"}, got["tags"])

	newDoc2, err := Apply(newDoc, mustDoc(t, bson.M{"$push": bson.M{"tags": "b"}}))
	require.NoError(t, err)
	got2 := decodeM(t, newDoc2)
	assert.Equal(t, bson.A{"a", "b"}, got2["tags"])
}

func TestPullRemovesMatchingElements(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{"_id": oid, "tags": bson.A{"a", "b", "a", "c"}})

	newDoc, err := Apply(old, mustDoc(t, bson.M{"$pull": bson.M{"tags": "a"}}))
	require.NoError(t, err)

	got := decodeM(t, newDoc)
	assert.Equal(t, bson.A{"b", "c"}, got["tags"])
}

func TestRenameMovesFieldAndOverwritesDestination(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{"_id": oid, "old": "value", "new": "stale"})

	newDoc, err := Apply(old, mustDoc(t, bson.M{"$rename": bson.M{"old": "new"}}))
	require.NoError(t, err)

	got := decodeM(t, newDoc)
	assert.Equal(t, "value", got["new"])
	_, hasOld := got["old"]
	assert.False(t, hasOld)
}

func TestRenameFieldToItselfIsTrueNoop(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{"_id": oid, "a": "value", "b": int32(1)})

	newDoc, err := Apply(old, mustDoc(t, bson.M{"$rename": bson.M{"a": "a"}}))
	require.NoError(t, err)

	// Field order is significant to the comparator, so renaming a field to
	// itself must leave the document byte-identical, not move "a" to the
	// end via unset-then-set.
	assert.Equal(t, []byte(old), []byte(newDoc))
}

func TestRenameMissingSourceIsNoop(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{"_id": oid})

	newDoc, err := Apply(old, mustDoc(t, bson.M{"$rename": bson.M{"absent": "dest"}}))
	require.NoError(t, err)
	got := decodeM(t, newDoc)
	_, hasDest := got["dest"]
	assert.False(t, hasDest)
}

func TestReplacementPreservesID(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{"_id": oid, "name": "old"})

	newDoc, err := Apply(old, mustDoc(t, bson.M{"name": "new", "extra": int32(1)}))
	require.NoError(t, err)

	got := decodeM(t, newDoc)
	assert.Equal(t, oid, got["_id"])
	assert.Equal(t, "new", got["name"])
}

func TestSetOnIDFails(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{"_id": oid})
	_, err := Apply(old, mustDoc(t, bson.M{"$set": bson.M{"_id": primitive.NewObjectID()}}))
	assert.Error(t, err)
}

func TestIncNonNumericTargetFails(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{"_id": oid, "name": "alice"})
	_, err := Apply(old, mustDoc(t, bson.M{"$inc": bson.M{"name": int32(1)}}))
	assert.Error(t, err)
}

func TestPushOnNonArrayFails(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{"_id": oid, "name": "alice"})
	_, err := Apply(old, mustDoc(t, bson.M{"$push": bson.M{"name": "x"}}))
	assert.Error(t, err)
}

func TestMixedModifierAndLiteralKeysFails(t *testing.T) {
	oid := primitive.NewObjectID()
	old := mustDoc(t, bson.M{"_id": oid})
	_, err := Apply(old, mustDoc(t, bson.M{"$set": bson.M{"a": int32(1)}, "b": int32(2)}))
	assert.Error(t, err)
}
