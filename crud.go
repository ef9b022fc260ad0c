package doclite

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/cuemby/doclite/internal/collection"
	"github.com/cuemby/doclite/internal/cursor"
	"github.com/cuemby/doclite/internal/kv"
	"github.com/cuemby/doclite/internal/metrics"
	"github.com/cuemby/doclite/internal/query"
	"github.com/cuemby/doclite/internal/update"
)

// Collection is a façade scoped to one named collection of a Handle.
type Collection struct {
	h    *Handle
	name string
}

// changesCounter is the process-wide counter of modifications since the
// most recent Open, incremented by each committed insert/update/delete by
// the number of affected documents.
var changesCounter int64

// Changes returns the count of documents inserted, updated, or deleted
// through any handle in this process since the most recent Open.
func Changes() int64 { return changesCounter }

func observe(op string, start time.Time, coll string) {
	metrics.OpsTotal.WithLabelValues(op, coll).Inc()
	metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// InsertOne inserts doc, generating a fresh "_id" if absent. Returns the
// identifier used (whether generated or supplied).
func (c *Collection) InsertOne(doc bson.Raw) (ID, error) {
	start := time.Now()
	defer observe("insert_one", start, c.name)

	if doc == nil {
		return ID{}, errInvalidArgument("document must not be nil")
	}
	prepared, id, err := prepareInsert(doc)
	if err != nil {
		return ID{}, err
	}

	wt, err := c.h.txm.GetWriteTxn()
	if err != nil {
		return ID{}, errStorage(err, "begin write transaction")
	}
	if err := c.insertLocked(wt.KV, id, prepared); err != nil {
		c.h.txm.AbortIfAuto(wt)
		return ID{}, err
	}
	if err := c.h.txm.CommitIfAuto(wt); err != nil {
		return ID{}, errStorage(err, "commit insert")
	}
	changesCounter++
	return id, nil
}

func (c *Collection) insertLocked(t *kv.Txn, id ID, prepared bson.Raw) error {
	if err := collection.Create(t, c.name); err != nil {
		return errStorage(err, "create collection %s", c.name)
	}
	if err := t.Put(c.name, id[:], prepared, true); err != nil {
		if err == kv.ErrKeyExists {
			return errDuplicateIdentifier(id.Hex())
		}
		return errStorage(err, "insert into %s", c.name)
	}
	if err := collection.AdjustCount(t, c.name, 1); err != nil {
		return errStorage(err, "adjust counter for %s", c.name)
	}
	return nil
}

func prepareInsert(doc bson.Raw) (bson.Raw, ID, error) {
	idVal, err := doc.LookupErr("_id")
	if err == nil {
		oid, ok := idVal.ObjectIDOK()
		if !ok {
			return nil, ID{}, errInvalidIdentifier("_id must be a 12-byte identifier")
		}
		return doc, oid, nil
	}

	id := primitive.NewObjectID()
	d, uerr := docToD(doc)
	if uerr != nil {
		return nil, ID{}, errInvalidDocument(uerr, "malformed document")
	}
	out := append(bson.D{{Key: "_id", Value: id}}, d...)
	data, merr := bson.Marshal(out)
	if merr != nil {
		return nil, ID{}, errInvalidDocument(merr, "marshal prepared document")
	}
	return bson.Raw(data), id, nil
}

func docToD(raw bson.Raw) (bson.D, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

// InsertManyResult reports the identifiers that were inserted before
// ordered insertion stopped (on success, every input document). After a
// failure in auto-commit mode those inserts have been rolled back.
type InsertManyResult struct {
	InsertedIDs []ID
}

// InsertMany inserts docs in order under a single auto- or explicit
// transaction, stopping at the first failure. In auto-commit mode all
// inserts share one transaction, so a failure aborts the whole batch
// together with any documents inserted earlier in the same call. Inside an
// explicit transaction the transaction is not aborted: documents inserted
// before the failure remain in it.
func (c *Collection) InsertMany(docs []bson.Raw) (InsertManyResult, error) {
	start := time.Now()
	defer observe("insert_many", start, c.name)

	res := InsertManyResult{}
	wt, err := c.h.txm.GetWriteTxn()
	if err != nil {
		return res, errStorage(err, "begin write transaction")
	}
	for i, doc := range docs {
		prepared, id, perr := prepareInsert(doc)
		if perr != nil {
			c.h.txm.AbortIfAuto(wt)
			return res, errInvalidDocument(perr, "insert-many element %d", i)
		}
		if ierr := c.insertLocked(wt.KV, id, prepared); ierr != nil {
			c.h.txm.AbortIfAuto(wt)
			return res, ierr
		}
		res.InsertedIDs = append(res.InsertedIDs, id)
	}
	if err := c.h.txm.CommitIfAuto(wt); err != nil {
		return res, errStorage(err, "commit insert-many")
	}
	changesCounter += int64(len(res.InsertedIDs))
	return res, nil
}

// idPredicate detects the fast-path {_id: <identifier>} predicate and
// returns the identifier for a direct point lookup.
func idPredicate(filter bson.Raw) (ID, bool) {
	if filter == nil {
		return ID{}, false
	}
	elems, err := filter.Elements()
	if err != nil || len(elems) != 1 {
		return ID{}, false
	}
	key, _ := elems[0].KeyErr()
	if key != "_id" {
		return ID{}, false
	}
	val, err := elems[0].ValueErr()
	if err != nil {
		return ID{}, false
	}
	oid, ok := val.ObjectIDOK()
	if !ok {
		return ID{}, false
	}
	return oid, true
}

// FindOne returns the first matching document, or nil if none matches.
func (c *Collection) FindOne(filter bson.Raw) (bson.Raw, error) {
	start := time.Now()
	defer observe("find_one", start, c.name)

	if id, ok := idPredicate(filter); ok {
		return c.findByID(id)
	}

	cur, err := c.Find(filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	if err := cur.SetLimit(1); err != nil {
		return nil, errInvalidState("%v", err)
	}
	doc, ok := cur.Next()
	if !ok {
		return nil, nil
	}
	out := make(bson.Raw, len(doc))
	copy(out, doc)
	return out, nil
}

func (c *Collection) findByID(id ID) (bson.Raw, error) {
	rt, err := c.h.txm.GetReadTxn()
	if err != nil {
		return nil, errStorage(err, "begin read transaction")
	}
	defer c.h.txm.CommitIfAuto(rt)

	if !collection.Exists(rt.KV, c.name) {
		return nil, errCollectionNotFound(c.name)
	}
	data, err := rt.KV.Get(c.name, id[:])
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errStorage(err, "point lookup in %s", c.name)
	}
	return bson.Raw(data), nil
}

// Find compiles filter and returns a cursor over matches. filter may be
// nil to match all documents.
func (c *Collection) Find(filter bson.Raw) (*cursor.Cursor, error) {
	node, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}

	rt, err := c.h.txm.GetReadTxn()
	if err != nil {
		return nil, errStorage(err, "begin read transaction")
	}
	if !collection.Exists(rt.KV, c.name) {
		c.h.txm.AbortIfAuto(rt)
		return nil, errCollectionNotFound(c.name)
	}
	return cursor.New(c.h.txm, rt, c.name, node), nil
}

func compileFilter(filter bson.Raw) (*query.Node, error) {
	if filter == nil {
		return nil, nil
	}
	node, err := query.Compile(filter)
	if err != nil {
		return nil, errInvalidArgument("compile predicate: %v", err)
	}
	return node, nil
}

// UpdateOne applies u to the first document matching filter.
func (c *Collection) UpdateOne(filter, u bson.Raw) (int64, error) {
	return c.updateMatching(filter, u, true)
}

// UpdateMany applies u to every document matching filter.
func (c *Collection) UpdateMany(filter, u bson.Raw) (int64, error) {
	return c.updateMatching(filter, u, false)
}

// ReplaceOne replaces the first document matching filter with replacement
// (its "_id" is forced to the matched document's "_id").
func (c *Collection) ReplaceOne(filter, replacement bson.Raw) (int64, error) {
	return c.updateMatching(filter, replacement, true)
}

func (c *Collection) updateMatching(filter, u bson.Raw, single bool) (int64, error) {
	start := time.Now()
	defer observe("update", start, c.name)

	node, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}

	wt, err := c.h.txm.GetWriteTxn()
	if err != nil {
		return 0, errStorage(err, "begin write transaction")
	}
	if !collection.Exists(wt.KV, c.name) {
		c.h.txm.AbortIfAuto(wt)
		return 0, errCollectionNotFound(c.name)
	}

	var matched []kvPair
	sc, err := wt.KV.OpenCursor(c.name)
	if err != nil {
		c.h.txm.AbortIfAuto(wt)
		return 0, errStorage(err, "open cursor on %s", c.name)
	}
	for k, v := sc.First(); k != nil; k, v = sc.Next() {
		doc := bson.Raw(v)
		if node != nil && !query.Matches(node, doc) {
			continue
		}
		key := append([]byte(nil), k...)
		val := append([]byte(nil), v...)
		matched = append(matched, kvPair{key: key, val: val})
		if single {
			break
		}
	}

	var n int64
	for _, pair := range matched {
		newDoc, uerr := update.Apply(pair.val, u)
		if uerr != nil {
			c.h.txm.AbortIfAuto(wt)
			return n, errInvalidDocument(uerr, "apply update")
		}
		if perr := wt.KV.Put(c.name, pair.key, newDoc, false); perr != nil {
			c.h.txm.AbortIfAuto(wt)
			return n, errStorage(perr, "write updated document")
		}
		n++
	}

	if err := c.h.txm.CommitIfAuto(wt); err != nil {
		return n, errStorage(err, "commit update")
	}
	changesCounter += n
	return n, nil
}

type kvPair struct {
	key []byte
	val []byte
}

// DeleteOne deletes the first document matching filter.
func (c *Collection) DeleteOne(filter bson.Raw) (int64, error) {
	return c.deleteMatching(filter, true)
}

// DeleteMany deletes every document matching filter.
func (c *Collection) DeleteMany(filter bson.Raw) (int64, error) {
	return c.deleteMatching(filter, false)
}

func (c *Collection) deleteMatching(filter bson.Raw, single bool) (int64, error) {
	start := time.Now()
	defer observe("delete", start, c.name)

	node, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}

	wt, err := c.h.txm.GetWriteTxn()
	if err != nil {
		return 0, errStorage(err, "begin write transaction")
	}
	if !collection.Exists(wt.KV, c.name) {
		c.h.txm.AbortIfAuto(wt)
		return 0, errCollectionNotFound(c.name)
	}

	var keys [][]byte
	sc, err := wt.KV.OpenCursor(c.name)
	if err != nil {
		c.h.txm.AbortIfAuto(wt)
		return 0, errStorage(err, "open cursor on %s", c.name)
	}
	for k, v := sc.First(); k != nil; k, v = sc.Next() {
		doc := bson.Raw(v)
		if node != nil && !query.Matches(node, doc) {
			continue
		}
		keys = append(keys, append([]byte(nil), k...))
		if single {
			break
		}
	}

	var n int64
	for _, k := range keys {
		if err := wt.KV.Delete(c.name, k); err != nil {
			c.h.txm.AbortIfAuto(wt)
			return n, errStorage(err, "delete from %s", c.name)
		}
		if err := collection.AdjustCount(wt.KV, c.name, -1); err != nil {
			c.h.txm.AbortIfAuto(wt)
			return n, errStorage(err, "adjust counter for %s", c.name)
		}
		n++
	}

	if err := c.h.txm.CommitIfAuto(wt); err != nil {
		return n, errStorage(err, "commit delete")
	}
	changesCounter += n
	return n, nil
}

// Count returns the number of documents matching filter. A nil filter
// returns the collection's maintained counter directly; a non-nil filter
// performs a filtered scan.
func (c *Collection) Count(filter bson.Raw) (int64, error) {
	start := time.Now()
	defer observe("count", start, c.name)

	node, err := compileFilter(filter)
	if err != nil {
		return 0, err
	}

	rt, err := c.h.txm.GetReadTxn()
	if err != nil {
		return 0, errStorage(err, "begin read transaction")
	}
	defer c.h.txm.CommitIfAuto(rt)

	if !collection.Exists(rt.KV, c.name) {
		return 0, errCollectionNotFound(c.name)
	}

	if node == nil {
		n, err := collection.Count(rt.KV, c.name)
		if err != nil {
			return 0, errStorage(err, "read counter for %s", c.name)
		}
		return n, nil
	}

	sc, err := rt.KV.OpenCursor(c.name)
	if err != nil {
		return 0, errStorage(err, "open cursor on %s", c.name)
	}
	var n int64
	for _, v := sc.First(); v != nil; _, v = sc.Next() {
		if query.Matches(node, bson.Raw(v)) {
			n++
		}
	}
	return n, nil
}
