// Package cursor implements the lazy-pull iterator over a collection's
// sub-store: filter, skip, limit are applied as entries are pulled from the
// underlying ordered KV cursor. There is no projection option, and a sort
// passed to SetSort is not kept: documents always come out in the store's
// natural key order.
package cursor

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/cuemby/doclite/internal/kv"
	"github.com/cuemby/doclite/internal/query"
	"github.com/cuemby/doclite/internal/txn"
)

// ErrInvalidState is returned by SetSkip/SetLimit/SetSort once Next has
// already been called.
type ErrInvalidState struct{ op string }

func (e *ErrInvalidState) Error() string {
	return "cursor: " + e.op + " after iteration has started"
}

// Cursor lazily pulls matching documents out of a collection's sub-store.
type Cursor struct {
	store      string
	kv         *kv.Txn
	readTxn    *txn.Txn
	mgr        *txn.Manager
	filter     *query.Node
	skip       int
	limit      int
	started    bool
	exhausted  bool
	emitted    int
	skipped    int
	storeCur   *kv.Cursor
	current    bson.Raw
}

// New constructs a cursor over collection store, filtered by filter (nil
// means match-all). readTxn is the caller's already-acquired read
// transaction; mgr is used on Close to return an auto-acquired reader to
// the pool.
func New(mgr *txn.Manager, readTxn *txn.Txn, store string, filter *query.Node) *Cursor {
	return &Cursor{
		store:   store,
		kv:      readTxn.KV,
		readTxn: readTxn,
		mgr:     mgr,
		filter:  filter,
	}
}

// SetSkip sets the number of leading matches to discard. Valid only before
// the first Next call.
func (c *Cursor) SetSkip(n int) error {
	if c.started {
		return &ErrInvalidState{op: "set_skip"}
	}
	c.skip = n
	return nil
}

// SetLimit caps the number of matches emitted; zero means unlimited. Valid
// only before the first Next call.
func (c *Cursor) SetLimit(n int) error {
	if c.started {
		return &ErrInvalidState{op: "set_limit"}
	}
	c.limit = n
	return nil
}

// SetSort accepts a sort specification so callers higher in the stack can
// thread a sort document through without the cursor rejecting it. The
// specification is discarded; iteration stays in natural key order.
func (c *Cursor) SetSort(_ bson.Raw) error {
	if c.started {
		return &ErrInvalidState{op: "set_sort"}
	}
	return nil
}

// More reports whether another matching document remains without
// consuming it. It may itself trigger the lazy cursor open.
func (c *Cursor) More() bool {
	if c.exhausted {
		return false
	}
	if !c.started {
		if err := c.open(); err != nil {
			c.exhausted = true
			return false
		}
	}
	return c.current != nil
}

// Next advances to the next matching document and returns it. The
// returned Raw is not a copy: it borrows the store's memory and is valid
// only while the cursor's read transaction stays open. Callers that keep
// it longer must copy it.
func (c *Cursor) Next() (bson.Raw, bool) {
	if !c.More() {
		return nil, false
	}
	doc := c.current
	c.advance()
	return doc, true
}

func (c *Cursor) open() error {
	c.started = true
	sc, err := c.kv.OpenCursor(c.store)
	if err != nil {
		return err
	}
	c.storeCur = sc
	_, v := sc.First()
	c.current = nil
	c.seekNextMatch(v)
	return nil
}

// seekNextMatch advances the underlying store cursor (starting from the
// value already fetched into v, if any) until a document passes the filter
// and the skip count has been exhausted, or the store is exhausted, or the
// limit has already been reached.
func (c *Cursor) seekNextMatch(v []byte) {
	if c.limit > 0 && c.emitted >= c.limit {
		c.current = nil
		c.exhausted = true
		return
	}
	for v != nil {
		doc := bson.Raw(v)
		if c.filter == nil || query.Matches(c.filter, doc) {
			if c.skipped < c.skip {
				c.skipped++
			} else {
				c.current = doc
				return
			}
		}
		_, v = c.storeCur.Next()
	}
	c.current = nil
	c.exhausted = true
}

func (c *Cursor) advance() {
	c.emitted++
	if c.storeCur == nil {
		c.current = nil
		c.exhausted = true
		return
	}
	_, v := c.storeCur.Next()
	c.seekNextMatch(v)
}

// Close releases the underlying store cursor and, if the read transaction
// was auto-acquired for this cursor, returns it to the manager's reader
// pool instead of aborting it outright.
func (c *Cursor) Close() error {
	if c.storeCur != nil {
		c.storeCur.Close()
		c.storeCur = nil
	}
	c.current = nil
	c.exhausted = true
	if c.mgr != nil && c.readTxn != nil {
		c.mgr.AbortIfAuto(c.readTxn)
	}
	return nil
}
