// Package doclite is an embedded, single-process document store: schemaless
// binary documents grouped into named collections, backed by an ordered
// key/value store on disk. It supports insert/find/update/replace/delete/
// count over a MongoDB-style query-predicate and update-modifier DSL, with
// auto-commit per-operation transactions and an explicit multi-statement
// transaction mode.
//
// Documents and predicates are exchanged as BSON (go.mongodb.org/mongo-driver/bson):
// bson.Raw / bson.M / bson.D in, bson.Raw out. Every document carries a
// 12-byte "_id" identifier, generated as a primitive.ObjectID when absent.
package doclite

import "go.mongodb.org/mongo-driver/bson/primitive"

// ID is the wire type of a document identifier: a 12-byte value (4-byte
// timestamp, 5-byte random, 3-byte counter), matching primitive.ObjectID.
type ID = primitive.ObjectID

// NewID generates a fresh identifier the way InsertOne does when a
// document omits "_id".
func NewID() ID { return primitive.NewObjectID() }
