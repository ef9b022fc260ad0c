// Package query compiles predicate documents into trees and evaluates them
// against bson.Raw documents without fully decoding them, per the
// query-compiler-and-evaluator component: logical combinators, the field
// operator set, dotted-path traversal (with array index/element-wise
// fallback), and a cached regex engine.
package query

import (
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Kind discriminates a compiled predicate tree node.
type Kind int

const (
	KindAnd Kind = iota
	KindOr
	KindNor
	KindNot
	KindField
)

// Node is one node of a compiled, immutable predicate tree.
type Node struct {
	kind     Kind
	children []*Node

	// KindField only.
	path []string
	ops  []opPredicate
}

type opKind int

const (
	opEq opKind = iota
	opNe
	opGt
	opGte
	opLt
	opLte
	opIn
	opNin
	opExists
	opType
	opRegex
	opSize
	opAll
	opElemMatch
)

type opPredicate struct {
	kind     opKind
	operand  bson.RawValue
	list     []bson.RawValue
	exists   bool
	typeTag  bsontype.Type
	re       *regexp.Regexp
	size     int
	elemNode *Node
}

// CompileError reports a predicate-compile-time failure: unknown operator,
// malformed combinator operand, or a regex that failed to compile.
type CompileError struct {
	msg string
}

func (e *CompileError) Error() string { return "query: " + e.msg }

func compileErr(format string, args ...interface{}) error {
	return &CompileError{msg: fmt.Sprintf(format, args...)}
}
