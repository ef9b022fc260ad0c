// Package value implements the total order over encoded document values
// specified for the document store: a type ladder followed by within-type
// comparison rules. It operates directly on bson.RawValue so callers never
// have to fully decode a document to compare or sort by one of its fields.
package value

import (
	"bytes"
	"math"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Missing is the sentinel RawValue produced by dotted-path resolution when
// a field is absent. Its zero Type (0x00) collides with no real BSON wire
// type, so it can be carried through Compare like any other value.
var Missing bson.RawValue

// rank assigns each type its position on the ladder. Missing and Null sit
// in adjacent ranks (missing strictly below null) per the path-resolution
// rule that a missing field "compares as less than null for ordering
// purposes", nested inside the single "null/missing" ladder tier.
func rank(t bsontype.Type) int {
	switch t {
	case bsontype.MinKey:
		return 0
	case bsontype.Type(0): // Missing sentinel
		return 1
	case bsontype.Undefined:
		return 1
	case bsontype.Null:
		return 2
	case bsontype.Double, bsontype.Int32, bsontype.Int64, bsontype.Decimal128:
		return 3
	case bsontype.String:
		return 4
	case bsontype.EmbeddedDocument:
		return 5
	case bsontype.Array:
		return 6
	case bsontype.Binary:
		return 7
	case bsontype.ObjectID:
		return 8
	case bsontype.Boolean:
		return 9
	case bsontype.DateTime:
		return 10
	case bsontype.Timestamp:
		return 11
	case bsontype.Regex:
		return 12
	case bsontype.MaxKey:
		return 13
	default:
		// Unsupported/legacy wire types (DBPointer, JavaScript, Symbol,
		// CodeWithScope) have no place in this system's documents; treat
		// them as sorting just below regex so they are at least total.
		return 12
	}
}

func isNumber(t bsontype.Type) bool {
	switch t {
	case bsontype.Double, bsontype.Int32, bsontype.Int64, bsontype.Decimal128:
		return true
	}
	return false
}

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v bson.RawValue) bool { return v.Type == bsontype.Type(0) }

// Compare returns -1, 0, or 1 as a compares less than, equal to, or
// greater than b, implementing the document store's total order.
func Compare(a, b bson.RawValue) int {
	ra, rb := rank(a.Type), rank(b.Type)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch {
	case ra == 0 || ra == 1 || ra == 13:
		// minKey, missing/undefined, maxKey: all values of the same
		// rank are equal to one another.
		return 0
	case ra == 2:
		return 0 // null == null
	case isNumber(a.Type) && isNumber(b.Type):
		return compareNumbers(a, b)
	case a.Type == bsontype.String:
		return bytes.Compare([]byte(stringVal(a)), []byte(stringVal(b)))
	case a.Type == bsontype.EmbeddedDocument:
		return compareDocs(docOf(a), docOf(b))
	case a.Type == bsontype.Array:
		return compareDocs(arrOf(a), arrOf(b))
	case a.Type == bsontype.Binary:
		return compareBinary(a, b)
	case a.Type == bsontype.ObjectID:
		oa, _ := a.ObjectIDOK()
		ob, _ := b.ObjectIDOK()
		return bytes.Compare(oa[:], ob[:])
	case a.Type == bsontype.Boolean:
		ba, _ := a.BooleanOK()
		bb, _ := b.BooleanOK()
		return compareBool(ba, bb)
	case a.Type == bsontype.DateTime:
		da, _ := a.DateTimeOK()
		db, _ := b.DateTimeOK()
		return compareInt64(da, db)
	case a.Type == bsontype.Timestamp:
		ta, ia, _ := a.TimestampOK()
		tb, ib, _ := b.TimestampOK()
		if ta != tb {
			if ta < tb {
				return -1
			}
			return 1
		}
		return compareInt64(int64(ia), int64(ib))
	case a.Type == bsontype.Regex:
		pa, oa, _ := a.RegexOK()
		pb, ob, _ := b.RegexOK()
		if c := bytes.Compare([]byte(pa), []byte(pb)); c != 0 {
			return c
		}
		return bytes.Compare([]byte(oa), []byte(ob))
	default:
		return 0
	}
}

// Equal reports whether a and b compare equal.
func Equal(a, b bson.RawValue) bool { return Compare(a, b) == 0 }

func stringVal(v bson.RawValue) string {
	s, _ := v.StringValueOK()
	return s
}

func docOf(v bson.RawValue) bson.Raw {
	d, _ := v.DocumentOK()
	return d
}

func arrOf(v bson.RawValue) bson.Raw {
	a, _ := v.ArrayOK()
	return bson.Raw(a)
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBinary(a, b bson.RawValue) int {
	sa, da, _ := a.BinaryOK()
	sb, db, _ := b.BinaryOK()
	if len(da) != len(db) {
		if len(da) < len(db) {
			return -1
		}
		return 1
	}
	if sa != sb {
		if sa < sb {
			return -1
		}
		return 1
	}
	return bytes.Compare(da, db)
}

// compareNumbers compares across the three physical numeric widths (plus
// optional decimal128) by mathematical value. Int32/Int64 operands compare
// by exact integer value — round-tripping them through float64 loses
// precision above 2^53 and breaks the total order's antisymmetry for large
// integers. Float64 is only involved once a Double or Decimal128 operand is
// actually in play; a Decimal128 is parsed into a 200-bit big.Float
// (decimal.go) and then rounded to float64 for the comparison. NaN is treated as
// greater than every number and equal to itself, per this system's choice
// for total-order stability (spec.md leaves IEEE-strict NaN handling as an
// implementer's call).
func compareNumbers(a, b bson.RawValue) int {
	if ia, ok := asInt64(a); ok {
		if ib, ok := asInt64(b); ok {
			return compareInt64(ia, ib)
		}
	}
	fa, nanA := numAsFloat(a)
	fb, nanB := numAsFloat(b)
	switch {
	case nanA && nanB:
		return 0
	case nanA:
		return 1
	case nanB:
		return -1
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	default:
		return 0
	}
}

// asInt64 reports the exact integer value of v when it is an Int32 or
// Int64, widening Int32 losslessly. Double and Decimal128 are left to the
// float/big.Float paths since they are not exact integer widths.
func asInt64(v bson.RawValue) (int64, bool) {
	switch v.Type {
	case bsontype.Int32:
		i, ok := v.Int32OK()
		return int64(i), ok
	case bsontype.Int64:
		i, ok := v.Int64OK()
		return i, ok
	default:
		return 0, false
	}
}

func numAsFloat(v bson.RawValue) (f float64, isNaN bool) {
	switch v.Type {
	case bsontype.Double:
		d, _ := v.DoubleOK()
		return d, math.IsNaN(d)
	case bsontype.Int32:
		i, _ := v.Int32OK()
		return float64(i), false
	case bsontype.Int64:
		i, _ := v.Int64OK()
		return float64(i), false
	case bsontype.Decimal128:
		d, _ := v.Decimal128OK()
		return decimal128AsFloat(d)
	default:
		return 0, false
	}
}

func decimal128AsFloat(d primitive.Decimal128) (float64, bool) {
	bf, _, err := bigFloatFromDecimal128(d)
	if err != nil {
		return 0, false
	}
	f, _ := bf.Float64()
	return f, math.IsNaN(f)
}

// compareDocs implements the pairwise, insertion-order document/array
// comparison rule: compare overlapping (key, value) pairs in order; if all
// overlapping pairs are equal, the shorter document is less.
func compareDocs(a, b bson.Raw) int {
	ae, _ := a.Elements()
	be, _ := b.Elements()
	n := len(ae)
	if len(be) < n {
		n = len(be)
	}
	for i := 0; i < n; i++ {
		ak, _ := ae[i].KeyErr()
		bk, _ := be[i].KeyErr()
		if c := bytes.Compare([]byte(ak), []byte(bk)); c != 0 {
			return c
		}
		av, _ := ae[i].ValueErr()
		bv, _ := be[i].ValueErr()
		if c := Compare(av, bv); c != 0 {
			return c
		}
	}
	switch {
	case len(ae) < len(be):
		return -1
	case len(ae) > len(be):
		return 1
	default:
		return 0
	}
}
