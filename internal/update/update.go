// Package update interprets modifier documents ($set/$unset/$inc/$rename/
// $push/$pull) or plain replacement against an encoded document, producing
// a new encoded document in a temporary buffer. Nothing is persisted until
// the caller commits the result, and identifier preservation is enforced
// regardless of modifier contents.
package update

import (
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/cuemby/doclite/internal/value"
)

// Error reports an update-operator violation: a non-numeric $inc target, a
// non-array $push/$pull target, or an attempt to mutate _id.
type Error struct {
	msg string
}

func (e *Error) Error() string { return "update: " + e.msg }

func errf(format string, args ...interface{}) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Apply interprets u against old and returns the new encoded document. old
// must already contain an "_id" field; the result always carries the same
// _id regardless of u's contents.
func Apply(old bson.Raw, u bson.Raw) (bson.Raw, error) {
	oldID, err := old.LookupErr("_id")
	if err != nil {
		return nil, errf("document missing _id: %v", err)
	}

	elems, err := u.Elements()
	if err != nil {
		return nil, errf("malformed update document: %v", err)
	}

	if len(elems) == 0 {
		return old, nil
	}

	isModifier := strings.HasPrefix(mustKey(elems[0]), "$")
	for _, el := range elems {
		if strings.HasPrefix(mustKey(el), "$") != isModifier {
			return nil, errf("update document mixes modifier and literal keys")
		}
	}

	if !isModifier {
		return applyReplacement(u, oldID)
	}
	return applyModifiers(old, elems, oldID)
}

func mustKey(el bson.RawElement) string {
	k, _ := el.KeyErr()
	return k
}

// applyReplacement returns u with _id forced to oldID.
func applyReplacement(u bson.Raw, oldID bson.RawValue) (bson.Raw, error) {
	doc, err := docToD(u)
	if err != nil {
		return nil, errf("malformed replacement document: %v", err)
	}
	out := bson.D{{Key: "_id", Value: rawToInterface(oldID)}}
	for _, e := range doc {
		if e.Key == "_id" {
			continue
		}
		out = append(out, e)
	}
	data, err := bson.Marshal(out)
	if err != nil {
		return nil, errf("marshal replacement: %v", err)
	}
	return bson.Raw(data), nil
}

func applyModifiers(old bson.Raw, elems []bson.RawElement, oldID bson.RawValue) (bson.Raw, error) {
	doc, err := docToD(old)
	if err != nil {
		return nil, errf("malformed existing document: %v", err)
	}

	for _, el := range elems {
		key := mustKey(el)
		val, verr := el.ValueErr()
		if verr != nil {
			return nil, errf("malformed operand for %q: %v", key, verr)
		}
		operand, err := docToD(bsonRawOf(val))
		var operandErr error
		if err != nil {
			operandErr = err
		}
		switch key {
		case "$set":
			if operandErr != nil {
				return nil, errf("malformed $set operand: %v", operandErr)
			}
			for _, pair := range operand {
				path := strings.Split(pair.Key, ".")
				if isIDPath(path) {
					return nil, errf("$set may not target _id")
				}
				if err := setPath(&doc, path, pair.Value); err != nil {
					return nil, err
				}
			}
		case "$unset":
			if operandErr != nil {
				return nil, errf("malformed $unset operand: %v", operandErr)
			}
			for _, pair := range operand {
				path := strings.Split(pair.Key, ".")
				if isIDPath(path) {
					return nil, errf("$unset may not target _id")
				}
				unsetPath(&doc, path)
			}
		case "$inc":
			if operandErr != nil {
				return nil, errf("malformed $inc operand: %v", operandErr)
			}
			for _, pair := range operand {
				path := strings.Split(pair.Key, ".")
				if isIDPath(path) {
					return nil, errf("$inc may not target _id")
				}
				if err := incPath(&doc, path, pair.Value); err != nil {
					return nil, err
				}
			}
		case "$rename":
			if operandErr != nil {
				return nil, errf("malformed $rename operand: %v", operandErr)
			}
			for _, pair := range operand {
				from := strings.Split(pair.Key, ".")
				to, ok := pair.Value.(string)
				if !ok {
					return nil, errf("$rename destination must be a string")
				}
				toPath := strings.Split(to, ".")
				if isIDPath(from) || isIDPath(toPath) {
					return nil, errf("$rename may not target _id")
				}
				if err := renamePath(&doc, from, toPath); err != nil {
					return nil, err
				}
			}
		case "$push":
			if operandErr != nil {
				return nil, errf("malformed $push operand: %v", operandErr)
			}
			for _, pair := range operand {
				path := strings.Split(pair.Key, ".")
				if isIDPath(path) {
					return nil, errf("$push may not target _id")
				}
				if err := pushPath(&doc, path, pair.Value); err != nil {
					return nil, err
				}
			}
		case "$pull":
			if operandErr != nil {
				return nil, errf("malformed $pull operand: %v", operandErr)
			}
			for _, pair := range operand {
				path := strings.Split(pair.Key, ".")
				if isIDPath(path) {
					return nil, errf("$pull may not target _id")
				}
				if err := pullPath(&doc, path, pair.Value); err != nil {
					return nil, err
				}
			}
		default:
			return nil, errf("unknown update operator %q", key)
		}
	}

	setIDField(&doc, oldID)

	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, errf("marshal updated document: %v", err)
	}
	return bson.Raw(data), nil
}

func isIDPath(path []string) bool {
	return len(path) > 0 && path[0] == "_id"
}

func setIDField(doc *bson.D, id bson.RawValue) {
	idVal := rawToInterface(id)
	for i, e := range *doc {
		if e.Key == "_id" {
			(*doc)[i].Value = idVal
			return
		}
	}
	*doc = append(bson.D{{Key: "_id", Value: idVal}}, *doc...)
}

func docToD(raw bson.Raw) (bson.D, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func bsonRawOf(v bson.RawValue) bson.Raw {
	doc, ok := v.DocumentOK()
	if !ok {
		return bson.Raw{}
	}
	return doc
}

func rawToInterface(v bson.RawValue) interface{} {
	var out interface{}
	_ = v.Unmarshal(&out)
	return out
}

// setPath sets value at the dotted path within doc, creating intermediate
// embedded documents (bson.D) as needed.
func setPath(doc *bson.D, path []string, val interface{}) error {
	if len(path) == 1 {
		for i, e := range *doc {
			if e.Key == path[0] {
				(*doc)[i].Value = val
				return nil
			}
		}
		*doc = append(*doc, bson.E{Key: path[0], Value: val})
		return nil
	}
	for i, e := range *doc {
		if e.Key == path[0] {
			sub, ok := e.Value.(bson.D)
			if !ok {
				sub = bson.D{}
			}
			if err := setPath(&sub, path[1:], val); err != nil {
				return err
			}
			(*doc)[i].Value = sub
			return nil
		}
	}
	sub := bson.D{}
	if err := setPath(&sub, path[1:], val); err != nil {
		return err
	}
	*doc = append(*doc, bson.E{Key: path[0], Value: sub})
	return nil
}

func unsetPath(doc *bson.D, path []string) {
	if len(path) == 1 {
		for i, e := range *doc {
			if e.Key == path[0] {
				*doc = append((*doc)[:i], (*doc)[i+1:]...)
				return
			}
		}
		return
	}
	for i, e := range *doc {
		if e.Key == path[0] {
			sub, ok := e.Value.(bson.D)
			if !ok {
				return
			}
			unsetPath(&sub, path[1:])
			(*doc)[i].Value = sub
			return
		}
	}
}

func incPath(doc *bson.D, path []string, delta interface{}) error {
	cur, found := lookupD(*doc, path)
	if !found {
		return setPath(doc, path, delta)
	}
	sum, err := addNumbers(cur, delta)
	if err != nil {
		return err
	}
	return setPath(doc, path, sum)
}

func lookupD(doc bson.D, path []string) (interface{}, bool) {
	if len(path) == 0 {
		return nil, false
	}
	for _, e := range doc {
		if e.Key != path[0] {
			continue
		}
		if len(path) == 1 {
			return e.Value, true
		}
		if sub, ok := e.Value.(bson.D); ok {
			return lookupD(sub, path[1:])
		}
		return nil, false
	}
	return nil, false
}

func addNumbers(a, b interface{}) (interface{}, error) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return nil, errf("$inc target and operand must both be numeric")
	}
	// The result's physical width is the wider of the two: int32+int32 ->
	// int32, anything touching int64 -> int64, anything touching a float
	// or decimal -> float64.
	_, aIsDouble := a.(float64)
	_, bIsDouble := b.(float64)
	_, aIsDec := a.(primitive.Decimal128)
	_, bIsDec := b.(primitive.Decimal128)
	if aIsDouble || bIsDouble || aIsDec || bIsDec {
		return af + bf, nil
	}
	_, aIsI64 := a.(int64)
	_, bIsI64 := b.(int64)
	ai, aIsI32 := a.(int32)
	bi, bIsI32 := b.(int32)
	if aIsI64 || bIsI64 {
		return int64(af) + int64(bf), nil
	}
	if aIsI32 && bIsI32 {
		return ai + bi, nil
	}
	return af + bf, nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func renamePath(doc *bson.D, from, to []string) error {
	if pathEqual(from, to) {
		// Renaming a field to itself must be a true no-op: unset-then-set
		// would otherwise move it to the end of the document, which is
		// observable since field order participates in comparison.
		return nil
	}
	val, found := lookupD(*doc, from)
	if !found {
		return nil
	}
	unsetPath(doc, from)
	return setPath(doc, to, val)
}

func pathEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func pushPath(doc *bson.D, path []string, elem interface{}) error {
	cur, found := lookupD(*doc, path)
	if !found {
		return setPath(doc, path, bson.A{elem})
	}
	arr, ok := cur.(bson.A)
	if !ok {
		return errf("$push target at %q is not an array", strings.Join(path, "."))
	}
	return setPath(doc, path, append(arr, elem))
}

func pullPath(doc *bson.D, path []string, operand interface{}) error {
	cur, found := lookupD(*doc, path)
	if !found {
		return nil
	}
	arr, ok := cur.(bson.A)
	if !ok {
		return errf("$pull target at %q is not an array", strings.Join(path, "."))
	}
	operandRaw, err := toRawValue(operand)
	if err != nil {
		return err
	}
	out := make(bson.A, 0, len(arr))
	for _, e := range arr {
		ev, err := toRawValue(e)
		if err != nil {
			return err
		}
		if !value.Equal(ev, operandRaw) {
			out = append(out, e)
		}
	}
	return setPath(doc, path, out)
}

// toRawValue round-trips a decoded Go value back through bson.RawValue so
// it can be compared with the value package's total-order equality.
func toRawValue(v interface{}) (bson.RawValue, error) {
	data, err := bson.Marshal(bson.D{{Key: "v", Value: v}})
	if err != nil {
		return bson.RawValue{}, err
	}
	raw := bson.Raw(data)
	return raw.LookupErr("v")
}
