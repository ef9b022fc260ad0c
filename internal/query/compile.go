package query

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Compile parses a predicate document into an immutable tree. An empty
// predicate (no top-level keys) compiles to a match-all node.
func Compile(pred bson.Raw) (*Node, error) {
	return compileDoc(pred)
}

func compileDoc(doc bson.Raw) (*Node, error) {
	elems, err := doc.Elements()
	if err != nil {
		return nil, compileErr("malformed predicate document: %v", err)
	}
	and := &Node{kind: KindAnd}
	for _, el := range elems {
		key, err := el.KeyErr()
		if err != nil {
			return nil, compileErr("malformed predicate key: %v", err)
		}
		val, err := el.ValueErr()
		if err != nil {
			return nil, compileErr("malformed predicate value for %q: %v", key, err)
		}
		if strings.HasPrefix(key, "$") {
			child, err := compileCombinator(key, val)
			if err != nil {
				return nil, err
			}
			and.children = append(and.children, child)
			continue
		}
		field, err := compileField(strings.Split(key, "."), val)
		if err != nil {
			return nil, err
		}
		and.children = append(and.children, field)
	}
	return and, nil
}

func compileCombinator(key string, val bson.RawValue) (*Node, error) {
	switch key {
	case "$and", "$or", "$nor":
		arr, ok := val.ArrayOK()
		if !ok {
			return nil, compileErr("%s operand must be an array", key)
		}
		elems, err := arr.Elements()
		if err != nil {
			return nil, compileErr("%s operand malformed: %v", key, err)
		}
		kind := KindAnd
		switch key {
		case "$or":
			kind = KindOr
		case "$nor":
			kind = KindNor
		}
		node := &Node{kind: kind}
		for _, el := range elems {
			sub, err := el.ValueErr()
			if err != nil {
				return nil, compileErr("%s element malformed: %v", key, err)
			}
			subDoc, ok := sub.DocumentOK()
			if !ok {
				return nil, compileErr("%s element must be a document", key)
			}
			child, err := compileDoc(subDoc)
			if err != nil {
				return nil, err
			}
			node.children = append(node.children, child)
		}
		return node, nil
	case "$not":
		subDoc, ok := val.DocumentOK()
		if !ok {
			return nil, compileErr("$not operand must be a document")
		}
		child, err := compileDoc(subDoc)
		if err != nil {
			return nil, err
		}
		return &Node{kind: KindNot, children: []*Node{child}}, nil
	default:
		return nil, compileErr("unknown top-level operator %q", key)
	}
}

// compileField compiles the value attached to a (possibly dotted) field
// key into a KindField node. A nil path means "the value itself", the same
// form compileElemMatch builds for an operator-only $elemMatch operand.
func compileField(path []string, val bson.RawValue) (*Node, error) {
	if val.Type == bsontype.Regex {
		pattern, options, _ := val.RegexOK()
		op, err := compileRegexOp(pattern, options)
		if err != nil {
			return nil, err
		}
		return &Node{kind: KindField, path: path, ops: []opPredicate{op}}, nil
	}

	if val.Type == bsontype.EmbeddedDocument {
		doc, _ := val.DocumentOK()
		if isOperatorDocument(doc) {
			ops, err := compileOperatorSet(doc)
			if err != nil {
				return nil, err
			}
			return &Node{kind: KindField, path: path, ops: ops}, nil
		}
	}

	// Implicit equality against a literal value (including a literal
	// embedded document or array).
	return &Node{kind: KindField, path: path, ops: []opPredicate{{kind: opEq, operand: val}}}, nil
}

func isOperatorDocument(doc bson.Raw) bool {
	elems, err := doc.Elements()
	if err != nil || len(elems) == 0 {
		return false
	}
	for _, el := range elems {
		key, err := el.KeyErr()
		if err != nil || !strings.HasPrefix(key, "$") {
			return false
		}
	}
	return true
}

func compileOperatorSet(doc bson.Raw) ([]opPredicate, error) {
	elems, err := doc.Elements()
	if err != nil {
		return nil, compileErr("malformed operator document: %v", err)
	}
	var ops []opPredicate
	var regexPattern *string
	var regexOptions string
	for _, el := range elems {
		key, _ := el.KeyErr()
		val, verr := el.ValueErr()
		if verr != nil {
			return nil, compileErr("malformed operand for %q: %v", key, verr)
		}
		switch key {
		case "$eq":
			ops = append(ops, opPredicate{kind: opEq, operand: val})
		case "$ne":
			ops = append(ops, opPredicate{kind: opNe, operand: val})
		case "$gt":
			ops = append(ops, opPredicate{kind: opGt, operand: val})
		case "$gte":
			ops = append(ops, opPredicate{kind: opGte, operand: val})
		case "$lt":
			ops = append(ops, opPredicate{kind: opLt, operand: val})
		case "$lte":
			ops = append(ops, opPredicate{kind: opLte, operand: val})
		case "$in":
			list, err := valuesOf(val, "$in")
			if err != nil {
				return nil, err
			}
			ops = append(ops, opPredicate{kind: opIn, list: list})
		case "$nin":
			list, err := valuesOf(val, "$nin")
			if err != nil {
				return nil, err
			}
			ops = append(ops, opPredicate{kind: opNin, list: list})
		case "$exists":
			b, ok := val.BooleanOK()
			if !ok {
				return nil, compileErr("$exists operand must be a boolean")
			}
			ops = append(ops, opPredicate{kind: opExists, exists: b})
		case "$type":
			tag, err := typeTagOf(val)
			if err != nil {
				return nil, err
			}
			ops = append(ops, opPredicate{kind: opType, typeTag: tag})
		case "$regex":
			p, o, ok := val.RegexOK()
			if ok {
				regexPattern = &p
				regexOptions = o
			} else if s, ok := val.StringValueOK(); ok {
				regexPattern = &s
			} else {
				return nil, compileErr("$regex operand must be a string or regex")
			}
		case "$options":
			o, ok := val.StringValueOK()
			if !ok {
				return nil, compileErr("$options operand must be a string")
			}
			regexOptions = o
		case "$size":
			n, err := intOperand(val, "$size")
			if err != nil {
				return nil, err
			}
			ops = append(ops, opPredicate{kind: opSize, size: n})
		case "$all":
			list, err := valuesOf(val, "$all")
			if err != nil {
				return nil, err
			}
			ops = append(ops, opPredicate{kind: opAll, list: list})
		case "$elemMatch":
			sub, ok := val.DocumentOK()
			if !ok {
				return nil, compileErr("$elemMatch operand must be a document")
			}
			node, err := compileElemMatch(sub)
			if err != nil {
				return nil, err
			}
			ops = append(ops, opPredicate{kind: opElemMatch, elemNode: node})
		default:
			return nil, compileErr("unknown operator %q", key)
		}
	}
	if regexPattern != nil {
		op, err := compileRegexOp(*regexPattern, regexOptions)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// compileElemMatch compiles a $elemMatch operand either as an
// operator-only predicate applied directly to each element (when every
// top-level key starts with "$"), or as a full sub-document predicate
// applied with the element as root document.
func compileElemMatch(sub bson.Raw) (*Node, error) {
	if isOperatorDocument(sub) {
		ops, err := compileOperatorSet(sub)
		if err != nil {
			return nil, err
		}
		return &Node{kind: KindField, path: nil, ops: ops}, nil
	}
	return compileDoc(sub)
}

func compileRegexOp(pattern, options string) (opPredicate, error) {
	re, err := globalRegexCache.get(pattern, options)
	if err != nil {
		return opPredicate{}, compileErr("regex compile failed for /%s/%s: %v", pattern, options, err)
	}
	return opPredicate{kind: opRegex, re: re}, nil
}

func valuesOf(val bson.RawValue, op string) ([]bson.RawValue, error) {
	arr, ok := val.ArrayOK()
	if !ok {
		return nil, compileErr("%s operand must be an array", op)
	}
	elems, err := arr.Elements()
	if err != nil {
		return nil, compileErr("%s operand malformed: %v", op, err)
	}
	out := make([]bson.RawValue, 0, len(elems))
	for _, el := range elems {
		v, err := el.ValueErr()
		if err != nil {
			return nil, compileErr("%s element malformed: %v", op, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func intOperand(val bson.RawValue, op string) (int, error) {
	switch val.Type {
	case bsontype.Int32:
		v, _ := val.Int32OK()
		return int(v), nil
	case bsontype.Int64:
		v, _ := val.Int64OK()
		return int(v), nil
	case bsontype.Double:
		v, _ := val.DoubleOK()
		return int(v), nil
	default:
		return 0, compileErr("%s operand must be a number", op)
	}
}

var typeNameToTag = map[string]bsontype.Type{
	"double":          bsontype.Double,
	"string":          bsontype.String,
	"object":          bsontype.EmbeddedDocument,
	"array":           bsontype.Array,
	"binData":         bsontype.Binary,
	"undefined":       bsontype.Undefined,
	"objectId":        bsontype.ObjectID,
	"bool":            bsontype.Boolean,
	"date":            bsontype.DateTime,
	"null":            bsontype.Null,
	"regex":           bsontype.Regex,
	"javascript":      bsontype.JavaScript,
	"int":             bsontype.Int32,
	"timestamp":       bsontype.Timestamp,
	"long":            bsontype.Int64,
	"decimal":         bsontype.Decimal128,
	"minKey":          bsontype.MinKey,
	"maxKey":          bsontype.MaxKey,
}

func typeTagOf(val bson.RawValue) (bsontype.Type, error) {
	if s, ok := val.StringValueOK(); ok {
		tag, ok := typeNameToTag[s]
		if !ok {
			return 0, compileErr("unknown $type name %q", s)
		}
		return tag, nil
	}
	if n, err := intOperand(val, "$type"); err == nil {
		return bsontype.Type(n), nil
	}
	return 0, compileErr("$type operand must be a type name or numeric code")
}
