package query

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/cuemby/doclite/internal/value"
)

// Matches reports whether doc satisfies the compiled predicate tree.
func Matches(n *Node, doc bson.Raw) bool {
	return evalNode(n, asDocValue(doc))
}

func asDocValue(doc bson.Raw) bson.RawValue {
	return bson.RawValue{Type: bsontype.EmbeddedDocument, Value: []byte(doc)}
}

func evalNode(n *Node, root bson.RawValue) bool {
	switch n.kind {
	case KindAnd:
		for _, c := range n.children {
			if !evalNode(c, root) {
				return false
			}
		}
		return true
	case KindOr:
		if len(n.children) == 0 {
			return true
		}
		for _, c := range n.children {
			if evalNode(c, root) {
				return true
			}
		}
		return false
	case KindNor:
		for _, c := range n.children {
			if evalNode(c, root) {
				return false
			}
		}
		return true
	case KindNot:
		return !evalNode(n.children[0], root)
	case KindField:
		return evalField(n, root)
	default:
		return false
	}
}

func evalField(n *Node, root bson.RawValue) bool {
	candidates := resolve(root, n.path)
	for _, op := range n.ops {
		if !evalOp(op, candidates) {
			return false
		}
	}
	return true
}

// resolve returns the set of values reachable at path from root, applying
// array index-or-elementwise fallback at each segment. An empty path means
// "root itself" — used for $elemMatch operator-only sub-predicates applied
// directly to an array element.
func resolve(root bson.RawValue, path []string) []bson.RawValue {
	if len(path) == 0 {
		return []bson.RawValue{root}
	}
	return resolveAt(root, path)
}

func resolveAt(cur bson.RawValue, path []string) []bson.RawValue {
	if len(path) == 0 {
		return []bson.RawValue{cur}
	}
	seg := path[0]
	rest := path[1:]

	switch cur.Type {
	case bsontype.EmbeddedDocument:
		doc, ok := cur.DocumentOK()
		if !ok {
			return nil
		}
		v, err := doc.LookupErr(seg)
		if err != nil {
			return []bson.RawValue{value.Missing}
		}
		return resolveAt(v, rest)
	case bsontype.Array:
		arr, ok := cur.ArrayOK()
		if !ok {
			return nil
		}
		if idx, ok := parseArrayIndex(seg); ok {
			v, err := arr.IndexErr(uint(idx))
			if err == nil {
				return resolveAt(v.Value(), rest)
			}
		}
		// Element-wise fallback: try the same remaining path (including
		// this segment, since it did not resolve as a numeric index) on
		// every array element, flattening all results together.
		elems, err := arr.Values()
		if err != nil {
			return nil
		}
		var out []bson.RawValue
		for _, el := range elems {
			out = append(out, resolveAt(el, path)...)
		}
		return out
	default:
		return []bson.RawValue{value.Missing}
	}
}

func parseArrayIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n := 0
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// expand widens a candidate set for the equality/ordering/membership
// operator family: each candidate that is itself an array also
// contributes its elements, so `{tags: "x"}` matches a document whose
// tags field is an array containing "x".
func expand(candidates []bson.RawValue) []bson.RawValue {
	out := make([]bson.RawValue, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c)
		if c.Type == bsontype.Array {
			arr, ok := c.ArrayOK()
			if !ok {
				continue
			}
			elems, err := arr.Values()
			if err != nil {
				continue
			}
			out = append(out, elems...)
		}
	}
	return out
}

func evalOp(op opPredicate, candidates []bson.RawValue) bool {
	switch op.kind {
	case opEq:
		for _, c := range expand(candidates) {
			if value.Equal(c, op.operand) {
				return true
			}
		}
		return false
	case opNe:
		for _, c := range expand(candidates) {
			if value.Equal(c, op.operand) {
				return false
			}
		}
		return true
	case opGt:
		return anyCmp(candidates, op.operand, func(c int) bool { return c > 0 })
	case opGte:
		return anyCmp(candidates, op.operand, func(c int) bool { return c >= 0 })
	case opLt:
		return anyCmp(candidates, op.operand, func(c int) bool { return c < 0 })
	case opLte:
		return anyCmp(candidates, op.operand, func(c int) bool { return c <= 0 })
	case opIn:
		for _, c := range expand(candidates) {
			for _, want := range op.list {
				if value.Equal(c, want) {
					return true
				}
			}
		}
		return false
	case opNin:
		for _, c := range expand(candidates) {
			for _, avoid := range op.list {
				if value.Equal(c, avoid) {
					return false
				}
			}
		}
		return true
	case opExists:
		present := false
		for _, c := range candidates {
			if !value.IsMissing(c) {
				present = true
				break
			}
		}
		return present == op.exists
	case opType:
		for _, c := range candidates {
			if value.IsMissing(c) {
				continue
			}
			if c.Type == op.typeTag {
				return true
			}
		}
		return false
	case opRegex:
		for _, c := range candidates {
			s, ok := c.StringValueOK()
			if !ok {
				continue
			}
			if op.re.MatchString(s) {
				return true
			}
		}
		return false
	case opSize:
		for _, c := range candidates {
			arr, ok := c.ArrayOK()
			if !ok {
				continue
			}
			elems, err := arr.Values()
			if err != nil {
				continue
			}
			if len(elems) == op.size {
				return true
			}
		}
		return false
	case opAll:
		for _, c := range candidates {
			arr, ok := c.ArrayOK()
			if !ok {
				continue
			}
			elems, err := arr.Values()
			if err != nil {
				continue
			}
			if containsAll(elems, op.list) {
				return true
			}
		}
		return false
	case opElemMatch:
		for _, c := range candidates {
			arr, ok := c.ArrayOK()
			if !ok {
				continue
			}
			elems, err := arr.Values()
			if err != nil {
				continue
			}
			for _, el := range elems {
				if evalElemMatch(op.elemNode, el) {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

func evalElemMatch(n *Node, el bson.RawValue) bool {
	if n.kind == KindField && n.path == nil {
		return evalField(n, el)
	}
	// Full sub-document predicate: only a document element can match it.
	if el.Type != bsontype.EmbeddedDocument {
		return false
	}
	return evalNode(n, el)
}

func anyCmp(candidates []bson.RawValue, operand bson.RawValue, ok func(int) bool) bool {
	for _, c := range expand(candidates) {
		if value.IsMissing(c) {
			continue
		}
		if ok(value.Compare(c, operand)) {
			return true
		}
	}
	return false
}

func containsAll(haystack, needles []bson.RawValue) bool {
	for _, need := range needles {
		found := false
		for _, h := range haystack {
			if value.Equal(h, need) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
