package store

import (
	"sort"
	"strings"
	"time"
)

// compareValues orders two normalized values. ok is false when they are not comparable.
func compareValues(a, b interface{}) (cmp int, ok bool) {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}

	switch x := a.(type) {
	case int64:
		y, isInt := b.(int64)
		if !isInt {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case string:
		y, isString := b.(string)
		if !isString {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, isBool := b.(bool)
		if !isBool {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case time.Time:
		y, isTime := b.(time.Time)
		if !isTime {
			return 0, false
		}
		return x.Compare(y), true
	}
	return 0, false
}

func resolve(doc Document, v interface{}) interface{} {
	if f, ok := v.(Field); ok {
		return doc[string(f)]
	}
	return v
}

func matchOne(doc Document, c Condition) bool {
	left := doc[c.Field]
	right := resolve(doc, c.Value)

	if c.Op == OpEq && (left == nil || right == nil) {
		return Normalize(left) == nil && Normalize(right) == nil
	}
	if left == nil || right == nil {
		return false
	}

	cmp, ok := compareValues(left, right)
	if !ok {
		return false
	}
	switch c.Op {
	case OpLte:
		return cmp <= 0
	case OpGte:
		return cmp >= 0
	default:
		return cmp == 0
	}
}

func matchAll(doc Document, conds []Condition) bool {
	for _, c := range conds {
		if !matchOne(doc, c) {
			return false
		}
	}
	return true
}

// sortDocuments orders docs by the given keys with id as the final tiebreaker.
// Nulls sort first ascending and last descending.
func sortDocuments(docs []Document, orders []Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range orders {
			cmp, ok := compareValues(docs[i][o.Field], docs[j][o.Field])
			if !ok || cmp == 0 {
				continue
			}
			if o.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return docs[i].ID() < docs[j].ID()
	})
}
