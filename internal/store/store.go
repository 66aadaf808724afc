// Package store defines the document-oriented counter store the board engine
// and parent guard run against, plus an in-memory implementation and the
// subscription hub shared by all implementations.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrConditionFailed = errors.New("document condition not satisfied")
	ErrDuplicate       = errors.New("duplicate document")
)

// Document is an untyped record. Values are normalized to string, int64,
// bool, time.Time (UTC) or nil.
type Document map[string]interface{}

// ID returns the document's id field, or "" if missing.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Clone returns a shallow copy.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Op is a comparison operator used in conditions.
type Op int

const (
	OpEq Op = iota
	OpLte
	OpGte
)

func (o Op) String() string {
	switch o {
	case OpLte:
		return "<="
	case OpGte:
		return ">="
	default:
		return "="
	}
}

// Field refers to another field of the same document when used as a condition value.
type Field string

// Condition compares a document field against a literal or a Field.
type Condition struct {
	Field string
	Op    Op
	Value interface{}
}

func Eq(field string, value interface{}) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

func Lte(field string, value interface{}) Condition {
	return Condition{Field: field, Op: OpLte, Value: value}
}

func Gte(field string, value interface{}) Condition {
	return Condition{Field: field, Op: OpGte, Value: value}
}

// Order sorts query results by a field. Ties are always broken by id.
type Order struct {
	Field string
	Desc  bool
}

// Query selects documents whose fields satisfy every condition.
type Query struct {
	Where   []Condition
	OrderBy []Order
}

// Matches reports whether doc satisfies every condition in q.
func (q Query) Matches(doc Document) bool {
	return matchAll(doc, q.Where)
}

// IfNullValue wraps an update value that is written only when the field is currently null.
type IfNullValue struct {
	Value interface{}
}

// IfNull marks v as set-once.
func IfNull(v interface{}) IfNullValue {
	return IfNullValue{Value: v}
}

// Increment describes an atomic, bounded delta applied to one integer field.
//
// The write is skipped with ErrConditionFailed when any Where condition fails
// or the result would leave [Min, value of MaxField]. AtMax fields are merged
// in the same write when the result equals the MaxField value.
type Increment struct {
	Field    string
	Delta    int64
	Min      int64
	MaxField string
	Where    []Condition
	AtMax    Document
}

// Store is the persistence collaborator consumed by the services.
type Store interface {
	Create(ctx context.Context, collection string, fields Document) (string, error)
	CreateWithID(ctx context.Context, collection, id string, fields Document) error
	Get(ctx context.Context, collection, id string) (Document, error)
	// Update merges fields into the document. Guards are evaluated atomically with the write.
	Update(ctx context.Context, collection, id string, fields Document, guards ...Condition) error
	Increment(ctx context.Context, collection, id string, inc Increment) error
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string, q Query) ([]Document, error)
	// Subscribe delivers the full matching set immediately and after every change.
	Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error)
}

// Normalize converts v into one of the canonical document value types.
func Normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		if float32(int64(x)) == x {
			return int64(x)
		}
		return float64(x)
	case float64:
		if float64(int64(x)) == x {
			return int64(x)
		}
		return x
	case time.Time:
		return x.UTC()
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC()
	case []byte:
		return string(x)
	default:
		return v
	}
}
