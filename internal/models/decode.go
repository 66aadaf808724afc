package models

import (
	"fmt"
	"math"
	"time"

	"stickerboard/internal/validation"
)

func invalid(field, msg string) error {
	return validation.ValidationError{Field: field, Message: msg}
}

// decoder reads typed fields out of a document and keeps the first failure.
type decoder struct {
	doc map[string]interface{}
	err error
}

func (d *decoder) fail(field, msg string) {
	if d.err == nil {
		d.err = invalid(field, msg)
	}
}

func (d *decoder) requiredString(field string) string {
	v, ok := d.doc[field]
	if !ok || v == nil {
		d.fail(field, "missing")
		return ""
	}
	s, ok := asString(v)
	if !ok {
		d.fail(field, fmt.Sprintf("expected string, got %T", v))
		return ""
	}
	if s == "" {
		d.fail(field, "empty")
	}
	return s
}

func (d *decoder) optionalString(field string) string {
	v, ok := d.doc[field]
	if !ok || v == nil {
		return ""
	}
	s, ok := asString(v)
	if !ok {
		d.fail(field, fmt.Sprintf("expected string, got %T", v))
	}
	return s
}

func (d *decoder) requiredInt(field string) int {
	v, ok := d.doc[field]
	if !ok || v == nil {
		d.fail(field, "missing")
		return 0
	}
	n, ok := asInt(v)
	if !ok {
		d.fail(field, fmt.Sprintf("expected integer, got %v (%T)", v, v))
	}
	return n
}

func (d *decoder) requiredBool(field string) bool {
	v, ok := d.doc[field]
	if !ok || v == nil {
		d.fail(field, "missing")
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		// sqlite and mysql store booleans as integers
		if b == 0 || b == 1 {
			return b == 1
		}
	case int:
		if b == 0 || b == 1 {
			return b == 1
		}
	}
	d.fail(field, fmt.Sprintf("expected boolean, got %v (%T)", v, v))
	return false
}

func (d *decoder) optionalTime(field string) *time.Time {
	v, ok := d.doc[field]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case time.Time:
		u := t.UTC()
		return &u
	case *time.Time:
		if t == nil {
			return nil
		}
		u := t.UTC()
		return &u
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			d.fail(field, "malformed timestamp")
			return nil
		}
		u := parsed.UTC()
		return &u
	}
	d.fail(field, fmt.Sprintf("expected timestamp, got %T", v))
	return nil
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
