package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"stickerboard/internal/models"
	"stickerboard/internal/store"
)

type columnKind int

const (
	kindString columnKind = iota
	kindInt
	kindBool
	kindTime
)

type column struct {
	field string
	name  string
	kind  columnKind
}

// table maps one store collection onto a fixed SQL table.
type table struct {
	name    string
	columns []column
	byField map[string]column
}

func newTable(name string, columns ...column) *table {
	t := &table{
		name:    name,
		columns: append([]column{{field: models.FieldID, name: "id", kind: kindString}}, columns...),
		byField: make(map[string]column),
	}
	for _, c := range t.columns {
		t.byField[c.field] = c
	}
	return t
}

var tables = map[string]*table{
	models.CollectionAccounts: newTable("accounts",
		column{models.FieldEmail, "email", kindString},
		column{models.FieldParentPin, "parent_pin", kindString},
		column{models.FieldIsAnonymous, "is_anonymous", kindBool},
		column{models.FieldCreatedAt, "created_at", kindTime},
	),
	models.CollectionBoards: newTable("boards",
		column{models.FieldOwnerID, "owner_id", kindString},
		column{models.FieldTitle, "title", kindString},
		column{models.FieldTotalSlots, "total_slots", kindInt},
		column{models.FieldCurrentCount, "current_count", kindInt},
		column{models.FieldRewardImageRef, "reward_image_ref", kindString},
		column{models.FieldLifecycleState, "lifecycle_state", kindString},
		column{models.FieldCompletedAt, "completed_at", kindTime},
		column{models.FieldCreatedAt, "created_at", kindTime},
	),
	models.CollectionCredentials: newTable("credentials",
		column{models.FieldEmail, "email", kindString},
		column{models.FieldPasswordHash, "password_hash", kindString},
	),
}

func lookupTable(collection string) (*table, error) {
	t, ok := tables[collection]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	return t, nil
}

func (t *table) column(field string) (column, error) {
	c, ok := t.byField[field]
	if !ok {
		return column{}, fmt.Errorf("unknown field %q in %s", field, t.name)
	}
	return c, nil
}

func (t *table) selectList() string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return strings.Join(names, ", ")
}

// toSQL converts a document value into a driver argument for c.
func (c column) toSQL(v interface{}) (interface{}, error) {
	v = store.Normalize(v)
	if v == nil {
		return nil, nil
	}
	switch c.kind {
	case kindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case kindInt:
		if n, ok := v.(int64); ok {
			return n, nil
		}
	case kindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case kindTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("field %q: unsupported value %v (%T)", c.field, v, v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// fromSQL converts a scanned column value into a document value.
func (c column) fromSQL(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch c.kind {
	case kindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case kindInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case string:
			parsed, err := strconv.ParseInt(n, 10, 64)
			if err == nil {
				return parsed, nil
			}
		}
	case kindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err == nil {
				return parsed, nil
			}
		}
	case kindTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			for _, layout := range timeLayouts {
				if parsed, err := time.Parse(layout, t); err == nil {
					return parsed.UTC(), nil
				}
			}
		}
	}
	return nil, fmt.Errorf("column %s: cannot read %v (%T)", c.name, v, v)
}

// toDocument converts a scanned row into a store document.
func (t *table) toDocument(row map[string]interface{}) (store.Document, error) {
	doc := make(store.Document, len(t.columns))
	for _, c := range t.columns {
		v, err := c.fromSQL(row[c.name])
		if err != nil {
			return nil, err
		}
		doc[c.field] = v
	}
	return doc, nil
}
