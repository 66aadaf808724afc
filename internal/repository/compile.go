package repository

import (
	"fmt"
	"strings"

	"stickerboard/internal/store"
)

// compileConditions renders conditions as a parameterized WHERE fragment joined with AND.
// Values are always bound, never interpolated.
func compileConditions(t *table, conds []store.Condition) (string, []interface{}, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}

	parts := make([]string, 0, len(conds))
	var args []interface{}
	for _, cond := range conds {
		col, err := t.column(cond.Field)
		if err != nil {
			return "", nil, err
		}

		if ref, ok := cond.Value.(store.Field); ok {
			other, err := t.column(string(ref))
			if err != nil {
				return "", nil, err
			}
			if cond.Op == store.OpEq {
				parts = append(parts, fmt.Sprintf("(%s = %s OR (%s IS NULL AND %s IS NULL))", col.name, other.name, col.name, other.name))
			} else {
				parts = append(parts, fmt.Sprintf("%s %s %s", col.name, cond.Op, other.name))
			}
			continue
		}

		v, err := col.toSQL(cond.Value)
		if err != nil {
			return "", nil, err
		}
		if v == nil {
			if cond.Op != store.OpEq {
				// Ordering against null never matches.
				parts = append(parts, "1 = 0")
				continue
			}
			parts = append(parts, col.name+" IS NULL")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s ?", col.name, cond.Op))
		args = append(args, v)
	}
	return strings.Join(parts, " AND "), args, nil
}

// compileOrder renders ORDER BY with nulls first ascending, last descending,
// and id as the final tiebreaker so every database returns the same order.
func compileOrder(t *table, orders []store.Order) (string, error) {
	parts := make([]string, 0, len(orders)*2+1)
	for _, o := range orders {
		col, err := t.column(o.Field)
		if err != nil {
			return "", err
		}
		if o.Desc {
			parts = append(parts, fmt.Sprintf("(%s IS NULL) ASC", col.name), col.name+" DESC")
		} else {
			parts = append(parts, fmt.Sprintf("(%s IS NULL) DESC", col.name), col.name+" ASC")
		}
	}
	parts = append(parts, "id ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// compileSelect builds the SELECT for a List or subscription fetch.
func compileSelect(t *table, q store.Query) (string, []interface{}, error) {
	where, args, err := compileConditions(t, q.Where)
	if err != nil {
		return "", nil, err
	}
	order, err := compileOrder(t, q.OrderBy)
	if err != nil {
		return "", nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s", t.selectList(), t.name)
	if where != "" {
		query += " WHERE " + where
	}
	return query + order, args, nil
}

// assignment renders one SET clause. IfNull values keep an existing non-null value.
func assignment(col column, v interface{}) (string, interface{}, error) {
	if nv, ok := v.(store.IfNullValue); ok {
		arg, err := col.toSQL(nv.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s = COALESCE(%s, ?)", col.name, col.name), arg, nil
	}
	arg, err := col.toSQL(v)
	if err != nil {
		return "", nil, err
	}
	return col.name + " = ?", arg, nil
}

// compileIncrement builds a single guarded UPDATE for inc. The AtMax clauses
// come before the counter assignment because MySQL evaluates SET left to
// right against already-updated columns.
func compileIncrement(t *table, id string, inc store.Increment) (string, []interface{}, error) {
	counter, err := t.column(inc.Field)
	if err != nil {
		return "", nil, err
	}

	var sets []string
	var args []interface{}

	if inc.MaxField != "" && len(inc.AtMax) > 0 {
		max, err := t.column(inc.MaxField)
		if err != nil {
			return "", nil, err
		}
		for _, field := range sortedKeys(inc.AtMax) {
			col, err := t.column(field)
			if err != nil {
				return "", nil, err
			}
			value := inc.AtMax[field]
			if nv, ok := value.(store.IfNullValue); ok {
				arg, err := col.toSQL(nv.Value)
				if err != nil {
					return "", nil, err
				}
				sets = append(sets, fmt.Sprintf("%s = CASE WHEN %s + ? = %s THEN COALESCE(%s, ?) ELSE %s END",
					col.name, counter.name, max.name, col.name, col.name))
				args = append(args, inc.Delta, arg)
				continue
			}
			arg, err := col.toSQL(value)
			if err != nil {
				return "", nil, err
			}
			sets = append(sets, fmt.Sprintf("%s = CASE WHEN %s + ? = %s THEN ? ELSE %s END",
				col.name, counter.name, max.name, col.name))
			args = append(args, inc.Delta, arg)
		}
	}

	sets = append(sets, fmt.Sprintf("%s = %s + ?", counter.name, counter.name))
	args = append(args, inc.Delta)

	where := []string{"id = ?", fmt.Sprintf("%s + ? >= ?", counter.name)}
	args = append(args, id, inc.Delta, inc.Min)

	if inc.MaxField != "" {
		max, err := t.column(inc.MaxField)
		if err != nil {
			return "", nil, err
		}
		where = append(where, fmt.Sprintf("%s + ? <= %s", counter.name, max.name))
		args = append(args, inc.Delta)
	}

	guard, guardArgs, err := compileConditions(t, inc.Where)
	if err != nil {
		return "", nil, err
	}
	if guard != "" {
		where = append(where, guard)
		args = append(args, guardArgs...)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", t.name, strings.Join(sets, ", "), strings.Join(where, " AND "))
	return query, args, nil
}
