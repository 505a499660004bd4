package relata

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Row is the untyped result shape used when no binding exists for a table
// at read time: a column-name to value mapping. The surrogate identity is
// included under its reserved column name.
type Row map[string]any

// All returns every row matching the view's filter and sort. Results are
// *T instances when the view is typed (bound explicitly or through the
// registry), Row mappings otherwise. Each call re-executes the query.
func (t *Table) All(ctx context.Context) ([]any, error) {
	return t.queryRows(ctx, 0)
}

// Get returns the first matching row, or nil when nothing matches. A miss
// is an empty result, never an error.
func (t *Table) Get(ctx context.Context) (any, error) {
	results, err := t.queryRows(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// GetAs is the typed convenience form of Get.
func GetAs[T any](ctx context.Context, t *Table) (*T, error) {
	out, err := t.Get(ctx)
	if err != nil || out == nil {
		return nil, err
	}
	rec, ok := out.(*T)
	if !ok {
		return nil, fmt.Errorf("get %s: result is %T, not %T", t.name, out, rec)
	}
	return rec, nil
}

// AllAs is the typed convenience form of All.
func AllAs[T any](ctx context.Context, t *Table) ([]*T, error) {
	out, err := t.All(ctx)
	if err != nil {
		return nil, err
	}
	recs := make([]*T, 0, len(out))
	for _, o := range out {
		rec, ok := o.(*T)
		if !ok {
			return nil, fmt.Errorf("all %s: result is %T, not %T", t.name, o, rec)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// queryRows executes the view's query. The surrogate identity is always
// selected to drive relation hydration and to stamp results; only declared
// primitive fields present in the table are projected.
func (t *Table) queryRows(ctx context.Context, limit int) ([]any, error) {
	if t.err != nil {
		return nil, t.err
	}
	cols, colList, err := t.columns(ctx)
	if err != nil {
		return nil, err
	}
	// An absent table reads as empty, never as an error.
	if len(colList) == 0 {
		return nil, nil
	}

	d := t.resolvedDesc()
	var fields []fieldDesc
	var selectCols []string
	if d != nil {
		for _, fd := range d.primitives {
			if cols[fd.name] {
				fields = append(fields, fd)
				selectCols = append(selectCols, fd.name)
			}
		}
	} else {
		for _, c := range colList {
			if c == idColumn {
				continue
			}
			selectCols = append(selectCols, c)
		}
	}

	where, err := t.renderWhere(ctx)
	if err != nil {
		return nil, err
	}

	selectExprs := make([]string, 0, len(selectCols)+1)
	selectExprs = append(selectExprs, idColumnSQL)
	for _, c := range selectCols {
		selectExprs = append(selectExprs, quoteIdent(c))
	}
	query := "SELECT " + strings.Join(selectExprs, ", ") +
		" FROM " + quoteIdent(t.name) + where + t.orderClause()
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := t.db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer rows.Close()

	var results []any
	var ids []int64
	for rows.Next() {
		var id int64
		raws := make([]any, len(selectCols))
		holders := make([]any, 0, len(selectCols)+1)
		holders = append(holders, &id)
		for i := range raws {
			holders = append(holders, &raws[i])
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}

		if d == nil {
			row := Row{idColumn: id}
			for i, c := range selectCols {
				row[c] = untypedValue(raws[i], t.colTypes[c])
			}
			results = append(results, row)
			continue
		}

		inst := reflect.New(d.typ)
		elem := inst.Elem()
		for i, fd := range fields {
			if err := assignField(elem.Field(fd.index), fd, raws[i]); err != nil {
				return nil, fmt.Errorf("scan %s.%s: %w", t.name, fd.name, err)
			}
		}
		stampIdentity(d, elem, id)
		results = append(results, inst.Interface())
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.name, err)
	}
	// Hydration issues its own queries, and the session owns a single
	// connection: the cursor must be released before they run.
	rows.Close()

	if d != nil {
		for i, r := range results {
			elem := reflect.ValueOf(r).Elem()
			if err := t.db.hydrate(ctx, d, elem, t.name, ids[i]); err != nil {
				return nil, err
			}
		}
	}
	return results, nil
}

// recordByID loads one row of the view's bound type by identity.
func (t *Table) recordByID(ctx context.Context, id int64) (reflect.Value, bool, error) {
	view := &Table{db: t.db, name: t.name, desc: t.desc,
		terms: []filterTerm{{raw: idColumnSQL + " = " + strconv.FormatInt(id, 10)}}}
	results, err := view.queryRows(ctx, 1)
	if err != nil || len(results) == 0 {
		return reflect.Value{}, false, err
	}
	return reflect.ValueOf(results[0]), true, nil
}

// assignField writes one scanned column into a struct field. NULL leaves a
// plain field at its zero value and marks a Value field null.
func assignField(fv reflect.Value, fd fieldDesc, raw any) error {
	if fd.optional {
		setter := fv.Addr().Interface().(optionalSetter)
		if raw == nil {
			return setter.setOpt(nil, stateNull)
		}
		return setter.setOpt(normalizeRaw(raw), stateSet)
	}
	if raw == nil {
		return nil
	}
	return assignScanned(fv, normalizeRaw(raw))
}

// assignScanned converts a driver-native value onto a destination field.
func assignScanned(dst reflect.Value, val any) error {
	if val == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if dst.CanAddr() {
		if sc, ok := dst.Addr().Interface().(sql.Scanner); ok {
			return sc.Scan(val)
		}
	}
	vv := reflect.ValueOf(val)
	if vv.Type().AssignableTo(dst.Type()) {
		dst.Set(vv)
		return nil
	}

	switch dst.Kind() {
	case reflect.Bool:
		switch v := val.(type) {
		case int64:
			dst.SetBool(v != 0)
			return nil
		case bool:
			dst.SetBool(v)
			return nil
		}
	case reflect.String:
		switch v := val.(type) {
		case string:
			dst.SetString(v)
			return nil
		case []byte:
			dst.SetString(string(v))
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch v := val.(type) {
		case int64:
			dst.SetInt(v)
			return nil
		case float64:
			dst.SetInt(int64(v))
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v, ok := val.(int64); ok {
			dst.SetUint(uint64(v))
			return nil
		}
	case reflect.Float32, reflect.Float64:
		switch v := val.(type) {
		case float64:
			dst.SetFloat(v)
			return nil
		case int64:
			dst.SetFloat(float64(v))
			return nil
		}
	case reflect.Slice:
		if dst.Type() == bytesType {
			if v, ok := val.([]byte); ok {
				dst.SetBytes(v)
				return nil
			}
		}
	}

	if dst.Type() == timeType {
		if s, ok := textOf(val); ok {
			parsed, err := parseStoredTime(s)
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(parsed))
			return nil
		}
	}

	return fmt.Errorf("cannot assign %T to %s", val, dst.Type())
}

func textOf(val any) (string, bool) {
	switch v := val.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

// parseStoredTime accepts the formats SQLite rows come back in when the
// driver has not already converted them.
func parseStoredTime(s string) (time.Time, error) {
	for _, layout := range []string{sqliteTimeFormat, "2006-01-02 15:04:05", time.RFC3339Nano, dateFormat} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// untypedValue shapes a scanned column for a Row result. Text-typed
// columns come back from the driver as byte slices; they read better as
// strings in an untyped mapping.
func untypedValue(raw any, colType string) any {
	b, ok := raw.([]byte)
	if !ok {
		return raw
	}
	switch strings.ToUpper(colType) {
	case "TEXT", "STRING", "DATE", "TIMESTAMP":
		return string(b)
	default:
		return normalizeRaw(raw)
	}
}

// normalizeRaw copies driver-owned buffers so results outlive the scan.
func normalizeRaw(raw any) any {
	if b, ok := raw.([]byte); ok {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	return raw
}
