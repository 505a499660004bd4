package relata

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// sqliteTimeFormat matches the text representation the driver binds for
// time.Time parameters, so rendered literals compare equal to stored rows.
const sqliteTimeFormat = "2006-01-02 15:04:05.999999999-07:00"

// fieldValue is one decomposed primitive field: a column name and a
// driver-ready value (nil meaning SQL NULL).
type fieldValue struct {
	col string
	val any
}

// primitiveValues decomposes a record into column/value pairs, skipping
// fields holding the "unchanged" sentinel. When cols is non-nil only
// columns present in it are kept (the declared-intersect-stored rule).
func primitiveValues(d *descriptor, rv reflect.Value, cols map[string]bool) []fieldValue {
	var out []fieldValue
	for _, fd := range d.primitives {
		if cols != nil && !cols[fd.name] {
			continue
		}
		fv := rv.Field(fd.index)
		if fd.optional {
			val, st := fv.Interface().(optionalField).optValue()
			switch st {
			case stateUnset:
				continue
			case stateNull:
				out = append(out, fieldValue{col: fd.name, val: nil})
			default:
				out = append(out, fieldValue{col: fd.name, val: val})
			}
			continue
		}
		out = append(out, fieldValue{col: fd.name, val: fv.Interface()})
	}
	return out
}

// exampleCondition renders a by-example record as an AND-joined boolean
// fragment over its non-sentinel primitive fields. Relation fields never
// participate in filtering.
func exampleCondition(d *descriptor, rv reflect.Value, cols map[string]bool) string {
	values := primitiveValues(d, rv, cols)
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v.val == nil {
			parts = append(parts, quoteIdent(v.col)+" IS NULL")
			continue
		}
		parts = append(parts, quoteIdent(v.col)+" = "+sqlLiteral(v.val))
	}
	return strings.Join(parts, " AND ")
}

// fieldFilterCondition renders key/value filters. Keys are sorted so the
// emitted SQL is deterministic. A string value that reads like an operator
// fragment is emitted verbatim after the column name; everything else is
// an equality test against the literal.
func fieldFilterCondition(filters map[string]any) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		v := filters[k]
		if _, skip := v.(unchanged); skip {
			continue
		}
		if v == nil {
			parts = append(parts, quoteIdent(k)+" IS NULL")
			continue
		}
		if s, ok := v.(string); ok && isOperatorFragment(s) {
			parts = append(parts, quoteIdent(k)+" "+s)
			continue
		}
		parts = append(parts, quoteIdent(k)+" = "+sqlLiteral(v))
	}
	return strings.Join(parts, " AND ")
}

// operator keywords that mark a string filter value as a raw fragment.
var operatorKeywords = []string{"LIKE", "IN", "NOT", "IS", "BETWEEN"}

func isOperatorFragment(s string) bool {
	if s == "" {
		return false
	}
	upper := strings.ToUpper(strings.TrimSpace(s))
	for _, kw := range operatorKeywords {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	if strings.ContainsAny(s, " \t") {
		return true
	}
	return strings.ContainsRune("<>!=", rune(s[0]))
}

// combineConditions ANDs a freshly supplied condition onto an accumulated
// one. The fresh condition is parenthesized when an accumulated condition
// already exists, preserving precedence.
func combineConditions(accumulated, fresh string) string {
	switch {
	case accumulated == "":
		return fresh
	case fresh == "":
		return accumulated
	default:
		return accumulated + " AND (" + fresh + ")"
	}
}

// sqlLiteral renders a Go value as a SQL literal for condition fragments.
func sqlLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteText(val)
	case []byte:
		return "X'" + hex.EncodeToString(val) + "'"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		return quoteText(val.Format(sqliteTimeFormat))
	case Date:
		return quoteText(val.Format(dateFormat))
	case ID:
		return strconv.FormatInt(int64(val), 10)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	case reflect.String:
		return quoteText(rv.String())
	case reflect.Bool:
		if rv.Bool() {
			return "1"
		}
		return "0"
	default:
		return quoteText(fmt.Sprint(v))
	}
}

func quoteText(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
