package relata

import (
	"reflect"
	"strings"
	"time"
	"unicode"
)

// semanticType classifies a primitive column for the static type-to-column
// lookup.
type semanticType int

const (
	typeInteger semanticType = iota
	typeFloat
	typeText
	typeBinary
	typeDate
	typeTimestamp
	typeOpaque
)

// columnType returns the SQLite column type for a semantic type.
func (t semanticType) columnType() string {
	switch t {
	case typeInteger:
		return "INTEGER"
	case typeFloat:
		return "REAL"
	case typeText:
		return "TEXT"
	case typeBinary:
		return "BLOB"
	case typeDate:
		return "DATE"
	case typeTimestamp:
		return "TIMESTAMP"
	default:
		return "STRING"
	}
}

// fieldKind distinguishes primitive columns from relation fields.
type fieldKind int

const (
	kindPrimitive fieldKind = iota
	kindSingleRef
	kindMultiRef
)

// fieldDesc describes one declared field of a record type.
type fieldDesc struct {
	name     string       // column name (primitives) or relation key
	index    int          // struct field index
	kind     fieldKind
	semType  semanticType // primitives only
	optional bool         // wrapped in Value[T]
	elem     reflect.Type // referenced record type, or wrapped primitive type
	ptr      bool         // relation declared through a pointer
}

// descriptor is the immutable type descriptor derived once per record type:
// the ordered primitive fields, the relation fields, and the advisory
// identity slot if the type declares one.
type descriptor struct {
	typ        reflect.Type
	table      string
	idIndex    int // index of the ID field, -1 when absent
	primitives []fieldDesc
	relations  []fieldDesc
}

var (
	idType       = reflect.TypeOf(ID(0))
	timeType     = reflect.TypeOf(time.Time{})
	dateType     = reflect.TypeOf(Date{})
	bytesType    = reflect.TypeOf([]byte(nil))
	optionalType = reflect.TypeOf((*optionalField)(nil)).Elem()
)

// isRecordType reports whether t is a registrable record struct. Wrapper
// and temporal structs are primitives, not records.
func isRecordType(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	if t == timeType || t == dateType {
		return false
	}
	return !t.Implements(optionalType)
}

// recordTypeOf resolves a record struct type from a type prototype, an
// instance, or a pointer to one.
func recordTypeOf(ref any) (reflect.Type, error) {
	if t, ok := ref.(reflect.Type); ok {
		if isRecordType(t) {
			return t, nil
		}
		return nil, invalidReference("%s is not a record struct type", t)
	}
	t := reflect.TypeOf(ref)
	if t == nil {
		return nil, invalidReference("nil is not a record reference")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if !isRecordType(t) {
		return nil, invalidReference("%s is not a record struct type", t)
	}
	return t, nil
}

// TableName resolves a table name: a record type or instance yields its
// type name, a string is returned unchanged, anything else fails with an
// invalid-reference error.
func TableName(ref any) (string, error) {
	if name, ok := ref.(string); ok {
		return name, nil
	}
	t, err := recordTypeOf(ref)
	if err != nil {
		return "", invalidReference("table expects a record type, record instance, or table name (string)")
	}
	return t.Name(), nil
}

// describe returns the cached descriptor for a record type, deriving it
// lazily. Derivation partitions the declared fields: an ID field is the
// identity slot, struct-typed fields (or pointers/slices of them) are
// relations, everything else is a primitive column.
func (db *DB) describe(t reflect.Type) *descriptor {
	if d, ok := db.descs[t]; ok {
		return d
	}
	d := &descriptor{typ: t, table: t.Name(), idIndex: -1}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := snakeCase(f.Name)
		if tag, ok := f.Tag.Lookup("db"); ok {
			if tag == "-" {
				continue
			}
			name = tag
		}
		switch {
		case f.Type == idType:
			if d.idIndex < 0 {
				d.idIndex = i
			}
		case f.Type.Implements(optionalType):
			elem := optionalElemType(f.Type)
			d.primitives = append(d.primitives, fieldDesc{
				name: name, index: i, kind: kindPrimitive,
				semType: semanticTypeOf(elem), optional: true, elem: elem,
			})
		case isRecordType(f.Type):
			d.relations = append(d.relations, fieldDesc{
				name: name, index: i, kind: kindSingleRef, elem: f.Type,
			})
		case f.Type.Kind() == reflect.Pointer && isRecordType(f.Type.Elem()):
			d.relations = append(d.relations, fieldDesc{
				name: name, index: i, kind: kindSingleRef, elem: f.Type.Elem(), ptr: true,
			})
		case f.Type.Kind() == reflect.Slice && isRecordType(f.Type.Elem()):
			d.relations = append(d.relations, fieldDesc{
				name: name, index: i, kind: kindMultiRef, elem: f.Type.Elem(),
			})
		case f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.Pointer && isRecordType(f.Type.Elem().Elem()):
			d.relations = append(d.relations, fieldDesc{
				name: name, index: i, kind: kindMultiRef, elem: f.Type.Elem().Elem(), ptr: true,
			})
		default:
			d.primitives = append(d.primitives, fieldDesc{
				name: name, index: i, kind: kindPrimitive, semType: semanticTypeOf(f.Type),
			})
		}
	}
	db.descs[t] = d
	return d
}

// optionalElemType recovers T from a Value[T] field type.
func optionalElemType(t reflect.Type) reflect.Type {
	zero := reflect.New(t).Elem().Interface().(optionalField)
	val, _ := zero.optValue()
	if val == nil {
		return nil
	}
	return reflect.TypeOf(val)
}

// semanticTypeOf maps a Go type onto the column-type lookup.
func semanticTypeOf(t reflect.Type) semanticType {
	if t == nil {
		return typeOpaque
	}
	switch t {
	case timeType:
		return typeTimestamp
	case dateType:
		return typeDate
	case bytesType:
		return typeBinary
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Bool:
		return typeInteger
	case reflect.Float32, reflect.Float64:
		return typeFloat
	case reflect.String:
		return typeText
	default:
		return typeOpaque
	}
}

// snakeCase converts an exported Go field name to its column name.
func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			boundary := i > 0 && (!unicode.IsUpper(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1])))
			if boundary {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
