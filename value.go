package relata

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"
)

// ID is the advisory copy of a row's surrogate identity. A record type may
// declare at most one ID field; Put and Get stamp it after the row's
// identity is known. Zero means "identity unknown", not "unpersisted" -
// identities assigned by the backing store start at 1.
type ID int64

// fieldState is the tri-state of a Value.
type fieldState uint8

const (
	stateUnset fieldState = iota // the "unchanged" sentinel
	stateNull
	stateSet
)

// Value is a tri-state field wrapper. The zero Value is unset, which acts
// as the "unchanged" sentinel: the field is skipped when filtering,
// inserting, or updating. Null is a distinct, ordinary value stored as SQL
// NULL. Plain (unwrapped) fields are always considered set.
type Value[T any] struct {
	val   T
	state fieldState
}

// Set returns a Value holding v.
func Set[T any](v T) Value[T] {
	return Value[T]{val: v, state: stateSet}
}

// Null returns a Value representing SQL NULL.
func Null[T any]() Value[T] {
	return Value[T]{state: stateNull}
}

// Get returns the held value and whether one is set.
func (v Value[T]) Get() (T, bool) {
	return v.val, v.state == stateSet
}

// IsNull reports whether the Value represents SQL NULL.
func (v Value[T]) IsNull() bool {
	return v.state == stateNull
}

// IsUnset reports whether the Value is the "unchanged" sentinel.
func (v Value[T]) IsUnset() bool {
	return v.state == stateUnset
}

// optionalField is the reflection hook used by descriptor derivation and
// field decomposition to see through Value wrappers.
type optionalField interface {
	optValue() (any, fieldState)
}

// optionalSetter is implemented by *Value[T] so scans can write through.
type optionalSetter interface {
	setOpt(val any, st fieldState) error
}

func (v Value[T]) optValue() (any, fieldState) {
	return v.val, v.state
}

func (v *Value[T]) setOpt(val any, st fieldState) error {
	if st != stateSet {
		*v = Value[T]{state: st}
		return nil
	}
	var t T
	dst := reflect.ValueOf(&t).Elem()
	if err := assignScanned(dst, val); err != nil {
		return err
	}
	*v = Value[T]{val: t, state: stateSet}
	return nil
}

// Unchanged is the sentinel accepted by WhereFields map values; entries
// holding it are skipped entirely.
var Unchanged = unchanged{}

type unchanged struct{}

// Date is a day-precision timestamp stored in a DATE column.
type Date struct {
	time.Time
}

// NewDate returns the Date for the given calendar day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

const dateFormat = "2006-01-02"

// Value implements driver.Valuer, binding the date as its ISO-8601 day.
func (d Date) Value() (driver.Value, error) {
	return d.Format(dateFormat), nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = Date{v}
		return nil
	case string:
		t, err := time.Parse(dateFormat, v)
		if err != nil {
			return fmt.Errorf("scan date %q: %w", v, err)
		}
		*d = Date{t}
		return nil
	case []byte:
		return d.Scan(string(v))
	default:
		return fmt.Errorf("scan date: unsupported source %T", src)
	}
}
