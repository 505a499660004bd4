package relata

import (
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrorCode categorizes persistence errors.
type ErrorCode string

const (
	// CodeInvalidReference indicates a table/type argument that is neither
	// a record struct, a record instance, nor a table name.
	CodeInvalidReference ErrorCode = "INVALID_REFERENCE"

	// CodeInvalidSpecification indicates a malformed unique-constraint shape.
	CodeInvalidSpecification ErrorCode = "INVALID_SPECIFICATION"

	// CodeIntegrityConflict indicates the backing store rejected a write
	// because of an unresolvable uniqueness clash.
	CodeIntegrityConflict ErrorCode = "INTEGRITY_CONFLICT"
)

// Error is a persistence error with a machine-readable code.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Table names the affected table, when known.
	Table string

	// Err is the underlying backing-store error, when one exists.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s: %s (table=%s)", e.Code, e.Message, e.Table)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying backing-store error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsInvalidReference reports whether err is an invalid-reference error.
// Uses errors.As to handle wrapped errors.
func IsInvalidReference(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == CodeInvalidReference
}

// IsInvalidSpecification reports whether err is a malformed unique-spec error.
func IsInvalidSpecification(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == CodeInvalidSpecification
}

// IsIntegrityConflict reports whether err is a uniqueness-conflict error.
func IsIntegrityConflict(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == CodeIntegrityConflict
}

func invalidReference(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidReference, Message: fmt.Sprintf(format, args...)}
}

func invalidSpecification(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidSpecification, Message: fmt.Sprintf(format, args...)}
}

// translateWriteError maps SQLite constraint violations to IntegrityConflict
// and passes every other error through unchanged.
func translateWriteError(table string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return &Error{
			Code:    CodeIntegrityConflict,
			Message: "uniqueness constraint rejected the write",
			Table:   table,
			Err:     err,
		}
	}
	return err
}
