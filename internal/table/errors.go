package table

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching.
var (
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrMalformedValue = errors.New("malformed value")
)

// SchemaMismatchError reports an expected table or column that is absent.
type SchemaMismatchError struct {
	Table string
	Field string
}

func (e *SchemaMismatchError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema mismatch: no table %q", e.Table)
	}
	if e.Table == "" {
		return fmt.Sprintf("schema mismatch: missing field %q", e.Field)
	}
	return fmt.Sprintf("schema mismatch: table %q has no field %q", e.Table, e.Field)
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// MalformedValueError reports a present value that cannot be read as the
// type its column requires.
type MalformedValueError struct {
	Column string
	Row    int    // zero-based position in the source table
	RowID  string // identifying metadata, e.g. "batch=B1 plate=P1 well=A01"
	Value  any
	Err    error
}

func (e *MalformedValueError) Error() string {
	id := e.RowID
	if id == "" {
		id = "-"
	}
	return fmt.Sprintf("malformed value in column %q at row %d (%s): %v", e.Column, e.Row, id, e.Err)
}

func (e *MalformedValueError) Is(target error) bool { return target == ErrMalformedValue }

func (e *MalformedValueError) Unwrap() error { return e.Err }
