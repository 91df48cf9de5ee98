// Package table is the in-memory tabular model shared by the input sources
// and the analysis core.
//
// A Table is a fully materialized set of rows with an ordered column list.
// Cells hold whatever typed value the source produced (nil, float64, int64,
// string, []byte, bool or time.Time); Float and Time convert a cell on
// demand and report whether it was null.
//
// errors.go defines the error kinds surfaced by the pipeline:
// SchemaMismatchError and MalformedValueError. Both match their sentinel
// (ErrSchemaMismatch, ErrMalformedValue) through errors.Is.
package table
