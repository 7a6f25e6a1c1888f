package storage

import (
	"fmt"

	"github.com/zakazai/enrichdb/internal/types"
)

// UnknownTableError is returned when an operation names a table that was
// never created.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("table %s does not exist", e.Table)
}

// UnknownColumnError is returned when a predicate or change set names a
// column outside the schema.
type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("invalid column name: %s", e.Column)
}

// TypeMismatchError is returned when a value does not match its column's
// declared type.
type TypeMismatchError struct {
	Column   string
	Expected types.DataType
	Value    interface{}
}

func (e *TypeMismatchError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid data type for column %s: expected %s, got no value", e.Column, e.Expected)
	}
	return fmt.Sprintf("invalid data type for column %s: expected %s, got %T", e.Column, e.Expected, e.Value)
}
