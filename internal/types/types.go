package types

import (
	"math"
	"reflect"
)

// DataType is the declared type of a column
type DataType int

const (
	// TypeString holds Go string values
	TypeString DataType = iota
	// TypeInt holds Go int values
	TypeInt
)

func (t DataType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "integer"
	default:
		return "unknown"
	}
}

// Row maps column names to values. A nil value is the absent marker.
type Row map[string]interface{}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

type Column struct {
	Name string
	Type DataType
}

// Schema is the fixed column set shared by every table.
var Schema = []Column{
	{Name: "name", Type: TypeString},
	{Name: "email", Type: TypeString},
	{Name: "domain", Type: TypeString},
	{Name: "topLevelName", Type: TypeString},
	{Name: "age", Type: TypeInt},
	{Name: "gender", Type: TypeString},
	{Name: "nationality", Type: TypeString},
}

// LookupColumn returns the schema column with the given name.
func LookupColumn(name string) (Column, bool) {
	for _, col := range Schema {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the schema column names in declaration order.
func ColumnNames() []string {
	names := make([]string, len(Schema))
	for i, col := range Schema {
		names[i] = col.Name
	}
	return names
}

// Normalize converts value to the canonical Go representation for t.
// ok is false when value is not of type t. nil is never accepted here;
// callers decide whether the absent marker is allowed.
func Normalize(value interface{}, t DataType) (interface{}, bool) {
	if value == nil {
		return nil, false
	}
	switch t {
	case TypeString:
		s, ok := value.(string)
		return s, ok
	case TypeInt:
		return normalizeInt(value)
	}
	return nil, false
}

func normalizeInt(value interface{}) (interface{}, bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.Int() > math.MaxInt || rv.Int() < math.MinInt {
			return nil, false
		}
		return int(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		// values that do not fit an int are rejected rather than wrapped
		if rv.Uint() > math.MaxInt {
			return nil, false
		}
		return int(rv.Uint()), true
	}
	return nil, false
}
