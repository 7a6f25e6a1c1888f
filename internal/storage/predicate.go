package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/zakazai/enrichdb/internal/types"
)

// Operator is a comparison operator usable in a predicate clause
type Operator int

const (
	OpEq Operator = iota
	OpGt
	OpLt
	OpGe
	OpLe
)

var operatorSymbols = map[Operator]string{
	OpEq: "==",
	OpGt: ">",
	OpLt: "<",
	OpGe: ">=",
	OpLe: "<=",
}

func (op Operator) String() string {
	if s, ok := operatorSymbols[op]; ok {
		return s
	}
	return fmt.Sprintf("Operator(%d)", int(op))
}

// ParseOperator maps a symbol to an Operator. "=" is accepted as an alias
// for "==".
func ParseOperator(symbol string) (Operator, error) {
	switch symbol {
	case "==", "=":
		return OpEq, nil
	case ">":
		return OpGt, nil
	case "<":
		return OpLt, nil
	case ">=":
		return OpGe, nil
	case "<=":
		return OpLe, nil
	}
	return 0, fmt.Errorf("unsupported operator: %q", symbol)
}

// Clause compares one column against an operand.
type Clause struct {
	Op      Operator
	Operand interface{}
}

// Where builds a Clause from an operator symbol. It panics on an unknown
// symbol and is meant for literals in code and tests.
func Where(symbol string, operand interface{}) Clause {
	op, err := ParseOperator(symbol)
	if err != nil {
		panic(err)
	}
	return Clause{Op: op, Operand: operand}
}

// MarshalJSON encodes the clause as a two element array, e.g. [">=", 30].
func (c Clause) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{c.Op.String(), c.Operand})
}

// UnmarshalJSON decodes the two element array form.
func (c *Clause) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw []interface{}
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("clause must be [operator, operand], got %d elements", len(raw))
	}
	symbol, ok := raw[0].(string)
	if !ok {
		return fmt.Errorf("clause operator must be a string")
	}
	op, err := ParseOperator(symbol)
	if err != nil {
		return err
	}
	c.Op = op
	c.Operand = types.FromJSON(raw[1])
	return nil
}

// Predicate maps column names to clauses. A row matches when it satisfies
// every clause; an empty predicate matches every row.
type Predicate map[string]Clause

func (p Predicate) validate() error {
	for col := range p {
		if _, ok := types.LookupColumn(col); !ok {
			return &UnknownColumnError{Column: col}
		}
	}
	return nil
}

// Matches reports whether row satisfies every clause of p.
func (p Predicate) Matches(row types.Row) bool {
	for col, clause := range p {
		if !compare(row[col], clause) {
			return false
		}
	}
	return true
}

// compare evaluates a single clause against a stored value. The absent
// marker and operands of a different type never match.
func compare(stored interface{}, clause Clause) bool {
	if stored == nil || clause.Operand == nil {
		return false
	}

	switch a := stored.(type) {
	case int:
		b, ok := types.Normalize(clause.Operand, types.TypeInt)
		if !ok {
			return false
		}
		return compareInts(a, b.(int), clause.Op)
	case string:
		b, ok := clause.Operand.(string)
		if !ok {
			return false
		}
		return compareStrings(a, b, clause.Op)
	}
	return false
}

func compareInts(a, b int, op Operator) bool {
	switch op {
	case OpEq:
		return a == b
	case OpGt:
		return a > b
	case OpLt:
		return a < b
	case OpGe:
		return a >= b
	case OpLe:
		return a <= b
	default:
		return false
	}
}

func compareStrings(a, b string, op Operator) bool {
	switch op {
	case OpEq:
		return a == b
	case OpGt:
		return a > b
	case OpLt:
		return a < b
	case OpGe:
		return a >= b
	case OpLe:
		return a <= b
	default:
		return false
	}
}
