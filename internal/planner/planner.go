package planner

import (
	"fmt"
	"strings"

	"github.com/zakazai/enrichdb/internal/parser"
	"github.com/zakazai/enrichdb/internal/storage"
)

// Plan types
const (
	TypeCreate = "CREATE"
	TypeInsert = "INSERT"
	TypeSelect = "SELECT"
	TypeUpdate = "UPDATE"
	TypeDelete = "DELETE"
	TypeShow   = "SHOW"
)

// Plan represents a query execution plan
type Plan struct {
	Type   string
	Table  string
	Where  storage.Predicate
	Set    map[string]interface{}
	Values map[string]interface{}
	Limit  int
}

// Result holds whatever an executed plan produced. Only the fields
// relevant to the plan type are set.
type Result struct {
	Key      int                `json:"key,omitempty"`
	Affected int                `json:"affected"`
	Rows     *storage.ResultSet `json:"rows,omitempty"`
	Tables   []string           `json:"tables,omitempty"`
}

func NewCreate(table string) *Plan {
	return &Plan{Type: TypeCreate, Table: table}
}

func NewInsert(table string, values map[string]interface{}) *Plan {
	return &Plan{Type: TypeInsert, Table: table, Values: values}
}

func NewSelect(table string, where storage.Predicate, limit int) *Plan {
	return &Plan{Type: TypeSelect, Table: table, Where: where, Limit: limit}
}

func NewUpdate(table string, where storage.Predicate, set map[string]interface{}) *Plan {
	return &Plan{Type: TypeUpdate, Table: table, Where: where, Set: set}
}

func NewDelete(table string, where storage.Predicate) *Plan {
	return &Plan{Type: TypeDelete, Table: table, Where: where}
}

func NewShow() *Plan {
	return &Plan{Type: TypeShow}
}

// FromText builds a SELECT, UPDATE or DELETE plan from textual where and
// set clauses.
func FromText(kind, table, where, set string, limit int) (*Plan, error) {
	predicate, err := parser.ParseWhere(where)
	if err != nil {
		return nil, err
	}

	switch strings.ToUpper(kind) {
	case TypeSelect:
		return NewSelect(table, predicate, limit), nil
	case TypeUpdate:
		changes, err := parser.ParseAssignments(set)
		if err != nil {
			return nil, err
		}
		return NewUpdate(table, predicate, changes), nil
	case TypeDelete:
		return NewDelete(table, predicate), nil
	default:
		return nil, fmt.Errorf("unsupported plan type: %s", kind)
	}
}

// Execute executes the query plan
func (p *Plan) Execute(store storage.Storage) (*Result, error) {
	switch p.Type {
	case TypeCreate:
		return &Result{}, store.CreateTable(p.Table)
	case TypeInsert:
		key, err := store.Insert(p.Table, p.Values)
		if err != nil {
			return nil, err
		}
		return &Result{Key: key, Affected: 1}, nil
	case TypeSelect:
		rows, err := store.Select(p.Table, p.Where, p.Limit)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: rows, Affected: rows.Len()}, nil
	case TypeUpdate:
		n, err := store.Update(p.Table, p.Where, p.Set)
		if err != nil {
			return nil, err
		}
		return &Result{Affected: n}, nil
	case TypeDelete:
		n, err := store.Delete(p.Table, p.Where)
		if err != nil {
			return nil, err
		}
		return &Result{Affected: n}, nil
	case TypeShow:
		return &Result{Tables: store.ShowTables()}, nil
	default:
		return nil, fmt.Errorf("unsupported plan type: %s", p.Type)
	}
}

// Planner executes plans against one store
type Planner struct {
	storage storage.Storage
}

// NewPlanner creates a new planner
func NewPlanner(store storage.Storage) *Planner {
	return &Planner{
		storage: store,
	}
}

func (p *Planner) Execute(plan *Plan) (*Result, error) {
	return plan.Execute(p.storage)
}
