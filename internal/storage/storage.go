package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/zakazai/enrichdb/internal/types"
)

// NoLimit disables truncation in Select.
const NoLimit = -1

// Table represents a database table
type Table struct {
	Name    string
	Rows    map[int]types.Row
	Keys    []int // insertion order
	LastKey int
}

func newTable(name string) *Table {
	return &Table{
		Name: name,
		Rows: make(map[int]types.Row),
	}
}

// reserveKey returns the next free primary key and records it as the
// table's last assigned key.
func (t *Table) reserveKey() int {
	key := t.LastKey + 1
	for {
		if _, taken := t.Rows[key]; !taken {
			break
		}
		key++
	}
	t.LastKey = key
	return key
}

func (t *Table) put(key int, row types.Row) {
	if _, exists := t.Rows[key]; !exists {
		t.Keys = append(t.Keys, key)
	}
	t.Rows[key] = row
}

func (t *Table) remove(keys []int) {
	if len(keys) == 0 {
		return
	}
	drop := make(map[int]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
		delete(t.Rows, k)
	}
	kept := t.Keys[:0]
	for _, k := range t.Keys {
		if !drop[k] {
			kept = append(kept, k)
		}
	}
	t.Keys = kept
}

// matching returns the keys of rows satisfying where, in insertion order,
// stopping after limit matches unless limit is negative.
func (t *Table) matching(where Predicate, limit int) []int {
	var keys []int
	for _, k := range t.Keys {
		if limit >= 0 && len(keys) >= limit {
			break
		}
		if where.Matches(t.Rows[k]) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Database represents the entire database
type Database struct {
	Tables map[string]*Table
	mu     sync.RWMutex
}

// Storage is the row store contract used by the planner and the
// ingestion handler.
type Storage interface {
	CreateTable(name string) error
	Insert(tableName string, values map[string]interface{}) (int, error)
	Select(tableName string, where Predicate, limit int) (*ResultSet, error)
	Update(tableName string, where Predicate, set map[string]interface{}) (int, error)
	Delete(tableName string, where Predicate) (int, error)
	ShowTables() []string
	Dump() map[string]*ResultSet
}

// InMemoryStorage implements Storage interface using in-memory storage
type InMemoryStorage struct {
	db *Database
}

// NewInMemoryStorage creates a new in-memory storage
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		db: &Database{
			Tables: make(map[string]*Table),
		},
	}
}

// CreateTable creates an empty table. Creating an existing table is a no-op.
func (s *InMemoryStorage) CreateTable(name string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if name == "" {
		observe(opCreate, errEmptyTableName)
		return errEmptyTableName
	}
	if _, exists := s.db.Tables[name]; !exists {
		s.db.Tables[name] = newTable(name)
		storeRows.WithLabelValues(name).Set(0)
	}
	observe(opCreate, nil)
	return nil
}

var errEmptyTableName = fmt.Errorf("table name must not be empty")

func (s *InMemoryStorage) table(name string) (*Table, error) {
	table, exists := s.db.Tables[name]
	if !exists {
		return nil, &UnknownTableError{Table: name}
	}
	return table, nil
}

// buildRow validates values against the schema and returns the row to
// store. Missing or nil values become the absent marker; keys outside the
// schema are ignored.
func buildRow(values map[string]interface{}) (types.Row, error) {
	row := make(types.Row, len(types.Schema))
	for _, col := range types.Schema {
		val, exists := values[col.Name]
		if !exists || val == nil {
			row[col.Name] = nil
			continue
		}
		normalized, ok := types.Normalize(val, col.Type)
		if !ok {
			return nil, &TypeMismatchError{Column: col.Name, Expected: col.Type, Value: val}
		}
		row[col.Name] = normalized
	}
	return row, nil
}

// validateChanges checks an update change set. The absent marker is never
// an acceptable update value.
func validateChanges(set map[string]interface{}) (types.Row, error) {
	for name := range set {
		if _, ok := types.LookupColumn(name); !ok {
			return nil, &UnknownColumnError{Column: name}
		}
	}

	changes := make(types.Row, len(set))
	for name, val := range set {
		col, _ := types.LookupColumn(name)
		normalized, ok := types.Normalize(val, col.Type)
		if !ok {
			return nil, &TypeMismatchError{Column: name, Expected: col.Type, Value: val}
		}
		changes[name] = normalized
	}
	return changes, nil
}

// Insert stores a new row and returns its primary key. The whole record is
// validated before anything is written.
func (s *InMemoryStorage) Insert(tableName string, values map[string]interface{}) (key int, err error) {
	defer func() { observe(opInsert, err) }()

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	table, err := s.table(tableName)
	if err != nil {
		return 0, err
	}

	row, err := buildRow(values)
	if err != nil {
		return 0, err
	}

	key = table.reserveKey()
	table.put(key, row)
	storeRows.WithLabelValues(tableName).Set(float64(len(table.Rows)))
	return key, nil
}

// PutRow stores a validated row under an explicit key without advancing the
// table's key counter. An existing row under key is replaced.
func (s *InMemoryStorage) PutRow(tableName string, key int, values map[string]interface{}) (err error) {
	defer func() { observe(opPut, err) }()

	if key <= 0 {
		return fmt.Errorf("primary key must be positive, got %d", key)
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	table, err := s.table(tableName)
	if err != nil {
		return err
	}

	row, err := buildRow(values)
	if err != nil {
		return err
	}

	table.put(key, row)
	storeRows.WithLabelValues(tableName).Set(float64(len(table.Rows)))
	return nil
}

// Select returns the rows matching where in insertion order. A limit of
// zero or more keeps only the first limit matches; NoLimit keeps all.
func (s *InMemoryStorage) Select(tableName string, where Predicate, limit int) (result *ResultSet, err error) {
	defer func() { observe(opSelect, err) }()

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	table, err := s.table(tableName)
	if err != nil {
		return nil, err
	}
	if err := where.validate(); err != nil {
		return nil, err
	}

	result = &ResultSet{}
	for _, k := range table.matching(where, limit) {
		result.Rows = append(result.Rows, KeyedRow{Key: k, Row: table.Rows[k].Clone()})
	}
	return result, nil
}

// Update overwrites the columns named in set on every row matching where
// and returns the number of rows changed.
func (s *InMemoryStorage) Update(tableName string, where Predicate, set map[string]interface{}) (n int, err error) {
	defer func() { observe(opUpdate, err) }()

	changes, err := validateChanges(set)
	if err != nil {
		return 0, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	table, err := s.table(tableName)
	if err != nil {
		return 0, err
	}
	if err := where.validate(); err != nil {
		return 0, err
	}

	keys := table.matching(where, NoLimit)
	for _, k := range keys {
		row := table.Rows[k]
		for col, v := range changes {
			row[col] = v
		}
	}
	return len(keys), nil
}

// Delete removes every row matching where and returns how many were removed.
func (s *InMemoryStorage) Delete(tableName string, where Predicate) (n int, err error) {
	defer func() { observe(opDelete, err) }()

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	table, err := s.table(tableName)
	if err != nil {
		return 0, err
	}
	if err := where.validate(); err != nil {
		return 0, err
	}

	keys := table.matching(where, NoLimit)
	table.remove(keys)
	storeRows.WithLabelValues(tableName).Set(float64(len(table.Rows)))
	return len(keys), nil
}

// ShowTables returns the table names in sorted order.
func (s *InMemoryStorage) ShowTables() []string {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	tables := make([]string, 0, len(s.db.Tables))
	for name := range s.db.Tables {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables
}

// Dump returns a copy of every table's rows.
func (s *InMemoryStorage) Dump() map[string]*ResultSet {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make(map[string]*ResultSet, len(s.db.Tables))
	for name, table := range s.db.Tables {
		rs := &ResultSet{}
		for _, k := range table.Keys {
			rs.Rows = append(rs.Rows, KeyedRow{Key: k, Row: table.Rows[k].Clone()})
		}
		out[name] = rs
	}
	return out
}

// LastKey returns the last primary key assigned in a table.
func (s *InMemoryStorage) LastKey(tableName string) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	table, err := s.table(tableName)
	if err != nil {
		return 0, err
	}
	return table.LastKey, nil
}

// SetLastKey overrides a table's key counter.
func (s *InMemoryStorage) SetLastKey(tableName string, key int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	table, err := s.table(tableName)
	if err != nil {
		return err
	}
	if key < 0 {
		return fmt.Errorf("last key must not be negative, got %d", key)
	}
	table.LastKey = key
	return nil
}

// KeyedRow is a row together with its primary key.
type KeyedRow struct {
	Key int
	Row types.Row
}

// ResultSet is an ordered collection of rows keyed by primary key.
type ResultSet struct {
	Rows []KeyedRow
}

// Len returns the number of rows.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Keys returns the primary keys in order.
func (r *ResultSet) Keys() []int {
	keys := make([]int, 0, r.Len())
	if r == nil {
		return keys
	}
	for _, kr := range r.Rows {
		keys = append(keys, kr.Key)
	}
	return keys
}

// Get returns the row stored under key.
func (r *ResultSet) Get(key int) (types.Row, bool) {
	if r == nil {
		return nil, false
	}
	for _, kr := range r.Rows {
		if kr.Key == key {
			return kr.Row, true
		}
	}
	return nil, false
}

// MarshalJSON encodes the result as an object keyed by primary key,
// preserving row order.
func (r *ResultSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if r != nil {
		for i, kr := range r.Rows {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(strconv.Quote(strconv.Itoa(kr.Key)))
			buf.WriteByte(':')
			data, err := json.Marshal(kr.Row)
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the object form written by MarshalJSON, keeping the
// order of keys as they appear in the document.
func (r *ResultSet) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	tok, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("result set must be a JSON object")
	}

	r.Rows = nil
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return err
		}
		key, err := strconv.Atoi(tok.(string))
		if err != nil {
			return fmt.Errorf("invalid primary key %q: %w", tok, err)
		}

		var raw map[string]interface{}
		if err := decoder.Decode(&raw); err != nil {
			return err
		}
		row := make(types.Row, len(raw))
		for k, v := range raw {
			row[k] = types.FromJSON(v)
		}
		r.Rows = append(r.Rows, KeyedRow{Key: key, Row: row})
	}

	_, err = decoder.Token()
	return err
}
