package storage

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zakazai/enrichdb/internal/types"
)

func kyle() map[string]interface{} {
	return map[string]interface{}{
		"name":         "Kyle",
		"email":        "kyle@x.com",
		"domain":       "x",
		"topLevelName": "com",
		"age":          30,
		"gender":       "male",
		"nationality":  "US",
	}
}

func newPeopleStore(t *testing.T) *InMemoryStorage {
	t.Helper()
	store := NewInMemoryStorage()
	require.NoError(t, store.CreateTable("T"))

	people := []map[string]interface{}{
		{"name": "Ann", "age": 41, "gender": "female", "nationality": "GB"},
		{"name": "Bob", "age": 25, "gender": "male", "nationality": "US"},
		{"name": "Cid", "gender": "male"},
		{"name": "Dee", "age": 30, "gender": "female", "nationality": "US"},
	}
	for _, p := range people {
		_, err := store.Insert("T", p)
		require.NoError(t, err)
	}
	return store
}

func TestCreateTable(t *testing.T) {
	store := NewInMemoryStorage()

	assert.NoError(t, store.CreateTable("T"))
	_, err := store.Insert("T", kyle())
	require.NoError(t, err)

	// Creating again leaves the existing rows alone
	assert.NoError(t, store.CreateTable("T"))
	rs, err := store.Select("T", nil, NoLimit)
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())

	assert.Error(t, store.CreateTable(""))
	assert.Equal(t, []string{"T"}, store.ShowTables())
}

func TestInsert(t *testing.T) {
	store := NewInMemoryStorage()
	require.NoError(t, store.CreateTable("T"))

	t.Run("assigns sequential keys", func(t *testing.T) {
		k1, err := store.Insert("T", kyle())
		require.NoError(t, err)
		k2, err := store.Insert("T", kyle())
		require.NoError(t, err)
		assert.Equal(t, 1, k1)
		assert.Equal(t, 2, k2)
	})

	t.Run("missing columns become absent", func(t *testing.T) {
		key, err := store.Insert("T", map[string]interface{}{"name": "Solo", "extra": true})
		require.NoError(t, err)

		rs, err := store.Select("T", Predicate{"name": Where("==", "Solo")}, NoLimit)
		require.NoError(t, err)
		row, ok := rs.Get(key)
		require.True(t, ok)
		assert.Nil(t, row["age"])
		assert.Nil(t, row["email"])
		assert.NotContains(t, row, "extra")
		assert.Len(t, row, len(types.Schema))
	})

	t.Run("integer kinds are normalized", func(t *testing.T) {
		key, err := store.Insert("T", map[string]interface{}{"name": "Small", "age": int64(7)})
		require.NoError(t, err)
		rs, err := store.Select("T", Predicate{"name": Where("==", "Small")}, NoLimit)
		require.NoError(t, err)
		row, _ := rs.Get(key)
		assert.Equal(t, 7, row["age"])
	})

	t.Run("unknown table", func(t *testing.T) {
		_, err := store.Insert("Missing", kyle())
		var target *UnknownTableError
		require.True(t, errors.As(err, &target))
		assert.Equal(t, "Missing", target.Table)
	})
}

func TestInsertTypeMismatchWritesNothing(t *testing.T) {
	tests := []struct {
		name   string
		column string
		value  interface{}
	}{
		{"string age", "age", "30"},
		{"float age", "age", 30.5},
		{"int name", "name", 12},
		{"bool gender", "gender", true},
		{"unsigned age beyond int range", "age", uint64(math.MaxUint64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewInMemoryStorage()
			require.NoError(t, store.CreateTable("T"))

			values := kyle()
			values[tt.column] = tt.value
			_, err := store.Insert("T", values)

			var target *TypeMismatchError
			require.True(t, errors.As(err, &target))
			assert.Equal(t, tt.column, target.Column)

			rs, err := store.Select("T", nil, NoLimit)
			require.NoError(t, err)
			assert.Equal(t, 0, rs.Len())

			// The failed insert did not consume a key
			last, err := store.LastKey("T")
			require.NoError(t, err)
			assert.Equal(t, 0, last)
		})
	}
}

func TestKeyProbing(t *testing.T) {
	store := NewInMemoryStorage()
	require.NoError(t, store.CreateTable("T"))

	require.NoError(t, store.PutRow("T", 1, map[string]interface{}{"name": "one"}))
	require.NoError(t, store.PutRow("T", 2, map[string]interface{}{"name": "two"}))
	require.NoError(t, store.PutRow("T", 4, map[string]interface{}{"name": "four"}))

	key, err := store.Insert("T", map[string]interface{}{"name": "three"})
	require.NoError(t, err)
	assert.Equal(t, 3, key)

	key, err = store.Insert("T", map[string]interface{}{"name": "five"})
	require.NoError(t, err)
	assert.Equal(t, 5, key)

	last, err := store.LastKey("T")
	require.NoError(t, err)
	assert.Equal(t, 5, last)

	assert.Error(t, store.PutRow("T", 0, kyle()))
}

func TestKeysNotReusedAfterDelete(t *testing.T) {
	store := NewInMemoryStorage()
	require.NoError(t, store.CreateTable("T"))

	_, err := store.Insert("T", kyle())
	require.NoError(t, err)
	_, err = store.Delete("T", nil)
	require.NoError(t, err)

	key, err := store.Insert("T", kyle())
	require.NoError(t, err)
	assert.Equal(t, 2, key)
}

func TestSelect(t *testing.T) {
	store := newPeopleStore(t)

	tests := []struct {
		name  string
		where Predicate
		limit int
		want  []int
	}{
		{"empty predicate returns all in order", nil, NoLimit, []int{1, 2, 3, 4}},
		{"equality", Predicate{"name": Where("==", "Bob")}, NoLimit, []int{2}},
		{"greater than", Predicate{"age": Where(">", 25)}, NoLimit, []int{1, 4}},
		{"less than", Predicate{"age": Where("<", 30)}, NoLimit, []int{2}},
		{"greater or equal", Predicate{"age": Where(">=", 30)}, NoLimit, []int{1, 4}},
		{"less or equal", Predicate{"age": Where("<=", 30)}, NoLimit, []int{2, 4}},
		{"string ordering", Predicate{"name": Where(">", "B")}, NoLimit, []int{2, 3, 4}},
		{"conjunction", Predicate{"gender": Where("==", "female"), "nationality": Where("==", "US")}, NoLimit, []int{4}},
		{"limit truncates", nil, 2, []int{1, 2}},
		{"limit zero", nil, 0, []int{}},
		{"limit beyond size", Predicate{"gender": Where("==", "male")}, 10, []int{2, 3}},
		{"operand type mismatch", Predicate{"age": Where("==", "30")}, NoLimit, []int{}},
		{"nil operand", Predicate{"age": Where("==", nil)}, NoLimit, []int{}},
		{"absent value never matches", Predicate{"age": Where("<", 1000)}, NoLimit, []int{1, 2, 4}},
		{"unsigned operand beyond int range", Predicate{"age": Where(">", uint64(math.MaxUint64))}, NoLimit, []int{}},
		{"unsigned operand in range", Predicate{"age": Where(">=", uint(30))}, NoLimit, []int{1, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := store.Select("T", tt.where, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rs.Keys())
		})
	}
}

func TestSelectLimitIsPrefix(t *testing.T) {
	store := newPeopleStore(t)
	where := Predicate{"gender": Where("==", "male")}

	all, err := store.Select("T", where, NoLimit)
	require.NoError(t, err)

	for limit := 0; limit <= all.Len()+1; limit++ {
		rs, err := store.Select("T", where, limit)
		require.NoError(t, err)
		n := limit
		if n > all.Len() {
			n = all.Len()
		}
		assert.Equal(t, all.Keys()[:n], rs.Keys())
	}
}

func TestSelectErrors(t *testing.T) {
	store := newPeopleStore(t)

	_, err := store.Select("Nope", nil, NoLimit)
	var tableErr *UnknownTableError
	assert.True(t, errors.As(err, &tableErr))

	_, err = store.Select("T", Predicate{"height": Where(">", 1)}, NoLimit)
	var colErr *UnknownColumnError
	require.True(t, errors.As(err, &colErr))
	assert.Equal(t, "height", colErr.Column)
}

func TestSelectReturnsCopies(t *testing.T) {
	store := newPeopleStore(t)

	rs, err := store.Select("T", Predicate{"name": Where("==", "Ann")}, NoLimit)
	require.NoError(t, err)
	row, _ := rs.Get(1)
	row["name"] = "Changed"

	rs, err = store.Select("T", Predicate{"name": Where("==", "Ann")}, NoLimit)
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())
}

func TestUpdate(t *testing.T) {
	store := NewInMemoryStorage()
	require.NoError(t, store.CreateTable("T"))
	key, err := store.Insert("T", kyle())
	require.NoError(t, err)
	assert.Equal(t, 1, key)

	n, err := store.Update("T", Predicate{"name": Where("==", "Kyle")}, map[string]interface{}{"age": 26})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rs, err := store.Select("T", nil, NoLimit)
	require.NoError(t, err)
	row, ok := rs.Get(1)
	require.True(t, ok)
	want := types.Row(kyle())
	want["age"] = 26
	assert.Equal(t, want, row)

	rs, err = store.Select("T", Predicate{"age": Where(">=", 30)}, NoLimit)
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
}

func TestUpdateErrors(t *testing.T) {
	store := newPeopleStore(t)
	before := store.Dump()

	tests := []struct {
		name  string
		table string
		where Predicate
		set   map[string]interface{}
		check func(t *testing.T, err error)
	}{
		{
			name:  "unknown change column",
			table: "T",
			set:   map[string]interface{}{"height": 1},
			check: func(t *testing.T, err error) {
				var target *UnknownColumnError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:  "mismatched change value",
			table: "T",
			set:   map[string]interface{}{"age": "old"},
			check: func(t *testing.T, err error) {
				var target *TypeMismatchError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:  "absent marker rejected",
			table: "T",
			set:   map[string]interface{}{"age": nil},
			check: func(t *testing.T, err error) {
				var target *TypeMismatchError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:  "unknown table",
			table: "Nope",
			set:   map[string]interface{}{"age": 1},
			check: func(t *testing.T, err error) {
				var target *UnknownTableError
				assert.True(t, errors.As(err, &target))
			},
		},
		{
			name:  "unknown predicate column",
			table: "T",
			where: Predicate{"height": Where("==", 1)},
			set:   map[string]interface{}{"age": 1},
			check: func(t *testing.T, err error) {
				var target *UnknownColumnError
				assert.True(t, errors.As(err, &target))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := store.Update(tt.table, tt.where, tt.set)
			require.Error(t, err)
			assert.Equal(t, 0, n)
			tt.check(t, err)
			assert.Equal(t, before, store.Dump())
		})
	}
}

func TestDelete(t *testing.T) {
	store := newPeopleStore(t)
	where := Predicate{"nationality": Where("==", "US")}

	matched, err := store.Select("T", where, NoLimit)
	require.NoError(t, err)

	n, err := store.Delete("T", where)
	require.NoError(t, err)
	assert.Equal(t, matched.Len(), n)

	rs, err := store.Select("T", nil, NoLimit)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, rs.Keys())

	// No match leaves the table unchanged
	before := store.Dump()
	n, err = store.Delete("T", Predicate{"name": Where("==", "Craig")})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, before, store.Dump())
}

func TestDeleteErrors(t *testing.T) {
	store := newPeopleStore(t)

	_, err := store.Delete("Nope", nil)
	var tableErr *UnknownTableError
	assert.True(t, errors.As(err, &tableErr))

	_, err = store.Delete("T", Predicate{"height": Where("==", 1)})
	var colErr *UnknownColumnError
	assert.True(t, errors.As(err, &colErr))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "table T does not exist", (&UnknownTableError{Table: "T"}).Error())
	assert.Equal(t, "invalid column name: height", (&UnknownColumnError{Column: "height"}).Error())
	assert.Equal(t, "invalid data type for column age: expected integer, got string",
		(&TypeMismatchError{Column: "age", Expected: types.TypeInt, Value: "x"}).Error())
}

func TestResultSetJSON(t *testing.T) {
	store := NewInMemoryStorage()
	require.NoError(t, store.CreateTable("T"))
	require.NoError(t, store.PutRow("T", 10, map[string]interface{}{"name": "ten", "age": 10}))
	require.NoError(t, store.PutRow("T", 2, map[string]interface{}{"name": "two"}))

	rs, err := store.Select("T", nil, NoLimit)
	require.NoError(t, err)

	data, err := json.Marshal(rs)
	require.NoError(t, err)
	assert.Regexp(t, `^\{"10":\{.*\},"2":\{.*\}\}$`, string(data))

	var decoded ResultSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []int{10, 2}, decoded.Keys())
	row, _ := decoded.Get(10)
	assert.Equal(t, 10, row["age"])
	assert.Nil(t, row["gender"])

	empty, err := json.Marshal(&ResultSet{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(empty))
}

func TestClauseJSON(t *testing.T) {
	var where Predicate
	require.NoError(t, json.Unmarshal([]byte(`{"age":[">=",30],"name":["=","Kyle"]}`), &where))
	assert.Equal(t, Predicate{"age": Where(">=", 30), "name": Where("==", "Kyle")}, where)

	data, err := json.Marshal(Predicate{"age": Where("<", 5)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"age":["<",5]}`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`{"age":["!=",1]}`), &where))
	assert.Error(t, json.Unmarshal([]byte(`{"age":[">="]}`), &where))
}

func TestParseOperator(t *testing.T) {
	for symbol, want := range map[string]Operator{"==": OpEq, "=": OpEq, ">": OpGt, "<": OpLt, ">=": OpGe, "<=": OpLe} {
		op, err := ParseOperator(symbol)
		require.NoError(t, err)
		assert.Equal(t, want, op)
	}
	_, err := ParseOperator("LIKE")
	assert.Error(t, err)
	assert.Panics(t, func() { Where("!", 1) })
}
