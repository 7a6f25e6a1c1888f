package types

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// DecodeRow unmarshals a JSON object into a Row, converting integral
// numbers to int so they satisfy integer columns.
func DecodeRow(data []byte) (Row, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw map[string]interface{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}

	row := make(Row, len(raw))
	for k, v := range raw {
		row[k] = FromJSON(v)
	}
	return row, nil
}

// FromJSON converts a value produced by a json.Decoder with UseNumber.
// Integral numbers become int, other numbers float64. Everything else is
// returned unchanged.
func FromJSON(v interface{}) interface{} {
	num, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := strconv.Atoi(num.String()); err == nil {
		return i
	}
	if f, err := num.Float64(); err == nil {
		return f
	}
	return num.String()
}
