package main

import (
	"fmt"
	"strconv"

	"github.com/zakazai/enrichdb/internal/storage"
	"github.com/zakazai/enrichdb/internal/types"
)

// printFormattedResults prints a result set as a table with the key first
// and the schema columns in declaration order.
func printFormattedResults(rs *storage.ResultSet) {
	if rs == nil || rs.Len() == 0 {
		fmt.Println("Empty result set")
		return
	}

	columns := append([]string{"key"}, types.ColumnNames()...)
	widths := make(map[string]int, len(columns))
	for _, col := range columns {
		widths[col] = len(col)
	}

	cells := make([]map[string]string, 0, rs.Len())
	for _, key := range rs.Keys() {
		row, _ := rs.Get(key)
		line := map[string]string{"key": strconv.Itoa(key)}
		for _, col := range types.ColumnNames() {
			val := row[col]
			if val == nil {
				line[col] = "NULL"
			} else {
				line[col] = fmt.Sprintf("%v", val)
			}
		}
		for col, s := range line {
			if len(s) > widths[col] {
				widths[col] = len(s)
			}
		}
		cells = append(cells, line)
	}

	// Print header
	for i, col := range columns {
		if i > 0 {
			fmt.Print(" | ")
		}
		fmt.Printf("%-*s", widths[col], col)
	}
	fmt.Println()

	// Print separator
	for i, col := range columns {
		if i > 0 {
			fmt.Print("-+-")
		}
		for j := 0; j < widths[col]; j++ {
			fmt.Print("-")
		}
	}
	fmt.Println()

	for _, line := range cells {
		for i, col := range columns {
			if i > 0 {
				fmt.Print(" | ")
			}
			fmt.Printf("%-*s", widths[col], line[col])
		}
		fmt.Println()
	}
}
