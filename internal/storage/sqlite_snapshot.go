package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zakazai/enrichdb/internal/types"
)

const (
	createMetadataTable = `
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	createStoreTablesTable = `
		CREATE TABLE IF NOT EXISTS store_tables (
			table_name TEXT PRIMARY KEY,
			last_key INTEGER NOT NULL
		);
	`

	createStoreRowsTable = `
		CREATE TABLE IF NOT EXISTS store_rows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_name TEXT NOT NULL,
			row_key INTEGER NOT NULL,
			row_json TEXT NOT NULL
		);
	`
)

// SQLiteSnapshot writes the store into a SQLite database file
type SQLiteSnapshot struct {
	filePath string
}

// NewSQLiteSnapshot creates a SQLite snapshotter for filePath
func NewSQLiteSnapshot(filePath string) *SQLiteSnapshot {
	return &SQLiteSnapshot{filePath: filePath}
}

func (q *SQLiteSnapshot) Save(s *InMemoryStorage) error {
	if err := os.MkdirAll(filepath.Dir(q.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Replace any previous snapshot
	if _, err := os.Stat(q.filePath); err == nil {
		if err := os.Remove(q.filePath); err != nil {
			return fmt.Errorf("failed to remove existing snapshot: %w", err)
		}
	}

	db, err := sql.Open("sqlite", q.filePath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot database: %w", err)
	}
	defer db.Close()

	for _, stmt := range []string{createMetadataTable, createStoreTablesTable, createStoreRowsTable} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize snapshot schema: %w", err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT INTO metadata (key, value) VALUES (?, ?)",
		"created_at", time.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to insert metadata: %w", err)
	}

	rowStmt, err := tx.Prepare("INSERT INTO store_rows (table_name, row_key, row_json) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer rowStmt.Close()

	for _, img := range s.images() {
		if _, err := tx.Exec("INSERT INTO store_tables (table_name, last_key) VALUES (?, ?)",
			img.Name, img.LastKey); err != nil {
			return fmt.Errorf("failed to insert table %s: %w", img.Name, err)
		}
		for _, kr := range img.Rows.Rows {
			rowJSON, err := json.Marshal(kr.Row)
			if err != nil {
				return fmt.Errorf("failed to marshal row: %w", err)
			}
			if _, err := rowStmt.Exec(img.Name, kr.Key, string(rowJSON)); err != nil {
				return fmt.Errorf("failed to insert row: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (q *SQLiteSnapshot) Load() (*InMemoryStorage, error) {
	if _, err := os.Stat(q.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot file does not exist: %s", q.filePath)
	}

	db, err := sql.Open("sqlite", q.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	defer db.Close()

	tableRows, err := db.Query("SELECT table_name, last_key FROM store_tables ORDER BY table_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	var images []tableImage
	for tableRows.Next() {
		img := tableImage{Rows: &ResultSet{}}
		if err := tableRows.Scan(&img.Name, &img.LastKey); err != nil {
			tableRows.Close()
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		images = append(images, img)
	}
	tableRows.Close()
	if err := tableRows.Err(); err != nil {
		return nil, err
	}

	for i := range images {
		if err := loadSQLiteRows(db, &images[i]); err != nil {
			return nil, err
		}
	}
	return restore(images)
}

func loadSQLiteRows(db *sql.DB, img *tableImage) error {
	rows, err := db.Query("SELECT row_key, row_json FROM store_rows WHERE table_name = ? ORDER BY id", img.Name)
	if err != nil {
		return fmt.Errorf("failed to query table data: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key int
		var rowJSON string
		if err := rows.Scan(&key, &rowJSON); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		row, err := types.DecodeRow([]byte(rowJSON))
		if err != nil {
			return fmt.Errorf("failed to unmarshal row: %w", err)
		}
		img.Rows.Rows = append(img.Rows.Rows, KeyedRow{Key: key, Row: row})
	}
	return rows.Err()
}
