package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSONSnapshot stores the database as an indented JSON document
type JSONSnapshot struct {
	filePath string
}

// NewJSONSnapshot creates a JSON snapshotter for filePath
func NewJSONSnapshot(filePath string) *JSONSnapshot {
	return &JSONSnapshot{filePath: filePath}
}

type jsonTable struct {
	LastKey int        `json:"last_key"`
	Rows    *ResultSet `json:"rows"`
}

type jsonDatabase struct {
	Tables map[string]*jsonTable `json:"tables"`
}

func (j *JSONSnapshot) Save(s *InMemoryStorage) error {
	jsonDB := &jsonDatabase{
		Tables: make(map[string]*jsonTable),
	}
	for _, img := range s.images() {
		jsonDB.Tables[img.Name] = &jsonTable{LastKey: img.LastKey, Rows: img.Rows}
	}

	data, err := json.MarshalIndent(jsonDB, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.filePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(j.filePath, data, 0644)
}

func (j *JSONSnapshot) Load() (*InMemoryStorage, error) {
	data, err := os.ReadFile(j.filePath)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return NewInMemoryStorage(), nil
	}

	var jsonDB jsonDatabase
	if err := json.Unmarshal(data, &jsonDB); err != nil {
		return nil, err
	}

	images := make([]tableImage, 0, len(jsonDB.Tables))
	for name, table := range jsonDB.Tables {
		rows := table.Rows
		if rows == nil {
			rows = &ResultSet{}
		}
		images = append(images, tableImage{Name: name, LastKey: table.LastKey, Rows: rows})
	}
	return restore(images)
}
