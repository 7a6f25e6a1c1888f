package storage

import (
	"fmt"
	"sort"
)

type SnapshotType string

const (
	JSONSnapshotType    SnapshotType = "json"
	ParquetSnapshotType SnapshotType = "parquet"
	SQLiteSnapshotType  SnapshotType = "sqlite"
)

type SnapshotConfig struct {
	Type     SnapshotType
	FilePath string
}

// Snapshotter writes the store to a file and reads it back into a fresh
// store for inspection.
type Snapshotter interface {
	Save(s *InMemoryStorage) error
	Load() (*InMemoryStorage, error)
}

// NewSnapshotter creates a snapshotter based on the provided configuration
func NewSnapshotter(config SnapshotConfig) (Snapshotter, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("file path is required for %s snapshots", config.Type)
	}

	switch config.Type {
	case JSONSnapshotType:
		return NewJSONSnapshot(config.FilePath), nil
	case ParquetSnapshotType:
		return NewParquetSnapshot(config.FilePath), nil
	case SQLiteSnapshotType:
		return NewSQLiteSnapshot(config.FilePath), nil
	default:
		return nil, fmt.Errorf("unsupported snapshot type: %s", config.Type)
	}
}

// tableImage is the store-independent form of one table used by every
// snapshot format.
type tableImage struct {
	Name    string
	LastKey int
	Rows    *ResultSet
}

// images captures every table under a single read lock so the result is a
// point-in-time image even while writers are active.
func (s *InMemoryStorage) images() []tableImage {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	names := make([]string, 0, len(s.db.Tables))
	for name := range s.db.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	images := make([]tableImage, 0, len(names))
	for _, name := range names {
		table := s.db.Tables[name]
		rows := &ResultSet{}
		for _, k := range table.Keys {
			rows.Rows = append(rows.Rows, KeyedRow{Key: k, Row: table.Rows[k].Clone()})
		}
		images = append(images, tableImage{Name: name, LastKey: table.LastKey, Rows: rows})
	}
	return images
}

// restore builds a new store from table images. Rows keep their keys and
// each table's counter is set to the recorded last key.
func restore(images []tableImage) (*InMemoryStorage, error) {
	s := NewInMemoryStorage()
	for _, img := range images {
		if err := s.CreateTable(img.Name); err != nil {
			return nil, err
		}
		if img.Rows == nil {
			img.Rows = &ResultSet{}
		}
		for _, kr := range img.Rows.Rows {
			if err := s.PutRow(img.Name, kr.Key, kr.Row); err != nil {
				return nil, fmt.Errorf("restore %s row %d: %w", img.Name, kr.Key, err)
			}
		}
		if err := s.SetLastKey(img.Name, img.LastKey); err != nil {
			return nil, err
		}
	}
	return s, nil
}
