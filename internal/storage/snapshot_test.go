package storage

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		typ      SnapshotType
		fileName string
	}{
		{"json", JSONSnapshotType, "store.json"},
		{"parquet", ParquetSnapshotType, "store.parquet"},
		{"sqlite", SQLiteSnapshotType, "store.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newPeopleStore(t)
			_, err := store.Delete("T", Predicate{"name": Where("==", "Ann")})
			require.NoError(t, err)
			require.NoError(t, store.CreateTable("Empty"))

			path := filepath.Join(t.TempDir(), "nested", tt.fileName)
			snap, err := NewSnapshotter(SnapshotConfig{Type: tt.typ, FilePath: path})
			require.NoError(t, err)

			require.NoError(t, snap.Save(store))
			_, err = os.Stat(path)
			require.NoError(t, err)

			loaded, err := snap.Load()
			require.NoError(t, err)

			assert.Equal(t, store.ShowTables(), loaded.ShowTables())
			assert.Equal(t, store.Dump(), loaded.Dump())

			last, err := loaded.LastKey("T")
			require.NoError(t, err)
			assert.Equal(t, 4, last)

			// Counter survives, so new keys continue after the old ones
			key, err := loaded.Insert("T", kyle())
			require.NoError(t, err)
			assert.Equal(t, 5, key)

			rs, err := loaded.Select("T", Predicate{"age": Where(">=", 30)}, NoLimit)
			require.NoError(t, err)
			assert.Equal(t, []int{4, 5}, rs.Keys())
		})
	}
}

func TestSnapshotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	snap := NewSQLiteSnapshot(path)

	first := newPeopleStore(t)
	require.NoError(t, snap.Save(first))

	second := NewInMemoryStorage()
	require.NoError(t, second.CreateTable("Other"))
	require.NoError(t, snap.Save(second))

	loaded, err := snap.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Other"}, loaded.ShowTables())
}

func TestJSONSnapshotEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	loaded, err := NewJSONSnapshot(path).Load()
	require.NoError(t, err)
	assert.Empty(t, loaded.ShowTables())
}

func TestNewSnapshotterErrors(t *testing.T) {
	_, err := NewSnapshotter(SnapshotConfig{Type: JSONSnapshotType})
	assert.Error(t, err)

	_, err = NewSnapshotter(SnapshotConfig{Type: "csv", FilePath: "x.csv"})
	assert.Error(t, err)

	_, err = NewSQLiteSnapshot(filepath.Join(t.TempDir(), "missing.db")).Load()
	assert.Error(t, err)
}

func TestImagesConsistentDuringWrites(t *testing.T) {
	store := NewInMemoryStorage()
	require.NoError(t, store.CreateTable("T"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, err := store.Insert("T", kyle())
			assert.NoError(t, err)
		}
	}()

	for i := 0; i < 200; i++ {
		images := store.images()
		require.Len(t, images, 1)
		img := images[0]
		// with inserts only, the counter always equals the row count
		assert.Equal(t, img.LastKey, img.Rows.Len())
		if img.Rows.Len() > 0 {
			assert.Equal(t, img.LastKey, img.Rows.Keys()[img.Rows.Len()-1])
		}
	}
	wg.Wait()

	images := store.images()
	assert.Equal(t, 500, images[0].LastKey)
	assert.Equal(t, 500, images[0].Rows.Len())
}
