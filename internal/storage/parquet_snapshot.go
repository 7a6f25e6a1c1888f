package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/zakazai/enrichdb/internal/types"
)

// ParquetRow is one stored row in Parquet form. A RowKey of 0 marks the
// table itself so that empty tables survive a round trip.
type ParquetRow struct {
	TableName string `parquet:"name=table_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	RowKey    int64  `parquet:"name=row_key, type=INT64"`
	LastKey   int64  `parquet:"name=last_key, type=INT64"`
	DataJSON  string `parquet:"name=data_json, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ParquetSnapshot writes the store into a single SNAPPY-compressed Parquet file
type ParquetSnapshot struct {
	filePath string
}

// NewParquetSnapshot creates a Parquet snapshotter for filePath
func NewParquetSnapshot(filePath string) *ParquetSnapshot {
	return &ParquetSnapshot{filePath: filePath}
}

func (p *ParquetSnapshot) Save(s *InMemoryStorage) error {
	if err := os.MkdirAll(filepath.Dir(p.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	fw, err := local.NewLocalFileWriter(p.filePath)
	if err != nil {
		return err
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRow), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, img := range s.images() {
		marker := &ParquetRow{TableName: img.Name, LastKey: int64(img.LastKey)}
		if err := pw.Write(marker); err != nil {
			return err
		}

		for _, kr := range img.Rows.Rows {
			jsonData, err := json.Marshal(kr.Row)
			if err != nil {
				return err
			}
			parquetRow := &ParquetRow{
				TableName: img.Name,
				RowKey:    int64(kr.Key),
				LastKey:   int64(img.LastKey),
				DataJSON:  string(jsonData),
			}
			if err := pw.Write(parquetRow); err != nil {
				return err
			}
		}
	}

	return pw.WriteStop()
}

func (p *ParquetSnapshot) Load() (*InMemoryStorage, error) {
	fr, err := local.NewLocalFileReader(p.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(ParquetRow), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet reader: %w", err)
	}
	defer pr.ReadStop()

	numRows := int(pr.GetNumRows())
	parquetRows := make([]ParquetRow, numRows)
	if numRows > 0 {
		if err := pr.Read(&parquetRows); err != nil {
			return nil, fmt.Errorf("failed to read Parquet rows: %w", err)
		}
	}

	var images []tableImage
	index := make(map[string]int)
	for _, prow := range parquetRows {
		i, seen := index[prow.TableName]
		if !seen {
			i = len(images)
			index[prow.TableName] = i
			images = append(images, tableImage{Name: prow.TableName, Rows: &ResultSet{}})
		}
		images[i].LastKey = int(prow.LastKey)

		if prow.RowKey == 0 {
			continue
		}
		row, err := types.DecodeRow([]byte(prow.DataJSON))
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal row data: %w", err)
		}
		images[i].Rows.Rows = append(images[i].Rows.Rows, KeyedRow{Key: int(prow.RowKey), Row: row})
	}

	return restore(images)
}
