package ingest

import (
	"context"
	"encoding/json"

	"github.com/zakazai/enrichdb/internal/notify"
	"github.com/zakazai/enrichdb/internal/storage"
)

// Report is the final summary sent to the sink after a batch. QueryData and
// DatabaseContents hold JSON documents encoded as strings.
type Report struct {
	Name             string `json:"name"`
	QueryData        string `json:"queryData"`
	DatabaseContents string `json:"databaseContents"`
}

// BuildReport encodes a query result and the full store contents.
func BuildReport(store storage.Storage, submitter string, query *storage.ResultSet) (*Report, error) {
	if query == nil {
		query = &storage.ResultSet{}
	}
	queryData, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	contents, err := json.Marshal(store.Dump())
	if err != nil {
		return nil, err
	}
	return &Report{
		Name:             submitter,
		QueryData:        string(queryData),
		DatabaseContents: string(contents),
	}, nil
}

func SendReport(ctx context.Context, sink notify.Sink, report *Report) error {
	return sink.Forward(ctx, report)
}
