package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opCreate = "create_table"
	opInsert = "insert"
	opPut    = "put"
	opSelect = "select"
	opUpdate = "update"
	opDelete = "delete"
)

var (
	storeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrichdb_store_operations_total",
		Help: "Total number of row store operations by operation and result.",
	}, []string{"op", "result"})
	storeRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "enrichdb_store_rows",
		Help: "Current number of rows per table.",
	}, []string{"table"})
)

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOperations.WithLabelValues(op, result).Inc()
}
