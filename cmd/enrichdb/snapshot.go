package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zakazai/enrichdb/internal/parser"
	"github.com/zakazai/enrichdb/internal/storage"
)

var (
	snapshotType  string
	snapshotWhere string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect exported store snapshots",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the tables held in a snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotShow,
}

func init() {
	snapshotShowCmd.Flags().StringVar(&snapshotType, "type", "", "Snapshot format: json, parquet or sqlite (default: configured type)")
	snapshotShowCmd.Flags().StringVar(&snapshotWhere, "where", "", "Only show rows matching this filter")

	snapshotCmd.AddCommand(snapshotShowCmd)
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	kind := snapshotType
	if kind == "" {
		kind = cfg.Snapshot.Type
	}

	snap, err := storage.NewSnapshotter(storage.SnapshotConfig{
		Type:     storage.SnapshotType(kind),
		FilePath: args[0],
	})
	if err != nil {
		return err
	}
	store, err := snap.Load()
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	where, err := parser.ParseWhere(snapshotWhere)
	if err != nil {
		return err
	}

	for i, table := range store.ShowTables() {
		if i > 0 {
			fmt.Println()
		}
		rows, err := store.Select(table, where, storage.NoLimit)
		if err != nil {
			return err
		}
		fmt.Printf("Table %s:\n", table)
		printFormattedResults(rows)
	}
	return nil
}
