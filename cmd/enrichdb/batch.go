package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zakazai/enrichdb/internal/ingest"
	"github.com/zakazai/enrichdb/internal/planner"
	"github.com/zakazai/enrichdb/internal/storage"
)

// defaultEmails is the sample batch used when no addresses are given.
var defaultEmails = []string{
	"John@acompany.com",
	"Willy@bcompany.org",
	"Kyle@ccompany.com",
	"Georgie@dcompany.net",
	"Karen@eschool.edu",
	"Annie@usa.gov",
	"Elvira@fcompay.org",
	"Juan@gschool.edu",
	"Julie@hcompany.com",
	"Pierre@ischool.edu",
	"Ellen@canada.gov",
	"Craig@jcompany.org",
	"Juan@kcompany.net",
	"Jack@verkada.com",
	"Jason@verkada.com",
	"Billy@verkada.com",
	"Brent@verkada.com",
}

var (
	updateWhere string
	updateSet   string
	deleteWhere string
	queryWhere  string
	queryLimit  int
	reportName  string
	exportPath  string
)

var batchCmd = &cobra.Command{
	Use:   "batch [emails...]",
	Short: "Ingest a batch of emails, apply an update and a delete, then report",
	Long: `Ingest each email through the enrichment pipeline, apply the update and
delete given by the flags, run the final query, print the results and post a
report of the query and the full store to the sink.`,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&updateWhere, "update-where", "name == 'Kyle'", "Filter for the update step (empty to skip)")
	batchCmd.Flags().StringVar(&updateSet, "set", "age = 26", "Assignments for the update step")
	batchCmd.Flags().StringVar(&deleteWhere, "delete-where", "name == 'Craig'", "Filter for the delete step (empty to skip)")
	batchCmd.Flags().StringVar(&queryWhere, "query-where", "age >= 30 AND gender == 'male'", "Filter for the final query")
	batchCmd.Flags().IntVar(&queryLimit, "limit", 4, "Maximum rows returned by the final query (-1 for no limit)")
	batchCmd.Flags().StringVar(&reportName, "report-name", "enrichdb", "Submitter name included in the report")
	batchCmd.Flags().StringVar(&exportPath, "export", "", "Write a snapshot of the store to this path when done")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	emails := args
	if len(emails) == 0 {
		emails = defaultEmails
	}

	store := storage.NewInMemoryStorage()
	if err := store.CreateTable(cfg.Store.Table); err != nil {
		return err
	}
	handler := newIngestHandler(store)

	stored := 0
	for _, email := range emails {
		e := email
		rec, err := handler.HandleRequest(ctx, ingest.Request{Email: &e})
		if err != nil {
			logger.Warning("%s: %v", email, err)
			continue
		}
		if rec != nil {
			stored++
		}
	}
	logger.Info("ingested %d of %d emails", stored, len(emails))

	plnr := planner.NewPlanner(store)
	if updateWhere != "" {
		if err := runText(plnr, planner.TypeUpdate, updateWhere, updateSet, storage.NoLimit); err != nil {
			return err
		}
	}
	if deleteWhere != "" {
		if err := runText(plnr, planner.TypeDelete, deleteWhere, "", storage.NoLimit); err != nil {
			return err
		}
	}

	plan, err := planner.FromText(planner.TypeSelect, cfg.Store.Table, queryWhere, "", queryLimit)
	if err != nil {
		return err
	}
	res, err := plnr.Execute(plan)
	if err != nil {
		return err
	}

	fmt.Printf("Query: %s\n", queryWhere)
	printFormattedResults(res.Rows)
	fmt.Printf("\nTable %s:\n", cfg.Store.Table)
	all, err := store.Select(cfg.Store.Table, nil, storage.NoLimit)
	if err != nil {
		return err
	}
	printFormattedResults(all)

	report, err := ingest.BuildReport(store, reportName, res.Rows)
	if err != nil {
		return err
	}
	if cfg.Sink.URL != "" {
		if err := ingest.SendReport(ctx, newSink(), report); err != nil {
			return fmt.Errorf("failed to send report: %w", err)
		}
		logger.Info("report sent")
	} else {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Printf("\nReport:\n%s\n", out)
	}

	if exportPath != "" {
		return exportSnapshot(store, cfg.Snapshot.Type, exportPath)
	}
	return nil
}

func runText(p *planner.Planner, kind, where, set string, limit int) error {
	plan, err := planner.FromText(kind, cfg.Store.Table, where, set, limit)
	if err != nil {
		return err
	}
	res, err := p.Execute(plan)
	if err != nil {
		return err
	}
	logger.Info("%s where %s: %d row(s)", kind, where, res.Affected)
	return nil
}
