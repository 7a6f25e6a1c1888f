package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zakazai/enrichdb/internal/config"
	"github.com/zakazai/enrichdb/internal/ingest"
	"github.com/zakazai/enrichdb/internal/lookup"
	"github.com/zakazai/enrichdb/internal/notify"
	"github.com/zakazai/enrichdb/internal/storage"
	"github.com/zakazai/enrichdb/internal/types"
)

var (
	configPath string
	cfg        *config.Config
	logger     *types.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "enrichdb",
	Short: "Email enrichment service backed by an in-memory row store",
	Long: `enrichdb accepts email addresses, enriches the name part with age, gender
and nationality lookups, stores the record in an in-memory table and forwards
it to a webhook.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(snapshotCmd)
}

// setup loads .env, the config file and the environment, then configures
// the global logger.
func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Overload(); err == nil {
		fmt.Fprintln(os.Stderr, "loaded .env file")
	}

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	types.GlobalLogger.SetLevel(types.ParseLogLevel(cfg.Log.Level))
	types.GlobalLogger.SetFormat(cfg.Log.Format)
	logger = types.GlobalLogger.WithModule("main")
	logger.Debug("configuration loaded: %s", cfg)
	return nil
}

// newIngestHandler wires the lookup clients and the sink from cfg.
func newIngestHandler(store storage.Storage) *ingest.Handler {
	opts := cfg.Lookup.LookupOptions()
	return ingest.NewHandler(
		store,
		cfg.Store.Table,
		lookup.NewAgifyClient(cfg.Lookup.AgeURL, opts),
		lookup.NewGenderizeClient(cfg.Lookup.GenderURL, opts),
		lookup.NewNationalizeClient(cfg.Lookup.NationalityURL, opts),
		newSink(),
		ingest.WithExcludedDomains(cfg.Ingest.ExcludedDomains),
	)
}

func newSink() notify.Sink {
	if cfg.Sink.URL == "" {
		logger.Info("no sink configured, records will not be forwarded")
		return notify.NopSink{}
	}
	return notify.NewWebhookSink(cfg.Sink.URL, cfg.Sink.Timeout)
}

// exportSnapshot writes the store to path using the configured format.
func exportSnapshot(store *storage.InMemoryStorage, kind, path string) error {
	snap, err := storage.NewSnapshotter(storage.SnapshotConfig{
		Type:     storage.SnapshotType(kind),
		FilePath: path,
	})
	if err != nil {
		return err
	}
	if err := snap.Save(store); err != nil {
		return fmt.Errorf("failed to export snapshot: %w", err)
	}
	logger.Info("snapshot written to %s (%s)", path, kind)
	return nil
}
