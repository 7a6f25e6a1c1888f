package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zakazai/enrichdb/internal/storage"
	"github.com/zakazai/enrichdb/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP ingestion and query server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	store := storage.NewInMemoryStorage()
	if err := store.CreateTable(cfg.Store.Table); err != nil {
		return err
	}

	server := web.NewServer(store, newIngestHandler(store))

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error: %v", err)
	}

	if cfg.Snapshot.Path != "" {
		return exportSnapshot(store, cfg.Snapshot.Type, cfg.Snapshot.Path)
	}
	return nil
}
