package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"Filmarr/config"
	"Filmarr/database"
	"Filmarr/logger"
	"Filmarr/services"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Init(cfg.Environment, cfg.Debug)

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	// The destination root must be writable before any claim is taken
	if err := ensureWritable(cfg.FilmsPath); err != nil {
		log.Fatal("Destination root is not writable: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := database.NewStore(database.DB)

	// Repair claims left behind by a previous crash before taking new work
	reconciler := services.NewStatusReconciler(cfg, store)
	if _, _, err := reconciler.Reconcile(ctx); err != nil {
		log.Fatal("Reconciliation failed: ", err)
	}

	// Refresh the catalog from the remote listing
	if cfg.SyncCatalog {
		client := services.NewOffstreamClient(cfg)
		importer := services.NewCatalogImporter(client, store)
		if err := importer.SyncCatalog(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Fatal("Catalog sync failed: ", err)
		}

		fetcher := services.NewThumbnailFetcher(cfg, store)
		if err := fetcher.FetchPending(ctx); err != nil && ctx.Err() == nil {
			log.Print("Thumbnail fetch failed: ", err)
		}
	}

	// Download everything eligible
	locator := services.NewAssetLocator(cfg)
	engine := services.NewTransferEngine(cfg.TransferTimeout)
	coordinator := services.NewDownloadCoordinator(cfg, store, locator, engine)
	if _, err := coordinator.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("Download pass failed: ", err)
	}
}

// ensureWritable creates the destination root if needed and proves a file
// can actually be created there.
func ensureWritable(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(root, ".filmarr-write-check")
	f, err := os.Create(probe)
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(probe)
}
