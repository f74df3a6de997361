package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/facturaIA/purchase-invoice-ingest/api"
	"github.com/facturaIA/purchase-invoice-ingest/internal/ai"
	"github.com/facturaIA/purchase-invoice-ingest/internal/auth"
	"github.com/facturaIA/purchase-invoice-ingest/internal/db"
	"github.com/facturaIA/purchase-invoice-ingest/internal/logger"
	"github.com/facturaIA/purchase-invoice-ingest/internal/memstore"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
	"github.com/facturaIA/purchase-invoice-ingest/internal/storage"
	"github.com/facturaIA/purchase-invoice-ingest/internal/workflow"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Could not load .env file")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	config, err := models.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := logger.Setup(config.Log); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}
	mainLog := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, opts, cleanup, err := wire(ctx, config, mainLog)
	if err != nil {
		mainLog.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer cleanup()

	service := workflow.NewService(deps, config.Pipeline, logger.WithComponent("workflow"))
	handler := api.NewHandler(config, service, opts, logger.WithComponent("api"))

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	mainLog.Info().
		Str("addr", addr).
		Str("version", api.Version).
		Str("ai_provider", config.AI.DefaultProvider).
		Bool("database", opts.Database != nil).
		Bool("storage", opts.Archive != nil).
		Bool("auth", opts.Auth.Enabled()).
		Msg("Starting purchase invoice service")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			mainLog.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		mainLog.Fatal().Err(err).Msg("Server failed")
	}
	mainLog.Info().Msg("Server stopped")
}

// wire builds the workflow collaborators: Postgres stores when a database is
// configured, in-memory stores otherwise, plus optional MinIO archiving.
func wire(ctx context.Context, config *models.Config, mainLog zerolog.Logger) (workflow.Deps, api.Options, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	provider, err := ai.NewProvider(ctx, config.AI, "")
	if err != nil {
		mainLog.Warn().Err(err).Msg("AI provider not available, only the ocr method will work")
		provider = nil
	}
	if c, ok := provider.(io.Closer); ok {
		closers = append(closers, func() { c.Close() })
	}

	extractor, err := ai.NewExtractor(provider, ai.Options{
		Timeout:           config.AI.Timeout,
		RequestsPerMinute: config.AI.RequestsPerMinute,
		TaxRate:           config.Pipeline.TaxRate,
		OCRConfidence:     config.Pipeline.OCRConfidence,
		Logger:            logger.WithComponent("extractor"),
	})
	if err != nil {
		return workflow.Deps{}, api.Options{}, cleanup, err
	}

	deps := workflow.Deps{Extractor: extractor}
	opts := api.Options{Auth: auth.NewAuthenticator(config.Auth)}
	if !opts.Auth.Enabled() {
		mainLog.Warn().Msg("JWT_SECRET not set, API runs without authentication")
	}

	pool, err := db.Connect(ctx, config.Database, logger.WithComponent("db"))
	switch {
	case err == nil:
		store := db.New(pool, config.Database.Schema)
		closers = append(closers, store.Close)
		if config.Database.Migrate {
			if err := store.Migrate(ctx, logger.WithComponent("migrate")); err != nil {
				cleanup()
				return workflow.Deps{}, api.Options{}, func() {}, fmt.Errorf("migrate: %w", err)
			}
		}
		catalog := store.Catalog()
		deps.SupplierCatalog = catalog
		deps.ProductCatalog = catalog
		deps.Corrections = store.Corrections()
		deps.Invoices = store.Invoices()
		deps.Sessions = store.Sessions()
		deps.ExtractionLog = store.ExtractionLog()
		opts.Database = pool

	case errors.Is(err, models.ErrNoDatabase):
		mainLog.Warn().Msg("No database configuration found, using in-memory stores")
		catalog := memstore.NewCatalog(nil, nil)
		if config.CatalogFile != "" {
			if catalog, err = memstore.LoadCatalogFile(config.CatalogFile); err != nil {
				cleanup()
				return workflow.Deps{}, api.Options{}, func() {}, err
			}
		}
		deps.SupplierCatalog = catalog
		deps.ProductCatalog = catalog
		deps.Corrections = memstore.NewCorrections()
		deps.Invoices = memstore.NewInvoices()
		deps.Sessions = memstore.NewSessions()
		deps.ExtractionLog = memstore.NewExtractionLog()

	default:
		cleanup()
		return workflow.Deps{}, api.Options{}, func() {}, err
	}

	archive, err := storage.New(ctx, config.Storage)
	switch {
	case err == nil:
		opts.Archive = archive
		deps.Documents = archive
	case errors.Is(err, storage.ErrNotConfigured):
		mainLog.Info().Msg("MinIO not configured, uploaded documents are not archived")
	default:
		mainLog.Warn().Err(err).Msg("MinIO storage not available, uploaded documents are not archived")
	}

	return deps, opts, cleanup, nil
}
