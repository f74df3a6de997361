package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/facturaIA/purchase-invoice-ingest/internal/logger"
	"github.com/facturaIA/purchase-invoice-ingest/internal/memstore"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
	"github.com/facturaIA/purchase-invoice-ingest/internal/workflow"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Run the full pipeline against a YAML catalog and print the session",
	Long: `Run readability, preparation, extraction, supplier and product matching,
validation and the duplicate check against an in-memory catalog loaded from
YAML, then print the session with its pending decisions.

With --commit, a session that needs no human decision is committed to the
in-memory invoice store and the commit result is included.`,
	Example: `  invoicectl preview --file factura.txt --catalog catalog.yaml
  invoicectl preview --file factura.txt --catalog catalog.yaml --method ocr --commit`,
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().StringP("file", "f", "", "Text file extracted from the invoice PDF")
	previewCmd.Flags().StringP("catalog", "c", "", "YAML catalog of suppliers and products")
	previewCmd.Flags().StringP("method", "m", "ai", "Extraction method: ai or ocr")
	previewCmd.Flags().String("provider", "", "AI provider: openai, gemini or ollama (default: ai.default_provider)")
	previewCmd.Flags().Bool("commit", false, "Commit when the session is ready")
	previewCmd.MarkFlagRequired("file")
	previewCmd.MarkFlagRequired("catalog")
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := logger.WithComponent("preview")

	path, _ := cmd.Flags().GetString("file")
	catalogPath, _ := cmd.Flags().GetString("catalog")
	rawMethod, _ := cmd.Flags().GetString("method")
	providerName, _ := cmd.Flags().GetString("provider")
	commit, _ := cmd.Flags().GetBool("commit")

	method, err := parseMethod(rawMethod)
	if err != nil {
		return err
	}
	text, size, err := readText(path)
	if err != nil {
		return err
	}
	catalog, err := memstore.LoadCatalogFile(catalogPath)
	if err != nil {
		return err
	}

	extractor, closeProvider, err := newExtractor(ctx, method, providerName)
	if err != nil {
		return err
	}
	defer closeProvider()

	service := workflow.NewService(workflow.Deps{
		Extractor:       extractor,
		SupplierCatalog: catalog,
		ProductCatalog:  catalog,
		Corrections:     memstore.NewCorrections(),
		Invoices:        memstore.NewInvoices(),
		Sessions:        memstore.NewSessions(),
		ExtractionLog:   memstore.NewExtractionLog(),
	}, config.Pipeline, logger.WithComponent("workflow"))

	user := models.UserRef{ID: "invoicectl"}
	sess, err := service.Preview(ctx, workflow.PreviewRequest{
		Text:     text,
		FileName: filepath.Base(path),
		FileSize: size,
		Method:   method,
	}, user)
	if err != nil {
		if sess != nil {
			printJSON(cmd.OutOrStdout(), workflow.NewView(sess))
		}
		return err
	}

	if commit {
		if sess.State != workflow.StateReadyToCommit {
			log.Warn().Str("state", string(sess.State)).Msg("Session needs decisions, not committing")
		} else if sess, err = service.Commit(ctx, sess.ID, user); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}

	return printJSON(cmd.OutOrStdout(), workflow.NewView(sess))
}
