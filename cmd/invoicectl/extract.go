package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/facturaIA/purchase-invoice-ingest/internal/ai"
	"github.com/facturaIA/purchase-invoice-ingest/internal/logger"
	"github.com/facturaIA/purchase-invoice-ingest/internal/ocr"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract the structured invoice from a text file",
	Example: `  invoicectl extract --file factura.txt --method ocr
  invoicectl extract --file factura.txt --method ai --provider gemini`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("file", "f", "", "Text file extracted from the invoice PDF")
	extractCmd.Flags().StringP("method", "m", "ai", "Extraction method: ai or ocr")
	extractCmd.Flags().String("provider", "", "AI provider: openai, gemini or ollama (default: ai.default_provider)")
	extractCmd.MarkFlagRequired("file")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	path, _ := cmd.Flags().GetString("file")
	rawMethod, _ := cmd.Flags().GetString("method")
	providerName, _ := cmd.Flags().GetString("provider")

	method, err := parseMethod(rawMethod)
	if err != nil {
		return err
	}
	text, size, err := readText(path)
	if err != nil {
		return err
	}

	extractor, closeProvider, err := newExtractor(cmd.Context(), method, providerName)
	if err != nil {
		return err
	}
	defer closeProvider()

	prepared := ocr.NewPreprocessor(config.Pipeline.TextCeiling).Prepare(ocr.FilterInvoiceText(text))
	res, err := extractor.Extract(cmd.Context(), ai.Request{
		Text:     prepared,
		FileName: filepath.Base(path),
		FileSize: size,
		Method:   method,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("method", string(method)).
		Int("attempts", res.Attempts).
		Dur("duration", res.Duration).
		Float64("confidence", res.Invoice.Confidence).
		Msg("Extraction complete")
	return printJSON(cmd.OutOrStdout(), res.Invoice)
}
