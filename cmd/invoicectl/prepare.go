package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facturaIA/purchase-invoice-ingest/internal/ocr"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Print the text as it would be sent to the extractor",
	Example: `  invoicectl prepare --file factura.txt
  invoicectl prepare --file factura.txt --ceiling 2000`,
	RunE: runPrepare,
}

func init() {
	rootCmd.AddCommand(prepareCmd)

	prepareCmd.Flags().StringP("file", "f", "", "Text file extracted from the invoice PDF")
	prepareCmd.Flags().Int("ceiling", 0, "Character ceiling (default: pipeline text_ceiling)")
	prepareCmd.MarkFlagRequired("file")
}

func runPrepare(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	ceiling, _ := cmd.Flags().GetInt("ceiling")
	if ceiling <= 0 {
		ceiling = config.Pipeline.TextCeiling
	}

	text, _, err := readText(path)
	if err != nil {
		return err
	}

	if r := ocr.CheckReadability(text); !r.Valid {
		return fmt.Errorf("text is not readable: %s", r.Reason)
	}

	prepared := ocr.NewPreprocessor(ceiling).Prepare(ocr.FilterInvoiceText(text))
	fmt.Fprintln(cmd.OutOrStdout(), prepared)
	return nil
}
