package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/facturaIA/purchase-invoice-ingest/internal/ai"
	"github.com/facturaIA/purchase-invoice-ingest/internal/logger"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

var version = "1.0.0"

var (
	configPath string
	config     *models.Config
)

var rootCmd = &cobra.Command{
	Use:   "invoicectl",
	Short: "Offline runs of the purchase invoice pipeline",
	Long: `invoicectl runs the purchase invoice pipeline over a text file already
extracted from a PDF: text preparation, structured extraction, or the full
preview against a catalog kept in a YAML file.

Results are written to stdout as JSON; logs go to stderr.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := models.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.Log.Output == "stdout" {
			cfg.Log.Output = "stderr"
		}
		if err := logger.Setup(cfg.Log); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		config = cfg
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cmdLog := logger.WithComponent("cmd")
		cmdLog.Error().Err(err).Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Config file (missing file means defaults and environment)")
}

func readText(path string) (string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), int64(len(data)), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newExtractor builds an extractor; the AI provider is only created for the ai method
func newExtractor(ctx context.Context, method models.ExtractionMethod, providerName string) (*ai.Extractor, func(), error) {
	var provider ai.Provider
	closer := func() {}
	if method == models.MethodAI {
		p, err := ai.NewProvider(ctx, config.AI, providerName)
		if err != nil {
			return nil, closer, err
		}
		provider = p
		if c, ok := p.(io.Closer); ok {
			closer = func() { c.Close() }
		}
	}

	extractor, err := ai.NewExtractor(provider, ai.Options{
		Timeout:           config.AI.Timeout,
		RequestsPerMinute: config.AI.RequestsPerMinute,
		TaxRate:           config.Pipeline.TaxRate,
		OCRConfidence:     config.Pipeline.OCRConfidence,
		Logger:            logger.WithComponent("extractor"),
	})
	if err != nil {
		closer()
		return nil, func() {}, err
	}
	return extractor, closer, nil
}

func parseMethod(raw string) (models.ExtractionMethod, error) {
	method := models.ExtractionMethod(raw)
	if !method.Valid() {
		return "", fmt.Errorf("unsupported method %q (use ai or ocr)", raw)
	}
	return method, nil
}
