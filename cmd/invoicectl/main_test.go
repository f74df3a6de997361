package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleText = strings.Join([]string{
	"ACME Ltda",
	"RUT: 76.123.456-7",
	"Av. Siempre Viva 742, Santiago",
	"FACTURA ELECTRONICA N° 2231",
	"Fecha Emisión: 15/03/2024",
	"Fecha Vencimiento: 14/04/2024",
	"Cant Descripción Precio Total",
	"2 Harina 25kg 18.000 36.000",
	"1 Azucar granulada 1kg 64.000 64.000",
	"Neto $ 100.000",
	"IVA 19% $ 19.000",
	"TOTAL $ 119.000",
}, "\n")

const sampleCatalog = `
suppliers:
  - name: ACME Ltda
    tax_id: 76.123.456-7
products:
  - name: Harina Quintal 25kg
    sku: HAR-25
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPrepare(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "factura.txt", sampleText)

	out, err := run(t, "prepare", "--file", file)
	require.NoError(t, err)
	assert.Equal(t, sampleText+"\n", out)
}

func TestPrepare_Unreadable(t *testing.T) {
	file := writeFile(t, t.TempDir(), "broken.txt", "%PDF-1.4 endobj")

	_, err := run(t, "prepare", "--file", file)
	assert.ErrorContains(t, err, "not readable")
}

func TestExtract_OCR(t *testing.T) {
	file := writeFile(t, t.TempDir(), "factura.txt", sampleText)

	out, err := run(t, "extract", "--file", file, "--method", "ocr")
	require.NoError(t, err)

	var inv map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &inv))
	assert.Equal(t, "2231", inv["supplierInvoiceNumber"])
	assert.Equal(t, "ocr", inv["method"])
	assert.Equal(t, "factura.txt", inv["fileName"])
}

func TestExtract_BadMethod(t *testing.T) {
	file := writeFile(t, t.TempDir(), "factura.txt", sampleText)

	_, err := run(t, "extract", "--file", file, "--method", "vision")
	assert.ErrorContains(t, err, "unsupported method")
}

func TestPreview_OCR(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "factura.txt", sampleText)
	catalog := writeFile(t, dir, "catalog.yaml", sampleCatalog)

	out, err := run(t, "preview", "--file", file, "--catalog", catalog, "--method", "ocr")
	require.NoError(t, err)

	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "needs_product_confirmation", view["state"])

	supplier := view["supplier"].(map[string]any)
	assert.Equal(t, "auto_matched", supplier["decision"])

	lines := view["lines"].([]any)
	require.Len(t, lines, 2)
	assert.Equal(t, "auto_matched", lines[0].(map[string]any)["decision"])
	assert.Equal(t, "needs_confirmation", lines[1].(map[string]any)["decision"])
}
