package ocr

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

func TestParser_Parse_SampleInvoice(t *testing.T) {
	inv, err := NewParser(0.19, 0.7).Parse(sampleInvoiceText())
	require.NoError(t, err)

	assert.Equal(t, "2231", inv.SupplierInvoiceNumber)
	assert.Equal(t, "ACME Ltda", inv.SupplierName)
	assert.Equal(t, "76.123.456-7", inv.SupplierTaxID)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	assert.Equal(t, time.Date(2024, 4, 14, 0, 0, 0, 0, time.UTC), inv.DueDate)
	assert.Equal(t, "100000", inv.Subtotal.String())
	assert.Equal(t, "19000", inv.TaxAmount.String())
	assert.Equal(t, "119000", inv.TotalAmount.String())
	assert.Equal(t, 0.7, inv.Confidence)
	assert.Equal(t, models.MethodOCR, inv.Method)

	require.Len(t, inv.Lines, 2)
	assert.Equal(t, "Harina 25kg", inv.Lines[0].Description)
	assert.Equal(t, "2", inv.Lines[0].Quantity.String())
	assert.Equal(t, "18000", inv.Lines[0].UnitPrice.String())
	assert.Equal(t, "36000", inv.Lines[0].Subtotal.String())
	assert.Equal(t, 1, inv.Lines[1].Index)
}

func TestParser_Parse_DerivesNetFromTotal(t *testing.T) {
	text := strings.Join([]string{
		"Distribuidora Sur SpA",
		"Folio: 5512",
		"TOTAL 119.000",
	}, "\n")

	inv, err := NewParser(0.19, 0.7).Parse(text)
	require.NoError(t, err)

	assert.Equal(t, "5512", inv.SupplierInvoiceNumber)
	assert.Equal(t, "Distribuidora Sur SpA", inv.SupplierName)
	assert.Equal(t, "100000", inv.Subtotal.String())
	assert.Equal(t, "19000", inv.TaxAmount.String())
}

func TestParser_Parse_MissingNumberIsExtractionError(t *testing.T) {
	text := "Comercial Norte\nTOTAL 50.000\n"

	_, err := NewParser(0.19, 0.7).Parse(text)

	var extErr *models.ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, models.ReasonMissingFields, extErr.Reason)
	assert.Equal(t, []string{"supplierInvoiceNumber"}, extErr.Fields)
}

func TestParser_Parse_MissingTotalIsExtractionError(t *testing.T) {
	_, err := NewParser(0.19, 0.7).Parse("Factura N° 77\nsin montos\n")

	var extErr *models.ExtractionError
	require.True(t, errors.As(err, &extErr))
	assert.Contains(t, extErr.Fields, "totalAmount")
}
