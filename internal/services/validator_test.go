package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func codes(warnings []*models.ValidationError) []string {
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.Code
	}
	return out
}

func TestInvoiceValidator_TotalsWithinTolerance(t *testing.T) {
	v := NewInvoiceValidator(models.DefaultPipelineConfig())

	inv := &models.ExtractedInvoice{Subtotal: d(100000), TaxAmount: d(19000), TotalAmount: d(119001)}
	assert.Empty(t, v.Validate(inv))
}

func TestInvoiceValidator_TotalsMismatch(t *testing.T) {
	v := NewInvoiceValidator(models.DefaultPipelineConfig())

	warnings := v.Validate(&models.ExtractedInvoice{Subtotal: d(100), TaxAmount: d(5), TotalAmount: d(200)})

	require.Contains(t, codes(warnings), CodeTotalsMismatch)
	w := warnings[0]
	assert.Equal(t, "totalAmount", w.Field)
	assert.Equal(t, -1, w.Line)
	assert.Equal(t, "105", w.Expected.String())
	assert.Equal(t, "200", w.Actual.String())
}

func TestInvoiceValidator_TaxRate(t *testing.T) {
	v := NewInvoiceValidator(models.DefaultPipelineConfig())

	warnings := v.Validate(&models.ExtractedInvoice{Subtotal: d(100000), TaxAmount: d(10000), TotalAmount: d(110000)})
	assert.Equal(t, []string{CodeTaxRateMismatch}, codes(warnings))
	assert.Equal(t, "19000", warnings[0].Expected.String())
}

func TestInvoiceValidator_Lines(t *testing.T) {
	v := NewInvoiceValidator(models.DefaultPipelineConfig())
	inv := &models.ExtractedInvoice{
		Subtotal: d(36000), TaxAmount: d(6840), TotalAmount: d(42840),
		Lines: []models.ExtractedLine{
			{Description: "ok", Quantity: d(2), UnitPrice: d(18000), Subtotal: d(36000)},
			{Description: "zero qty", Quantity: d(0), UnitPrice: d(100)},
			{Description: "negative price", Quantity: d(1), UnitPrice: d(-5)},
			{Description: "bad subtotal", Quantity: d(3), UnitPrice: d(1000), Discount: d(500), Subtotal: d(3000)},
		},
	}

	warnings := v.Validate(inv)

	require.Len(t, warnings, 3)
	assert.Equal(t, CodeNonPositiveQuantity, warnings[0].Code)
	assert.Equal(t, 1, warnings[0].Line)
	assert.Equal(t, CodeNegativeUnitPrice, warnings[1].Code)
	assert.Equal(t, 2, warnings[1].Line)
	assert.Equal(t, CodeLineSubtotalMismatch, warnings[2].Code)
	assert.Equal(t, 3, warnings[2].Line)
	assert.Equal(t, "2500", warnings[2].Expected.String())
	assert.Contains(t, warnings[2].Error(), "line 3 subtotal")
}
