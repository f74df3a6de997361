package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

// Warning codes
const (
	CodeTotalsMismatch       = "totals_mismatch"
	CodeTaxRateMismatch      = "tax_rate_mismatch"
	CodeNonPositiveQuantity  = "non_positive_quantity"
	CodeNegativeUnitPrice    = "negative_unit_price"
	CodeLineSubtotalMismatch = "line_subtotal_mismatch"
)

// InvoiceValidator cross-checks extracted amounts. Findings are warnings that a
// human acknowledges, never rejections.
type InvoiceValidator struct {
	tolerance    decimal.Decimal // absolute, in currency units
	taxRate      decimal.Decimal
	taxTolerance decimal.Decimal // relative (0.05 = 5%)
}

// NewInvoiceValidator creates a validator with the tolerance and tax rate from cfg
func NewInvoiceValidator(cfg models.PipelineConfig) *InvoiceValidator {
	return &InvoiceValidator{
		tolerance:    decimal.NewFromFloat(cfg.TotalsTolerance),
		taxRate:      decimal.NewFromFloat(cfg.TaxRate),
		taxTolerance: decimal.NewFromFloat(0.05),
	}
}

// Validate performs all cross-validations on an extracted invoice
func (v *InvoiceValidator) Validate(inv *models.ExtractedInvoice) []*models.ValidationError {
	var warnings []*models.ValidationError

	// 1. subtotal + tax == total
	warnings = v.validateTotals(inv, warnings)

	// 2. tax matches the configured rate over the subtotal
	warnings = v.validateTaxRate(inv, warnings)

	// 3. per-line quantity, price and subtotal
	for i, l := range inv.Lines {
		warnings = v.validateLine(i, l, warnings)
	}

	return warnings
}

// validateTotals checks the header triple within the absolute tolerance
func (v *InvoiceValidator) validateTotals(inv *models.ExtractedInvoice, warnings []*models.ValidationError) []*models.ValidationError {
	expected := inv.Subtotal.Add(inv.TaxAmount)
	if expected.Sub(inv.TotalAmount).Abs().LessThanOrEqual(v.tolerance) {
		return warnings
	}
	return append(warnings, &models.ValidationError{
		Field:    "totalAmount",
		Line:     -1,
		Code:     CodeTotalsMismatch,
		Expected: expected,
		Actual:   inv.TotalAmount,
		Message:  fmt.Sprintf("El total %s no coincide con neto + IVA (%s)", inv.TotalAmount, expected),
	})
}

// validateTaxRate checks the tax against the configured rate, with a relative tolerance
func (v *InvoiceValidator) validateTaxRate(inv *models.ExtractedInvoice, warnings []*models.ValidationError) []*models.ValidationError {
	if !inv.Subtotal.IsPositive() || !inv.TaxAmount.IsPositive() {
		return warnings
	}

	expected := inv.Subtotal.Mul(v.taxRate).Round(0)
	allowed := decimal.Max(expected.Mul(v.taxTolerance), v.tolerance)
	if expected.Sub(inv.TaxAmount).Abs().LessThanOrEqual(allowed) {
		return warnings
	}
	return append(warnings, &models.ValidationError{
		Field:    "taxAmount",
		Line:     -1,
		Code:     CodeTaxRateMismatch,
		Expected: expected,
		Actual:   inv.TaxAmount,
		Message:  fmt.Sprintf("El IVA no coincide con el %s%% del neto", v.taxRate.Shift(2)),
	})
}

// validateLine checks one line's quantity, unit price and subtotal
func (v *InvoiceValidator) validateLine(i int, l models.ExtractedLine, warnings []*models.ValidationError) []*models.ValidationError {
	if !l.Quantity.IsPositive() {
		warnings = append(warnings, &models.ValidationError{
			Field:   "quantity",
			Line:    i,
			Code:    CodeNonPositiveQuantity,
			Actual:  l.Quantity,
			Message: "La cantidad debe ser mayor que cero",
		})
	}
	if l.UnitPrice.IsNegative() {
		warnings = append(warnings, &models.ValidationError{
			Field:   "unitPrice",
			Line:    i,
			Code:    CodeNegativeUnitPrice,
			Actual:  l.UnitPrice,
			Message: "El precio unitario no puede ser negativo",
		})
	}

	// Subtotal not printed
	if l.Subtotal.IsZero() {
		return warnings
	}
	expected := l.ExpectedSubtotal()
	if expected.Sub(l.Subtotal).Abs().GreaterThan(v.tolerance) {
		warnings = append(warnings, &models.ValidationError{
			Field:    "subtotal",
			Line:     i,
			Code:     CodeLineSubtotalMismatch,
			Expected: expected,
			Actual:   l.Subtotal,
			Message:  "El subtotal de la linea no coincide con cantidad x precio - descuento",
		})
	}
	return warnings
}
