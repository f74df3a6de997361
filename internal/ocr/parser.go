package ocr

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

const maxParsedLines = 50

var (
	invoiceNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:factura(?:\s+electr[oó]nica)?|invoice|folio)\s*(?:n[°ºo]\.?)?\s*:?\s*([A-Z]{0,2}-?\d[\d-]*)`),
		regexp.MustCompile(`(?i)\bn[°º]\.?\s*:?\s*([A-Z]{0,2}-?\d[\d-]*)`),
	}
	supplierLabel    = regexp.MustCompile(`(?i)^(?:raz[oó]n social|proveedor|emisor|se[ñn]or(?:es)?)\s*:\s*(.+)$`)
	rutPattern       = regexp.MustCompile(`\b(\d{1,2}\.?\d{3}\.?\d{3}-[\dkK])\b`)
	dateValue        = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{2,4})\b`)
	amountValue      = regexp.MustCompile(`\$?\s?\d[\d.,]*`)
	subtotalLabel    = regexp.MustCompile(`(?i)\b(neto|sub-?total|monto neto)\b`)
	taxLabel         = regexp.MustCompile(`(?i)\b(iva|i\.v\.a\.?)\b`)
	totalLabel       = regexp.MustCompile(`(?i)\btotal\b`)
	dueLabel         = regexp.MustCompile(`(?i)vencimiento|vence`)
	lineItemPattern  = regexp.MustCompile(`^(?:([A-Z0-9][A-Z0-9-]{2,})\s+)?(\d+(?:[.,]\d+)?)\s+(.+?)\s+\$?(\d[\d.,]*)\s+\$?(\d[\d.,]*)$`)
	nonSupplierWords = []string{"factura", "invoice", "rut", "fecha", "total", "cliente", "señor", "giro", "folio"}
)

// Parser extracts invoice fields from text with patterns, without any AI call
type Parser struct {
	taxRate    decimal.Decimal
	confidence float64
}

// NewParser creates a rule-based parser. taxRate derives a missing net/tax split
// from the total; confidence is reported for every parse since patterns carry none.
func NewParser(taxRate, confidence float64) *Parser {
	return &Parser{
		taxRate:    decimal.NewFromFloat(taxRate),
		confidence: confidence,
	}
}

// Parse returns the fields it can find. A missing invoice number or total is an
// ExtractionError: nothing is fabricated.
func (p *Parser) Parse(text string) (*models.ExtractedInvoice, error) {
	lines := nonEmptyLines(text)

	inv := &models.ExtractedInvoice{
		SupplierInvoiceNumber: findInvoiceNumber(lines),
		Confidence:            p.confidence,
		Method:                models.MethodOCR,
	}
	inv.SupplierName, inv.SupplierTaxID = findSupplier(lines)
	inv.IssueDate, inv.DueDate = findDates(lines)
	inv.Subtotal, inv.TaxAmount, inv.TotalAmount = p.findAmounts(lines)
	inv.Lines = findLineItems(lines)

	var missing []string
	if inv.SupplierInvoiceNumber == "" {
		missing = append(missing, "supplierInvoiceNumber")
	}
	if !inv.TotalAmount.IsPositive() {
		missing = append(missing, "totalAmount")
	}
	if len(missing) > 0 {
		return nil, &models.ExtractionError{
			Method: models.MethodOCR,
			Reason: models.ReasonMissingFields,
			Fields: missing,
		}
	}
	return inv, nil
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, l := range splitLines(text) {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func findInvoiceNumber(lines []string) string {
	for _, pattern := range invoiceNumberPatterns {
		for _, line := range lines {
			if rutPattern.MatchString(line) && !strings.Contains(strings.ToLower(line), "factura") {
				continue
			}
			if m := pattern.FindStringSubmatch(line); m != nil {
				return strings.Trim(strings.ToUpper(m[1]), "-")
			}
		}
	}
	return ""
}

// findSupplier looks for a labeled name, then the line above the first tax id,
// then the first company-looking line of the header.
func findSupplier(lines []string) (name, taxID string) {
	rutLine := -1
	for i, line := range lines {
		if m := rutPattern.FindStringSubmatch(line); m != nil {
			taxID = m[1]
			rutLine = i
			break
		}
	}

	for _, line := range lines {
		if m := supplierLabel.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1]), taxID
		}
	}

	if rutLine > 0 && looksLikeCompany(lines[rutLine-1]) {
		return lines[rutLine-1], taxID
	}

	limit := 10
	if len(lines) < limit {
		limit = len(lines)
	}
	for _, line := range lines[:limit] {
		if looksLikeCompany(line) {
			return line, taxID
		}
	}
	return "", taxID
}

func looksLikeCompany(line string) bool {
	if len(line) <= 3 || rutPattern.MatchString(line) || dateValue.MatchString(line) {
		return false
	}
	if !strings.ContainsAny(strings.ToLower(line), "abcdefghijklmnopqrstuvwxyz") {
		return false
	}
	return !containsAny(strings.ToLower(line), nonSupplierWords)
}

func findDates(lines []string) (issue, due time.Time) {
	var found []time.Time
	for _, line := range lines {
		m := dateValue.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		d, ok := parseDMY(m[1], m[2], m[3])
		if !ok {
			continue
		}
		if dueLabel.MatchString(line) && due.IsZero() {
			due = d
			continue
		}
		found = append(found, d)
	}
	if len(found) > 0 {
		issue = found[0]
	}
	if due.IsZero() && len(found) > 1 {
		due = found[1]
	}
	return issue, due
}

func parseDMY(day, month, year string) (time.Time, bool) {
	if len(year) == 2 {
		year = "20" + year
	}
	t, err := time.Parse("2/1/2006", day+"/"+month+"/"+year)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func lastAmount(line string) (decimal.Decimal, bool) {
	matches := amountValue.FindAllString(line, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if d, ok := models.ParseAmount(matches[i]); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

func (p *Parser) findAmounts(lines []string) (subtotal, tax, total decimal.Decimal) {
	largest := decimal.Zero
	for _, line := range lines {
		for _, m := range amountValue.FindAllString(line, -1) {
			if d, ok := models.ParseAmount(m); ok && d.GreaterThan(largest) && !rutPattern.MatchString(line) && !dateValue.MatchString(line) {
				largest = d
			}
		}

		amount, ok := lastAmount(line)
		if !ok {
			continue
		}
		switch {
		case subtotalLabel.MatchString(line):
			subtotal = amount
		case taxLabel.MatchString(line):
			tax = amount
		case totalLabel.MatchString(line):
			total = amount
		}
	}

	if total.IsZero() && subtotal.IsPositive() {
		total = subtotal.Add(tax)
	}
	if total.IsZero() && largest.GreaterThan(decimal.NewFromInt(100)) {
		total = largest
	}
	if !total.IsPositive() {
		return subtotal, tax, total
	}

	switch {
	case subtotal.IsZero() && tax.IsPositive():
		subtotal = total.Sub(tax)
	case subtotal.IsZero():
		subtotal = total.Div(decimal.NewFromInt(1).Add(p.taxRate)).Round(0)
		tax = total.Sub(subtotal)
	case tax.IsZero():
		tax = total.Sub(subtotal)
	}
	return subtotal, tax, total
}

func findLineItems(lines []string) []models.ExtractedLine {
	var items []models.ExtractedLine
	for _, line := range lines {
		if len(items) == maxParsedLines {
			break
		}
		if subtotalLabel.MatchString(line) || taxLabel.MatchString(line) || totalLabel.MatchString(line) {
			continue
		}
		m := lineItemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		qty, ok1 := models.ParseAmount(m[2])
		price, ok2 := models.ParseAmount(m[4])
		lineTotal, ok3 := models.ParseAmount(m[5])
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		items = append(items, models.ExtractedLine{
			Index:       len(items),
			Code:        m[1],
			Description: strings.TrimSpace(m[3]),
			Quantity:    qty,
			UnitPrice:   price,
			Subtotal:    lineTotal,
		})
	}
	return items
}
