package ocr

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultCeiling bounds the text handed to an extractor, in characters
const DefaultCeiling = 4000

// relevantKeywords mark lines that usually carry invoice fields
var relevantKeywords = []string{
	"factura", "invoice", "proveedor", "supplier", "cliente", "fecha", "date",
	"total", "subtotal", "iva", "tax", "neto", "cantidad", "precio",
	"descripción", "descripcion", "producto", "servicio", "item", "rut",
	"número", "numero", "emisión", "emision", "vencimiento", "folio",
}

// criticalKeywords mark lines holding the mandatory fields
var criticalKeywords = []string{
	"factura", "folio", "n°", "nº", "rut", "fecha", "vencimiento",
	"neto", "subtotal", "iva", "total",
}

var (
	amountPattern = regexp.MustCompile(`\d{1,3}([.,]\d{3})+([.,]\d{1,2})?|\d+[.,]\d{2}\b`)
	datePattern   = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
	taxIDPattern  = regexp.MustCompile(`\d{1,2}\.?\d{3}\.?\d{3}-?[\dkK]`)
	noiseLine     = regexp.MustCompile(`^[/\\<>\s]+$`)
)

// Preprocessor bounds raw document text before extraction.
// It is pure and deterministic: the same input always yields the same output,
// and the output never exceeds the ceiling.
type Preprocessor struct {
	ceiling int
}

// NewPreprocessor creates a text preparer with the given character ceiling
func NewPreprocessor(ceiling int) *Preprocessor {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Preprocessor{ceiling: ceiling}
}

// Ceiling returns the configured character ceiling
func (p *Preprocessor) Ceiling() int {
	return p.ceiling
}

// Prepare returns text no longer than the ceiling.
//
// Text already under the ceiling is returned unchanged. Otherwise the hard
// truncation is kept as fallback and the relevant-region filter is tried over
// the whole text, so totals printed at the end survive. If that region is
// still too long the critical-fields filter is tried. When neither fits the
// truncated text is returned.
func (p *Preprocessor) Prepare(raw string) string {
	if utf8.RuneCountInString(raw) <= p.ceiling {
		return raw
	}

	truncated := truncateRunes(raw, p.ceiling)

	if relevant := RelevantRegion(raw); relevant != "" && p.fits(relevant) {
		return relevant
	}
	if critical := CriticalFields(raw); critical != "" && p.fits(critical) {
		return critical
	}
	return truncated
}

func (p *Preprocessor) fits(s string) bool {
	return utf8.RuneCountInString(s) <= p.ceiling
}

// RelevantRegion keeps lines that mention an invoice keyword, carry an amount
// or date, plus the line right after a keyword line (values are often printed
// below their label).
func RelevantRegion(text string) string {
	lines := splitLines(text)
	keep := make([]bool, len(lines))

	for i, line := range lines {
		if len(line) <= 3 || noiseLine.MatchString(line) {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case containsAny(lower, relevantKeywords):
			keep[i] = true
			if i+1 < len(lines) {
				keep[i+1] = lines[i+1] != ""
			}
		case amountPattern.MatchString(line), datePattern.MatchString(line), taxIDPattern.MatchString(line):
			keep[i] = true
		}
	}

	return joinKept(lines, keep)
}

// CriticalFields keeps the document header (first non-empty lines, where the
// supplier is printed) and the lines that hold numbering, tax id, dates and totals.
func CriticalFields(text string) string {
	const headerLines = 5

	lines := splitLines(text)
	keep := make([]bool, len(lines))

	header := 0
	for i, line := range lines {
		if len(line) <= 5 || strings.HasPrefix(line, "%") || noiseLine.MatchString(line) {
			continue
		}
		if header < headerLines {
			keep[i] = true
			header++
			continue
		}
		lower := strings.ToLower(line)
		if containsAny(lower, criticalKeywords) || taxIDPattern.MatchString(line) {
			keep[i] = true
		}
	}

	return joinKept(lines, keep)
}

func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimSpace(l)
	}
	return lines
}

func joinKept(lines []string, keep []bool) string {
	var kept []string
	for i, k := range keep {
		if k {
			kept = append(kept, lines[i])
		}
	}
	return strings.Join(kept, "\n")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
