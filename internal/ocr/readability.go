package ocr

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var pdfMetadataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`%PDF-\d\.\d`),
	regexp.MustCompile(`obj<<`),
	regexp.MustCompile(`endobj`),
	regexp.MustCompile(`/Producer\(`),
	regexp.MustCompile(`/CreationDate\(`),
	regexp.MustCompile(`/Title<`),
}

var invoiceIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)factura|invoice`),
	regexp.MustCompile(`(?i)total|subtotal`),
	regexp.MustCompile(`(?i)fecha|date`),
	regexp.MustCompile(`\d{1,3}([.,]\d{3})*([.,]\d{2})?`),
	regexp.MustCompile(`\d+/\d+/\d+`),
}

// ReadabilityStats describes the text that was checked
type ReadabilityStats struct {
	Length            int     `json:"length"`
	TotalWords        int     `json:"totalWords"`
	ReadableWords     int     `json:"readableWords"`
	ReadablePercent   float64 `json:"readablePercent"`
	MetadataPatterns  int     `json:"metadataPatterns"`
	InvoiceIndicators int     `json:"invoiceIndicators"`
}

// Readability is the verdict on whether text can contain an invoice
type Readability struct {
	Valid  bool             `json:"valid"`
	Reason string           `json:"reason,omitempty"`
	Stats  ReadabilityStats `json:"stats"`
}

// CheckReadability rejects text that is too short, is PDF structure rather
// than content, is mostly unreadable, or has no invoice indicators.
func CheckReadability(text string) Readability {
	stats := ReadabilityStats{Length: utf8.RuneCountInString(text)}

	if utf8.RuneCountInString(strings.TrimSpace(text)) < 50 {
		return Readability{Reason: "text shorter than 50 characters", Stats: stats}
	}

	for _, p := range pdfMetadataPatterns {
		if p.MatchString(text) {
			stats.MetadataPatterns++
		}
	}
	if stats.MetadataPatterns >= 2 {
		return Readability{Reason: "text contains PDF metadata instead of content", Stats: stats}
	}

	for _, word := range strings.Fields(text) {
		if utf8.RuneCountInString(word) <= 2 {
			continue
		}
		stats.TotalWords++
		if strings.IndexFunc(word, isReadable) >= 0 {
			stats.ReadableWords++
		}
	}
	if stats.TotalWords > 0 {
		stats.ReadablePercent = float64(stats.ReadableWords) / float64(stats.TotalWords) * 100
	}

	if stats.ReadableWords < 10 {
		return Readability{Reason: "fewer than 10 readable words, document may be a scanned image", Stats: stats}
	}
	if stats.ReadablePercent < 60 {
		return Readability{
			Reason: fmt.Sprintf("only %.1f%% readable words, document may be corrupt", stats.ReadablePercent),
			Stats:  stats,
		}
	}

	for _, p := range invoiceIndicators {
		if p.MatchString(text) {
			stats.InvoiceIndicators++
		}
	}
	if stats.InvoiceIndicators < 2 {
		return Readability{Reason: "text does not look like an invoice", Stats: stats}
	}

	return Readability{Valid: true, Stats: stats}
}

func isReadable(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

var stampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)timbre electr[oó]nico sii[^\n]*`),
	regexp.MustCompile(`(?i)verifique documento: www\.sii\.cl[^\n]*`),
	regexp.MustCompile(`(?i)www\.sii\.cl[^\n]*`),
	regexp.MustCompile(`(?i)c[oó]digo de autorizaci[oó]n[^\n]*`),
	regexp.MustCompile(`[█▄▀■□▪▫]{10,}`),
}

// FilterInvoiceText removes electronic stamp boilerplate. The original text is
// returned when filtering would drop more than 30% of the words.
func FilterInvoiceText(text string) string {
	filtered := text
	for _, p := range stampPatterns {
		filtered = p.ReplaceAllString(filtered, "")
	}

	original := len(strings.Fields(text))
	if original == 0 {
		return text
	}
	if float64(len(strings.Fields(filtered)))/float64(original) < 0.7 {
		return text
	}

	lines := splitLines(filtered)
	kept := lines[:0]
	for _, l := range lines {
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
