package ocr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckReadability(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		valid  bool
		reason string
	}{
		{
			name:  "invoice text",
			text:  sampleInvoiceText(),
			valid: true,
		},
		{
			name:   "too short",
			text:   "Factura 1",
			reason: "shorter than 50",
		},
		{
			name:   "pdf structure",
			text:   "%PDF-1.4 1 0 obj<< /Type /Catalog >> endobj " + strings.Repeat("stream data ", 10),
			reason: "PDF metadata",
		},
		{
			name:   "few words",
			text:   strings.Repeat("## ", 30) + "Factura total fecha",
			reason: "fewer than 10 readable words",
		},
		{
			name:   "no invoice indicators",
			text:   strings.Repeat("lorem ipsum dolor sit amet ", 10),
			reason: "does not look like an invoice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckReadability(tt.text)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.reason != "" {
				assert.Contains(t, got.Reason, tt.reason)
			}
		})
	}
}

func TestFilterInvoiceText_RemovesStamp(t *testing.T) {
	text := sampleInvoiceText() + "\nTimbre Electrónico SII\nVerifique documento: www.sii.cl"

	out := FilterInvoiceText(text)

	assert.NotContains(t, out, "Timbre")
	assert.NotContains(t, out, "www.sii.cl")
	assert.Contains(t, out, "TOTAL $ 119.000")
}

func TestFilterInvoiceText_KeepsOriginalWhenTooMuchRemoved(t *testing.T) {
	text := "Timbre Electrónico SII resolución 80 de 2014 verifique documento\nTotal 1.000"

	assert.Equal(t, text, FilterInvoiceText(text))
}
