package ocr

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func sampleInvoiceText() string {
	return strings.Join([]string{
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
}

func TestPreprocessor_Prepare_UnderCeilingUnchanged(t *testing.T) {
	p := NewPreprocessor(4000)
	text := sampleInvoiceText()

	assert.Equal(t, text, p.Prepare(text))
}

func TestPreprocessor_Prepare_NeverExceedsCeiling(t *testing.T) {
	filler := strings.Repeat("Lorem ipsum dolor sit amet consectetur adipiscing elit\n", 400)
	inputs := []string{
		"",
		strings.Repeat("x", 10000),
		strings.Repeat("ñ", 5000),
		filler + sampleInvoiceText(),
		strings.Repeat(sampleInvoiceText()+"\n", 200),
		strings.Repeat("Total 1.000\n", 2000),
	}

	for _, ceiling := range []int{50, 500, 4000} {
		p := NewPreprocessor(ceiling)
		for i, in := range inputs {
			t.Run(fmt.Sprintf("ceiling_%d_input_%d", ceiling, i), func(t *testing.T) {
				out := p.Prepare(in)
				assert.LessOrEqual(t, utf8.RuneCountInString(out), ceiling)
			})
		}
	}
}

func TestPreprocessor_Prepare_KeepsTotalsFromTail(t *testing.T) {
	filler := strings.Repeat("Lorem ipsum dolor sit amet consectetur adipiscing elit\n", 200)
	text := filler + sampleInvoiceText()

	out := NewPreprocessor(1000).Prepare(text)

	assert.Contains(t, out, "TOTAL $ 119.000")
	assert.Contains(t, out, "RUT: 76.123.456-7")
	assert.NotContains(t, out, "Lorem ipsum")
}

func TestPreprocessor_Prepare_Deterministic(t *testing.T) {
	text := strings.Repeat(sampleInvoiceText()+"\nnotes and remarks that go on\n", 100)
	p := NewPreprocessor(800)

	assert.Equal(t, p.Prepare(text), p.Prepare(text))
}

func TestPreprocessor_Prepare_FallsBackToTruncation(t *testing.T) {
	text := strings.Repeat("abcdefghij", 1000)

	out := NewPreprocessor(100).Prepare(text)

	assert.Equal(t, text[:100], out)
}

func TestTruncateRunes_MultiByte(t *testing.T) {
	assert.Equal(t, "ñañ", truncateRunes("ñañaña", 3))
	assert.Equal(t, "abc", truncateRunes("abc", 10))
}

func TestCriticalFields_KeepsHeaderAndTotals(t *testing.T) {
	out := CriticalFields(sampleInvoiceText())

	assert.Contains(t, out, "ACME Ltda")
	assert.Contains(t, out, "TOTAL $ 119.000")
	assert.Contains(t, out, "IVA 19% $ 19.000")
	assert.NotContains(t, out, "2 Harina 25kg")
}
