package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "azucar granulada", NormalizeText("  Azúcar, GRANULADA!! "))
	assert.Equal(t, "ano 2024", NormalizeText("Año-2024"))
	assert.Equal(t, "", NormalizeText("--"))
}

func TestNormalizeTaxID(t *testing.T) {
	assert.Equal(t, "76123456K", NormalizeTaxID("76.123.456-k"))
	assert.Equal(t, "111111", NormalizeTaxID("11-111-1"))
}

func TestNormalizeSupplierName(t *testing.T) {
	assert.Equal(t, "acme", NormalizeSupplierName("ACME Ltda."))
	assert.Equal(t, "acme", NormalizeSupplierName("Acme S.A."))
	assert.Equal(t, "comercial sur", NormalizeSupplierName("Comercial del Sur SpA"))
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical after normalization", "HARINA 25KG", "harina 25kg", 1},
		{"extra token in catalog name", "Harina 25kg", "Harina Quintal 25kg", 0.9},
		{"no token in common", "Zeta Comercial", "Harina Quintal 25kg", 0},
		{"empty", "", "Harina", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSupplierSimilarity_IgnoresCompanySuffix(t *testing.T) {
	assert.Equal(t, 1.0, SupplierSimilarity("ACME Ltda", "Acme S.A."))
	assert.Equal(t, 0.0, SupplierSimilarity("Zeta Comercial", "ACME Ltda"))
}

func TestSimilarity_Symmetric(t *testing.T) {
	assert.Equal(t, Similarity("Harina 25kg", "Harina Quintal 25kg"), Similarity("Harina Quintal 25kg", "Harina 25kg"))
}
