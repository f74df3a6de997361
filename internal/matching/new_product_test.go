package matching

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

func TestSuggestNewProduct(t *testing.T) {
	l := models.ExtractedLine{
		Index:       3,
		Description: "Papel fotocopia carta resma 500 hojas",
		Quantity:    decimal.NewFromInt(10),
		UnitPrice:   decimal.NewFromInt(4000),
	}

	p := SuggestNewProduct(l, 1.3)

	assert.Equal(t, "Papel Fotocopia Carta", p.SuggestedName)
	assert.Equal(t, "PAPELERIA", p.Category)
	assert.Regexp(t, `^PFCR-\d{4}$`, p.SuggestedSKU)
	assert.Equal(t, "4000", p.Cost.String())
	assert.Equal(t, "5200", p.SuggestedSalePrice.String())
	assert.Equal(t, 0.7, p.Confidence)
	assert.Equal(t, 3, p.LineIndex)
	assert.Equal(t, l.Description, p.Description)
}

func TestSuggestNewProduct_SKUIsStable(t *testing.T) {
	l := models.ExtractedLine{Description: "Detergente liquido 5L", UnitPrice: decimal.NewFromInt(7990)}

	a, b := SuggestNewProduct(l, 1.3), SuggestNewProduct(l, 1.3)
	assert.Equal(t, a.SuggestedSKU, b.SuggestedSKU)
	assert.Equal(t, "LIMPIEZA", a.Category)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestSuggestNewProduct_UsesPrintedCode(t *testing.T) {
	l := models.ExtractedLine{Code: "ab-778", Description: "Repuesto bomba", UnitPrice: decimal.NewFromInt(100)}

	p := SuggestNewProduct(l, 1.3)
	assert.Equal(t, "AB-778", p.SuggestedSKU)
	assert.Equal(t, "MANTENIMIENTO", p.Category)
	assert.Equal(t, "130", p.SuggestedSalePrice.String())
}

func TestSuggestNewProduct_DefaultCategory(t *testing.T) {
	p := SuggestNewProduct(models.ExtractedLine{Description: "Servicio de flete"}, 1.3)
	assert.Equal(t, "GENERAL", p.Category)
	assert.Equal(t, "Servicio Flete", p.SuggestedName)
}
