package memstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/purchase-invoice-ingest/internal/matching"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

func largeCatalog() *Catalog {
	c := NewCatalog(nil, nil)
	for i := 0; i < 60; i++ {
		c.AddSupplier(models.Supplier{Name: fmt.Sprintf("Comercial %02d", i), Active: true})
		c.AddProduct(models.Product{Name: fmt.Sprintf("Articulo %02d", i), Active: true})
	}
	c.AddSupplier(models.Supplier{Name: "Zeta Distribuidora", Active: true})
	c.AddProduct(models.Product{Name: "Zanahoria Bolsa 1kg", Active: true})
	return c
}

func TestSearch_RanksByRelevanceBeforeLimit(t *testing.T) {
	c := largeCatalog()
	ctx := context.Background()

	suppliers, err := c.SearchSuppliers(ctx, "Zeta Distribuidora Ltda", 50)
	require.NoError(t, err)
	require.Len(t, suppliers, 50)
	assert.Equal(t, "Zeta Distribuidora", suppliers[0].Name)

	products, err := c.SearchProducts(ctx, "Zanahoria Bolsa 1kg", 50)
	require.NoError(t, err)
	require.Len(t, products, 50)
	assert.Equal(t, "Zanahoria Bolsa 1kg", products[0].Name)
}

func TestSearch_SkipsInactive(t *testing.T) {
	c := NewCatalog(
		[]models.Supplier{{Name: "Zeta Distribuidora", Active: false}},
		[]models.Product{{Name: "Zanahoria Bolsa 1kg", Active: false}},
	)

	suppliers, err := c.SearchSuppliers(context.Background(), "Zeta", 10)
	require.NoError(t, err)
	assert.Empty(t, suppliers)

	products, err := c.SearchProducts(context.Background(), "Zanahoria", 10)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestMatchers_LargeCatalog(t *testing.T) {
	c := largeCatalog()
	cfg := models.DefaultPipelineConfig()
	ctx := context.Background()

	sm := matching.NewSupplierMatcher(c, NewCorrections(), cfg, zerolog.Nop())
	supplier, err := sm.Match(ctx, "Zeta Distribuidora Ltda", "")
	require.NoError(t, err)
	require.NotEmpty(t, supplier.Suggestions)
	assert.Equal(t, "Zeta Distribuidora", supplier.Suggestions[0].Name)

	pm := matching.NewProductMatcher(c, NewCorrections(), cfg, zerolog.Nop())
	line, err := pm.Match(ctx, models.ExtractedLine{Description: "Zanahoria Bolsa 1kg"})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoMatched, line.Decision)
	require.NotNil(t, line.Product)
	assert.Equal(t, "Zanahoria Bolsa 1kg", line.Product.Name)
}
