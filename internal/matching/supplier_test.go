package matching_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/purchase-invoice-ingest/internal/matching"
	"github.com/facturaIA/purchase-invoice-ingest/internal/memstore"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

func supplierFixture() (*memstore.Catalog, models.Supplier, models.Supplier) {
	catalog := memstore.NewCatalog(nil, nil)
	acme := catalog.AddSupplier(models.Supplier{Name: "ACME Ltda", TaxID: "76.123.456-7", Active: true})
	sur := catalog.AddSupplier(models.Supplier{Name: "Distribuidora Sur SpA", TaxID: "77.888.999-0", Active: true})
	return catalog, acme, sur
}

func newSupplierMatcher(catalog matching.SupplierCatalog, corrections matching.CorrectionStore) *matching.SupplierMatcher {
	return matching.NewSupplierMatcher(catalog, corrections, models.DefaultPipelineConfig(), zerolog.Nop())
}

func TestSupplierMatcher_ExactTaxID(t *testing.T) {
	catalog, acme, _ := supplierFixture()

	got, err := newSupplierMatcher(catalog, memstore.NewCorrections()).Match(context.Background(), "ACME Ltda", "76123456-7")
	require.NoError(t, err)

	assert.True(t, got.HasExactMatch)
	require.NotNil(t, got.ExactMatch)
	assert.Equal(t, acme.ID, got.ExactMatch.ID)
	assert.Equal(t, models.MatchExactTaxID, got.Method)
	assert.Empty(t, got.Suggestions)
	assert.Equal(t, 0, catalog.Searches())
}

func TestSupplierMatcher_NoOverlap(t *testing.T) {
	catalog, _, _ := supplierFixture()

	got, err := newSupplierMatcher(catalog, memstore.NewCorrections()).Match(context.Background(), "Zeta Comercial", "")
	require.NoError(t, err)

	assert.False(t, got.HasExactMatch)
	assert.Nil(t, got.ExactMatch)
	assert.NotNil(t, got.Suggestions)
	assert.Empty(t, got.Suggestions)
}

func TestSupplierMatcher_CorrectionShortCircuits(t *testing.T) {
	catalog, _, sur := supplierFixture()
	corrections := memstore.NewCorrections()
	rec := matching.NewSupplierCorrection("Proveedor X SPA", "11-111-1", sur.ID, models.UserRef{ID: "u1"})
	require.NoError(t, corrections.SaveCorrection(context.Background(), rec))

	got, err := newSupplierMatcher(catalog, corrections).Match(context.Background(), "Proveedor X SPA", "11-111-1")
	require.NoError(t, err)

	assert.True(t, got.HasExactMatch)
	assert.Equal(t, sur.ID, got.ExactMatch.ID)
	assert.Equal(t, models.MatchLearnedCorrection, got.Method)
	assert.Equal(t, 0, catalog.Searches(), "fuzzy search must not run")
}

func TestSupplierMatcher_CorrectionKeyIsNormalized(t *testing.T) {
	assert.Equal(t,
		matching.SupplierCorrectionKey("Proveedor X SPA", "11-111-1"),
		matching.SupplierCorrectionKey("  proveedor x spa", "11.111.1"))
}

func TestSupplierMatcher_FuzzyRankedByScoreThenRecency(t *testing.T) {
	catalog := memstore.NewCatalog(nil, nil)
	old := catalog.AddSupplier(models.Supplier{Name: "Comercial Andes Ltda", Active: true, LastActivityAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)})
	recent := catalog.AddSupplier(models.Supplier{Name: "Comercial Andes SpA", Active: true, LastActivityAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)})
	weaker := catalog.AddSupplier(models.Supplier{Name: "Comercial Andina Norte", Active: true})
	catalog.AddSupplier(models.Supplier{Name: "Ferreteria Centro", Active: true})

	got, err := newSupplierMatcher(catalog, nil).Match(context.Background(), "Comercial Andes", "")
	require.NoError(t, err)

	assert.False(t, got.HasExactMatch)
	require.Len(t, got.Suggestions, 3)
	assert.Equal(t, recent.ID, got.Suggestions[0].SupplierID)
	assert.Equal(t, old.ID, got.Suggestions[1].SupplierID)
	assert.Equal(t, weaker.ID, got.Suggestions[2].SupplierID)
	assert.Equal(t, 1.0, got.Suggestions[0].Score)
	assert.Less(t, got.Suggestions[2].Score, 1.0)
	for _, s := range got.Suggestions {
		assert.Equal(t, models.MatchFuzzyName, s.Method)
	}
}

func TestSupplierMatcher_UnknownTaxIDFallsBackToName(t *testing.T) {
	catalog, acme, _ := supplierFixture()

	got, err := newSupplierMatcher(catalog, nil).Match(context.Background(), "Acme", "99.999.999-9")
	require.NoError(t, err)

	assert.False(t, got.HasExactMatch)
	require.Len(t, got.Suggestions, 1)
	assert.Equal(t, acme.ID, got.Suggestions[0].SupplierID)
}

func TestSupplierMatcher_Empty(t *testing.T) {
	catalog, _, _ := supplierFixture()

	got, err := newSupplierMatcher(catalog, nil).Match(context.Background(), " ", "")
	require.NoError(t, err)
	assert.False(t, got.HasExactMatch)
	assert.Empty(t, got.Suggestions)
}
