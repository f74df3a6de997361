package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

// SupplierCatalog is the read-only supplier lookup boundary.
// Lookups return models.ErrNotFound when nothing matches.
type SupplierCatalog interface {
	GetSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
	FindSupplierByTaxID(ctx context.Context, normalizedTaxID string) (*models.Supplier, error)
	SearchSuppliers(ctx context.Context, query string, limit int) ([]models.Supplier, error)
}

// ProductCatalog is the read-only product lookup boundary.
// FindProductByCode matches SKU or barcode.
type ProductCatalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindProductByCode(ctx context.Context, code string) (*models.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]models.Product, error)
}

// CorrectionStore is the append-only learning store. The latest record for a key wins.
type CorrectionStore interface {
	LookupCorrection(ctx context.Context, kind models.CorrectionKind, key string) (*models.CorrectionRecord, error)
	SaveCorrection(ctx context.Context, rec *models.CorrectionRecord) error
}

// candidateLimit bounds how many catalog rows a fuzzy search pulls before scoring
const candidateLimit = 50

// unavailable turns an unexpected store error into the generic retryable error
func unavailable(what string, err error) error {
	return fmt.Errorf("%s: %w: %w", what, models.ErrStoreUnavailable, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}

// SupplierCorrectionKey is the normalized learning key for a raw (name, tax id) pair
func SupplierCorrectionKey(name, taxID string) string {
	return NormalizeText(name) + "|" + NormalizeTaxID(taxID)
}

// ProductCorrectionKey is the normalized learning key for a raw line description
func ProductCorrectionKey(description string) string {
	return NormalizeText(description)
}
