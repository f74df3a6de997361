package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/facturaIA/purchase-invoice-ingest/internal/matching"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

// InvoiceStore is the persistent invoice boundary. InsertInvoice must re-check
// draft.DedupKey and the session id atomically with the insert.
type InvoiceStore interface {
	FindByInvoiceNumber(ctx context.Context, numberKey string, supplierID *uuid.UUID) ([]models.DuplicateCandidate, error)
	InsertInvoice(ctx context.Context, draft *models.InvoiceDraft) (*models.InsertResult, error)
}

// DuplicateDetector looks up already stored invoices with the same supplier-issued number
type DuplicateDetector struct {
	store     InvoiceStore
	nameFloor float64
	logger    zerolog.Logger
}

// NewDuplicateDetector creates a detector over store
func NewDuplicateDetector(store InvoiceStore, cfg models.PipelineConfig, logger zerolog.Logger) *DuplicateDetector {
	return &DuplicateDetector{store: store, nameFloor: cfg.DuplicateNameFloor, logger: logger}
}

// FindExisting returns the stored invoices colliding on the supplier-issued number.
// With a resolved supplier the search is scoped to it; otherwise candidates are
// kept when their supplier name is similar to nameHint.
func (d *DuplicateDetector) FindExisting(ctx context.Context, number string, supplierID *uuid.UUID, nameHint string) ([]models.DuplicateCandidate, error) {
	key := models.NormalizeInvoiceNumber(number)
	if key == "" {
		return []models.DuplicateCandidate{}, nil
	}

	found, err := d.store.FindByInvoiceNumber(ctx, key, supplierID)
	if err != nil {
		return nil, fmt.Errorf("duplicate lookup: %w: %w", models.ErrStoreUnavailable, err)
	}
	if supplierID != nil || nameHint == "" {
		return nonNil(found), nil
	}

	out := []models.DuplicateCandidate{}
	for _, c := range found {
		// No name stored: cannot rule it out
		if c.SupplierName == "" || matching.SupplierSimilarity(nameHint, c.SupplierName) >= d.nameFloor {
			out = append(out, c)
		}
	}
	d.logger.Debug().Str("number", number).Int("found", len(found)).Int("kept", len(out)).Msg("duplicates.name_scoped")
	return out, nil
}

// DedupKey is the (number, supplier) key the invoice store enforces at insert.
// Without a resolved supplier the normalized supplier name stands in.
func DedupKey(number string, supplierID *uuid.UUID, supplierName string) string {
	scope := "name:" + matching.NormalizeSupplierName(supplierName)
	if supplierID != nil {
		scope = "id:" + supplierID.String()
	}
	return models.NormalizeInvoiceNumber(number) + "|" + scope
}

func nonNil(c []models.DuplicateCandidate) []models.DuplicateCandidate {
	if c == nil {
		return []models.DuplicateCandidate{}
	}
	return c
}
