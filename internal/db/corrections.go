package db

import (
	"context"
	"fmt"

	"github.com/facturaIA/purchase-invoice-ingest/internal/matching"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

var _ matching.CorrectionStore = (*Corrections)(nil)

// Corrections persists learned raw-string to catalog-id mappings
type Corrections struct {
	store *Store
}

// LookupCorrection returns the most recent record for (kind, key)
func (c *Corrections) LookupCorrection(ctx context.Context, kind models.CorrectionKind, key string) (*models.CorrectionRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, kind, raw_key, raw_name, raw_tax_id, target_id, created_by, created_at
		FROM %s
		WHERE kind = $1 AND raw_key = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, c.store.table("correction_records"))

	var rec models.CorrectionRecord
	err := c.store.pool.QueryRow(ctx, query, string(kind), key).Scan(
		&rec.ID,
		&rec.Kind,
		&rec.RawKey,
		&rec.RawName,
		&rec.RawTaxID,
		&rec.TargetID,
		&rec.CreatedBy,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, wrap("lookup correction", err)
	}
	return &rec, nil
}

func (c *Corrections) SaveCorrection(ctx context.Context, rec *models.CorrectionRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, kind, raw_key, raw_name, raw_tax_id, target_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.store.table("correction_records"))

	_, err := c.store.pool.Exec(ctx, query,
		rec.ID, string(rec.Kind), rec.RawKey, rec.RawName, rec.RawTaxID, rec.TargetID, rec.CreatedBy, rec.CreatedAt)
	if err != nil {
		return wrap("save correction", err)
	}
	return nil
}
