package memstore

import (
	"context"
	"sync"

	"github.com/facturaIA/purchase-invoice-ingest/internal/matching"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

var _ matching.CorrectionStore = (*Corrections)(nil)

// Corrections is an append-only correction log; the latest record for a key wins
type Corrections struct {
	mu      sync.RWMutex
	records []models.CorrectionRecord
}

func NewCorrections() *Corrections {
	return &Corrections{}
}

func (c *Corrections) LookupCorrection(_ context.Context, kind models.CorrectionKind, key string) (*models.CorrectionRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.records) - 1; i >= 0; i-- {
		if r := c.records[i]; r.Kind == kind && r.RawKey == key {
			return &r, nil
		}
	}
	return nil, models.ErrNotFound
}

func (c *Corrections) SaveCorrection(_ context.Context, rec *models.CorrectionRecord) error {
	c.mu.Lock()
	c.records = append(c.records, *rec)
	c.mu.Unlock()
	return nil
}

// All returns a copy of every stored record, oldest first
func (c *Corrections) All() []models.CorrectionRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.CorrectionRecord(nil), c.records...)
}
