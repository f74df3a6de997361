// Package memstore holds in-memory implementations of the pipeline's store boundaries.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/facturaIA/purchase-invoice-ingest/internal/matching"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

var (
	_ matching.SupplierCatalog = (*Catalog)(nil)
	_ matching.ProductCatalog  = (*Catalog)(nil)
)

// Catalog is a read-mostly supplier and product catalog
type Catalog struct {
	mu        sync.RWMutex
	suppliers []models.Supplier
	products  []models.Product

	searches int
}

// NewCatalog creates a catalog holding copies of the given entries
func NewCatalog(suppliers []models.Supplier, products []models.Product) *Catalog {
	c := &Catalog{}
	for _, s := range suppliers {
		c.AddSupplier(s)
	}
	for _, p := range products {
		c.AddProduct(p)
	}
	return c
}

// AddSupplier inserts a supplier, assigning an id when missing
func (c *Catalog) AddSupplier(s models.Supplier) models.Supplier {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	c.mu.Lock()
	c.suppliers = append(c.suppliers, s)
	c.mu.Unlock()
	return s
}

// AddProduct inserts a product, assigning an id when missing
func (c *Catalog) AddProduct(p models.Product) models.Product {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	c.mu.Lock()
	c.products = append(c.products, p)
	c.mu.Unlock()
	return p
}

// Searches returns how many fuzzy searches ran against the catalog
func (c *Catalog) Searches() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.searches
}

func (c *Catalog) GetSupplier(_ context.Context, id uuid.UUID) (*models.Supplier, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.suppliers {
		if s.ID == id {
			out := s
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (c *Catalog) FindSupplierByTaxID(_ context.Context, normalizedTaxID string) (*models.Supplier, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.suppliers {
		if s.Active && s.TaxID != "" && matching.NormalizeTaxID(s.TaxID) == normalizedTaxID {
			out := s
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

// SearchSuppliers returns active suppliers ranked by name similarity to query,
// most recently active first on ties. Scoring proper is left to the matcher.
func (c *Catalog) SearchSuppliers(_ context.Context, query string, limit int) ([]models.Supplier, error) {
	c.mu.Lock()
	c.searches++
	c.mu.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.Supplier
	var scores []float64
	for _, s := range c.suppliers {
		if s.Active {
			out = append(out, s)
			scores = append(scores, matching.SupplierSimilarity(query, s.Name))
		}
	}
	sort.Sort(byRelevance{
		n:    len(out),
		swap: func(i, j int) { out[i], out[j] = out[j], out[i]; scores[i], scores[j] = scores[j], scores[i] },
		less: func(i, j int) bool {
			if scores[i] != scores[j] {
				return scores[i] > scores[j]
			}
			if !out[i].LastActivityAt.Equal(out[j].LastActivityAt) {
				return out[i].LastActivityAt.After(out[j].LastActivityAt)
			}
			return out[i].Name < out[j].Name
		},
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Catalog) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.products {
		if p.ID == id {
			out := p
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

// FindProductByCode matches SKU or barcode, case-insensitive
func (c *Catalog) FindProductByCode(_ context.Context, code string) (*models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.products {
		if !p.Active {
			continue
		}
		if (p.SKU != "" && strings.EqualFold(p.SKU, code)) || (p.Barcode != "" && p.Barcode == code) {
			out := p
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

// SearchProducts returns active products ranked by name similarity to query
func (c *Catalog) SearchProducts(_ context.Context, query string, limit int) ([]models.Product, error) {
	c.mu.Lock()
	c.searches++
	c.mu.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.Product
	var scores []float64
	for _, p := range c.products {
		if p.Active {
			out = append(out, p)
			scores = append(scores, matching.Similarity(query, p.Name))
		}
	}
	sort.Sort(byRelevance{
		n:    len(out),
		swap: func(i, j int) { out[i], out[j] = out[j], out[i]; scores[i], scores[j] = scores[j], scores[i] },
		less: func(i, j int) bool {
			if scores[i] != scores[j] {
				return scores[i] > scores[j]
			}
			return out[i].Name < out[j].Name
		},
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// byRelevance sorts parallel entry and score slices together
type byRelevance struct {
	n    int
	swap func(i, j int)
	less func(i, j int) bool
}

func (b byRelevance) Len() int           { return b.n }
func (b byRelevance) Swap(i, j int)      { b.swap(i, j) }
func (b byRelevance) Less(i, j int) bool { return b.less(i, j) }
