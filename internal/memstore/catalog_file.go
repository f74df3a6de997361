package memstore

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

type catalogFile struct {
	Suppliers []struct {
		ID             string    `yaml:"id"`
		Name           string    `yaml:"name"`
		TaxID          string    `yaml:"tax_id"`
		Inactive       bool      `yaml:"inactive"`
		LastActivityAt time.Time `yaml:"last_activity_at"`
	} `yaml:"suppliers"`
	Products []struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		SKU         string `yaml:"sku"`
		Barcode     string `yaml:"barcode"`
		Description string `yaml:"description"`
		Category    string `yaml:"category"`
		Cost        string `yaml:"cost"`
		Inactive    bool   `yaml:"inactive"`
	} `yaml:"products"`
}

// LoadCatalogFile reads a YAML catalog from path
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog decodes a YAML catalog. Entries are active unless marked inactive;
// ids are generated when missing.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := NewCatalog(nil, nil)
	for i, s := range file.Suppliers {
		id, err := parseOptionalID(s.ID)
		if err != nil {
			return nil, fmt.Errorf("supplier %d: %w", i, err)
		}
		c.AddSupplier(models.Supplier{
			ID:             id,
			Name:           s.Name,
			TaxID:          s.TaxID,
			Active:         !s.Inactive,
			LastActivityAt: s.LastActivityAt,
		})
	}
	for i, p := range file.Products {
		id, err := parseOptionalID(p.ID)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
		cost := decimal.Zero
		if p.Cost != "" {
			if cost, err = decimal.NewFromString(p.Cost); err != nil {
				return nil, fmt.Errorf("product %d cost: %w", i, err)
			}
		}
		c.AddProduct(models.Product{
			ID:          id,
			Name:        p.Name,
			SKU:         p.SKU,
			Barcode:     p.Barcode,
			Description: p.Description,
			Category:    p.Category,
			Cost:        cost,
			Active:      !p.Inactive,
		})
	}
	return c, nil
}

func parseOptionalID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
