package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/facturaIA/purchase-invoice-ingest/internal/matching"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

var (
	_ matching.SupplierCatalog = (*Catalog)(nil)
	_ matching.ProductCatalog  = (*Catalog)(nil)
)

// Catalog reads suppliers and products. Fuzzy search uses pg_trgm as a prefilter;
// the final ranking is left to the matchers.
type Catalog struct {
	store *Store
}

const supplierColumns = `id, name, tax_id, active, last_activity_at`

func scanSupplier(row pgx.Row) (*models.Supplier, error) {
	var s models.Supplier
	if err := row.Scan(&s.ID, &s.Name, &s.TaxID, &s.Active, &s.LastActivityAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Catalog) GetSupplier(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, supplierColumns, c.store.table("suppliers"))
	s, err := scanSupplier(c.store.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrap("get supplier", err)
	}
	return s, nil
}

func (c *Catalog) FindSupplierByTaxID(ctx context.Context, normalizedTaxID string) (*models.Supplier, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE active AND tax_id_key = $1
		ORDER BY last_activity_at DESC
		LIMIT 1
	`, supplierColumns, c.store.table("suppliers"))
	s, err := scanSupplier(c.store.pool.QueryRow(ctx, query, normalizedTaxID))
	if err != nil {
		return nil, wrap("find supplier by tax id", err)
	}
	return s, nil
}

func (c *Catalog) SearchSuppliers(ctx context.Context, q string, limit int) ([]models.Supplier, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE active AND (word_similarity($1, name) > 0.2 OR name ILIKE '%%' || $1 || '%%')
		ORDER BY word_similarity($1, name) DESC, last_activity_at DESC
		LIMIT $2
	`, supplierColumns, c.store.table("suppliers"))

	rows, err := c.store.pool.Query(ctx, query, q, limit)
	if err != nil {
		return nil, wrap("search suppliers", err)
	}
	defer rows.Close()

	var out []models.Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, wrap("scan supplier", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("search suppliers", err)
	}
	return out, nil
}

const productColumns = `id, name, sku, barcode, description, category, cost, active`

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Barcode, &p.Description, &p.Category, &p.Cost, &p.Active)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Catalog) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, productColumns, c.store.table("products"))
	p, err := scanProduct(c.store.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrap("get product", err)
	}
	return p, nil
}

func (c *Catalog) FindProductByCode(ctx context.Context, code string) (*models.Product, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE active AND ((sku <> '' AND upper(sku) = upper($1)) OR (barcode <> '' AND barcode = $1))
		LIMIT 1
	`, productColumns, c.store.table("products"))
	p, err := scanProduct(c.store.pool.QueryRow(ctx, query, code))
	if err != nil {
		return nil, wrap("find product by code", err)
	}
	return p, nil
}

func (c *Catalog) SearchProducts(ctx context.Context, q string, limit int) ([]models.Product, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE active AND (word_similarity($1, name) > 0.2 OR name ILIKE '%%' || $1 || '%%')
		ORDER BY word_similarity($1, name) DESC, name
		LIMIT $2
	`, productColumns, c.store.table("products"))

	rows, err := c.store.pool.Query(ctx, query, q, limit)
	if err != nil {
		return nil, wrap("search products", err)
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, wrap("scan product", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("search products", err)
	}
	return out, nil
}
