package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
	"github.com/facturaIA/purchase-invoice-ingest/internal/services"
)

var _ services.InvoiceStore = (*Invoices)(nil)

// uniqueViolation is the SQLSTATE for unique_violation
const uniqueViolation = "23505"

// Invoices stores committed purchase invoices with their lines and pending catalog entries
type Invoices struct {
	store *Store
}

const candidateColumns = `id, supplier_invoice_number, internal_number, supplier_id, supplier_name, issue_date, total_amount, created_at`

func scanCandidates(rows pgx.Rows) ([]models.DuplicateCandidate, error) {
	defer rows.Close()

	out := []models.DuplicateCandidate{}
	for rows.Next() {
		var c models.DuplicateCandidate
		var issue *time.Time
		err := rows.Scan(
			&c.InvoiceID,
			&c.SupplierInvoiceNumber,
			&c.InternalNumber,
			&c.SupplierID,
			&c.SupplierName,
			&issue,
			&c.TotalAmount,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if issue != nil {
			c.IssueDate = *issue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindByInvoiceNumber lists invoices with the normalized number, optionally scoped to one supplier
func (s *Invoices) FindByInvoiceNumber(ctx context.Context, numberKey string, supplierID *uuid.UUID) ([]models.DuplicateCandidate, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE number_key = $1 AND ($2::uuid IS NULL OR supplier_id = $2::uuid)
		ORDER BY created_at DESC
	`, candidateColumns, s.store.table("purchase_invoices"))

	rows, err := s.store.pool.Query(ctx, query, numberKey, supplierID)
	if err != nil {
		return nil, wrap("find invoices by number", err)
	}
	out, err := scanCandidates(rows)
	if err != nil {
		return nil, wrap("scan invoices", err)
	}
	return out, nil
}

// InsertInvoice writes the draft in one transaction. An advisory lock on the dedup key
// serialises concurrent commits of the same invoice so the re-check and insert are atomic.
func (s *Invoices) InsertInvoice(ctx context.Context, draft *models.InvoiceDraft) (*models.InsertResult, error) {
	tx, err := s.store.pool.Begin(ctx)
	if err != nil {
		return nil, wrap("begin insert", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, draft.DedupKey); err != nil {
		return nil, wrap("lock dedup key", err)
	}

	r := draft.Reconciled
	invoices := s.store.table("purchase_invoices")

	same, err := s.candidatesWhere(ctx, tx, "session_id = $1", r.SessionID)
	if err != nil {
		return nil, err
	}
	if len(same) > 0 {
		return nil, duplicateOf(r, same)
	}
	if !r.OverrideDuplicate {
		existing, err := s.candidatesWhere(ctx, tx, "dedup_key = $1", draft.DedupKey)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, duplicateOf(r, existing)
		}
	}

	var seq int64
	if err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT nextval('%s')`, s.store.table("purchase_invoice_seq"))).Scan(&seq); err != nil {
		return nil, wrap("next internal number", err)
	}

	res := &models.InsertResult{
		InvoiceID:      uuid.New(),
		InternalNumber: fmt.Sprintf("PI-%06d", seq),
		CreatedAt:      time.Now(),
	}

	inv := r.Invoice
	header := fmt.Sprintf(`
		INSERT INTO %s (
			id, session_id, internal_number, supplier_invoice_number, number_key, dedup_key,
			supplier_id, supplier_name, supplier_tax_id, issue_date, due_date,
			subtotal, tax_amount, total_amount, tax_rate, confidence, method,
			needs_review, override_duplicate, source_path, file_name, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`, invoices)
	_, err = tx.Exec(ctx, header,
		res.InvoiceID,
		r.SessionID,
		res.InternalNumber,
		inv.SupplierInvoiceNumber,
		models.NormalizeInvoiceNumber(inv.SupplierInvoiceNumber),
		draft.DedupKey,
		r.SupplierID,
		inv.SupplierName,
		inv.SupplierTaxID,
		nullDate(inv.IssueDate),
		nullDate(inv.DueDate),
		inv.Subtotal,
		inv.TaxAmount,
		inv.TotalAmount,
		draft.TaxRate,
		inv.Confidence,
		string(inv.Method),
		r.NeedsReview,
		r.OverrideDuplicate,
		r.SourcePath,
		inv.FileName,
		draft.CreatedBy.ID,
		res.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// Lost a race on session_id that the advisory lock did not cover
			return nil, &models.DuplicateInvoiceError{SupplierInvoiceNumber: inv.SupplierInvoiceNumber, SupplierID: r.SupplierID}
		}
		return nil, wrap("insert invoice", err)
	}

	batch := &pgx.Batch{}
	lineQuery := fmt.Sprintf(`
		INSERT INTO %s (invoice_id, line_index, code, description, quantity, unit_price, discount, subtotal, product_id, decision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.store.table("purchase_invoice_lines"))
	for i, l := range r.Lines {
		batch.Queue(lineQuery,
			res.InvoiceID, i, l.Line.Code, l.Line.Description,
			l.Line.Quantity, l.Line.UnitPrice, l.Line.Discount, l.Line.Subtotal,
			l.ProductID, string(l.Decision))
	}

	pendingQuery := fmt.Sprintf(`
		INSERT INTO %s (id, invoice_id, line_index, description, suggested_name, suggested_sku,
			category, cost, suggested_sale_price, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.store.table("pending_products"))
	for _, p := range draft.PendingProducts {
		id := p.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(pendingQuery,
			id, res.InvoiceID, p.LineIndex, p.Description, p.SuggestedName, p.SuggestedSKU,
			p.Category, p.Cost, p.SuggestedSalePrice, p.Confidence, res.CreatedAt)
	}

	if p := draft.PendingSupplier; p != nil {
		batch.Queue(fmt.Sprintf(`
			INSERT INTO %s (id, invoice_id, name, tax_id, created_at) VALUES ($1, $2, $3, $4, $5)
		`, s.store.table("pending_suppliers")),
			uuid.New(), res.InvoiceID, p.Name, p.TaxID, res.CreatedAt)
	}

	if r.SupplierID != nil {
		batch.Queue(fmt.Sprintf(`UPDATE %s SET last_activity_at = now() WHERE id = $1`, s.store.table("suppliers")), *r.SupplierID)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return nil, wrap("insert invoice lines", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrap("commit invoice", err)
	}
	return res, nil
}

func (s *Invoices) candidatesWhere(ctx context.Context, tx pgx.Tx, cond string, arg any) ([]models.DuplicateCandidate, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, candidateColumns, s.store.table("purchase_invoices"), cond)
	rows, err := tx.Query(ctx, query, arg)
	if err != nil {
		return nil, wrap("recheck duplicates", err)
	}
	out, err := scanCandidates(rows)
	if err != nil {
		return nil, wrap("scan duplicates", err)
	}
	return out, nil
}

func duplicateOf(r models.ReconciledInvoice, existing []models.DuplicateCandidate) *models.DuplicateInvoiceError {
	return &models.DuplicateInvoiceError{
		SupplierInvoiceNumber: r.Invoice.SupplierInvoiceNumber,
		SupplierID:            r.SupplierID,
		Existing:              existing,
	}
}

func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
