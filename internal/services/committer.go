package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/facturaIA/purchase-invoice-ingest/internal/matching"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

// InvoiceDraftCommitter performs the final write of a reconciled invoice
type InvoiceDraftCommitter struct {
	store            InvoiceStore
	taxRate          decimal.Decimal
	markup           float64
	reviewConfidence float64
	logger           zerolog.Logger
}

// NewInvoiceDraftCommitter creates a committer over store
func NewInvoiceDraftCommitter(store InvoiceStore, cfg models.PipelineConfig, logger zerolog.Logger) *InvoiceDraftCommitter {
	return &InvoiceDraftCommitter{
		store:            store,
		taxRate:          decimal.NewFromFloat(cfg.TaxRate),
		markup:           cfg.SaleMarkup,
		reviewConfidence: cfg.ReviewConfidence,
		logger:           logger,
	}
}

// Commit writes the header, every line and the pending markers in one atomic insert.
// A second commit of the same session, or of the same (number, supplier) without
// an override, fails with *models.DuplicateInvoiceError.
func (c *InvoiceDraftCommitter) Commit(ctx context.Context, reconciled *models.ReconciledInvoice, user models.UserRef) (*models.CommitResult, error) {
	if err := c.check(reconciled); err != nil {
		return nil, err
	}

	r := *reconciled
	r.NeedsReview = r.NeedsReview || r.Invoice.Confidence < c.reviewConfidence
	draft := &models.InvoiceDraft{
		Reconciled: r,
		TaxRate:    c.taxRate,
		CreatedBy:  user,
		DedupKey:   DedupKey(r.Invoice.SupplierInvoiceNumber, r.SupplierID, r.Invoice.SupplierName),
	}

	for _, l := range r.Lines {
		if l.Decision == models.DecisionMarkedNew {
			draft.PendingProducts = append(draft.PendingProducts, matching.SuggestNewProduct(l.Line, c.markup))
		}
	}
	if r.NewSupplier {
		draft.PendingSupplier = &models.PendingSupplier{
			Name:      r.Invoice.SupplierName,
			TaxID:     r.Invoice.SupplierTaxID,
			CreatedAt: time.Now(),
		}
	}

	res, err := c.store.InsertInvoice(ctx, draft)
	if err != nil {
		var dup *models.DuplicateInvoiceError
		if errors.As(err, &dup) {
			c.logger.Warn().
				Str("session_id", r.SessionID.String()).
				Str("number", r.Invoice.SupplierInvoiceNumber).
				Int("existing", len(dup.Existing)).
				Msg("commit.duplicate")
			return nil, dup
		}
		return nil, fmt.Errorf("insert invoice: %w", err)
	}

	result := &models.CommitResult{
		InvoiceID:        res.InvoiceID,
		InternalNumber:   res.InternalNumber,
		CreatedLineCount: len(r.Lines),
		PendingProducts:  len(draft.PendingProducts),
		PendingSupplier:  draft.PendingSupplier != nil,
		CommittedAt:      res.CreatedAt,
	}
	c.logger.Info().
		Str("session_id", r.SessionID.String()).
		Str("invoice_id", res.InvoiceID.String()).
		Str("internal_number", res.InternalNumber).
		Int("lines", result.CreatedLineCount).
		Int("pending_products", result.PendingProducts).
		Bool("needs_review", r.NeedsReview).
		Msg("commit.ok")
	return result, nil
}

// check rejects drafts that still need a human decision
func (c *InvoiceDraftCommitter) check(r *models.ReconciledInvoice) error {
	if r.Invoice.SupplierInvoiceNumber == "" {
		return &models.ValidationError{Field: "supplierInvoiceNumber", Line: -1, Code: "required", Message: "supplier invoice number is required"}
	}
	if r.SupplierID == nil && !r.NewSupplier {
		return &models.ValidationError{Field: "supplier", Line: -1, Code: "unresolved", Message: "supplier is not resolved"}
	}
	for i, l := range r.Lines {
		if !l.Decision.Resolved() {
			return &models.ValidationError{Field: "decision", Line: i, Code: "unresolved", Message: "line has no decision"}
		}
		if (l.Decision == models.DecisionAutoMatched || l.Decision == models.DecisionConfirmed) && l.ProductID == nil {
			return &models.ValidationError{Field: "productId", Line: i, Code: "unresolved", Message: "matched line has no product"}
		}
	}
	return nil
}
