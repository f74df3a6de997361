package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Supplier is a read-only catalog supplier
type Supplier struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	TaxID          string    `json:"taxId,omitempty"`
	Active         bool      `json:"active"`
	LastActivityAt time.Time `json:"lastActivityAt"` // Used to break score ties
}

// Product is a read-only catalog product
type Product struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	SKU         string          `json:"sku,omitempty"`
	Barcode     string          `json:"barcode,omitempty"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Cost        decimal.Decimal `json:"cost"`
	Active      bool            `json:"active"`
}

// PendingProduct is a catalog entry proposed from a line marked new, completed later by a human
type PendingProduct struct {
	ID                 uuid.UUID       `json:"id"`
	InvoiceID          uuid.UUID       `json:"invoiceId"`
	LineIndex          int             `json:"lineIndex"`
	Description        string          `json:"description"`
	SuggestedName      string          `json:"suggestedName"`
	SuggestedSKU       string          `json:"suggestedSku"`
	Category           string          `json:"category"`
	Cost               decimal.Decimal `json:"cost"`
	SuggestedSalePrice decimal.Decimal `json:"suggestedSalePrice"`
	Confidence         float64         `json:"confidence"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// PendingSupplier marks a supplier a human flagged as new
type PendingSupplier struct {
	ID        uuid.UUID `json:"id"`
	InvoiceID uuid.UUID `json:"invoiceId"`
	Name      string    `json:"name"`
	TaxID     string    `json:"taxId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// InvoiceDraft is what an invoice store writes in one atomic unit
type InvoiceDraft struct {
	Reconciled      ReconciledInvoice `json:"reconciled"`
	PendingProducts []PendingProduct  `json:"pendingProducts,omitempty"`
	PendingSupplier *PendingSupplier  `json:"pendingSupplier,omitempty"`
	TaxRate         decimal.Decimal   `json:"taxRate"`
	CreatedBy       UserRef           `json:"createdBy"`

	// DedupKey is the normalized (supplier invoice number, supplier) key checked atomically at insert
	DedupKey string `json:"dedupKey"`
}

// InsertResult is returned by an invoice store after a successful insert
type InsertResult struct {
	InvoiceID      uuid.UUID `json:"invoiceId"`
	InternalNumber string    `json:"internalNumber"`
	CreatedAt      time.Time `json:"createdAt"`
}
