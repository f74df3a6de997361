package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
	"github.com/facturaIA/purchase-invoice-ingest/internal/services"
)

var _ services.InvoiceStore = (*Invoices)(nil)

// StoredInvoice is a committed invoice as held in memory
type StoredInvoice struct {
	ID             uuid.UUID
	InternalNumber string
	NumberKey      string
	Draft          models.InvoiceDraft
	CreatedAt      time.Time
}

// Invoices serialises the duplicate re-check and insert under one mutex
type Invoices struct {
	mu       sync.Mutex
	invoices []StoredInvoice
	seq      int
}

func NewInvoices() *Invoices {
	return &Invoices{}
}

func (s *Invoices) FindByInvoiceNumber(_ context.Context, numberKey string, supplierID *uuid.UUID) ([]models.DuplicateCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.DuplicateCandidate{}
	for _, inv := range s.invoices {
		if inv.NumberKey != numberKey {
			continue
		}
		sid := inv.Draft.Reconciled.SupplierID
		if supplierID != nil && (sid == nil || *sid != *supplierID) {
			continue
		}
		out = append(out, inv.candidate())
	}
	return out, nil
}

func (s *Invoices) InsertInvoice(_ context.Context, draft *models.InvoiceDraft) (*models.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := draft.Reconciled
	for _, inv := range s.invoices {
		if inv.Draft.Reconciled.SessionID == r.SessionID {
			return nil, &models.DuplicateInvoiceError{
				SupplierInvoiceNumber: r.Invoice.SupplierInvoiceNumber,
				SupplierID:            r.SupplierID,
				Existing:              []models.DuplicateCandidate{inv.candidate()},
			}
		}
	}

	if !r.OverrideDuplicate {
		var existing []models.DuplicateCandidate
		for _, inv := range s.invoices {
			if inv.Draft.DedupKey == draft.DedupKey {
				existing = append(existing, inv.candidate())
			}
		}
		if len(existing) > 0 {
			return nil, &models.DuplicateInvoiceError{
				SupplierInvoiceNumber: r.Invoice.SupplierInvoiceNumber,
				SupplierID:            r.SupplierID,
				Existing:              existing,
			}
		}
	}

	s.seq++
	stored := StoredInvoice{
		ID:             uuid.New(),
		InternalNumber: fmt.Sprintf("PI-%06d", s.seq),
		NumberKey:      models.NormalizeInvoiceNumber(r.Invoice.SupplierInvoiceNumber),
		Draft:          *draft,
		CreatedAt:      time.Now(),
	}
	stored.Draft.PendingProducts = append([]models.PendingProduct(nil), draft.PendingProducts...)
	for i := range stored.Draft.PendingProducts {
		stored.Draft.PendingProducts[i].InvoiceID = stored.ID
	}
	if p := stored.Draft.PendingSupplier; p != nil {
		ps := *p
		ps.ID, ps.InvoiceID = uuid.New(), stored.ID
		stored.Draft.PendingSupplier = &ps
	}
	s.invoices = append(s.invoices, stored)

	return &models.InsertResult{InvoiceID: stored.ID, InternalNumber: stored.InternalNumber, CreatedAt: stored.CreatedAt}, nil
}

// All returns a copy of the stored invoices in insert order
func (s *Invoices) All() []StoredInvoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoredInvoice(nil), s.invoices...)
}

func (inv StoredInvoice) candidate() models.DuplicateCandidate {
	r := inv.Draft.Reconciled
	return models.DuplicateCandidate{
		InvoiceID:             inv.ID,
		SupplierInvoiceNumber: r.Invoice.SupplierInvoiceNumber,
		InternalNumber:        inv.InternalNumber,
		SupplierID:            r.SupplierID,
		SupplierName:          r.Invoice.SupplierName,
		IssueDate:             r.Invoice.IssueDate,
		TotalAmount:           r.Invoice.TotalAmount,
		CreatedAt:             inv.CreatedAt,
	}
}
