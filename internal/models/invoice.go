package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExtractionMethod selects the engine used to turn document text into fields
type ExtractionMethod string

const (
	MethodAI  ExtractionMethod = "ai"
	MethodOCR ExtractionMethod = "ocr"
)

// Valid reports whether m is a known extraction method
func (m ExtractionMethod) Valid() bool {
	return m == MethodAI || m == MethodOCR
}

// ExtractedInvoice is the candidate record produced by the extractor for a single upload
type ExtractedInvoice struct {
	// Supplier as printed on the document
	SupplierName  string `json:"supplierName,omitempty"`
	SupplierTaxID string `json:"supplierTaxId,omitempty"`

	// Numbering
	SupplierInvoiceNumber string `json:"supplierInvoiceNumber"`    // Number assigned by the issuing supplier
	InternalNumber        string `json:"internalNumber,omitempty"` // Sequence assigned at commit

	// Dates
	IssueDate time.Time `json:"issueDate,omitzero"`
	DueDate   time.Time `json:"dueDate,omitzero"`

	// Amounts
	Subtotal    decimal.Decimal `json:"subtotal"`    // Net amount
	TaxAmount   decimal.Decimal `json:"taxAmount"`   // IVA
	TotalAmount decimal.Decimal `json:"totalAmount"` // Gross amount

	Lines []ExtractedLine `json:"lines"`

	// Metadata
	Confidence  float64          `json:"confidence"` // Extraction confidence (0-1), never a match score
	Method      ExtractionMethod `json:"method"`
	FileName    string           `json:"fileName,omitempty"`
	FileSize    int64            `json:"fileSize,omitempty"`
	ExtractedAt time.Time        `json:"extractedAt"`
}

// ExtractedLine is a single invoice line as read from the document
type ExtractedLine struct {
	Index       int             `json:"index"`
	Code        string          `json:"code,omitempty"` // Supplier code / SKU when printed
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Discount    decimal.Decimal `json:"discount"`
	Subtotal    decimal.Decimal `json:"subtotal"` // quantity * unitPrice - discount

	ProductID          *uuid.UUID          `json:"productId,omitempty"`
	ProductSuggestions []ProductSuggestion `json:"productSuggestions,omitempty"`
}

// ExpectedSubtotal returns quantity * unitPrice - discount
func (l ExtractedLine) ExpectedSubtotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Sub(l.Discount)
}

// MatchMethod names the rule that produced a suggestion
type MatchMethod string

const (
	MatchExactCode         MatchMethod = "exact_code"
	MatchExactTaxID        MatchMethod = "exact_tax_id"
	MatchFuzzyName         MatchMethod = "fuzzy_name"
	MatchLearnedCorrection MatchMethod = "learned_correction"
)

// SupplierSuggestion is a ranked supplier candidate
type SupplierSuggestion struct {
	SupplierID uuid.UUID   `json:"supplierId"`
	Name       string      `json:"name"`
	TaxID      string      `json:"taxId,omitempty"`
	Score      float64     `json:"score"`
	Method     MatchMethod `json:"method"`
}

// ProductSuggestion is a ranked product candidate
type ProductSuggestion struct {
	ProductID uuid.UUID   `json:"productId"`
	Name      string      `json:"name"`
	SKU       string      `json:"sku,omitempty"`
	Score     float64     `json:"score"`
	Method    MatchMethod `json:"method"`
}

// MatchDecision is the resolution state of a supplier or a line
type MatchDecision string

const (
	DecisionAutoMatched       MatchDecision = "auto_matched"
	DecisionNeedsConfirmation MatchDecision = "needs_confirmation"
	DecisionMarkedNew         MatchDecision = "marked_new"

	// Human outcomes
	DecisionConfirmed MatchDecision = "confirmed"
	DecisionSkipped   MatchDecision = "skipped"
)

// Resolved reports whether the decision lets the invoice be committed
func (d MatchDecision) Resolved() bool {
	return d != DecisionNeedsConfirmation && d != ""
}

// MatchReason explains why a line needs a human
type MatchReason string

const (
	ReasonNoMatches          MatchReason = "no_matches"
	ReasonMultipleMatches    MatchReason = "multiple_matches"
	ReasonLowConfidence      MatchReason = "low_confidence"
	ReasonManualConfirmation MatchReason = "manual_confirmation"
	ReasonNewProduct         MatchReason = "new_product"
)

// DuplicateCandidate is an already stored invoice that collides on the supplier-issued number
type DuplicateCandidate struct {
	InvoiceID             uuid.UUID       `json:"invoiceId"`
	SupplierInvoiceNumber string          `json:"supplierInvoiceNumber"`
	InternalNumber        string          `json:"internalNumber,omitempty"`
	SupplierID            *uuid.UUID      `json:"supplierId,omitempty"`
	SupplierName          string          `json:"supplierName,omitempty"`
	IssueDate             time.Time       `json:"issueDate,omitzero"`
	TotalAmount           decimal.Decimal `json:"totalAmount"`
	CreatedAt             time.Time       `json:"createdAt"`
}

// CorrectionKind separates supplier and product learning
type CorrectionKind string

const (
	CorrectionSupplier CorrectionKind = "supplier"
	CorrectionProduct  CorrectionKind = "product"
)

// CorrectionRecord maps a raw extracted string to the catalog id a human confirmed for it
type CorrectionRecord struct {
	ID        uuid.UUID      `json:"id"`
	Kind      CorrectionKind `json:"kind"`
	RawKey    string         `json:"rawKey"` // Normalized lookup key
	RawName   string         `json:"rawName"`
	RawTaxID  string         `json:"rawTaxId,omitempty"`
	TargetID  uuid.UUID      `json:"targetId"`
	CreatedBy string         `json:"createdBy,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ReconciledLine is a line with its final decision
type ReconciledLine struct {
	Line      ExtractedLine `json:"line"`
	Decision  MatchDecision `json:"decision"`
	ProductID *uuid.UUID    `json:"productId,omitempty"`
}

// ReconciledInvoice is the draft handed to the committer
type ReconciledInvoice struct {
	SessionID         uuid.UUID        `json:"sessionId"` // Idempotency token
	Invoice           ExtractedInvoice `json:"invoice"`
	SupplierID        *uuid.UUID       `json:"supplierId,omitempty"`
	NewSupplier       bool             `json:"newSupplier"`
	Lines             []ReconciledLine `json:"lines"`
	NeedsReview       bool             `json:"needsReview"`
	SourcePath        string           `json:"sourcePath,omitempty"`
	OverrideDuplicate bool             `json:"overrideDuplicate"`
}

// UserRef identifies the human acting on a session
type UserRef struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// CommitResult is returned by a successful commit
type CommitResult struct {
	InvoiceID        uuid.UUID `json:"invoiceId"`
	InternalNumber   string    `json:"internalNumber"`
	CreatedLineCount int       `json:"createdLineCount"`
	PendingProducts  int       `json:"pendingProducts"`
	PendingSupplier  bool      `json:"pendingSupplier"`
	CommittedAt      time.Time `json:"committedAt"`
}

// ExtractionLogEntry records one extraction attempt
type ExtractionLogEntry struct {
	ID          uuid.UUID        `json:"id"`
	Method      ExtractionMethod `json:"method"`
	FileName    string           `json:"fileName"`
	FileSize    int64            `json:"fileSize"`
	TextExcerpt string           `json:"textExcerpt"`
	Response    string           `json:"response,omitempty"`
	Duration    time.Duration    `json:"duration"`
	Confidence  float64          `json:"confidence"`
	Success     bool             `json:"success"`
	Error       string           `json:"error,omitempty"`
	CreatedBy   string           `json:"createdBy,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// NormalizeInvoiceNumber reduces a supplier-issued number to its comparison key:
// uppercase letters and digits only, so "F-1001", "f 1001" and "F1001" collide.
func NormalizeInvoiceNumber(number string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(number) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
