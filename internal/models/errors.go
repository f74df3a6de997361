package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable, retry later")
	ErrNoDatabase       = errors.New("database not available")
	ErrSessionNotFound  = errors.New("session not found")
)

// Extraction failure reasons
const (
	ReasonProviderFailed    = "provider_failed"
	ReasonEmptyResponse     = "empty_response"
	ReasonMalformedResponse = "malformed_response"
	ReasonMissingFields     = "missing_fields"
	ReasonRefused           = "refused"
	ReasonExampleData       = "example_data"
	ReasonUnreadableText    = "unreadable_text"
)

// ExtractionError means the extractor was unavailable or returned unusable data.
// It is fatal to the current attempt and retryable by re-upload.
type ExtractionError struct {
	Method ExtractionMethod
	Reason string
	Fields []string // Missing mandatory fields, if any
	Err    error
}

func (e *ExtractionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "extraction failed (%s): %s", e.Method, e.Reason)
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ValidationError is a data-quality warning on extracted values. Line is -1 for header fields.
type ValidationError struct {
	Field    string          `json:"field"`
	Line     int             `json:"line"`
	Code     string          `json:"code"`
	Expected decimal.Decimal `json:"expected"`
	Actual   decimal.Decimal `json:"actual"`
	Message  string          `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("line %d %s: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DuplicateInvoiceError is raised when an invoice with the same supplier-issued number already exists
type DuplicateInvoiceError struct {
	SupplierInvoiceNumber string
	SupplierID            *uuid.UUID
	Existing              []DuplicateCandidate
}

func (e *DuplicateInvoiceError) Error() string {
	scope := "any supplier"
	if e.SupplierID != nil {
		scope = "supplier " + e.SupplierID.String()
	}
	return fmt.Sprintf("invoice %s already exists for %s (%d match(es))",
		e.SupplierInvoiceNumber, scope, len(e.Existing))
}

// TransitionError is returned when an action is not allowed in the current workflow state
type TransitionError struct {
	From   string
	Action string
	Detail string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("action %q not allowed in state %q", e.Action, e.From)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}
