package workflow

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/facturaIA/purchase-invoice-ingest/internal/matching"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

// State is the confirmation workflow position of a session
type State string

const (
	StateExtracting          State = "extracting"
	StateMatching            State = "matching"
	StateDuplicateWarning    State = "duplicate_warning"
	StateNeedsSupplier       State = "needs_supplier_confirmation"
	StateNeedsProduct        State = "needs_product_confirmation"
	StateNeedsAcknowledgment State = "needs_acknowledgment"
	StateReadyToCommit       State = "ready_to_commit"
	StateCommitting          State = "committing"
	StateComplete            State = "complete"
	StateFailed              State = "failed"
	StateCancelled           State = "cancelled"
)

// Terminal reports whether no further action is possible
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}

// DuplicatePhase tells which duplicate check put the session in StateDuplicateWarning
type DuplicatePhase string

const (
	PhasePreview DuplicatePhase = "preview"
	PhaseCommit  DuplicatePhase = "commit"
)

// SupplierResolution holds the extracted supplier and how it was resolved
type SupplierResolution struct {
	RawName     string                      `json:"rawName,omitempty"`
	RawTaxID    string                      `json:"rawTaxId,omitempty"`
	Decision    models.MatchDecision        `json:"decision"`
	SupplierID  *uuid.UUID                  `json:"supplierId,omitempty"`
	Name        string                      `json:"name,omitempty"`
	Method      models.MatchMethod          `json:"method,omitempty"`
	Suggestions []models.SupplierSuggestion `json:"suggestions"`
}

// LineState is one extracted line with its match outcome and human decision
type LineState struct {
	Line        models.ExtractedLine       `json:"line"`
	Decision    models.MatchDecision       `json:"decision"`
	Reason      models.MatchReason         `json:"reason,omitempty"`
	ProductID   *uuid.UUID                 `json:"productId,omitempty"`
	ProductName string                     `json:"productName,omitempty"`
	Confidence  float64                    `json:"confidence"`
	Method      models.MatchMethod         `json:"method,omitempty"`
	Suggestions []models.ProductSuggestion `json:"suggestions"`
}

// HistoryEntry records one transition
type HistoryEntry struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Action string    `json:"action"`
	Actor  string    `json:"actor,omitempty"`
	At     time.Time `json:"at"`
}

// Session is the serializable state of one upload, from extraction to commit.
// Methods validate before mutating, so a rejected action leaves it unchanged.
type Session struct {
	ID    uuid.UUID `json:"id"`
	State State     `json:"state"`

	Invoice  models.ExtractedInvoice `json:"invoice"`
	Supplier SupplierResolution      `json:"supplier"`
	Lines    []LineState             `json:"lines"`

	Warnings             []*models.ValidationError `json:"warnings,omitempty"`
	WarningsAcknowledged bool                      `json:"warningsAcknowledged"`

	Duplicates        []models.DuplicateCandidate `json:"duplicates,omitempty"`
	DuplicatePhase    DuplicatePhase              `json:"duplicatePhase,omitempty"`
	OverrideDuplicate bool                        `json:"overrideDuplicate"`

	// Written to the correction store only after a successful commit
	PendingCorrections []models.CorrectionRecord `json:"pendingCorrections,omitempty"`

	SourcePath    string               `json:"sourcePath,omitempty"`
	Result        *models.CommitResult `json:"result,omitempty"`
	FailureReason string               `json:"failureReason,omitempty"`

	CreatedBy models.UserRef `json:"createdBy"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	History   []HistoryEntry `json:"history"`
}

// NewSession starts a session in StateExtracting
func NewSession(user models.UserRef) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New(),
		State:     StateExtracting,
		Lines:     []LineState{},
		CreatedBy: user,
		CreatedAt: now,
		UpdatedAt: now,
		History:   []HistoryEntry{},
	}
}

func (s *Session) transition(to State, action string, actor models.UserRef) {
	now := time.Now()
	s.History = append(s.History, HistoryEntry{From: s.State, To: to, Action: action, Actor: actor.ID, At: now})
	s.State = to
	s.UpdatedAt = now
}

func (s *Session) require(action string, allowed ...State) error {
	for _, st := range allowed {
		if s.State == st {
			return nil
		}
	}
	return &models.TransitionError{From: string(s.State), Action: action}
}

func (s *Session) line(action string, index int) (*LineState, error) {
	if index < 0 || index >= len(s.Lines) {
		return nil, &models.TransitionError{From: string(s.State), Action: action, Detail: fmt.Sprintf("line %d does not exist", index)}
	}
	return &s.Lines[index], nil
}

// BeginMatching stores the extracted invoice and moves to StateMatching
func (s *Session) BeginMatching(inv models.ExtractedInvoice, actor models.UserRef) error {
	if err := s.require("begin_matching", StateExtracting); err != nil {
		return err
	}
	s.Invoice = inv
	s.transition(StateMatching, "extracted", actor)
	return nil
}

// ApplyMatches records the matcher, validator and preview duplicate outcomes and evaluates the next step.
// Duplicates found here stop the session before any confirmation step.
func (s *Session) ApplyMatches(supplier SupplierResolution, lines []LineState, warnings []*models.ValidationError, duplicates []models.DuplicateCandidate, actor models.UserRef) error {
	if err := s.require("apply_matches", StateMatching); err != nil {
		return err
	}
	s.Supplier = supplier
	s.Lines = lines
	s.Warnings = warnings
	if len(duplicates) > 0 {
		s.Duplicates = duplicates
		s.DuplicatePhase = PhasePreview
		s.transition(StateDuplicateWarning, "duplicate_found", actor)
		return nil
	}
	s.evaluate("matched", actor)
	return nil
}

// evaluate moves to the first step that still needs a human, or to StateReadyToCommit.
// The supplier is always resolved before product confirmation is presented.
func (s *Session) evaluate(action string, actor models.UserRef) {
	var next State
	switch {
	case !s.Supplier.Decision.Resolved():
		next = StateNeedsSupplier
	case s.hasUnresolvedLines():
		next = StateNeedsProduct
	case len(s.Warnings) > 0 && !s.WarningsAcknowledged:
		next = StateNeedsAcknowledgment
	default:
		next = StateReadyToCommit
	}
	s.transition(next, action, actor)
}

func (s *Session) hasUnresolvedLines() bool {
	for _, l := range s.Lines {
		if !l.Decision.Resolved() {
			return true
		}
	}
	return false
}

// ConfirmSupplier accepts a human-chosen catalog supplier and queues the correction
// that maps the raw extracted pair to it.
func (s *Session) ConfirmSupplier(supplier models.Supplier, actor models.UserRef) error {
	if err := s.require("confirm_supplier", StateNeedsSupplier); err != nil {
		return err
	}
	id := supplier.ID
	s.Supplier.Decision = models.DecisionConfirmed
	s.Supplier.SupplierID = &id
	s.Supplier.Name = supplier.Name
	s.Supplier.Method = ""

	if s.Supplier.RawName != "" || s.Supplier.RawTaxID != "" {
		rec := matching.NewSupplierCorrection(s.Supplier.RawName, s.Supplier.RawTaxID, id, actor)
		s.queueCorrection(*rec)
	}
	s.evaluate("supplier_confirmed", actor)
	return nil
}

// MarkSupplierNew flags the supplier as not yet cataloged
func (s *Session) MarkSupplierNew(actor models.UserRef) error {
	if err := s.require("mark_supplier_new", StateNeedsSupplier); err != nil {
		return err
	}
	s.Supplier.Decision = models.DecisionMarkedNew
	s.Supplier.SupplierID = nil
	s.Supplier.Name = s.Supplier.RawName
	s.dropCorrection(models.CorrectionSupplier, "")
	s.evaluate("supplier_marked_new", actor)
	return nil
}

// ConfirmProduct assigns a catalog product to a line. A choice that differs from
// an automatic match queues a product correction.
func (s *Session) ConfirmProduct(index int, product models.Product, actor models.UserRef) error {
	if err := s.require("confirm_product", StateNeedsProduct); err != nil {
		return err
	}
	l, err := s.line("confirm_product", index)
	if err != nil {
		return err
	}

	id := product.ID
	key := matching.ProductCorrectionKey(l.Line.Description)
	autoSame := l.Decision == models.DecisionAutoMatched && l.ProductID != nil && *l.ProductID == id
	if !autoSame && key != "" {
		s.queueCorrection(models.CorrectionRecord{
			ID:        uuid.New(),
			Kind:      models.CorrectionProduct,
			RawKey:    key,
			RawName:   l.Line.Description,
			TargetID:  id,
			CreatedBy: actor.ID,
			CreatedAt: time.Now(),
		})
	}

	l.Decision = models.DecisionConfirmed
	l.Reason = models.ReasonManualConfirmation
	l.ProductID = &id
	l.ProductName = product.Name
	s.afterLineDecision("product_confirmed", actor)
	return nil
}

// MarkLineNew flags a line as a product to be cataloged later
func (s *Session) MarkLineNew(index int, actor models.UserRef) error {
	if err := s.require("mark_line_new", StateNeedsProduct); err != nil {
		return err
	}
	l, err := s.line("mark_line_new", index)
	if err != nil {
		return err
	}
	s.dropCorrection(models.CorrectionProduct, matching.ProductCorrectionKey(l.Line.Description))
	l.Decision = models.DecisionMarkedNew
	l.Reason = models.ReasonNewProduct
	l.ProductID = nil
	l.ProductName = ""
	s.afterLineDecision("line_marked_new", actor)
	return nil
}

// SkipLine leaves a line as free text; it never blocks the commit
func (s *Session) SkipLine(index int, actor models.UserRef) error {
	if err := s.require("skip_line", StateNeedsProduct); err != nil {
		return err
	}
	l, err := s.line("skip_line", index)
	if err != nil {
		return err
	}
	s.dropCorrection(models.CorrectionProduct, matching.ProductCorrectionKey(l.Line.Description))
	l.Decision = models.DecisionSkipped
	l.ProductID = nil
	l.ProductName = ""
	s.afterLineDecision("line_skipped", actor)
	return nil
}

// afterLineDecision stays in product confirmation until every line is resolved
func (s *Session) afterLineDecision(action string, actor models.UserRef) {
	if s.hasUnresolvedLines() {
		s.transition(StateNeedsProduct, action, actor)
		return
	}
	s.evaluate(action, actor)
}

// AcknowledgeWarnings accepts the validation warnings as they are
func (s *Session) AcknowledgeWarnings(actor models.UserRef) error {
	if err := s.require("acknowledge_warnings", StateNeedsAcknowledgment); err != nil {
		return err
	}
	s.WarningsAcknowledged = true
	s.evaluate("warnings_acknowledged", actor)
	return nil
}

// ResolveDuplicate applies the human override for a duplicate warning.
// proceed=false cancels the session.
func (s *Session) ResolveDuplicate(proceed bool, actor models.UserRef) error {
	if err := s.require("resolve_duplicate", StateDuplicateWarning); err != nil {
		return err
	}
	if !proceed {
		s.transition(StateCancelled, "duplicate_cancelled", actor)
		return nil
	}
	s.OverrideDuplicate = true
	if s.DuplicatePhase == PhaseCommit {
		s.transition(StateReadyToCommit, "duplicate_override", actor)
		return nil
	}
	s.evaluate("duplicate_override", actor)
	return nil
}

// BeginCommit moves a ready session into StateCommitting
func (s *Session) BeginCommit(actor models.UserRef) error {
	if err := s.require("commit", StateReadyToCommit); err != nil {
		return err
	}
	s.transition(StateCommitting, "commit_started", actor)
	return nil
}

// CompleteCommit records a successful write
func (s *Session) CompleteCommit(result models.CommitResult, actor models.UserRef) error {
	if err := s.require("complete_commit", StateCommitting); err != nil {
		return err
	}
	s.Result = &result
	s.PendingCorrections = nil
	s.transition(StateComplete, "committed", actor)
	return nil
}

// RejectCommit records a duplicate found by the commit-time check
func (s *Session) RejectCommit(duplicates []models.DuplicateCandidate, actor models.UserRef) error {
	if err := s.require("reject_commit", StateCommitting); err != nil {
		return err
	}
	s.Duplicates = duplicates
	s.DuplicatePhase = PhaseCommit
	s.OverrideDuplicate = false
	s.transition(StateDuplicateWarning, "duplicate_at_commit", actor)
	return nil
}

// AbortCommit returns to StateReadyToCommit after a retryable store failure
func (s *Session) AbortCommit(actor models.UserRef) error {
	if err := s.require("abort_commit", StateCommitting); err != nil {
		return err
	}
	s.transition(StateReadyToCommit, "commit_failed", actor)
	return nil
}

// Fail ends the session with a reason
func (s *Session) Fail(reason string, actor models.UserRef) error {
	if s.State.Terminal() {
		return &models.TransitionError{From: string(s.State), Action: "fail"}
	}
	s.FailureReason = reason
	s.transition(StateFailed, "failed", actor)
	return nil
}

// Cancel discards the session from any non-terminal state
func (s *Session) Cancel(actor models.UserRef) error {
	if s.State.Terminal() {
		return &models.TransitionError{From: string(s.State), Action: "cancel"}
	}
	s.PendingCorrections = nil
	s.transition(StateCancelled, "cancelled", actor)
	return nil
}

// queueCorrection keeps at most one pending correction per (kind, key)
func (s *Session) queueCorrection(rec models.CorrectionRecord) {
	s.dropCorrection(rec.Kind, rec.RawKey)
	s.PendingCorrections = append(s.PendingCorrections, rec)
}

// dropCorrection removes a queued correction. An empty key matches every key of the kind.
func (s *Session) dropCorrection(kind models.CorrectionKind, key string) {
	kept := s.PendingCorrections[:0]
	for _, c := range s.PendingCorrections {
		if c.Kind == kind && (key == "" || c.RawKey == key) {
			continue
		}
		kept = append(kept, c)
	}
	s.PendingCorrections = kept
}

// Reconciled assembles the draft handed to the committer
func (s *Session) Reconciled() (*models.ReconciledInvoice, error) {
	if s.State != StateReadyToCommit && s.State != StateCommitting {
		return nil, &models.TransitionError{From: string(s.State), Action: "reconcile"}
	}

	lines := make([]models.ReconciledLine, len(s.Lines))
	for i, l := range s.Lines {
		line := l.Line
		line.ProductID = l.ProductID
		line.ProductSuggestions = nil
		lines[i] = models.ReconciledLine{Line: line, Decision: l.Decision, ProductID: l.ProductID}
	}

	inv := s.Invoice
	inv.Lines = nil
	return &models.ReconciledInvoice{
		SessionID:         s.ID,
		Invoice:           inv,
		SupplierID:        s.Supplier.SupplierID,
		NewSupplier:       s.Supplier.Decision == models.DecisionMarkedNew,
		Lines:             lines,
		SourcePath:        s.SourcePath,
		OverrideDuplicate: s.OverrideDuplicate,
	}, nil
}

// LineOutcomes feeds matching.Summarize
func (s *Session) LineOutcomes() []matching.LineOutcome {
	out := make([]matching.LineOutcome, len(s.Lines))
	for i, l := range s.Lines {
		out[i] = matching.LineOutcome{Decision: l.Decision, Reason: l.Reason}
	}
	return out
}
