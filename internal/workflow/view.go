package workflow

import (
	"github.com/facturaIA/purchase-invoice-ingest/internal/matching"
	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

// Decision kinds exposed to the human interface
const (
	DecisionKindSupplier    = "supplier"
	DecisionKindLine        = "line"
	DecisionKindAcknowledge = "acknowledge"
	DecisionKindDuplicate   = "duplicate"
	DecisionKindCommit      = "commit"
)

// PendingDecision is one action the human is expected to take next
type PendingDecision struct {
	Kind                string                      `json:"kind"`
	LineIndex           *int                        `json:"lineIndex,omitempty"`
	Description         string                      `json:"description,omitempty"`
	Reason              string                      `json:"reason,omitempty"`
	Actions             []string                    `json:"actions"`
	SupplierSuggestions []models.SupplierSuggestion `json:"supplierSuggestions,omitempty"`
	ProductSuggestions  []models.ProductSuggestion  `json:"productSuggestions,omitempty"`
	Warnings            []*models.ValidationError   `json:"warnings,omitempty"`
	Duplicates          []models.DuplicateCandidate `json:"duplicates,omitempty"`
}

// PendingDecisions lists what the current state waits for
func (s *Session) PendingDecisions() []PendingDecision {
	switch s.State {
	case StateNeedsSupplier:
		reason := string(models.ReasonLowConfidence)
		if len(s.Supplier.Suggestions) == 0 {
			reason = string(models.ReasonNoMatches)
		}
		return []PendingDecision{{
			Kind:                DecisionKindSupplier,
			Description:         s.Supplier.RawName,
			Reason:              reason,
			Actions:             []string{"confirm", "new"},
			SupplierSuggestions: s.Supplier.Suggestions,
		}}

	case StateNeedsProduct:
		var out []PendingDecision
		for i, l := range s.Lines {
			if l.Decision.Resolved() {
				continue
			}
			idx := i
			out = append(out, PendingDecision{
				Kind:               DecisionKindLine,
				LineIndex:          &idx,
				Description:        l.Line.Description,
				Reason:             string(l.Reason),
				Actions:            []string{"confirm", "new", "skip"},
				ProductSuggestions: l.Suggestions,
			})
		}
		return out

	case StateNeedsAcknowledgment:
		return []PendingDecision{{Kind: DecisionKindAcknowledge, Actions: []string{"acknowledge"}, Warnings: s.Warnings}}

	case StateDuplicateWarning:
		return []PendingDecision{{
			Kind:       DecisionKindDuplicate,
			Reason:     string(s.DuplicatePhase),
			Actions:    []string{"proceed", "cancel"},
			Duplicates: s.Duplicates,
		}}

	case StateReadyToCommit:
		return []PendingDecision{{Kind: DecisionKindCommit, Actions: []string{"commit"}}}
	}
	return []PendingDecision{}
}

// View is the session as shown to a client
type View struct {
	*Session
	Pending   []PendingDecision `json:"pending"`
	Quality   matching.Summary  `json:"quality"`
	SourceURL string            `json:"sourceUrl,omitempty"` // Presigned link to the archived original
}

// NewView builds the client view of s
func NewView(s *Session) View {
	return View{
		Session: s,
		Pending: s.PendingDecisions(),
		Quality: matching.Summarize(s.LineOutcomes()),
	}
}
