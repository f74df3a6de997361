package matching

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

// SupplierMatch is the outcome of resolving an extracted supplier
type SupplierMatch struct {
	ExactMatch    *models.Supplier            `json:"exactMatch,omitempty"`
	Suggestions   []models.SupplierSuggestion `json:"suggestions"`
	HasExactMatch bool                        `json:"hasExactMatch"`
	Method        models.MatchMethod          `json:"method,omitempty"`
}

// SupplierMatcher resolves a supplier name / tax id against the catalog
type SupplierMatcher struct {
	catalog     SupplierCatalog
	corrections CorrectionStore
	floor       float64
	limit       int
	logger      zerolog.Logger
}

// NewSupplierMatcher creates a matcher using the floor and suggestion count from cfg
func NewSupplierMatcher(catalog SupplierCatalog, corrections CorrectionStore, cfg models.PipelineConfig, logger zerolog.Logger) *SupplierMatcher {
	return &SupplierMatcher{
		catalog:     catalog,
		corrections: corrections,
		floor:       cfg.SuggestionFloor,
		limit:       cfg.SupplierSuggestions,
		logger:      logger,
	}
}

// Match applies, in order: learned correction, exact tax id, fuzzy name.
// "No good match" is a normal outcome (empty suggestions), never an error.
func (m *SupplierMatcher) Match(ctx context.Context, name, taxID string) (*SupplierMatch, error) {
	result := &SupplierMatch{Suggestions: []models.SupplierSuggestion{}}
	name = strings.TrimSpace(name)
	taxID = strings.TrimSpace(taxID)
	if name == "" && taxID == "" {
		return result, nil
	}

	if s, err := m.fromCorrection(ctx, name, taxID); err != nil {
		return nil, err
	} else if s != nil {
		result.ExactMatch, result.HasExactMatch, result.Method = s, true, models.MatchLearnedCorrection
		m.logger.Debug().Str("supplier_id", s.ID.String()).Msg("supplier.match.learned")
		return result, nil
	}

	if normalized := NormalizeTaxID(taxID); normalized != "" {
		s, err := m.catalog.FindSupplierByTaxID(ctx, normalized)
		switch {
		case err == nil && s != nil:
			result.ExactMatch, result.HasExactMatch, result.Method = s, true, models.MatchExactTaxID
			m.logger.Debug().Str("supplier_id", s.ID.String()).Msg("supplier.match.tax_id")
			return result, nil
		case err != nil && !isNotFound(err):
			return nil, unavailable("supplier catalog", err)
		}
	}

	if name == "" {
		return result, nil
	}
	suggestions, err := m.fuzzy(ctx, name)
	if err != nil {
		return nil, err
	}
	result.Suggestions = suggestions
	m.logger.Debug().Str("name", name).Int("suggestions", len(suggestions)).Msg("supplier.match.fuzzy")
	return result, nil
}

func (m *SupplierMatcher) fromCorrection(ctx context.Context, name, taxID string) (*models.Supplier, error) {
	if m.corrections == nil {
		return nil, nil
	}
	rec, err := m.corrections.LookupCorrection(ctx, models.CorrectionSupplier, SupplierCorrectionKey(name, taxID))
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, unavailable("correction store", err)
	}

	s, err := m.catalog.GetSupplier(ctx, rec.TargetID)
	if err != nil {
		if isNotFound(err) {
			// Target removed from the catalog since it was learned
			return nil, nil
		}
		return nil, unavailable("supplier catalog", err)
	}
	return s, nil
}

type scoredSupplier struct {
	supplier models.Supplier
	score    float64
}

func (m *SupplierMatcher) fuzzy(ctx context.Context, name string) ([]models.SupplierSuggestion, error) {
	candidates, err := m.catalog.SearchSuppliers(ctx, name, candidateLimit)
	if err != nil {
		return nil, unavailable("supplier catalog", err)
	}

	var scored []scoredSupplier
	for _, c := range candidates {
		if sc := SupplierSimilarity(name, c.Name); sc >= m.floor {
			scored = append(scored, scoredSupplier{supplier: c, score: sc})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		ti, tj := scored[i].supplier.LastActivityAt, scored[j].supplier.LastActivityAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return scored[i].supplier.Name < scored[j].supplier.Name
	})
	if len(scored) > m.limit {
		scored = scored[:m.limit]
	}

	out := make([]models.SupplierSuggestion, len(scored))
	for i, s := range scored {
		out[i] = models.SupplierSuggestion{
			SupplierID: s.supplier.ID,
			Name:       s.supplier.Name,
			TaxID:      s.supplier.TaxID,
			Score:      s.score,
			Method:     models.MatchFuzzyName,
		}
	}
	return out, nil
}

// NewSupplierCorrection builds the record that makes a future identical (name, tax id) resolve to supplierID
func NewSupplierCorrection(name, taxID string, supplierID uuid.UUID, user models.UserRef) *models.CorrectionRecord {
	return &models.CorrectionRecord{
		ID:        uuid.New(),
		Kind:      models.CorrectionSupplier,
		RawKey:    SupplierCorrectionKey(name, taxID),
		RawName:   name,
		RawTaxID:  taxID,
		TargetID:  supplierID,
		CreatedBy: user.ID,
		CreatedAt: time.Now(),
	}
}
