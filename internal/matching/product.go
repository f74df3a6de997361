package matching

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

// ScoreFunc scores a line description against a catalog product name in [0,1]
type ScoreFunc func(description, productName string) float64

// ProductMatch is the classification of one extracted line
type ProductMatch struct {
	Decision    models.MatchDecision       `json:"decision"`
	Reason      models.MatchReason         `json:"reason,omitempty"`
	Product     *models.Product            `json:"product,omitempty"`
	Confidence  float64                    `json:"confidence"`
	Method      models.MatchMethod         `json:"method,omitempty"`
	Suggestions []models.ProductSuggestion `json:"suggestions"`
}

// ProductMatcher resolves extracted lines against the product catalog
type ProductMatcher struct {
	catalog     ProductCatalog
	corrections CorrectionStore
	score       ScoreFunc
	auto        float64
	floor       float64
	margin      float64
	limit       int
	logger      zerolog.Logger
}

// NewProductMatcher creates a matcher with the thresholds from cfg
func NewProductMatcher(catalog ProductCatalog, corrections CorrectionStore, cfg models.PipelineConfig, logger zerolog.Logger) *ProductMatcher {
	return &ProductMatcher{
		catalog:     catalog,
		corrections: corrections,
		score:       Similarity,
		auto:        cfg.AutoThreshold,
		floor:       cfg.SuggestionFloor,
		margin:      cfg.AmbiguityMargin,
		limit:       cfg.ProductSuggestions,
		logger:      logger,
	}
}

// WithScorer replaces the similarity function
func (m *ProductMatcher) WithScorer(fn ScoreFunc) *ProductMatcher {
	m.score = fn
	return m
}

// Match classifies a line: exact code, learned correction, then fuzzy name.
// Ambiguous or weak candidates are never auto-resolved.
func (m *ProductMatcher) Match(ctx context.Context, line models.ExtractedLine) (*ProductMatch, error) {
	if p, err := m.byCode(ctx, line); err != nil {
		return nil, err
	} else if p != nil {
		return &ProductMatch{
			Decision:    models.DecisionAutoMatched,
			Product:     p,
			Confidence:  1,
			Method:      models.MatchExactCode,
			Suggestions: []models.ProductSuggestion{},
		}, nil
	}

	if p, err := m.fromCorrection(ctx, line.Description); err != nil {
		return nil, err
	} else if p != nil {
		return &ProductMatch{
			Decision:    models.DecisionAutoMatched,
			Product:     p,
			Confidence:  1,
			Method:      models.MatchLearnedCorrection,
			Suggestions: []models.ProductSuggestion{},
		}, nil
	}

	return m.fuzzy(ctx, line.Description)
}

// byCode tries the printed code, then the description itself as a SKU/barcode
func (m *ProductMatcher) byCode(ctx context.Context, line models.ExtractedLine) (*models.Product, error) {
	for _, code := range []string{strings.TrimSpace(line.Code), strings.TrimSpace(line.Description)} {
		if code == "" {
			continue
		}
		p, err := m.catalog.FindProductByCode(ctx, code)
		if err == nil && p != nil {
			return p, nil
		}
		if err != nil && !isNotFound(err) {
			return nil, unavailable("product catalog", err)
		}
	}
	return nil, nil
}

func (m *ProductMatcher) fromCorrection(ctx context.Context, description string) (*models.Product, error) {
	key := ProductCorrectionKey(description)
	if m.corrections == nil || key == "" {
		return nil, nil
	}
	rec, err := m.corrections.LookupCorrection(ctx, models.CorrectionProduct, key)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, unavailable("correction store", err)
	}
	p, err := m.catalog.GetProduct(ctx, rec.TargetID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, unavailable("product catalog", err)
	}
	return p, nil
}

type scoredProduct struct {
	product models.Product
	score   float64
}

func (m *ProductMatcher) fuzzy(ctx context.Context, description string) (*ProductMatch, error) {
	result := &ProductMatch{
		Decision:    models.DecisionNeedsConfirmation,
		Reason:      models.ReasonNoMatches,
		Suggestions: []models.ProductSuggestion{},
	}
	if strings.TrimSpace(description) == "" {
		return result, nil
	}

	candidates, err := m.catalog.SearchProducts(ctx, description, candidateLimit)
	if err != nil {
		return nil, unavailable("product catalog", err)
	}

	var scored []scoredProduct
	for _, c := range candidates {
		if sc := m.score(description, c.Name); sc >= m.floor {
			scored = append(scored, scoredProduct{product: c, score: sc})
		}
	}
	if len(scored) == 0 {
		return result, nil
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].product.Name < scored[j].product.Name
	})

	top := scored[0]
	ambiguous := len(scored) > 1 && top.score-scored[1].score < m.margin
	result.Confidence = top.score

	if top.score >= m.auto && !ambiguous {
		p := top.product
		result.Decision = models.DecisionAutoMatched
		result.Reason = ""
		result.Product = &p
		result.Method = models.MatchFuzzyName
		return result, nil
	}

	switch {
	case ambiguous, len(scored) > 1 && top.score < m.auto:
		result.Reason = models.ReasonMultipleMatches
	default:
		result.Reason = models.ReasonLowConfidence
	}

	if len(scored) > m.limit {
		scored = scored[:m.limit]
	}
	for _, s := range scored {
		result.Suggestions = append(result.Suggestions, models.ProductSuggestion{
			ProductID: s.product.ID,
			Name:      s.product.Name,
			SKU:       s.product.SKU,
			Score:     s.score,
			Method:    models.MatchFuzzyName,
		})
	}
	m.logger.Debug().
		Str("description", description).
		Str("reason", string(result.Reason)).
		Float64("top_score", top.score).
		Int("suggestions", len(result.Suggestions)).
		Msg("product.match.needs_confirmation")
	return result, nil
}
