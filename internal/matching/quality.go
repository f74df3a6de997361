package matching

import "github.com/facturaIA/purchase-invoice-ingest/internal/models"

// Quality bands
const (
	QualityExcellent      = "excellent"
	QualityGood           = "good"
	QualityNeedsAttention = "needs_attention"
)

// Summary describes how well an invoice's lines matched the catalog
type Summary struct {
	Total             int     `json:"total"`
	AutoMatched       int     `json:"autoMatched"`
	NeedsConfirmation int     `json:"needsConfirmation"`
	NoMatches         int     `json:"noMatches"`
	Confirmed         int     `json:"confirmed"`
	MarkedNew         int     `json:"markedNew"`
	Skipped           int     `json:"skipped"`
	AutoRatio         float64 `json:"autoRatio"`
	Quality           string  `json:"quality"`
	Recommendation    string  `json:"recommendation"`
}

// LineOutcome is the per-line input to Summarize
type LineOutcome struct {
	Decision models.MatchDecision
	Reason   models.MatchReason
}

// Summarize counts line outcomes and grades the automatic matching rate
func Summarize(lines []LineOutcome) Summary {
	s := Summary{Total: len(lines)}
	for _, l := range lines {
		switch l.Decision {
		case models.DecisionAutoMatched:
			s.AutoMatched++
		case models.DecisionNeedsConfirmation:
			s.NeedsConfirmation++
			if l.Reason == models.ReasonNoMatches {
				s.NoMatches++
			}
		case models.DecisionConfirmed:
			s.Confirmed++
		case models.DecisionMarkedNew:
			s.MarkedNew++
		case models.DecisionSkipped:
			s.Skipped++
		}
	}

	if s.Total > 0 {
		s.AutoRatio = round3(float64(s.AutoMatched) / float64(s.Total))
	}

	switch {
	case s.Total == 0:
		s.Quality = QualityNeedsAttention
		s.Recommendation = "La factura no tiene lineas detectadas, revise el documento"
	case s.AutoRatio >= 0.8:
		s.Quality = QualityExcellent
		s.Recommendation = "Puede confirmar la factura directamente"
	case s.AutoRatio >= 0.5:
		s.Quality = QualityGood
		s.Recommendation = "Revise los productos sugeridos antes de confirmar"
	default:
		s.Quality = QualityNeedsAttention
		s.Recommendation = "Muchos productos sin coincidencia, considere crearlos en el catalogo"
	}
	return s
}
