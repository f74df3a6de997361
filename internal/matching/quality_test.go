package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/facturaIA/purchase-invoice-ingest/internal/models"
)

func outcomes(decisions ...models.MatchDecision) []LineOutcome {
	out := make([]LineOutcome, len(decisions))
	for i, d := range decisions {
		out[i] = LineOutcome{Decision: d}
	}
	return out
}

func TestSummarize(t *testing.T) {
	auto, needs := models.DecisionAutoMatched, models.DecisionNeedsConfirmation

	tests := []struct {
		name    string
		lines   []LineOutcome
		quality string
		ratio   float64
	}{
		{"all automatic", outcomes(auto, auto, auto, auto, needs), QualityExcellent, 0.8},
		{"half automatic", outcomes(auto, needs), QualityGood, 0.5},
		{"mostly manual", outcomes(auto, needs, models.DecisionMarkedNew), QualityNeedsAttention, 0.333},
		{"no lines", nil, QualityNeedsAttention, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.lines)
			assert.Equal(t, tt.quality, s.Quality)
			assert.Equal(t, tt.ratio, s.AutoRatio)
			assert.NotEmpty(t, s.Recommendation)
		})
	}
}

func TestSummarize_Counts(t *testing.T) {
	s := Summarize([]LineOutcome{
		{Decision: models.DecisionAutoMatched},
		{Decision: models.DecisionNeedsConfirmation, Reason: models.ReasonNoMatches},
		{Decision: models.DecisionNeedsConfirmation, Reason: models.ReasonMultipleMatches},
		{Decision: models.DecisionConfirmed},
		{Decision: models.DecisionSkipped},
	})

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 1, s.AutoMatched)
	assert.Equal(t, 2, s.NeedsConfirmation)
	assert.Equal(t, 1, s.NoMatches)
	assert.Equal(t, 1, s.Confirmed)
	assert.Equal(t, 1, s.Skipped)
}
