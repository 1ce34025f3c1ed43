package risk

import (
	"math"

	"github.com/shopspring/decimal"

	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

// ValidScore reports whether score is a finite number within [0, 100].
func ValidScore(score float64) bool {
	return !math.IsNaN(score) && !math.IsInf(score, 0) && score >= 0 && score <= 100
}

// ScoreProblems lists the impact scores that fail ValidScore, keyed as
// "impactScores.<key>" for validation error details.
func ScoreProblems(scores map[string]float64) map[string]any {
	problems := map[string]any{}
	for key, score := range scores {
		if !ValidScore(score) {
			problems["impactScores."+key] = "must be a number within [0, 100]"
		}
	}
	return problems
}

// ValidateScores returns a validation error naming every invalid impact score.
func ValidateScores(scores map[string]float64) error {
	problems := ScoreProblems(scores)
	if len(problems) == 0 {
		return nil
	}
	return apperrors.NewValidationError("invalid impact scores", problems)
}

// toDecimal converts a raw score, mapping NaN to zero and infinities to the
// nearest bound, so decimal construction never panics.
func toDecimal(raw float64) decimal.Decimal {
	switch {
	case math.IsNaN(raw):
		return minScore
	case math.IsInf(raw, 1):
		return maxScore
	case math.IsInf(raw, -1):
		return minScore
	}
	return decimal.NewFromFloat(raw)
}
