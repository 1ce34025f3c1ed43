package risk

import (
	"math"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/change-service/internal/domain"
)

// Input pairs an impact category with its clamped raw score.
type Input struct {
	Category domain.ImpactCategory
	Score    decimal.Decimal
	Weight   decimal.Decimal
}

// Formula combines per-category inputs into a 0-100 score for matrices using
// the custom calculation method.
type Formula func(inputs []Input) decimal.Decimal

var (
	formulasMu sync.RWMutex
	formulas   = map[string]Formula{
		"quadratic_mean": quadraticMean,
		"peak_weighted":  peakWeighted,
	}
)

// RegisterFormula makes a custom formula available to matrices by name.
func RegisterFormula(name string, fn Formula) {
	formulasMu.Lock()
	defer formulasMu.Unlock()
	formulas[name] = fn
}

// Formulas lists the registered custom formula names.
func Formulas() []string {
	formulasMu.RLock()
	defer formulasMu.RUnlock()
	names := make([]string, 0, len(formulas))
	for name := range formulas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupFormula(name string) (Formula, bool) {
	formulasMu.RLock()
	defer formulasMu.RUnlock()
	fn, ok := formulas[name]
	return fn, ok
}

func weightedAverage(inputs []Input) decimal.Decimal {
	total := decimal.Zero
	for _, in := range inputs {
		total = total.Add(in.Score.Mul(in.Weight))
	}
	return total
}

func highestImpact(inputs []Input) decimal.Decimal {
	highest := decimal.Zero
	for _, in := range inputs {
		if in.Score.GreaterThan(highest) {
			highest = in.Score
		}
	}
	return highest
}

// quadraticMean is sqrt(sum(w * s^2)); it punishes a single severe dimension
// harder than the weighted average does.
func quadraticMean(inputs []Input) decimal.Decimal {
	total := decimal.Zero
	for _, in := range inputs {
		total = total.Add(in.Weight.Mul(in.Score).Mul(in.Score))
	}
	f, _ := total.Float64()
	return decimal.NewFromFloat(math.Sqrt(f))
}

// peakWeighted averages the weighted score with the single highest sub-score.
func peakWeighted(inputs []Input) decimal.Decimal {
	return weightedAverage(inputs).Add(highestImpact(inputs)).Div(decimal.NewFromInt(2))
}
