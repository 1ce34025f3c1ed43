package risk

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/change-service/internal/domain"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

const (
	WarningNoMatrix = "no active risk matrix; using category default risk level"
	WarningNoScores = "no impact scores supplied; using category default risk level"
)

var (
	minScore = decimal.Zero
	maxScore = decimal.NewFromInt(100)
)

// Assessment is the outcome of scoring a change.
type Assessment struct {
	Score    float64
	Level    domain.RiskLevel
	Controls domain.RequiredControls
	Warnings []string
}

// Evaluate scores the impact inputs against matrix. Categories missing from
// scores count as zero and weights are never renormalised.
func Evaluate(matrix *domain.RiskMatrix, scores map[string]float64) (Assessment, error) {
	if matrix == nil {
		return Assessment{}, apperrors.NewConfigurationError("risk matrix required", nil)
	}
	score, err := Score(matrix, scores)
	if err != nil {
		return Assessment{}, err
	}
	level := ResolveLevel(matrix, score)
	value, _ := score.Float64()
	return Assessment{
		Score:    value,
		Level:    level,
		Controls: Controls(matrix, level),
	}, nil
}

// Assess is the lenient entry point used at request creation. Without a
// matrix, or without any impact data, it falls back to the supplied level with
// a zero score and a warning instead of failing. A matrix whose formula cannot
// be resolved still fails.
func Assess(matrix *domain.RiskMatrix, scores map[string]float64, fallback domain.RiskLevel) (Assessment, error) {
	if !fallback.Valid() {
		fallback = domain.RiskLevelMedium
	}
	if matrix == nil {
		return Assessment{Level: fallback, Warnings: []string{WarningNoMatrix}}, nil
	}
	if err := validateMethod(matrix); err != nil {
		return Assessment{}, err
	}
	if len(scores) == 0 {
		return Assessment{
			Level:    fallback,
			Controls: Controls(matrix, fallback),
			Warnings: []string{WarningNoScores},
		}, nil
	}
	return Evaluate(matrix, scores)
}

// Score combines the sub-scores according to the matrix calculation method.
// The result is clamped to [0, 100] and rounded to two decimals.
func Score(matrix *domain.RiskMatrix, scores map[string]float64) (decimal.Decimal, error) {
	if err := validateMethod(matrix); err != nil {
		return decimal.Zero, err
	}
	inputs := collectInputs(matrix, scores)

	var total decimal.Decimal
	switch matrix.CalculationMethod {
	case domain.CalculationHighestImpact:
		total = highestImpact(inputs)
	case domain.CalculationCustom:
		fn, _ := lookupFormula(matrix.CustomFormula)
		total = fn(inputs)
	default:
		total = weightedAverage(inputs)
	}
	return clamp(total).Round(2), nil
}

// ResolveLevel walks the matrix levels from lowest to highest and keeps the
// highest one whose threshold the score reaches. A level's threshold is the
// lowest threshold any impact category defines for it; reaching it exactly
// counts. A score below every threshold is low.
func ResolveLevel(matrix *domain.RiskMatrix, score decimal.Decimal) domain.RiskLevel {
	levels := orderedLevels(matrix)
	resolved := domain.RiskLevelLow
	if matrix == nil || len(matrix.ImpactCategories) == 0 {
		return resolved
	}
	for _, level := range levels {
		if score.GreaterThanOrEqual(levelThreshold(matrix, level)) {
			resolved = level
		}
	}
	return resolved
}

// Controls projects the matrix configuration of level onto a change request.
func Controls(matrix *domain.RiskMatrix, level domain.RiskLevel) domain.RequiredControls {
	cfg, ok := matrix.LevelConfig(level)
	if !ok {
		return domain.RequiredControls{}
	}
	controls := domain.RequiredControls{
		RequiredApprovers:     cfg.RequiredApprovers,
		AutoApprovalAllowed:   cfg.AutoApprovalAllowed,
		RollbackRequired:      cfg.RollbackRequired,
		TestingRequired:       cfg.TestingRequired,
		DocumentationRequired: cfg.DocumentationRequired,
		CommunicationRequired: cfg.CommunicationRequired,
	}
	if cfg.MaxDowntimeMinutes != nil {
		minutes := *cfg.MaxDowntimeMinutes
		controls.MaxDowntimeMinutes = &minutes
	}
	return controls
}

// WeightSum returns the total of the impact category weights; matrices whose
// sum is not 1 are accepted but flagged by the settings service.
func WeightSum(matrix *domain.RiskMatrix) float64 {
	total := decimal.Zero
	for _, cat := range matrix.ImpactCategories {
		total = total.Add(decimal.NewFromFloat(cat.Weight))
	}
	value, _ := total.Float64()
	return value
}

func validateMethod(matrix *domain.RiskMatrix) error {
	switch matrix.CalculationMethod {
	case domain.CalculationWeightedAverage, domain.CalculationHighestImpact, "":
		return nil
	case domain.CalculationCustom:
		if strings.TrimSpace(matrix.CustomFormula) == "" {
			return apperrors.NewConfigurationError("custom risk formula missing", map[string]any{"risk_matrix_id": matrix.ID})
		}
		if _, ok := lookupFormula(matrix.CustomFormula); !ok {
			return apperrors.NewConfigurationError("unknown custom risk formula", map[string]any{
				"risk_matrix_id": matrix.ID,
				"formula":        matrix.CustomFormula,
			})
		}
		return nil
	default:
		return apperrors.NewConfigurationError("unknown risk calculation method", map[string]any{
			"risk_matrix_id": matrix.ID,
			"method":         string(matrix.CalculationMethod),
		})
	}
}

func collectInputs(matrix *domain.RiskMatrix, scores map[string]float64) []Input {
	inputs := make([]Input, 0, len(matrix.ImpactCategories))
	for _, cat := range matrix.ImpactCategories {
		raw, ok := scores[cat.Key]
		if !ok && cat.Name != "" {
			raw = scores[cat.Name]
		}
		inputs = append(inputs, Input{
			Category: cat,
			Score:    clamp(toDecimal(raw)),
			Weight:   decimal.NewFromFloat(cat.Weight),
		})
	}
	return inputs
}

func orderedLevels(matrix *domain.RiskMatrix) []domain.RiskLevel {
	if matrix == nil || len(matrix.Levels) == 0 {
		return domain.RiskLevels
	}
	levels := make([]domain.RiskLevel, 0, len(matrix.Levels))
	for _, cfg := range matrix.Levels {
		if cfg.Level.Valid() {
			levels = append(levels, cfg.Level)
		}
	}
	if len(levels) == 0 {
		return domain.RiskLevels
	}
	sort.SliceStable(levels, func(i, j int) bool { return levels[i].Rank() < levels[j].Rank() })
	return levels
}

func levelThreshold(matrix *domain.RiskMatrix, level domain.RiskLevel) decimal.Decimal {
	threshold := decimal.NewFromFloat(matrix.ImpactCategories[0].Thresholds.For(level))
	for _, cat := range matrix.ImpactCategories[1:] {
		candidate := decimal.NewFromFloat(cat.Thresholds.For(level))
		if candidate.LessThan(threshold) {
			threshold = candidate
		}
	}
	return threshold
}

func clamp(value decimal.Decimal) decimal.Decimal {
	if value.LessThan(minScore) {
		return minScore
	}
	if value.GreaterThan(maxScore) {
		return maxScore
	}
	return value
}
