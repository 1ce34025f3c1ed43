package risk

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/change-service/internal/domain"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

func thresholds() domain.ImpactThresholds {
	return domain.ImpactThresholds{Low: 0, Medium: 30, High: 60, Critical: 85}
}

func testMatrix(method domain.CalculationMethod) *domain.RiskMatrix {
	return &domain.RiskMatrix{
		ID:                "matrix-1",
		Name:              "Standard",
		CalculationMethod: method,
		IsDefault:         true,
		IsActive:          true,
		Levels: []domain.RiskLevelConfig{
			{Level: domain.RiskLevelLow, AutoApprovalAllowed: true, RequiredApprovers: 0},
			{Level: domain.RiskLevelMedium, RequiredApprovers: 1, TestingRequired: true},
			{Level: domain.RiskLevelHigh, RequiredApprovers: 3, RollbackRequired: true, TestingRequired: true},
			{Level: domain.RiskLevelCritical, RequiredApprovers: 4, RollbackRequired: true, CommunicationRequired: true},
		},
		ImpactCategories: []domain.ImpactCategory{
			{Key: "business", Name: "Business", Weight: 0.3, Thresholds: thresholds()},
			{Key: "technical", Name: "Technical", Weight: 0.3, Thresholds: thresholds()},
			{Key: "user", Name: "User", Weight: 0.2, Thresholds: thresholds()},
			{Key: "compliance", Name: "Compliance", Weight: 0.2, Thresholds: thresholds()},
		},
	}
}

func TestEvaluateWeightedAverage(t *testing.T) {
	t.Parallel()

	got, err := Evaluate(testMatrix(domain.CalculationWeightedAverage), map[string]float64{
		"business":   80,
		"technical":  60,
		"user":       40,
		"compliance": 20,
	})
	require.NoError(t, err)
	// 24 + 18 + 8 + 4
	assert.Equal(t, 54.0, got.Score)
	assert.Equal(t, domain.RiskLevelMedium, got.Level)
	assert.Equal(t, 1, got.Controls.RequiredApprovers)
	assert.True(t, got.Controls.TestingRequired)
}

func TestEvaluateDoesNotRenormaliseMissingCategories(t *testing.T) {
	t.Parallel()

	got, err := Evaluate(testMatrix(domain.CalculationWeightedAverage), map[string]float64{"business": 100})
	require.NoError(t, err)
	assert.Equal(t, 30.0, got.Score)
	assert.Equal(t, domain.RiskLevelMedium, got.Level, "score exactly on the medium threshold resolves to medium")
}

func TestEvaluateMatchesCategoryByName(t *testing.T) {
	t.Parallel()

	got, err := Evaluate(testMatrix(domain.CalculationWeightedAverage), map[string]float64{"Business": 100})
	require.NoError(t, err)
	assert.Equal(t, 30.0, got.Score)
}

func TestEvaluateHighestImpact(t *testing.T) {
	t.Parallel()

	got, err := Evaluate(testMatrix(domain.CalculationHighestImpact), map[string]float64{
		"business":  10,
		"technical": 85,
	})
	require.NoError(t, err)
	assert.Equal(t, 85.0, got.Score)
	assert.Equal(t, domain.RiskLevelCritical, got.Level)
	assert.Equal(t, 4, got.Controls.RequiredApprovers)
}

func TestEvaluateClampsScores(t *testing.T) {
	t.Parallel()

	got, err := Evaluate(testMatrix(domain.CalculationHighestImpact), map[string]float64{
		"business":  250,
		"technical": -40,
	})
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Score)
}

func TestEvaluateCustomFormula(t *testing.T) {
	t.Parallel()

	matrix := testMatrix(domain.CalculationCustom)
	matrix.CustomFormula = "peak_weighted"
	got, err := Evaluate(matrix, map[string]float64{"business": 100})
	require.NoError(t, err)
	// (30 + 100) / 2
	assert.Equal(t, 65.0, got.Score)
	assert.Equal(t, domain.RiskLevelHigh, got.Level)
}

func TestEvaluateCustomFormulaQuadraticMean(t *testing.T) {
	t.Parallel()

	matrix := testMatrix(domain.CalculationCustom)
	matrix.CustomFormula = "quadratic_mean"
	got, err := Evaluate(matrix, map[string]float64{
		"business": 50, "technical": 50, "user": 50, "compliance": 50,
	})
	require.NoError(t, err)
	assert.InDelta(t, 50.0, got.Score, 0.01)
}

func TestEvaluateCustomFormulaMissingIsConfigurationError(t *testing.T) {
	t.Parallel()

	matrix := testMatrix(domain.CalculationCustom)
	_, err := Evaluate(matrix, map[string]float64{"business": 10})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration))

	matrix.CustomFormula = "does_not_exist"
	_, err = Evaluate(matrix, map[string]float64{"business": 10})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration))
}

func TestEvaluateUnknownMethodIsConfigurationError(t *testing.T) {
	t.Parallel()

	_, err := Evaluate(testMatrix("geometric"), map[string]float64{"business": 10})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration))
}

func TestRegisterFormula(t *testing.T) {
	RegisterFormula("always_ninety", func([]Input) decimal.Decimal { return decimal.NewFromInt(90) })
	assert.Contains(t, Formulas(), "always_ninety")

	matrix := testMatrix(domain.CalculationCustom)
	matrix.CustomFormula = "always_ninety"
	got, err := Evaluate(matrix, map[string]float64{"business": 1})
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelCritical, got.Level)
}

func TestResolveLevelUsesLowestCategoryThreshold(t *testing.T) {
	t.Parallel()

	matrix := testMatrix(domain.CalculationWeightedAverage)
	matrix.ImpactCategories[0].Thresholds.High = 50

	assert.Equal(t, domain.RiskLevelMedium, ResolveLevel(matrix, decimal.RequireFromString("49.99")))
	assert.Equal(t, domain.RiskLevelHigh, ResolveLevel(matrix, decimal.NewFromInt(50)))
}

func TestResolveLevelOnlyWalksConfiguredLevels(t *testing.T) {
	t.Parallel()

	matrix := testMatrix(domain.CalculationWeightedAverage)
	matrix.Levels = []domain.RiskLevelConfig{
		{Level: domain.RiskLevelHigh},
		{Level: domain.RiskLevelLow},
	}
	assert.Equal(t, domain.RiskLevelLow, ResolveLevel(matrix, decimal.NewFromInt(59)))
	assert.Equal(t, domain.RiskLevelHigh, ResolveLevel(matrix, decimal.NewFromInt(99)))
}

func TestResolveLevelBelowEveryThresholdIsLow(t *testing.T) {
	t.Parallel()

	matrix := testMatrix(domain.CalculationWeightedAverage)
	matrix.Levels = []domain.RiskLevelConfig{
		{Level: domain.RiskLevelMedium},
		{Level: domain.RiskLevelHigh},
	}
	assert.Equal(t, domain.RiskLevelLow, ResolveLevel(matrix, decimal.NewFromInt(10)))
	assert.Equal(t, domain.RiskLevelMedium, ResolveLevel(matrix, decimal.NewFromInt(30)))
}

func TestEvaluateToleratesNonFiniteScores(t *testing.T) {
	t.Parallel()

	got, err := Evaluate(testMatrix(domain.CalculationHighestImpact), map[string]float64{
		"business":  math.NaN(),
		"technical": math.Inf(-1),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Score)

	got, err = Evaluate(testMatrix(domain.CalculationHighestImpact), map[string]float64{"user": math.Inf(1)})
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Score)
}

func TestValidateScores(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateScores(nil))
	assert.NoError(t, ValidateScores(map[string]float64{"business": 0, "user": 100}))

	err := ValidateScores(map[string]float64{
		"business":   math.NaN(),
		"technical":  math.Inf(1),
		"user":       -1,
		"compliance": 50,
	})
	require.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	details := apperrors.ToDomainError(err).Details
	assert.Contains(t, details, "impactScores.business")
	assert.Contains(t, details, "impactScores.technical")
	assert.Contains(t, details, "impactScores.user")
	assert.NotContains(t, details, "impactScores.compliance")
}

func TestWeightedAverageIsMonotonic(t *testing.T) {
	t.Parallel()

	matrix := testMatrix(domain.CalculationWeightedAverage)
	base := map[string]float64{"business": 20, "technical": 40, "user": 60, "compliance": 80}
	for _, cat := range matrix.ImpactCategories {
		prevScore := -1.0
		prevRank := -1
		for sub := 0.0; sub <= 100; sub += 2.5 {
			scores := map[string]float64{}
			for k, v := range base {
				scores[k] = v
			}
			scores[cat.Key] = sub
			got, err := Evaluate(matrix, scores)
			require.NoError(t, err)
			require.GreaterOrEqual(t, got.Score, prevScore, "category %s at %v", cat.Key, sub)
			require.GreaterOrEqual(t, got.Level.Rank(), prevRank, "category %s at %v", cat.Key, sub)
			prevScore = got.Score
			prevRank = got.Level.Rank()
		}
	}
}

func TestAssessFallsBackWithoutMatrix(t *testing.T) {
	t.Parallel()

	got, err := Assess(nil, map[string]float64{"business": 90}, domain.RiskLevelHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelHigh, got.Level)
	assert.Zero(t, got.Score)
	assert.Equal(t, []string{WarningNoMatrix}, got.Warnings)
}

func TestAssessFallsBackWithoutScores(t *testing.T) {
	t.Parallel()

	got, err := Assess(testMatrix(domain.CalculationWeightedAverage), nil, domain.RiskLevelHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelHigh, got.Level)
	assert.Equal(t, 3, got.Controls.RequiredApprovers)
	assert.Equal(t, []string{WarningNoScores}, got.Warnings)
}

func TestAssessDefaultsInvalidFallbackToMedium(t *testing.T) {
	t.Parallel()

	got, err := Assess(nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelMedium, got.Level)
}

func TestAssessStillFailsOnBrokenFormula(t *testing.T) {
	t.Parallel()

	_, err := Assess(testMatrix(domain.CalculationCustom), nil, domain.RiskLevelLow)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration))
}

func TestWeightSum(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, WeightSum(testMatrix(domain.CalculationWeightedAverage)))
}
