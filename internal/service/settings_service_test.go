package service

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/change-service/internal/domain"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

func TestCategoryNamesUniquePerTenant(t *testing.T) {
	h := newHarness(t)
	h.mustCategory(t, &domain.ChangeCategory{Name: "Network", IsActive: true})

	_, err := h.settings.CreateCategory(h.ctx, testOrg, &domain.ChangeCategory{Name: "Network"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeDuplicateName))

	_, err = h.settings.CreateCategory(h.ctx, "org-2", &domain.ChangeCategory{Name: "Network"})
	assert.NoError(t, err)
}

func TestCategoryDefaultsAndValidation(t *testing.T) {
	h := newHarness(t)
	category := h.mustCategory(t, &domain.ChangeCategory{Name: "  Database  "})
	assert.Equal(t, "Database", category.Name)
	assert.Equal(t, domain.RiskLevelMedium, category.DefaultRiskLevel)
	assert.Equal(t, domain.ImpactLevelMedium, category.DefaultImpactLevel)

	start := h.clock.Now()
	_, err := h.settings.CreateCategory(h.ctx, testOrg, &domain.ChangeCategory{
		Name:             "Broken",
		DefaultRiskLevel: "extreme",
		DefaultMaintenanceWindow: domain.MaintenanceWindow{
			DurationMinutes: -5,
			PreferredSlots:  []domain.TimeSlot{{Start: "22:00"}},
			BlackoutPeriods: []domain.BlackoutPeriod{{Starts: start, Ends: start}},
		},
		Notifications: domain.NotificationPolicy{Channels: []string{"pager"}, Events: []string{"change_exploded"}},
	})
	require.Error(t, err)
	details := apperrors.ToDomainError(err).Details
	for _, field := range []string{
		"defaultRiskLevel",
		"defaultMaintenanceWindow.durationMinutes",
		"defaultMaintenanceWindow.preferredSlots[0]",
		"defaultMaintenanceWindow.blackoutPeriods[0]",
		"notifications.channels",
		"notifications.events",
	} {
		assert.Contains(t, details, field)
	}

	_, err = h.settings.CreateCategory(h.ctx, testOrg, &domain.ChangeCategory{Name: "Pinned", ApprovalWorkflowID: strPtr("nope")})
	require.Error(t, err)
	assert.Contains(t, apperrors.ToDomainError(err).Details, "approvalWorkflowId")
}

func TestMatrixValidation(t *testing.T) {
	h := newHarness(t)
	matrix := standardMatrix()
	matrix.Levels = append(matrix.Levels, domain.RiskLevelConfig{Level: domain.RiskLevelLow})
	matrix.ImpactCategories[0].Weight = 1.5
	matrix.ImpactCategories[1].Thresholds = domain.ImpactThresholds{Low: 0, Medium: 60, High: 50, Critical: 75}
	matrix.ImpactCategories[2].Key = "business"

	_, err := h.settings.CreateMatrix(h.ctx, testOrg, matrix)
	require.Error(t, err)
	details := apperrors.ToDomainError(err).Details
	assert.Contains(t, details, "levels[4]")
	assert.Contains(t, details, "impactCategories[0]")
	assert.Contains(t, details, "impactCategories[1]")
	assert.Contains(t, details, "impactCategories[2]")

	custom := standardMatrix()
	custom.CalculationMethod = domain.CalculationCustom
	custom.CustomFormula = "not_registered"
	_, err = h.settings.CreateMatrix(h.ctx, testOrg, custom)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	custom.CustomFormula = "quadratic_mean"
	_, err = h.settings.CreateMatrix(h.ctx, testOrg, custom)
	assert.NoError(t, err)
}

func TestMatrixRejectsNonFiniteNumbers(t *testing.T) {
	h := newHarness(t)
	matrix := standardMatrix()
	matrix.ImpactCategories[0].Weight = math.NaN()
	matrix.ImpactCategories[1].Thresholds.Critical = math.Inf(1)

	_, err := h.settings.CreateMatrix(h.ctx, testOrg, matrix)
	require.Error(t, err)
	details := apperrors.ToDomainError(err).Details
	assert.Contains(t, details, "impactCategories[0]")
	assert.Contains(t, details, "impactCategories[1]")
}

func TestUnbalancedWeightsAreAccepted(t *testing.T) {
	h := newHarness(t)
	matrix := standardMatrix()
	matrix.ImpactCategories[0].Weight = 0.5
	h.mustMatrix(t, matrix)

	preview, err := h.changes.ComputeRiskPreview(h.ctx, testOrg, nil, map[string]float64{"business": 100})
	require.NoError(t, err)
	assert.InDelta(t, 50, preview.RiskScore, 0.001)
}

func TestOldestDefaultMatrixWins(t *testing.T) {
	h := newHarness(t)
	first := standardMatrix()
	first.Name = "First"
	h.mustMatrix(t, first)

	h.clock.Advance(time.Minute)
	second := standardMatrix()
	second.Name = "Second"
	h.mustMatrix(t, second)

	matrix, err := h.settings.GetRiskMatrixForChangeCreation(h.ctx, testOrg)
	require.NoError(t, err)
	require.NotNil(t, matrix)
	assert.Equal(t, first.ID, matrix.ID)

	first.IsActive = false
	_, err = h.settings.UpdateMatrix(h.ctx, testOrg, first.ID, first)
	require.NoError(t, err)

	matrix, err = h.settings.GetRiskMatrixForChangeCreation(h.ctx, testOrg)
	require.NoError(t, err)
	assert.Equal(t, second.ID, matrix.ID)
}

func TestNoDefaultMatrixReturnsNil(t *testing.T) {
	h := newHarness(t)
	matrix := standardMatrix()
	matrix.IsDefault = false
	h.mustMatrix(t, matrix)

	got, err := h.settings.GetRiskMatrixForChangeCreation(h.ctx, testOrg)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSettingsWritesInvalidateCreationCache(t *testing.T) {
	h := newHarness(t)
	category := h.mustCategory(t, &domain.ChangeCategory{Name: "Network", IsActive: true})

	active, err := h.settings.GetCategoriesForChangeCreation(h.ctx, testOrg)
	require.NoError(t, err)
	require.Len(t, active, 1)

	category.IsActive = false
	_, err = h.settings.UpdateCategory(h.ctx, testOrg, category.ID, category)
	require.NoError(t, err)

	active, err = h.settings.GetCategoriesForChangeCreation(h.ctx, testOrg)
	require.NoError(t, err)
	assert.Empty(t, active)

	workflows, err := h.settings.GetWorkflowsForChangeCreation(h.ctx, testOrg)
	require.NoError(t, err)
	assert.NotNil(t, workflows)
	assert.Empty(t, workflows)

	wf := h.mustWorkflow(t, &domain.ApprovalWorkflow{
		Name:     "Normal",
		IsActive: true,
		Steps:    []domain.ApprovalStep{{StepNumber: 1, Name: "Lead", RequiredApprovers: 1}},
	})
	workflows, err = h.settings.GetWorkflowsForChangeCreation(h.ctx, testOrg)
	require.NoError(t, err)
	require.Len(t, workflows, 1)

	require.NoError(t, h.settings.DeleteWorkflow(h.ctx, testOrg, wf.ID))
	workflows, err = h.settings.GetWorkflowsForChangeCreation(h.ctx, testOrg)
	require.NoError(t, err)
	assert.Empty(t, workflows)
}

func TestWorkflowsOrderedByPriority(t *testing.T) {
	h := newHarness(t)
	for _, wf := range []*domain.ApprovalWorkflow{
		{Name: "Beta", Priority: 20, IsActive: true},
		{Name: "Alpha", Priority: 20, IsActive: true},
		{Name: "Urgent", Priority: 1, IsActive: true},
		{Name: "Dormant", Priority: 0, IsActive: false},
	} {
		wf.Steps = []domain.ApprovalStep{{StepNumber: 1, Name: "Lead", RequiredApprovers: 1}}
		h.mustWorkflow(t, wf)
	}

	workflows, err := h.settings.GetWorkflowsForChangeCreation(h.ctx, testOrg)
	require.NoError(t, err)
	names := make([]string, len(workflows))
	for i, wf := range workflows {
		names[i] = wf.Name
	}
	assert.Equal(t, []string{"Urgent", "Alpha", "Beta"}, names)
}

func TestWorkflowValidation(t *testing.T) {
	h := newHarness(t)
	wf := h.mustWorkflow(t, &domain.ApprovalWorkflow{
		Name:  "Normal",
		Steps: []domain.ApprovalStep{{StepNumber: 1, Name: "Lead", RequiredApprovers: 1}},
	})
	assert.Equal(t, domain.TimeoutEscalate, wf.EscalationRules.TimeoutAction)

	_, err := h.settings.CreateWorkflow(h.ctx, testOrg, &domain.ApprovalWorkflow{
		Name: "Broken",
		TriggerConditions: domain.TriggerConditions{
			RiskLevels: []domain.RiskLevel{"severe"},
		},
		Steps: []domain.ApprovalStep{
			{StepNumber: 1, Name: "A", RequiredApprovers: 0},
			{StepNumber: 1, Name: "B", RequiredApprovers: 1},
			{StepNumber: 3, Name: "C", RequiredApprovers: 1, Condition: &domain.StepCondition{Field: "weather", Operator: domain.ConditionEquals}},
			{StepNumber: 4, Name: "D", RequiredApprovers: 1, TimeoutHours: intPtr(-1)},
		},
		EscalationRules: domain.EscalationRules{TimeoutAction: "panic", NotificationFrequencyHours: -1},
	})
	require.Error(t, err)
	details := apperrors.ToDomainError(err).Details
	for _, field := range []string{
		"triggerConditions.riskLevels",
		"steps[0]",
		"steps[1]",
		"steps[2]",
		"steps[3]",
		"escalationRules.timeoutAction",
		"escalationRules.notificationFrequencyHours",
	} {
		assert.Contains(t, details, field)
	}

	_, err = h.settings.CreateWorkflow(h.ctx, testOrg, &domain.ApprovalWorkflow{Name: "Empty"})
	require.Error(t, err)
	assert.Contains(t, apperrors.ToDomainError(err).Details, "steps")
}

func TestMissingSettingsAreNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.settings.GetCategory(h.ctx, testOrg, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	_, err = h.settings.UpdateWorkflow(h.ctx, testOrg, "missing", &domain.ApprovalWorkflow{Name: "x"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	err = h.settings.DeleteMatrix(h.ctx, testOrg, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
