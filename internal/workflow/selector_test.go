package workflow

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/change-service/internal/domain"
)

func boolPtr(v bool) *bool { return &v }

func TestSelectFirstMatchWins(t *testing.T) {
	t.Parallel()

	workflows := []domain.ApprovalWorkflow{
		{ID: "wf-broad", Name: "Broad", Priority: 20, IsActive: true},
		{ID: "wf-high", Name: "High risk", Priority: 10, IsActive: true,
			TriggerConditions: domain.TriggerConditions{RiskLevels: []domain.RiskLevel{domain.RiskLevelHigh, domain.RiskLevelCritical}}},
		{ID: "wf-inactive", Name: "Inactive", Priority: 1, IsActive: false},
	}
	selector := NewSelector(DefaultBusinessHours())
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	got := selector.Select(workflows, Candidate{RiskLevel: domain.RiskLevelHigh}, now)
	require.NotNil(t, got)
	assert.Equal(t, "wf-high", got.ID)

	got = selector.Select(workflows, Candidate{RiskLevel: domain.RiskLevelLow}, now)
	require.NotNil(t, got)
	assert.Equal(t, "wf-broad", got.ID)
}

func TestSelectBreaksPriorityTiesByName(t *testing.T) {
	t.Parallel()

	workflows := []domain.ApprovalWorkflow{
		{ID: "b", Name: "Beta", Priority: 5, IsActive: true},
		{ID: "a", Name: "Alpha", Priority: 5, IsActive: true},
	}
	for i := 0; i < 10; i++ {
		got := NewSelector(DefaultBusinessHours()).Select(workflows, Candidate{}, time.Now())
		require.NotNil(t, got)
		assert.Equal(t, "a", got.ID)
	}
}

func TestSelectReturnsNilWithoutMatch(t *testing.T) {
	t.Parallel()

	workflows := []domain.ApprovalWorkflow{
		{ID: "wf", Name: "Emergency", IsActive: true,
			TriggerConditions: domain.TriggerConditions{EmergencyOverride: boolPtr(true)}},
	}
	assert.Nil(t, NewSelector(DefaultBusinessHours()).Select(workflows, Candidate{IsEmergency: false}, time.Now()))
	assert.Nil(t, NewSelector(DefaultBusinessHours()).Select(nil, Candidate{}, time.Now()))
}

func TestSelectPinnedWorkflowTakesPrecedence(t *testing.T) {
	t.Parallel()

	pinned := "wf-pinned"
	workflows := []domain.ApprovalWorkflow{
		{ID: "wf-any", Name: "Any", Priority: 1, IsActive: true},
		{ID: pinned, Name: "Pinned", Priority: 99, IsActive: true,
			TriggerConditions: domain.TriggerConditions{RiskLevels: []domain.RiskLevel{domain.RiskLevelCritical}}},
	}
	got := NewSelector(DefaultBusinessHours()).Select(workflows, Candidate{RiskLevel: domain.RiskLevelLow, PinnedWorkflowID: &pinned}, time.Now())
	require.NotNil(t, got)
	assert.Equal(t, pinned, got.ID)

	workflows[1].IsActive = false
	got = NewSelector(DefaultBusinessHours()).Select(workflows, Candidate{PinnedWorkflowID: &pinned}, time.Now())
	require.NotNil(t, got)
	assert.Equal(t, "wf-any", got.ID)
}

func TestMatchesAllPresentConditions(t *testing.T) {
	t.Parallel()

	selector := NewSelector(DefaultBusinessHours())
	trigger := domain.TriggerConditions{
		RiskLevels:        []domain.RiskLevel{domain.RiskLevelCritical},
		ImpactLevels:      []domain.ImpactLevel{domain.ImpactLevelHigh},
		ChangeTypes:       []string{"cat-network"},
		BusinessHours:     boolPtr(false),
		EmergencyOverride: boolPtr(true),
	}
	saturday := time.Date(2024, 3, 9, 11, 0, 0, 0, time.UTC)
	candidate := Candidate{
		RiskLevel:   domain.RiskLevelCritical,
		ImpactLevel: domain.ImpactLevelHigh,
		CategoryID:  "cat-network",
		IsEmergency: true,
	}
	assert.True(t, selector.Matches(trigger, candidate, saturday))

	tuesday := time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC)
	assert.False(t, selector.Matches(trigger, candidate, tuesday))

	other := candidate
	other.CategoryID = "cat-database"
	assert.False(t, selector.Matches(trigger, other, saturday))

	other = candidate
	other.ImpactLevel = domain.ImpactLevelLow
	assert.False(t, selector.Matches(trigger, other, saturday))
}

func TestBusinessHoursContains(t *testing.T) {
	t.Parallel()

	hours, err := ParseBusinessHours("08:30", "18:00", []string{"mon", "Tuesday", "sat"}, "Europe/Berlin")
	require.NoError(t, err)

	berlin := hours.Location
	assert.True(t, hours.Contains(time.Date(2024, 3, 4, 8, 30, 0, 0, berlin)))
	assert.False(t, hours.Contains(time.Date(2024, 3, 4, 8, 29, 0, 0, berlin)))
	assert.False(t, hours.Contains(time.Date(2024, 3, 4, 18, 0, 0, 0, berlin)))
	assert.True(t, hours.Contains(time.Date(2024, 3, 9, 12, 0, 0, 0, berlin)))
	assert.False(t, hours.Contains(time.Date(2024, 3, 6, 12, 0, 0, 0, berlin)))
	// 07:45 UTC is 08:45 in Berlin in winter.
	assert.True(t, hours.Contains(time.Date(2024, 3, 4, 7, 45, 0, 0, time.UTC)))
}

func TestParseBusinessHoursRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := ParseBusinessHours("9am", "", nil, "")
	assert.Error(t, err)
	_, err = ParseBusinessHours("17:00", "09:00", nil, "")
	assert.Error(t, err)
	_, err = ParseBusinessHours("", "", []string{"someday"}, "")
	assert.Error(t, err)
	_, err = ParseBusinessHours("", "", nil, "Mars/Olympus")
	assert.Error(t, err)
}
