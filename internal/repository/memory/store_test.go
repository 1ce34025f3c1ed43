package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/repository"
	"github.com/spec-kit/change-service/internal/repository/repotest"
)

func newChange(id, org, number string) *domain.ChangeRequest {
	return &domain.ChangeRequest{
		ID:           id,
		OrgID:        org,
		ChangeNumber: number,
		Title:        "Rotate certificates",
		Status:       domain.ChangeStatusPendingApproval,
		CreatedAt:    time.Now(),
		Workflow: &domain.WorkflowSnapshot{Steps: []domain.ApprovalStep{
			{StepNumber: 1, RequiredApprovers: 1, ApproverRoles: []string{"cab"}},
		}},
	}
}

func TestApplyDecisionRejectsStaleVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := New().Repositories()
	cr := newChange("cr-1", "org-1", "CHG-000001")
	require.NoError(t, repos.Changes.Create(ctx, cr))
	assert.EqualValues(t, 1, cr.Version)

	first, err := repos.Changes.GetByID(ctx, "org-1", "cr-1")
	require.NoError(t, err)
	second, err := repos.Changes.GetByID(ctx, "org-1", "cr-1")
	require.NoError(t, err)

	record := &domain.ChangeApprovalRecord{ID: "rec-1", OrgID: "org-1", ChangeRequestID: "cr-1", StepNumber: 1, ApproverID: "alice"}
	require.NoError(t, repos.Changes.ApplyDecision(ctx, first, 1, record))
	assert.EqualValues(t, 2, first.Version)

	record2 := &domain.ChangeApprovalRecord{ID: "rec-2", OrgID: "org-1", ChangeRequestID: "cr-1", StepNumber: 1, ApproverID: "bob"}
	err = repos.Changes.ApplyDecision(ctx, second, 1, record2)
	require.ErrorIs(t, err, repository.ErrVersionConflict)

	ledger, err := repos.Ledger.ListByRequest(ctx, "org-1", "cr-1")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, "alice", ledger[0].ApproverID)
}

func TestCreateRejectsDuplicateRequestKey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := New().Repositories()
	key := "import-42"
	first := newChange("cr-1", "org-1", "CHG-000001")
	first.RequestKey = &key
	require.NoError(t, repos.Changes.Create(ctx, first))

	second := newChange("cr-2", "org-1", "CHG-000002")
	second.RequestKey = &key
	require.ErrorIs(t, repos.Changes.Create(ctx, second), repository.ErrDuplicate)

	other := newChange("cr-3", "org-2", "CHG-000001")
	other.RequestKey = &key
	require.NoError(t, repos.Changes.Create(ctx, other))

	found, err := repos.Changes.GetByRequestKey(ctx, "org-1", key)
	require.NoError(t, err)
	assert.Equal(t, "cr-1", found.ID)
}

func TestTenantIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := New().Repositories()
	require.NoError(t, repos.Changes.Create(ctx, newChange("cr-1", "org-1", "CHG-000001")))

	_, err := repos.Changes.GetByID(ctx, "org-2", "cr-1")
	require.ErrorIs(t, err, repository.ErrNotFound)

	listed, err := repos.Changes.List(ctx, "org-2", repository.ChangeFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestStoredSnapshotIsIsolatedFromCaller(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := New().Repositories()
	cr := newChange("cr-1", "org-1", "CHG-000001")
	require.NoError(t, repos.Changes.Create(ctx, cr))

	cr.Workflow.Steps[0].RequiredApprovers = 9
	stored, err := repos.Changes.GetByID(ctx, "org-1", "cr-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Workflow.Steps[0].RequiredApprovers)
}

func TestListAwaitingApprovalPagesByID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := New().Repositories()
	require.NoError(t, repos.Changes.Create(ctx, newChange("a", "org-1", "CHG-1")))
	require.NoError(t, repos.Changes.Create(ctx, newChange("b", "org-2", "CHG-1")))
	done := newChange("c", "org-1", "CHG-2")
	done.Status = domain.ChangeStatusApproved
	require.NoError(t, repos.Changes.Create(ctx, done))

	page, err := repos.Changes.ListAwaitingApproval(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)

	page, err = repos.Changes.ListAwaitingApproval(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)
}

func TestSettingsNamesUniquePerTenant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repos := New().Repositories()
	require.NoError(t, repos.Categories.Create(ctx, &domain.ChangeCategory{ID: "c1", OrgID: "org-1", Name: "Security"}))
	require.ErrorIs(t, repos.Categories.Create(ctx, &domain.ChangeCategory{ID: "c2", OrgID: "org-1", Name: "Security"}), repository.ErrDuplicate)
	require.NoError(t, repos.Categories.Create(ctx, &domain.ChangeCategory{ID: "c3", OrgID: "org-2", Name: "Security"}))

	require.NoError(t, repos.Workflows.Create(ctx, &domain.ApprovalWorkflow{ID: "w1", OrgID: "org-1", Name: "Standard"}))
	require.NoError(t, repos.Workflows.Create(ctx, &domain.ApprovalWorkflow{ID: "w2", OrgID: "org-1", Name: "Emergency"}))
	renamed := &domain.ApprovalWorkflow{ID: "w2", OrgID: "org-1", Name: "Standard"}
	require.ErrorIs(t, repos.Workflows.Update(ctx, renamed), repository.ErrDuplicate)

	require.ErrorIs(t, repos.Matrices.Delete(ctx, "org-1", "missing"), repository.ErrNotFound)
}

func TestStoreContract(t *testing.T) {
	repotest.RunStoreContract(t, New().Repositories())
}
