// Package repotest holds behaviour every repository.Store backend must share.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/repository"
)

// RunStoreContract exercises store against the repository contracts. Every
// record uses fresh ids and tenants so the run tolerates a shared database.
func RunStoreContract(t *testing.T, store *repository.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, store.Ping(ctx))
	})

	t.Run("decision is atomic and version guarded", func(t *testing.T) {
		org := uuid.NewString()
		cr := newChange(org)
		require.NoError(t, store.Changes.Create(ctx, cr))
		assert.EqualValues(t, 1, cr.Version)

		first, err := store.Changes.GetByID(ctx, org, cr.ID)
		require.NoError(t, err)
		stale, err := store.Changes.GetByID(ctx, org, cr.ID)
		require.NoError(t, err)

		first.CurrentStep = 2
		require.NoError(t, store.Changes.ApplyDecision(ctx, first, 1, newRecord(cr, "alice")))
		assert.EqualValues(t, 2, first.Version)

		err = store.Changes.ApplyDecision(ctx, stale, 1, newRecord(cr, "bob"))
		require.ErrorIs(t, err, repository.ErrVersionConflict)

		records, err := store.Ledger.ListByRequest(ctx, org, cr.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "alice", records[0].ApproverID)

		require.NoError(t, store.Changes.ApplyDecision(ctx, first, 2, newRecord(cr, "carol")))
		records, err = store.Ledger.ListByRequest(ctx, org, cr.ID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "carol", records[1].ApproverID)

		stored, err := store.Changes.GetByID(ctx, org, cr.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 3, stored.Version)
		assert.Equal(t, 2, stored.CurrentStep)
		require.NotNil(t, stored.Workflow)
		assert.Equal(t, []string{"cab"}, stored.Workflow.Steps[0].ApproverRoles)
	})

	t.Run("request key is unique per tenant", func(t *testing.T) {
		org := uuid.NewString()
		key := "import-" + uuid.NewString()
		first := newChange(org)
		first.RequestKey = &key
		require.NoError(t, store.Changes.Create(ctx, first))

		second := newChange(org)
		second.RequestKey = &key
		require.ErrorIs(t, store.Changes.Create(ctx, second), repository.ErrDuplicate)

		other := newChange(uuid.NewString())
		other.RequestKey = &key
		require.NoError(t, store.Changes.Create(ctx, other))

		found, err := store.Changes.GetByRequestKey(ctx, org, key)
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)
	})

	t.Run("tenants are isolated", func(t *testing.T) {
		org := uuid.NewString()
		cr := newChange(org)
		require.NoError(t, store.Changes.Create(ctx, cr))

		_, err := store.Changes.GetByID(ctx, uuid.NewString(), cr.ID)
		require.ErrorIs(t, err, repository.ErrNotFound)

		listed, err := store.Changes.List(ctx, org, repository.ChangeFilter{Statuses: []domain.ChangeStatus{domain.ChangeStatusPendingApproval}})
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, cr.ID, listed[0].ID)
	})

	t.Run("settings names are unique per tenant", func(t *testing.T) {
		org := uuid.NewString()
		now := time.Now().UTC().Truncate(time.Millisecond)
		category := &domain.ChangeCategory{ID: uuid.NewString(), OrgID: org, Name: "Security", IsActive: true, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, store.Categories.Create(ctx, category))
		dup := *category
		dup.ID = uuid.NewString()
		require.ErrorIs(t, store.Categories.Create(ctx, &dup), repository.ErrDuplicate)

		wf := &domain.ApprovalWorkflow{
			ID: uuid.NewString(), OrgID: org, Name: "Standard", Priority: 10, IsActive: true,
			Steps:     []domain.ApprovalStep{{StepNumber: 1, Name: "Lead", RequiredApprovers: 1}},
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, store.Workflows.Create(ctx, wf))
		got, err := store.Workflows.GetByID(ctx, org, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, wf.Steps, got.Steps)

		require.NoError(t, store.Workflows.Delete(ctx, org, wf.ID))
		require.ErrorIs(t, store.Workflows.Delete(ctx, org, wf.ID), repository.ErrNotFound)
		require.ErrorIs(t, store.Matrices.Delete(ctx, org, uuid.NewString()), repository.ErrNotFound)
	})
}

func newChange(org string) *domain.ChangeRequest {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.ChangeRequest{
		ID:           uuid.NewString(),
		OrgID:        org,
		ChangeNumber: "CHG-" + uuid.NewString()[:8],
		Title:        "Rotate certificates",
		RequesterID:  "requester",
		RiskLevel:    domain.RiskLevelMedium,
		ImpactLevel:  domain.ImpactLevelMedium,
		Status:       domain.ChangeStatusPendingApproval,
		CurrentStep:  1,
		Workflow: &domain.WorkflowSnapshot{
			Name:  "Standard",
			Steps: []domain.ApprovalStep{{StepNumber: 1, Name: "CAB", RequiredApprovers: 2, ApproverRoles: []string{"cab"}}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newRecord(cr *domain.ChangeRequest, approver string) *domain.ChangeApprovalRecord {
	return &domain.ChangeApprovalRecord{
		ID:              uuid.NewString(),
		OrgID:           cr.OrgID,
		ChangeRequestID: cr.ID,
		StepNumber:      1,
		ApproverID:      approver,
		Decision:        domain.DecisionApproved,
		Source:          domain.DecisionSourceUser,
		CreatedAt:       time.Now().UTC(),
	}
}
