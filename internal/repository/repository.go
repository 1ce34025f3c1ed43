package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/change-service/internal/domain"
)

// Sentinel errors shared by every store implementation.
var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record version changed")
	ErrDuplicate       = errors.New("record already exists")
)

// ChangeFilter narrows change request listings within a tenant.
type ChangeFilter struct {
	Statuses    []domain.ChangeStatus
	RiskLevels  []domain.RiskLevel
	RequesterID *string
	CategoryID  *string
	Limit       int
	Offset      int
}

// Normalize applies default paging.
func (f ChangeFilter) Normalize() ChangeFilter {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// ChangeRequestRepository persists change requests. Writes after creation are
// guarded by the request version; a stale expected version yields ErrVersionConflict.
type ChangeRequestRepository interface {
	// Create stores a new request at version 1. A reused (org, request key) or
	// (org, change number) yields ErrDuplicate.
	Create(ctx context.Context, request *domain.ChangeRequest) error
	GetByID(ctx context.Context, orgID, id string) (*domain.ChangeRequest, error)
	GetByRequestKey(ctx context.Context, orgID, key string) (*domain.ChangeRequest, error)
	List(ctx context.Context, orgID string, filter ChangeFilter) ([]domain.ChangeRequest, error)
	// ListAwaitingApproval pages pending requests across tenants in id order for the escalation sweep.
	ListAwaitingApproval(ctx context.Context, afterID string, limit int) ([]domain.ChangeRequest, error)
	Update(ctx context.Context, request *domain.ChangeRequest, expectedVersion int64) error
	// ApplyDecision appends record to the ledger and stores request in one atomic step.
	ApplyDecision(ctx context.Context, request *domain.ChangeRequest, expectedVersion int64, record *domain.ChangeApprovalRecord) error
}

// ApprovalLedgerRepository reads the append-only approval ledger. Records are
// returned in the order they were appended.
type ApprovalLedgerRepository interface {
	ListByRequest(ctx context.Context, orgID, changeRequestID string) ([]domain.ChangeApprovalRecord, error)
}

// RiskMatrixRepository stores tenant risk matrices.
type RiskMatrixRepository interface {
	Create(ctx context.Context, matrix *domain.RiskMatrix) error
	Update(ctx context.Context, matrix *domain.RiskMatrix) error
	Delete(ctx context.Context, orgID, id string) error
	GetByID(ctx context.Context, orgID, id string) (*domain.RiskMatrix, error)
	// List returns matrices oldest first.
	List(ctx context.Context, orgID string) ([]domain.RiskMatrix, error)
}

// CategoryRepository stores tenant change categories.
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.ChangeCategory) error
	Update(ctx context.Context, category *domain.ChangeCategory) error
	Delete(ctx context.Context, orgID, id string) error
	GetByID(ctx context.Context, orgID, id string) (*domain.ChangeCategory, error)
	// List returns categories by sort order, then name.
	List(ctx context.Context, orgID string) ([]domain.ChangeCategory, error)
}

// WorkflowRepository stores tenant approval workflows.
type WorkflowRepository interface {
	Create(ctx context.Context, workflow *domain.ApprovalWorkflow) error
	Update(ctx context.Context, workflow *domain.ApprovalWorkflow) error
	Delete(ctx context.Context, orgID, id string) error
	GetByID(ctx context.Context, orgID, id string) (*domain.ApprovalWorkflow, error)
	// List returns workflows by priority, then name.
	List(ctx context.Context, orgID string) ([]domain.ApprovalWorkflow, error)
}

// Store groups the repositories of one backend.
type Store struct {
	Changes    ChangeRequestRepository
	Ledger     ApprovalLedgerRepository
	Matrices   RiskMatrixRepository
	Categories CategoryRepository
	Workflows  WorkflowRepository
	// Ping checks backend connectivity for health probes.
	Ping func(ctx context.Context) error
}
