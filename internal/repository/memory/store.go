// Package memory keeps every repository in process memory. It backs the
// service when no database is configured and is the fixture for service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/repository"
)

// Store holds all tenants' data behind a single lock.
type Store struct {
	mu         sync.RWMutex
	changes    map[string]domain.ChangeRequest
	ledger     map[string][]domain.ChangeApprovalRecord
	matrices   map[string]domain.RiskMatrix
	categories map[string]domain.ChangeCategory
	workflows  map[string]domain.ApprovalWorkflow
}

// New returns an empty store.
func New() *Store {
	return &Store{
		changes:    map[string]domain.ChangeRequest{},
		ledger:     map[string][]domain.ChangeApprovalRecord{},
		matrices:   map[string]domain.RiskMatrix{},
		categories: map[string]domain.ChangeCategory{},
		workflows:  map[string]domain.ApprovalWorkflow{},
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Changes:    &changeRepository{s},
		Ledger:     &ledgerRepository{s},
		Matrices:   &matrixRepository{s},
		Categories: &categoryRepository{s},
		Workflows:  &workflowRepository{s},
		Ping:       func(context.Context) error { return nil },
	}
}

type changeRepository struct{ s *Store }

func (r *changeRepository) Create(_ context.Context, cr *domain.ChangeRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.changes[cr.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range r.s.changes {
		if existing.OrgID != cr.OrgID {
			continue
		}
		if existing.ChangeNumber == cr.ChangeNumber {
			return repository.ErrDuplicate
		}
		if cr.RequestKey != nil && existing.RequestKey != nil && *existing.RequestKey == *cr.RequestKey {
			return repository.ErrDuplicate
		}
	}
	cr.Version = 1
	r.s.changes[cr.ID] = cloneChange(*cr)
	return nil
}

func (r *changeRepository) GetByID(_ context.Context, orgID, id string) (*domain.ChangeRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	cr, ok := r.s.changes[id]
	if !ok || cr.OrgID != orgID {
		return nil, repository.ErrNotFound
	}
	out := cloneChange(cr)
	return &out, nil
}

func (r *changeRepository) GetByRequestKey(_ context.Context, orgID, key string) (*domain.ChangeRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, cr := range r.s.changes {
		if cr.OrgID == orgID && cr.RequestKey != nil && *cr.RequestKey == key {
			out := cloneChange(cr)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *changeRepository) List(_ context.Context, orgID string, filter repository.ChangeFilter) ([]domain.ChangeRequest, error) {
	filter = filter.Normalize()
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []domain.ChangeRequest
	for _, cr := range r.s.changes {
		if cr.OrgID != orgID || !matchesFilter(cr, filter) {
			continue
		}
		matched = append(matched, cloneChange(cr))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

func (r *changeRepository) ListAwaitingApproval(_ context.Context, afterID string, limit int) ([]domain.ChangeRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var pending []domain.ChangeRequest
	for _, cr := range r.s.changes {
		if cr.Status == domain.ChangeStatusPendingApproval && cr.ID > afterID {
			pending = append(pending, cloneChange(cr))
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *changeRepository) Update(_ context.Context, cr *domain.ChangeRequest, expectedVersion int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.putChangeLocked(cr, expectedVersion)
}

func (r *changeRepository) ApplyDecision(_ context.Context, cr *domain.ChangeRequest, expectedVersion int64, record *domain.ChangeApprovalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.putChangeLocked(cr, expectedVersion); err != nil {
		return err
	}
	r.s.ledger[cr.ID] = append(r.s.ledger[cr.ID], *record)
	return nil
}

func (s *Store) putChangeLocked(cr *domain.ChangeRequest, expectedVersion int64) error {
	current, ok := s.changes[cr.ID]
	if !ok || current.OrgID != cr.OrgID || current.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	cr.Version = expectedVersion + 1
	s.changes[cr.ID] = cloneChange(*cr)
	return nil
}

type ledgerRepository struct{ s *Store }

func (r *ledgerRepository) ListByRequest(_ context.Context, orgID, changeRequestID string) ([]domain.ChangeApprovalRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.ChangeApprovalRecord
	for _, record := range r.s.ledger[changeRequestID] {
		if record.OrgID == orgID {
			out = append(out, record)
		}
	}
	return out, nil
}

func matchesFilter(cr domain.ChangeRequest, filter repository.ChangeFilter) bool {
	if len(filter.Statuses) > 0 && !contains(filter.Statuses, cr.Status) {
		return false
	}
	if len(filter.RiskLevels) > 0 && !contains(filter.RiskLevels, cr.RiskLevel) {
		return false
	}
	if filter.RequesterID != nil && cr.RequesterID != *filter.RequesterID {
		return false
	}
	if filter.CategoryID != nil && (cr.CategoryID == nil || *cr.CategoryID != *filter.CategoryID) {
		return false
	}
	return true
}

func contains[T comparable](set []T, value T) bool {
	for _, candidate := range set {
		if candidate == value {
			return true
		}
	}
	return false
}

func cloneChange(cr domain.ChangeRequest) domain.ChangeRequest {
	if cr.Workflow != nil {
		snapshot := *cr.Workflow
		snapshot.Steps = domain.CloneSteps(cr.Workflow.Steps)
		snapshot.Escalation.EscalationPath = append([]string(nil), cr.Workflow.Escalation.EscalationPath...)
		cr.Workflow = &snapshot
	}
	return cr
}
