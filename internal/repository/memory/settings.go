package memory

import (
	"context"
	"sort"

	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/repository"
)

type matrixRepository struct{ s *Store }

func (r *matrixRepository) Create(_ context.Context, matrix *domain.RiskMatrix) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.matrices[matrix.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range r.s.matrices {
		if existing.OrgID == matrix.OrgID && existing.Name == matrix.Name {
			return repository.ErrDuplicate
		}
	}
	r.s.matrices[matrix.ID] = *matrix
	return nil
}

func (r *matrixRepository) Update(_ context.Context, matrix *domain.RiskMatrix) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.matrices[matrix.ID]
	if !ok || current.OrgID != matrix.OrgID {
		return repository.ErrNotFound
	}
	for id, existing := range r.s.matrices {
		if id != matrix.ID && existing.OrgID == matrix.OrgID && existing.Name == matrix.Name {
			return repository.ErrDuplicate
		}
	}
	r.s.matrices[matrix.ID] = *matrix
	return nil
}

func (r *matrixRepository) Delete(_ context.Context, orgID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.matrices[id]
	if !ok || current.OrgID != orgID {
		return repository.ErrNotFound
	}
	delete(r.s.matrices, id)
	return nil
}

func (r *matrixRepository) GetByID(_ context.Context, orgID, id string) (*domain.RiskMatrix, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	matrix, ok := r.s.matrices[id]
	if !ok || matrix.OrgID != orgID {
		return nil, repository.ErrNotFound
	}
	return &matrix, nil
}

func (r *matrixRepository) List(_ context.Context, orgID string) ([]domain.RiskMatrix, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.RiskMatrix
	for _, matrix := range r.s.matrices {
		if matrix.OrgID == orgID {
			out = append(out, matrix)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type categoryRepository struct{ s *Store }

func (r *categoryRepository) Create(_ context.Context, category *domain.ChangeCategory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[category.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range r.s.categories {
		if existing.OrgID == category.OrgID && existing.Name == category.Name {
			return repository.ErrDuplicate
		}
	}
	r.s.categories[category.ID] = *category
	return nil
}

func (r *categoryRepository) Update(_ context.Context, category *domain.ChangeCategory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.categories[category.ID]
	if !ok || current.OrgID != category.OrgID {
		return repository.ErrNotFound
	}
	for id, existing := range r.s.categories {
		if id != category.ID && existing.OrgID == category.OrgID && existing.Name == category.Name {
			return repository.ErrDuplicate
		}
	}
	r.s.categories[category.ID] = *category
	return nil
}

func (r *categoryRepository) Delete(_ context.Context, orgID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.categories[id]
	if !ok || current.OrgID != orgID {
		return repository.ErrNotFound
	}
	delete(r.s.categories, id)
	return nil
}

func (r *categoryRepository) GetByID(_ context.Context, orgID, id string) (*domain.ChangeCategory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	category, ok := r.s.categories[id]
	if !ok || category.OrgID != orgID {
		return nil, repository.ErrNotFound
	}
	return &category, nil
}

func (r *categoryRepository) List(_ context.Context, orgID string) ([]domain.ChangeCategory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.ChangeCategory
	for _, category := range r.s.categories {
		if category.OrgID == orgID {
			out = append(out, category)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

type workflowRepository struct{ s *Store }

func (r *workflowRepository) Create(_ context.Context, wf *domain.ApprovalWorkflow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.workflows[wf.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range r.s.workflows {
		if existing.OrgID == wf.OrgID && existing.Name == wf.Name {
			return repository.ErrDuplicate
		}
	}
	r.s.workflows[wf.ID] = cloneWorkflow(*wf)
	return nil
}

func (r *workflowRepository) Update(_ context.Context, wf *domain.ApprovalWorkflow) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.workflows[wf.ID]
	if !ok || current.OrgID != wf.OrgID {
		return repository.ErrNotFound
	}
	for id, existing := range r.s.workflows {
		if id != wf.ID && existing.OrgID == wf.OrgID && existing.Name == wf.Name {
			return repository.ErrDuplicate
		}
	}
	r.s.workflows[wf.ID] = cloneWorkflow(*wf)
	return nil
}

func (r *workflowRepository) Delete(_ context.Context, orgID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.workflows[id]
	if !ok || current.OrgID != orgID {
		return repository.ErrNotFound
	}
	delete(r.s.workflows, id)
	return nil
}

func (r *workflowRepository) GetByID(_ context.Context, orgID, id string) (*domain.ApprovalWorkflow, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	wf, ok := r.s.workflows[id]
	if !ok || wf.OrgID != orgID {
		return nil, repository.ErrNotFound
	}
	out := cloneWorkflow(wf)
	return &out, nil
}

func (r *workflowRepository) List(_ context.Context, orgID string) ([]domain.ApprovalWorkflow, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.ApprovalWorkflow
	for _, wf := range r.s.workflows {
		if wf.OrgID == orgID {
			out = append(out, cloneWorkflow(wf))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// cloneWorkflow keeps callers from editing stored steps through shared slices.
func cloneWorkflow(wf domain.ApprovalWorkflow) domain.ApprovalWorkflow {
	wf.Steps = domain.CloneSteps(wf.Steps)
	return wf
}
