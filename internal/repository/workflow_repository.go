package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/change-service/internal/domain"
)

const workflowColumns = `id, org_id, name, description, trigger_conditions, steps, escalation_rules,
               priority, is_active, is_default, created_at, updated_at`

type workflowRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepository builds the Postgres approval workflow repository.
func NewWorkflowRepository(pool *pgxpool.Pool) WorkflowRepository {
	return &workflowRepository{pool: pool}
}

func (r *workflowRepository) Create(ctx context.Context, wf *domain.ApprovalWorkflow) error {
	const query = `
        INSERT INTO approval_workflows (` + workflowColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	trigger, steps, escalation, err := encodeWorkflow(wf)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query,
		wf.ID,
		wf.OrgID,
		wf.Name,
		wf.Description,
		trigger,
		steps,
		escalation,
		wf.Priority,
		wf.IsActive,
		wf.IsDefault,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	return mapPgError(err)
}

func (r *workflowRepository) Update(ctx context.Context, wf *domain.ApprovalWorkflow) error {
	const query = `
        UPDATE approval_workflows SET name=$1, description=$2, trigger_conditions=$3, steps=$4, escalation_rules=$5,
            priority=$6, is_active=$7, is_default=$8, updated_at=$9
        WHERE org_id=$10 AND id=$11`
	trigger, steps, escalation, err := encodeWorkflow(wf)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, query,
		wf.Name,
		wf.Description,
		trigger,
		steps,
		escalation,
		wf.Priority,
		wf.IsActive,
		wf.IsDefault,
		wf.UpdatedAt,
		wf.OrgID,
		wf.ID,
	)
	if err != nil {
		return mapPgError(err)
	}
	return expectOne(tag)
}

func (r *workflowRepository) Delete(ctx context.Context, orgID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM approval_workflows WHERE org_id=$1 AND id=$2`, orgID, id)
	if err != nil {
		return mapPgError(err)
	}
	return expectOne(tag)
}

func (r *workflowRepository) GetByID(ctx context.Context, orgID, id string) (*domain.ApprovalWorkflow, error) {
	const query = `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE org_id=$1 AND id=$2`
	wf, err := scanWorkflow(r.pool.QueryRow(ctx, query, orgID, id))
	if err != nil {
		return nil, mapPgError(err)
	}
	return wf, nil
}

func (r *workflowRepository) List(ctx context.Context, orgID string) ([]domain.ApprovalWorkflow, error) {
	const query = `SELECT ` + workflowColumns + ` FROM approval_workflows WHERE org_id=$1 ORDER BY priority, name, id`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ApprovalWorkflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *wf)
	}
	return result, rows.Err()
}

func encodeWorkflow(wf *domain.ApprovalWorkflow) (trigger, steps, escalation []byte, err error) {
	if trigger, err = jsonb(wf.TriggerConditions); err != nil {
		return nil, nil, nil, err
	}
	if steps, err = jsonb(wf.Steps); err != nil {
		return nil, nil, nil, err
	}
	if escalation, err = jsonb(wf.EscalationRules); err != nil {
		return nil, nil, nil, err
	}
	return trigger, steps, escalation, nil
}

func scanWorkflow(row pgx.Row) (*domain.ApprovalWorkflow, error) {
	var (
		wf         domain.ApprovalWorkflow
		trigger    []byte
		steps      []byte
		escalation []byte
	)
	if err := row.Scan(
		&wf.ID,
		&wf.OrgID,
		&wf.Name,
		&wf.Description,
		&trigger,
		&steps,
		&escalation,
		&wf.Priority,
		&wf.IsActive,
		&wf.IsDefault,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := fromJSONB(trigger, &wf.TriggerConditions); err != nil {
		return nil, err
	}
	if err := fromJSONB(steps, &wf.Steps); err != nil {
		return nil, err
	}
	if err := fromJSONB(escalation, &wf.EscalationRules); err != nil {
		return nil, err
	}
	return &wf, nil
}
