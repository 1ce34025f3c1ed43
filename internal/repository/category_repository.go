package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/change-service/internal/domain"
)

const categoryColumns = `id, org_id, name, description, color, icon, default_risk_level, default_impact_level,
               requires_approval, requires_testing, requires_rollback_plan, requires_documentation,
               maintenance_window, approval_workflow_id, notifications, sort_order, is_active, created_at, updated_at`

type categoryRepository struct {
	pool *pgxpool.Pool
}

// NewCategoryRepository builds the Postgres change category repository.
func NewCategoryRepository(pool *pgxpool.Pool) CategoryRepository {
	return &categoryRepository{pool: pool}
}

func (r *categoryRepository) Create(ctx context.Context, category *domain.ChangeCategory) error {
	const query = `
        INSERT INTO change_categories (` + categoryColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	window, err := jsonb(category.DefaultMaintenanceWindow)
	if err != nil {
		return err
	}
	notifications, err := jsonb(category.Notifications)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query,
		category.ID,
		category.OrgID,
		category.Name,
		category.Description,
		category.Color,
		category.Icon,
		category.DefaultRiskLevel,
		category.DefaultImpactLevel,
		category.RequiresApproval,
		category.RequiresTesting,
		category.RequiresRollbackPlan,
		category.RequiresDocumentation,
		window,
		category.ApprovalWorkflowID,
		notifications,
		category.SortOrder,
		category.IsActive,
		category.CreatedAt,
		category.UpdatedAt,
	)
	return mapPgError(err)
}

func (r *categoryRepository) Update(ctx context.Context, category *domain.ChangeCategory) error {
	const query = `
        UPDATE change_categories SET name=$1, description=$2, color=$3, icon=$4, default_risk_level=$5,
            default_impact_level=$6, requires_approval=$7, requires_testing=$8, requires_rollback_plan=$9,
            requires_documentation=$10, maintenance_window=$11, approval_workflow_id=$12, notifications=$13,
            sort_order=$14, is_active=$15, updated_at=$16
        WHERE org_id=$17 AND id=$18`
	window, err := jsonb(category.DefaultMaintenanceWindow)
	if err != nil {
		return err
	}
	notifications, err := jsonb(category.Notifications)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, query,
		category.Name,
		category.Description,
		category.Color,
		category.Icon,
		category.DefaultRiskLevel,
		category.DefaultImpactLevel,
		category.RequiresApproval,
		category.RequiresTesting,
		category.RequiresRollbackPlan,
		category.RequiresDocumentation,
		window,
		category.ApprovalWorkflowID,
		notifications,
		category.SortOrder,
		category.IsActive,
		category.UpdatedAt,
		category.OrgID,
		category.ID,
	)
	if err != nil {
		return mapPgError(err)
	}
	return expectOne(tag)
}

func (r *categoryRepository) Delete(ctx context.Context, orgID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM change_categories WHERE org_id=$1 AND id=$2`, orgID, id)
	if err != nil {
		return mapPgError(err)
	}
	return expectOne(tag)
}

func (r *categoryRepository) GetByID(ctx context.Context, orgID, id string) (*domain.ChangeCategory, error) {
	const query = `SELECT ` + categoryColumns + ` FROM change_categories WHERE org_id=$1 AND id=$2`
	category, err := scanCategory(r.pool.QueryRow(ctx, query, orgID, id))
	if err != nil {
		return nil, mapPgError(err)
	}
	return category, nil
}

func (r *categoryRepository) List(ctx context.Context, orgID string) ([]domain.ChangeCategory, error) {
	const query = `SELECT ` + categoryColumns + ` FROM change_categories WHERE org_id=$1 ORDER BY sort_order, name`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChangeCategory
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *category)
	}
	return result, rows.Err()
}

func scanCategory(row pgx.Row) (*domain.ChangeCategory, error) {
	var (
		category      domain.ChangeCategory
		window        []byte
		notifications []byte
	)
	if err := row.Scan(
		&category.ID,
		&category.OrgID,
		&category.Name,
		&category.Description,
		&category.Color,
		&category.Icon,
		&category.DefaultRiskLevel,
		&category.DefaultImpactLevel,
		&category.RequiresApproval,
		&category.RequiresTesting,
		&category.RequiresRollbackPlan,
		&category.RequiresDocumentation,
		&window,
		&category.ApprovalWorkflowID,
		&notifications,
		&category.SortOrder,
		&category.IsActive,
		&category.CreatedAt,
		&category.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := fromJSONB(window, &category.DefaultMaintenanceWindow); err != nil {
		return nil, err
	}
	if err := fromJSONB(notifications, &category.Notifications); err != nil {
		return nil, err
	}
	return &category, nil
}
