package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/change-service/internal/domain"
)

const riskMatrixColumns = `id, org_id, name, description, levels, impact_categories, calculation_method,
               custom_formula, is_default, is_active, created_at, updated_at`

type riskMatrixRepository struct {
	pool *pgxpool.Pool
}

// NewRiskMatrixRepository builds the Postgres risk matrix repository.
func NewRiskMatrixRepository(pool *pgxpool.Pool) RiskMatrixRepository {
	return &riskMatrixRepository{pool: pool}
}

func (r *riskMatrixRepository) Create(ctx context.Context, matrix *domain.RiskMatrix) error {
	const query = `
        INSERT INTO risk_matrices (` + riskMatrixColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	levels, err := jsonb(matrix.Levels)
	if err != nil {
		return err
	}
	categories, err := jsonb(matrix.ImpactCategories)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query,
		matrix.ID,
		matrix.OrgID,
		matrix.Name,
		matrix.Description,
		levels,
		categories,
		matrix.CalculationMethod,
		matrix.CustomFormula,
		matrix.IsDefault,
		matrix.IsActive,
		matrix.CreatedAt,
		matrix.UpdatedAt,
	)
	return mapPgError(err)
}

func (r *riskMatrixRepository) Update(ctx context.Context, matrix *domain.RiskMatrix) error {
	const query = `
        UPDATE risk_matrices SET name=$1, description=$2, levels=$3, impact_categories=$4, calculation_method=$5,
            custom_formula=$6, is_default=$7, is_active=$8, updated_at=$9
        WHERE org_id=$10 AND id=$11`
	levels, err := jsonb(matrix.Levels)
	if err != nil {
		return err
	}
	categories, err := jsonb(matrix.ImpactCategories)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, query,
		matrix.Name,
		matrix.Description,
		levels,
		categories,
		matrix.CalculationMethod,
		matrix.CustomFormula,
		matrix.IsDefault,
		matrix.IsActive,
		matrix.UpdatedAt,
		matrix.OrgID,
		matrix.ID,
	)
	if err != nil {
		return mapPgError(err)
	}
	return expectOne(tag)
}

func (r *riskMatrixRepository) Delete(ctx context.Context, orgID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM risk_matrices WHERE org_id=$1 AND id=$2`, orgID, id)
	if err != nil {
		return mapPgError(err)
	}
	return expectOne(tag)
}

func (r *riskMatrixRepository) GetByID(ctx context.Context, orgID, id string) (*domain.RiskMatrix, error) {
	const query = `SELECT ` + riskMatrixColumns + ` FROM risk_matrices WHERE org_id=$1 AND id=$2`
	matrix, err := scanRiskMatrix(r.pool.QueryRow(ctx, query, orgID, id))
	if err != nil {
		return nil, mapPgError(err)
	}
	return matrix, nil
}

func (r *riskMatrixRepository) List(ctx context.Context, orgID string) ([]domain.RiskMatrix, error) {
	const query = `SELECT ` + riskMatrixColumns + ` FROM risk_matrices WHERE org_id=$1 ORDER BY created_at, id`
	rows, err := r.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RiskMatrix
	for rows.Next() {
		matrix, err := scanRiskMatrix(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *matrix)
	}
	return result, rows.Err()
}

func scanRiskMatrix(row pgx.Row) (*domain.RiskMatrix, error) {
	var (
		matrix     domain.RiskMatrix
		levels     []byte
		categories []byte
	)
	if err := row.Scan(
		&matrix.ID,
		&matrix.OrgID,
		&matrix.Name,
		&matrix.Description,
		&levels,
		&categories,
		&matrix.CalculationMethod,
		&matrix.CustomFormula,
		&matrix.IsDefault,
		&matrix.IsActive,
		&matrix.CreatedAt,
		&matrix.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := fromJSONB(levels, &matrix.Levels); err != nil {
		return nil, err
	}
	if err := fromJSONB(categories, &matrix.ImpactCategories); err != nil {
		return nil, err
	}
	return &matrix, nil
}
