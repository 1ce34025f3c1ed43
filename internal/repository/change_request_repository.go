package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/change-service/internal/domain"
)

const changeRequestColumns = `id, org_id, change_number, request_key, title, description, requester_id, category_id,
               risk_level, impact_level, risk_score, risk_matrix_id, controls, workflow_id, workflow_snapshot,
               requires_approval, is_emergency, status, current_step, submitted_at,
               planned_start_date, planned_end_date, actual_start_date, actual_end_date,
               approved_by, approved_at, rejected_by, rejected_at, rejection_reason,
               escalation_notified_at, version, created_at, updated_at`

type changeRequestRepository struct {
	pool *pgxpool.Pool
}

// NewChangeRequestRepository builds the Postgres change request repository.
func NewChangeRequestRepository(pool *pgxpool.Pool) ChangeRequestRepository {
	return &changeRequestRepository{pool: pool}
}

func (r *changeRequestRepository) Create(ctx context.Context, cr *domain.ChangeRequest) error {
	const query = `
        INSERT INTO change_requests (` + changeRequestColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
                $21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33)`
	controls, err := jsonb(cr.Controls)
	if err != nil {
		return err
	}
	snapshot, err := encodeSnapshot(cr.Workflow)
	if err != nil {
		return err
	}
	cr.Version = 1
	_, err = r.pool.Exec(ctx, query,
		cr.ID,
		cr.OrgID,
		cr.ChangeNumber,
		cr.RequestKey,
		cr.Title,
		cr.Description,
		cr.RequesterID,
		cr.CategoryID,
		cr.RiskLevel,
		cr.ImpactLevel,
		cr.RiskScore,
		cr.RiskMatrixID,
		controls,
		cr.WorkflowID,
		snapshot,
		cr.RequiresApproval,
		cr.IsEmergency,
		cr.Status,
		cr.CurrentStep,
		cr.SubmittedAt,
		cr.PlannedStartDate,
		cr.PlannedEndDate,
		cr.ActualStartDate,
		cr.ActualEndDate,
		cr.ApprovedBy,
		cr.ApprovedAt,
		cr.RejectedBy,
		cr.RejectedAt,
		cr.RejectionReason,
		cr.EscalationNotifiedAt,
		cr.Version,
		cr.CreatedAt,
		cr.UpdatedAt,
	)
	return mapPgError(err)
}

func (r *changeRequestRepository) GetByID(ctx context.Context, orgID, id string) (*domain.ChangeRequest, error) {
	const query = `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE org_id=$1 AND id=$2`
	return scanChangeRequest(r.pool.QueryRow(ctx, query, orgID, id))
}

func (r *changeRequestRepository) GetByRequestKey(ctx context.Context, orgID, key string) (*domain.ChangeRequest, error) {
	const query = `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE org_id=$1 AND request_key=$2`
	return scanChangeRequest(r.pool.QueryRow(ctx, query, orgID, key))
}

func (r *changeRequestRepository) List(ctx context.Context, orgID string, filter ChangeFilter) ([]domain.ChangeRequest, error) {
	filter = filter.Normalize()
	clauses := []string{"org_id=$1"}
	args := []any{orgID}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.RiskLevels) > 0 {
		placeholders := make([]string, len(filter.RiskLevels))
		for i, level := range filter.RiskLevels {
			args = append(args, level)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("risk_level IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		clauses = append(clauses, fmt.Sprintf("category_id=$%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM change_requests WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		changeRequestColumns, strings.Join(clauses, " AND "), filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChangeRequests(rows)
}

func (r *changeRequestRepository) ListAwaitingApproval(ctx context.Context, afterID string, limit int) ([]domain.ChangeRequest, error) {
	const query = `SELECT ` + changeRequestColumns + `
        FROM change_requests WHERE status=$1 AND id > $2 ORDER BY id LIMIT $3`
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, query, domain.ChangeStatusPendingApproval, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChangeRequests(rows)
}

func (r *changeRequestRepository) Update(ctx context.Context, cr *domain.ChangeRequest, expectedVersion int64) error {
	return updateChangeRequest(ctx, r.pool, cr, expectedVersion)
}

func (r *changeRequestRepository) ApplyDecision(ctx context.Context, cr *domain.ChangeRequest, expectedVersion int64, record *domain.ChangeApprovalRecord) error {
	const insertRecord = `
        INSERT INTO change_approval_records (id, org_id, change_request_id, step_number, approver_id, decision, reason, source, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := updateChangeRequest(ctx, tx, cr, expectedVersion); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insertRecord,
			record.ID,
			record.OrgID,
			record.ChangeRequestID,
			record.StepNumber,
			record.ApproverID,
			record.Decision,
			record.Reason,
			record.Source,
			record.CreatedAt,
		)
		return mapPgError(err)
	})
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func updateChangeRequest(ctx context.Context, db execer, cr *domain.ChangeRequest, expectedVersion int64) error {
	const query = `
        UPDATE change_requests SET title=$1, description=$2, status=$3, current_step=$4, submitted_at=$5,
            planned_start_date=$6, planned_end_date=$7, actual_start_date=$8, actual_end_date=$9,
            approved_by=$10, approved_at=$11, rejected_by=$12, rejected_at=$13, rejection_reason=$14,
            escalation_notified_at=$15, version=version+1, updated_at=$16
        WHERE org_id=$17 AND id=$18 AND version=$19`
	tag, err := db.Exec(ctx, query,
		cr.Title,
		cr.Description,
		cr.Status,
		cr.CurrentStep,
		cr.SubmittedAt,
		cr.PlannedStartDate,
		cr.PlannedEndDate,
		cr.ActualStartDate,
		cr.ActualEndDate,
		cr.ApprovedBy,
		cr.ApprovedAt,
		cr.RejectedBy,
		cr.RejectedAt,
		cr.RejectionReason,
		cr.EscalationNotifiedAt,
		cr.UpdatedAt,
		cr.OrgID,
		cr.ID,
		expectedVersion,
	)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	cr.Version = expectedVersion + 1
	return nil
}

func encodeSnapshot(snapshot *domain.WorkflowSnapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, nil
	}
	return jsonb(snapshot)
}

func scanChangeRequest(row pgx.Row) (*domain.ChangeRequest, error) {
	cr, err := scanChangeRequestRow(row)
	if err != nil {
		return nil, mapPgError(err)
	}
	return cr, nil
}

func scanChangeRequests(rows pgx.Rows) ([]domain.ChangeRequest, error) {
	var result []domain.ChangeRequest
	for rows.Next() {
		cr, err := scanChangeRequestRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cr)
	}
	return result, rows.Err()
}

func scanChangeRequestRow(row pgx.Row) (*domain.ChangeRequest, error) {
	var (
		cr       domain.ChangeRequest
		controls []byte
		snapshot []byte
	)
	if err := row.Scan(
		&cr.ID,
		&cr.OrgID,
		&cr.ChangeNumber,
		&cr.RequestKey,
		&cr.Title,
		&cr.Description,
		&cr.RequesterID,
		&cr.CategoryID,
		&cr.RiskLevel,
		&cr.ImpactLevel,
		&cr.RiskScore,
		&cr.RiskMatrixID,
		&controls,
		&cr.WorkflowID,
		&snapshot,
		&cr.RequiresApproval,
		&cr.IsEmergency,
		&cr.Status,
		&cr.CurrentStep,
		&cr.SubmittedAt,
		&cr.PlannedStartDate,
		&cr.PlannedEndDate,
		&cr.ActualStartDate,
		&cr.ActualEndDate,
		&cr.ApprovedBy,
		&cr.ApprovedAt,
		&cr.RejectedBy,
		&cr.RejectedAt,
		&cr.RejectionReason,
		&cr.EscalationNotifiedAt,
		&cr.Version,
		&cr.CreatedAt,
		&cr.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := fromJSONB(controls, &cr.Controls); err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		cr.Workflow = &domain.WorkflowSnapshot{}
		if err := fromJSONB(snapshot, cr.Workflow); err != nil {
			return nil, err
		}
	}
	return &cr, nil
}
