package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/change-service/internal/domain"
)

type approvalLedgerRepository struct {
	pool *pgxpool.Pool
}

// NewApprovalLedgerRepository builds the Postgres ledger reader. Records are
// written only through ChangeRequestRepository.ApplyDecision.
func NewApprovalLedgerRepository(pool *pgxpool.Pool) ApprovalLedgerRepository {
	return &approvalLedgerRepository{pool: pool}
}

func (r *approvalLedgerRepository) ListByRequest(ctx context.Context, orgID, changeRequestID string) ([]domain.ChangeApprovalRecord, error) {
	const query = `
        SELECT id, org_id, change_request_id, step_number, approver_id, decision, reason, source, created_at
        FROM change_approval_records WHERE org_id=$1 AND change_request_id=$2 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, orgID, changeRequestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ChangeApprovalRecord
	for rows.Next() {
		var record domain.ChangeApprovalRecord
		if err := rows.Scan(
			&record.ID,
			&record.OrgID,
			&record.ChangeRequestID,
			&record.StepNumber,
			&record.ApproverID,
			&record.Decision,
			&record.Reason,
			&record.Source,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}
