package domain

import "time"

// ChangeStatus enumerates lifecycle states for change requests.
type ChangeStatus string

const (
	ChangeStatusDraft           ChangeStatus = "draft"
	ChangeStatusPendingApproval ChangeStatus = "pending_approval"
	ChangeStatusApproved        ChangeStatus = "approved"
	ChangeStatusRejected        ChangeStatus = "rejected"
	ChangeStatusInProgress      ChangeStatus = "in_progress"
	ChangeStatusCompleted       ChangeStatus = "completed"
)

// Terminal reports whether no further transition is allowed.
func (s ChangeStatus) Terminal() bool {
	return s == ChangeStatusRejected || s == ChangeStatusCompleted
}

// ChangeRequest is the aggregate for proposed operational changes.
type ChangeRequest struct {
	ID           string
	OrgID        string
	ChangeNumber string
	RequestKey   *string
	Title        string
	Description  string
	RequesterID  string
	CategoryID   *string

	RiskLevel    RiskLevel
	ImpactLevel  ImpactLevel
	RiskScore    float64
	RiskMatrixID *string
	Controls     RequiredControls

	WorkflowID       *string
	Workflow         *WorkflowSnapshot
	RequiresApproval bool
	IsEmergency      bool

	Status      ChangeStatus
	CurrentStep int
	SubmittedAt *time.Time

	PlannedStartDate *time.Time
	PlannedEndDate   *time.Time
	ActualStartDate  *time.Time
	ActualEndDate    *time.Time

	ApprovedBy      *string
	ApprovedAt      *time.Time
	RejectedBy      *string
	RejectedAt      *time.Time
	RejectionReason *string

	EscalationNotifiedAt *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Steps returns the snapshotted steps, or nil when the request carries no workflow.
func (c *ChangeRequest) Steps() []ApprovalStep {
	if c == nil || c.Workflow == nil {
		return nil
	}
	return c.Workflow.Steps
}
