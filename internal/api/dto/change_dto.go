package dto

import (
	"time"

	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/service"
	"github.com/spec-kit/change-service/internal/workflow"
)

// CreateChangeRequest payload.
type CreateChangeRequest struct {
	RequestKey       *string             `json:"requestKey" validate:"omitempty,max=128"`
	Title            string              `json:"title" validate:"required,max=255"`
	Description      string              `json:"description"`
	CategoryID       *string             `json:"categoryId"`
	ImpactScores     map[string]float64  `json:"impactScores" validate:"omitempty,dive,keys,required,endkeys,gte=0,lte=100"`
	RiskLevel        *domain.RiskLevel   `json:"riskLevel" validate:"omitempty,oneof=low medium high critical"`
	ImpactLevel      *domain.ImpactLevel `json:"impactLevel" validate:"omitempty,oneof=low medium high critical"`
	IsEmergency      bool                `json:"isEmergency"`
	PlannedStartDate *time.Time          `json:"plannedStartDate"`
	PlannedEndDate   *time.Time          `json:"plannedEndDate"`
	Draft            bool                `json:"draft"`
}

// Input converts the payload for the change service.
func (r CreateChangeRequest) Input() service.ChangeCreateInput {
	return service.ChangeCreateInput{
		RequestKey:       r.RequestKey,
		Title:            r.Title,
		Description:      r.Description,
		CategoryID:       r.CategoryID,
		ImpactScores:     r.ImpactScores,
		RiskLevel:        r.RiskLevel,
		ImpactLevel:      r.ImpactLevel,
		IsEmergency:      r.IsEmergency,
		PlannedStartDate: r.PlannedStartDate,
		PlannedEndDate:   r.PlannedEndDate,
		Draft:            r.Draft,
	}
}

// DecisionRequest is the body of approve and reject calls.
type DecisionRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=2000"`
}

// RiskPreviewRequest payload.
type RiskPreviewRequest struct {
	CategoryID   *string            `json:"categoryId"`
	ImpactScores map[string]float64 `json:"impactScores" validate:"omitempty,dive,keys,required,endkeys,gte=0,lte=100"`
}

// ChangeResponse represents a change request.
type ChangeResponse struct {
	ID               string                   `json:"id"`
	ChangeNumber     string                   `json:"changeNumber"`
	RequestKey       *string                  `json:"requestKey,omitempty"`
	Title            string                   `json:"title"`
	Description      string                   `json:"description"`
	RequesterID      string                   `json:"requesterId"`
	CategoryID       *string                  `json:"categoryId,omitempty"`
	RiskLevel        domain.RiskLevel         `json:"riskLevel"`
	ImpactLevel      domain.ImpactLevel       `json:"impactLevel"`
	RiskScore        float64                  `json:"riskScore"`
	RiskMatrixID     *string                  `json:"riskMatrixId,omitempty"`
	Controls         domain.RequiredControls  `json:"controls"`
	RequiresApproval bool                     `json:"requiresApproval"`
	IsEmergency      bool                     `json:"isEmergency"`
	WorkflowID       *string                  `json:"workflowId,omitempty"`
	Workflow         *domain.WorkflowSnapshot `json:"workflow,omitempty"`
	Status           domain.ChangeStatus      `json:"status"`
	CurrentStep      int                      `json:"currentStep"`
	SubmittedAt      *time.Time               `json:"submittedAt,omitempty"`
	PlannedStartDate *time.Time               `json:"plannedStartDate,omitempty"`
	PlannedEndDate   *time.Time               `json:"plannedEndDate,omitempty"`
	ActualStartDate  *time.Time               `json:"actualStartDate,omitempty"`
	ActualEndDate    *time.Time               `json:"actualEndDate,omitempty"`
	ApprovedBy       *string                  `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time               `json:"approvedAt,omitempty"`
	RejectedBy       *string                  `json:"rejectedBy,omitempty"`
	RejectedAt       *time.Time               `json:"rejectedAt,omitempty"`
	RejectionReason  *string                  `json:"rejectionReason,omitempty"`
	Version          int64                    `json:"version"`
	CreatedAt        time.Time                `json:"createdAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
}

// NewChangeResponse maps a change request.
func NewChangeResponse(cr *domain.ChangeRequest) ChangeResponse {
	return ChangeResponse{
		ID:               cr.ID,
		ChangeNumber:     cr.ChangeNumber,
		RequestKey:       cr.RequestKey,
		Title:            cr.Title,
		Description:      cr.Description,
		RequesterID:      cr.RequesterID,
		CategoryID:       cr.CategoryID,
		RiskLevel:        cr.RiskLevel,
		ImpactLevel:      cr.ImpactLevel,
		RiskScore:        cr.RiskScore,
		RiskMatrixID:     cr.RiskMatrixID,
		Controls:         cr.Controls,
		RequiresApproval: cr.RequiresApproval,
		IsEmergency:      cr.IsEmergency,
		WorkflowID:       cr.WorkflowID,
		Workflow:         cr.Workflow,
		Status:           cr.Status,
		CurrentStep:      cr.CurrentStep,
		SubmittedAt:      cr.SubmittedAt,
		PlannedStartDate: cr.PlannedStartDate,
		PlannedEndDate:   cr.PlannedEndDate,
		ActualStartDate:  cr.ActualStartDate,
		ActualEndDate:    cr.ActualEndDate,
		ApprovedBy:       cr.ApprovedBy,
		ApprovedAt:       cr.ApprovedAt,
		RejectedBy:       cr.RejectedBy,
		RejectedAt:       cr.RejectedAt,
		RejectionReason:  cr.RejectionReason,
		Version:          cr.Version,
		CreatedAt:        cr.CreatedAt,
		UpdatedAt:        cr.UpdatedAt,
	}
}

// NewChangeResponses maps a page of change requests.
func NewChangeResponses(items []domain.ChangeRequest) []ChangeResponse {
	out := make([]ChangeResponse, 0, len(items))
	for i := range items {
		out = append(out, NewChangeResponse(&items[i]))
	}
	return out
}

// ApprovalRecordResponse is one ledger entry.
type ApprovalRecordResponse struct {
	ID         string                `json:"id"`
	StepNumber int                   `json:"stepNumber"`
	ApproverID string                `json:"approverId"`
	Decision   domain.Decision       `json:"decision"`
	Reason     *string               `json:"reason,omitempty"`
	Source     domain.DecisionSource `json:"source"`
	CreatedAt  time.Time             `json:"createdAt"`
}

// NewLedgerResponse maps ledger records in append order.
func NewLedgerResponse(records []domain.ChangeApprovalRecord) []ApprovalRecordResponse {
	out := make([]ApprovalRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, ApprovalRecordResponse{
			ID:         r.ID,
			StepNumber: r.StepNumber,
			ApproverID: r.ApproverID,
			Decision:   r.Decision,
			Reason:     r.Reason,
			Source:     r.Source,
			CreatedAt:  r.CreatedAt,
		})
	}
	return out
}

// StepProgressResponse reports one step of the approval workflow.
type StepProgressResponse struct {
	StepNumber        int        `json:"stepNumber"`
	Name              string     `json:"name"`
	RequiredApprovers int        `json:"requiredApprovers"`
	ApproverRoles     []string   `json:"approverRoles,omitempty"`
	Approvers         []string   `json:"approvers"`
	Remaining         int        `json:"remaining"`
	Skipped           bool       `json:"skipped"`
	Completed         bool       `json:"completed"`
	TimedOut          bool       `json:"timedOut"`
	Current           bool       `json:"current"`
	ActivatedAt       *time.Time `json:"activatedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	DueAt             *time.Time `json:"dueAt,omitempty"`
}

// ApprovalProgressResponse is the replayed approval state of a request.
type ApprovalProgressResponse struct {
	Request ChangeResponse           `json:"request"`
	Steps   []StepProgressResponse   `json:"steps"`
	Ledger  []ApprovalRecordResponse `json:"ledger"`
}

// NewApprovalProgressResponse maps replayed approval state.
func NewApprovalProgressResponse(progress *service.ApprovalProgress) ApprovalProgressResponse {
	current := progress.State.Current()
	steps := make([]StepProgressResponse, 0, len(progress.State.Steps))
	for _, s := range progress.State.Steps {
		steps = append(steps, stepProgress(s, current))
	}
	return ApprovalProgressResponse{
		Request: NewChangeResponse(progress.Request),
		Steps:   steps,
		Ledger:  NewLedgerResponse(progress.Records),
	}
}

func stepProgress(s workflow.StepState, current *workflow.StepState) StepProgressResponse {
	approvers := s.Approvers
	if approvers == nil {
		approvers = []string{}
	}
	out := StepProgressResponse{
		StepNumber:        s.Step.StepNumber,
		Name:              s.Step.Name,
		RequiredApprovers: s.Step.RequiredApprovers,
		ApproverRoles:     s.Step.ApproverRoles,
		Approvers:         approvers,
		Remaining:         s.Remaining(),
		Skipped:           s.Skipped,
		Completed:         s.Completed,
		TimedOut:          s.TimedOut,
		Current:           current != nil && current.Step.StepNumber == s.Step.StepNumber,
		ActivatedAt:       s.ActivatedAt,
		CompletedAt:       s.CompletedAt,
	}
	if out.Current && s.ActivatedAt != nil {
		if timeout := s.Step.Timeout(); timeout > 0 {
			due := s.ActivatedAt.Add(timeout)
			out.DueAt = &due
		}
	}
	return out
}
