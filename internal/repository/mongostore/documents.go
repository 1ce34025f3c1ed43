package mongostore

import (
	"time"

	"github.com/spec-kit/change-service/internal/domain"
)

// changeDocument embeds the approval ledger so a decision is one conditional update.
type changeDocument struct {
	ID               string                   `bson:"_id"`
	OrgID            string                   `bson:"orgId"`
	ChangeNumber     string                   `bson:"changeNumber"`
	RequestKey       *string                  `bson:"requestKey,omitempty"`
	Title            string                   `bson:"title"`
	Description      string                   `bson:"description"`
	RequesterID      string                   `bson:"requesterId"`
	CategoryID       *string                  `bson:"categoryId,omitempty"`
	RiskLevel        domain.RiskLevel         `bson:"riskLevel"`
	ImpactLevel      domain.ImpactLevel       `bson:"impactLevel"`
	RiskScore        float64                  `bson:"riskScore"`
	RiskMatrixID     *string                  `bson:"riskMatrixId,omitempty"`
	Controls         domain.RequiredControls  `bson:"controls"`
	WorkflowID       *string                  `bson:"workflowId,omitempty"`
	Workflow         *domain.WorkflowSnapshot `bson:"workflow,omitempty"`
	RequiresApproval bool                     `bson:"requiresApproval"`
	IsEmergency      bool                     `bson:"isEmergency"`
	Status           domain.ChangeStatus      `bson:"status"`
	CurrentStep      int                      `bson:"currentStep"`
	SubmittedAt      *time.Time               `bson:"submittedAt,omitempty"`

	PlannedStartDate *time.Time `bson:"plannedStartDate,omitempty"`
	PlannedEndDate   *time.Time `bson:"plannedEndDate,omitempty"`
	ActualStartDate  *time.Time `bson:"actualStartDate,omitempty"`
	ActualEndDate    *time.Time `bson:"actualEndDate,omitempty"`

	ApprovedBy           *string    `bson:"approvedBy,omitempty"`
	ApprovedAt           *time.Time `bson:"approvedAt,omitempty"`
	RejectedBy           *string    `bson:"rejectedBy,omitempty"`
	RejectedAt           *time.Time `bson:"rejectedAt,omitempty"`
	RejectionReason      *string    `bson:"rejectionReason,omitempty"`
	EscalationNotifiedAt *time.Time `bson:"escalationNotifiedAt,omitempty"`

	Approvals []approvalDocument `bson:"approvals"`
	Version   int64              `bson:"version"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type approvalDocument struct {
	ID         string                `bson:"id"`
	StepNumber int                   `bson:"stepNumber"`
	ApproverID string                `bson:"approverId"`
	Decision   domain.Decision       `bson:"decision"`
	Reason     *string               `bson:"reason,omitempty"`
	Source     domain.DecisionSource `bson:"source"`
	CreatedAt  time.Time             `bson:"createdAt"`
}

func toChangeDocument(cr *domain.ChangeRequest) changeDocument {
	return changeDocument{
		ID:                   cr.ID,
		OrgID:                cr.OrgID,
		ChangeNumber:         cr.ChangeNumber,
		RequestKey:           cr.RequestKey,
		Title:                cr.Title,
		Description:          cr.Description,
		RequesterID:          cr.RequesterID,
		CategoryID:           cr.CategoryID,
		RiskLevel:            cr.RiskLevel,
		ImpactLevel:          cr.ImpactLevel,
		RiskScore:            cr.RiskScore,
		RiskMatrixID:         cr.RiskMatrixID,
		Controls:             cr.Controls,
		WorkflowID:           cr.WorkflowID,
		Workflow:             cr.Workflow,
		RequiresApproval:     cr.RequiresApproval,
		IsEmergency:          cr.IsEmergency,
		Status:               cr.Status,
		CurrentStep:          cr.CurrentStep,
		SubmittedAt:          cr.SubmittedAt,
		PlannedStartDate:     cr.PlannedStartDate,
		PlannedEndDate:       cr.PlannedEndDate,
		ActualStartDate:      cr.ActualStartDate,
		ActualEndDate:        cr.ActualEndDate,
		ApprovedBy:           cr.ApprovedBy,
		ApprovedAt:           cr.ApprovedAt,
		RejectedBy:           cr.RejectedBy,
		RejectedAt:           cr.RejectedAt,
		RejectionReason:      cr.RejectionReason,
		EscalationNotifiedAt: cr.EscalationNotifiedAt,
		Approvals:            []approvalDocument{},
		Version:              cr.Version,
		CreatedAt:            cr.CreatedAt,
		UpdatedAt:            cr.UpdatedAt,
	}
}

func (d changeDocument) toDomain() domain.ChangeRequest {
	return domain.ChangeRequest{
		ID:                   d.ID,
		OrgID:                d.OrgID,
		ChangeNumber:         d.ChangeNumber,
		RequestKey:           d.RequestKey,
		Title:                d.Title,
		Description:          d.Description,
		RequesterID:          d.RequesterID,
		CategoryID:           d.CategoryID,
		RiskLevel:            d.RiskLevel,
		ImpactLevel:          d.ImpactLevel,
		RiskScore:            d.RiskScore,
		RiskMatrixID:         d.RiskMatrixID,
		Controls:             d.Controls,
		WorkflowID:           d.WorkflowID,
		Workflow:             d.Workflow,
		RequiresApproval:     d.RequiresApproval,
		IsEmergency:          d.IsEmergency,
		Status:               d.Status,
		CurrentStep:          d.CurrentStep,
		SubmittedAt:          d.SubmittedAt,
		PlannedStartDate:     d.PlannedStartDate,
		PlannedEndDate:       d.PlannedEndDate,
		ActualStartDate:      d.ActualStartDate,
		ActualEndDate:        d.ActualEndDate,
		ApprovedBy:           d.ApprovedBy,
		ApprovedAt:           d.ApprovedAt,
		RejectedBy:           d.RejectedBy,
		RejectedAt:           d.RejectedAt,
		RejectionReason:      d.RejectionReason,
		EscalationNotifiedAt: d.EscalationNotifiedAt,
		Version:              d.Version,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

func toApprovalDocument(record *domain.ChangeApprovalRecord) approvalDocument {
	return approvalDocument{
		ID:         record.ID,
		StepNumber: record.StepNumber,
		ApproverID: record.ApproverID,
		Decision:   record.Decision,
		Reason:     record.Reason,
		Source:     record.Source,
		CreatedAt:  record.CreatedAt,
	}
}

func (d approvalDocument) toDomain(orgID, changeRequestID string) domain.ChangeApprovalRecord {
	return domain.ChangeApprovalRecord{
		ID:              d.ID,
		OrgID:           orgID,
		ChangeRequestID: changeRequestID,
		StepNumber:      d.StepNumber,
		ApproverID:      d.ApproverID,
		Decision:        d.Decision,
		Reason:          d.Reason,
		Source:          d.Source,
		CreatedAt:       d.CreatedAt,
	}
}

type matrixDocument struct {
	ID                string                   `bson:"_id"`
	OrgID             string                   `bson:"orgId"`
	Name              string                   `bson:"name"`
	Description       string                   `bson:"description"`
	Levels            []domain.RiskLevelConfig `bson:"levels"`
	ImpactCategories  []domain.ImpactCategory  `bson:"impactCategories"`
	CalculationMethod domain.CalculationMethod `bson:"calculationMethod"`
	CustomFormula     string                   `bson:"customFormula,omitempty"`
	IsDefault         bool                     `bson:"isDefault"`
	IsActive          bool                     `bson:"isActive"`
	CreatedAt         time.Time                `bson:"createdAt"`
	UpdatedAt         time.Time                `bson:"updatedAt"`
}

func toMatrixDocument(m *domain.RiskMatrix) matrixDocument {
	return matrixDocument{
		ID:                m.ID,
		OrgID:             m.OrgID,
		Name:              m.Name,
		Description:       m.Description,
		Levels:            m.Levels,
		ImpactCategories:  m.ImpactCategories,
		CalculationMethod: m.CalculationMethod,
		CustomFormula:     m.CustomFormula,
		IsDefault:         m.IsDefault,
		IsActive:          m.IsActive,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func (d matrixDocument) toDomain() domain.RiskMatrix {
	return domain.RiskMatrix{
		ID:                d.ID,
		OrgID:             d.OrgID,
		Name:              d.Name,
		Description:       d.Description,
		Levels:            d.Levels,
		ImpactCategories:  d.ImpactCategories,
		CalculationMethod: d.CalculationMethod,
		CustomFormula:     d.CustomFormula,
		IsDefault:         d.IsDefault,
		IsActive:          d.IsActive,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

type categoryDocument struct {
	ID                       string                    `bson:"_id"`
	OrgID                    string                    `bson:"orgId"`
	Name                     string                    `bson:"name"`
	Description              string                    `bson:"description"`
	Color                    string                    `bson:"color"`
	Icon                     string                    `bson:"icon"`
	DefaultRiskLevel         domain.RiskLevel          `bson:"defaultRiskLevel"`
	DefaultImpactLevel       domain.ImpactLevel        `bson:"defaultImpactLevel"`
	RequiresApproval         bool                      `bson:"requiresApproval"`
	RequiresTesting          bool                      `bson:"requiresTesting"`
	RequiresRollbackPlan     bool                      `bson:"requiresRollbackPlan"`
	RequiresDocumentation    bool                      `bson:"requiresDocumentation"`
	DefaultMaintenanceWindow domain.MaintenanceWindow  `bson:"defaultMaintenanceWindow"`
	ApprovalWorkflowID       *string                   `bson:"approvalWorkflowId,omitempty"`
	Notifications            domain.NotificationPolicy `bson:"notifications"`
	SortOrder                int                       `bson:"sortOrder"`
	IsActive                 bool                      `bson:"isActive"`
	CreatedAt                time.Time                 `bson:"createdAt"`
	UpdatedAt                time.Time                 `bson:"updatedAt"`
}

func toCategoryDocument(c *domain.ChangeCategory) categoryDocument {
	return categoryDocument{
		ID:                       c.ID,
		OrgID:                    c.OrgID,
		Name:                     c.Name,
		Description:              c.Description,
		Color:                    c.Color,
		Icon:                     c.Icon,
		DefaultRiskLevel:         c.DefaultRiskLevel,
		DefaultImpactLevel:       c.DefaultImpactLevel,
		RequiresApproval:         c.RequiresApproval,
		RequiresTesting:          c.RequiresTesting,
		RequiresRollbackPlan:     c.RequiresRollbackPlan,
		RequiresDocumentation:    c.RequiresDocumentation,
		DefaultMaintenanceWindow: c.DefaultMaintenanceWindow,
		ApprovalWorkflowID:       c.ApprovalWorkflowID,
		Notifications:            c.Notifications,
		SortOrder:                c.SortOrder,
		IsActive:                 c.IsActive,
		CreatedAt:                c.CreatedAt,
		UpdatedAt:                c.UpdatedAt,
	}
}

func (d categoryDocument) toDomain() domain.ChangeCategory {
	return domain.ChangeCategory{
		ID:                       d.ID,
		OrgID:                    d.OrgID,
		Name:                     d.Name,
		Description:              d.Description,
		Color:                    d.Color,
		Icon:                     d.Icon,
		DefaultRiskLevel:         d.DefaultRiskLevel,
		DefaultImpactLevel:       d.DefaultImpactLevel,
		RequiresApproval:         d.RequiresApproval,
		RequiresTesting:          d.RequiresTesting,
		RequiresRollbackPlan:     d.RequiresRollbackPlan,
		RequiresDocumentation:    d.RequiresDocumentation,
		DefaultMaintenanceWindow: d.DefaultMaintenanceWindow,
		ApprovalWorkflowID:       d.ApprovalWorkflowID,
		Notifications:            d.Notifications,
		SortOrder:                d.SortOrder,
		IsActive:                 d.IsActive,
		CreatedAt:                d.CreatedAt,
		UpdatedAt:                d.UpdatedAt,
	}
}

type workflowDocument struct {
	ID                string                   `bson:"_id"`
	OrgID             string                   `bson:"orgId"`
	Name              string                   `bson:"name"`
	Description       string                   `bson:"description"`
	TriggerConditions domain.TriggerConditions `bson:"triggerConditions"`
	Steps             []domain.ApprovalStep    `bson:"steps"`
	EscalationRules   domain.EscalationRules   `bson:"escalationRules"`
	Priority          int                      `bson:"priority"`
	IsActive          bool                     `bson:"isActive"`
	IsDefault         bool                     `bson:"isDefault"`
	CreatedAt         time.Time                `bson:"createdAt"`
	UpdatedAt         time.Time                `bson:"updatedAt"`
}

func toWorkflowDocument(wf *domain.ApprovalWorkflow) workflowDocument {
	return workflowDocument{
		ID:                wf.ID,
		OrgID:             wf.OrgID,
		Name:              wf.Name,
		Description:       wf.Description,
		TriggerConditions: wf.TriggerConditions,
		Steps:             wf.Steps,
		EscalationRules:   wf.EscalationRules,
		Priority:          wf.Priority,
		IsActive:          wf.IsActive,
		IsDefault:         wf.IsDefault,
		CreatedAt:         wf.CreatedAt,
		UpdatedAt:         wf.UpdatedAt,
	}
}

func (d workflowDocument) toDomain() domain.ApprovalWorkflow {
	return domain.ApprovalWorkflow{
		ID:                d.ID,
		OrgID:             d.OrgID,
		Name:              d.Name,
		Description:       d.Description,
		TriggerConditions: d.TriggerConditions,
		Steps:             d.Steps,
		EscalationRules:   d.EscalationRules,
		Priority:          d.Priority,
		IsActive:          d.IsActive,
		IsDefault:         d.IsDefault,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}
