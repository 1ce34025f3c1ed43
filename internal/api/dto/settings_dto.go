package dto

import (
	"time"

	"github.com/spec-kit/change-service/internal/domain"
)

// RiskMatrixRequest creates or replaces a risk matrix.
type RiskMatrixRequest struct {
	Name              string                   `json:"name" validate:"required,max=255"`
	Description       string                   `json:"description"`
	Levels            []domain.RiskLevelConfig `json:"levels" validate:"required,min=1,dive"`
	ImpactCategories  []domain.ImpactCategory  `json:"impactCategories" validate:"dive"`
	CalculationMethod domain.CalculationMethod `json:"calculationMethod" validate:"omitempty,oneof=weighted_average highest_impact custom"`
	CustomFormula     string                   `json:"customFormula"`
	IsDefault         bool                     `json:"isDefault"`
	IsActive          *bool                    `json:"isActive"`
}

// Matrix converts the payload.
func (r RiskMatrixRequest) Matrix() *domain.RiskMatrix {
	return &domain.RiskMatrix{
		Name:              r.Name,
		Description:       r.Description,
		Levels:            r.Levels,
		ImpactCategories:  r.ImpactCategories,
		CalculationMethod: r.CalculationMethod,
		CustomFormula:     r.CustomFormula,
		IsDefault:         r.IsDefault,
		IsActive:          activeOrDefault(r.IsActive),
	}
}

// RiskMatrixResponse represents a risk matrix.
type RiskMatrixResponse struct {
	ID                string                   `json:"id"`
	Name              string                   `json:"name"`
	Description       string                   `json:"description"`
	Levels            []domain.RiskLevelConfig `json:"levels"`
	ImpactCategories  []domain.ImpactCategory  `json:"impactCategories"`
	CalculationMethod domain.CalculationMethod `json:"calculationMethod"`
	CustomFormula     string                   `json:"customFormula,omitempty"`
	IsDefault         bool                     `json:"isDefault"`
	IsActive          bool                     `json:"isActive"`
	CreatedAt         time.Time                `json:"createdAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
}

// NewRiskMatrixResponse maps a matrix.
func NewRiskMatrixResponse(m *domain.RiskMatrix) RiskMatrixResponse {
	return RiskMatrixResponse{
		ID:                m.ID,
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

// CategoryRequest creates or replaces a change category.
type CategoryRequest struct {
	Name                     string                    `json:"name" validate:"required,max=255"`
	Description              string                    `json:"description"`
	Color                    string                    `json:"color" validate:"omitempty,max=32"`
	Icon                     string                    `json:"icon" validate:"omitempty,max=64"`
	DefaultRiskLevel         domain.RiskLevel          `json:"defaultRiskLevel" validate:"omitempty,oneof=low medium high critical"`
	DefaultImpactLevel       domain.ImpactLevel        `json:"defaultImpactLevel" validate:"omitempty,oneof=low medium high critical"`
	RequiresApproval         bool                      `json:"requiresApproval"`
	RequiresTesting          bool                      `json:"requiresTesting"`
	RequiresRollbackPlan     bool                      `json:"requiresRollbackPlan"`
	RequiresDocumentation    bool                      `json:"requiresDocumentation"`
	DefaultMaintenanceWindow domain.MaintenanceWindow  `json:"defaultMaintenanceWindow"`
	ApprovalWorkflowID       *string                   `json:"approvalWorkflowId"`
	Notifications            domain.NotificationPolicy `json:"notifications"`
	SortOrder                int                       `json:"sortOrder"`
	IsActive                 *bool                     `json:"isActive"`
}

// Category converts the payload.
func (r CategoryRequest) Category() *domain.ChangeCategory {
	return &domain.ChangeCategory{
		Name:                     r.Name,
		Description:              r.Description,
		Color:                    r.Color,
		Icon:                     r.Icon,
		DefaultRiskLevel:         r.DefaultRiskLevel,
		DefaultImpactLevel:       r.DefaultImpactLevel,
		RequiresApproval:         r.RequiresApproval,
		RequiresTesting:          r.RequiresTesting,
		RequiresRollbackPlan:     r.RequiresRollbackPlan,
		RequiresDocumentation:    r.RequiresDocumentation,
		DefaultMaintenanceWindow: r.DefaultMaintenanceWindow,
		ApprovalWorkflowID:       r.ApprovalWorkflowID,
		Notifications:            r.Notifications,
		SortOrder:                r.SortOrder,
		IsActive:                 activeOrDefault(r.IsActive),
	}
}

// CategoryResponse represents a change category.
type CategoryResponse struct {
	ID                       string                    `json:"id"`
	Name                     string                    `json:"name"`
	Description              string                    `json:"description"`
	Color                    string                    `json:"color,omitempty"`
	Icon                     string                    `json:"icon,omitempty"`
	DefaultRiskLevel         domain.RiskLevel          `json:"defaultRiskLevel"`
	DefaultImpactLevel       domain.ImpactLevel        `json:"defaultImpactLevel"`
	RequiresApproval         bool                      `json:"requiresApproval"`
	RequiresTesting          bool                      `json:"requiresTesting"`
	RequiresRollbackPlan     bool                      `json:"requiresRollbackPlan"`
	RequiresDocumentation    bool                      `json:"requiresDocumentation"`
	DefaultMaintenanceWindow domain.MaintenanceWindow  `json:"defaultMaintenanceWindow"`
	ApprovalWorkflowID       *string                   `json:"approvalWorkflowId,omitempty"`
	Notifications            domain.NotificationPolicy `json:"notifications"`
	SortOrder                int                       `json:"sortOrder"`
	IsActive                 bool                      `json:"isActive"`
	CreatedAt                time.Time                 `json:"createdAt"`
	UpdatedAt                time.Time                 `json:"updatedAt"`
}

// NewCategoryResponse maps a category.
func NewCategoryResponse(c *domain.ChangeCategory) CategoryResponse {
	return CategoryResponse{
		ID:                       c.ID,
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

// WorkflowRequest creates or replaces an approval workflow.
type WorkflowRequest struct {
	Name              string                   `json:"name" validate:"required,max=255"`
	Description       string                   `json:"description"`
	TriggerConditions domain.TriggerConditions `json:"triggerConditions"`
	Steps             []domain.ApprovalStep    `json:"steps" validate:"required,min=1,dive"`
	EscalationRules   domain.EscalationRules   `json:"escalationRules"`
	Priority          int                      `json:"priority"`
	IsDefault         bool                     `json:"isDefault"`
	IsActive          *bool                    `json:"isActive"`
}

// Workflow converts the payload.
func (r WorkflowRequest) Workflow() *domain.ApprovalWorkflow {
	return &domain.ApprovalWorkflow{
		Name:              r.Name,
		Description:       r.Description,
		TriggerConditions: r.TriggerConditions,
		Steps:             r.Steps,
		EscalationRules:   r.EscalationRules,
		Priority:          r.Priority,
		IsDefault:         r.IsDefault,
		IsActive:          activeOrDefault(r.IsActive),
	}
}

// WorkflowResponse represents an approval workflow.
type WorkflowResponse struct {
	ID                string                   `json:"id"`
	Name              string                   `json:"name"`
	Description       string                   `json:"description"`
	TriggerConditions domain.TriggerConditions `json:"triggerConditions"`
	Steps             []domain.ApprovalStep    `json:"steps"`
	EscalationRules   domain.EscalationRules   `json:"escalationRules"`
	Priority          int                      `json:"priority"`
	IsDefault         bool                     `json:"isDefault"`
	IsActive          bool                     `json:"isActive"`
	CreatedAt         time.Time                `json:"createdAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
}

// NewWorkflowResponse maps a workflow.
func NewWorkflowResponse(w *domain.ApprovalWorkflow) WorkflowResponse {
	return WorkflowResponse{
		ID:                w.ID,
		Name:              w.Name,
		Description:       w.Description,
		TriggerConditions: w.TriggerConditions,
		Steps:             w.Steps,
		EscalationRules:   w.EscalationRules,
		Priority:          w.Priority,
		IsDefault:         w.IsDefault,
		IsActive:          w.IsActive,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
	}
}

// CreationOptionsResponse is what a client needs to render the create form.
type CreationOptionsResponse struct {
	Categories []CategoryResponse  `json:"categories"`
	Workflows  []WorkflowResponse  `json:"workflows"`
	RiskMatrix *RiskMatrixResponse `json:"riskMatrix"`
}

func activeOrDefault(active *bool) bool {
	if active == nil {
		return true
	}
	return *active
}
