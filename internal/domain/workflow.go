package domain

import "time"

// TimeoutAction is what the escalation sweep does once a step times out.
type TimeoutAction string

const (
	TimeoutAutoApprove TimeoutAction = "auto_approve"
	TimeoutAutoReject  TimeoutAction = "auto_reject"
	TimeoutEscalate    TimeoutAction = "escalate"
)

// Valid reports whether a is a known action.
func (a TimeoutAction) Valid() bool {
	switch a {
	case TimeoutAutoApprove, TimeoutAutoReject, TimeoutEscalate:
		return true
	}
	return false
}

// TriggerConditions decide whether a workflow applies. Nil or empty fields match anything.
type TriggerConditions struct {
	RiskLevels        []RiskLevel   `json:"riskLevels,omitempty" bson:"riskLevels,omitempty" yaml:"riskLevels"`
	ImpactLevels      []ImpactLevel `json:"impactLevels,omitempty" bson:"impactLevels,omitempty" yaml:"impactLevels"`
	ChangeTypes       []string      `json:"changeTypes,omitempty" bson:"changeTypes,omitempty" yaml:"changeTypes"`
	BusinessHours     *bool         `json:"businessHours,omitempty" bson:"businessHours,omitempty" yaml:"businessHours"`
	EmergencyOverride *bool         `json:"emergencyOverride,omitempty" bson:"emergencyOverride,omitempty" yaml:"emergencyOverride"`
}

// Condition operators for step skip rules.
const (
	ConditionEquals    = "equals"
	ConditionNotEquals = "not_equals"
	ConditionIn        = "in"
	ConditionNotIn     = "not_in"
)

// Condition fields a skip rule may inspect.
const (
	ConditionFieldRiskLevel   = "riskLevel"
	ConditionFieldImpactLevel = "impactLevel"
	ConditionFieldCategory    = "categoryId"
	ConditionFieldEmergency   = "emergency"
)

// StepCondition skips a step when the condition evaluates to SkipIf.
type StepCondition struct {
	Field    string   `json:"field" bson:"field" yaml:"field"`
	Operator string   `json:"operator" bson:"operator" yaml:"operator"`
	Values   []string `json:"values" bson:"values" yaml:"values"`
	SkipIf   bool     `json:"skipIf" bson:"skipIf" yaml:"skipIf"`
}

// ApprovalStep is one stage of a workflow.
type ApprovalStep struct {
	StepNumber        int            `json:"stepNumber" bson:"stepNumber" yaml:"stepNumber"`
	Name              string         `json:"name" bson:"name" yaml:"name"`
	RequiredApprovers int            `json:"requiredApprovers" bson:"requiredApprovers" yaml:"requiredApprovers"`
	ApproverRoles     []string       `json:"approverRoles,omitempty" bson:"approverRoles,omitempty" yaml:"approverRoles"`
	TimeoutHours      *int           `json:"timeoutHours,omitempty" bson:"timeoutHours,omitempty" yaml:"timeoutHours"`
	ParallelApproval  bool           `json:"parallelApproval" bson:"parallelApproval" yaml:"parallelApproval"`
	Condition         *StepCondition `json:"condition,omitempty" bson:"condition,omitempty" yaml:"condition"`
}

// Timeout returns the step timeout, or zero when the step never times out.
func (s ApprovalStep) Timeout() time.Duration {
	if s.TimeoutHours == nil || *s.TimeoutHours <= 0 {
		return 0
	}
	return time.Duration(*s.TimeoutHours) * time.Hour
}

// EscalationRules apply to every step of a workflow.
type EscalationRules struct {
	TimeoutAction              TimeoutAction `json:"timeoutAction" bson:"timeoutAction" yaml:"timeoutAction"`
	EscalationPath             []string      `json:"escalationPath,omitempty" bson:"escalationPath,omitempty" yaml:"escalationPath"`
	NotificationFrequencyHours int           `json:"notificationFrequencyHours" bson:"notificationFrequencyHours" yaml:"notificationFrequencyHours"`
}

// NotificationFrequency returns how often an escalation is repeated; zero means once.
func (e EscalationRules) NotificationFrequency() time.Duration {
	if e.NotificationFrequencyHours <= 0 {
		return 0
	}
	return time.Duration(e.NotificationFrequencyHours) * time.Hour
}

// ApprovalWorkflow routes matching change requests through ordered steps.
// Lower Priority values are evaluated first.
type ApprovalWorkflow struct {
	ID                string
	OrgID             string
	Name              string
	Description       string
	TriggerConditions TriggerConditions
	Steps             []ApprovalStep
	EscalationRules   EscalationRules
	Priority          int
	IsActive          bool
	IsDefault         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// WorkflowSnapshot is the immutable copy of a workflow embedded into a change request.
type WorkflowSnapshot struct {
	WorkflowID string          `json:"workflowId,omitempty" bson:"workflowId,omitempty"`
	Name       string          `json:"name" bson:"name"`
	Steps      []ApprovalStep  `json:"steps" bson:"steps"`
	Escalation EscalationRules `json:"escalation" bson:"escalation"`
}

// Snapshot copies the workflow so later edits never reach in-flight requests.
func (w *ApprovalWorkflow) Snapshot() *WorkflowSnapshot {
	if w == nil {
		return nil
	}
	return &WorkflowSnapshot{
		WorkflowID: w.ID,
		Name:       w.Name,
		Steps:      CloneSteps(w.Steps),
		Escalation: EscalationRules{
			TimeoutAction:              w.EscalationRules.TimeoutAction,
			EscalationPath:             append([]string(nil), w.EscalationRules.EscalationPath...),
			NotificationFrequencyHours: w.EscalationRules.NotificationFrequencyHours,
		},
	}
}

// CloneSteps deep-copies steps including pointer and slice fields.
func CloneSteps(steps []ApprovalStep) []ApprovalStep {
	out := make([]ApprovalStep, len(steps))
	for i, step := range steps {
		cp := step
		cp.ApproverRoles = append([]string(nil), step.ApproverRoles...)
		if step.TimeoutHours != nil {
			hours := *step.TimeoutHours
			cp.TimeoutHours = &hours
		}
		if step.Condition != nil {
			cond := *step.Condition
			cond.Values = append([]string(nil), step.Condition.Values...)
			cp.Condition = &cond
		}
		out[i] = cp
	}
	return out
}
