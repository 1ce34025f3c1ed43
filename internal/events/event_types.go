package events

import (
	"time"

	"github.com/spec-kit/change-service/internal/domain"
)

// EventType enumerates supported event identifiers. Category notification
// policies subscribe by these names.
type EventType string

const (
	EventChangeCreated      EventType = "change_created"
	EventChangeSubmitted    EventType = "change_submitted"
	EventChangeStepAdvanced EventType = "change_step_advanced"
	EventChangeApproved     EventType = "change_approved"
	EventChangeRejected     EventType = "change_rejected"
	EventChangeEscalated    EventType = "change_escalated"
	EventChangeStarted      EventType = "change_started"
	EventChangeCompleted    EventType = "change_completed"
)

// EventTypes lists every published event type.
var EventTypes = []EventType{
	EventChangeCreated,
	EventChangeSubmitted,
	EventChangeStepAdvanced,
	EventChangeApproved,
	EventChangeRejected,
	EventChangeEscalated,
	EventChangeStarted,
	EventChangeCompleted,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID              string    `json:"id"`
	Type            EventType `json:"type"`
	OrgID           string    `json:"org_id"`
	ChangeRequestID string    `json:"change_request_id"`
	ChangeNumber    string    `json:"change_number"`
	CategoryID      *string   `json:"category_id,omitempty"`
	ActorID         string    `json:"actor_id"`
	Timestamp       time.Time `json:"timestamp"`
	Payload         any       `json:"payload,omitempty"`
}

// ChangeCreatedPayload payload.
type ChangeCreatedPayload struct {
	Title       string              `json:"title"`
	Status      domain.ChangeStatus `json:"status"`
	RiskLevel   domain.RiskLevel    `json:"risk_level"`
	RiskScore   float64             `json:"risk_score"`
	WorkflowID  *string             `json:"workflow_id,omitempty"`
	IsEmergency bool                `json:"is_emergency"`
}

// StatusChangedPayload accompanies every lifecycle transition.
type StatusChangedPayload struct {
	OldStatus domain.ChangeStatus `json:"old_status"`
	NewStatus domain.ChangeStatus `json:"new_status"`
	Reason    *string             `json:"reason,omitempty"`
}

// StepAdvancedPayload payload.
type StepAdvancedPayload struct {
	FromStep int                   `json:"from_step"`
	ToStep   int                   `json:"to_step"`
	Source   domain.DecisionSource `json:"source"`
}

// EscalatedPayload names the roles and identities notified for a timed-out step.
type EscalatedPayload struct {
	StepNumber int      `json:"step_number"`
	Roles      []string `json:"roles"`
	Recipients []string `json:"recipients"`
}
