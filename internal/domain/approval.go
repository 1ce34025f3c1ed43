package domain

import "time"

// Decision is the outcome recorded by an approver.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// DecisionSource tells user decisions apart from ones synthesized by the escalation sweep.
type DecisionSource string

const (
	DecisionSourceUser    DecisionSource = "user"
	DecisionSourceTimeout DecisionSource = "timeout"
)

// SystemApproverID identifies decisions taken by the escalation sweep.
const SystemApproverID = "system:escalation"

// ChangeApprovalRecord is an immutable ledger entry.
type ChangeApprovalRecord struct {
	ID              string
	OrgID           string
	ChangeRequestID string
	StepNumber      int
	ApproverID      string
	Decision        Decision
	Reason          *string
	Source          DecisionSource
	CreatedAt       time.Time
}
