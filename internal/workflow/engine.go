package workflow

import (
	"sort"
	"strconv"
	"time"

	"github.com/spec-kit/change-service/internal/domain"
)

// StepState is the derived progress of one approval step.
type StepState struct {
	Step        domain.ApprovalStep
	Approvers   []string
	Skipped     bool
	Completed   bool
	TimedOut    bool
	ActivatedAt *time.Time
	CompletedAt *time.Time
}

// HasApprover reports whether approverID already approved this step.
func (s StepState) HasApprover(approverID string) bool {
	for _, id := range s.Approvers {
		if id == approverID {
			return true
		}
	}
	return false
}

// Remaining returns how many distinct approvals the step still needs.
func (s StepState) Remaining() int {
	if s.Completed || s.Skipped {
		return 0
	}
	left := required(s.Step) - len(s.Approvers)
	if left < 0 {
		return 0
	}
	return left
}

// State is what the ledger says about a change request's approval.
type State struct {
	Status      domain.ChangeStatus
	CurrentStep int
	Steps       []StepState

	ApprovedBy      *string
	ApprovedAt      *time.Time
	RejectedBy      *string
	RejectedAt      *time.Time
	RejectionReason *string
}

// Current returns the active step, or nil once the request left pending approval.
func (s *State) Current() *StepState {
	if s.Status != domain.ChangeStatusPendingApproval {
		return nil
	}
	for i := range s.Steps {
		if s.Steps[i].Step.StepNumber == s.CurrentStep {
			return &s.Steps[i]
		}
	}
	return nil
}

// TimedOut reports whether the current step has been active for at least its timeout at now.
func (s *State) TimedOut(now time.Time) bool {
	current := s.Current()
	if current == nil || current.ActivatedAt == nil {
		return false
	}
	timeout := current.Step.Timeout()
	if timeout <= 0 {
		return false
	}
	return now.Sub(*current.ActivatedAt) >= timeout
}

// Replay derives the approval state of request from its ledger. Records are
// applied in ledger order. Approvals count only for the current step while
// approval is pending. A rejection ends the request when it names the current
// step or step 0, which is how rejections outside pending approval are filed,
// so a rejection after approval still yields rejected. Records after a
// rejection are ignored, so replaying the same ledger always yields the same
// state.
func Replay(request *domain.ChangeRequest, records []domain.ChangeApprovalRecord) State {
	steps := orderedSteps(request.Steps())
	state := State{
		Status: domain.ChangeStatusPendingApproval,
		Steps:  make([]StepState, len(steps)),
	}
	for i, step := range steps {
		state.Steps[i] = StepState{Step: step}
	}

	start := request.CreatedAt
	if request.SubmittedAt != nil {
		start = *request.SubmittedAt
	}
	idx := state.activate(request, 0, start, nil)

	for _, record := range records {
		if state.Status == domain.ChangeStatusRejected {
			break
		}
		at := record.CreatedAt
		approver := record.ApproverID

		if record.Decision == domain.DecisionRejected {
			if record.StepNumber != 0 && record.StepNumber != state.CurrentStep {
				continue
			}
			state.Status = domain.ChangeStatusRejected
			state.CurrentStep = record.StepNumber
			state.RejectedBy = &approver
			state.RejectedAt = &at
			if record.Reason != nil {
				reason := *record.Reason
				state.RejectionReason = &reason
			}
			break
		}

		if state.Status != domain.ChangeStatusPendingApproval {
			continue
		}
		current := &state.Steps[idx]
		if record.StepNumber != current.Step.StepNumber {
			continue
		}
		if !current.HasApprover(approver) {
			current.Approvers = append(current.Approvers, approver)
		}
		timedOut := record.Source == domain.DecisionSourceTimeout
		if !timedOut && len(current.Approvers) < required(current.Step) {
			continue
		}
		current.Completed = true
		current.TimedOut = timedOut
		current.CompletedAt = &at
		idx = state.activate(request, idx+1, at, &approver)
	}
	return state
}

// Project copies the derived status fields onto request.
func (s State) Project(request *domain.ChangeRequest) {
	request.Status = s.Status
	request.CurrentStep = s.CurrentStep
	request.ApprovedBy = s.ApprovedBy
	request.ApprovedAt = s.ApprovedAt
	request.RejectedBy = s.RejectedBy
	request.RejectedAt = s.RejectedAt
	request.RejectionReason = s.RejectionReason
}

// activate moves to the first non-skipped step at or after from and returns its index.
// When no step remains the request is approved by approver at at.
func (s *State) activate(request *domain.ChangeRequest, from int, at time.Time, approver *string) int {
	for i := from; i < len(s.Steps); i++ {
		step := &s.Steps[i]
		if Skipped(step.Step.Condition, request) {
			step.Skipped = true
			step.Completed = true
			step.ActivatedAt = timePtr(at)
			step.CompletedAt = timePtr(at)
			continue
		}
		step.ActivatedAt = timePtr(at)
		s.CurrentStep = step.Step.StepNumber
		return i
	}
	s.Status = domain.ChangeStatusApproved
	s.CurrentStep = 0
	s.ApprovedAt = timePtr(at)
	if approver != nil {
		id := *approver
		s.ApprovedBy = &id
	}
	return len(s.Steps) - 1
}

// Skipped evaluates a step's skip rule against request. A step is skipped when
// the condition's outcome equals SkipIf. Unknown fields or operators never skip.
func Skipped(cond *domain.StepCondition, request *domain.ChangeRequest) bool {
	if cond == nil {
		return false
	}
	value, ok := conditionField(cond.Field, request)
	if !ok {
		return false
	}
	var outcome bool
	switch cond.Operator {
	case domain.ConditionEquals:
		outcome = len(cond.Values) > 0 && value == cond.Values[0]
	case domain.ConditionNotEquals:
		outcome = len(cond.Values) == 0 || value != cond.Values[0]
	case domain.ConditionIn:
		outcome = contains(cond.Values, value)
	case domain.ConditionNotIn:
		outcome = !contains(cond.Values, value)
	default:
		return false
	}
	return outcome == cond.SkipIf
}

func conditionField(field string, request *domain.ChangeRequest) (string, bool) {
	switch field {
	case domain.ConditionFieldRiskLevel:
		return string(request.RiskLevel), true
	case domain.ConditionFieldImpactLevel:
		return string(request.ImpactLevel), true
	case domain.ConditionFieldCategory:
		if request.CategoryID == nil {
			return "", true
		}
		return *request.CategoryID, true
	case domain.ConditionFieldEmergency:
		return strconv.FormatBool(request.IsEmergency), true
	}
	return "", false
}

func orderedSteps(steps []domain.ApprovalStep) []domain.ApprovalStep {
	out := append([]domain.ApprovalStep(nil), steps...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out
}

func required(step domain.ApprovalStep) int {
	if step.RequiredApprovers < 1 {
		return 1
	}
	return step.RequiredApprovers
}

func timePtr(t time.Time) *time.Time {
	return &t
}
