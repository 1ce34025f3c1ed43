package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/events"
	"github.com/spec-kit/change-service/internal/notify"
	"github.com/spec-kit/change-service/internal/observability"
	"github.com/spec-kit/change-service/internal/repository"
	"github.com/spec-kit/change-service/internal/risk"
	"github.com/spec-kit/change-service/internal/sequence"
	"github.com/spec-kit/change-service/internal/workflow"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

// DefaultStepName names the single step synthesised when no workflow matches
// a request that still requires approval.
const DefaultStepName = "Approval"

// ChangeService coordinates the change request lifecycle and approval decisions.
type ChangeService struct {
	changes    repository.ChangeRequestRepository
	ledger     repository.ApprovalLedgerRepository
	settings   *SettingsService
	selector   *workflow.Selector
	sequence   sequence.Generator
	approvers  notify.RoleResolver
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      Clock
}

// ChangeDependencies bundles collaborators for the change service.
type ChangeDependencies struct {
	ChangeRepo repository.ChangeRequestRepository
	LedgerRepo repository.ApprovalLedgerRepository
	Settings   *SettingsService
	Selector   *workflow.Selector
	Sequence   sequence.Generator
	// ApproverResolver, when set, restricts decisions to identities holding
	// one of the current step's approver roles.
	ApproverResolver notify.RoleResolver
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
	Clock            Clock
}

// ChangeCreateInput describes a change request creation payload.
type ChangeCreateInput struct {
	// RequestKey makes creation idempotent: a retried create with the same key
	// returns the request created first.
	RequestKey       *string
	Title            string
	Description      string
	CategoryID       *string
	ImpactScores     map[string]float64
	RiskLevel        *domain.RiskLevel
	ImpactLevel      *domain.ImpactLevel
	IsEmergency      bool
	PlannedStartDate *time.Time
	PlannedEndDate   *time.Time
	Draft            bool
}

// RiskPreview is the outcome of scoring a prospective change.
type RiskPreview struct {
	RiskScore    float64                 `json:"riskScore"`
	RiskLevel    domain.RiskLevel        `json:"riskLevel"`
	Controls     domain.RequiredControls `json:"controls"`
	RiskMatrixID *string                 `json:"riskMatrixId,omitempty"`
	Warnings     []string                `json:"warnings,omitempty"`
}

// ApprovalProgress pairs a request with the state replayed from its ledger.
type ApprovalProgress struct {
	Request *domain.ChangeRequest
	State   workflow.State
	Records []domain.ChangeApprovalRecord
}

// NewChangeService constructs the service.
func NewChangeService(deps ChangeDependencies) *ChangeService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock
	}
	selector := deps.Selector
	if selector == nil {
		selector = workflow.NewSelector(workflow.DefaultBusinessHours())
	}
	return &ChangeService{
		changes:    deps.ChangeRepo,
		ledger:     deps.LedgerRepo,
		settings:   deps.Settings,
		selector:   selector,
		sequence:   deps.Sequence,
		approvers:  deps.ApproverResolver,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		clock:      clock,
	}
}

// Create scores, routes and stores a new change request. The change number is
// minted once, after every check that can fail before the insert, and a retry
// carrying the same RequestKey returns the original request. The number is not
// released when the insert itself fails, so losing a race on the same
// RequestKey or a failed write leaves a gap in the tenant's sequence.
func (s *ChangeService) Create(ctx context.Context, orgID, requesterID string, input ChangeCreateInput) (*domain.ChangeRequest, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	if input.RequestKey != nil {
		existing, err := s.changes.GetByRequestKey(ctx, orgID, *input.RequestKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.MapError(err)
		}
	}

	category, err := s.creationCategory(ctx, orgID, input.CategoryID)
	if err != nil {
		return nil, err
	}
	matrix, err := s.settings.GetRiskMatrixForChangeCreation(ctx, orgID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	fallback := domain.RiskLevelMedium
	impact := domain.ImpactLevelMedium
	requiresApproval := true
	if category != nil {
		fallback = category.DefaultRiskLevel
		impact = category.DefaultImpactLevel
		requiresApproval = category.RequiresApproval
	}
	if input.RiskLevel != nil {
		fallback = *input.RiskLevel
	}
	if input.ImpactLevel != nil {
		impact = *input.ImpactLevel
	}

	assessment, err := risk.Assess(matrix, input.ImpactScores, fallback)
	if err != nil {
		return nil, err
	}
	for _, warning := range assessment.Warnings {
		s.logger.Info("risk assessment degraded", zap.String("org_id", orgID), zap.String("warning", warning))
	}

	now := s.clock.Now()
	cr := &domain.ChangeRequest{
		ID:               uuid.NewString(),
		OrgID:            orgID,
		RequestKey:       input.RequestKey,
		Title:            strings.TrimSpace(input.Title),
		Description:      strings.TrimSpace(input.Description),
		RequesterID:      requesterID,
		CategoryID:       input.CategoryID,
		RiskLevel:        assessment.Level,
		ImpactLevel:      impact,
		RiskScore:        assessment.Score,
		Controls:         withCategoryControls(assessment.Controls, category),
		IsEmergency:      input.IsEmergency,
		PlannedStartDate: input.PlannedStartDate,
		PlannedEndDate:   input.PlannedEndDate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if matrix != nil {
		cr.RiskMatrixID = &matrix.ID
	}

	if err := s.route(ctx, cr, category, requiresApproval, now); err != nil {
		return nil, err
	}

	cr.ChangeNumber, err = s.sequence.Next(ctx, orgID, sequence.Changes)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	if input.Draft {
		cr.Status = domain.ChangeStatusDraft
	} else {
		s.open(cr, now)
	}

	if err := s.changes.Create(ctx, cr); err != nil {
		s.logger.Warn("change number consumed without a stored request",
			zap.String("org_id", orgID),
			zap.String("change_number", cr.ChangeNumber),
			zap.Error(err))
		if errors.Is(err, repository.ErrDuplicate) && input.RequestKey != nil {
			if existing, getErr := s.changes.GetByRequestKey(ctx, orgID, *input.RequestKey); getErr == nil {
				return existing, nil
			}
		}
		return nil, changeError(cr.ID, err)
	}

	s.metrics.ObserveRiskScore(string(cr.RiskLevel), cr.RiskScore)
	s.metrics.RecordTransition(string(domain.ChangeStatusDraft), string(cr.Status))
	s.logger.Info("change request created",
		zap.String("org_id", orgID),
		zap.String("change_request_id", cr.ID),
		zap.String("change_number", cr.ChangeNumber),
		zap.String("status", string(cr.Status)),
		zap.String("risk_level", string(cr.RiskLevel)))
	s.publish(ctx, events.EventChangeCreated, cr, requesterID, events.ChangeCreatedPayload{
		Title:       cr.Title,
		Status:      cr.Status,
		RiskLevel:   cr.RiskLevel,
		RiskScore:   cr.RiskScore,
		WorkflowID:  cr.WorkflowID,
		IsEmergency: cr.IsEmergency,
	})
	if cr.Status == domain.ChangeStatusApproved {
		s.publishStatus(ctx, events.EventChangeApproved, cr, requesterID, domain.ChangeStatusDraft, nil)
	}
	return cr, nil
}

// Submit moves a draft into approval, or straight to approved when no approval is required.
func (s *ChangeService) Submit(ctx context.Context, orgID, actorID, id string) (*domain.ChangeRequest, error) {
	cr, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if cr.Status != domain.ChangeStatusDraft {
		return nil, apperrors.NewInvalidTransition(cr.ID, string(cr.Status), string(domain.ChangeStatusPendingApproval))
	}

	now := s.clock.Now()
	next := *cr
	s.open(&next, now)
	next.UpdatedAt = now
	if err := s.update(ctx, &next, cr.Version, cr.Status); err != nil {
		return nil, err
	}

	s.publishStatus(ctx, events.EventChangeSubmitted, &next, actorID, cr.Status, nil)
	if next.Status == domain.ChangeStatusApproved {
		s.publishStatus(ctx, events.EventChangeApproved, &next, actorID, cr.Status, nil)
	}
	return &next, nil
}

// Approve records approverID's approval of the current step. A repeated
// approval by the same identity on the same step changes nothing and returns
// the request as stored.
func (s *ChangeService) Approve(ctx context.Context, orgID, id, approverID string, reason *string) (*domain.ChangeRequest, error) {
	cr, records, state, err := s.pending(ctx, orgID, id, domain.ChangeStatusApproved)
	if err != nil {
		return nil, err
	}
	current := state.Current()
	if current.HasApprover(approverID) {
		return cr, nil
	}
	if err := s.authorize(ctx, cr, current.Step, approverID); err != nil {
		return nil, err
	}
	return s.decide(ctx, cr, records, domain.ChangeApprovalRecord{
		ID:              uuid.NewString(),
		OrgID:           orgID,
		ChangeRequestID: cr.ID,
		StepNumber:      current.Step.StepNumber,
		ApproverID:      approverID,
		Decision:        domain.DecisionApproved,
		Reason:          trimmed(reason),
		Source:          domain.DecisionSourceUser,
		CreatedAt:       s.clock.Now(),
	})
}

// Reject records a rejection, which ends the request from any non-terminal
// status. While approval is pending the rejection is filed against the
// current step; otherwise it carries step 0.
func (s *ChangeService) Reject(ctx context.Context, orgID, id, rejecterID, reason string) (*domain.ChangeRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("rejection reason required", map[string]any{"change_request_id": id})
	}
	cr, records, state, err := s.rejectable(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	step := 0
	if current := state.Current(); current != nil && cr.Status == domain.ChangeStatusPendingApproval {
		if err := s.authorize(ctx, cr, current.Step, rejecterID); err != nil {
			return nil, err
		}
		step = current.Step.StepNumber
	}
	return s.decide(ctx, cr, records, domain.ChangeApprovalRecord{
		ID:              uuid.NewString(),
		OrgID:           orgID,
		ChangeRequestID: cr.ID,
		StepNumber:      step,
		ApproverID:      rejecterID,
		Decision:        domain.DecisionRejected,
		Reason:          &reason,
		Source:          domain.DecisionSourceUser,
		CreatedAt:       s.clock.Now(),
	})
}

// StartImplementation moves an approved request to in progress.
func (s *ChangeService) StartImplementation(ctx context.Context, orgID, actorID, id string) (*domain.ChangeRequest, error) {
	return s.transition(ctx, orgID, actorID, id, domain.ChangeStatusInProgress, events.EventChangeStarted, func(cr *domain.ChangeRequest, now time.Time) {
		if cr.ActualStartDate == nil {
			cr.ActualStartDate = &now
		}
	})
}

// Complete closes an in-progress request.
func (s *ChangeService) Complete(ctx context.Context, orgID, actorID, id string) (*domain.ChangeRequest, error) {
	return s.transition(ctx, orgID, actorID, id, domain.ChangeStatusCompleted, events.EventChangeCompleted, func(cr *domain.ChangeRequest, now time.Time) {
		cr.ActualEndDate = &now
	})
}

// Get returns one change request of the tenant.
func (s *ChangeService) Get(ctx context.Context, orgID, id string) (*domain.ChangeRequest, error) {
	cr, err := s.changes.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, changeError(id, err)
	}
	return cr, nil
}

// List returns the tenant's change requests, newest first.
func (s *ChangeService) List(ctx context.Context, orgID string, filter repository.ChangeFilter) ([]domain.ChangeRequest, error) {
	items, err := s.changes.List(ctx, orgID, filter.Normalize())
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return items, nil
}

// ListPendingApproval returns the tenant's requests awaiting a decision.
func (s *ChangeService) ListPendingApproval(ctx context.Context, orgID string, limit, offset int) ([]domain.ChangeRequest, error) {
	return s.List(ctx, orgID, repository.ChangeFilter{
		Statuses: []domain.ChangeStatus{domain.ChangeStatusPendingApproval},
		Limit:    limit,
		Offset:   offset,
	})
}

// GetApprovalLedger returns every decision recorded for the request, in order.
func (s *ChangeService) GetApprovalLedger(ctx context.Context, orgID, id string) ([]domain.ChangeApprovalRecord, error) {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return nil, err
	}
	records, err := s.ledger.ListByRequest(ctx, orgID, id)
	if err != nil {
		return nil, changeError(id, err)
	}
	if records == nil {
		records = []domain.ChangeApprovalRecord{}
	}
	return records, nil
}

// GetApprovalProgress replays the ledger and reports per-step progress.
func (s *ChangeService) GetApprovalProgress(ctx context.Context, orgID, id string) (*ApprovalProgress, error) {
	cr, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	records, err := s.ledger.ListByRequest(ctx, orgID, id)
	if err != nil {
		return nil, changeError(id, err)
	}
	return &ApprovalProgress{Request: cr, State: workflow.Replay(cr, records), Records: records}, nil
}

// ComputeRiskPreview scores impact inputs with the tenant's default matrix
// without creating anything.
func (s *ChangeService) ComputeRiskPreview(ctx context.Context, orgID string, categoryID *string, scores map[string]float64) (*RiskPreview, error) {
	if err := risk.ValidateScores(scores); err != nil {
		return nil, err
	}
	category, err := s.creationCategory(ctx, orgID, categoryID)
	if err != nil {
		return nil, err
	}
	matrix, err := s.settings.GetRiskMatrixForChangeCreation(ctx, orgID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	fallback := domain.RiskLevelMedium
	if category != nil {
		fallback = category.DefaultRiskLevel
	}
	assessment, err := risk.Assess(matrix, scores, fallback)
	if err != nil {
		return nil, err
	}
	preview := &RiskPreview{
		RiskScore: assessment.Score,
		RiskLevel: assessment.Level,
		Controls:  withCategoryControls(assessment.Controls, category),
		Warnings:  assessment.Warnings,
	}
	if matrix != nil {
		preview.RiskMatrixID = &matrix.ID
	}
	return preview, nil
}

// creationCategory loads the category a request refers to. Unknown ids fail;
// no id means no category defaults.
func (s *ChangeService) creationCategory(ctx context.Context, orgID string, categoryID *string) (*domain.ChangeCategory, error) {
	if categoryID == nil || *categoryID == "" {
		return nil, nil
	}
	category, err := s.settings.GetCategory(ctx, orgID, *categoryID)
	if err != nil {
		return nil, err
	}
	if !category.IsActive {
		return nil, apperrors.NewValidationError("change category is inactive", map[string]any{"category_id": category.ID})
	}
	return category, nil
}

// route attaches the workflow snapshot. A category's pinned workflow wins,
// then the first matching workflow; otherwise a single default step is
// synthesised when approval is required.
func (s *ChangeService) route(ctx context.Context, cr *domain.ChangeRequest, category *domain.ChangeCategory, requiresApproval bool, now time.Time) error {
	workflows, err := s.settings.GetWorkflowsForChangeCreation(ctx, cr.OrgID)
	if err != nil {
		return apperrors.MapError(err)
	}
	candidate := workflow.Candidate{
		RiskLevel:   cr.RiskLevel,
		ImpactLevel: cr.ImpactLevel,
		IsEmergency: cr.IsEmergency,
	}
	if category != nil {
		candidate.CategoryID = category.ID
		candidate.PinnedWorkflowID = category.ApprovalWorkflowID
	}

	if selected := s.selector.Select(workflows, candidate, now); selected != nil {
		cr.WorkflowID = &selected.ID
		cr.Workflow = selected.Snapshot()
		cr.RequiresApproval = true
		return nil
	}
	cr.RequiresApproval = requiresApproval
	if !requiresApproval {
		return nil
	}
	required := cr.Controls.RequiredApprovers
	if required < 1 {
		required = 1
	}
	cr.Workflow = &domain.WorkflowSnapshot{
		Name: DefaultStepName,
		Steps: []domain.ApprovalStep{{
			StepNumber:        1,
			Name:              DefaultStepName,
			RequiredApprovers: required,
		}},
		Escalation: domain.EscalationRules{TimeoutAction: domain.TimeoutEscalate},
	}
	return nil
}

// open leaves draft: into approval when required, otherwise straight to approved.
func (s *ChangeService) open(cr *domain.ChangeRequest, now time.Time) {
	cr.SubmittedAt = &now
	if !cr.RequiresApproval {
		cr.Status = domain.ChangeStatusApproved
		cr.ApprovedAt = &now
		return
	}
	workflow.Replay(cr, nil).Project(cr)
}

// pending loads a request that must be awaiting approval, together with its
// ledger and replayed state. A stored status that disagrees with the ledger is
// reported as a conflict so the caller re-reads.
func (s *ChangeService) pending(ctx context.Context, orgID, id string, target domain.ChangeStatus) (*domain.ChangeRequest, []domain.ChangeApprovalRecord, workflow.State, error) {
	cr, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, nil, workflow.State{}, err
	}
	if cr.Status != domain.ChangeStatusPendingApproval {
		return nil, nil, workflow.State{}, apperrors.NewInvalidTransition(cr.ID, string(cr.Status), string(target))
	}
	records, err := s.ledger.ListByRequest(ctx, orgID, id)
	if err != nil {
		return nil, nil, workflow.State{}, changeError(id, err)
	}
	state := workflow.Replay(cr, records)
	if state.Status != cr.Status || state.CurrentStep != cr.CurrentStep {
		s.metrics.RecordConflict()
		return nil, nil, workflow.State{}, apperrors.NewConcurrencyConflict(cr.ID, errors.New("stored approval state differs from ledger"))
	}
	if state.Current() == nil {
		return nil, nil, workflow.State{}, apperrors.NewInvalidTransition(cr.ID, string(cr.Status), string(target))
	}
	return cr, records, state, nil
}

// rejectable loads a request that may still be rejected, with its ledger and
// replayed state. Outside pending approval the ledger must agree that the
// request is approved, or be empty for a draft.
func (s *ChangeService) rejectable(ctx context.Context, orgID, id string) (*domain.ChangeRequest, []domain.ChangeApprovalRecord, workflow.State, error) {
	cr, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, nil, workflow.State{}, err
	}
	if cr.Status == domain.ChangeStatusPendingApproval {
		return s.pending(ctx, orgID, id, domain.ChangeStatusRejected)
	}
	if !isValidTransition(cr.Status, domain.ChangeStatusRejected) {
		return nil, nil, workflow.State{}, apperrors.NewInvalidTransition(cr.ID, string(cr.Status), string(domain.ChangeStatusRejected))
	}
	records, err := s.ledger.ListByRequest(ctx, orgID, id)
	if err != nil {
		return nil, nil, workflow.State{}, changeError(id, err)
	}
	state := workflow.Replay(cr, records)
	drifted := len(records) > 0
	if cr.Status != domain.ChangeStatusDraft {
		drifted = state.Status != domain.ChangeStatusApproved
	}
	if drifted {
		s.metrics.RecordConflict()
		return nil, nil, workflow.State{}, apperrors.NewConcurrencyConflict(cr.ID, errors.New("stored approval state differs from ledger"))
	}
	return cr, records, state, nil
}

// decide appends record and stores the state replayed with it, atomically and
// only if the request is still at the version it was read at.
func (s *ChangeService) decide(ctx context.Context, cr *domain.ChangeRequest, records []domain.ChangeApprovalRecord, record domain.ChangeApprovalRecord) (*domain.ChangeRequest, error) {
	all := append(records[:len(records):len(records)], record)
	state := workflow.Replay(cr, all)

	next := *cr
	state.Project(&next)
	next.UpdatedAt = record.CreatedAt
	if next.Status != cr.Status || next.CurrentStep != cr.CurrentStep {
		next.EscalationNotifiedAt = nil
	}

	if err := s.changes.ApplyDecision(ctx, &next, cr.Version, &record); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.RecordConflict()
		}
		return nil, changeError(cr.ID, err)
	}

	s.metrics.RecordDecision(string(record.Decision), string(record.Source))
	s.metrics.RecordTransition(string(cr.Status), string(next.Status))
	s.logger.Info("approval decision recorded",
		zap.String("org_id", cr.OrgID),
		zap.String("change_request_id", cr.ID),
		zap.Int("step", record.StepNumber),
		zap.String("approver_id", record.ApproverID),
		zap.String("decision", string(record.Decision)),
		zap.String("source", string(record.Source)),
		zap.String("status", string(next.Status)))

	switch {
	case next.Status == domain.ChangeStatusRejected:
		s.publishStatus(ctx, events.EventChangeRejected, &next, record.ApproverID, cr.Status, next.RejectionReason)
	case next.Status == domain.ChangeStatusApproved:
		s.publishStatus(ctx, events.EventChangeApproved, &next, record.ApproverID, cr.Status, record.Reason)
	case next.CurrentStep != cr.CurrentStep:
		s.publish(ctx, events.EventChangeStepAdvanced, &next, record.ApproverID, events.StepAdvancedPayload{
			FromStep: cr.CurrentStep,
			ToStep:   next.CurrentStep,
			Source:   record.Source,
		})
	}
	return &next, nil
}

// authorize checks approverID against the step's approver roles when a resolver is configured.
func (s *ChangeService) authorize(ctx context.Context, cr *domain.ChangeRequest, step domain.ApprovalStep, approverID string) error {
	if s.approvers == nil || len(step.ApproverRoles) == 0 || approverID == domain.SystemApproverID {
		return nil
	}
	allowed, err := notify.ResolveAll(ctx, s.approvers, cr.OrgID, step.ApproverRoles)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	for _, id := range allowed {
		if id == approverID {
			return nil
		}
	}
	return apperrors.NewDomainError(apperrors.CodeForbidden, "approver does not hold a role for the current step", http.StatusForbidden, map[string]any{
		"change_request_id": cr.ID,
		"step":              step.StepNumber,
		"approver_roles":    step.ApproverRoles,
	})
}

var allowedTransitions = map[domain.ChangeStatus][]domain.ChangeStatus{
	domain.ChangeStatusDraft:           {domain.ChangeStatusPendingApproval, domain.ChangeStatusApproved, domain.ChangeStatusRejected},
	domain.ChangeStatusPendingApproval: {domain.ChangeStatusApproved, domain.ChangeStatusRejected},
	domain.ChangeStatusApproved:        {domain.ChangeStatusInProgress, domain.ChangeStatusRejected},
	domain.ChangeStatusInProgress:      {domain.ChangeStatusCompleted, domain.ChangeStatusRejected},
	domain.ChangeStatusRejected:        {},
	domain.ChangeStatusCompleted:       {},
}

func isValidTransition(current, next domain.ChangeStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (s *ChangeService) transition(ctx context.Context, orgID, actorID, id string, target domain.ChangeStatus, eventType events.EventType, stamp func(*domain.ChangeRequest, time.Time)) (*domain.ChangeRequest, error) {
	cr, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if !isValidTransition(cr.Status, target) {
		return nil, apperrors.NewInvalidTransition(cr.ID, string(cr.Status), string(target))
	}
	now := s.clock.Now()
	next := *cr
	next.Status = target
	next.UpdatedAt = now
	stamp(&next, now)
	if err := s.update(ctx, &next, cr.Version, cr.Status); err != nil {
		return nil, err
	}
	s.publishStatus(ctx, eventType, &next, actorID, cr.Status, nil)
	return &next, nil
}

func (s *ChangeService) update(ctx context.Context, next *domain.ChangeRequest, expectedVersion int64, from domain.ChangeStatus) error {
	if err := s.changes.Update(ctx, next, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.RecordConflict()
		}
		return changeError(next.ID, err)
	}
	s.metrics.RecordTransition(string(from), string(next.Status))
	return nil
}

func (s *ChangeService) publishStatus(ctx context.Context, eventType events.EventType, cr *domain.ChangeRequest, actorID string, from domain.ChangeStatus, reason *string) {
	s.publish(ctx, eventType, cr, actorID, events.StatusChangedPayload{
		OldStatus: from,
		NewStatus: cr.Status,
		Reason:    reason,
	})
}

func (s *ChangeService) publish(ctx context.Context, eventType events.EventType, cr *domain.ChangeRequest, actorID string, payload any) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:              uuid.NewString(),
		Type:            eventType,
		OrgID:           cr.OrgID,
		ChangeRequestID: cr.ID,
		ChangeNumber:    cr.ChangeNumber,
		CategoryID:      cr.CategoryID,
		ActorID:         actorID,
		Timestamp:       s.clock.Now(),
		Payload:         payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

func validateCreate(input ChangeCreateInput) error {
	problems := map[string]any{}
	if strings.TrimSpace(input.Title) == "" {
		problems["title"] = "required"
	}
	if input.RequestKey != nil && strings.TrimSpace(*input.RequestKey) == "" {
		problems["requestKey"] = "must not be blank"
	}
	if input.RiskLevel != nil && !input.RiskLevel.Valid() {
		problems["riskLevel"] = "unknown risk level"
	}
	if input.ImpactLevel != nil && !input.ImpactLevel.Valid() {
		problems["impactLevel"] = "unknown impact level"
	}
	if input.PlannedStartDate != nil && input.PlannedEndDate != nil && input.PlannedEndDate.Before(*input.PlannedStartDate) {
		problems["plannedEndDate"] = "must not be before plannedStartDate"
	}
	for field, problem := range risk.ScoreProblems(input.ImpactScores) {
		problems[field] = problem
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError("invalid change request", problems)
	}
	return nil
}

func withCategoryControls(controls domain.RequiredControls, category *domain.ChangeCategory) domain.RequiredControls {
	if category == nil {
		return controls
	}
	controls.RollbackRequired = controls.RollbackRequired || category.RequiresRollbackPlan
	controls.TestingRequired = controls.TestingRequired || category.RequiresTesting
	controls.DocumentationRequired = controls.DocumentationRequired || category.RequiresDocumentation
	return controls
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
