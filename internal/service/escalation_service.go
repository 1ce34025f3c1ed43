package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/events"
	"github.com/spec-kit/change-service/internal/notify"
	"github.com/spec-kit/change-service/internal/observability"
	"github.com/spec-kit/change-service/internal/repository"
	"github.com/spec-kit/change-service/internal/workflow"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

const timeoutReason = "approval step timed out"

// SweepResult summarises one escalation sweep.
type SweepResult struct {
	Scanned      int `json:"scanned"`
	AutoApproved int `json:"autoApproved"`
	AutoRejected int `json:"autoRejected"`
	Escalated    int `json:"escalated"`
	Failed       int `json:"failed"`
}

// EscalationService applies workflow timeout rules to requests stuck in approval.
type EscalationService struct {
	changes   *ChangeService
	repo      repository.ChangeRequestRepository
	resolver  notify.RoleResolver
	metrics   *observability.Metrics
	logger    *zap.Logger
	batchSize int
}

// EscalationDependencies bundles collaborators for the escalation service.
type EscalationDependencies struct {
	Changes      *ChangeService
	ChangeRepo   repository.ChangeRequestRepository
	RoleResolver notify.RoleResolver
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	BatchSize    int
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &EscalationService{
		changes:   deps.Changes,
		repo:      deps.ChangeRepo,
		resolver:  deps.RoleResolver,
		metrics:   deps.Metrics,
		logger:    logger,
		batchSize: batch,
	}
}

// Sweep visits every pending request across tenants and applies the timeout
// action of any step that has been current for at least its timeout. Running
// it again before anything changes is a no-op.
func (e *EscalationService) Sweep(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	defer func() { e.metrics.ObserveSweep(time.Since(started)) }()

	var result SweepResult
	after := ""
	for {
		batch, err := e.repo.ListAwaitingApproval(ctx, after, e.batchSize)
		if err != nil {
			return result, apperrors.MapError(err)
		}
		for _, cr := range batch {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Scanned++
			var action domain.TimeoutAction
			err := RetryOnConflict(ctx, DefaultConflictRetries, func() error {
				var applyErr error
				action, applyErr = e.ApplyTimeout(ctx, cr.OrgID, cr.ID)
				return applyErr
			})
			if err != nil {
				result.Failed++
				e.logger.Warn("timeout handling failed",
					zap.String("org_id", cr.OrgID),
					zap.String("change_request_id", cr.ID),
					zap.Error(err))
				continue
			}
			switch action {
			case domain.TimeoutAutoApprove:
				result.AutoApproved++
			case domain.TimeoutAutoReject:
				result.AutoRejected++
			case domain.TimeoutEscalate:
				result.Escalated++
			}
		}
		if len(batch) < e.batchSize {
			break
		}
		after = batch[len(batch)-1].ID
	}
	if result.AutoApproved+result.AutoRejected+result.Escalated+result.Failed > 0 {
		e.logger.Info("escalation sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("auto_approved", result.AutoApproved),
			zap.Int("auto_rejected", result.AutoRejected),
			zap.Int("escalated", result.Escalated),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

// ApplyTimeout handles one request and returns the action taken, or "" when
// nothing was due.
func (e *EscalationService) ApplyTimeout(ctx context.Context, orgID, id string) (domain.TimeoutAction, error) {
	s := e.changes
	cr, records, state, err := s.pending(ctx, orgID, id, domain.ChangeStatusApproved)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeInvalidTransition) || apperrors.IsCode(err, apperrors.CodeNotFound) {
			return "", nil
		}
		return "", err
	}
	now := s.clock.Now()
	if !state.TimedOut(now) || cr.Workflow == nil {
		return "", nil
	}
	current := state.Current()
	rules := cr.Workflow.Escalation
	action := rules.TimeoutAction
	if !action.Valid() {
		action = domain.TimeoutEscalate
	}

	switch action {
	case domain.TimeoutAutoApprove, domain.TimeoutAutoReject:
		reason := timeoutReason
		decision := domain.DecisionApproved
		if action == domain.TimeoutAutoReject {
			decision = domain.DecisionRejected
		}
		_, err := s.decide(ctx, cr, records, domain.ChangeApprovalRecord{
			ID:              uuid.NewString(),
			OrgID:           orgID,
			ChangeRequestID: cr.ID,
			StepNumber:      current.Step.StepNumber,
			ApproverID:      domain.SystemApproverID,
			Decision:        decision,
			Reason:          &reason,
			Source:          domain.DecisionSourceTimeout,
			CreatedAt:       now,
		})
		if err != nil {
			return "", err
		}
	case domain.TimeoutEscalate:
		if !escalationDue(cr.EscalationNotifiedAt, current.ActivatedAt, rules.NotificationFrequency(), now) {
			return "", nil
		}
		if err := e.escalate(ctx, cr, current, rules, now); err != nil {
			return "", err
		}
	}
	e.metrics.RecordSweepAction(string(action))
	return action, nil
}

func (e *EscalationService) escalate(ctx context.Context, cr *domain.ChangeRequest, current *workflow.StepState, rules domain.EscalationRules, now time.Time) error {
	s := e.changes
	roles := rules.EscalationPath
	if len(roles) == 0 {
		roles = current.Step.ApproverRoles
	}
	recipients, err := notify.ResolveAll(ctx, e.resolver, cr.OrgID, roles)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	next := *cr
	next.EscalationNotifiedAt = &now
	next.UpdatedAt = now
	if err := s.changes.Update(ctx, &next, cr.Version); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			e.metrics.RecordConflict()
		}
		return changeError(cr.ID, err)
	}

	e.logger.Info("approval step escalated",
		zap.String("org_id", cr.OrgID),
		zap.String("change_request_id", cr.ID),
		zap.Int("step", current.Step.StepNumber),
		zap.Strings("roles", roles),
		zap.Int("recipients", len(recipients)))
	s.publish(ctx, events.EventChangeEscalated, &next, domain.SystemApproverID, events.EscalatedPayload{
		StepNumber: current.Step.StepNumber,
		Roles:      roles,
		Recipients: recipients,
	})
	return nil
}

// escalationDue reports whether an escalation notice should go out now. The
// first notice for a step is always due; later ones wait for frequency, and a
// zero frequency means notify once.
func escalationDue(lastNotified, activatedAt *time.Time, frequency time.Duration, now time.Time) bool {
	if lastNotified == nil {
		return true
	}
	if activatedAt != nil && lastNotified.Before(*activatedAt) {
		return true
	}
	if frequency <= 0 {
		return false
	}
	return now.Sub(*lastNotified) >= frequency
}
