package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/cache"
	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/events"
	"github.com/spec-kit/change-service/internal/repository"
	"github.com/spec-kit/change-service/internal/risk"
	"github.com/spec-kit/change-service/internal/workflow"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

// Notification channels a category may subscribe to.
const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// SettingsService manages tenant reference data: risk matrices, change
// categories and approval workflows.
type SettingsService struct {
	matrices   repository.RiskMatrixRepository
	categories repository.CategoryRepository
	workflows  repository.WorkflowRepository
	cache      cache.ReferenceCache
	logger     *zap.Logger
	clock      Clock
}

// SettingsDependencies bundles collaborators for the settings service.
type SettingsDependencies struct {
	MatrixRepo   repository.RiskMatrixRepository
	CategoryRepo repository.CategoryRepository
	WorkflowRepo repository.WorkflowRepository
	Cache        cache.ReferenceCache
	Logger       *zap.Logger
	Clock        Clock
}

// NewSettingsService constructs the service. A nil cache disables caching.
func NewSettingsService(deps SettingsDependencies) *SettingsService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock
	}
	return &SettingsService{
		matrices:   deps.MatrixRepo,
		categories: deps.CategoryRepo,
		workflows:  deps.WorkflowRepo,
		cache:      deps.Cache,
		logger:     logger,
		clock:      clock,
	}
}

// GetCategoriesForChangeCreation returns the tenant's active categories in display order.
func (s *SettingsService) GetCategoriesForChangeCreation(ctx context.Context, orgID string) ([]domain.ChangeCategory, error) {
	all, err := cachedList(ctx, s, orgID, cache.KindCategories, func() ([]domain.ChangeCategory, error) {
		return s.categories.List(ctx, orgID)
	})
	if err != nil {
		return nil, err
	}
	active := make([]domain.ChangeCategory, 0, len(all))
	for _, category := range all {
		if category.IsActive {
			active = append(active, category)
		}
	}
	return active, nil
}

// GetWorkflowsForChangeCreation returns active workflows in evaluation order.
// The result is empty, never nil, when the tenant has none.
func (s *SettingsService) GetWorkflowsForChangeCreation(ctx context.Context, orgID string) ([]domain.ApprovalWorkflow, error) {
	all, err := cachedList(ctx, s, orgID, cache.KindWorkflows, func() ([]domain.ApprovalWorkflow, error) {
		return s.workflows.List(ctx, orgID)
	})
	if err != nil {
		return nil, err
	}
	ordered := workflow.Ordered(all)
	if ordered == nil {
		ordered = []domain.ApprovalWorkflow{}
	}
	return ordered, nil
}

// GetRiskMatrixForChangeCreation returns the tenant's active default matrix, or
// nil when there is none. When several are marked default the oldest wins.
func (s *SettingsService) GetRiskMatrixForChangeCreation(ctx context.Context, orgID string) (*domain.RiskMatrix, error) {
	all, err := cachedList(ctx, s, orgID, cache.KindMatrices, func() ([]domain.RiskMatrix, error) {
		return s.matrices.List(ctx, orgID)
	})
	if err != nil {
		return nil, err
	}
	var defaults []domain.RiskMatrix
	for _, matrix := range all {
		if matrix.IsDefault && matrix.IsActive {
			defaults = append(defaults, matrix)
		}
	}
	if len(defaults) == 0 {
		return nil, nil
	}
	if len(defaults) > 1 {
		ids := make([]string, len(defaults))
		for i, matrix := range defaults {
			ids[i] = matrix.ID
		}
		s.logger.Warn("multiple default risk matrices; using the oldest",
			zap.String("org_id", orgID),
			zap.Strings("risk_matrix_ids", ids))
	}
	matrix := defaults[0]
	return &matrix, nil
}

// GetCategory returns one category.
func (s *SettingsService) GetCategory(ctx context.Context, orgID, id string) (*domain.ChangeCategory, error) {
	category, err := s.categories.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, settingsError("change category", id, "", err)
	}
	return category, nil
}

// ListCategories returns every category of the tenant, active or not.
func (s *SettingsService) ListCategories(ctx context.Context, orgID string) ([]domain.ChangeCategory, error) {
	return s.categories.List(ctx, orgID)
}

// CreateCategory validates and stores a new category.
func (s *SettingsService) CreateCategory(ctx context.Context, orgID string, category *domain.ChangeCategory) (*domain.ChangeCategory, error) {
	category.ID = uuid.NewString()
	category.OrgID = orgID
	normalizeCategory(category)
	if err := s.validateCategory(ctx, category); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	category.CreatedAt, category.UpdatedAt = now, now
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, settingsError("change category", category.ID, category.Name, err)
	}
	s.invalidate(ctx, orgID)
	return category, nil
}

// UpdateCategory replaces an existing category.
func (s *SettingsService) UpdateCategory(ctx context.Context, orgID, id string, category *domain.ChangeCategory) (*domain.ChangeCategory, error) {
	existing, err := s.GetCategory(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	category.ID = id
	category.OrgID = orgID
	category.CreatedAt = existing.CreatedAt
	normalizeCategory(category)
	if err := s.validateCategory(ctx, category); err != nil {
		return nil, err
	}
	category.UpdatedAt = s.clock.Now()
	if err := s.categories.Update(ctx, category); err != nil {
		return nil, settingsError("change category", id, category.Name, err)
	}
	s.invalidate(ctx, orgID)
	return category, nil
}

// DeleteCategory removes a category. Existing change requests keep their snapshot.
func (s *SettingsService) DeleteCategory(ctx context.Context, orgID, id string) error {
	if err := s.categories.Delete(ctx, orgID, id); err != nil {
		return settingsError("change category", id, "", err)
	}
	s.invalidate(ctx, orgID)
	return nil
}

// GetMatrix returns one risk matrix.
func (s *SettingsService) GetMatrix(ctx context.Context, orgID, id string) (*domain.RiskMatrix, error) {
	matrix, err := s.matrices.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, settingsError("risk matrix", id, "", err)
	}
	return matrix, nil
}

// ListMatrices returns every matrix of the tenant, oldest first.
func (s *SettingsService) ListMatrices(ctx context.Context, orgID string) ([]domain.RiskMatrix, error) {
	return s.matrices.List(ctx, orgID)
}

// CreateMatrix validates and stores a new risk matrix.
func (s *SettingsService) CreateMatrix(ctx context.Context, orgID string, matrix *domain.RiskMatrix) (*domain.RiskMatrix, error) {
	matrix.ID = uuid.NewString()
	matrix.OrgID = orgID
	if matrix.CalculationMethod == "" {
		matrix.CalculationMethod = domain.CalculationWeightedAverage
	}
	if err := s.validateMatrix(matrix); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	matrix.CreatedAt, matrix.UpdatedAt = now, now
	if err := s.matrices.Create(ctx, matrix); err != nil {
		return nil, settingsError("risk matrix", matrix.ID, matrix.Name, err)
	}
	s.invalidate(ctx, orgID)
	return matrix, nil
}

// UpdateMatrix replaces an existing risk matrix. Requests already created keep their computed risk.
func (s *SettingsService) UpdateMatrix(ctx context.Context, orgID, id string, matrix *domain.RiskMatrix) (*domain.RiskMatrix, error) {
	existing, err := s.GetMatrix(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	matrix.ID = id
	matrix.OrgID = orgID
	matrix.CreatedAt = existing.CreatedAt
	if matrix.CalculationMethod == "" {
		matrix.CalculationMethod = domain.CalculationWeightedAverage
	}
	if err := s.validateMatrix(matrix); err != nil {
		return nil, err
	}
	matrix.UpdatedAt = s.clock.Now()
	if err := s.matrices.Update(ctx, matrix); err != nil {
		return nil, settingsError("risk matrix", id, matrix.Name, err)
	}
	s.invalidate(ctx, orgID)
	return matrix, nil
}

// DeleteMatrix removes a risk matrix.
func (s *SettingsService) DeleteMatrix(ctx context.Context, orgID, id string) error {
	if err := s.matrices.Delete(ctx, orgID, id); err != nil {
		return settingsError("risk matrix", id, "", err)
	}
	s.invalidate(ctx, orgID)
	return nil
}

// GetWorkflow returns one approval workflow.
func (s *SettingsService) GetWorkflow(ctx context.Context, orgID, id string) (*domain.ApprovalWorkflow, error) {
	wf, err := s.workflows.GetByID(ctx, orgID, id)
	if err != nil {
		return nil, settingsError("approval workflow", id, "", err)
	}
	return wf, nil
}

// ListWorkflows returns every workflow of the tenant in evaluation order.
func (s *SettingsService) ListWorkflows(ctx context.Context, orgID string) ([]domain.ApprovalWorkflow, error) {
	return s.workflows.List(ctx, orgID)
}

// CreateWorkflow validates and stores a new workflow.
func (s *SettingsService) CreateWorkflow(ctx context.Context, orgID string, wf *domain.ApprovalWorkflow) (*domain.ApprovalWorkflow, error) {
	wf.ID = uuid.NewString()
	wf.OrgID = orgID
	normalizeWorkflow(wf)
	if err := validateWorkflow(wf); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	wf.CreatedAt, wf.UpdatedAt = now, now
	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, settingsError("approval workflow", wf.ID, wf.Name, err)
	}
	s.invalidate(ctx, orgID)
	return wf, nil
}

// UpdateWorkflow replaces an existing workflow. In-flight requests keep the
// steps they were created with.
func (s *SettingsService) UpdateWorkflow(ctx context.Context, orgID, id string, wf *domain.ApprovalWorkflow) (*domain.ApprovalWorkflow, error) {
	existing, err := s.GetWorkflow(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	wf.ID = id
	wf.OrgID = orgID
	wf.CreatedAt = existing.CreatedAt
	normalizeWorkflow(wf)
	if err := validateWorkflow(wf); err != nil {
		return nil, err
	}
	wf.UpdatedAt = s.clock.Now()
	if err := s.workflows.Update(ctx, wf); err != nil {
		return nil, settingsError("approval workflow", id, wf.Name, err)
	}
	s.invalidate(ctx, orgID)
	return wf, nil
}

// DeleteWorkflow removes a workflow.
func (s *SettingsService) DeleteWorkflow(ctx context.Context, orgID, id string) error {
	if err := s.workflows.Delete(ctx, orgID, id); err != nil {
		return settingsError("approval workflow", id, "", err)
	}
	s.invalidate(ctx, orgID)
	return nil
}

func (s *SettingsService) invalidate(ctx context.Context, orgID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTenant(ctx, orgID); err != nil {
		s.logger.Warn("reference cache invalidation failed", zap.String("org_id", orgID), zap.Error(err))
	}
}

// cachedList serves a tenant's reference list from the cache, loading and
// storing it on a miss. Cache failures fall through to the repository.
func cachedList[T any](ctx context.Context, s *SettingsService, orgID, kind string, load func() ([]T, error)) ([]T, error) {
	if s.cache != nil {
		var cached []T
		ok, err := s.cache.Get(ctx, orgID, kind, &cached)
		if err != nil {
			s.logger.Warn("reference cache read failed", zap.String("org_id", orgID), zap.String("kind", kind), zap.Error(err))
		} else if ok {
			return cached, nil
		}
	}
	items, err := load()
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, orgID, kind, items); err != nil {
			s.logger.Warn("reference cache write failed", zap.String("org_id", orgID), zap.String("kind", kind), zap.Error(err))
		}
	}
	return items, nil
}

func normalizeCategory(category *domain.ChangeCategory) {
	category.Name = strings.TrimSpace(category.Name)
	if category.DefaultRiskLevel == "" {
		category.DefaultRiskLevel = domain.RiskLevelMedium
	}
	if category.DefaultImpactLevel == "" {
		category.DefaultImpactLevel = domain.ImpactLevelMedium
	}
	if category.ApprovalWorkflowID != nil && strings.TrimSpace(*category.ApprovalWorkflowID) == "" {
		category.ApprovalWorkflowID = nil
	}
}

func normalizeWorkflow(wf *domain.ApprovalWorkflow) {
	wf.Name = strings.TrimSpace(wf.Name)
	if wf.EscalationRules.TimeoutAction == "" {
		wf.EscalationRules.TimeoutAction = domain.TimeoutEscalate
	}
}

func (s *SettingsService) validateCategory(ctx context.Context, category *domain.ChangeCategory) error {
	problems := map[string]any{}
	if category.Name == "" {
		problems["name"] = "required"
	}
	if !category.DefaultRiskLevel.Valid() {
		problems["defaultRiskLevel"] = fmt.Sprintf("unknown risk level %q", category.DefaultRiskLevel)
	}
	if !category.DefaultImpactLevel.Valid() {
		problems["defaultImpactLevel"] = fmt.Sprintf("unknown impact level %q", category.DefaultImpactLevel)
	}
	window := category.DefaultMaintenanceWindow
	if window.DurationMinutes < 0 {
		problems["defaultMaintenanceWindow.durationMinutes"] = "must not be negative"
	}
	for i, period := range window.BlackoutPeriods {
		if !period.Ends.After(period.Starts) {
			problems[fmt.Sprintf("defaultMaintenanceWindow.blackoutPeriods[%d]", i)] = "ends must be after starts"
		}
	}
	for i, slot := range window.PreferredSlots {
		field := fmt.Sprintf("defaultMaintenanceWindow.preferredSlots[%d]", i)
		if slot.Start == "" || slot.End == "" {
			problems[field] = "start and end required"
		} else if _, err := workflow.ParseBusinessHours(slot.Start, slot.End, nil, ""); err != nil {
			problems[field] = err.Error()
		}
	}
	for _, channel := range category.Notifications.Channels {
		if channel != ChannelEmail && channel != ChannelWebhook {
			problems["notifications.channels"] = fmt.Sprintf("unknown channel %q", channel)
		}
	}
	for _, name := range category.Notifications.Events {
		if !knownEvent(name) {
			problems["notifications.events"] = fmt.Sprintf("unknown event %q", name)
		}
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError("invalid change category", problems)
	}
	if category.ApprovalWorkflowID != nil {
		if _, err := s.workflows.GetByID(ctx, category.OrgID, *category.ApprovalWorkflowID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewValidationError("invalid change category", map[string]any{
					"approvalWorkflowId": "unknown workflow",
				})
			}
			return apperrors.MapError(err)
		}
	}
	return nil
}

func (s *SettingsService) validateMatrix(matrix *domain.RiskMatrix) error {
	matrix.Name = strings.TrimSpace(matrix.Name)
	problems := map[string]any{}
	if matrix.Name == "" {
		problems["name"] = "required"
	}
	seenLevels := map[domain.RiskLevel]bool{}
	for i, level := range matrix.Levels {
		field := fmt.Sprintf("levels[%d]", i)
		switch {
		case !level.Level.Valid():
			problems[field] = fmt.Sprintf("unknown risk level %q", level.Level)
		case seenLevels[level.Level]:
			problems[field] = fmt.Sprintf("duplicate risk level %q", level.Level)
		case level.RequiredApprovers < 0:
			problems[field] = "requiredApprovers must not be negative"
		}
		seenLevels[level.Level] = true
	}
	seenKeys := map[string]bool{}
	for i, cat := range matrix.ImpactCategories {
		field := fmt.Sprintf("impactCategories[%d]", i)
		th := cat.Thresholds
		switch {
		case strings.TrimSpace(cat.Key) == "":
			problems[field] = "key required"
		case seenKeys[cat.Key]:
			problems[field] = fmt.Sprintf("duplicate key %q", cat.Key)
		case !(cat.Weight >= 0 && cat.Weight <= 1):
			problems[field] = "weight must be within [0, 1]"
		case !risk.ValidScore(th.Low) || !risk.ValidScore(th.Critical):
			problems[field] = "thresholds must be within [0, 100]"
		case !(th.Low <= th.Medium && th.Medium <= th.High && th.High <= th.Critical):
			problems[field] = "thresholds must be non-decreasing from low to critical"
		}
		seenKeys[cat.Key] = true
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError("invalid risk matrix", problems)
	}
	if _, err := risk.Score(matrix, nil); err != nil {
		domainErr := apperrors.ToDomainError(err)
		return apperrors.NewValidationError(domainErr.Message, domainErr.Details)
	}
	if len(matrix.ImpactCategories) > 0 {
		if sum := risk.WeightSum(matrix); math.Abs(sum-1) > 1e-9 {
			s.logger.Warn("risk matrix weights do not sum to 1; scores are not renormalised",
				zap.String("org_id", matrix.OrgID),
				zap.String("risk_matrix", matrix.Name),
				zap.Float64("weight_sum", sum))
		}
	}
	return nil
}

func validateWorkflow(wf *domain.ApprovalWorkflow) error {
	problems := map[string]any{}
	if wf.Name == "" {
		problems["name"] = "required"
	}
	if len(wf.Steps) == 0 {
		problems["steps"] = "at least one step required"
	}
	for _, level := range wf.TriggerConditions.RiskLevels {
		if !level.Valid() {
			problems["triggerConditions.riskLevels"] = fmt.Sprintf("unknown risk level %q", level)
		}
	}
	for _, level := range wf.TriggerConditions.ImpactLevels {
		if !level.Valid() {
			problems["triggerConditions.impactLevels"] = fmt.Sprintf("unknown impact level %q", level)
		}
	}
	seenSteps := map[int]bool{}
	for i, step := range wf.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		switch {
		case step.StepNumber < 1:
			problems[field] = "stepNumber must be at least 1"
		case seenSteps[step.StepNumber]:
			problems[field] = fmt.Sprintf("duplicate stepNumber %d", step.StepNumber)
		case step.RequiredApprovers < 1:
			problems[field] = "requiredApprovers must be at least 1"
		case step.TimeoutHours != nil && *step.TimeoutHours < 0:
			problems[field] = "timeoutHours must not be negative"
		case step.Condition != nil && !validCondition(step.Condition):
			problems[field] = "unknown condition field or operator"
		}
		seenSteps[step.StepNumber] = true
	}
	if !wf.EscalationRules.TimeoutAction.Valid() {
		problems["escalationRules.timeoutAction"] = fmt.Sprintf("unknown action %q", wf.EscalationRules.TimeoutAction)
	}
	if wf.EscalationRules.NotificationFrequencyHours < 0 {
		problems["escalationRules.notificationFrequencyHours"] = "must not be negative"
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError("invalid approval workflow", problems)
	}
	return nil
}

func validCondition(cond *domain.StepCondition) bool {
	switch cond.Field {
	case domain.ConditionFieldRiskLevel, domain.ConditionFieldImpactLevel,
		domain.ConditionFieldCategory, domain.ConditionFieldEmergency:
	default:
		return false
	}
	switch cond.Operator {
	case domain.ConditionEquals, domain.ConditionNotEquals, domain.ConditionIn, domain.ConditionNotIn:
		return true
	}
	return false
}

func knownEvent(name string) bool {
	for _, eventType := range events.EventTypes {
		if string(eventType) == name {
			return true
		}
	}
	return false
}
