package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/cache"
	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/events"
	"github.com/spec-kit/change-service/internal/notify"
	"github.com/spec-kit/change-service/internal/repository"
	"github.com/spec-kit/change-service/internal/repository/memory"
	"github.com/spec-kit/change-service/internal/sequence"
)

const testOrg = "org-1"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	// A Saturday, so business-hours triggers never match by accident.
	return &fakeClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) record(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) types() []events.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func (l *eventLog) last(eventType events.EventType) (events.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Type == eventType {
			return l.events[i], true
		}
	}
	return events.Event{}, false
}

type harness struct {
	ctx        context.Context
	clock      *fakeClock
	store      *repository.Store
	settings   *SettingsService
	changes    *ChangeService
	escalation *EscalationService
	resolver   *notify.StaticResolver
	dispatcher events.Dispatcher
	events     *eventLog
}

type harnessOption func(*ChangeDependencies)

func withApproverResolver(r notify.RoleResolver) harnessOption {
	return func(d *ChangeDependencies) { d.ApproverResolver = r }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	clock := newFakeClock()
	store := memory.New().Repositories()
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	log := &eventLog{}
	for _, eventType := range events.EventTypes {
		dispatcher.Subscribe(eventType, log.record)
	}

	settings := NewSettingsService(SettingsDependencies{
		MatrixRepo:   store.Matrices,
		CategoryRepo: store.Categories,
		WorkflowRepo: store.Workflows,
		Cache:        cache.NewMemory(),
		Logger:       zap.NewNop(),
		Clock:        clock,
	})
	deps := ChangeDependencies{
		ChangeRepo: store.Changes,
		LedgerRepo: store.Ledger,
		Settings:   settings,
		Sequence:   sequence.NewMemory(),
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
		Clock:      clock,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	changes := NewChangeService(deps)
	resolver := notify.NewStaticResolver(nil)
	escalation := NewEscalationService(EscalationDependencies{
		Changes:      changes,
		ChangeRepo:   store.Changes,
		RoleResolver: resolver,
		Logger:       zap.NewNop(),
		BatchSize:    2,
	})
	return &harness{
		ctx:        context.Background(),
		clock:      clock,
		store:      store,
		settings:   settings,
		changes:    changes,
		escalation: escalation,
		resolver:   resolver,
		dispatcher: dispatcher,
		events:     log,
	}
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func boolPtr(v bool) *bool { return &v }

func thresholds() domain.ImpactThresholds {
	return domain.ImpactThresholds{Low: 0, Medium: 25, High: 50, Critical: 75}
}

func standardMatrix() *domain.RiskMatrix {
	return &domain.RiskMatrix{
		Name: "Standard",
		Levels: []domain.RiskLevelConfig{
			{Level: domain.RiskLevelLow, Label: "Low", RequiredApprovers: 1, AutoApprovalAllowed: true},
			{Level: domain.RiskLevelMedium, Label: "Medium", RequiredApprovers: 1},
			{Level: domain.RiskLevelHigh, Label: "High", RequiredApprovers: 3, RollbackRequired: true, TestingRequired: true},
			{Level: domain.RiskLevelCritical, Label: "Critical", RequiredApprovers: 4, RollbackRequired: true, CommunicationRequired: true},
		},
		ImpactCategories: []domain.ImpactCategory{
			{Key: "business", Name: "Business", Weight: 0.3, Thresholds: thresholds()},
			{Key: "technical", Name: "Technical", Weight: 0.3, Thresholds: thresholds()},
			{Key: "user", Name: "User", Weight: 0.2, Thresholds: thresholds()},
			{Key: "compliance", Name: "Compliance", Weight: 0.2, Thresholds: thresholds()},
		},
		CalculationMethod: domain.CalculationWeightedAverage,
		IsDefault:         true,
		IsActive:          true,
	}
}

func (h *harness) mustMatrix(t *testing.T, matrix *domain.RiskMatrix) *domain.RiskMatrix {
	t.Helper()
	created, err := h.settings.CreateMatrix(h.ctx, testOrg, matrix)
	require.NoError(t, err)
	return created
}

func (h *harness) mustCategory(t *testing.T, category *domain.ChangeCategory) *domain.ChangeCategory {
	t.Helper()
	created, err := h.settings.CreateCategory(h.ctx, testOrg, category)
	require.NoError(t, err)
	return created
}

func (h *harness) mustWorkflow(t *testing.T, wf *domain.ApprovalWorkflow) *domain.ApprovalWorkflow {
	t.Helper()
	created, err := h.settings.CreateWorkflow(h.ctx, testOrg, wf)
	require.NoError(t, err)
	return created
}

func (h *harness) mustCreate(t *testing.T, input ChangeCreateInput) *domain.ChangeRequest {
	t.Helper()
	if input.Title == "" {
		input.Title = "Rotate TLS certificates"
	}
	cr, err := h.changes.Create(h.ctx, testOrg, "requester", input)
	require.NoError(t, err)
	return cr
}

func (h *harness) mustApprove(t *testing.T, id, approver string) *domain.ChangeRequest {
	t.Helper()
	cr, err := h.changes.Approve(h.ctx, testOrg, id, approver, nil)
	require.NoError(t, err)
	return cr
}

func (h *harness) ledger(t *testing.T, id string) []domain.ChangeApprovalRecord {
	t.Helper()
	records, err := h.changes.GetApprovalLedger(h.ctx, testOrg, id)
	require.NoError(t, err)
	return records
}
