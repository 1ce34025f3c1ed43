package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/config"
	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/events"
)

type deliveryLog struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (l *deliveryLog) add(d Delivery) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliveries = append(l.deliveries, d)
}

func (l *deliveryLog) all() []Delivery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Delivery(nil), l.deliveries...)
}

func attachNotifications(h *harness, cfg config.NotificationConfig) *deliveryLog {
	log := &deliveryLog{}
	n := NewNotificationService(h.dispatcher, h.settings, zap.NewNop(), cfg)
	n.sent = log.add
	n.RegisterHandlers()
	return log
}

func TestNotificationsFollowCategoryPolicy(t *testing.T) {
	h := newHarness(t)
	log := attachNotifications(h, config.NotificationConfig{EmailFrom: "changes@example.com", WebhookURL: "https://hooks.example.com/changes"})
	category := h.mustCategory(t, &domain.ChangeCategory{
		Name:             "Network",
		RequiresApproval: true,
		IsActive:         true,
		Notifications: domain.NotificationPolicy{
			Stakeholders: []string{"noc", "netops"},
			Channels:     []string{ChannelEmail, ChannelWebhook},
			Events:       []string{string(events.EventChangeApproved)},
		},
	})

	cr := h.mustCreate(t, ChangeCreateInput{CategoryID: &category.ID})
	assert.Empty(t, log.all())

	h.mustApprove(t, cr.ID, "alice")
	deliveries := log.all()
	require.Len(t, deliveries, 2)
	assert.Equal(t, ChannelEmail, deliveries[0].Channel)
	assert.Equal(t, ChannelWebhook, deliveries[1].Channel)
	for _, d := range deliveries {
		assert.Equal(t, events.EventChangeApproved, d.Event.Type)
		assert.Equal(t, []string{"netops", "noc"}, d.Recipients)
	}
}

func TestNotificationsSkipUnconfiguredChannels(t *testing.T) {
	h := newHarness(t)
	log := attachNotifications(h, config.NotificationConfig{EmailFrom: "changes@example.com"})
	category := h.mustCategory(t, &domain.ChangeCategory{
		Name:             "Database",
		RequiresApproval: true,
		IsActive:         true,
		Notifications: domain.NotificationPolicy{
			Stakeholders: []string{"dba"},
			Channels:     []string{ChannelWebhook},
			Events:       []string{string(events.EventChangeCreated)},
		},
	})

	h.mustCreate(t, ChangeCreateInput{CategoryID: &category.ID})
	assert.Empty(t, log.all())
}

func TestEscalationRecipientsAlwaysNotified(t *testing.T) {
	h := newHarness(t)
	log := attachNotifications(h, config.NotificationConfig{EmailFrom: "changes@example.com"})
	h.resolver.Assign(testOrg, "cab", "carol")
	h.mustWorkflow(t, &domain.ApprovalWorkflow{
		Name:     "Normal",
		IsActive: true,
		Steps: []domain.ApprovalStep{
			{StepNumber: 1, Name: "CAB", RequiredApprovers: 1, ApproverRoles: []string{"cab"}, TimeoutHours: intPtr(1)},
		},
	})
	h.mustCreate(t, ChangeCreateInput{})

	h.clock.Advance(time.Hour)
	_, err := h.escalation.Sweep(h.ctx)
	require.NoError(t, err)

	deliveries := log.all()
	require.Len(t, deliveries, 1)
	assert.Equal(t, events.EventChangeEscalated, deliveries[0].Event.Type)
	assert.Equal(t, ChannelEmail, deliveries[0].Channel)
	assert.Equal(t, []string{"carol"}, deliveries[0].Recipients)
}
