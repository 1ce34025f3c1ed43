package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/config"
	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/events"
)

// Delivery is one notification handed to a channel.
type Delivery struct {
	Channel    string
	Event      events.Event
	Recipients []string
}

// NotificationService turns lifecycle events into deliveries according to the
// category's notification policy.
type NotificationService struct {
	dispatcher events.Dispatcher
	settings   *SettingsService
	logger     *zap.Logger
	cfg        config.NotificationConfig
	// sent observes every delivery handed to a channel stub.
	sent func(Delivery)
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, settings *SettingsService, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		settings:   settings,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to every change event.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.EventTypes {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("org_id", event.OrgID),
		zap.String("change_request_id", event.ChangeRequestID),
		zap.String("change_number", event.ChangeNumber))

	policy, err := n.policy(ctx, event)
	if err != nil {
		return err
	}

	recipients := map[string]struct{}{}
	if policy.Wants(string(event.Type)) {
		for _, stakeholder := range policy.Stakeholders {
			recipients[stakeholder] = struct{}{}
		}
	}
	if escalated, ok := event.Payload.(events.EscalatedPayload); ok {
		for _, id := range escalated.Recipients {
			recipients[id] = struct{}{}
		}
	}
	if len(recipients) == 0 {
		return nil
	}
	list := make([]string, 0, len(recipients))
	for id := range recipients {
		list = append(list, id)
	}
	sort.Strings(list)

	channels := policy.Channels
	if len(channels) == 0 {
		channels = []string{ChannelEmail}
	}
	for _, channel := range channels {
		switch channel {
		case ChannelEmail:
			n.sendEmailNotificationStub(ctx, event, list)
		case ChannelWebhook:
			n.sendWebhookNotificationStub(ctx, event, list)
		}
	}
	return nil
}

func (n *NotificationService) policy(ctx context.Context, event events.Event) (domain.NotificationPolicy, error) {
	if n.settings == nil || event.CategoryID == nil {
		return domain.NotificationPolicy{}, nil
	}
	category, err := n.settings.GetCategory(ctx, event.OrgID, *event.CategoryID)
	if err != nil {
		n.logger.Debug("notification policy unavailable",
			zap.String("category_id", *event.CategoryID),
			zap.Error(err))
		return domain.NotificationPolicy{}, nil
	}
	return category.Notifications, nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event, recipients []string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.Strings("to", recipients),
		zap.String("change_request_id", event.ChangeRequestID),
		zap.String("event_type", string(event.Type)))
	n.observe(Delivery{Channel: ChannelEmail, Event: event, Recipients: recipients})
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event, recipients []string) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.Strings("recipients", recipients),
		zap.String("change_request_id", event.ChangeRequestID),
		zap.String("event_type", string(event.Type)))
	n.observe(Delivery{Channel: ChannelWebhook, Event: event, Recipients: recipients})
}

func (n *NotificationService) observe(delivery Delivery) {
	if n.sent != nil {
		n.sent(delivery)
	}
}
