package worker

import (
	"context"

	"github.com/spec-kit/change-service/internal/events"
	"github.com/spec-kit/change-service/internal/service"
)

// StartNotificationWorker registers notification handlers and delivers queued
// events until ctx is cancelled.
func StartNotificationWorker(ctx context.Context, dispatcher *events.AsyncDispatcher, notificationService *service.NotificationService) error {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	return dispatcher.Run(ctx)
}
