package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-service/internal/service"
)

// Subscriber is a dispatcher that must actively pull events from a bus.
type Subscriber interface {
	Run(ctx context.Context) error
}

// StartNotificationWorker registers notification handlers and, when the dispatcher
// is backed by a bus, runs its subscriber loop until ctx is cancelled.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, subscriber Subscriber, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	if subscriber == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := subscriber.Run(ctx); err != nil {
		logger.Error("notification worker stopped", zap.Error(err))
	}
}
