package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

// Toaster renders an in-app message, e.g. by pushing it to connected dashboards.
type Toaster func(msg *Message)

// AppNotifier delivers in-app. The per-sensor queue entries are pushed by the
// dispatch engine; this notifier only emits the compound toast.
type AppNotifier struct {
	logger  *zap.Logger
	toaster Toaster
}

// NewAppNotifier creates the in-app notifier. toaster may be nil.
func NewAppNotifier(logger *zap.Logger, toaster Toaster) *AppNotifier {
	return &AppNotifier{logger: logger.Named("app"), toaster: toaster}
}

// Name returns "app".
func (a *AppNotifier) Name() models.Channel {
	return models.ChannelApp
}

// Deliver emits the toast.
func (a *AppNotifier) Deliver(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.logger.Info("in-app notification",
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
		zap.Bool("test", msg.Test),
	)
	if a.toaster != nil {
		a.toaster(msg)
	}
	return nil
}

// Close is a no-op.
func (a *AppNotifier) Close() error {
	return nil
}
