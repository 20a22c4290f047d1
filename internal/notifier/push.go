package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// PushConfig configures browser/OS push delivery.
type PushConfig struct {
	// Topic receives alert payloads; subscribed devices raise an OS notification.
	Topic string
	QoS   byte
	// Permission is the initial permission state.
	Permission models.Permission
	// GrantOnRequest makes RequestPermission grant a pending (default) permission.
	GrantOnRequest bool
}

// Validate validates the push configuration.
func (c *PushConfig) Validate() error {
	if c.Topic == "" {
		return fmt.Errorf("push topic is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("push qos must be 0, 1 or 2")
	}
	return nil
}

// pushPayload is the document published for subscribed devices.
type pushPayload struct {
	Title     string        `json:"title"`
	Body      string        `json:"body"`
	Tag       string        `json:"tag"`
	Timestamp time.Time     `json:"timestamp"`
	Alerts    []AlertDetail `json:"alerts,omitempty"`
	Test      bool          `json:"test,omitempty"`
}

// PushNotifier delivers browser notifications over a publish/subscribe transport.
type PushNotifier struct {
	config    PushConfig
	publisher Publisher
	logger    *zap.Logger

	mu         sync.RWMutex
	permission models.Permission
}

// NewPushNotifier creates a push notifier.
func NewPushNotifier(config PushConfig, publisher Publisher, logger *zap.Logger) (*PushNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid push config: %w", err)
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	perm := config.Permission
	if perm == "" {
		perm = models.PermissionDefault
	}
	return &PushNotifier{
		config:     config,
		publisher:  publisher,
		logger:     logger.Named("push"),
		permission: perm,
	}, nil
}

// Name returns "browser".
func (p *PushNotifier) Name() models.Channel {
	return models.ChannelBrowser
}

// Permission returns the current permission state.
func (p *PushNotifier) Permission() models.Permission {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.permission
}

// SetPermission records a permission decision made by the subscribed device.
func (p *PushNotifier) SetPermission(perm models.Permission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permission = perm
	p.logger.Info("push permission changed", zap.String("permission", string(perm)))
}

// RequestPermission asks subscribed devices for permission. A denied permission
// is final; a pending one is granted when GrantOnRequest is set.
func (p *PushNotifier) RequestPermission(ctx context.Context) (models.Permission, error) {
	if err := ctx.Err(); err != nil {
		return p.Permission(), err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.permission != models.PermissionDefault {
		return p.permission, nil
	}
	if err := p.publisher.Publish(p.config.Topic+"/permission", p.config.QoS, false, []byte(`{"request":"notifications"}`)); err != nil {
		return p.permission, fmt.Errorf("request permission: %w", err)
	}
	if p.config.GrantOnRequest {
		p.permission = models.PermissionGranted
	}
	return p.permission, nil
}

// Deliver publishes the message. It fails without granted permission.
func (p *PushNotifier) Deliver(ctx context.Context, msg *Message) error {
	if p.Permission() != models.PermissionGranted {
		return ErrPermissionRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(pushPayload{
		Title:     msg.Title,
		Body:      msg.Body,
		Tag:       "sensor-alert",
		Timestamp: msg.Timestamp,
		Alerts:    msg.Alerts,
		Test:      msg.Test,
	})
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}

	if err := p.publisher.Publish(p.config.Topic, p.config.QoS, false, payload); err != nil {
		return fmt.Errorf("publish push notification: %w", err)
	}
	return nil
}

// Close closes the publisher if it supports closing.
func (p *PushNotifier) Close() error {
	if c, ok := p.publisher.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
