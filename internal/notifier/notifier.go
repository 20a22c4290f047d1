// Package notifier delivers alert messages through the supported channels.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

var (
	// ErrRateLimited is returned when a delivery is dropped by the per-channel limiter.
	ErrRateLimited = errors.New("notification rate limited")
	// ErrNotConfigured is returned when no notifier is registered for a channel.
	ErrNotConfigured = errors.New("channel not configured")
	// ErrPermissionRequired is returned by the browser channel without granted permission.
	ErrPermissionRequired = errors.New("browser notification permission not granted")
	// ErrContactRequired is returned by email and SMS without a recipient.
	ErrContactRequired = errors.New("contact is required")
)

// AlertDetail describes one sensor contributing to a message.
type AlertDetail struct {
	Sensor    models.SensorType `json:"sensor"`
	Value     float64           `json:"value"`
	Threshold float64           `json:"threshold"`
	Direction models.Direction  `json:"direction"`
}

// Message is a rendered notification handed to a channel.
type Message struct {
	Title     string
	Body      string
	Contact   string
	Alerts    []AlertDetail
	Timestamp time.Time
	Test      bool
}

// Notifier is the interface for all notification channels.
type Notifier interface {
	// Name returns the channel this notifier serves.
	Name() models.Channel
	// Deliver sends the message.
	Deliver(ctx context.Context, msg *Message) error
	// Close releases any resources.
	Close() error
}

// PermissionNotifier is a notifier gated by an OS-level permission.
type PermissionNotifier interface {
	Notifier
	Permission() models.Permission
	RequestPermission(ctx context.Context) (models.Permission, error)
}

// RateLimitConfig bounds deliveries per channel.
type RateLimitConfig struct {
	PerMinute int  // sustained deliveries per minute (default: 10)
	Burst     int  // burst size (default: 5)
	Enabled   bool // whether rate limiting is enabled
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		PerMinute: 10,
		Burst:     5,
		Enabled:   true,
	}
}

// Registry holds one notifier per channel and throttles external channels.
type Registry struct {
	mu        sync.RWMutex
	notifiers map[models.Channel]Notifier
	limiters  map[models.Channel]*rate.Limiter
	limit     RateLimitConfig
}

// NewRegistry creates an empty registry.
func NewRegistry(limit RateLimitConfig) *Registry {
	if limit.PerMinute <= 0 {
		limit.PerMinute = DefaultRateLimitConfig().PerMinute
	}
	if limit.Burst <= 0 {
		limit.Burst = DefaultRateLimitConfig().Burst
	}
	return &Registry{
		notifiers: make(map[models.Channel]Notifier),
		limiters:  make(map[models.Channel]*rate.Limiter),
		limit:     limit,
	}
}

// Register adds a notifier, replacing any previous one for the same channel.
func (r *Registry) Register(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := n.Name()
	r.notifiers[ch] = n
	// in-app delivery is local and never throttled
	if r.limit.Enabled && ch != models.ChannelApp {
		every := time.Minute / time.Duration(r.limit.PerMinute)
		r.limiters[ch] = rate.NewLimiter(rate.Every(every), r.limit.Burst)
	}
}

// Get returns the notifier for a channel.
func (r *Registry) Get(ch models.Channel) (Notifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notifiers[ch]
	return n, ok
}

// Permission returns the permission state of a permission-gated channel.
// Channels without a permission model report granted.
func (r *Registry) Permission(ch models.Channel) models.Permission {
	n, ok := r.Get(ch)
	if !ok {
		return models.PermissionDenied
	}
	if pn, ok := n.(PermissionNotifier); ok {
		return pn.Permission()
	}
	return models.PermissionGranted
}

// Deliver sends msg through the channel's notifier.
func (r *Registry) Deliver(ctx context.Context, ch models.Channel, msg *Message) error {
	r.mu.RLock()
	n, ok := r.notifiers[ch]
	limiter := r.limiters[ch]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%s: %w", ch, ErrNotConfigured)
	}
	if limiter != nil && !limiter.Allow() {
		return fmt.Errorf("%s: %w", ch, ErrRateLimited)
	}
	return n.Deliver(ctx, msg)
}

// Channels lists the registered channels.
func (r *Registry) Channels() []models.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Channel, 0, len(r.notifiers))
	for ch := range r.notifiers {
		out = append(out, ch)
	}
	return out
}

// Close closes all registered notifiers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for ch, n := range r.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch, err))
		}
	}
	r.notifiers = make(map[models.Channel]Notifier)
	r.limiters = make(map[models.Channel]*rate.Limiter)

	return errors.Join(errs...)
}
