// Package settings owns the user-editable configuration: thresholds, data-source
// settings and notification preferences.
//
// Readers get immutable values through an atomically swapped state pointer.
// Writers are serialized, validate before applying, and persist through to
// storage before the new state becomes visible.
package settings

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/internal/storage"
)

// State is an immutable view of all settings.
type State struct {
	Thresholds    models.Thresholds
	Cloud         models.CloudConfig
	Notifications models.NotificationSettings
}

// Defaults seed the store when nothing has been persisted yet.
type Defaults struct {
	Thresholds    models.Thresholds
	Cloud         models.CloudConfig
	Notifications models.NotificationSettings
}

// FactoryDefaults returns the built-in defaults.
func FactoryDefaults() Defaults {
	return Defaults{
		Thresholds:    models.DefaultThresholds(),
		Cloud:         models.DefaultCloudConfig(),
		Notifications: models.DefaultNotificationSettings(),
	}
}

// CloudChangeFunc observes data-source configuration changes.
// It runs while the writer lock is held and must not call Store writers.
type CloudChangeFunc func(old, updated models.CloudConfig)

// Store is the configuration store.
type Store struct {
	kv       storage.Store
	defaults Defaults
	logger   *zap.Logger

	mu    sync.Mutex
	state atomic.Pointer[State]

	cloudListeners []CloudChangeFunc
}

// New creates a store holding the defaults until Load is called.
func New(kv storage.Store, defaults Defaults, logger *zap.Logger) *Store {
	s := &Store{
		kv:       kv,
		defaults: defaults,
		logger:   logger.Named("settings"),
	}
	s.state.Store(&State{
		Thresholds:    defaults.Thresholds,
		Cloud:         defaults.Cloud,
		Notifications: defaults.Notifications,
	})
	return s
}

// Load reads persisted settings, falling back to defaults for missing or invalid entries.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.state.Load()

	var th models.Thresholds
	if ok, err := s.load(ctx, storage.KeyThresholds, &th); err != nil {
		return err
	} else if ok {
		if err := th.Validate(); err != nil {
			s.logger.Warn("ignoring persisted thresholds", zap.Error(err))
		} else {
			next.Thresholds = th
		}
	}

	var cloud models.CloudConfig
	if ok, err := s.load(ctx, storage.KeyCloudConfig, &cloud); err != nil {
		return err
	} else if ok {
		if err := cloud.Validate(); err != nil {
			s.logger.Warn("ignoring persisted cloud config", zap.Error(err))
		} else {
			next.Cloud = cloud
		}
	}

	var notif models.NotificationSettings
	if ok, err := s.load(ctx, storage.KeyNotificationSettings, &notif); err != nil {
		return err
	} else if ok {
		if err := notif.Validate(); err != nil {
			s.logger.Warn("ignoring persisted notification settings", zap.Error(err))
		} else {
			next.Notifications = notif
		}
	}

	s.state.Store(&next)
	s.logger.Info("settings loaded",
		zap.String("endpoint", next.Cloud.Endpoint),
		zap.String("device_id", next.Cloud.DeviceID),
		zap.Bool("notifications_enabled", next.Notifications.Enabled),
		zap.String("channel", string(next.Notifications.Channel)),
	)
	return nil
}

func (s *Store) load(ctx context.Context, key string, v any) (bool, error) {
	ok, err := storage.LoadJSON(ctx, s.kv, key, v)
	if err != nil {
		return false, fmt.Errorf("load settings: %w", err)
	}
	return ok, nil
}

// Current returns the whole settings state.
func (s *Store) Current() State {
	return *s.state.Load()
}

// Thresholds returns the current thresholds.
func (s *Store) Thresholds() models.Thresholds {
	return s.state.Load().Thresholds
}

// CloudConfig returns the current data-source configuration.
func (s *Store) CloudConfig() models.CloudConfig {
	return s.state.Load().Cloud
}

// Notifications returns the current notification settings.
func (s *Store) Notifications() models.NotificationSettings {
	return s.state.Load().Notifications
}

// OnCloudConfigChange registers fn to run after every accepted data-source change.
func (s *Store) OnCloudConfigChange(fn CloudChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cloudListeners = append(s.cloudListeners, fn)
}

// UpdateThresholds validates and replaces the thresholds.
func (s *Store) UpdateThresholds(ctx context.Context, th models.Thresholds) (models.Thresholds, error) {
	if err := th.Validate(); err != nil {
		return models.Thresholds{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := storage.SaveJSON(ctx, s.kv, storage.KeyThresholds, th); err != nil {
		return models.Thresholds{}, fmt.Errorf("persist thresholds: %w", err)
	}
	next := *s.state.Load()
	next.Thresholds = th
	s.state.Store(&next)

	s.logger.Info("thresholds updated",
		zap.Float64("temperature_min", th.Temperature.Min),
		zap.Float64("temperature_max", th.Temperature.Max),
		zap.Float64("humidity_min", th.Humidity.Min),
		zap.Float64("humidity_max", th.Humidity.Max),
		zap.Float64("sound_max", th.Sound.Max),
	)
	return th, nil
}

// ResetThresholds restores the default thresholds.
func (s *Store) ResetThresholds(ctx context.Context) (models.Thresholds, error) {
	return s.UpdateThresholds(ctx, s.defaults.Thresholds)
}

// UpdateCloudConfig merges, validates and applies a data-source change.
// Listeners are notified only when the merged config differs.
func (s *Store) UpdateCloudConfig(ctx context.Context, patch models.CloudConfigPatch) (models.CloudConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := *s.state.Load()
	cfg := patch.Apply(prev.Cloud)
	if err := cfg.Validate(); err != nil {
		return models.CloudConfig{}, err
	}

	if err := storage.SaveJSON(ctx, s.kv, storage.KeyCloudConfig, cfg); err != nil {
		return models.CloudConfig{}, fmt.Errorf("persist cloud config: %w", err)
	}
	next := prev
	next.Cloud = cfg
	s.state.Store(&next)

	if cfg != prev.Cloud {
		s.logger.Info("cloud config updated",
			zap.String("endpoint", cfg.Endpoint),
			zap.String("device_id", cfg.DeviceID),
			zap.Int64("refresh_interval_ms", cfg.RefreshIntervalMS),
			zap.Bool("endpoint_changed", cfg.Endpoint != prev.Cloud.Endpoint),
		)
		for _, fn := range s.cloudListeners {
			fn(prev.Cloud, cfg)
		}
	}
	return cfg, nil
}

// UpdateNotifications merges, validates and applies a notification settings change.
// LastNotifiedAt is preserved.
func (s *Store) UpdateNotifications(ctx context.Context, patch models.NotificationSettingsPatch) (models.NotificationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := *s.state.Load()
	ns := patch.Apply(prev.Notifications)
	if err := ns.Validate(); err != nil {
		return models.NotificationSettings{}, err
	}

	if err := storage.SaveJSON(ctx, s.kv, storage.KeyNotificationSettings, ns); err != nil {
		return models.NotificationSettings{}, fmt.Errorf("persist notification settings: %w", err)
	}
	next := prev
	next.Notifications = ns
	s.state.Store(&next)

	s.logger.Info("notification settings updated",
		zap.Bool("enabled", ns.Enabled),
		zap.String("channel", string(ns.Channel)),
		zap.Int("cooldown_minutes", ns.CooldownMinutes),
	)
	return ns, nil
}

// MarkNotified records the time of the latest dispatch. The in-memory value is
// updated even if persisting it fails.
func (s *Store) MarkNotified(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.state.Load()
	at = at.UTC()
	next.Notifications.LastNotifiedAt = &at
	s.state.Store(&next)

	if err := storage.SaveJSON(ctx, s.kv, storage.KeyNotificationSettings, next.Notifications); err != nil {
		return fmt.Errorf("persist last notified time: %w", err)
	}
	return nil
}
