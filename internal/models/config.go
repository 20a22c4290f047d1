package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError describes a rejected configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets callers match validation failures with errors.Is(err, ErrInvalidConfig).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Range is an inclusive safe band; values strictly outside it are alerts.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Limit is an upper-only bound.
type Limit struct {
	Max float64 `json:"max" yaml:"max"`
}

// Thresholds holds the safe bands for all sensors.
type Thresholds struct {
	Temperature Range `json:"temperature" yaml:"temperature"`
	Humidity    Range `json:"humidity" yaml:"humidity"`
	Sound       Limit `json:"sound" yaml:"sound"`
}

// DefaultThresholds returns the factory thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Temperature: Range{Min: 18, Max: 30},
		Humidity:    Range{Min: 30, Max: 60},
		Sound:       Limit{Max: 50},
	}
}

// Validate checks that every band is well formed.
func (t *Thresholds) Validate() error {
	if t.Temperature.Min >= t.Temperature.Max {
		return invalid("thresholds.temperature", "min (%g) must be below max (%g)", t.Temperature.Min, t.Temperature.Max)
	}
	if t.Humidity.Min >= t.Humidity.Max {
		return invalid("thresholds.humidity", "min (%g) must be below max (%g)", t.Humidity.Min, t.Humidity.Max)
	}
	if t.Humidity.Min < 0 || t.Humidity.Max > 100 {
		return invalid("thresholds.humidity", "must be within 0-100")
	}
	if t.Sound.Max <= 0 {
		return invalid("thresholds.sound.max", "must be positive")
	}
	return nil
}

// Accepted polling interval bounds.
const (
	MinRefreshInterval = time.Second
	MaxRefreshInterval = 24 * time.Hour
)

// Default cloud settings.
const (
	DefaultDeviceID        = "baby-monitor-01"
	DefaultEndpoint        = "https://baby-monitoring-server.onrender.com/readings"
	DefaultRefreshInterval = 5 * time.Second
)

// CloudConfig describes how to reach the data source.
type CloudConfig struct {
	Endpoint          string `json:"endpoint"`
	DeviceID          string `json:"device_id"`
	APIKey            string `json:"api_key,omitempty"`
	RefreshIntervalMS int64  `json:"refresh_interval_ms"`
}

// DefaultCloudConfig returns the factory data-source settings.
func DefaultCloudConfig() CloudConfig {
	return CloudConfig{
		Endpoint:          DefaultEndpoint,
		DeviceID:          DefaultDeviceID,
		RefreshIntervalMS: DefaultRefreshInterval.Milliseconds(),
	}
}

// RefreshInterval returns the polling interval as a duration.
func (c *CloudConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMS) * time.Millisecond
}

// Validate checks the endpoint URL, device id and interval.
func (c *CloudConfig) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return invalid("cloud.endpoint", "%q is not a valid http(s) URL", c.Endpoint)
	}
	if strings.TrimSpace(c.DeviceID) == "" {
		return invalid("cloud.device_id", "is required")
	}
	if c.RefreshIntervalMS < MinRefreshInterval.Milliseconds() {
		return invalid("cloud.refresh_interval_ms", "must be at least %d", MinRefreshInterval.Milliseconds())
	}
	if c.RefreshIntervalMS > MaxRefreshInterval.Milliseconds() {
		return invalid("cloud.refresh_interval_ms", "must be at most %d", MaxRefreshInterval.Milliseconds())
	}
	return nil
}

// CloudConfigPatch is a partial update; nil fields are left unchanged.
type CloudConfigPatch struct {
	Endpoint          *string `json:"endpoint,omitempty"`
	DeviceID          *string `json:"device_id,omitempty"`
	APIKey            *string `json:"api_key,omitempty"`
	RefreshIntervalMS *int64  `json:"refresh_interval_ms,omitempty"`
}

// Apply returns a copy of cfg with the patch merged in.
func (p *CloudConfigPatch) Apply(cfg CloudConfig) CloudConfig {
	if p.Endpoint != nil {
		cfg.Endpoint = strings.TrimSpace(*p.Endpoint)
	}
	if p.DeviceID != nil {
		cfg.DeviceID = strings.TrimSpace(*p.DeviceID)
	}
	if p.APIKey != nil {
		cfg.APIKey = *p.APIKey
	}
	if p.RefreshIntervalMS != nil {
		cfg.RefreshIntervalMS = *p.RefreshIntervalMS
	}
	return cfg
}

// SensorToggles enables notifications per sensor.
type SensorToggles struct {
	Temperature bool `json:"temperature" yaml:"temperature"`
	Humidity    bool `json:"humidity" yaml:"humidity"`
	Sound       bool `json:"sound" yaml:"sound"`
}

// Enabled reports whether notifications are on for the sensor.
func (t SensorToggles) Enabled(sensor SensorType) bool {
	switch sensor {
	case SensorTemperature:
		return t.Temperature
	case SensorHumidity:
		return t.Humidity
	case SensorSound:
		return t.Sound
	default:
		return false
	}
}

// MaxCooldownMinutes caps the cooldown at one week.
const MaxCooldownMinutes = 7 * 24 * 60

// NotificationSettings controls alert dispatch.
type NotificationSettings struct {
	Enabled         bool          `json:"enabled"`
	Channel         Channel       `json:"channel"`
	Sensors         SensorToggles `json:"sensors"`
	Contact         string        `json:"contact"`
	CooldownMinutes int           `json:"cooldown_minutes"`
	LastNotifiedAt  *time.Time    `json:"last_notified_at,omitempty"`
}

// DefaultNotificationSettings returns the factory notification settings.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled:         false,
		Channel:         ChannelApp,
		Sensors:         SensorToggles{Temperature: true, Humidity: true, Sound: true},
		CooldownMinutes: 1,
	}
}

// Cooldown returns the minimum gap between two dispatches.
func (n *NotificationSettings) Cooldown() time.Duration {
	return time.Duration(n.CooldownMinutes) * time.Minute
}

// Validate checks channel, contact and cooldown.
func (n *NotificationSettings) Validate() error {
	if !n.Channel.IsValid() {
		return invalid("notifications.channel", "unknown channel %q", n.Channel)
	}
	if n.Channel.RequiresContact() && strings.TrimSpace(n.Contact) == "" {
		return invalid("notifications.contact", "is required for %s notifications", n.Channel)
	}
	if n.Channel == ChannelEmail && !strings.Contains(n.Contact, "@") {
		return invalid("notifications.contact", "%q is not an email address", n.Contact)
	}
	if n.CooldownMinutes < 0 {
		return invalid("notifications.cooldown_minutes", "must not be negative")
	}
	if n.CooldownMinutes > MaxCooldownMinutes {
		return invalid("notifications.cooldown_minutes", "must be at most %d", MaxCooldownMinutes)
	}
	return nil
}

// NotificationSettingsPatch is a partial update; nil fields are left unchanged.
type NotificationSettingsPatch struct {
	Enabled         *bool          `json:"enabled,omitempty"`
	Channel         *Channel       `json:"channel,omitempty"`
	Sensors         *SensorToggles `json:"sensors,omitempty"`
	Contact         *string        `json:"contact,omitempty"`
	CooldownMinutes *int           `json:"cooldown_minutes,omitempty"`
}

// Apply returns a copy of s with the patch merged in.
func (p *NotificationSettingsPatch) Apply(s NotificationSettings) NotificationSettings {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.Channel != nil {
		s.Channel = *p.Channel
	}
	if p.Sensors != nil {
		s.Sensors = *p.Sensors
	}
	if p.Contact != nil {
		s.Contact = strings.TrimSpace(*p.Contact)
	}
	if p.CooldownMinutes != nil {
		s.CooldownMinutes = *p.CooldownMinutes
	}
	return s
}
