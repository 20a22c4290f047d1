// Package main provides the nurserywatch CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/nurserywatch/internal/acquisition"
	"github.com/good-yellow-bee/nurserywatch/internal/alerting"
	"github.com/good-yellow-bee/nurserywatch/internal/api"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/internal/monitor"
	"github.com/good-yellow-bee/nurserywatch/internal/notifier"
	"github.com/good-yellow-bee/nurserywatch/internal/queue"
	"github.com/good-yellow-bee/nurserywatch/internal/settings"
	"github.com/good-yellow-bee/nurserywatch/internal/storage"
)

// Config represents the nurserywatch configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       storage.Config      `yaml:"storage"`
	Log           LogConfig           `yaml:"log"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Monitor       MonitorConfig       `yaml:"monitor"`
	Cloud         CloudConfig         `yaml:"cloud"`
	Thresholds    *models.Thresholds  `yaml:"thresholds"` // seeds thresholds; reloaded on change when monitor.watch_config is set
	Notifications NotificationsConfig `yaml:"notifications"`
	Channels      ChannelsConfig      `yaml:"channels"`
	Queue         QueueConfig         `yaml:"queue"`
	Verbose       bool                `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Address           string `yaml:"address"`             // HTTP listen address (default: :8080)
	TestRateLimit     int    `yaml:"test_rate_limit"`     // test notifications per client per minute (default: 6)
	TestRateBurst     int    `yaml:"test_rate_burst"`     // (default: 2)
	RequestTimeout    string `yaml:"request_timeout"`     // (default: 15s)
	StreamMaxDuration string `yaml:"stream_max_duration"` // (default: 30m)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Address serves metrics on a dedicated listener; empty serves /metrics on the API.
	Address string `yaml:"address"`
}

// MonitorConfig tunes acquisition and dispatch.
type MonitorConfig struct {
	HistoryCapacity   int    `yaml:"history_capacity"` // readings kept per sensor (default: 144)
	SummaryInterval   string `yaml:"summary_interval"` // (default: 1m)
	MaxFailures       int    `yaml:"max_failures"`     // consecutive failures before reporting (default: 3)
	FetchTimeout      string `yaml:"fetch_timeout"`    // (default: 10s)
	DeliveryTimeout   string `yaml:"delivery_timeout"` // (default: 30s)
	PerSensorCooldown bool   `yaml:"per_sensor_cooldown"`
	WatchConfig       bool   `yaml:"watch_config"`
}

// CloudConfig seeds the data-source settings.
type CloudConfig struct {
	Endpoint          string `yaml:"endpoint"`
	DeviceID          string `yaml:"device_id"`
	APIKey            string `yaml:"api_key"`
	RefreshIntervalMS int64  `yaml:"refresh_interval_ms"`
}

// NotificationsConfig seeds the notification settings.
type NotificationsConfig struct {
	Enabled         bool                  `yaml:"enabled"`
	Channel         string                `yaml:"channel"`
	Contact         string                `yaml:"contact"`
	CooldownMinutes *int                  `yaml:"cooldown_minutes"`
	Sensors         *models.SensorToggles `yaml:"sensors"`
}

// ChannelsConfig configures the external delivery channels.
type ChannelsConfig struct {
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
	Email     EmailChannelConfig `yaml:"email"`
	SMS       SMSChannelConfig   `yaml:"sms"`
	Push      PushChannelConfig  `yaml:"push"`
}

// RateLimitConfig bounds deliveries per channel.
type RateLimitConfig struct {
	Disabled  bool `yaml:"disabled"`
	PerMinute int  `yaml:"per_minute"`
	Burst     int  `yaml:"burst"`
}

// EmailChannelConfig contains SMTP settings.
type EmailChannelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// SMSChannelConfig contains SMS gateway settings.
type SMSChannelConfig struct {
	Enabled    bool   `yaml:"enabled"`
	GatewayURL string `yaml:"gateway_url"`
	APIKey     string `yaml:"api_key"`
	From       string `yaml:"from"`
	Timeout    string `yaml:"timeout"`
}

// PushChannelConfig contains MQTT push settings.
type PushChannelConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Broker         string `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	Topic          string `yaml:"topic"`
	QoS            int    `yaml:"qos"`
	Permission     string `yaml:"permission"` // initial permission: default, granted, denied
	GrantOnRequest bool   `yaml:"grant_on_request"`
}

// QueueConfig controls in-app notification auto-dismiss.
type QueueConfig struct {
	BaseDelay  string `yaml:"base_delay"` // (default: 5s)
	Stagger    string `yaml:"stagger"`    // (default: 1s)
	MaxVisible int    `yaml:"max_visible"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = storage.DriverSQLite
	}
	if c.Storage.Driver == storage.DriverSQLite && c.Storage.Path == "" {
		c.Storage.Path = "./data/nurserywatch.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Cloud.Endpoint == "" {
		c.Cloud.Endpoint = models.DefaultEndpoint
	}
	if c.Cloud.DeviceID == "" {
		c.Cloud.DeviceID = models.DefaultDeviceID
	}
	if c.Cloud.RefreshIntervalMS == 0 {
		c.Cloud.RefreshIntervalMS = models.DefaultRefreshInterval.Milliseconds()
	}
	if c.Notifications.Channel == "" {
		c.Notifications.Channel = string(models.ChannelApp)
	}
	if c.Channels.Push.Topic == "" {
		c.Channels.Push.Topic = "nurserywatch/alerts"
	}
	if c.Channels.Push.ClientID == "" {
		c.Channels.Push.ClientID = "nurserywatch"
	}
	if c.Channels.Email.Port == 0 {
		c.Channels.Email.Port = 587
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	durations := map[string]string{
		"server.request_timeout":     c.Server.RequestTimeout,
		"server.stream_max_duration": c.Server.StreamMaxDuration,
		"monitor.summary_interval":   c.Monitor.SummaryInterval,
		"monitor.fetch_timeout":      c.Monitor.FetchTimeout,
		"monitor.delivery_timeout":   c.Monitor.DeliveryTimeout,
		"channels.sms.timeout":       c.Channels.SMS.Timeout,
		"queue.base_delay":           c.Queue.BaseDelay,
		"queue.stagger":              c.Queue.Stagger,
	}
	for field, v := range durations {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}

	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverMemory:
	case storage.DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	case storage.DriverRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for redis")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}

	if c.Monitor.HistoryCapacity < 0 {
		return fmt.Errorf("monitor.history_capacity must not be negative")
	}

	defaults := c.SettingsDefaults()
	if err := defaults.Cloud.Validate(); err != nil {
		return err
	}
	if err := defaults.Thresholds.Validate(); err != nil {
		return err
	}
	if err := defaults.Notifications.Validate(); err != nil {
		return err
	}

	if c.Channels.Email.Enabled {
		email := c.emailConfig()
		if err := email.Validate(); err != nil {
			return fmt.Errorf("channels.email: %w", err)
		}
	}
	if c.Channels.SMS.Enabled {
		sms := c.smsConfig()
		if err := sms.Validate(); err != nil {
			return fmt.Errorf("channels.sms: %w", err)
		}
	}
	if c.Channels.Push.Enabled {
		if c.Channels.Push.Broker == "" {
			return fmt.Errorf("channels.push.broker is required when push is enabled")
		}
		if c.Channels.Push.QoS < 0 || c.Channels.Push.QoS > 2 {
			return fmt.Errorf("channels.push.qos must be 0, 1 or 2")
		}
		switch models.Permission(c.Channels.Push.Permission) {
		case "", models.PermissionDefault, models.PermissionGranted, models.PermissionDenied:
		default:
			return fmt.Errorf("channels.push.permission %q is not valid", c.Channels.Push.Permission)
		}
	}
	return nil
}

// parseDuration treats an empty string as unset.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}

func mustDuration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}

// SettingsDefaults returns the values used until settings are persisted.
func (c *Config) SettingsDefaults() settings.Defaults {
	d := settings.FactoryDefaults()

	d.Cloud = models.CloudConfig{
		Endpoint:          c.Cloud.Endpoint,
		DeviceID:          c.Cloud.DeviceID,
		APIKey:            c.Cloud.APIKey,
		RefreshIntervalMS: c.Cloud.RefreshIntervalMS,
	}
	if c.Thresholds != nil {
		d.Thresholds = *c.Thresholds
	}

	n := c.Notifications
	d.Notifications.Enabled = n.Enabled
	d.Notifications.Channel = models.Channel(n.Channel)
	d.Notifications.Contact = n.Contact
	if n.CooldownMinutes != nil {
		d.Notifications.CooldownMinutes = *n.CooldownMinutes
	}
	if n.Sensors != nil {
		d.Notifications.Sensors = *n.Sensors
	}
	return d
}

// monitorConfig converts the file settings to component configuration.
func (c *Config) monitorConfig() monitor.Config {
	mc := monitor.DefaultConfig()
	if c.Monitor.HistoryCapacity > 0 {
		mc.HistoryCapacity = c.Monitor.HistoryCapacity
	}
	if d := mustDuration(c.Monitor.SummaryInterval); d > 0 {
		mc.SummaryInterval = d
	}

	mc.Scheduler = acquisition.Config{
		MaxFailures:  c.Monitor.MaxFailures,
		FetchTimeout: mustDuration(c.Monitor.FetchTimeout),
	}
	mc.Engine = alerting.Options{
		PerSensorCooldown: c.Monitor.PerSensorCooldown,
		DeliveryTimeout:   mustDuration(c.Monitor.DeliveryTimeout),
	}

	mc.Queue = queue.DefaultConfig()
	if d := mustDuration(c.Queue.BaseDelay); d > 0 {
		mc.Queue.BaseDelay = d
	}
	if c.Queue.Stagger != "" {
		mc.Queue.Stagger = mustDuration(c.Queue.Stagger)
	}
	if c.Queue.MaxVisible > 0 {
		mc.Queue.MaxVisible = c.Queue.MaxVisible
	}
	return mc
}

func (c *Config) rateLimitConfig() notifier.RateLimitConfig {
	return notifier.RateLimitConfig{
		PerMinute: c.Channels.RateLimit.PerMinute,
		Burst:     c.Channels.RateLimit.Burst,
		Enabled:   !c.Channels.RateLimit.Disabled,
	}
}

func (c *Config) emailConfig() notifier.EmailConfig {
	e := c.Channels.Email
	return notifier.EmailConfig{
		Host:     e.Host,
		Port:     e.Port,
		Username: e.Username,
		Password: e.Password,
		From:     e.From,
	}
}

func (c *Config) smsConfig() notifier.SMSConfig {
	s := c.Channels.SMS
	return notifier.SMSConfig{
		GatewayURL: s.GatewayURL,
		APIKey:     s.APIKey,
		From:       s.From,
		Timeout:    mustDuration(s.Timeout),
	}
}

func (c *Config) pushConfig() notifier.PushConfig {
	p := c.Channels.Push
	return notifier.PushConfig{
		Topic:          p.Topic,
		QoS:            byte(p.QoS),
		Permission:     models.Permission(p.Permission),
		GrantOnRequest: p.GrantOnRequest,
	}
}

func (c *Config) mqttConfig() notifier.MQTTConfig {
	p := c.Channels.Push
	return notifier.MQTTConfig{
		Broker:   p.Broker,
		ClientID: p.ClientID,
		Username: p.Username,
		Password: p.Password,
	}
}

func (c *Config) apiConfig() *api.Config {
	cfg := &api.Config{
		Address:           c.Server.Address,
		TestRateLimit:     c.Server.TestRateLimit,
		TestRateBurst:     c.Server.TestRateBurst,
		RequestTimeout:    mustDuration(c.Server.RequestTimeout),
		StreamMaxDuration: mustDuration(c.Server.StreamMaxDuration),
		MetricsEnabled:    c.Metrics.Enabled && c.Metrics.Address == "",
		Verbose:           c.Verbose,
	}
	cfg.SetDefaults()
	return cfg
}
