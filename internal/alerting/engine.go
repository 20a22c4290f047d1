// Package alerting gates alerting snapshots through a cooldown and routes them
// to the configured notification channel.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/metrics"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/internal/notifier"
	"github.com/good-yellow-bee/nurserywatch/internal/queue"
)

var (
	// ErrNoChannel is returned when a test is requested for channel "none".
	ErrNoChannel = errors.New("no notification channel selected")
	// ErrNotificationsDisabled is returned by Trigger when notifications are off.
	ErrNotificationsDisabled = errors.New("notifications are disabled")
)

// State is the engine's processing state.
type State int32

// Engine states.
const (
	StateIdle State = iota
	StateEvaluating
	StateSuppressed
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	case StateSuppressed:
		return "suppressed"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// Outcome is the result of processing one snapshot.
type Outcome string

// Outcomes.
const (
	OutcomeSkipped    Outcome = "skipped"
	OutcomeNoAlert    Outcome = "no_alert"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeDispatched Outcome = "dispatched"
)

// Result describes what Process did.
type Result struct {
	Outcome Outcome
	Alerts  []notifier.AlertDetail
	Entries []models.NotificationLogEntry
	Err     error
}

// SettingsSource provides the configuration the engine reads on every cycle.
type SettingsSource interface {
	Thresholds() models.Thresholds
	Notifications() models.NotificationSettings
	MarkNotified(ctx context.Context, at time.Time) error
}

// Dispatcher delivers messages per channel.
type Dispatcher interface {
	Deliver(ctx context.Context, ch models.Channel, msg *notifier.Message) error
	Permission(ch models.Channel) models.Permission
}

// ManualAlert is a caller-supplied alert dispatched without the cooldown gate.
type ManualAlert struct {
	Sensor    models.SensorType `json:"sensor"`
	Value     float64           `json:"value"`
	Threshold float64           `json:"threshold"`
	Direction models.Direction  `json:"direction,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// Options configures the engine.
type Options struct {
	// PerSensorCooldown gates each sensor independently instead of the shared
	// LastNotifiedAt gate.
	PerSensorCooldown bool
	// DeliveryTimeout bounds a single delivery.
	DeliveryTimeout time.Duration
}

// DefaultOptions returns default engine options.
func DefaultOptions() *Options {
	return &Options{
		DeliveryTimeout: 30 * time.Second,
	}
}

// Engine is the cooldown-gated dispatch engine.
type Engine struct {
	// mu serializes processing cycles.
	mu sync.Mutex

	settings   SettingsSource
	dispatcher Dispatcher
	queue      *queue.Queue
	audit      *AuditLog
	cooldown   *CooldownManager
	opts       Options
	logger     *zap.Logger

	state atomic.Int32
	stats *EngineStats
}

// EngineStats tracks engine statistics using atomic operations for lock-free access.
type EngineStats struct {
	SnapshotsProcessed atomic.Int64
	AlertCycles        atomic.Int64
	Dispatched         atomic.Int64
	Suppressed         atomic.Int64
	DeliveryFailures   atomic.Int64
	TestsSent          atomic.Int64
	ManualTriggers     atomic.Int64
}

// NewEngine creates a dispatch engine.
func NewEngine(settings SettingsSource, dispatcher Dispatcher, q *queue.Queue, audit *AuditLog, logger *zap.Logger, opts *Options) *Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = DefaultOptions().DeliveryTimeout
	}
	return &Engine{
		settings:   settings,
		dispatcher: dispatcher,
		queue:      q,
		audit:      audit,
		cooldown:   NewCooldownManager(),
		opts:       o,
		logger:     logger.Named("alerting"),
		stats:      &EngineStats{},
	}
}

// State returns the current processing state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Process evaluates a snapshot against the current notification settings.
func (e *Engine) Process(ctx context.Context, snap models.SensorSnapshot) Result {
	return e.ProcessAt(ctx, snap, time.Now())
}

// ProcessAt processes a snapshot at a specific time (useful for testing).
func (e *Engine) ProcessAt(ctx context.Context, snap models.SensorSnapshot, now time.Time) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.setState(StateIdle)

	e.stats.SnapshotsProcessed.Add(1)

	ns := e.settings.Notifications()
	if !ns.Enabled || ns.Channel == models.ChannelNone {
		return Result{Outcome: OutcomeSkipped}
	}

	e.setState(StateEvaluating)
	alerts := collectAlerts(snap, ns.Sensors, e.settings.Thresholds())
	if len(alerts) == 0 {
		return Result{Outcome: OutcomeNoAlert}
	}
	e.stats.AlertCycles.Add(1)

	alerts = e.gate(alerts, ns, now)
	if len(alerts) == 0 {
		e.setState(StateSuppressed)
		e.stats.Suppressed.Add(1)
		metrics.AlertsSuppressed.Inc()
		e.logger.Debug("alert suppressed by cooldown",
			zap.Int("cooldown_minutes", ns.CooldownMinutes))
		return Result{Outcome: OutcomeSuppressed}
	}

	e.setState(StateDispatching)
	msg := &notifier.Message{
		Title:     composeTitle(alerts),
		Body:      composeBody(alerts),
		Contact:   ns.Contact,
		Alerts:    alerts,
		Timestamp: now,
	}
	entries, err := e.dispatch(ctx, ns.Channel, msg)

	if err := e.settings.MarkNotified(context.WithoutCancel(ctx), now); err != nil {
		e.logger.Warn("failed to record notification time", zap.Error(err))
	}
	if e.opts.PerSensorCooldown {
		for _, a := range alerts {
			e.cooldown.SetCooldown(a.Sensor, ns.Cooldown(), now)
		}
	}
	e.stats.Dispatched.Add(1)

	return Result{Outcome: OutcomeDispatched, Alerts: alerts, Entries: entries, Err: err}
}

// gate drops alerts that are still on cooldown.
func (e *Engine) gate(alerts []notifier.AlertDetail, ns models.NotificationSettings, now time.Time) []notifier.AlertDetail {
	if e.opts.PerSensorCooldown {
		kept := alerts[:0:0]
		for _, a := range alerts {
			if !e.cooldown.IsOnCooldown(a.Sensor, now) {
				kept = append(kept, a)
			}
		}
		return kept
	}

	if ns.LastNotifiedAt != nil && now.Sub(*ns.LastNotifiedAt) < ns.Cooldown() {
		return nil
	}
	return alerts
}

// dispatch delivers msg once and records one audit entry per alert.
func (e *Engine) dispatch(ctx context.Context, ch models.Channel, msg *notifier.Message) ([]models.NotificationLogEntry, error) {
	// a started delivery outlives its caller
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.DeliveryTimeout)
	defer cancel()

	var (
		deliverErr error
		annotation string
	)

	effective := ch
	if ch == models.ChannelBrowser && e.dispatcher.Permission(ch) != models.PermissionGranted {
		effective = models.ChannelApp
		annotation = notifier.ErrPermissionRequired.Error() + "; delivered in-app"
		e.logger.Warn("browser notifications not permitted, falling back to in-app delivery")
	}

	if effective == models.ChannelApp {
		e.pushActive(ch, msg)
		err := e.dispatcher.Deliver(dctx, models.ChannelApp, msg)
		if err != nil && !errors.Is(err, notifier.ErrNotConfigured) {
			deliverErr = err
		}
	} else {
		deliverErr = e.dispatcher.Deliver(dctx, ch, msg)
	}

	metrics.AlertsDispatched.WithLabelValues(string(ch)).Inc()
	if deliverErr != nil {
		e.stats.DeliveryFailures.Add(1)
		metrics.DeliveryErrors.WithLabelValues(string(ch)).Inc()
	}

	entries := make([]models.NotificationLogEntry, 0, len(msg.Alerts))
	for _, a := range msg.Alerts {
		entry := models.NotificationLogEntry{
			ID:        uuid.New().String(),
			Timestamp: msg.Timestamp,
			Channel:   ch,
			Sensor:    a.Sensor,
			Value:     a.Value,
			Threshold: a.Threshold,
			Contact:   msg.Contact,
			Delivered: deliverErr == nil,
			Error:     annotation,
		}
		if deliverErr != nil {
			entry.Error = deliverErr.Error()
			e.logger.Warn("notification delivery failed",
				zap.String("channel", string(ch)),
				zap.String("sensor", string(a.Sensor)),
				zap.Float64("value", a.Value),
				zap.Float64("threshold", a.Threshold),
				zap.Error(deliverErr),
			)
		}
		entries = append(entries, entry)
	}

	if err := e.audit.Append(dctx, entries...); err != nil {
		e.logger.Warn("failed to persist audit entries", zap.Error(err))
	}

	if deliverErr == nil {
		e.logger.Info("notification dispatched",
			zap.String("channel", string(ch)),
			zap.Int("sensors", len(msg.Alerts)),
			zap.Bool("test", msg.Test),
		)
	}
	return entries, deliverErr
}

// pushActive adds one in-app entry per alerting sensor.
func (e *Engine) pushActive(ch models.Channel, msg *notifier.Message) {
	if e.queue == nil {
		return
	}
	for _, a := range msg.Alerts {
		text := fragment(a)
		if msg.Test {
			text = msg.Body
		}
		e.queue.Push(models.ActiveNotification{
			Sensor:    a.Sensor,
			Value:     a.Value,
			Threshold: a.Threshold,
			Channel:   ch,
			Message:   text,
			CreatedAt: msg.Timestamp,
		})
	}
}

// SendTest sends a sample notification through channel, or through the
// configured channel when channel is empty. Cooldown and alert detection are
// bypassed.
func (e *Engine) SendTest(ctx context.Context, channel models.Channel) error {
	ns := e.settings.Notifications()
	if channel == "" {
		channel = ns.Channel
	}
	if !channel.IsValid() {
		return fmt.Errorf("unknown channel %q: %w", channel, models.ErrInvalidConfig)
	}

	switch {
	case channel == models.ChannelNone:
		return ErrNoChannel
	case channel.RequiresContact() && ns.Contact == "":
		return notifier.ErrContactRequired
	case channel == models.ChannelBrowser && e.dispatcher.Permission(channel) != models.PermissionGranted:
		return notifier.ErrPermissionRequired
	}

	e.stats.TestsSent.Add(1)
	msg := &notifier.Message{
		Title:   testTitle,
		Body:    testBody,
		Contact: ns.Contact,
		Alerts: []notifier.AlertDetail{{
			Sensor:    models.SensorTemperature,
			Value:     25,
			Threshold: 30,
			Direction: models.DirectionNone,
		}},
		Timestamp: time.Now(),
		Test:      true,
	}
	_, err := e.dispatch(ctx, channel, msg)
	return err
}

// Trigger dispatches a manual alert through the configured channel without
// consulting the cooldown.
func (e *Engine) Trigger(ctx context.Context, alert ManualAlert) error {
	if !alert.Sensor.IsValid() {
		return fmt.Errorf("unknown sensor %q: %w", alert.Sensor, models.ErrInvalidConfig)
	}
	ns := e.settings.Notifications()
	if !ns.Enabled || ns.Channel == models.ChannelNone {
		return ErrNotificationsDisabled
	}

	dir := alert.Direction
	if dir == "" || dir == models.DirectionNone {
		dir = models.DirectionTooHigh
		if alert.Value < alert.Threshold {
			dir = models.DirectionTooLow
		}
	}
	detail := notifier.AlertDetail{
		Sensor:    alert.Sensor,
		Value:     alert.Value,
		Threshold: alert.Threshold,
		Direction: dir,
	}
	alerts := []notifier.AlertDetail{detail}

	body := alert.Message
	if body == "" {
		body = composeBody(alerts)
	}

	e.stats.ManualTriggers.Add(1)
	_, err := e.dispatch(ctx, ns.Channel, &notifier.Message{
		Title:     composeTitle(alerts),
		Body:      body,
		Contact:   ns.Contact,
		Alerts:    alerts,
		Timestamp: time.Now(),
	})
	return err
}

// Logs returns the audit log, newest first.
func (e *Engine) Logs() []models.NotificationLogEntry {
	return e.audit.List()
}

// ClearLogs empties the audit log and the active notification queue.
func (e *Engine) ClearLogs(ctx context.Context) error {
	if e.queue != nil {
		e.queue.Clear()
	}
	return e.audit.Clear(ctx)
}

// ActiveNotifications returns the in-app queue.
func (e *Engine) ActiveNotifications() []models.ActiveNotification {
	if e.queue == nil {
		return nil
	}
	return e.queue.List()
}

// Dismiss removes an in-app notification.
func (e *Engine) Dismiss(id string) bool {
	if e.queue == nil {
		return false
	}
	return e.queue.Dismiss(id)
}

// CooldownRemaining reports how long each sensor stays suppressed. With the
// shared gate every sensor reports the same value.
func (e *Engine) CooldownRemaining(now time.Time) map[models.SensorType]time.Duration {
	out := make(map[models.SensorType]time.Duration, len(models.AllSensors))
	if e.opts.PerSensorCooldown {
		for _, sensor := range models.AllSensors {
			out[sensor] = e.cooldown.Remaining(sensor, now)
		}
		return out
	}

	var remaining time.Duration
	ns := e.settings.Notifications()
	if ns.LastNotifiedAt != nil {
		remaining = ns.LastNotifiedAt.Add(ns.Cooldown()).Sub(now)
		if remaining < 0 {
			remaining = 0
		}
	}
	for _, sensor := range models.AllSensors {
		out[sensor] = remaining
	}
	return out
}

// ResetCooldowns clears per-sensor cooldowns.
func (e *Engine) ResetCooldowns() {
	e.cooldown.ClearAll()
}

// EngineStatsSnapshot is a snapshot of engine statistics for reporting.
type EngineStatsSnapshot struct {
	SnapshotsProcessed int64 `json:"snapshots_processed"`
	AlertCycles        int64 `json:"alert_cycles"`
	Dispatched         int64 `json:"dispatched"`
	Suppressed         int64 `json:"suppressed"`
	DeliveryFailures   int64 `json:"delivery_failures"`
	TestsSent          int64 `json:"tests_sent"`
	ManualTriggers     int64 `json:"manual_triggers"`
}

// Stats returns a snapshot of engine statistics.
func (e *Engine) Stats() EngineStatsSnapshot {
	return EngineStatsSnapshot{
		SnapshotsProcessed: e.stats.SnapshotsProcessed.Load(),
		AlertCycles:        e.stats.AlertCycles.Load(),
		Dispatched:         e.stats.Dispatched.Load(),
		Suppressed:         e.stats.Suppressed.Load(),
		DeliveryFailures:   e.stats.DeliveryFailures.Load(),
		TestsSent:          e.stats.TestsSent.Load(),
		ManualTriggers:     e.stats.ManualTriggers.Load(),
	}
}
