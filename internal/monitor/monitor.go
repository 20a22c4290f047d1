// Package monitor assembles the nursery monitor from its components and
// keeps them consistent when the data-source configuration changes.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/acquisition"
	"github.com/good-yellow-bee/nurserywatch/internal/alerting"
	"github.com/good-yellow-bee/nurserywatch/internal/history"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/internal/notifier"
	"github.com/good-yellow-bee/nurserywatch/internal/queue"
	"github.com/good-yellow-bee/nurserywatch/internal/settings"
	"github.com/good-yellow-bee/nurserywatch/internal/storage"
)

// Config tunes the assembled components.
type Config struct {
	HistoryCapacity int
	SummaryInterval time.Duration
	Scheduler       acquisition.Config
	Queue           queue.Config
	Engine          alerting.Options
	// WatchBuffer is the per-watcher channel size for live updates.
	WatchBuffer int
}

// DefaultConfig returns the default component configuration.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity: history.DefaultCapacity,
		SummaryInterval: acquisition.DefaultSummaryInterval,
		Scheduler:       acquisition.DefaultConfig(),
		Queue:           queue.DefaultConfig(),
		Engine:          *alerting.DefaultOptions(),
		WatchBuffer:     8,
	}
}

// Monitor owns every runtime component. Fields are read-only after New.
type Monitor struct {
	Settings  *settings.Store
	History   *history.Buffer
	Scheduler *acquisition.Scheduler
	Summaries *acquisition.SummaryRefresher
	Engine    *alerting.Engine
	Queue     *queue.Queue
	Registry  *notifier.Registry
	Audit     *alerting.AuditLog

	kv     storage.Store
	cfg    Config
	logger *zap.Logger

	watchMu  sync.Mutex
	watchers map[chan acquisition.Update]struct{}
}

// New wires the components together. kv may be nil for an in-memory monitor.
func New(cfg Config, kv storage.Store, st *settings.Store, fetcher acquisition.Fetcher, registry *notifier.Registry, logger *zap.Logger) (*Monitor, error) {
	if st == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("notifier registry is required")
	}
	if cfg.WatchBuffer <= 0 {
		cfg.WatchBuffer = DefaultConfig().WatchBuffer
	}

	m := &Monitor{
		Settings: st,
		History:  history.NewBuffer(cfg.HistoryCapacity),
		Queue:    queue.New(cfg.Queue, nil),
		Registry: registry,
		Audit:    alerting.NewAuditLog(kv, logger),
		kv:       kv,
		cfg:      cfg,
		logger:   logger.Named("monitor"),
		watchers: make(map[chan acquisition.Update]struct{}),
	}

	engineOpts := cfg.Engine
	m.Engine = alerting.NewEngine(st, registry, m.Queue, m.Audit, logger, &engineOpts)
	m.Scheduler = acquisition.NewScheduler(cfg.Scheduler, fetcher, st, m.History, m.Engine, logger)
	m.Summaries = acquisition.NewSummaryRefresher(m.History, cfg.SummaryInterval, logger)

	m.Scheduler.Subscribe(m.broadcast)
	st.OnCloudConfigChange(m.onCloudChange)

	return m, nil
}

// Load restores persisted settings and the notification log.
func (m *Monitor) Load(ctx context.Context) error {
	if err := m.Settings.Load(ctx); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := m.Audit.Load(ctx); err != nil {
		return fmt.Errorf("load notification log: %w", err)
	}
	return nil
}

// Start begins polling at the configured refresh interval and starts the
// summary refresher.
func (m *Monitor) Start(ctx context.Context) error {
	cloud := m.Settings.CloudConfig()
	if err := m.Scheduler.Start(ctx, cloud.RefreshInterval()); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	m.Summaries.Start(ctx)

	m.logger.Info("monitor started",
		zap.String("endpoint", cloud.Endpoint),
		zap.String("device_id", cloud.DeviceID),
		zap.Duration("interval", cloud.RefreshInterval()),
	)
	return nil
}

// Stop halts polling and waits for in-flight work.
func (m *Monitor) Stop() {
	m.Scheduler.Stop()
	m.Summaries.Stop()

	m.watchMu.Lock()
	for ch := range m.watchers {
		delete(m.watchers, ch)
		close(ch)
	}
	m.watchMu.Unlock()
}

// Close stops the monitor and releases the queue, channels and storage.
func (m *Monitor) Close() error {
	m.Stop()
	m.Queue.Close()

	var errs []error
	if err := m.Registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close notifiers: %w", err))
	}
	if m.kv != nil {
		if err := m.kv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Ping checks the storage backend.
func (m *Monitor) Ping(ctx context.Context) error {
	if m.kv == nil {
		return nil
	}
	return m.kv.Ping(ctx)
}

// Snapshot returns the latest published snapshot. Before the first fetch
// completes it returns a disconnected zero snapshot.
func (m *Monitor) Snapshot() acquisition.Update {
	if u, ok := m.Scheduler.Latest(); ok {
		return u
	}
	var snap models.SensorSnapshot
	return acquisition.Update{Snapshot: snap.WithStatus(models.StatusDisconnected)}
}

// Refresh fetches immediately outside the regular schedule.
func (m *Monitor) Refresh(ctx context.Context) (acquisition.Update, error) {
	return m.Scheduler.FetchNow(ctx)
}

// Watch streams updates until ctx is done or the monitor stops.
// Slow receivers miss updates rather than blocking the fetch loop.
func (m *Monitor) Watch(ctx context.Context) <-chan acquisition.Update {
	ch := make(chan acquisition.Update, m.cfg.WatchBuffer)

	m.watchMu.Lock()
	m.watchers[ch] = struct{}{}
	m.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		m.watchMu.Lock()
		defer m.watchMu.Unlock()
		if _, ok := m.watchers[ch]; ok {
			delete(m.watchers, ch)
			close(ch)
		}
	}()
	return ch
}

func (m *Monitor) broadcast(u acquisition.Update) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	for ch := range m.watchers {
		select {
		case ch <- u:
		default:
			m.logger.Debug("watcher lagging, update dropped")
		}
	}
}

// onCloudChange runs under the settings writer lock.
func (m *Monitor) onCloudChange(old, updated models.CloudConfig) {
	if old.Endpoint != updated.Endpoint || old.DeviceID != updated.DeviceID {
		m.Scheduler.ResetSource(m.History.Reset)
		m.Engine.ResetCooldowns()
		m.logger.Info("data source changed, history cleared",
			zap.String("endpoint", updated.Endpoint),
			zap.String("device_id", updated.DeviceID),
		)
	}

	if old.RefreshInterval() != updated.RefreshInterval() {
		err := m.Scheduler.Reconfigure(updated.RefreshInterval())
		switch {
		case errors.Is(err, acquisition.ErrNotRunning):
		case err != nil:
			m.logger.Error("reconfigure scheduler", zap.Error(err))
		}
	}
}
