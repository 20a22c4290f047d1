// Package acquisition polls the data source on a reconfigurable interval and
// feeds every successful snapshot through history and alert dispatch.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/alerting"
	"github.com/good-yellow-bee/nurserywatch/internal/evaluator"
	"github.com/good-yellow-bee/nurserywatch/internal/history"
	"github.com/good-yellow-bee/nurserywatch/internal/metrics"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

var (
	// ErrFetchInFlight is returned by FetchNow while another fetch is outstanding.
	ErrFetchInFlight = errors.New("fetch already in flight")
	// ErrConnectivity is carried by updates once MaxFailures consecutive fetches failed.
	ErrConnectivity = errors.New("data source unreachable")
	// ErrAlreadyRunning is returned by Start on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler already running")
	// ErrNotRunning is returned by Reconfigure on a stopped scheduler.
	ErrNotRunning = errors.New("scheduler not running")
	// ErrSourceChanged is returned when the endpoint or device changed while
	// the fetch was in flight. The sample is discarded.
	ErrSourceChanged = errors.New("data source changed during fetch")
)

// Fetcher retrieves one raw sample from the data source.
type Fetcher interface {
	Fetch(ctx context.Context, cfg models.CloudConfig) (models.RawSample, error)
}

// ConfigSource provides the settings read on every fetch.
type ConfigSource interface {
	CloudConfig() models.CloudConfig
	Thresholds() models.Thresholds
}

// Processor consumes successful snapshots.
type Processor interface {
	Process(ctx context.Context, snap models.SensorSnapshot) alerting.Result
}

// Update is published after every fetch attempt.
type Update struct {
	Snapshot models.SensorSnapshot
	// Err is ErrConnectivity-wrapped once MaxFailures consecutive fetches failed.
	Err      error
	Failures int
	At       time.Time
}

// UpdateFunc receives fetch updates.
type UpdateFunc func(Update)

// Config configures the scheduler.
type Config struct {
	MaxFailures  int           // consecutive failures before ErrConnectivity (default: 3)
	FetchTimeout time.Duration // timeout for a single fetch (default: 10s)
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		MaxFailures:  3,
		FetchTimeout: 10 * time.Second,
	}
}

// Scheduler runs the periodic fetch loop.
type Scheduler struct {
	config    Config
	fetcher   Fetcher
	settings  ConfigSource
	history   *history.Buffer
	processor Processor
	logger    *zap.Logger
	now       func() time.Time

	busy     atomic.Bool
	failures atomic.Int32
	lastGood atomic.Pointer[models.SensorSnapshot]
	latest   atomic.Pointer[Update]

	// stopMu is held for the whole of Stop so Start cannot reuse the
	// wait groups while Stop is waiting on them.
	stopMu sync.Mutex
	// sourceMu orders applying a sample against ResetSource.
	sourceMu sync.Mutex

	mu         sync.Mutex
	running    bool
	interval   time.Duration
	runCtx     context.Context
	runCancel  context.CancelFunc
	loopCancel context.CancelFunc
	loops      sync.WaitGroup
	fetches    sync.WaitGroup

	subsMu sync.RWMutex
	subs   []UpdateFunc
}

// NewScheduler creates a scheduler. processor may be nil.
func NewScheduler(config Config, fetcher Fetcher, settings ConfigSource, hist *history.Buffer, processor Processor, logger *zap.Logger) *Scheduler {
	def := DefaultConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = def.MaxFailures
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = def.FetchTimeout
	}
	return &Scheduler{
		config:    config,
		fetcher:   fetcher,
		settings:  settings,
		history:   hist,
		processor: processor,
		logger:    logger.Named("acquisition"),
		now:       time.Now,
	}
}

// Subscribe registers fn for every update. Callbacks run on the fetch goroutine.
func (s *Scheduler) Subscribe(fn UpdateFunc) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

// Start begins periodic fetching and runs one fetch immediately.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if err := validInterval(interval); err != nil {
		return err
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.startLoopLocked(interval, true)

	s.logger.Info("scheduler started", zap.Duration("interval", interval))
	return nil
}

// Reconfigure restarts the ticker loop with a new interval. An in-flight fetch
// is not cancelled.
func (s *Scheduler) Reconfigure(interval time.Duration) error {
	if err := validInterval(interval); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}
	if interval == s.interval {
		return nil
	}
	s.loopCancel()
	s.startLoopLocked(interval, false)

	s.logger.Info("scheduler reconfigured", zap.Duration("interval", interval))
	return nil
}

// Stop cancels all loops and waits for in-flight fetches. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.runCancel()
	s.mu.Unlock()

	s.loops.Wait()
	s.fetches.Wait()
	s.logger.Info("scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Interval returns the active polling interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func validInterval(d time.Duration) error {
	if d < models.MinRefreshInterval {
		return &models.ValidationError{Field: "refresh_interval", Message: fmt.Sprintf("must be at least %s", models.MinRefreshInterval)}
	}
	return nil
}

// startLoopLocked must be called with s.mu held.
func (s *Scheduler) startLoopLocked(interval time.Duration, immediate bool) {
	loopCtx, cancel := context.WithCancel(s.runCtx)
	s.loopCancel = cancel
	s.interval = interval

	s.loops.Add(1)
	go s.loop(loopCtx, s.runCtx, interval, immediate)
}

// loop ticks until loopCtx is done. Fetches run on runCtx so that a
// reconfiguration leaves them alone.
func (s *Scheduler) loop(loopCtx, runCtx context.Context, interval time.Duration, immediate bool) {
	defer s.loops.Done()

	if immediate {
		s.trigger(runCtx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			s.trigger(runCtx)
		}
	}
}

// trigger starts a fetch unless one is outstanding.
func (s *Scheduler) trigger(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		metrics.TicksSkipped.Inc()
		s.logger.Debug("tick skipped, fetch in flight")
		return
	}
	s.fetches.Add(1)
	go func() {
		defer s.fetches.Done()
		defer s.busy.Store(false)
		_, _ = s.fetch(ctx)
	}()
}

// FetchNow runs a fetch synchronously.
func (s *Scheduler) FetchNow(ctx context.Context) (Update, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Update{}, ErrFetchInFlight
	}
	defer s.busy.Store(false)
	return s.fetch(ctx)
}

// Latest returns the most recent update, if any.
func (s *Scheduler) Latest() (Update, bool) {
	u := s.latest.Load()
	if u == nil {
		return Update{}, false
	}
	return *u, true
}

// Failures returns the consecutive failure count.
func (s *Scheduler) Failures() int {
	return int(s.failures.Load())
}

// Connected reports whether fewer than MaxFailures consecutive fetches failed.
func (s *Scheduler) Connected() bool {
	return s.Failures() < s.config.MaxFailures
}

// ResetSource forgets the last good snapshot and runs reset, if non-nil,
// after any sample that is being applied has landed. Call it after the new
// source config is visible to ConfigSource.
func (s *Scheduler) ResetSource(reset func()) {
	s.sourceMu.Lock()
	defer s.sourceMu.Unlock()

	s.lastGood.Store(nil)
	if reset != nil {
		reset()
	}
}

func sameSource(a, b models.CloudConfig) bool {
	return a.Endpoint == b.Endpoint && a.DeviceID == b.DeviceID
}

func (s *Scheduler) fetch(ctx context.Context) (Update, error) {
	cfg := s.settings.CloudConfig()

	fctx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	start := time.Now()
	sample, err := s.fetcher.Fetch(fctx, cfg)
	cancel()
	metrics.FetchDuration.Observe(time.Since(start).Seconds())

	now := s.now()
	if err != nil {
		if !sameSource(cfg, s.settings.CloudConfig()) {
			return s.discard(cfg, now)
		}
		return s.failed(cfg, now, err)
	}

	snap := evaluator.BuildSnapshot(sample, s.settings.Thresholds(), now)

	s.sourceMu.Lock()
	if !sameSource(cfg, s.settings.CloudConfig()) {
		s.sourceMu.Unlock()
		return s.discard(cfg, now)
	}
	s.lastGood.Store(&snap)
	if s.history != nil {
		s.history.Append(snap)
	}
	s.sourceMu.Unlock()

	if prev := s.failures.Swap(0); prev > 0 {
		s.logger.Info("data source recovered", zap.Int32("failures", prev))
	}
	metrics.FetchesTotal.WithLabelValues("success").Inc()
	metrics.ConsecutiveFailures.Set(0)
	s.observe(snap)

	if s.processor != nil {
		if res := s.processor.Process(ctx, snap); res.Err != nil {
			s.logger.Warn("alert dispatch reported an error",
				zap.String("outcome", string(res.Outcome)), zap.Error(res.Err))
		}
	}

	u := Update{Snapshot: snap, At: now}
	s.publish(u)
	return u, nil
}

func (s *Scheduler) failed(cfg models.CloudConfig, now time.Time, err error) (Update, error) {
	failures := int(s.failures.Add(1))
	metrics.FetchesTotal.WithLabelValues("error").Inc()
	metrics.ConsecutiveFailures.Set(float64(failures))

	var snap models.SensorSnapshot
	if last := s.lastGood.Load(); last != nil {
		snap = *last
	}
	snap = snap.WithStatus(models.StatusDisconnected)

	u := Update{Snapshot: snap, Failures: failures, At: now}
	if failures >= s.config.MaxFailures {
		u.Err = fmt.Errorf("%w after %d attempts: %v", ErrConnectivity, failures, err)
		s.logger.Error("data source unreachable",
			zap.String("endpoint", cfg.Endpoint),
			zap.Int("failures", failures),
			zap.Error(err),
		)
	} else {
		s.logger.Warn("fetch failed",
			zap.String("endpoint", cfg.Endpoint),
			zap.Int("failures", failures),
			zap.Error(err),
		)
	}

	s.publish(u)
	return u, fmt.Errorf("fetch sensor data: %w", err)
}

// discard drops the result of a fetch issued against a previous source.
// Nothing is published and the failure count is left alone.
func (s *Scheduler) discard(cfg models.CloudConfig, now time.Time) (Update, error) {
	metrics.FetchesTotal.WithLabelValues("discarded").Inc()
	s.logger.Info("discarding sample from previous data source",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("device_id", cfg.DeviceID),
	)
	var snap models.SensorSnapshot
	return Update{Snapshot: snap.WithStatus(models.StatusDisconnected), At: now}, ErrSourceChanged
}

func (s *Scheduler) observe(snap models.SensorSnapshot) {
	for _, sensor := range models.AllSensors {
		r := snap.Reading(sensor)
		metrics.SensorValue.WithLabelValues(string(sensor)).Set(r.Value)
		alert := 0.0
		if r.IsAlert {
			alert = 1
		}
		metrics.SensorAlert.WithLabelValues(string(sensor)).Set(alert)
		if s.history != nil {
			metrics.HistoryPoints.WithLabelValues(string(sensor)).Set(float64(s.history.Len(sensor)))
		}
	}
}

func (s *Scheduler) publish(u Update) {
	s.latest.Store(&u)

	s.subsMu.RLock()
	subs := s.subs
	s.subsMu.RUnlock()

	for _, fn := range subs {
		fn(u)
	}
}
