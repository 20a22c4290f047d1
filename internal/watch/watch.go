// Package watch re-applies threshold settings when the configuration file changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

// ErrNoThresholds is returned when the file has no thresholds section.
var ErrNoThresholds = errors.New("no thresholds section")

// ThresholdApplier receives reloaded thresholds.
type ThresholdApplier interface {
	UpdateThresholds(ctx context.Context, th models.Thresholds) (models.Thresholds, error)
}

// Options configures the watcher.
type Options struct {
	// Debounce collapses bursts of write events from editors.
	Debounce time.Duration
	// PollInterval is the modification-time fallback when events are missed.
	PollInterval time.Duration
}

// DefaultOptions returns default watcher options.
func DefaultOptions() *Options {
	return &Options{
		Debounce:     250 * time.Millisecond,
		PollInterval: 10 * time.Second,
	}
}

// Watcher applies the thresholds section of a YAML file whenever it changes.
type Watcher struct {
	path    string
	applier ThresholdApplier
	opts    Options
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	modTime time.Time

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// New creates a watcher for the given file.
func New(path string, applier ThresholdApplier, opts *Options, logger *zap.Logger) (*Watcher, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	def := DefaultOptions()
	o := *opts
	if o.Debounce <= 0 {
		o.Debounce = def.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		path:    absPath,
		applier: applier,
		opts:    o,
		logger:  logger.Named("watch"),
		watcher: watcher,
		done:    make(chan struct{}),
	}
	if info, err := os.Stat(absPath); err == nil {
		w.modTime = info.ModTime()
	}
	return w, nil
}

// Start watches the file's directory so that editors replacing the file are
// noticed too.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	go w.run(ctx)
	w.logger.Info("watching configuration", zap.String("path", w.path))
	return nil
}

// Stop stops watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				debounce = time.After(w.opts.Debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-debounce:
			debounce = nil
			w.reload(ctx)
		case <-ticker.C:
			if w.changedOnDisk() {
				w.reload(ctx)
			}
		}
	}
}

func (w *Watcher) changedOnDisk() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	return !info.ModTime().Equal(w.modTime)
}

// reload errors are logged; the previous thresholds stay in effect.
func (w *Watcher) reload(ctx context.Context) {
	if info, err := os.Stat(w.path); err == nil {
		w.modTime = info.ModTime()
	}

	th, err := ReadThresholds(w.path)
	if errors.Is(err, ErrNoThresholds) {
		return
	}
	if err != nil {
		w.logger.Warn("failed to read thresholds", zap.String("path", w.path), zap.Error(err))
		return
	}

	applied, err := w.applier.UpdateThresholds(ctx, th)
	if err != nil {
		w.logger.Warn("rejected reloaded thresholds", zap.Error(err))
		return
	}
	w.logger.Info("thresholds reloaded",
		zap.Float64("temperature_min", applied.Temperature.Min),
		zap.Float64("temperature_max", applied.Temperature.Max),
		zap.Float64("humidity_min", applied.Humidity.Min),
		zap.Float64("humidity_max", applied.Humidity.Max),
		zap.Float64("sound_max", applied.Sound.Max),
	)
}

// ReadThresholds parses the thresholds section of a YAML configuration file.
func ReadThresholds(path string) (models.Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Thresholds{}, fmt.Errorf("read config: %w", err)
	}

	var doc struct {
		Thresholds *models.Thresholds `yaml:"thresholds"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return models.Thresholds{}, fmt.Errorf("parse config: %w", err)
	}
	if doc.Thresholds == nil {
		return models.Thresholds{}, ErrNoThresholds
	}
	return *doc.Thresholds, nil
}
