package acquisition

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/history"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

// DefaultSummaryInterval is how often history summaries are recomputed.
const DefaultSummaryInterval = time.Minute

// SummaryFunc receives freshly computed summaries.
type SummaryFunc func(map[models.SensorType]history.Summary)

// SummaryRefresher periodically recomputes history summaries. It runs
// independently of the fetch loop.
type SummaryRefresher struct {
	history  *history.Buffer
	interval time.Duration
	logger   *zap.Logger

	latest atomic.Pointer[map[models.SensorType]history.Summary]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	subsMu sync.RWMutex
	subs   []SummaryFunc
}

// NewSummaryRefresher creates a refresher. interval <= 0 uses DefaultSummaryInterval.
func NewSummaryRefresher(hist *history.Buffer, interval time.Duration, logger *zap.Logger) *SummaryRefresher {
	if interval <= 0 {
		interval = DefaultSummaryInterval
	}
	return &SummaryRefresher{
		history:  hist,
		interval: interval,
		logger:   logger.Named("summary"),
	}
}

// Subscribe registers fn for every refresh.
func (r *SummaryRefresher) Subscribe(fn SummaryFunc) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.subs = append(r.subs, fn)
}

// Start launches the refresh loop and computes one summary immediately.
// Calling Start on a running refresher is a no-op.
func (r *SummaryRefresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	r.Refresh()
	go r.run(ctx, r.done)
}

// Stop ends the loop and waits for it. Safe to call more than once.
func (r *SummaryRefresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *SummaryRefresher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh()
		}
	}
}

// Refresh recomputes and publishes the summaries.
func (r *SummaryRefresher) Refresh() map[models.SensorType]history.Summary {
	sums := r.history.Summaries()
	r.latest.Store(&sums)

	r.subsMu.RLock()
	subs := r.subs
	r.subsMu.RUnlock()
	for _, fn := range subs {
		fn(sums)
	}

	r.logger.Debug("history summaries refreshed",
		zap.Int("temperature_points", sums[models.SensorTemperature].Count))
	return sums
}

// Latest returns the last computed summaries, computing them if none exist yet.
func (r *SummaryRefresher) Latest() map[models.SensorType]history.Summary {
	if p := r.latest.Load(); p != nil {
		return *p
	}
	return r.history.Summaries()
}
