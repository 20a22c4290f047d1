// Package queue holds the transient stack of in-app notifications.
//
// Entries are kept newest first. Every visible entry (rank below MaxVisible)
// carries its own dismissal timer of BaseDelay + rank*Stagger, recomputed on
// each push or dismissal. Entries beyond MaxVisible wait without a timer until
// they are promoted.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/nurserywatch/internal/metrics"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

// Timer is the subset of *time.Timer the queue needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config controls auto-dismiss timing.
type Config struct {
	BaseDelay  time.Duration
	Stagger    time.Duration
	MaxVisible int
}

// DefaultConfig returns 5s base delay, 1s stagger and 3 visible entries.
func DefaultConfig() Config {
	return Config{
		BaseDelay:  5 * time.Second,
		Stagger:    time.Second,
		MaxVisible: 3,
	}
}

type entry struct {
	n     models.ActiveNotification
	timer Timer
	gen   uint64
}

// Queue is safe for concurrent use.
type Queue struct {
	cfg       Config
	afterFunc AfterFunc
	now       func() time.Time

	mu      sync.Mutex
	entries []*entry
	gen     uint64
}

// New creates a queue. A nil afterFunc uses time.AfterFunc.
func New(cfg Config, afterFunc AfterFunc) *Queue {
	def := DefaultConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Stagger < 0 {
		cfg.Stagger = def.Stagger
	}
	if cfg.MaxVisible <= 0 {
		cfg.MaxVisible = def.MaxVisible
	}
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Queue{
		cfg:       cfg,
		afterFunc: afterFunc,
		now:       time.Now,
	}
}

// Push prepends n, assigning an id and creation time when missing.
func (q *Queue) Push(n models.ActiveNotification) models.ActiveNotification {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = q.now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	e := &entry{n: n}
	q.entries = append([]*entry{e}, q.entries...)
	q.reschedule()
	return e.n
}

// Dismiss removes the entry with the given id.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.remove(id, 0)
}

// expire is the timer callback; gen guards against a stale timer that fired
// after being replaced.
func (q *Queue) expire(id string, gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.remove(id, gen)
}

func (q *Queue) remove(id string, gen uint64) bool {
	for i, e := range q.entries {
		if e.n.ID != id {
			continue
		}
		if gen != 0 && e.gen != gen {
			return false
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		q.reschedule()
		return true
	}
	return false
}

// reschedule must be called with mu held.
func (q *Queue) reschedule() {
	now := q.now()
	for rank, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		q.gen++
		e.gen = q.gen
		if rank >= q.cfg.MaxVisible {
			e.n.DismissAt = nil
			continue
		}

		delay := q.cfg.BaseDelay + time.Duration(rank)*q.cfg.Stagger
		deadline := now.Add(delay)
		e.n.DismissAt = &deadline

		id, gen := e.n.ID, e.gen
		e.timer = q.afterFunc(delay, func() { q.expire(id, gen) })
	}
	metrics.ActiveNotifications.Set(float64(len(q.entries)))
}

// List returns all entries, newest first.
func (q *Queue) List() []models.ActiveNotification {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.ActiveNotification, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.n
	}
	return out
}

// Visible returns the entries currently eligible for display.
func (q *Queue) Visible() []models.ActiveNotification {
	all := q.List()
	if len(all) > q.cfg.MaxVisible {
		all = all[:q.cfg.MaxVisible]
	}
	return all
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear removes every entry and stops all timers.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	q.entries = nil
	metrics.ActiveNotifications.Set(0)
}

// Close stops all timers. The queue is empty afterwards.
func (q *Queue) Close() {
	q.Clear()
}
