package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

type fakeTimer struct {
	delay   time.Duration
	fire    func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	was := !f.stopped
	f.stopped = true
	return was
}

// fakeClock records every scheduled timer.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, fire: f}
	c.timers = append(c.timers, t)
	return t
}

// active returns timers that have not been stopped.
func (c *fakeClock) active() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

func newTestQueue() (*Queue, *fakeClock) {
	clock := &fakeClock{}
	q := New(DefaultConfig(), clock.AfterFunc)
	q.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return q, clock
}

func push(q *Queue, msg string) models.ActiveNotification {
	return q.Push(models.ActiveNotification{Sensor: models.SensorTemperature, Message: msg})
}

func TestPushPrependsAndAssignsID(t *testing.T) {
	q, _ := newTestQueue()

	first := push(q, "first")
	second := push(q, "second")

	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Fatalf("ids not assigned uniquely: %q %q", first.ID, second.ID)
	}
	list := q.List()
	if len(list) != 2 || list[0].Message != "second" || list[1].Message != "first" {
		t.Errorf("list = %+v, want newest first", list)
	}
}

func TestStaggeredAutoDismiss(t *testing.T) {
	q, clock := newTestQueue()

	push(q, "a")
	push(q, "b")
	push(q, "c")

	active := clock.active()
	if len(active) != 3 {
		t.Fatalf("active timers = %d, want 3", len(active))
	}

	want := []time.Duration{5000 * time.Millisecond, 6000 * time.Millisecond, 7000 * time.Millisecond}
	for i, tm := range active {
		if tm.delay != want[i] {
			t.Errorf("timer %d delay = %v, want %v", i, tm.delay, want[i])
		}
	}

	list := q.List()
	base := q.now()
	for i, n := range list {
		if n.DismissAt == nil || !n.DismissAt.Equal(base.Add(want[i])) {
			t.Errorf("entry %d DismissAt = %v, want %v", i, n.DismissAt, base.Add(want[i]))
		}
	}
}

func TestEntriesBeyondMaxVisibleWait(t *testing.T) {
	q, clock := newTestQueue()

	for _, m := range []string{"a", "b", "c", "d"} {
		push(q, m)
	}

	if n := len(clock.active()); n != 3 {
		t.Fatalf("active timers = %d, want 3", n)
	}
	list := q.List()
	if list[3].Message != "a" || list[3].DismissAt != nil {
		t.Errorf("oldest entry should have no deadline: %+v", list[3])
	}
	if got := len(q.Visible()); got != 3 {
		t.Errorf("visible = %d, want 3", got)
	}

	// expiring the newest promotes the oldest
	clock.active()[0].fire()

	if q.Len() != 3 {
		t.Fatalf("len = %d, want 3", q.Len())
	}
	list = q.List()
	if list[0].Message != "c" || list[2].Message != "a" || list[2].DismissAt == nil {
		t.Errorf("unexpected list after expiry: %+v", list)
	}
}

func TestDismissByID(t *testing.T) {
	q, clock := newTestQueue()

	a := push(q, "a")
	push(q, "b")

	if !q.Dismiss(a.ID) {
		t.Fatal("Dismiss returned false")
	}
	if q.Dismiss(a.ID) {
		t.Error("second Dismiss should return false")
	}
	if q.Len() != 1 || q.List()[0].Message != "b" {
		t.Errorf("list = %+v", q.List())
	}
	if n := len(clock.active()); n != 1 {
		t.Errorf("active timers = %d, want 1", n)
	}
}

func TestStaleTimerIgnored(t *testing.T) {
	q, clock := newTestQueue()

	a := push(q, "a")
	stale := clock.active()[0]
	push(q, "b") // reschedules a

	stale.fire()

	found := false
	for _, n := range q.List() {
		if n.ID == a.ID {
			found = true
		}
	}
	if !found {
		t.Error("a stale timer must not dismiss a rescheduled entry")
	}
}

func TestCloseStopsTimers(t *testing.T) {
	q, clock := newTestQueue()
	push(q, "a")
	push(q, "b")

	q.Close()

	if q.Len() != 0 {
		t.Errorf("len = %d after close", q.Len())
	}
	if n := len(clock.active()); n != 0 {
		t.Errorf("active timers = %d after close", n)
	}
}

func TestRealTimerExpiry(t *testing.T) {
	q := New(Config{BaseDelay: 20 * time.Millisecond, Stagger: 10 * time.Millisecond, MaxVisible: 3}, nil)
	defer q.Close()

	push(q, "a")

	deadline := time.Now().Add(2 * time.Second)
	for q.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if q.Len() != 0 {
		t.Error("entry was not auto-dismissed")
	}
}
