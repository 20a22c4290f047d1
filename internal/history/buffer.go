// Package history keeps a bounded per-sensor record of recent readings.
package history

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

// DefaultCapacity is the number of readings retained per sensor.
const DefaultCapacity = 144

// NotAvailable is the display value of an empty statistic.
const NotAvailable = "N/A"

// ring is a fixed-size FIFO that overwrites the oldest element when full.
type ring struct {
	items []models.SensorReading
	head  int // index of the oldest element
	size  int
}

func newRing(capacity int) *ring {
	return &ring{items: make([]models.SensorReading, capacity)}
}

// push appends r and reports whether an old reading was evicted.
func (q *ring) push(r models.SensorReading) bool {
	capacity := len(q.items)
	if q.size < capacity {
		q.items[(q.head+q.size)%capacity] = r
		q.size++
		return false
	}
	q.items[q.head] = r
	q.head = (q.head + 1) % capacity
	return true
}

func (q *ring) slice() []models.SensorReading {
	out := make([]models.SensorReading, q.size)
	for i := 0; i < q.size; i++ {
		out[i] = q.items[(q.head+i)%len(q.items)]
	}
	return out
}

func (q *ring) reset() {
	q.head = 0
	q.size = 0
}

// Buffer holds one ring per sensor. It is safe for concurrent use;
// readers always receive copies.
type Buffer struct {
	capacity int

	mu    sync.RWMutex
	rings map[models.SensorType]*ring

	appended atomic.Int64
	evicted  atomic.Int64
}

// NewBuffer creates a buffer retaining capacity readings per sensor.
// A non-positive capacity selects DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		capacity: capacity,
		rings:    make(map[models.SensorType]*ring, len(models.AllSensors)),
	}
	for _, s := range models.AllSensors {
		b.rings[s] = newRing(capacity)
	}
	return b
}

// Capacity returns the per-sensor capacity.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Append pushes all three readings of a snapshot.
func (b *Buffer) Append(snap models.SensorSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range models.AllSensors {
		b.push(s, snap.Reading(s))
	}
}

// AppendReading pushes a single reading for one sensor.
func (b *Buffer) AppendReading(sensor models.SensorType, r models.SensorReading) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.push(sensor, r)
}

func (b *Buffer) push(sensor models.SensorType, r models.SensorReading) {
	q, ok := b.rings[sensor]
	if !ok {
		return
	}
	b.appended.Add(1)
	if q.push(r) {
		b.evicted.Add(1)
	}
}

// Reset clears every sensor atomically.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, q := range b.rings {
		q.reset()
	}
}

// Readings returns the sensor's readings, oldest first.
func (b *Buffer) Readings(sensor models.SensorType) []models.SensorReading {
	b.mu.RLock()
	defer b.mu.RUnlock()

	q, ok := b.rings[sensor]
	if !ok {
		return nil
	}
	return q.slice()
}

// All returns a copy of every sensor's readings.
func (b *Buffer) All() map[models.SensorType][]models.SensorReading {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[models.SensorType][]models.SensorReading, len(b.rings))
	for s, q := range b.rings {
		out[s] = q.slice()
	}
	return out
}

// Len returns the number of readings held for the sensor.
func (b *Buffer) Len(sensor models.SensorType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if q, ok := b.rings[sensor]; ok {
		return q.size
	}
	return 0
}

// Summary aggregates a sensor's retained readings.
// Average and Max are nil when no readings are held.
type Summary struct {
	Sensor     models.SensorType `json:"sensor"`
	Count      int               `json:"count"`
	Average    *float64          `json:"average"`
	Max        *float64          `json:"max"`
	AlertCount int               `json:"alert_count"`
}

// AverageText formats the average to one decimal, or N/A.
func (s Summary) AverageText() string {
	return formatStat(s.Average)
}

// MaxText formats the maximum to one decimal, or N/A.
func (s Summary) MaxText() string {
	return formatStat(s.Max)
}

func formatStat(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

// Summary computes the aggregate statistics for one sensor.
func (b *Buffer) Summary(sensor models.SensorType) Summary {
	return summarize(sensor, b.Readings(sensor))
}

// Summaries computes statistics for every sensor.
func (b *Buffer) Summaries() map[models.SensorType]Summary {
	all := b.All()
	out := make(map[models.SensorType]Summary, len(all))
	for s, readings := range all {
		out[s] = summarize(s, readings)
	}
	return out
}

func summarize(sensor models.SensorType, readings []models.SensorReading) Summary {
	sum := Summary{Sensor: sensor, Count: len(readings)}
	if len(readings) == 0 {
		return sum
	}

	total := 0.0
	maxVal := readings[0].Value
	for _, r := range readings {
		total += r.Value
		if r.Value > maxVal {
			maxVal = r.Value
		}
		if r.IsAlert {
			sum.AlertCount++
		}
	}
	avg := total / float64(len(readings))
	sum.Average = &avg
	sum.Max = &maxVal
	return sum
}

// Stats contains buffer counters.
type Stats struct {
	Appended int64 `json:"appended"`
	Evicted  int64 `json:"evicted"`
}

// Stats returns buffer counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Appended: b.appended.Load(),
		Evicted:  b.evicted.Load(),
	}
}
