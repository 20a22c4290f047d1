package acquisition

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/history"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

func TestSummaryRefresher(t *testing.T) {
	hist := history.NewBuffer(10)
	now := time.Now()
	for _, v := range []float64{20, 22, 31} {
		hist.AppendReading(models.SensorTemperature, models.SensorReading{Value: v, Timestamp: now, IsAlert: v > 30})
	}

	r := NewSummaryRefresher(hist, time.Hour, zap.NewNop())

	var mu sync.Mutex
	var calls int
	r.Subscribe(func(map[models.SensorType]history.Summary) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	r.Start(context.Background())
	r.Start(context.Background())
	defer r.Stop()

	sums := r.Latest()
	temp := sums[models.SensorTemperature]
	if temp.Count != 3 || temp.AlertCount != 1 {
		t.Errorf("unexpected summary: %+v", temp)
	}
	if temp.MaxText() != "31.0" {
		t.Errorf("MaxText() = %q", temp.MaxText())
	}
	if sums[models.SensorSound].AverageText() != history.NotAvailable {
		t.Errorf("empty sensor should be N/A, got %q", sums[models.SensorSound].AverageText())
	}

	mu.Lock()
	if calls != 1 {
		t.Errorf("expected one immediate refresh, got %d", calls)
	}
	mu.Unlock()

	r.Stop()
	r.Stop()
}
