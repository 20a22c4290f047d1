package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/acquisition"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/internal/notifier"
	"github.com/good-yellow-bee/nurserywatch/internal/settings"
	"github.com/good-yellow-bee/nurserywatch/internal/storage"
)

type stubFetcher struct {
	mu     sync.Mutex
	sample models.RawSample
	err    error
	// gate, when set, holds each fetch until it is closed.
	gate    chan struct{}
	started chan models.CloudConfig
}

func (f *stubFetcher) Fetch(ctx context.Context, cfg models.CloudConfig) (models.RawSample, error) {
	f.mu.Lock()
	sample, err, gate, started := f.sample, f.err, f.gate, f.started
	f.mu.Unlock()

	if started != nil {
		started <- cfg
	}
	if gate != nil {
		<-gate
	}
	return sample, err
}

func (f *stubFetcher) set(sample models.RawSample, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sample, f.err = sample, err
}

func newTestMonitor(t *testing.T, f *stubFetcher) *Monitor {
	t.Helper()
	logger := zap.NewNop()
	kv := storage.NewMemoryStore()
	st := settings.New(kv, settings.FactoryDefaults(), logger)

	registry := notifier.NewRegistry(notifier.DefaultRateLimitConfig())
	registry.Register(notifier.NewAppNotifier(logger, nil))

	m, err := New(DefaultConfig(), kv, st, f, registry, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewRequiresDependencies(t *testing.T) {
	logger := zap.NewNop()
	st := settings.New(storage.NewMemoryStore(), settings.FactoryDefaults(), logger)
	registry := notifier.NewRegistry(notifier.DefaultRateLimitConfig())

	tests := []struct {
		name     string
		st       *settings.Store
		fetcher  *stubFetcher
		registry *notifier.Registry
	}{
		{"no settings", nil, &stubFetcher{}, registry},
		{"no registry", st, &stubFetcher{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(DefaultConfig(), nil, tt.st, tt.fetcher, tt.registry, logger); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSnapshotBeforeFirstFetch(t *testing.T) {
	m := newTestMonitor(t, &stubFetcher{})

	u := m.Snapshot()
	if u.Snapshot.ConnectionStatus != models.StatusDisconnected {
		t.Errorf("status = %q, want disconnected", u.Snapshot.ConnectionStatus)
	}
	if u.Snapshot.Temperature.Value != 0 {
		t.Errorf("temperature = %v, want 0", u.Snapshot.Temperature.Value)
	}
}

func TestRefreshDispatchesAlert(t *testing.T) {
	ctx := context.Background()
	f := &stubFetcher{sample: models.RawSample{Temperature: 31.5, Humidity: 50, Sound: 40}}
	m := newTestMonitor(t, f)

	enabled := true
	if _, err := m.Settings.UpdateNotifications(ctx, models.NotificationSettingsPatch{Enabled: &enabled}); err != nil {
		t.Fatalf("UpdateNotifications() error = %v", err)
	}

	u, err := m.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !u.Snapshot.Temperature.IsAlert {
		t.Error("temperature should be flagged")
	}
	if got := m.History.Len(models.SensorTemperature); got != 1 {
		t.Errorf("history len = %d, want 1", got)
	}

	logs := m.Engine.Logs()
	if len(logs) != 1 {
		t.Fatalf("log entries = %d, want 1", len(logs))
	}
	if logs[0].Channel != models.ChannelApp || !logs[0].Delivered {
		t.Errorf("log entry = %+v", logs[0])
	}
	if m.Queue.Len() != 1 {
		t.Errorf("active notifications = %d, want 1", m.Queue.Len())
	}
}

func TestEndpointChangeClearsHistory(t *testing.T) {
	ctx := context.Background()
	f := &stubFetcher{sample: models.RawSample{Temperature: 22, Humidity: 50, Sound: 30}}
	m := newTestMonitor(t, f)

	for i := 0; i < 3; i++ {
		if _, err := m.Refresh(ctx); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
	}
	if got := m.History.Len(models.SensorHumidity); got != 3 {
		t.Fatalf("history len = %d, want 3", got)
	}

	// Changing only the API key keeps history.
	key := "secret"
	if _, err := m.Settings.UpdateCloudConfig(ctx, models.CloudConfigPatch{APIKey: &key}); err != nil {
		t.Fatalf("UpdateCloudConfig() error = %v", err)
	}
	if got := m.History.Len(models.SensorHumidity); got != 3 {
		t.Fatalf("history len after key change = %d, want 3", got)
	}

	endpoint := "https://example.com/readings"
	if _, err := m.Settings.UpdateCloudConfig(ctx, models.CloudConfigPatch{Endpoint: &endpoint}); err != nil {
		t.Fatalf("UpdateCloudConfig() error = %v", err)
	}
	for _, sensor := range models.AllSensors {
		if got := m.History.Len(sensor); got != 0 {
			t.Errorf("%s history len = %d, want 0", sensor, got)
		}
	}

	// A failure after the reset reports a zero snapshot, not stale values.
	f.set(models.RawSample{}, errors.New("boom"))
	u, _ := m.Refresh(ctx)
	if u.Snapshot.Humidity.Value != 0 {
		t.Errorf("humidity = %v, want 0 after reset", u.Snapshot.Humidity.Value)
	}
}

func TestIntervalChangeReconfiguresScheduler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := newTestMonitor(t, &stubFetcher{sample: models.RawSample{Temperature: 22}})
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	if got := m.Scheduler.Interval(); got != models.DefaultRefreshInterval {
		t.Fatalf("interval = %v, want %v", got, models.DefaultRefreshInterval)
	}

	ms := int64(2000)
	if _, err := m.Settings.UpdateCloudConfig(ctx, models.CloudConfigPatch{RefreshIntervalMS: &ms}); err != nil {
		t.Fatalf("UpdateCloudConfig() error = %v", err)
	}
	if got := m.Scheduler.Interval(); got != 2*time.Second {
		t.Errorf("interval = %v, want 2s", got)
	}

	bad := int64(500)
	if _, err := m.Settings.UpdateCloudConfig(ctx, models.CloudConfigPatch{RefreshIntervalMS: &bad}); !errors.Is(err, models.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
	if got := m.Scheduler.Interval(); got != 2*time.Second {
		t.Errorf("interval after rejected update = %v, want 2s", got)
	}
}

func TestWatchReceivesUpdates(t *testing.T) {
	m := newTestMonitor(t, &stubFetcher{sample: models.RawSample{Temperature: 24, Humidity: 45, Sound: 35}})

	ctx, cancel := context.WithCancel(context.Background())
	updates := m.Watch(ctx)

	if _, err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	select {
	case u := <-updates:
		if u.Snapshot.Temperature.Value != 24 {
			t.Errorf("temperature = %v, want 24", u.Snapshot.Temperature.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}

	cancel()
	select {
	case _, ok := <-updates:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}

func TestEndpointChangeDuringFetchDiscardsSample(t *testing.T) {
	ctx := context.Background()
	f := &stubFetcher{
		sample:  models.RawSample{Temperature: 99, Humidity: 50, Sound: 30},
		gate:    make(chan struct{}),
		started: make(chan models.CloudConfig, 1),
	}
	m := newTestMonitor(t, f)

	enabled := true
	if _, err := m.Settings.UpdateNotifications(ctx, models.NotificationSettingsPatch{Enabled: &enabled}); err != nil {
		t.Fatalf("UpdateNotifications() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Refresh(ctx)
		errCh <- err
	}()

	issued := <-f.started
	endpoint := "https://new.example.com/readings"
	if _, err := m.Settings.UpdateCloudConfig(ctx, models.CloudConfigPatch{Endpoint: &endpoint}); err != nil {
		t.Fatalf("UpdateCloudConfig() error = %v", err)
	}
	if issued.Endpoint == endpoint {
		t.Fatalf("fetch was issued against the new endpoint")
	}
	close(f.gate)

	if err := <-errCh; !errors.Is(err, acquisition.ErrSourceChanged) {
		t.Fatalf("Refresh() error = %v, want ErrSourceChanged", err)
	}
	for _, sensor := range models.AllSensors {
		if got := m.History.Len(sensor); got != 0 {
			t.Errorf("%s history len = %d, want 0", sensor, got)
		}
	}
	if got := m.Snapshot().Snapshot.Temperature.Value; got != 0 {
		t.Errorf("snapshot temperature = %v, want 0", got)
	}
	if got := len(m.Engine.Logs()); got != 0 {
		t.Errorf("log entries = %d, want 0", got)
	}
	if got := m.Scheduler.Failures(); got != 0 {
		t.Errorf("failures = %d, want 0", got)
	}
}
