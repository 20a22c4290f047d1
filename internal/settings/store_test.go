package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/internal/storage"
)

// failingStore fails every write.
type failingStore struct {
	*storage.MemoryStore
}

func (f *failingStore) Put(ctx context.Context, key string, value []byte) error {
	return errors.New("disk full")
}

func newTestStore(t *testing.T) (*Store, *storage.MemoryStore) {
	kv := storage.NewMemoryStore()
	s := New(kv, FactoryDefaults(), zap.NewNop())
	require.NoError(t, s.Load(context.Background()))
	return s, kv
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	s, _ := newTestStore(t)

	assert.Equal(t, models.DefaultThresholds(), s.Thresholds())
	assert.Equal(t, models.DefaultCloudConfig(), s.CloudConfig())
	assert.Equal(t, models.DefaultNotificationSettings(), s.Notifications())
}

func TestLoadPersistedValues(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()

	th := models.DefaultThresholds()
	th.Sound.Max = 70
	require.NoError(t, storage.SaveJSON(ctx, kv, storage.KeyThresholds, th))

	// invalid entries are ignored
	bad := models.DefaultCloudConfig()
	bad.RefreshIntervalMS = 10
	require.NoError(t, storage.SaveJSON(ctx, kv, storage.KeyCloudConfig, bad))

	s := New(kv, FactoryDefaults(), zap.NewNop())
	require.NoError(t, s.Load(ctx))

	assert.Equal(t, 70.0, s.Thresholds().Sound.Max)
	assert.Equal(t, models.DefaultCloudConfig(), s.CloudConfig())
}

func TestLoadCorruptEntry(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Put(ctx, storage.KeyThresholds, []byte("{not json")))

	s := New(kv, FactoryDefaults(), zap.NewNop())
	assert.Error(t, s.Load(ctx))
	assert.Equal(t, models.DefaultThresholds(), s.Thresholds())
}

func TestUpdateThresholdsWritesThrough(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()

	th := models.DefaultThresholds()
	th.Temperature = models.Range{Min: 19, Max: 26}
	_, err := s.UpdateThresholds(ctx, th)
	require.NoError(t, err)

	assert.Equal(t, th, s.Thresholds())

	var persisted models.Thresholds
	found, err := storage.LoadJSON(ctx, kv, storage.KeyThresholds, &persisted)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, th, persisted)
}

func TestUpdateThresholdsRejectsInvalid(t *testing.T) {
	s, _ := newTestStore(t)

	th := models.DefaultThresholds()
	th.Humidity = models.Range{Min: 60, Max: 30}
	_, err := s.UpdateThresholds(context.Background(), th)

	assert.ErrorIs(t, err, models.ErrInvalidConfig)
	assert.Equal(t, models.DefaultThresholds(), s.Thresholds(), "prior thresholds stay in effect")
}

func TestResetThresholds(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	th := models.DefaultThresholds()
	th.Sound.Max = 80
	_, err := s.UpdateThresholds(ctx, th)
	require.NoError(t, err)

	got, err := s.ResetThresholds(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultThresholds(), got)
}

func TestUpdateCloudConfigNotifiesOnChange(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var calls []models.CloudConfig
	s.OnCloudConfigChange(func(old, updated models.CloudConfig) {
		calls = append(calls, updated)
	})

	endpoint := "http://192.168.1.20/readings"
	cfg, err := s.UpdateCloudConfig(ctx, models.CloudConfigPatch{Endpoint: &endpoint})
	require.NoError(t, err)
	assert.Equal(t, endpoint, cfg.Endpoint)
	assert.Equal(t, models.DefaultDeviceID, cfg.DeviceID)

	// unchanged patch does not notify
	_, err = s.UpdateCloudConfig(ctx, models.CloudConfigPatch{Endpoint: &endpoint})
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Equal(t, endpoint, calls[0].Endpoint)
}

func TestUpdateCloudConfigRejectsShortInterval(t *testing.T) {
	s, _ := newTestStore(t)

	var called bool
	s.OnCloudConfigChange(func(old, updated models.CloudConfig) { called = true })

	interval := int64(500)
	_, err := s.UpdateCloudConfig(context.Background(), models.CloudConfigPatch{RefreshIntervalMS: &interval})

	assert.ErrorIs(t, err, models.ErrInvalidConfig)
	assert.False(t, called)
	assert.Equal(t, models.DefaultCloudConfig(), s.CloudConfig())
}

func TestUpdateNotifications(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	channel := models.ChannelEmail
	_, err := s.UpdateNotifications(ctx, models.NotificationSettingsPatch{Channel: &channel})
	assert.ErrorIs(t, err, models.ErrInvalidConfig, "email without contact is rejected")

	contact := "parent@example.com"
	enabled := true
	ns, err := s.UpdateNotifications(ctx, models.NotificationSettingsPatch{
		Enabled: &enabled,
		Channel: &channel,
		Contact: &contact,
	})
	require.NoError(t, err)
	assert.True(t, ns.Enabled)
	assert.Equal(t, models.ChannelEmail, s.Notifications().Channel)
	assert.Equal(t, contact, s.Notifications().Contact)
}

func TestMarkNotifiedKeptOnPersistFailure(t *testing.T) {
	kv := &failingStore{MemoryStore: storage.NewMemoryStore()}
	s := New(kv, FactoryDefaults(), zap.NewNop())

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	err := s.MarkNotified(context.Background(), at)

	assert.Error(t, err)
	require.NotNil(t, s.Notifications().LastNotifiedAt)
	assert.True(t, s.Notifications().LastNotifiedAt.Equal(at))
}

func TestUpdateFailsWhenPersistFails(t *testing.T) {
	kv := &failingStore{MemoryStore: storage.NewMemoryStore()}
	s := New(kv, FactoryDefaults(), zap.NewNop())

	th := models.DefaultThresholds()
	th.Sound.Max = 65
	_, err := s.UpdateThresholds(context.Background(), th)

	assert.Error(t, err)
	assert.Equal(t, 50.0, s.Thresholds().Sound.Max)
}

func TestConcurrentReadersSeeWholeState(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			th := s.Thresholds()
			if th.Temperature.Min >= th.Temperature.Max {
				t.Error("observed a torn threshold update")
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		th := models.DefaultThresholds()
		th.Temperature = models.Range{Min: float64(10 + i%5), Max: float64(30 + i%5)}
		_, err := s.UpdateThresholds(ctx, th)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}
