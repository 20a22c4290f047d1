package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

type pushPublished struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu     sync.Mutex
	msgs   []pushPublished
	err    error
	closed bool
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, pushPublished{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func TestPushConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  PushConfig
		wantErr bool
	}{
		{"missing topic", PushConfig{}, true},
		{"bad qos", PushConfig{Topic: "a", QoS: 3}, true},
		{"valid", PushConfig{Topic: "nursery/alerts", QoS: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPushNotifierRequiresPermission(t *testing.T) {
	pub := &fakePublisher{}
	n, err := NewPushNotifier(PushConfig{Topic: "nursery/alerts"}, pub, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPushNotifier failed: %v", err)
	}

	if err := n.Deliver(context.Background(), testMessage()); !errors.Is(err, ErrPermissionRequired) {
		t.Errorf("expected ErrPermissionRequired, got %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Error("nothing should be published without permission")
	}
}

func TestPushNotifierRequestPermission(t *testing.T) {
	pub := &fakePublisher{}
	n, err := NewPushNotifier(PushConfig{Topic: "nursery/alerts", GrantOnRequest: true}, pub, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPushNotifier failed: %v", err)
	}

	perm, err := n.RequestPermission(context.Background())
	if err != nil {
		t.Fatalf("RequestPermission failed: %v", err)
	}
	if perm != models.PermissionGranted {
		t.Errorf("permission = %s, want granted", perm)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].topic != "nursery/alerts/permission" {
		t.Errorf("unexpected permission request: %+v", pub.msgs)
	}

	// already decided, no new request
	if _, err := n.RequestPermission(context.Background()); err != nil {
		t.Fatalf("RequestPermission failed: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Errorf("expected no further requests, got %d", len(pub.msgs))
	}
}

func TestPushNotifierDeniedIsFinal(t *testing.T) {
	pub := &fakePublisher{}
	n, err := NewPushNotifier(PushConfig{Topic: "t", Permission: models.PermissionDenied, GrantOnRequest: true}, pub, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPushNotifier failed: %v", err)
	}
	perm, err := n.RequestPermission(context.Background())
	if err != nil {
		t.Fatalf("RequestPermission failed: %v", err)
	}
	if perm != models.PermissionDenied {
		t.Errorf("permission = %s, want denied", perm)
	}
}

func TestPushNotifierDeliver(t *testing.T) {
	pub := &fakePublisher{}
	n, err := NewPushNotifier(PushConfig{Topic: "nursery/alerts", Permission: models.PermissionGranted}, pub, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPushNotifier failed: %v", err)
	}

	if err := n.Deliver(context.Background(), testMessage()); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.msgs))
	}

	var payload pushPayload
	if err := json.Unmarshal(pub.msgs[0].payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Tag != "sensor-alert" {
		t.Errorf("Tag = %q", payload.Tag)
	}
	if payload.Title != "Temperature Alert: 31.5°C" {
		t.Errorf("Title = %q", payload.Title)
	}
	if len(payload.Alerts) != 1 || payload.Alerts[0].Sensor != models.SensorTemperature {
		t.Errorf("unexpected alerts: %+v", payload.Alerts)
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !pub.closed {
		t.Error("publisher not closed")
	}
}

func TestPushNotifierPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	n, err := NewPushNotifier(PushConfig{Topic: "t", Permission: models.PermissionGranted}, pub, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPushNotifier failed: %v", err)
	}
	if err := n.Deliver(context.Background(), testMessage()); err == nil {
		t.Error("expected publish error")
	}
}
