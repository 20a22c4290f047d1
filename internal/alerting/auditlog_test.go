package alerting

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/internal/storage"
)

func logEntry(i int) models.NotificationLogEntry {
	return models.NotificationLogEntry{
		ID:        fmt.Sprintf("entry-%d", i),
		Timestamp: time.Unix(int64(i), 0).UTC(),
		Channel:   models.ChannelApp,
		Sensor:    models.SensorTemperature,
		Value:     float64(i),
		Threshold: 30,
		Delivered: true,
	}
}

func TestAuditLogCapsNewestFirst(t *testing.T) {
	ctx := context.Background()
	log := NewAuditLog(storage.NewMemoryStore(), zap.NewNop())

	for i := 0; i < 150; i++ {
		if err := log.Append(ctx, logEntry(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries := log.List()
	if len(entries) != MaxLogEntries {
		t.Fatalf("expected %d entries, got %d", MaxLogEntries, len(entries))
	}
	if entries[0].ID != "entry-149" {
		t.Errorf("newest entry = %s, want entry-149", entries[0].ID)
	}
	if entries[99].ID != "entry-50" {
		t.Errorf("oldest kept entry = %s, want entry-50", entries[99].ID)
	}
}

func TestAuditLogBatchOrder(t *testing.T) {
	log := NewAuditLog(nil, zap.NewNop())

	if err := log.Append(context.Background(), logEntry(1), logEntry(2), logEntry(3)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	entries := log.List()
	if entries[0].ID != "entry-3" || entries[2].ID != "entry-1" {
		t.Errorf("unexpected order: %s, %s, %s", entries[0].ID, entries[1].ID, entries[2].ID)
	}
}

func TestAuditLogPersistsAndLoads(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()

	first := NewAuditLog(kv, zap.NewNop())
	for i := 0; i < 5; i++ {
		if err := first.Append(ctx, logEntry(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	second := NewAuditLog(kv, zap.NewNop())
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	entries := second.List()
	if len(entries) != 5 || entries[0].ID != "entry-4" {
		t.Errorf("unexpected restored entries: %+v", entries)
	}

	if err := second.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	third := NewAuditLog(kv, zap.NewNop())
	if err := third.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if third.Len() != 0 {
		t.Errorf("expected cleared log to stay empty, got %d", third.Len())
	}
}

func TestAuditLogListIsCopy(t *testing.T) {
	log := NewAuditLog(nil, zap.NewNop())
	_ = log.Append(context.Background(), logEntry(1))

	entries := log.List()
	entries[0].ID = "mutated"
	if log.List()[0].ID != "entry-1" {
		t.Error("List must return a copy")
	}
}

func TestCooldownManager(t *testing.T) {
	cm := NewCooldownManager()
	baseTime := time.Now()
	sensor := models.SensorHumidity

	if cm.IsOnCooldown(sensor, baseTime) {
		t.Error("expected not on cooldown initially")
	}

	cm.SetCooldown(sensor, 10*time.Second, baseTime)

	if !cm.IsOnCooldown(sensor, baseTime.Add(5*time.Second)) {
		t.Error("expected on cooldown at 5 seconds")
	}
	if !cm.IsOnCooldown(sensor, baseTime.Add(9*time.Second)) {
		t.Error("expected on cooldown at 9 seconds")
	}
	if cm.IsOnCooldown(sensor, baseTime.Add(11*time.Second)) {
		t.Error("expected not on cooldown at 11 seconds")
	}
	if cm.IsOnCooldown(models.SensorSound, baseTime) {
		t.Error("cooldowns are per sensor")
	}

	if remaining := cm.Remaining(sensor, baseTime.Add(5*time.Second)); remaining != 5*time.Second {
		t.Errorf("expected 5s remaining, got %v", remaining)
	}
	if remaining := cm.Remaining(sensor, baseTime.Add(time.Minute)); remaining != 0 {
		t.Errorf("expected 0 remaining after expiry, got %v", remaining)
	}

	cm.ClearAll()
	if cm.IsOnCooldown(sensor, baseTime) {
		t.Error("expected cooldown cleared")
	}
}
