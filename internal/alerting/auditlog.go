package alerting

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/internal/storage"
)

// MaxLogEntries is the number of audit entries retained.
const MaxLogEntries = 100

// AuditLog is the newest-first notification history, written through to storage.
// Writes are persisted under the lock so the stored order matches memory.
type AuditLog struct {
	mu      sync.RWMutex
	entries []models.NotificationLogEntry
	kv      storage.Store
	logger  *zap.Logger
}

// NewAuditLog creates an empty audit log. kv may be nil for a memory-only log.
func NewAuditLog(kv storage.Store, logger *zap.Logger) *AuditLog {
	return &AuditLog{kv: kv, logger: logger.Named("auditlog")}
}

// Load restores persisted entries.
func (l *AuditLog) Load(ctx context.Context) error {
	if l.kv == nil {
		return nil
	}
	var entries []models.NotificationLogEntry
	found, err := storage.LoadJSON(ctx, l.kv, storage.KeyNotificationLogs, &entries)
	if err != nil {
		return fmt.Errorf("load notification logs: %w", err)
	}
	if !found {
		return nil
	}
	if len(entries) > MaxLogEntries {
		entries = entries[:MaxLogEntries]
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()

	l.logger.Debug("notification logs loaded", zap.Int("count", len(entries)))
	return nil
}

// Append records entries. The last argument ends up first.
func (l *AuditLog) Append(ctx context.Context, entries ...models.NotificationLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]models.NotificationLogEntry, 0, min(len(entries)+len(l.entries), MaxLogEntries))
	for i := len(entries) - 1; i >= 0 && len(next) < MaxLogEntries; i-- {
		next = append(next, entries[i])
	}
	for _, e := range l.entries {
		if len(next) == MaxLogEntries {
			break
		}
		next = append(next, e)
	}
	l.entries = next

	return l.persist(ctx, l.copyLocked())
}

// List returns a copy of the entries, newest first.
func (l *AuditLog) List() []models.NotificationLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyLocked()
}

// Len returns the number of entries.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear removes every entry.
func (l *AuditLog) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	return l.persist(ctx, []models.NotificationLogEntry{})
}

func (l *AuditLog) copyLocked() []models.NotificationLogEntry {
	out := make([]models.NotificationLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *AuditLog) persist(ctx context.Context, entries []models.NotificationLogEntry) error {
	if l.kv == nil {
		return nil
	}
	if err := storage.SaveJSON(ctx, l.kv, storage.KeyNotificationLogs, entries); err != nil {
		l.logger.Warn("failed to persist notification logs", zap.Error(err))
		return fmt.Errorf("persist notification logs: %w", err)
	}
	return nil
}
