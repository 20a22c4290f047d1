package alerting

import (
	"sync"
	"time"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

// CooldownManager tracks per-sensor cooldowns.
type CooldownManager struct {
	mu        sync.RWMutex
	cooldowns map[models.SensorType]time.Time
}

// NewCooldownManager creates a new cooldown manager.
func NewCooldownManager() *CooldownManager {
	return &CooldownManager{
		cooldowns: make(map[models.SensorType]time.Time),
	}
}

// IsOnCooldown checks if a sensor is currently on cooldown.
func (cm *CooldownManager) IsOnCooldown(sensor models.SensorType, now time.Time) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	expiresAt, ok := cm.cooldowns[sensor]
	if !ok {
		return false
	}
	return now.Before(expiresAt)
}

// SetCooldown sets a cooldown for a sensor.
func (cm *CooldownManager) SetCooldown(sensor models.SensorType, duration time.Duration, now time.Time) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.cooldowns[sensor] = now.Add(duration)
}

// ClearAll removes all cooldowns.
func (cm *CooldownManager) ClearAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.cooldowns = make(map[models.SensorType]time.Time)
}

// Remaining returns the remaining cooldown for a sensor.
func (cm *CooldownManager) Remaining(sensor models.SensorType, now time.Time) time.Duration {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	expiresAt, ok := cm.cooldowns[sensor]
	if !ok {
		return 0
	}
	remaining := expiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
