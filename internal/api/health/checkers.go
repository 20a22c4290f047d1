package health

import (
	"context"
	"fmt"
)

// Pinger interface for backends that support ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker checks the settings store backend.
type StorageChecker struct {
	pinger Pinger
	driver string
}

// NewStorageChecker creates a storage health checker.
func NewStorageChecker(p Pinger, driver string) *StorageChecker {
	return &StorageChecker{pinger: p, driver: driver}
}

// Name returns the checker name.
func (c *StorageChecker) Name() string {
	if c.driver == "" {
		return "storage"
	}
	return "storage:" + c.driver
}

// Check verifies the backend is accessible.
func (c *StorageChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return fmt.Errorf("storage not initialized")
	}
	return c.pinger.Ping(ctx)
}

// SourceChecker reports whether the sensor data source is reachable.
type SourceChecker struct {
	connected func() bool
	failures  func() int
}

// NewSourceChecker creates a data-source health checker.
func NewSourceChecker(connected func() bool, failures func() int) *SourceChecker {
	return &SourceChecker{connected: connected, failures: failures}
}

// Name returns the checker name.
func (c *SourceChecker) Name() string {
	return "data_source"
}

// Check fails after repeated fetch failures.
func (c *SourceChecker) Check(ctx context.Context) error {
	if c.connected == nil || c.connected() {
		return nil
	}
	if c.failures != nil {
		return fmt.Errorf("data source unreachable after %d attempts", c.failures())
	}
	return fmt.Errorf("data source unreachable")
}

// BrokerChecker reports whether the push broker connection is up.
type BrokerChecker struct {
	connected func() bool
}

// NewBrokerChecker creates a push-broker health checker.
func NewBrokerChecker(connected func() bool) *BrokerChecker {
	return &BrokerChecker{connected: connected}
}

// Name returns the checker name.
func (c *BrokerChecker) Name() string {
	return "push_broker"
}

// Check fails while the broker is disconnected.
func (c *BrokerChecker) Check(ctx context.Context) error {
	if c.connected == nil {
		return fmt.Errorf("push broker not initialized")
	}
	if !c.connected() {
		return fmt.Errorf("push broker disconnected")
	}
	return nil
}
