// Package models contains the data types shared across nurserywatch components.
package models

import (
	"fmt"
	"time"
)

// SensorType identifies one of the monitored environmental sensors.
type SensorType string

// Sensor types.
const (
	SensorTemperature SensorType = "temperature"
	SensorHumidity    SensorType = "humidity"
	SensorSound       SensorType = "sound"
)

// AllSensors lists every sensor in evaluation and message order.
var AllSensors = []SensorType{SensorTemperature, SensorHumidity, SensorSound}

// Unit returns the display unit for the sensor.
func (s SensorType) Unit() string {
	switch s {
	case SensorTemperature:
		return "°C"
	case SensorHumidity:
		return "%"
	case SensorSound:
		return "dB"
	default:
		return ""
	}
}

// Label returns the human readable sensor name used in alert messages.
func (s SensorType) Label() string {
	switch s {
	case SensorTemperature:
		return "Temperature"
	case SensorHumidity:
		return "Humidity"
	case SensorSound:
		return "Sound level"
	default:
		return string(s)
	}
}

// IsValid checks if the sensor type is known.
func (s SensorType) IsValid() bool {
	switch s {
	case SensorTemperature, SensorHumidity, SensorSound:
		return true
	}
	return false
}

// ParseSensorType converts a string to a SensorType.
func ParseSensorType(s string) (SensorType, error) {
	st := SensorType(s)
	if !st.IsValid() {
		return "", fmt.Errorf("unknown sensor %q", s)
	}
	return st, nil
}

// ConnectionStatus describes the link to the data source.
type ConnectionStatus string

// Connection statuses.
const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusWeak         ConnectionStatus = "weak"
)

// ParseConnectionStatus converts a payload string, defaulting to connected.
func ParseConnectionStatus(s string) ConnectionStatus {
	switch ConnectionStatus(s) {
	case StatusDisconnected:
		return StatusDisconnected
	case StatusWeak:
		return StatusWeak
	default:
		return StatusConnected
	}
}

// SensorReading is a single evaluated sample. Values are never mutated after creation.
type SensorReading struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	IsAlert   bool      `json:"is_alert"`
}

// SensorSnapshot is the latest evaluated state of all sensors.
type SensorSnapshot struct {
	Temperature      SensorReading    `json:"temperature"`
	Humidity         SensorReading    `json:"humidity"`
	Sound            SensorReading    `json:"sound"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	LastSyncTime     time.Time        `json:"last_sync_time"`
}

// Reading returns the reading for the given sensor.
func (s *SensorSnapshot) Reading(sensor SensorType) SensorReading {
	switch sensor {
	case SensorTemperature:
		return s.Temperature
	case SensorHumidity:
		return s.Humidity
	case SensorSound:
		return s.Sound
	default:
		return SensorReading{}
	}
}

// HasAlert reports whether any reading is flagged.
func (s *SensorSnapshot) HasAlert() bool {
	return s.Temperature.IsAlert || s.Humidity.IsAlert || s.Sound.IsAlert
}

// WithStatus returns a copy of the snapshot carrying a different connection status.
func (s SensorSnapshot) WithStatus(status ConnectionStatus) SensorSnapshot {
	s.ConnectionStatus = status
	return s
}

// RawSample is a coerced data-source payload before threshold evaluation.
type RawSample struct {
	Temperature      float64
	Humidity         float64
	Sound            float64
	ConnectionStatus ConnectionStatus
	Timestamp        time.Time
}

// Value returns the raw value for a sensor.
func (r *RawSample) Value(sensor SensorType) float64 {
	switch sensor {
	case SensorTemperature:
		return r.Temperature
	case SensorHumidity:
		return r.Humidity
	case SensorSound:
		return r.Sound
	default:
		return 0
	}
}
