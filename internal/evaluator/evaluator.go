// Package evaluator compares sensor values against safety thresholds.
// All functions are pure.
package evaluator

import (
	"time"

	"github.com/good-yellow-bee/nurserywatch/internal/models"
)

// Direction reports which bound, if any, the value crosses. Boundary values are safe.
func Direction(sensor models.SensorType, value float64, th models.Thresholds) models.Direction {
	switch sensor {
	case models.SensorTemperature:
		return rangeDirection(value, th.Temperature)
	case models.SensorHumidity:
		return rangeDirection(value, th.Humidity)
	case models.SensorSound:
		if value > th.Sound.Max {
			return models.DirectionTooHigh
		}
	}
	return models.DirectionNone
}

func rangeDirection(value float64, r models.Range) models.Direction {
	switch {
	case value > r.Max:
		return models.DirectionTooHigh
	case value < r.Min:
		return models.DirectionTooLow
	default:
		return models.DirectionNone
	}
}

// IsAlert reports whether the value is strictly outside the safe band.
func IsAlert(sensor models.SensorType, value float64, th models.Thresholds) bool {
	return Direction(sensor, value, th) != models.DirectionNone
}

// Evaluate tags a raw value with its alert flag.
func Evaluate(sensor models.SensorType, value float64, th models.Thresholds, ts time.Time) models.SensorReading {
	return models.SensorReading{
		Value:     value,
		Timestamp: ts,
		IsAlert:   IsAlert(sensor, value, th),
	}
}

// ThresholdFor returns the bound crossed in the given direction.
// For DirectionNone it returns the upper bound.
func ThresholdFor(sensor models.SensorType, dir models.Direction, th models.Thresholds) float64 {
	switch sensor {
	case models.SensorTemperature:
		if dir == models.DirectionTooLow {
			return th.Temperature.Min
		}
		return th.Temperature.Max
	case models.SensorHumidity:
		if dir == models.DirectionTooLow {
			return th.Humidity.Min
		}
		return th.Humidity.Max
	case models.SensorSound:
		return th.Sound.Max
	}
	return 0
}

// BuildSnapshot evaluates every sensor of a raw sample.
// A zero sample timestamp is replaced by now.
func BuildSnapshot(sample models.RawSample, th models.Thresholds, now time.Time) models.SensorSnapshot {
	ts := sample.Timestamp
	if ts.IsZero() {
		ts = now
	}
	status := sample.ConnectionStatus
	if status == "" {
		status = models.StatusConnected
	}

	return models.SensorSnapshot{
		Temperature:      Evaluate(models.SensorTemperature, sample.Temperature, th, ts),
		Humidity:         Evaluate(models.SensorHumidity, sample.Humidity, th, ts),
		Sound:            Evaluate(models.SensorSound, sample.Sound, th, ts),
		ConnectionStatus: status,
		LastSyncTime:     ts,
	}
}
