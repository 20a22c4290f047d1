package alerting

import (
	"strconv"
	"strings"

	"github.com/good-yellow-bee/nurserywatch/internal/evaluator"
	"github.com/good-yellow-bee/nurserywatch/internal/models"
	"github.com/good-yellow-bee/nurserywatch/internal/notifier"
)

const (
	defaultTitle = "Nursery Monitor Alert"
	testTitle    = "Test Notification"
	testBody     = "This is a test notification from your nursery monitor."
)

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// collectAlerts returns the enabled sensors whose readings are flagged.
func collectAlerts(snap models.SensorSnapshot, toggles models.SensorToggles, th models.Thresholds) []notifier.AlertDetail {
	var out []notifier.AlertDetail
	for _, sensor := range models.AllSensors {
		if !toggles.Enabled(sensor) {
			continue
		}
		r := snap.Reading(sensor)
		if !r.IsAlert {
			continue
		}
		dir := evaluator.Direction(sensor, r.Value, th)
		if dir == models.DirectionNone {
			// flagged under thresholds that have since changed
			dir = models.DirectionTooHigh
		}
		out = append(out, notifier.AlertDetail{
			Sensor:    sensor,
			Value:     r.Value,
			Threshold: evaluator.ThresholdFor(sensor, dir, th),
			Direction: dir,
		})
	}
	return out
}

// fragment renders one sensor, e.g. "Humidity (25%) below minimum (30%)."
func fragment(a notifier.AlertDetail) string {
	unit := a.Sensor.Unit()
	bound := "above maximum"
	if a.Direction == models.DirectionTooLow {
		bound = "below minimum"
	}
	return a.Sensor.Label() + " (" + formatNumber(a.Value) + unit + ") " +
		bound + " (" + formatNumber(a.Threshold) + unit + ")."
}

// composeBody aggregates all alerting sensors into one message.
func composeBody(alerts []notifier.AlertDetail) string {
	var b strings.Builder
	b.WriteString("Alert: ")
	for _, a := range alerts {
		b.WriteString(fragment(a))
		b.WriteString(" ")
	}
	return b.String()
}

// composeTitle names the sensor when only one is alerting.
func composeTitle(alerts []notifier.AlertDetail) string {
	if len(alerts) != 1 {
		return defaultTitle
	}
	a := alerts[0]
	switch a.Sensor {
	case models.SensorTemperature:
		return "Temperature Alert: " + formatNumber(a.Value) + "°C"
	case models.SensorHumidity:
		return "Humidity Alert: " + formatNumber(a.Value) + "%"
	case models.SensorSound:
		return "Sound Alert: " + formatNumber(a.Value) + " dB"
	default:
		return defaultTitle
	}
}
