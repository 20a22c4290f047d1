package models

import (
	"fmt"
	"time"
)

// Channel is a notification delivery mechanism.
type Channel string

// Notification channels.
const (
	ChannelApp     Channel = "app"
	ChannelBrowser Channel = "browser"
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelNone    Channel = "none"
)

// IsValid checks if the channel is known.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelApp, ChannelBrowser, ChannelEmail, ChannelSMS, ChannelNone:
		return true
	}
	return false
}

// RequiresContact reports whether the channel needs a recipient address.
func (c Channel) RequiresContact() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// ParseChannel converts a string to a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.IsValid() {
		return "", fmt.Errorf("unknown channel %q", s)
	}
	return c, nil
}

// Direction tells which bound a reading crossed.
type Direction string

// Directions.
const (
	DirectionNone    Direction = "none"
	DirectionTooHigh Direction = "tooHigh"
	DirectionTooLow  Direction = "tooLow"
)

// Permission is the OS-level consent state for browser push notifications.
type Permission string

// Permission states.
const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// NotificationLogEntry is one audit record of a dispatch attempt.
type NotificationLogEntry struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Channel   Channel    `json:"channel"`
	Sensor    SensorType `json:"sensor"`
	Value     float64    `json:"value"`
	Threshold float64    `json:"threshold"`
	Contact   string     `json:"contact,omitempty"`
	Delivered bool       `json:"delivered"`
	Error     string     `json:"error,omitempty"`
}

// ActiveNotification is a transient in-app alert. It is never persisted.
type ActiveNotification struct {
	ID        string     `json:"id"`
	Sensor    SensorType `json:"sensor"`
	Value     float64    `json:"value"`
	Threshold float64    `json:"threshold"`
	Channel   Channel    `json:"channel"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
	DismissAt *time.Time `json:"dismiss_at,omitempty"`
}
