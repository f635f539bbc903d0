// telem/alert.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package telem

import (
	"time"
)

type AlertLevel string

const (
	AlertInfo      AlertLevel = "info"
	AlertWarning   AlertLevel = "warning"
	AlertCaution   AlertLevel = "caution"
	AlertCritical  AlertLevel = "critical"
	AlertEmergency AlertLevel = "emergency"
)

// Critical reports whether the alert level is exempt from queue-drop
// under subscriber backpressure.
func (l AlertLevel) Critical() bool {
	return l == AlertCritical || l == AlertEmergency
}

type AlertCategory string

const (
	AlertSystem        AlertCategory = "system"
	AlertNavigation    AlertCategory = "navigation"
	AlertWeather       AlertCategory = "weather"
	AlertFuel          AlertCategory = "fuel"
	AlertCommunication AlertCategory = "communication"
	AlertMission       AlertCategory = "mission"
)

// SafetyAlert ids are stable for a given aircraft and condition so that
// repeated alerts coalesce on the dashboard.
type SafetyAlert struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	AircraftID   string         `json:"aircraftId"`
	Level        AlertLevel     `json:"level"`
	Category     AlertCategory  `json:"category"`
	Message      string         `json:"message"`
	Data         map[string]any `json:"data,omitempty"`
	Acknowledged bool           `json:"acknowledged"`
}

// MakeAlert builds an alert with the conventional stable id
// <aircraftId>/<category>/<name>.
func MakeAlert(aircraftID string, level AlertLevel, category AlertCategory, name, message string) SafetyAlert {
	return SafetyAlert{
		ID:         aircraftID + "/" + string(category) + "/" + name,
		Timestamp:  time.Now().UTC(),
		AircraftID: aircraftID,
		Level:      level,
		Category:   category,
		Message:    message,
	}
}
