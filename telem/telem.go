// telem/telem.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package telem defines the wire data model shared by the broker, the
// serial links and the simulator: telemetry records, commands, flight
// plans and safety alerts. Records are immutable once published.
package telem

import (
	"time"

	"github.com/openuas/groundlink/geo"
)

// Position is a geographic position; altitude is meters AGL unless the
// enclosing record says otherwise.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

func (p Position) LL() geo.Point2LL {
	return geo.MakePoint2LL(p.Latitude, p.Longitude)
}

func (p Position) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return ErrInvalidLatitude
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// Attitude angles are in degrees; yaw is a true heading in [0,360).
type Attitude struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

func (a Attitude) Validate() error {
	if a.Yaw < 0 || a.Yaw >= 360 {
		return ErrInvalidHeading
	}
	return nil
}

// Speed is in m/s; positive vertical speed is a climb.
type Speed struct {
	Airspeed      float64 `json:"airspeed"`
	Groundspeed   float64 `json:"groundspeed"`
	VerticalSpeed float64 `json:"verticalSpeed"`
}

type SystemHealth struct {
	BatteryPercent float64  `json:"battery"`
	FuelPercent    *float64 `json:"fuel,omitempty"`
	GPSSatellites  int      `json:"gpsSatellites"`
	GPSAccuracy    float64  `json:"gpsAccuracy"`
	DatalinkRSSI   float64  `json:"datalinkRssi"` // dBm
	CPULoad        float64  `json:"cpuLoad"`
	Temperature    float64  `json:"temperature"`
}

func (s SystemHealth) Validate() error {
	if s.BatteryPercent < 0 || s.BatteryPercent > 100 {
		return ErrInvalidBattery
	}
	if s.GPSSatellites < 0 || s.GPSAccuracy < 0 {
		return ErrInvalidGPS
	}
	return nil
}

type AirQuality struct {
	PM25 float64 `json:"pm25"`
	PM10 float64 `json:"pm10"`
	CO2  float64 `json:"co2"`
}

type Environmental struct {
	Temperature   float64     `json:"temperature"` // Celsius
	Humidity      float64     `json:"humidity"`    // percent
	Pressure      float64     `json:"pressure"`    // hPa
	WindSpeed     float64     `json:"windSpeed"`   // m/s
	WindDirection float64     `json:"windDirection"`
	AirQuality    *AirQuality `json:"airQuality,omitempty"`
}

func (e Environmental) Validate() error {
	if e.WindSpeed < 0 || e.WindDirection < 0 || e.WindDirection >= 360 {
		return ErrInvalidWind
	}
	if e.Humidity < 0 || e.Humidity > 100 {
		return ErrInvalidHumidity
	}
	return nil
}

// Telemetry is the canonical per-tick record for one aircraft. MessageID
// is strictly increasing per aircraft; gaps are permitted (loss),
// reversals are not.
type Telemetry struct {
	Timestamp   time.Time      `json:"timestamp"`
	AircraftID  string         `json:"aircraftId"`
	MessageID   uint64         `json:"messageId"`
	Position    Position       `json:"position"`
	Attitude    Attitude       `json:"attitude"`
	Speed       Speed          `json:"speed"`
	Systems     SystemHealth   `json:"systems"`
	Environment *Environmental `json:"environment,omitempty"`
}

func (t Telemetry) Validate() error {
	if t.AircraftID == "" {
		return ErrMissingAircraftID
	}
	if err := t.Position.Validate(); err != nil {
		return err
	}
	if err := t.Attitude.Validate(); err != nil {
		return err
	}
	if err := t.Systems.Validate(); err != nil {
		return err
	}
	if t.Environment != nil {
		return t.Environment.Validate()
	}
	return nil
}

// Normalize returns the record with its timestamp converted to UTC; wire
// equality is defined up to this normalization.
func (t Telemetry) Normalize() Telemetry {
	t.Timestamp = t.Timestamp.UTC()
	return t
}
