// telem/plan.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package telem

import (
	"time"
)

type WaypointType string

const (
	WaypointTakeoff  WaypointType = "takeoff"
	WaypointGeneric  WaypointType = "waypoint"
	WaypointSurvey   WaypointType = "survey"
	WaypointCircle   WaypointType = "circle"
	WaypointLanding  WaypointType = "landing"
	WaypointHome     WaypointType = "home"
	WaypointApproach WaypointType = "approach"
)

func (t WaypointType) Validate() error {
	switch t {
	case WaypointTakeoff, WaypointGeneric, WaypointSurvey, WaypointCircle,
		WaypointLanding, WaypointHome, WaypointApproach:
		return nil
	}
	return ErrInvalidWaypointType
}

type Waypoint struct {
	ID       int          `json:"id"`
	Name     string       `json:"name,omitempty"`
	Position Position     `json:"position"`
	Type     WaypointType `json:"type"`
	Actions  []string     `json:"actions,omitempty"`
	Radius   float64      `json:"radius,omitempty"`   // meters, circle type only
	Duration float64      `json:"duration,omitempty"` // seconds
}

type WeatherLimits struct {
	MaxWind        float64 `json:"maxWind"`
	MinVisibility  float64 `json:"minVisibility"`
	MinTemperature float64 `json:"minTemperature"`
	MaxTemperature float64 `json:"maxTemperature"`
}

type PlanParameters struct {
	CruiseSpeed    float64       `json:"cruiseSpeed"`
	CruiseAltitude float64       `json:"cruiseAltitude"`
	MaxAltitude    float64       `json:"maxAltitude"`
	MinBattery     float64       `json:"minBattery,omitempty"`
	MinFuel        float64       `json:"minFuel,omitempty"`
	WeatherLimits  WeatherLimits `json:"weatherLimits"`
}

// EndAction is what the executor does after the last waypoint.
type EndAction string

const (
	EndReturnHome EndAction = "return_home"
	EndRepeat     EndAction = "repeat"
	EndHold       EndAction = "hold"
)

type FlightPlan struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	AircraftID string         `json:"aircraftId"`
	Waypoints  []Waypoint     `json:"waypoints"`
	Parameters PlanParameters `json:"parameters"`
	EndAction  EndAction      `json:"endAction,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func (fp *FlightPlan) Validate() error {
	if len(fp.Waypoints) == 0 {
		return ErrEmptyFlightPlan
	}
	if p := fp.Parameters; p.MaxAltitude != 0 && p.CruiseAltitude > p.MaxAltitude {
		return ErrInvalidAltitudeBounds
	}
	if t := fp.Waypoints[0].Type; t != WaypointTakeoff && t != WaypointHome {
		return ErrFirstWaypointNotOrigin
	}

	homes := 0
	for _, wp := range fp.Waypoints {
		if err := wp.Type.Validate(); err != nil {
			return err
		}
		if err := wp.Position.Validate(); err != nil {
			return err
		}
		if wp.Type == WaypointHome {
			homes++
		}
	}
	if homes > 1 {
		return ErrDuplicateHomeWaypoint
	}
	return nil
}

// Home returns the plan's home waypoint, if any. Emergency return-to-home
// requires one; a plan without it cannot satisfy the command.
func (fp *FlightPlan) Home() (Waypoint, bool) {
	for _, wp := range fp.Waypoints {
		if wp.Type == WaypointHome {
			return wp, true
		}
	}
	return Waypoint{}, false
}

///////////////////////////////////////////////////////////////////////////
// FlightEnvelope

type Range struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Cruise float64 `json:"cruise"`
}

func (r Range) Validate() error {
	if !(r.Min < r.Cruise && r.Cruise < r.Max) {
		return ErrInvalidEnvelope
	}
	return nil
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

type Turbulence string

const (
	TurbulenceLight    Turbulence = "light"
	TurbulenceModerate Turbulence = "moderate"
	TurbulenceSevere   Turbulence = "severe"
)

type EnvelopeWeather struct {
	MaxWindSpeed  float64    `json:"maxWindSpeed"`
	MinVisibility float64    `json:"minVisibility"`
	MaxTurbulence Turbulence `json:"maxTurbulence"`
}

type FlightEnvelope struct {
	Airspeed Range `json:"airspeed"`
	Altitude Range `json:"altitude"`
	BankAngle struct {
		Max float64 `json:"max"`
	} `json:"bankAngle"`
	Weather EnvelopeWeather `json:"weather"`
}

func (e *FlightEnvelope) Validate() error {
	if err := e.Airspeed.Validate(); err != nil {
		return err
	}
	return e.Altitude.Validate()
}
