// sim/telemetry.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	gomath "math"
	"time"

	"github.com/openuas/groundlink/telem"
)

// TelemetryGenerator folds the environment, GPS and dynamics state into
// one canonical Telemetry record per tick, with a strictly increasing
// messageId, and derives the standing safety alerts.
type TelemetryGenerator struct {
	aircraftID string
	messageID  uint64
	battery    float64 // percent
	flightTime float64 // seconds with the mission running
}

func NewTelemetryGenerator(aircraftID string) *TelemetryGenerator {
	return &TelemetryGenerator{aircraftID: aircraftID, battery: 100}
}

func (g *TelemetryGenerator) Battery() float64 {
	return g.battery
}

// Voltage models a 6S pack sagging linearly with charge.
func (g *TelemetryGenerator) Voltage() float64 {
	return 22 + 3*g.battery/100
}

// Generate produces the tick's telemetry record and any alerts the
// current state warrants.
func (g *TelemetryGenerator) Generate(dt float64, now time.Time,
	dyn *Dynamics, gps *GPS, env *Environment, airborne bool) (telem.Telemetry, []telem.SafetyAlert) {

	if airborne || dyn.Controls.Throttle > 0 {
		g.flightTime += dt
		// Battery drains at 0.1 %/min at idle plus 0.5 %/min at full
		// throttle.
		drain := 0.1 + 0.5*dyn.Controls.Throttle
		g.battery = gomath.Max(0, g.battery-drain*dt/60)
	}

	g.messageID++

	pos := gps.Reported()
	if gps.Fix() == Fix2D || gps.Fix() == FixNone {
		// No usable GPS altitude; report the barometric one.
		pos.Altitude = dyn.Position.Altitude
	}

	wind := env.WindAtAltitude(dyn.Position.Altitude)
	we, wn := windVector(wind)
	groundE, groundN := dyn.Velocity[0]+we, dyn.Velocity[1]+wn

	t := telem.Telemetry{
		Timestamp:  now.UTC(),
		AircraftID: g.aircraftID,
		MessageID:  g.messageID,
		Position:   pos,
		Attitude: telem.Attitude{
			Roll:  degrees(dyn.Roll),
			Pitch: degrees(dyn.Pitch),
			Yaw:   dyn.HeadingDeg(),
		},
		Speed: telem.Speed{
			Airspeed:      dyn.Airspeed(),
			Groundspeed:   gomath.Hypot(groundE, groundN),
			VerticalSpeed: dyn.Velocity[2],
		},
		Systems: telem.SystemHealth{
			BatteryPercent: g.battery,
			GPSSatellites:  gps.VisibleSatellites(),
			GPSAccuracy:    gps.Accuracy(),
			DatalinkRSSI:   -60 - dyn.Position.Altitude/100,
			CPULoad:        clamp(20+30*dyn.Controls.Throttle, 0, 100),
			Temperature:    env.Atmosphere.Temperature + 15,
		},
		Environment: &telem.Environmental{
			Temperature:   env.TemperatureAtAltitude(dyn.Position.Altitude),
			Humidity:      env.Atmosphere.Humidity,
			Pressure:      env.PressureAtAltitude(dyn.Position.Altitude),
			WindSpeed:     wind.Speed,
			WindDirection: wind.Direction,
		},
	}

	return t, g.deriveAlerts(dyn, gps, env, airborne)
}

func (g *TelemetryGenerator) deriveAlerts(dyn *Dynamics, gps *GPS, env *Environment, airborne bool) []telem.SafetyAlert {
	var alerts []telem.SafetyAlert
	add := func(level telem.AlertLevel, cat telem.AlertCategory, name, msg string, data map[string]any) {
		a := telem.MakeAlert(g.aircraftID, level, cat, name, msg)
		a.Data = data
		alerts = append(alerts, a)
	}

	if g.battery < 20 {
		level := telem.AlertWarning
		if g.battery < 10 {
			level = telem.AlertCritical
		}
		add(level, telem.AlertSystem, "battery_low", "battery low",
			map[string]any{"percent": g.battery, "voltage": g.Voltage()})
	}

	if n := gps.VisibleSatellites(); n < 6 {
		level := telem.AlertWarning
		if n < 4 {
			level = telem.AlertCritical
		}
		add(level, telem.AlertNavigation, "gps_low_sats", "GPS satellite count low",
			map[string]any{"satellites": n, "fix": string(gps.Fix())})
	}

	if w := env.Wind.Speed; w > 15 {
		level := telem.AlertWarning
		if w > 25 {
			level = telem.AlertCritical
		}
		add(level, telem.AlertWeather, "high_wind", "wind exceeds limits",
			map[string]any{"windSpeed": w, "gusts": env.Wind.Gusts})
	}

	if airborne && dyn.Position.Altitude < 10 {
		add(telem.AlertWarning, telem.AlertNavigation, "low_altitude", "altitude below 10 m",
			map[string]any{"altitude": dyn.Position.Altitude})
	}

	return alerts
}

func degrees(r float64) float64 {
	return r / gomath.Pi * 180
}
