// sim/dynamics.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	gomath "math"

	"github.com/openuas/groundlink/geo"
	"github.com/openuas/groundlink/telem"
)

type AircraftType string

const (
	FixedWing  AircraftType = "fixed_wing"
	Rotorcraft AircraftType = "rotorcraft"
)

const gravity = 9.81

// Controls are the actuator setpoints: throttle in [0,1], surfaces in
// [-1,1].
type Controls struct {
	Throttle float64
	Aileron  float64
	Elevator float64
	Rudder   float64
}

type Performance struct {
	Mass      float64 // kg
	MaxThrust float64 // N
	DragCoeff float64 // absorbs reference area
	LiftCoeff float64
	WingArea  float64 // m^2
}

func DefaultPerformance(t AircraftType) Performance {
	switch t {
	case Rotorcraft:
		return Performance{Mass: 1.8, MaxThrust: 35, DragCoeff: 0.08}
	default:
		return Performance{Mass: 2.0, MaxThrust: 18, DragCoeff: 0.05, LiftCoeff: 1.2, WingArea: 0.3}
	}
}

// Dynamics is the rigid-body state of one aircraft. Velocity components
// are world-frame: x east, y north, z up. Attitude is radians.
type Dynamics struct {
	Type     AircraftType
	Perf     Performance
	Position telem.Position

	Velocity     [3]float64
	Acceleration [3]float64

	Roll, Pitch, Yaw float64 // radians; Yaw is a compass heading
	AngularVel       [3]float64

	Controls Controls

	HardLanding bool
}

func NewDynamics(t AircraftType, pos telem.Position) *Dynamics {
	return &Dynamics{
		Type:     t,
		Perf:     DefaultPerformance(t),
		Position: pos,
	}
}

func (d *Dynamics) Airspeed() float64 {
	return gomath.Sqrt(d.Velocity[0]*d.Velocity[0] +
		d.Velocity[1]*d.Velocity[1] +
		d.Velocity[2]*d.Velocity[2])
}

func (d *Dynamics) Groundspeed() float64 {
	return gomath.Hypot(d.Velocity[0], d.Velocity[1])
}

// HeadingDeg returns the yaw as a compass heading in [0,360).
func (d *Dynamics) HeadingDeg() float64 {
	return geo.NormalizeHeading(geo.Degrees(d.Yaw))
}

// Update integrates one step of dt seconds with the given air density
// and the local wind. Semi-implicit Euler: acceleration first, then
// velocity, then position.
func (d *Dynamics) Update(dt float64, rho float64, wind Wind) {
	v := d.Airspeed()

	var fx, fy, fz float64

	// Gravity.
	fz -= d.Perf.Mass * gravity

	// Drag opposes the velocity vector.
	if v > 0.01 {
		drag := d.Perf.DragCoeff * 0.5 * rho * v * v
		fx -= drag * d.Velocity[0] / v
		fy -= drag * d.Velocity[1] / v
		fz -= drag * d.Velocity[2] / v
	}

	thrust := d.Controls.Throttle * d.Perf.MaxThrust
	switch d.Type {
	case Rotorcraft:
		// Rotor thrust acts along the body up axis; tilt spills it into
		// translation.
		fz += thrust * gomath.Cos(d.Roll) * gomath.Cos(d.Pitch)
		horiz := thrust * gomath.Sin(d.Pitch)
		fx += horiz * gomath.Sin(d.Yaw)
		fy += horiz * gomath.Cos(d.Yaw)
		lat := thrust * gomath.Sin(d.Roll)
		fx += lat * gomath.Cos(d.Yaw)
		fy += -lat * gomath.Sin(d.Yaw)
	default:
		// Thrust along the body x axis.
		fx += thrust * gomath.Cos(d.Pitch) * gomath.Sin(d.Yaw)
		fy += thrust * gomath.Cos(d.Pitch) * gomath.Cos(d.Yaw)
		fz += thrust * gomath.Sin(d.Pitch)

		// Lift, rotated by roll so banking trades vertical for
		// horizontal force (which is what turns the aircraft).
		lift := d.Perf.LiftCoeff * gomath.Sin(d.Pitch) * d.Perf.WingArea * 0.5 * rho * v * v
		fz += lift * gomath.Cos(d.Roll)
		side := lift * gomath.Sin(d.Roll)
		fx += side * gomath.Cos(d.Yaw)
		fy += -side * gomath.Sin(d.Yaw)
	}

	d.Acceleration = [3]float64{fx / d.Perf.Mass, fy / d.Perf.Mass, fz / d.Perf.Mass}
	for i := range d.Velocity {
		d.Velocity[i] += d.Acceleration[i] * dt
	}

	// Moments from the control surfaces; effectiveness falls off at low
	// airspeed.
	eff := gomath.Min(1, v/20)
	d.AngularVel[0] += d.Controls.Aileron * 10 * eff / 2 * dt
	d.AngularVel[1] += d.Controls.Elevator * 8 * eff / 3 * dt
	d.AngularVel[2] += d.Controls.Rudder * 6 * eff / 4 * dt
	for i := range d.AngularVel {
		d.AngularVel[i] *= 0.95
	}

	d.Roll = wrapPi(d.Roll + d.AngularVel[0]*dt)
	d.Pitch = clamp(d.Pitch+d.AngularVel[1]*dt, -gomath.Pi/2, gomath.Pi/2)
	d.Yaw = wrapPi(d.Yaw + d.AngularVel[2]*dt)

	// Position update on a locally flat earth; wind carries the airframe
	// with it.
	we, wn := windVector(wind)
	ve := d.Velocity[0] + we
	vn := d.Velocity[1] + wn

	d.Position.Latitude += vn * dt / geo.MetersPerDegreeLatitude
	d.Position.Longitude += ve * dt /
		(geo.MetersPerDegreeLatitude * gomath.Cos(geo.Radians(d.Position.Latitude)))
	d.Position.Altitude += d.Velocity[2] * dt

	// Ground contact.
	d.HardLanding = false
	if d.Position.Altitude <= 0 {
		d.Position.Altitude = 0
		if d.Velocity[2] < -2 {
			d.HardLanding = true
			d.Velocity[0] *= 0.1
			d.Velocity[1] *= 0.1
		}
		if d.Velocity[2] < 0 {
			d.Velocity[2] = 0
		}
	}
}

// windVector returns the east/north velocity components of air moving
// with the given wind; direction is where the wind blows from.
func windVector(w Wind) (east, north float64) {
	blowingTo := geo.Radians(w.Direction + 180)
	speed := w.Speed + w.Gusts
	return speed * gomath.Sin(blowingTo), speed * gomath.Cos(blowingTo)
}

// ApplyNavigationCommands converts the executor's heading/altitude/
// airspeed targets into actuator setpoints with simple proportional
// control.
func (d *Dynamics) ApplyNavigationCommands(cmds NavCommands) {
	if cmds.Heading != nil {
		turn := geo.HeadingSignedTurn(d.HeadingDeg(), *cmds.Heading)
		d.Controls.Aileron = clamp(turn/45, -1, 1)
		d.Controls.Rudder = clamp(turn/90, -1, 1)
	}
	if cmds.Altitude != nil {
		dAlt := *cmds.Altitude - d.Position.Altitude
		d.Controls.Elevator = clamp(dAlt/50, -1, 1)
	}
	if cmds.Airspeed != nil {
		dV := *cmds.Airspeed - d.Airspeed()
		d.Controls.Throttle = clamp(0.5+dV/10, 0, 1)
	}
}

// EmergencyLand sets the fixed descent configuration: idle-ish power,
// nose up to bleed speed.
func (d *Dynamics) EmergencyLand() {
	d.Controls.Throttle = 0.2
	d.Controls.Elevator = 0.3
}

func wrapPi(a float64) float64 {
	for a > gomath.Pi {
		a -= 2 * gomath.Pi
	}
	for a <= -gomath.Pi {
		a += 2 * gomath.Pi
	}
	return a
}
