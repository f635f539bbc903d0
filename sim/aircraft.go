// sim/aircraft.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"time"

	"github.com/openuas/groundlink/telem"
)

// Aircraft is one simulated airframe: environment, GPS, rigid body and
// flight-plan executor, plus the generator that folds them into
// telemetry. It is owned by the Host and only ever touched from the tick
// loop (the Host serializes command delivery with ticks).
type Aircraft struct {
	SimID      string
	AircraftID string
	Type       AircraftType

	env *Environment
	gps *GPS
	dyn *Dynamics
	ex  *Executor
	gen *TelemetryGenerator

	Envelope *telem.FlightEnvelope

	running       bool // advanced by Host.Tick when true
	missionActive bool
	airborne      bool
}

func NewAircraft(simID, aircraftID string, acType AircraftType, pos telem.Position,
	env *Environment, gps *GPS) *Aircraft {
	return &Aircraft{
		SimID:      simID,
		AircraftID: aircraftID,
		Type:       acType,
		env:        env,
		gps:        gps,
		dyn:        NewDynamics(acType, pos),
		ex:         NewExecutor(),
		gen:        NewTelemetryGenerator(aircraftID),
	}
}

func (a *Aircraft) Running() bool {
	return a.running
}

func (a *Aircraft) Position() telem.Position {
	return a.dyn.Position
}

func (a *Aircraft) Executor() *Executor {
	return a.ex
}

func (a *Aircraft) LoadFlightPlan(plan *telem.FlightPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	a.ex.LoadPlan(plan)
	return nil
}

// Tick advances the aircraft by dt seconds: environment, GPS, dynamics,
// executor, telemetry, in that order.
func (a *Aircraft) Tick(dt float64, now time.Time) (telem.Telemetry, []telem.SafetyAlert) {
	a.env.Update(dt)
	a.gps.Update(dt, a.dyn.Position)

	rho := a.env.DensityAtAltitude(a.dyn.Position.Altitude)
	wind := a.env.WindAtAltitude(a.dyn.Position.Altitude)
	a.dyn.Update(dt, rho, wind)

	if a.missionActive && a.ex.Plan != nil {
		cmds := a.ex.Update(dt, a.dyn.Position, now)
		a.dyn.ApplyNavigationCommands(cmds)
	}

	a.airborne = a.dyn.Position.Altitude > 1 || a.dyn.Airspeed() > 2

	return a.gen.Generate(dt, now, a.dyn, a.gps, a.env, a.airborne)
}

// ProcessCommand applies a validated command to the aircraft. Returned
// alerts are published by the caller; an error indicates the command was
// rejected.
func (a *Aircraft) ProcessCommand(cmd telem.Command) ([]telem.SafetyAlert, error) {
	switch spec := cmd.Spec.(type) {
	case *telem.MissionStart:
		if a.ex.Plan == nil {
			return nil, ErrNoFlightPlan
		}
		a.missionActive = true
		a.running = true
		return nil, nil

	case *telem.MissionPause:
		a.missionActive = false
		return nil, nil

	case *telem.MissionAbort:
		a.missionActive = false
		a.dyn.Controls.Throttle = 0
		return nil, nil

	case *telem.ReturnToHome:
		if err := a.ex.EmergencyReturnToHome(); err != nil {
			alert := telem.MakeAlert(a.AircraftID, telem.AlertCritical, telem.AlertNavigation,
				"rth_failed", fmt.Sprintf("return to home failed: %v", err))
			return []telem.SafetyAlert{alert}, err
		}
		a.missionActive = true
		return nil, nil

	case *telem.EmergencyLand:
		a.ex.EmergencyLand()
		a.dyn.EmergencyLand()
		return nil, nil

	case *telem.WaypointUpdate:
		if a.ex.Plan == nil {
			return nil, ErrNoFlightPlan
		}
		if spec.Index < 0 || spec.Index >= len(a.ex.Plan.Waypoints) {
			return nil, ErrWaypointOutOfRange
		}
		if alert, ok := a.checkEnvelopeAltitude(spec.Waypoint.Position.Altitude); !ok {
			return []telem.SafetyAlert{alert}, ErrEnvelopeViolation
		}
		a.ex.Plan.Waypoints[spec.Index] = spec.Waypoint
		return nil, nil

	case *telem.FlightPlanUpload:
		plan := spec.Plan
		return nil, a.LoadFlightPlan(&plan)

	case *telem.ParameterSet:
		return a.setParameter(spec)

	default:
		return nil, telem.ErrInvalidCommandType
	}
}

func (a *Aircraft) setParameter(p *telem.ParameterSet) ([]telem.SafetyAlert, error) {
	switch p.Name {
	case "cruise_speed":
		v, ok := numeric(p.Value)
		if !ok {
			return nil, telem.ErrMissingParameter
		}
		if a.Envelope != nil && !a.Envelope.Airspeed.Contains(v) {
			alert := telem.MakeAlert(a.AircraftID, telem.AlertWarning, telem.AlertMission,
				"envelope_violation", fmt.Sprintf("cruise speed %.1f outside envelope", v))
			return []telem.SafetyAlert{alert}, ErrEnvelopeViolation
		}
		if a.ex.Plan != nil {
			a.ex.Plan.Parameters.CruiseSpeed = v
		}
		return nil, nil

	case "cruise_altitude":
		v, ok := numeric(p.Value)
		if !ok {
			return nil, telem.ErrMissingParameter
		}
		if a.Envelope != nil && !a.Envelope.Altitude.Contains(v) {
			alert := telem.MakeAlert(a.AircraftID, telem.AlertWarning, telem.AlertMission,
				"envelope_violation", fmt.Sprintf("cruise altitude %.0f outside envelope", v))
			return []telem.SafetyAlert{alert}, ErrEnvelopeViolation
		}
		if a.ex.Plan != nil {
			a.ex.Plan.Parameters.CruiseAltitude = v
		}
		return nil, nil

	case "gps_mode":
		mode, _ := p.Value.(string)
		switch mode {
		case "dgps":
			// Base-station distance modeled as the distance home; a
			// plan-less aircraft uses a nominal nearby station.
			if !a.gps.ForceMode(FixDGPS, 1000) {
				return nil, ErrEnvelopeViolation
			}
		case "rtk":
			a.gps.ForceMode(FixRTK, 0)
		case "auto":
			a.gps.ForceMode(FixNone, 0)
		default:
			return nil, ErrUnknownParameter
		}
		return nil, nil

	case "end_action":
		act, _ := p.Value.(string)
		if a.ex.Plan == nil {
			return nil, ErrNoFlightPlan
		}
		switch telem.EndAction(act) {
		case telem.EndReturnHome, telem.EndRepeat, telem.EndHold:
			a.ex.Plan.EndAction = telem.EndAction(act)
			return nil, nil
		}
		return nil, ErrUnknownParameter

	default:
		return nil, ErrUnknownParameter
	}
}

func (a *Aircraft) checkEnvelopeAltitude(alt float64) (telem.SafetyAlert, bool) {
	if a.Envelope == nil || a.Envelope.Altitude.Contains(alt) {
		return telem.SafetyAlert{}, true
	}
	return telem.MakeAlert(a.AircraftID, telem.AlertWarning, telem.AlertMission,
		"envelope_violation", fmt.Sprintf("waypoint altitude %.0f outside envelope", alt)), false
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
