// sim/nav.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	gomath "math"
	"time"

	"github.com/openuas/groundlink/geo"
	"github.com/openuas/groundlink/telem"
)

// Defaults when the flight plan's parameters don't say otherwise.
const (
	defaultCruiseSpeed    = 15.0 // m/s
	approachSpeed         = 12.0
	defaultWaypointRadius = 50.0 // meters
	defaultCircleRadius   = 100.0
)

// NavCommands are the executor's per-tick targets for the flight model;
// nil fields leave the current setpoint alone.
type NavCommands struct {
	Heading  *float64
	Altitude *float64
	Airspeed *float64
}

// WaypointReached is one entry of the executor's progress log.
type WaypointReached struct {
	WaypointID int
	Index      int
	Lap        int
	Time       time.Time
}

// Executor sequences an aircraft through its flight plan, generating
// navigation commands that the dynamics model turns into control inputs.
type Executor struct {
	Plan *telem.FlightPlan

	CurrentIndex     int
	Target           telem.Position
	DistanceToTarget float64
	BearingToTarget  float64
	CrossTrack       float64

	Circling     bool
	CircleCenter geo.Point2LL
	CircleRadius float64
	circleSince  time.Duration

	prev       telem.Position // previous waypoint, start of the current leg
	lap        int
	holding    bool
	landNow    bool // emergency land: force altitude target to 0
	reachedLog []WaypointReached
}

func NewExecutor() *Executor {
	return &Executor{}
}

// LoadPlan replaces the flight plan and resets navigation state; loading
// the same plan twice is equivalent to loading once and skipping back to
// waypoint 0.
func (ex *Executor) LoadPlan(plan *telem.FlightPlan) {
	ex.Plan = plan
	ex.SkipToWaypoint(0)
	ex.lap = 0
	ex.reachedLog = nil
}

func (ex *Executor) SkipToWaypoint(i int) error {
	if ex.Plan == nil {
		return ErrNoFlightPlan
	}
	if i < 0 || i >= len(ex.Plan.Waypoints) {
		return ErrWaypointOutOfRange
	}
	ex.CurrentIndex = i
	ex.Circling = false
	ex.holding = false
	ex.landNow = false
	ex.circleSince = 0
	if i > 0 {
		ex.prev = ex.Plan.Waypoints[i-1].Position
	} else {
		ex.prev = ex.Plan.Waypoints[0].Position
	}
	return nil
}

func (ex *Executor) currentWaypoint() *telem.Waypoint {
	if ex.Plan == nil || ex.CurrentIndex >= len(ex.Plan.Waypoints) {
		return nil
	}
	return &ex.Plan.Waypoints[ex.CurrentIndex]
}

// ReachedLog returns the waypoints reached so far, in order.
func (ex *Executor) ReachedLog() []WaypointReached {
	return ex.reachedLog
}

// Update runs one executor tick: refresh geometry, check arrival,
// generate commands.
func (ex *Executor) Update(dt float64, pos telem.Position, now time.Time) NavCommands {
	wp := ex.currentWaypoint()
	if wp == nil {
		return NavCommands{}
	}

	ex.updateGeometry(pos, *wp)
	ex.checkWaypointReached(dt, pos, now)

	// The waypoint may have advanced; regenerate geometry against the
	// new target before steering.
	if wp = ex.currentWaypoint(); wp == nil {
		return NavCommands{}
	}
	ex.updateGeometry(pos, *wp)

	return ex.generateCommands(pos, *wp)
}

func (ex *Executor) updateGeometry(pos telem.Position, wp telem.Waypoint) {
	ex.Target = wp.Position
	ex.DistanceToTarget = geo.Distance(pos.LL(), wp.Position.LL())
	ex.BearingToTarget = geo.Bearing(pos.LL(), wp.Position.LL())
	ex.CrossTrack = geo.CrossTrackError(ex.prev.LL(), wp.Position.LL(), pos.LL())
}

func (ex *Executor) waypointRadius() float64 {
	return defaultWaypointRadius
}

func (ex *Executor) checkWaypointReached(dt float64, pos telem.Position, now time.Time) {
	wp := ex.currentWaypoint()

	if ex.Circling {
		ex.circleSince += time.Duration(dt * float64(time.Second))
		if ex.holding {
			return // hold end-action circles indefinitely
		}
		if ex.circleSince >= time.Duration(wp.Duration*float64(time.Second)) {
			ex.Circling = false
			ex.advance(now)
		}
		return
	}

	if ex.DistanceToTarget > ex.waypointRadius() {
		return
	}

	ex.reachedLog = append(ex.reachedLog, WaypointReached{
		WaypointID: wp.ID,
		Index:      ex.CurrentIndex,
		Lap:        ex.lap,
		Time:       now,
	})

	if wp.Type == telem.WaypointCircle && wp.Duration > 0 {
		ex.Circling = true
		ex.CircleCenter = wp.Position.LL()
		ex.CircleRadius = wp.Radius
		if ex.CircleRadius <= 0 {
			ex.CircleRadius = defaultCircleRadius
		}
		ex.circleSince = 0
		return
	}

	ex.advance(now)
}

func (ex *Executor) advance(now time.Time) {
	ex.prev = ex.Plan.Waypoints[ex.CurrentIndex].Position
	ex.CurrentIndex++

	if ex.CurrentIndex < len(ex.Plan.Waypoints) {
		return
	}

	// End of plan.
	end := ex.Plan.EndAction
	if end == "" {
		end = telem.EndReturnHome
	}
	switch end {
	case telem.EndRepeat, telem.EndReturnHome:
		ex.CurrentIndex = 0
		ex.prev = ex.Plan.Waypoints[len(ex.Plan.Waypoints)-1].Position
		ex.lap++
	case telem.EndHold:
		// Loiter on the last waypoint.
		last := ex.Plan.Waypoints[len(ex.Plan.Waypoints)-1]
		ex.CurrentIndex = len(ex.Plan.Waypoints) - 1
		ex.holding = true
		ex.Circling = true
		ex.CircleCenter = last.Position.LL()
		ex.CircleRadius = defaultCircleRadius
	}
}

func (ex *Executor) generateCommands(pos telem.Position, wp telem.Waypoint) NavCommands {
	var heading float64
	if ex.Circling {
		heading = ex.circleHeading(pos)
	} else {
		// Cross-track correction pulls the heading back toward the leg.
		correction := geo.Degrees(gomath.Atan2(ex.CrossTrack, gomath.Max(50, ex.DistanceToTarget)))
		heading = geo.NormalizeHeading(ex.BearingToTarget - correction)
	}

	altitude := wp.Position.Altitude
	if ex.landNow {
		altitude = 0
	}

	speed := ex.cruiseSpeed()
	if wp.Type == telem.WaypointApproach || wp.Type == telem.WaypointLanding {
		speed = approachSpeed
	}

	return NavCommands{Heading: &heading, Altitude: &altitude, Airspeed: &speed}
}

// circleHeading steers a clockwise orbit: fly the tangent, with a
// correction proportional to the radius error.
func (ex *Executor) circleHeading(pos telem.Position) float64 {
	fromCenter := geo.Bearing(ex.CircleCenter, pos.LL())
	dist := geo.Distance(ex.CircleCenter, pos.LL())

	tangent := geo.NormalizeHeading(fromCenter + 90)
	radiusError := dist - ex.CircleRadius
	correction := geo.Degrees(gomath.Atan2(radiusError, ex.CircleRadius))
	return geo.NormalizeHeading(tangent + correction)
}

func (ex *Executor) cruiseSpeed() float64 {
	if ex.Plan != nil && ex.Plan.Parameters.CruiseSpeed > 0 {
		return ex.Plan.Parameters.CruiseSpeed
	}
	return defaultCruiseSpeed
}

// EmergencyReturnToHome retargets the plan's home waypoint. A plan
// without one cannot satisfy the command.
func (ex *Executor) EmergencyReturnToHome() error {
	if ex.Plan == nil {
		return ErrNoFlightPlan
	}
	for i, wp := range ex.Plan.Waypoints {
		if wp.Type == telem.WaypointHome {
			return ex.SkipToWaypoint(i)
		}
	}
	return ErrNoHomeWaypoint
}

// EmergencyLand forces the altitude target to zero while keeping lateral
// guidance.
func (ex *Executor) EmergencyLand() {
	ex.landNow = true
}
