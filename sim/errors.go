// sim/errors.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"errors"
)

var (
	ErrAircraftExists       = errors.New("Aircraft with that ID already exists")
	ErrEnvelopeViolation    = errors.New("Command violates the flight envelope")
	ErrNoFlightPlan         = errors.New("No flight plan loaded")
	ErrNoHomeWaypoint       = errors.New("Flight plan has no home waypoint")
	ErrUnknownAircraftType  = errors.New("Unknown aircraft type")
	ErrUnknownParameter     = errors.New("Unknown parameter name")
	ErrUnknownSimulator     = errors.New("Unknown simulator ID")
	ErrWaypointOutOfRange   = errors.New("Waypoint index out of range")
)
