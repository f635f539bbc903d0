// telem/errors.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package telem

import (
	"errors"
)

var (
	ErrDuplicateHomeWaypoint  = errors.New("Flight plan has more than one home waypoint")
	ErrEmptyFlightPlan        = errors.New("Flight plan has no waypoints")
	ErrFirstWaypointNotOrigin = errors.New("First waypoint must be takeoff or home")
	ErrInvalidAltitudeBounds  = errors.New("Cruise altitude exceeds maximum altitude")
	ErrInvalidBattery         = errors.New("Battery percentage out of range")
	ErrInvalidCommandType     = errors.New("Unknown command type")
	ErrInvalidEnvelope        = errors.New("Envelope bounds must satisfy min < cruise < max")
	ErrInvalidGPS             = errors.New("Invalid GPS satellite count or accuracy")
	ErrInvalidHeading         = errors.New("Heading out of range [0,360)")
	ErrInvalidHumidity        = errors.New("Humidity out of range [0,100]")
	ErrInvalidLatitude        = errors.New("Latitude out of range [-90,90]")
	ErrInvalidLongitude       = errors.New("Longitude out of range [-180,180]")
	ErrInvalidPriority        = errors.New("Unknown command priority")
	ErrInvalidWaypointType    = errors.New("Unknown waypoint type")
	ErrInvalidWind            = errors.New("Invalid wind speed or direction")
	ErrMissingAircraftID      = errors.New("Aircraft ID is empty")
	ErrMissingDestination     = errors.New("Command destination is empty")
	ErrMissingParameter       = errors.New("Required command parameter is missing")
)
