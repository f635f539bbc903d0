// telem/command.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package telem

import (
	"encoding/json"
	"fmt"
	"time"
)

type CommandType string

const (
	CommandWaypointUpdate   CommandType = "waypoint_update"
	CommandFlightPlanUpload CommandType = "flight_plan_upload"
	CommandParameterSet     CommandType = "parameter_set"
	CommandMissionStart     CommandType = "mission_start"
	CommandMissionPause     CommandType = "mission_pause"
	CommandMissionAbort     CommandType = "mission_abort"
	CommandReturnToHome     CommandType = "return_to_home"
	CommandEmergencyLand    CommandType = "emergency_land"
)

type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityEmergency Priority = "emergency"
)

func (p Priority) Validate() error {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityEmergency:
		return nil
	}
	return ErrInvalidPriority
}

// CommandSpec is the typed payload of a Command; there is one variant per
// CommandType carrying only the fields that type needs. The free-form
// parameters map exists only on the wire and is normalized at the
// boundary by Command.UnmarshalJSON.
type CommandSpec interface {
	CommandType() CommandType
}

type WaypointUpdate struct {
	Index    int      `json:"index"`
	Waypoint Waypoint `json:"waypoint"`
}

type FlightPlanUpload struct {
	Plan FlightPlan `json:"plan"`
}

type ParameterSet struct {
	Name  string `json:"name"`
	Value any    `json:"value"` // string or number, bounded at the boundary
}

type MissionStart struct{}
type MissionPause struct{}
type MissionAbort struct{}
type ReturnToHome struct{}
type EmergencyLand struct{}

func (WaypointUpdate) CommandType() CommandType   { return CommandWaypointUpdate }
func (FlightPlanUpload) CommandType() CommandType { return CommandFlightPlanUpload }
func (ParameterSet) CommandType() CommandType     { return CommandParameterSet }
func (MissionStart) CommandType() CommandType     { return CommandMissionStart }
func (MissionPause) CommandType() CommandType     { return CommandMissionPause }
func (MissionAbort) CommandType() CommandType     { return CommandMissionAbort }
func (ReturnToHome) CommandType() CommandType     { return CommandReturnToHome }
func (EmergencyLand) CommandType() CommandType    { return CommandEmergencyLand }

// Command is a control message addressed to one aircraft.
type Command struct {
	Timestamp   time.Time
	Source      string
	Destination string
	Priority    Priority
	RequiresAck bool
	Spec        CommandSpec
}

func (c *Command) Type() CommandType {
	if c.Spec == nil {
		return ""
	}
	return c.Spec.CommandType()
}

func (c *Command) Validate() error {
	if c.Destination == "" {
		return ErrMissingDestination
	}
	if c.Spec == nil {
		return ErrInvalidCommandType
	}
	if err := c.Priority.Validate(); err != nil {
		return err
	}
	if fpu, ok := c.Spec.(*FlightPlanUpload); ok {
		return fpu.Plan.Validate()
	}
	return nil
}

// wireCommand is the as-transmitted shape with the untyped parameters
// map.
type wireCommand struct {
	Timestamp   time.Time       `json:"timestamp"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Type        CommandType     `json:"commandType"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Priority    Priority        `json:"priority"`
	RequiresAck bool            `json:"requiresAck"`
}

func (c *Command) UnmarshalJSON(b []byte) error {
	var w wireCommand
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	spec, err := decodeSpec(w.Type, w.Parameters)
	if err != nil {
		return err
	}

	c.Timestamp = w.Timestamp
	c.Source = w.Source
	c.Destination = w.Destination
	c.Priority = w.Priority
	if c.Priority == "" {
		c.Priority = PriorityNormal
	}
	// Emergencies always demand an acknowledgement, whatever the sender
	// said.
	c.RequiresAck = w.RequiresAck || c.Priority == PriorityEmergency
	c.Spec = spec
	return nil
}

func (c Command) MarshalJSON() ([]byte, error) {
	w := wireCommand{
		Timestamp:   c.Timestamp,
		Source:      c.Source,
		Destination: c.Destination,
		Type:        c.Type(),
		Priority:    c.Priority,
		RequiresAck: c.RequiresAck || c.Priority == PriorityEmergency,
	}

	switch c.Spec.(type) {
	case *MissionStart, *MissionPause, *MissionAbort, *ReturnToHome, *EmergencyLand,
		MissionStart, MissionPause, MissionAbort, ReturnToHome, EmergencyLand, nil:
		// No parameters on the wire.
	default:
		p, err := json.Marshal(c.Spec)
		if err != nil {
			return nil, err
		}
		w.Parameters = p
	}

	return json.Marshal(w)
}

func decodeSpec(t CommandType, params json.RawMessage) (CommandSpec, error) {
	unmarshal := func(spec CommandSpec) (CommandSpec, error) {
		if len(params) == 0 {
			return nil, fmt.Errorf("%s: %w", t, ErrMissingParameter)
		}
		if err := json.Unmarshal(params, spec); err != nil {
			return nil, err
		}
		return spec, nil
	}

	switch t {
	case CommandWaypointUpdate:
		return unmarshal(&WaypointUpdate{})
	case CommandFlightPlanUpload:
		return unmarshal(&FlightPlanUpload{})
	case CommandParameterSet:
		return unmarshal(&ParameterSet{})
	case CommandMissionStart:
		return &MissionStart{}, nil
	case CommandMissionPause:
		return &MissionPause{}, nil
	case CommandMissionAbort:
		return &MissionAbort{}, nil
	case CommandReturnToHome:
		return &ReturnToHome{}, nil
	case CommandEmergencyLand:
		return &EmergencyLand{}, nil
	default:
		return nil, ErrInvalidCommandType
	}
}
