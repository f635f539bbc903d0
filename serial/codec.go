// serial/codec.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package serial connects real autopilots over a serial line: newline
// framed records in, one line per command out, with link supervision and
// reconnect.
package serial

import (
	"encoding/json"
	"time"

	"github.com/openuas/groundlink/telem"
)

// Parser turns one inbound line into a telemetry record. Lines the
// parser cannot handle are dropped and counted, never fatal.
type Parser func(line []byte) (telem.Telemetry, error)

// Formatter turns a command into the line the autopilot expects, without
// the trailing newline.
type Formatter func(cmd telem.Command) ([]byte, error)

func JSONParser(line []byte) (telem.Telemetry, error) {
	var t telem.Telemetry
	if err := json.Unmarshal(line, &t); err != nil {
		return telem.Telemetry{}, err
	}
	return t, nil
}

func JSONFormatter(cmd telem.Command) ([]byte, error) {
	return json.Marshal(cmd)
}

// Codec maps between line framing and the canonical schema for one
// aircraft. Records arriving without a timestamp or aircraftId get them
// filled in; this is common with minimal autopilot firmware.
type Codec struct {
	AircraftID string
	Parse      Parser
	Format     Formatter
}

func NewCodec(aircraftID string) Codec {
	return Codec{AircraftID: aircraftID, Parse: JSONParser, Format: JSONFormatter}
}

func (c *Codec) Decode(line []byte, now time.Time) (telem.Telemetry, error) {
	t, err := c.Parse(line)
	if err != nil {
		return telem.Telemetry{}, err
	}
	if t.AircraftID == "" {
		t.AircraftID = c.AircraftID
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = now
	}
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return telem.Telemetry{}, err
	}
	return t, nil
}

func (c *Codec) Encode(cmd telem.Command) ([]byte, error) {
	b, err := c.Format(cmd)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
