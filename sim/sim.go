// sim/sim.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package sim implements the flight simulator: an environment model, a
// GPS model, a rigid-body flight model and a flight-plan executor per
// aircraft, advanced together by a fixed-rate host that publishes one
// telemetry record per running aircraft per tick.
package sim

import (
	"context"
	"log/slog"
	"time"

	"github.com/openuas/groundlink/log"
	"github.com/openuas/groundlink/rand"
	"github.com/openuas/groundlink/telem"
	"github.com/openuas/groundlink/util"

	"github.com/google/uuid"
)

// Publisher is where the host sends telemetry and alerts; the broker
// implements it. Publishes must not block.
type Publisher interface {
	Publish(topic string, msg any)
}

type CreateRequest struct {
	AircraftID string                `json:"aircraftId"`
	Position   telem.Position        `json:"position"`
	Type       AircraftType          `json:"type"`
	Seed       int64                 `json:"seed,omitempty"`
	Envelope   *telem.FlightEnvelope `json:"envelope,omitempty"`
}

type AircraftStatus struct {
	SimID      string         `json:"simulatorId"`
	AircraftID string         `json:"aircraftId"`
	Type       AircraftType   `json:"type"`
	Running    bool           `json:"running"`
	Position   telem.Position `json:"position"`
	Battery    float64        `json:"battery"`
}

// Host owns all simulated aircraft. Aircraft state is mutated only under
// the host mutex, from the tick loop or from command delivery; everything
// published is a value copy.
type Host struct {
	mu util.LoggingMutex

	aircraft   map[string]*Aircraft // simID -> aircraft
	byAircraft map[string]string    // aircraftID -> simID

	pub      Publisher
	lg       *log.Logger
	tickRate float64 // Hz

	lastUpdate time.Time
	degraded   bool
}

func NewHost(tickRate float64, pub Publisher, lg *log.Logger) *Host {
	if tickRate <= 0 {
		tickRate = 50
	}
	return &Host{
		aircraft:   make(map[string]*Aircraft),
		byAircraft: make(map[string]string),
		pub:        pub,
		lg:         lg,
		tickRate:   tickRate,
	}
}

// Run drives the tick loop until the context is canceled; the current
// tick always completes before shutdown.
func (h *Host) Run(ctx context.Context) error {
	period := time.Duration(float64(time.Second) / h.tickRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	h.mu.Lock(h.lg)
	h.lastUpdate = time.Now()
	h.mu.Unlock(h.lg)

	for {
		select {
		case <-ctx.Done():
			h.lg.Info("simulator host stopped")
			return ctx.Err()
		case <-ticker.C:
			h.Tick()
		}
	}
}

// Tick advances every running aircraft by the measured wall-clock delta
// since the last tick, so physics stays correct when the loop runs late.
func (h *Host) Tick() {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)

	now := time.Now()
	dt := now.Sub(h.lastUpdate).Seconds()
	h.lastUpdate = now
	if dt <= 0 {
		return
	}
	// A hitch shouldn't turn into a physics explosion.
	if max := 10 / h.tickRate; dt > max {
		h.lg.Warn("unexpected hitch in tick rate", slog.Float64("dt", dt))
		dt = max
	}

	h.tickLocked(dt, now)
}

// TickDelta advances by an explicit delta; used by tests and the
// fast-forward path.
func (h *Host) TickDelta(dt float64, now time.Time) {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)
	h.lastUpdate = now
	h.tickLocked(dt, now)
}

func (h *Host) tickLocked(dt float64, now time.Time) {
	defer func() {
		if err := recover(); err != nil {
			// A fault in one tick must not take the host down: log,
			// mark degraded, carry on next tick.
			h.lg.Error("panic in simulator tick", slog.Any("error", err))
			if !h.degraded {
				h.degraded = true
				h.pub.Publish("status/sim", map[string]any{
					"status":    "degraded",
					"timestamp": now.UTC(),
				})
			}
		}
	}()

	for _, ac := range h.aircraft {
		if !ac.running {
			continue
		}
		t, alerts := ac.Tick(dt, now)
		h.pub.Publish("telemetry/"+ac.AircraftID, t)
		for _, alert := range alerts {
			h.pub.Publish("alerts/"+ac.AircraftID, alert)
		}
	}
}

///////////////////////////////////////////////////////////////////////////
// lifecycle operations

func (h *Host) Create(req CreateRequest) (string, error) {
	if req.AircraftID == "" {
		return "", telem.ErrMissingAircraftID
	}
	if err := req.Position.Validate(); err != nil {
		return "", err
	}
	switch req.Type {
	case "":
		req.Type = FixedWing
	case FixedWing, Rotorcraft:
	default:
		return "", ErrUnknownAircraftType
	}
	if req.Envelope != nil {
		if err := req.Envelope.Validate(); err != nil {
			return "", err
		}
	}

	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)

	if _, ok := h.byAircraft[req.AircraftID]; ok {
		return "", ErrAircraftExists
	}

	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.NewSeeded(seed)

	simID := uuid.NewString()
	ac := NewAircraft(simID, req.AircraftID, req.Type, req.Position,
		NewEnvironment(DefaultEnvironmentConfig(), rng), NewGPS(rng))
	ac.Envelope = req.Envelope

	h.aircraft[simID] = ac
	h.byAircraft[req.AircraftID] = simID

	h.lg.Info("created simulated aircraft", slog.String("sim_id", simID),
		slog.String("aircraft_id", req.AircraftID), slog.String("type", string(req.Type)))
	return simID, nil
}

func (h *Host) Delete(simID string) error {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)

	ac, ok := h.aircraft[simID]
	if !ok {
		return ErrUnknownSimulator
	}
	delete(h.aircraft, simID)
	delete(h.byAircraft, ac.AircraftID)
	h.lg.Info("deleted simulated aircraft", slog.String("sim_id", simID))
	return nil
}

func (h *Host) Start(simID string) error {
	return h.setRunning(simID, true)
}

func (h *Host) Stop(simID string) error {
	return h.setRunning(simID, false)
}

func (h *Host) setRunning(simID string, running bool) error {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)

	ac, ok := h.aircraft[simID]
	if !ok {
		return ErrUnknownSimulator
	}
	ac.running = running

	status := "stopped"
	if running {
		status = "running"
	}
	h.pub.Publish("status/"+ac.AircraftID, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
	return nil
}

func (h *Host) LoadFlightPlan(simID string, plan *telem.FlightPlan) error {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)

	ac, ok := h.aircraft[simID]
	if !ok {
		return ErrUnknownSimulator
	}
	return ac.LoadFlightPlan(plan)
}

// Command delivers a command to a simulator instance by simID.
func (h *Host) Command(simID string, cmd telem.Command) error {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)

	ac, ok := h.aircraft[simID]
	if !ok {
		return ErrUnknownSimulator
	}
	return h.deliverLocked(ac, cmd)
}

// CommandAircraft delivers a command addressed by aircraftId; this is
// the broker's routing entry point.
func (h *Host) CommandAircraft(aircraftID string, cmd telem.Command) error {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)

	simID, ok := h.byAircraft[aircraftID]
	if !ok {
		return ErrUnknownSimulator
	}
	return h.deliverLocked(h.aircraft[simID], cmd)
}

func (h *Host) deliverLocked(ac *Aircraft, cmd telem.Command) error {
	alerts, err := ac.ProcessCommand(cmd)
	for _, alert := range alerts {
		h.pub.Publish("alerts/"+ac.AircraftID, alert)
	}
	if err != nil {
		h.lg.Warn("command rejected", slog.String("aircraft_id", ac.AircraftID),
			slog.String("type", string(cmd.Type())), slog.Any("error", err))
	}
	return err
}

// HasAircraft reports whether the given aircraftId is simulated here.
func (h *Host) HasAircraft(aircraftID string) bool {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)
	_, ok := h.byAircraft[aircraftID]
	return ok
}

func (h *Host) List() []AircraftStatus {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)

	var out []AircraftStatus
	for simID, ac := range h.aircraft {
		out = append(out, AircraftStatus{
			SimID:      simID,
			AircraftID: ac.AircraftID,
			Type:       ac.Type,
			Running:    ac.running,
			Position:   ac.dyn.Position,
			Battery:    ac.gen.Battery(),
		})
	}
	return out
}

// lookup is a test helper to reach inside an aircraft.
func (h *Host) lookup(simID string) *Aircraft {
	h.mu.Lock(h.lg)
	defer h.mu.Unlock(h.lg)
	return h.aircraft[simID]
}
