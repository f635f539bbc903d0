// broker/broker_test.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/openuas/groundlink/telem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type simStub struct {
	aircraft map[string]bool
	commands []telem.Command
	err      error
}

func (s *simStub) HasAircraft(id string) bool { return s.aircraft[id] }

func (s *simStub) CommandAircraft(id string, cmd telem.Command) error {
	s.commands = append(s.commands, cmd)
	return s.err
}

type linkStub struct {
	connected bool
	sent      []telem.Command
}

func (l *linkStub) Send(cmd telem.Command) error {
	l.sent = append(l.sent, cmd)
	return nil
}

func (l *linkStub) Connected() bool { return l.connected }

func telemetryRecord(id string, msgID uint64) telem.Telemetry {
	return telem.Telemetry{
		Timestamp:  time.Now().UTC(),
		AircraftID: id,
		MessageID:  msgID,
		Position:   telem.Position{Latitude: 43.56, Longitude: 1.48, Altitude: 100},
	}
}

// drain pops everything currently queued for the subscriber.
func drain(t *testing.T, s *Subscriber) []Delivery {
	t.Helper()
	var out []Delivery
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		d, err := s.Next(ctx)
		cancel()
		if err != nil {
			return out
		}
		out = append(out, d)
	}
}

func emergencyLand(dst string) telem.Command {
	return telem.Command{
		Timestamp:   time.Now(),
		Source:      "gcs-1",
		Destination: dst,
		Priority:    telem.PriorityEmergency,
		RequiresAck: true,
		Spec:        &telem.EmergencyLand{},
	}
}

func TestFanOutTwoSubscribers(t *testing.T) {
	b := New(1024, nil)

	subA, err := b.Subscribe()
	require.NoError(t, err)
	subA.Subscribe("telemetry/ac1")
	subB, err := b.Subscribe()
	require.NoError(t, err)
	subB.Subscribe("*")

	for i := 1; i <= 100; i++ {
		b.Publish("telemetry/ac1", telemetryRecord("ac1", uint64(i)))
	}

	for _, sub := range []*Subscriber{subA, subB} {
		got := drain(t, sub)
		require.Len(t, got, 100)
		var last uint64
		for _, d := range got {
			assert.Equal(t, "telemetry/ac1", d.Topic)
			rec := d.Message.(telem.Telemetry)
			assert.Greater(t, rec.MessageID, last, "per-topic order is preserved")
			last = rec.MessageID
		}
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	b := New(1024, nil)
	sub, err := b.Subscribe()
	require.NoError(t, err)
	sub.Subscribe("telemetry/ac1")
	sub.Subscribe("telemetry/ac1")
	sub.Subscribe("telemetry/*") // overlapping patterns still mean one copy

	b.Publish("telemetry/ac1", telemetryRecord("ac1", 1))
	assert.Len(t, drain(t, sub), 1)

	sub.Unsubscribe("telemetry/ac1")
	sub.Unsubscribe("telemetry/*")
	b.Publish("telemetry/ac1", telemetryRecord("ac1", 2))
	assert.Empty(t, drain(t, sub))
}

func TestSlowSubscriberDropOldest(t *testing.T) {
	b := New(32, nil)
	sub, err := b.Subscribe()
	require.NoError(t, err)
	sub.Subscribe("telemetry/ac1")
	sub.Subscribe("alerts/ac1")

	critical := telem.MakeAlert("ac1", telem.AlertCritical, telem.AlertSystem,
		"battery_low", "battery low")

	for i := 1; i <= 2000; i++ {
		b.Publish("telemetry/ac1", telemetryRecord("ac1", uint64(i)))
		if i%500 == 0 {
			b.Publish("alerts/ac1", critical)
		}
	}

	got := drain(t, sub)
	assert.Len(t, got, 32, "bounded by the queue size")
	assert.Equal(t, int64(2004-32), sub.Dropped())

	// Every critical alert survived the overflow.
	alerts := 0
	for _, d := range got {
		if d.Topic == "alerts/ac1" {
			alerts++
		}
	}
	assert.Equal(t, 4, alerts)

	// Telemetry that did survive is still in order.
	var last uint64
	for _, d := range got {
		if rec, ok := d.Message.(telem.Telemetry); ok {
			assert.Greater(t, rec.MessageID, last)
			last = rec.MessageID
		}
	}
}

func TestCriticalFloodDisconnects(t *testing.T) {
	b := New(4, nil)
	sub, err := b.Subscribe()
	require.NoError(t, err)
	sub.Subscribe("alerts/ac1")

	critical := telem.MakeAlert("ac1", telem.AlertEmergency, telem.AlertSystem,
		"failsafe", "failsafe triggered")
	for i := 0; i < 5; i++ {
		b.Publish("alerts/ac1", critical)
	}

	// The fifth publish found the queue full of critical traffic.
	_, err = sub.Next(context.Background())
	if err == nil {
		// the four queued alerts are still readable, then the session ends
		got := drain(t, sub)
		assert.LessOrEqual(t, len(got), 3)
	}
	assert.Equal(t, 0, b.Health().Subscribers)
}

func TestDeliverCommandToSimulator(t *testing.T) {
	b := New(1024, nil)
	sim := &simStub{aircraft: map[string]bool{"ac1": true}}
	b.AttachSimulator(sim)

	observer, err := b.Subscribe()
	require.NoError(t, err)
	observer.Subscribe("commands/*")

	require.NoError(t, b.DeliverCommand(emergencyLand("ac1")))
	require.Len(t, sim.commands, 1)
	assert.Equal(t, telem.CommandEmergencyLand, sim.commands[0].Type())

	// The echo lands on commands/<dst> for observers.
	got := drain(t, observer)
	require.Len(t, got, 1)
	assert.Equal(t, "commands/ac1", got[0].Topic)
	echoed := got[0].Message.(telem.Command)
	assert.Equal(t, telem.PriorityEmergency, echoed.Priority)
}

func TestDeliverCommandToSerialLink(t *testing.T) {
	b := New(1024, nil)
	link := &linkStub{connected: true}
	b.AttachLink("ac2", link)

	cmd := telem.Command{
		Timestamp:   time.Now(),
		Destination: "ac2",
		Priority:    telem.PriorityNormal,
		Spec:        &telem.MissionStart{},
	}
	require.NoError(t, b.DeliverCommand(cmd))
	require.Len(t, link.sent, 1)

	// A disconnected link is not a route.
	link.connected = false
	assert.ErrorIs(t, b.DeliverCommand(cmd), ErrNoRoute)
}

func TestDeliverCommandNoRoute(t *testing.T) {
	b := New(1024, nil)
	b.AttachSimulator(&simStub{aircraft: map[string]bool{"ac1": true}})

	observer, err := b.Subscribe()
	require.NoError(t, err)
	observer.Subscribe("commands/*")

	err = b.DeliverCommand(emergencyLand("ghost"))
	assert.ErrorIs(t, err, ErrNoRoute)

	// No echo for a command that went nowhere.
	assert.Empty(t, drain(t, observer))
}

func TestDeliverCommandValidates(t *testing.T) {
	b := New(1024, nil)

	err := b.DeliverCommand(telem.Command{Priority: telem.PriorityNormal})
	assert.ErrorIs(t, err, telem.ErrMissingDestination)

	err = b.DeliverCommand(telem.Command{
		Destination: "ac1", Priority: telem.PriorityNormal,
	})
	assert.ErrorIs(t, err, telem.ErrInvalidCommandType)
}

func TestEmergencyCommandJumpsFullQueue(t *testing.T) {
	b := New(8, nil)
	sim := &simStub{aircraft: map[string]bool{"ac1": true}}
	b.AttachSimulator(sim)

	sub, err := b.Subscribe()
	require.NoError(t, err)
	sub.Subscribe("commands/ac1")
	sub.Subscribe("alerts/ac1")

	// Fill the queue with info-level noise.
	info := telem.MakeAlert("ac1", telem.AlertInfo, telem.AlertSystem, "heartbeat", "ok")
	for i := 0; i < 8; i++ {
		b.Publish("alerts/ac1", info)
	}

	require.NoError(t, b.DeliverCommand(emergencyLand("ac1")))
	require.Len(t, sim.commands, 1)

	// The echo is deliverable ahead of the queued noise.
	d, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "commands/ac1", d.Topic)
}

func TestInjectPublishesUnderPaparazzi(t *testing.T) {
	b := New(1024, nil)
	sub, err := b.Subscribe()
	require.NoError(t, err)
	sub.Subscribe("paparazzi/*")

	b.Inject("telemetry/ac9", map[string]any{"raw": true})

	got := drain(t, sub)
	require.Len(t, got, 1)
	assert.Equal(t, "paparazzi/telemetry/ac9", got[0].Topic)
}

func TestHealth(t *testing.T) {
	b := New(1024, nil)
	b.AttachLink("ac1", &linkStub{connected: true})
	b.AttachLink("ac2", &linkStub{connected: false})
	_, err := b.Subscribe()
	require.NoError(t, err)

	h := b.Health()
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 1, h.Subscribers)
	assert.Equal(t, 1, h.SerialLinks, "only open links count")
	assert.False(t, h.ExternalBusConnected)
}

func TestCloseRefusesNewSubscribers(t *testing.T) {
	b := New(1024, nil)
	sub, err := b.Subscribe()
	require.NoError(t, err)
	b.Close()

	_, err = b.Subscribe()
	assert.ErrorIs(t, err, ErrBrokerClosed)

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriberClosed)
}

func TestDialRejectsUnknownScheme(t *testing.T) {
	_, err := Dial("kafka://localhost:9092", nil)
	assert.ErrorIs(t, err, ErrUnknownBusScheme)
}

func TestPublishManyAircraftIsolated(t *testing.T) {
	b := New(1024, nil)

	subs := make(map[string]*Subscriber)
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("ac%d", i)
		sub, err := b.Subscribe()
		require.NoError(t, err)
		sub.Subscribe("telemetry/" + id)
		subs[id] = sub
	}

	for i := 1; i <= 30; i++ {
		id := fmt.Sprintf("ac%d", i%3+1)
		b.Publish("telemetry/"+id, telemetryRecord(id, uint64(i)))
	}

	for id, sub := range subs {
		got := drain(t, sub)
		require.Len(t, got, 10)
		for _, d := range got {
			assert.Equal(t, "telemetry/"+id, d.Topic)
		}
	}
}
