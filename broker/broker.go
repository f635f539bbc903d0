// broker/broker.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package broker

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openuas/groundlink/log"
	"github.com/openuas/groundlink/telem"

	"github.com/google/uuid"
)

// CommandTarget is the simulator host's routing surface.
type CommandTarget interface {
	HasAircraft(aircraftID string) bool
	CommandAircraft(aircraftID string, cmd telem.Command) error
}

// CommandLink is an open serial link's routing surface.
type CommandLink interface {
	Send(cmd telem.Command) error
	Connected() bool
}

type Health struct {
	Status               string    `json:"status"`
	Timestamp            time.Time `json:"timestamp"`
	Subscribers          int       `json:"subscribers"`
	SerialLinks          int       `json:"serialLinks"`
	ExternalBusConnected bool      `json:"externalBusConnected"`
}

// Broker owns the subscription table, the serial links and the optional
// external bus bridge. Publishes never block the caller: slow
// subscribers lose their oldest non-critical messages, and a subscriber
// whose queue is saturated with critical traffic is disconnected.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	links       map[string]CommandLink
	sim         CommandTarget
	bus         Bus
	closed      bool

	queueSize int
	lg        *log.Logger
}

func New(queueSize int, lg *log.Logger) *Broker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Broker{
		subscribers: make(map[string]*Subscriber),
		links:       make(map[string]CommandLink),
		queueSize:   queueSize,
		lg:          lg,
	}
}

// AttachSimulator wires the simulator host in as a command destination.
func (b *Broker) AttachSimulator(sim CommandTarget) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sim = sim
}

// AttachLink registers the serial link serving the given aircraft.
func (b *Broker) AttachLink(aircraftID string, link CommandLink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.links[aircraftID] = link
}

// AttachBus connects the external message bus and starts bridging
// inbound bus traffic into the local publish path.
func (b *Broker) AttachBus(bus Bus) error {
	b.mu.Lock()
	b.bus = bus
	b.mu.Unlock()
	return bus.Subscribe(b.handleBusMessage)
}

///////////////////////////////////////////////////////////////////////////
// subscribers

// Subscribe registers a new subscriber session with an empty
// subscription set.
func (b *Broker) Subscribe() (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}

	s := &Subscriber{
		ID:     uuid.NewString(),
		topics: make(map[string]struct{}),
		queue:  newEgressQueue(b.queueSize),
	}
	b.subscribers[s.ID] = s
	subscribersGauge.Set(float64(len(b.subscribers)))
	b.lg.Info("subscriber connected", slog.String("subscriber_id", s.ID))
	return s, nil
}

// Disconnect removes a subscriber and closes its queue. Safe to call
// twice.
func (b *Broker) Disconnect(s *Subscriber) {
	b.mu.Lock()
	_, present := b.subscribers[s.ID]
	delete(b.subscribers, s.ID)
	subscribersGauge.Set(float64(len(b.subscribers)))
	b.mu.Unlock()

	s.close()
	if present {
		b.lg.Info("subscriber disconnected", slog.String("subscriber_id", s.ID))
	}
}

///////////////////////////////////////////////////////////////////////////
// publishing

// Publish fans a message out to every matching subscriber and, when a
// bus is attached, forwards it under the paparazzi/ root. It never
// blocks on a slow subscriber.
func (b *Broker) Publish(topic string, msg any) {
	b.publish(topic, msg, false)
}

// Inject republishes an operator-supplied body under the paparazzi/
// root; a testing bypass.
func (b *Broker) Inject(topicSuffix string, body any) {
	b.Publish("paparazzi/"+topicSuffix, body)
}

// publish distributes one message. fromBus suppresses the forward back
// onto the external bus so bridged messages cannot loop.
func (b *Broker) publish(topic string, msg any, fromBus bool) {
	critical, urgent := classify(msg)
	d := Delivery{
		Topic:     topic,
		Message:   msg,
		Timestamp: time.Now().UTC(),
		critical:  critical,
		urgent:    urgent,
	}
	publishesTotal.WithLabelValues(topicRoot(topic)).Inc()

	b.mu.RLock()
	bus := b.bus
	var overflowed []*Subscriber
	for _, s := range b.subscribers {
		if !s.matches(topic) {
			continue
		}
		if !s.deliver(d) {
			overflowed = append(overflowed, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range overflowed {
		b.lg.Warn("disconnecting subscriber with saturated critical queue",
			slog.String("subscriber_id", s.ID), slog.String("topic", topic))
		disconnectsTotal.Inc()
		b.Disconnect(s)
	}

	if bus != nil && !fromBus {
		payload, err := json.Marshal(msg)
		if err != nil {
			b.lg.Error("marshal for external bus failed", slog.String("topic", topic),
				slog.Any("error", err))
			return
		}
		if err := bus.Publish("paparazzi/"+topic, payload); err != nil {
			busPublishErrors.Inc()
			b.lg.Debug("external bus publish failed", slog.String("topic", topic),
				slog.Any("error", err))
		}
	}
}

// handleBusMessage bridges one inbound external-bus message into the
// local publish path.
func (b *Broker) handleBusMessage(topic string, payload []byte) {
	local := strings.TrimPrefix(topic, "paparazzi/")
	var msg any
	switch topicRoot(local) {
	case "telemetry":
		var t telem.Telemetry
		if err := json.Unmarshal(payload, &t); err != nil {
			b.lg.Debug("dropping malformed bus telemetry", slog.Any("error", err))
			return
		}
		msg = t
	case "alerts":
		var a telem.SafetyAlert
		if err := json.Unmarshal(payload, &a); err != nil {
			b.lg.Debug("dropping malformed bus alert", slog.Any("error", err))
			return
		}
		msg = a
	default:
		var raw json.RawMessage = payload
		msg = raw
	}
	b.publish(local, msg, true)
}

///////////////////////////////////////////////////////////////////////////
// commands

// DeliverCommand validates and routes one command: to the simulator
// host if it owns the destination aircraft, else to an open serial
// link, else ErrNoRoute. The echo on commands/<dst> is published before
// delivery so observers see the command ahead of its effects. Exactly
// one destination is attempted; the broker never retries.
func (b *Broker) DeliverCommand(cmd telem.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	dst := cmd.Destination

	b.mu.RLock()
	sim := b.sim
	link := b.links[dst]
	b.mu.RUnlock()

	switch {
	case sim != nil && sim.HasAircraft(dst):
		b.Publish("commands/"+dst, cmd)
		return sim.CommandAircraft(dst, cmd)
	case link != nil && link.Connected():
		b.Publish("commands/"+dst, cmd)
		return link.Send(cmd)
	default:
		return ErrNoRoute
	}
}

///////////////////////////////////////////////////////////////////////////

func (b *Broker) Health() Health {
	b.mu.RLock()
	defer b.mu.RUnlock()

	openLinks := 0
	for _, l := range b.links {
		if l.Connected() {
			openLinks++
		}
	}
	return Health{
		Status:               "ok",
		Timestamp:            time.Now().UTC(),
		Subscribers:          len(b.subscribers),
		SerialLinks:          openLinks,
		ExternalBusConnected: b.bus != nil && b.bus.Connected(),
	}
}

// Close stops accepting subscribers, drains egress queues for up to 5
// seconds, then disconnects everyone and closes the bus.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	bus := b.bus
	b.mu.Unlock()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		pending := false
		for _, s := range subs {
			if !s.drained() {
				pending = true
				break
			}
		}
		if !pending {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	for _, s := range subs {
		b.Disconnect(s)
	}
	if bus != nil {
		bus.Close()
	}
	b.lg.Info("broker closed")
}

// classify maps a message to its backpressure class: commands and
// critical/emergency alerts survive drop-oldest, and emergency-priority
// commands jump the queue.
func classify(msg any) (critical, urgent bool) {
	switch m := msg.(type) {
	case telem.Command:
		return true, m.Priority == telem.PriorityEmergency
	case telem.SafetyAlert:
		return m.Level.Critical(), false
	}
	return false, false
}

func topicRoot(topic string) string {
	root, _, _ := strings.Cut(topic, "/")
	return root
}
