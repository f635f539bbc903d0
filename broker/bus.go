// broker/bus.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package broker

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openuas/groundlink/log"

	"github.com/nats-io/nats.go"
	"github.com/streadway/amqp"
)

// Bus is an external message-bus connection bridging local topics under
// the paparazzi/ root. Connection loss is non-fatal: publishes fail
// quietly and the driver reconnects on its own.
type Bus interface {
	Publish(topic string, payload []byte) error
	Subscribe(handler func(topic string, payload []byte)) error
	Connected() bool
	Close()
}

// Dial connects the bus named by the URL scheme: nats:// or
// amqp://.
func Dial(url string, lg *log.Logger) (Bus, error) {
	switch {
	case strings.HasPrefix(url, "nats://"):
		return dialNATS(url, lg)
	case strings.HasPrefix(url, "amqp://"), strings.HasPrefix(url, "amqps://"):
		return dialAMQP(url, lg), nil
	default:
		return nil, ErrUnknownBusScheme
	}
}

// Topics are slash-separated locally but dot-separated on both bus
// flavors.
func busSubject(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

func busTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

///////////////////////////////////////////////////////////////////////////
// NATS

type natsBus struct {
	nc *nats.Conn
	lg *log.Logger
}

func dialNATS(url string, lg *log.Logger) (*natsBus, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			lg.Warn("external bus disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			lg.Info("external bus reconnected", slog.String("url", nc.ConnectedUrl()))
		}))
	if err != nil {
		return nil, err
	}
	return &natsBus{nc: nc, lg: lg}, nil
}

func (b *natsBus) Publish(topic string, payload []byte) error {
	return b.nc.Publish(busSubject(topic), payload)
}

func (b *natsBus) Subscribe(handler func(topic string, payload []byte)) error {
	_, err := b.nc.Subscribe("paparazzi.>", func(m *nats.Msg) {
		handler(busTopic(m.Subject), m.Data)
	})
	return err
}

func (b *natsBus) Connected() bool {
	return b.nc.IsConnected()
}

func (b *natsBus) Close() {
	b.nc.Drain()
}

///////////////////////////////////////////////////////////////////////////
// AMQP

// amqpBus bridges through a topic exchange named paparazzi. The client
// library does not reconnect on its own, so a supervisor goroutine
// redials with backoff whenever the connection drops.
type amqpBus struct {
	url string
	lg  *log.Logger

	mu        sync.Mutex
	ch        *amqp.Channel
	conn      *amqp.Connection
	handler   func(topic string, payload []byte)
	connected bool

	done chan struct{}
}

func dialAMQP(url string, lg *log.Logger) *amqpBus {
	b := &amqpBus{url: url, lg: lg, done: make(chan struct{})}
	go b.maintain()
	return b
}

func (b *amqpBus) maintain() {
	backoff := time.Second
	for {
		select {
		case <-b.done:
			return
		default:
		}

		closed, err := b.connect()
		if err != nil {
			b.lg.Warn("external bus connect failed", slog.String("url", b.url),
				slog.Any("error", err))
			select {
			case <-b.done:
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second
		b.lg.Info("external bus connected", slog.String("url", b.url))

		select {
		case <-b.done:
			return
		case err := <-closed:
			b.setDisconnected()
			b.lg.Warn("external bus connection lost", slog.Any("error", err))
		}
	}
}

// connect dials and declares the exchange; the returned channel fires
// when the connection dies.
func (b *amqpBus) connect() (chan *amqp.Error, error) {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare("paparazzi", "topic", false, true, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	b.mu.Lock()
	b.conn, b.ch = conn, ch
	b.connected = true
	handler := b.handler
	b.mu.Unlock()

	if handler != nil {
		if err := b.consume(ch, handler); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return conn.NotifyClose(make(chan *amqp.Error, 1)), nil
}

func (b *amqpBus) consume(ch *amqp.Channel, handler func(string, []byte)) error {
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(q.Name, "paparazzi.#", "paparazzi", false, nil); err != nil {
		return err
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return err
	}
	go func() {
		for m := range msgs {
			handler(busTopic(m.RoutingKey), m.Body)
		}
	}()
	return nil
}

func (b *amqpBus) setDisconnected() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.ch = nil
	b.conn = nil
}

func (b *amqpBus) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	if ch == nil {
		return ErrBusDisconnected
	}
	return ch.Publish("paparazzi", busSubject(topic), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
}

// Subscribe installs the inbound handler. If a connection is already
// up it is bounced so the consumer gets (re)established.
func (b *amqpBus) Subscribe(handler func(topic string, payload []byte)) error {
	b.mu.Lock()
	b.handler = handler
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return nil
}

func (b *amqpBus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *amqpBus) Close() {
	close(b.done)
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
