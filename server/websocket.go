// server/websocket.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/openuas/groundlink/broker"
	simpkg "github.com/openuas/groundlink/sim"
	"github.com/openuas/groundlink/telem"

	"github.com/gorilla/websocket"
)

// Envelope is one frame of the subscriber protocol, both directions.
// Which fields are meaningful depends on Type.
type Envelope struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Message   any             `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Code      string          `json:"code,omitempty"`
	Details   string          `json:"details,omitempty"`

	// ack fields
	CommandTimestamp *time.Time `json:"commandTimestamp,omitempty"`
	Destination      string     `json:"destination,omitempty"`
	Accepted         *bool      `json:"accepted,omitempty"`
}

const maxConsecutiveMalformed = 3

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser dashboards connect cross-origin; access control is handled
	// at the deployment boundary.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// session is one connected WebSocket subscriber.
type session struct {
	conn *websocket.Conn
	sub  *broker.Subscriber
	srv  *Server

	writeMu sync.Mutex // the writer worker and reader replies share the conn
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.lg.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	sub, err := s.broker.Subscribe()
	if err != nil {
		conn.Close()
		return
	}

	sess := &session{conn: conn, sub: sub, srv: s}
	sess.run(r.Context())
}

func (sess *session) run(ctx context.Context) {
	defer sess.conn.Close()
	defer sess.srv.broker.Disconnect(sess.sub)

	now := time.Now().UTC()
	if err := sess.write(Envelope{Type: "welcome", Timestamp: &now}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Writer worker: drain the egress queue onto the socket.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		sess.writeLoop(ctx)
	}()

	sess.readLoop()
	cancel()
	<-writerDone
}

func (sess *session) writeLoop(ctx context.Context) {
	for {
		d, err := sess.sub.Next(ctx)
		if err != nil {
			if errors.Is(err, broker.ErrSubscriberClosed) {
				// Disconnected by the broker (critical overflow or
				// shutdown); close the socket to unblock the reader.
				sess.conn.Close()
			}
			return
		}
		env := Envelope{
			Type:      "publish",
			Topic:     d.Topic,
			Message:   d.Message,
			Timestamp: &d.Timestamp,
		}
		if err := sess.write(env); err != nil {
			return
		}
	}
}

func (sess *session) readLoop() {
	malformed := 0
	for {
		_, frame, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			malformed++
			sess.writeError("malformed", err.Error())
			if malformed >= maxConsecutiveMalformed {
				sess.srv.lg.Info("closing session after repeated malformed frames",
					slog.String("subscriber_id", sess.sub.ID))
				return
			}
			continue
		}

		if ok := sess.handle(env); !ok {
			malformed++
			if malformed >= maxConsecutiveMalformed {
				return
			}
		} else {
			malformed = 0
		}
	}
}

// handle processes one inbound envelope; false counts toward the
// malformed-frame limit.
func (sess *session) handle(env Envelope) bool {
	switch env.Type {
	case "subscribe":
		if env.Topic == "" {
			sess.writeError("malformed", "subscribe requires a topic")
			return false
		}
		sess.sub.Subscribe(env.Topic)
		return true

	case "unsubscribe":
		if env.Topic == "" {
			sess.writeError("malformed", "unsubscribe requires a topic")
			return false
		}
		sess.sub.Unsubscribe(env.Topic)
		return true

	case "ping":
		now := time.Now().UTC()
		sess.write(Envelope{Type: "pong", Timestamp: &now})
		return true

	case "command":
		return sess.handleCommand(env.Data)

	default:
		sess.writeError("malformed", "unknown envelope type "+env.Type)
		return false
	}
}

func (sess *session) handleCommand(data json.RawMessage) bool {
	var cmd telem.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		sess.writeError("invalid_command", err.Error())
		return false
	}

	err := sess.srv.broker.DeliverCommand(cmd)
	if err != nil {
		sess.writeError(errorCode(err), err.Error())
	}
	if cmd.RequiresAck {
		accepted := err == nil
		sess.write(Envelope{
			Type:             "ack",
			CommandTimestamp: &cmd.Timestamp,
			Destination:      cmd.Destination,
			Accepted:         &accepted,
		})
	}
	// A routed-but-rejected command is still a well-formed frame.
	return true
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, broker.ErrNoRoute):
		return "no_route"
	case errors.Is(err, simpkg.ErrEnvelopeViolation):
		return "envelope"
	default:
		return "invalid_command"
	}
}

func (sess *session) write(env Envelope) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sess.conn.WriteJSON(env)
}

func (sess *session) writeError(code, details string) {
	sess.write(Envelope{Type: "error", Code: code, Details: details})
}
