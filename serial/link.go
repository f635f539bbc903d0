// serial/link.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openuas/groundlink/log"
	"github.com/openuas/groundlink/telem"
	"github.com/openuas/groundlink/util"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	goserial "go.bug.st/serial"
)

var (
	ErrLinkClosed = errors.New("serial link is not connected")
)

var (
	reconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groundlink_serial_reconnects_total",
		Help: "Serial link (re)connection attempts.",
	}, []string{"aircraft"})
	droppedRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groundlink_serial_dropped_records_total",
		Help: "Inbound serial records dropped as unparseable.",
	}, []string{"aircraft"})
)

const (
	readTimeout     = 5 * time.Second
	silenceWarning  = 5 * time.Second
	silenceCritical = 15 * time.Second
	maxBackoff      = 30 * time.Second
)

// Publisher is where decoded telemetry, alerts and link status go; the
// broker implements it.
type Publisher interface {
	Publish(topic string, msg any)
}

type Config struct {
	Path       string `json:"path" mapstructure:"path"`
	BaudRate   int    `json:"baudRate" mapstructure:"baud_rate"`
	AircraftID string `json:"aircraftId" mapstructure:"aircraft_id"`
}

// PortOpener lets tests substitute an in-memory pipe for the device.
type PortOpener func(cfg Config) (io.ReadWriteCloser, error)

func openSerialPort(cfg Config) (io.ReadWriteCloser, error) {
	port, err := goserial.Open(cfg.Path, &goserial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, err
	}
	// A timed-out Read returns zero bytes; the read loop tolerates that
	// and the supervisor turns sustained silence into alerts.
	port.SetReadTimeout(readTimeout)
	return port, nil
}

type silenceState int

const (
	silenceNone silenceState = iota
	silenceWarned
	silenceEscalated
)

// Link supervises one serial connection: it owns the port, republishes
// decoded records, raises silence alerts, and reopens the device with
// exponential backoff after any failure.
type Link struct {
	Config

	codec Codec
	pub   Publisher
	lg    *log.Logger
	open  PortOpener

	mu        sync.Mutex // guards port for writes
	port      io.ReadWriteCloser
	connected util.AtomicBool

	lastRecord time.Time
	silence    silenceState
	dropped    atomic.Int64
}

func NewLink(cfg Config, pub Publisher, lg *log.Logger) *Link {
	return &Link{
		Config: cfg,
		codec:  NewCodec(cfg.AircraftID),
		pub:    pub,
		lg:     lg,
		open:   openSerialPort,
	}
}

func (l *Link) Connected() bool {
	return l.connected.Load()
}

// Dropped returns how many inbound records were discarded as
// unparseable.
func (l *Link) Dropped() int64 {
	return l.dropped.Load()
}

// Send writes one command line to the autopilot. Best effort: no write
// timeout beyond the OS buffer.
func (l *Link) Send(cmd telem.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return ErrLinkClosed
	}
	b, err := l.codec.Encode(cmd)
	if err != nil {
		return err
	}
	_, err = l.port.Write(b)
	return err
}

// Run opens the device and services it until the context is canceled,
// reconnecting with exponential backoff (1s doubling to a 30s cap) after
// open failures and read errors.
func (l *Link) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		reconnectsTotal.WithLabelValues(l.AircraftID).Inc()
		port, err := l.open(l.Config)
		if err != nil {
			l.lg.Warn("serial open failed", slog.String("path", l.Path),
				slog.String("aircraft_id", l.AircraftID), slog.Any("error", err))
			l.publishStatus("disconnected")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		l.setPort(port)
		l.publishStatus("connected")
		l.lg.Info("serial link open", slog.String("path", l.Path),
			slog.String("aircraft_id", l.AircraftID))

		err = l.service(ctx, port)

		l.setPort(nil)
		port.Close()
		l.publishStatus("disconnected")

		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.lg.Warn("serial link lost", slog.String("aircraft_id", l.AircraftID),
			slog.Any("error", err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (l *Link) setPort(port io.ReadWriteCloser) {
	l.mu.Lock()
	l.port = port
	l.mu.Unlock()
	l.connected.Store(port != nil)
}

func (l *Link) publishStatus(status string) {
	l.pub.Publish("status/"+l.AircraftID, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// service pumps the open port until it fails or the context ends.
func (l *Link) service(ctx context.Context, port io.Reader) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go readLines(port, lines, readErr)

	l.lastRecord = time.Now()
	l.silence = silenceNone

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-lines:
			l.handleLine(line)
		case err := <-readErr:
			return err
		case <-ticker.C:
			l.checkSilence()
		}
	}
}

// readLines splits the byte stream on newlines. Zero-byte reads are the
// port's read timeout expiring and are not an error.
func readLines(r io.Reader, lines chan<- []byte, readErr chan<- error) {
	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := bytes.TrimRight(pending[:i], "\r")
				if len(line) > 0 {
					lines <- slices.Clone(line)
				}
				pending = pending[i+1:]
			}
		}
		if err != nil {
			readErr <- err
			return
		}
	}
}

func (l *Link) handleLine(line []byte) {
	now := time.Now()
	t, err := l.codec.Decode(line, now)
	if err != nil {
		l.dropped.Add(1)
		droppedRecordsTotal.WithLabelValues(l.AircraftID).Inc()
		l.lg.Debug("dropped unparseable serial record",
			slog.String("aircraft_id", l.AircraftID), slog.Any("error", err))
		return
	}

	if l.silence != silenceNone {
		l.silence = silenceNone
		l.pub.Publish("alerts/"+l.AircraftID,
			telem.MakeAlert(l.AircraftID, telem.AlertInfo, telem.AlertCommunication,
				"link_recovered", "telemetry stream recovered"))
	}
	l.lastRecord = now

	l.pub.Publish("telemetry/"+t.AircraftID, t)
}

func (l *Link) checkSilence() {
	elapsed := time.Since(l.lastRecord)
	switch {
	case elapsed >= silenceCritical && l.silence != silenceEscalated:
		l.silence = silenceEscalated
		l.pub.Publish("alerts/"+l.AircraftID,
			telem.MakeAlert(l.AircraftID, telem.AlertCritical, telem.AlertCommunication,
				"link_silent", "no telemetry for 15 seconds"))
	case elapsed >= silenceWarning && l.silence == silenceNone:
		l.silence = silenceWarned
		l.pub.Publish("alerts/"+l.AircraftID,
			telem.MakeAlert(l.AircraftID, telem.AlertWarning, telem.AlertCommunication,
				"link_silent", "no telemetry for 5 seconds"))
	}
}
