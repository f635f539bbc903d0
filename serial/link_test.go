// serial/link_test.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package serial

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openuas/groundlink/telem"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu       sync.Mutex
	messages []published
}

type published struct {
	topic string
	msg   any
}

func (p *capturePublisher) Publish(topic string, msg any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic, msg})
}

func (p *capturePublisher) onTopic(prefix string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.messages {
		if strings.HasPrefix(m.topic, prefix) {
			out = append(out, m)
		}
	}
	return out
}

func (p *capturePublisher) waitFor(t *testing.T, prefix string, n int) []published {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := p.onTopic(prefix); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages on %q", n, prefix)
	return nil
}

// memPort is the device end of an in-memory pipe pair.
type memPort struct {
	io.ReadCloser
	io.Writer
}

func (m memPort) Close() error { return m.ReadCloser.Close() }

func newMemPort() (link memPort, device io.WriteCloser) {
	r, w := io.Pipe()
	return memPort{ReadCloser: r, Writer: io.Discard}, w
}

func testLink(opener PortOpener) (*Link, *capturePublisher) {
	pub := &capturePublisher{}
	l := NewLink(Config{Path: "/dev/ttyUSB0", BaudRate: 57600, AircraftID: "ac1"}, pub, nil)
	l.open = opener
	return l, pub
}

func TestLinkPublishesDecodedTelemetry(t *testing.T) {
	port, device := newMemPort()
	l, pub := testLink(func(Config) (io.ReadWriteCloser, error) { return port, nil })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	_, err := io.WriteString(device,
		`{"position":{"latitude":43.56,"longitude":1.48,"altitude":120},"systems":{"battery":80}}`+"\n"+
			`not a json line`+"\n"+
			`{"aircraftId":"ac1","position":{"latitude":43.561,"longitude":1.481,"altitude":121}}`+"\n")
	require.NoError(t, err)

	recs := pub.waitFor(t, "telemetry/ac1", 2)
	first, ok := recs[0].msg.(telem.Telemetry)
	require.True(t, ok)
	assert.Equal(t, "ac1", first.AircraftID)
	assert.False(t, first.Timestamp.IsZero())

	assert.Equal(t, int64(1), l.Dropped())
	assert.True(t, l.Connected())

	statuses := pub.waitFor(t, "status/ac1", 1)
	assert.Equal(t, "connected", statuses[0].msg.(map[string]any)["status"])

	cancel()
	device.Close()
	<-done
	assert.False(t, l.Connected())
}

func TestLinkReconnectsAfterReadFailure(t *testing.T) {
	var mu sync.Mutex
	opens := 0

	l, pub := testLink(func(Config) (io.ReadWriteCloser, error) {
		mu.Lock()
		defer mu.Unlock()
		opens++
		if opens == 1 {
			// First connection dies immediately.
			r, w := io.Pipe()
			w.Close()
			return memPort{ReadCloser: r, Writer: io.Discard}, nil
		}
		port, _ := newMemPort()
		return port, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	// disconnected after the dead pipe, connected again after reopening
	pub.waitFor(t, "status/ac1", 3)
	cancel()
	<-done

	var sequence []string
	for _, m := range pub.onTopic("status/ac1") {
		sequence = append(sequence, m.msg.(map[string]any)["status"].(string))
	}
	assert.Equal(t, []string{"connected", "disconnected", "connected"}, sequence[:3])

	mu.Lock()
	assert.GreaterOrEqual(t, opens, 2)
	mu.Unlock()
}

func TestLinkSilenceAlerts(t *testing.T) {
	l, pub := testLink(nil)

	l.lastRecord = time.Now().Add(-6 * time.Second)
	l.checkSilence()
	alerts := pub.onTopic("alerts/ac1")
	require.Len(t, alerts, 1)
	warn := alerts[0].msg.(telem.SafetyAlert)
	assert.Equal(t, telem.AlertWarning, warn.Level)
	assert.Equal(t, telem.AlertCommunication, warn.Category)
	assert.Equal(t, "ac1/communication/link_silent", warn.ID)

	// Repeated checks do not repeat the warning.
	l.checkSilence()
	assert.Len(t, pub.onTopic("alerts/ac1"), 1)

	l.lastRecord = time.Now().Add(-16 * time.Second)
	l.checkSilence()
	alerts = pub.onTopic("alerts/ac1")
	require.Len(t, alerts, 2)
	assert.Equal(t, telem.AlertCritical, alerts[1].msg.(telem.SafetyAlert).Level)

	// A record arriving afterwards announces recovery.
	l.handleLine([]byte(`{"position":{"latitude":43.56,"longitude":1.48,"altitude":100}}`))
	alerts = pub.onTopic("alerts/ac1")
	require.Len(t, alerts, 3)
	rec := alerts[2].msg.(telem.SafetyAlert)
	assert.Equal(t, telem.AlertInfo, rec.Level)
	assert.Equal(t, "ac1/communication/link_recovered", rec.ID)
}

func TestLinkSendRequiresConnection(t *testing.T) {
	l, _ := testLink(nil)
	err := l.Send(telem.Command{Destination: "ac1", Spec: &telem.ReturnToHome{}})
	assert.ErrorIs(t, err, ErrLinkClosed)
}

func TestLinkSendWritesLine(t *testing.T) {
	var buf strings.Builder
	r, _ := io.Pipe()
	l, _ := testLink(nil)
	l.setPort(memPort{ReadCloser: r, Writer: &buf})

	cmd := telem.Command{
		Destination: "ac1",
		Priority:    telem.PriorityHigh,
		Spec:        &telem.MissionStart{},
	}
	require.NoError(t, l.Send(cmd))
	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Contains(t, out, `"mission_start"`)
	assert.Contains(t, out, `"ac1"`)
}
