// server/server_test.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openuas/groundlink/broker"
	"github.com/openuas/groundlink/sim"
	"github.com/openuas/groundlink/telem"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, allowInject bool) (*httptest.Server, *broker.Broker, *sim.Host) {
	t.Helper()
	b := broker.New(64, nil)
	host := sim.NewHost(50, b, nil)
	b.AttachSimulator(host)

	ts := httptest.NewServer(New(b, host, allowInject, nil).Routes())
	t.Cleanup(ts.Close)
	return ts, b, host
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWelcomeOnConnect(t *testing.T) {
	ts, _, _ := testServer(t, false)
	conn := dialWS(t, ts)

	env := readEnvelope(t, conn)
	assert.Equal(t, "welcome", env.Type)
	require.NotNil(t, env.Timestamp)
}

func TestSubscribeAndReceive(t *testing.T) {
	ts, b, _ := testServer(t, false)
	conn := dialWS(t, ts)
	readEnvelope(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(Envelope{Type: "subscribe", Topic: "telemetry/*"}))

	// Subscribe twice; the record must arrive exactly once.
	require.NoError(t, conn.WriteJSON(Envelope{Type: "subscribe", Topic: "telemetry/*"}))
	require.NoError(t, conn.WriteJSON(Envelope{Type: "ping"}))
	env := readEnvelope(t, conn)
	require.Equal(t, "pong", env.Type) // both subscribes processed before the ping

	b.Publish("telemetry/ac1", telem.Telemetry{
		Timestamp:  time.Now().UTC(),
		AircraftID: "ac1",
		MessageID:  1,
		Position:   telem.Position{Latitude: 43.56, Longitude: 1.48, Altitude: 100},
	})

	env = readEnvelope(t, conn)
	assert.Equal(t, "publish", env.Type)
	assert.Equal(t, "telemetry/ac1", env.Topic)
	require.NotNil(t, env.Timestamp)

	// Nothing else: one subscription's worth of traffic.
	require.NoError(t, conn.WriteJSON(Envelope{Type: "ping"}))
	env = readEnvelope(t, conn)
	assert.Equal(t, "pong", env.Type)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ts, b, _ := testServer(t, false)
	conn := dialWS(t, ts)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(Envelope{Type: "subscribe", Topic: "alerts/ac1"}))
	require.NoError(t, conn.WriteJSON(Envelope{Type: "unsubscribe", Topic: "alerts/ac1"}))
	require.NoError(t, conn.WriteJSON(Envelope{Type: "ping"}))
	require.Equal(t, "pong", readEnvelope(t, conn).Type)

	b.Publish("alerts/ac1", telem.MakeAlert("ac1", telem.AlertInfo, telem.AlertSystem, "x", "x"))

	require.NoError(t, conn.WriteJSON(Envelope{Type: "ping"}))
	assert.Equal(t, "pong", readEnvelope(t, conn).Type)
}

func TestCommandNoRoute(t *testing.T) {
	ts, _, _ := testServer(t, false)
	conn := dialWS(t, ts)
	readEnvelope(t, conn)

	cmd, _ := json.Marshal(map[string]any{
		"destination": "ghost",
		"commandType": "mission_start",
		"priority":    "normal",
	})
	require.NoError(t, conn.WriteJSON(Envelope{Type: "command", Data: cmd}))

	env := readEnvelope(t, conn)
	assert.Equal(t, "error", env.Type)
	assert.Equal(t, "no_route", env.Code)
}

func TestEmergencyCommandAcked(t *testing.T) {
	ts, _, host := testServer(t, false)

	simID, err := host.Create(sim.CreateRequest{
		AircraftID: "ac1",
		Position:   telem.Position{Latitude: 43.56, Longitude: 1.48, Altitude: 100},
		Seed:       7,
	})
	require.NoError(t, err)
	require.NoError(t, host.Start(simID))

	conn := dialWS(t, ts)
	readEnvelope(t, conn)
	require.NoError(t, conn.WriteJSON(Envelope{Type: "subscribe", Topic: "commands/ac1"}))
	require.NoError(t, conn.WriteJSON(Envelope{Type: "ping"}))
	require.Equal(t, "pong", readEnvelope(t, conn).Type)

	cmd, _ := json.Marshal(map[string]any{
		"timestamp":   time.Now().UTC(),
		"source":      "gcs-1",
		"destination": "ac1",
		"commandType": "emergency_land",
		"priority":    "emergency",
	})
	require.NoError(t, conn.WriteJSON(Envelope{Type: "command", Data: cmd}))

	// The echo and the ack both arrive; order between the writer worker
	// and the reader's reply is not fixed.
	sawEcho, sawAck := false, false
	for i := 0; i < 2; i++ {
		env := readEnvelope(t, conn)
		switch env.Type {
		case "publish":
			assert.Equal(t, "commands/ac1", env.Topic)
			sawEcho = true
		case "ack":
			require.NotNil(t, env.Accepted)
			assert.True(t, *env.Accepted)
			assert.Equal(t, "ac1", env.Destination)
			sawAck = true
		}
	}
	assert.True(t, sawEcho, "command echo on commands/ac1")
	assert.True(t, sawAck, "emergency commands always ack")
}

func TestMalformedFramesCloseSession(t *testing.T) {
	ts, _, _ := testServer(t, false)
	conn := dialWS(t, ts)
	readEnvelope(t, conn)

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
		env := readEnvelope(t, conn)
		assert.Equal(t, "error", env.Type)
		assert.Equal(t, "malformed", env.Code)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env Envelope
	err := conn.ReadJSON(&env)
	assert.Error(t, err, "session closes after three malformed frames")
}

func TestMalformedCounterResets(t *testing.T) {
	ts, _, _ := testServer(t, false)
	conn := dialWS(t, ts)
	readEnvelope(t, conn)

	for i := 0; i < 4; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
		require.Equal(t, "error", readEnvelope(t, conn).Type)
		// A good frame in between resets the strike count.
		require.NoError(t, conn.WriteJSON(Envelope{Type: "ping"}))
		require.Equal(t, "pong", readEnvelope(t, conn).Type)
	}
}

///////////////////////////////////////////////////////////////////////////
// HTTP surface

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := testServer(t, false)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h broker.Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 0, h.SerialLinks)
}

func TestSimulatorLifecycleOverREST(t *testing.T) {
	ts, _, _ := testServer(t, false)

	// create
	body, _ := json.Marshal(sim.CreateRequest{
		AircraftID: "ac1",
		Position:   telem.Position{Latitude: 43.56, Longitude: 1.48},
		Seed:       7,
	})
	resp, err := http.Post(ts.URL+"/api/simulators", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	simID := created["simulatorId"]
	require.NotEmpty(t, simID)

	// duplicate aircraftId conflicts
	resp, err = http.Post(ts.URL+"/api/simulators", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// list
	resp, err = http.Get(ts.URL + "/api/simulators")
	require.NoError(t, err)
	var list []sim.AircraftStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	assert.Equal(t, "ac1", list[0].AircraftID)

	// flight plan, start, command, stop
	plan, _ := json.Marshal(telem.FlightPlan{
		AircraftID: "ac1",
		Waypoints: []telem.Waypoint{
			{ID: 0, Type: telem.WaypointTakeoff,
				Position: telem.Position{Latitude: 43.56, Longitude: 1.48}},
			{ID: 1, Type: telem.WaypointGeneric,
				Position: telem.Position{Latitude: 43.57, Longitude: 1.48, Altitude: 100}},
		},
	})
	resp, err = http.Post(ts.URL+"/api/simulators/"+simID+"/flightplan", "application/json", bytes.NewReader(plan))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/simulators/"+simID+"/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	cmd, _ := json.Marshal(map[string]any{
		"destination": "ac1",
		"commandType": "mission_start",
		"priority":    "normal",
	})
	resp, err = http.Post(ts.URL+"/api/simulators/"+simID+"/command", "application/json", bytes.NewReader(cmd))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/simulators/"+simID+"/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// delete, then the id is gone
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/simulators/"+simID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/simulators/"+simID+"/start", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidFlightPlanRejected(t *testing.T) {
	ts, _, host := testServer(t, false)
	simID, err := host.Create(sim.CreateRequest{
		AircraftID: "ac1",
		Position:   telem.Position{Latitude: 43.56, Longitude: 1.48},
	})
	require.NoError(t, err)

	plan, _ := json.Marshal(telem.FlightPlan{
		AircraftID: "ac1",
		Waypoints: []telem.Waypoint{
			{ID: 0, Type: telem.WaypointGeneric, // first waypoint must be takeoff or home
				Position: telem.Position{Latitude: 43.56, Longitude: 1.48}},
		},
	})
	resp, err := http.Post(ts.URL+"/api/simulators/"+simID+"/flightplan", "application/json", bytes.NewReader(plan))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInjectEndpoint(t *testing.T) {
	ts, b, _ := testServer(t, true)

	sub, err := b.Subscribe()
	require.NoError(t, err)
	sub.Subscribe("paparazzi/*")

	resp, err := http.Post(ts.URL+"/inject/telemetry/ac9", "application/json",
		strings.NewReader(`{"raw":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	d, err := sub.Next(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "paparazzi/telemetry/ac9", d.Topic)
}

func TestInjectDisabled(t *testing.T) {
	ts, _, _ := testServer(t, false)

	resp, err := http.Post(ts.URL+"/inject/telemetry/ac9", "application/json",
		strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	ts, _, _ := testServer(t, false)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
