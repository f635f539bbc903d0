// server/server.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package server exposes the broker to clients: a WebSocket subscriber
// endpoint speaking the JSON envelope protocol, and an HTTP surface for
// health, simulator control, metrics and test injection.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openuas/groundlink/broker"
	"github.com/openuas/groundlink/log"
	"github.com/openuas/groundlink/sim"
	"github.com/openuas/groundlink/telem"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	broker      *broker.Broker
	sim         *sim.Host
	lg          *log.Logger
	allowInject bool
}

func New(b *broker.Broker, host *sim.Host, allowInject bool, lg *log.Logger) *Server {
	return &Server{broker: b, sim: host, lg: lg, allowInject: allowInject}
}

// Routes builds the full HTTP surface.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/ws", s.handleWebSocket)
	r.Get("/api/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/simulators", func(r chi.Router) {
		r.Get("/", s.handleListSimulators)
		r.Post("/", s.handleCreateSimulator)
		r.Delete("/{id}", s.handleDeleteSimulator)
		r.Post("/{id}/start", s.handleStartSimulator)
		r.Post("/{id}/stop", s.handleStopSimulator)
		r.Post("/{id}/flightplan", s.handleLoadFlightPlan)
		r.Post("/{id}/command", s.handleSimulatorCommand)
	})

	r.Post("/inject/*", s.handleInject)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.broker.Health())
}

func (s *Server) handleListSimulators(w http.ResponseWriter, r *http.Request) {
	list := s.sim.List()
	if list == nil {
		list = []sim.AircraftStatus{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSimulator(w http.ResponseWriter, r *http.Request) {
	var req sim.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	simID, err := s.sim.Create(req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"simulatorId": simID})
}

func (s *Server) handleDeleteSimulator(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartSimulator(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.Start(chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStopSimulator(w http.ResponseWriter, r *http.Request) {
	if err := s.sim.Stop(chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoadFlightPlan(w http.ResponseWriter, r *http.Request) {
	var plan telem.FlightPlan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.sim.LoadFlightPlan(chi.URLParam(r, "id"), &plan); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSimulatorCommand(w http.ResponseWriter, r *http.Request) {
	var cmd telem.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := cmd.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.sim.Command(chi.URLParam(r, "id"), cmd); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleInject republishes the request body under paparazzi/<suffix>;
// only available when the operator enabled injection.
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	if !s.allowInject {
		writeError(w, http.StatusForbidden, errors.New("injection is disabled"))
		return
	}
	suffix := strings.TrimPrefix(r.URL.Path, "/inject/")
	if suffix == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing topic suffix"))
		return
	}
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.broker.Inject(suffix, body)
	s.lg.Info("injected message", slog.String("topic", "paparazzi/"+suffix))
	w.WriteHeader(http.StatusAccepted)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sim.ErrUnknownSimulator):
		return http.StatusNotFound
	case errors.Is(err, sim.ErrAircraftExists):
		return http.StatusConflict
	case errors.Is(err, broker.ErrNoRoute):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
