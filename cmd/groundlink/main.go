// cmd/groundlink/main.go
// Copyright(c) 2024-2026 groundlink contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// groundlink is the ground-control stack in one binary: the
// telemetry/command broker with its WebSocket and HTTP surfaces, the
// configured serial links, and the flight simulator host.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openuas/groundlink/broker"
	"github.com/openuas/groundlink/log"
	"github.com/openuas/groundlink/serial"
	"github.com/openuas/groundlink/server"
	"github.com/openuas/groundlink/sim"

	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "", "path to the configuration file")
	logLevel   = flag.String("loglevel", "", "override the configured log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "groundlink: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	lg := log.New(cfg.LogLevel, cfg.LogDir)
	if err := run(cfg, lg); err != nil {
		lg.Errorf("groundlink exited with error: %v", err)
		os.Exit(1)
	}
}

func run(cfg Config, lg *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := broker.New(cfg.QueueSize, lg)
	defer b.Close()

	if cfg.BusURL != "" {
		bus, err := broker.Dial(cfg.BusURL, lg)
		if err != nil {
			return fmt.Errorf("external bus: %w", err)
		}
		if err := b.AttachBus(bus); err != nil {
			return fmt.Errorf("external bus subscribe: %w", err)
		}
		lg.Info("external bus attached", slog.String("url", cfg.BusURL))
	}

	host := sim.NewHost(cfg.Sim.TickHz, b, lg)
	b.AttachSimulator(host)

	links := make([]*serial.Link, 0, len(cfg.SerialLinks))
	for _, lc := range cfg.SerialLinks {
		link := serial.NewLink(lc, b, lg)
		b.AttachLink(lc.AircraftID, link)
		links = append(links, link)
	}

	srv := server.New(b, host, cfg.AllowInject, lg)
	httpSrv := &http.Server{Addr: cfg.Listen, Handler: srv.Routes()}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(host.Run(ctx)) })
	for _, link := range links {
		link := link
		g.Go(func() error { return ignoreCanceled(link.Run(ctx)) })
	}

	g.Go(func() error {
		lg.Info("listening", slog.String("addr", cfg.Listen))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
