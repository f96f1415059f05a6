// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package daemon assembles appkillerd: configuration, telemetry, the PID
// file and event log, both bus connections and the coordinator.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tombee/appkiller/internal/bus"
	"github.com/tombee/appkiller/internal/config"
	"github.com/tombee/appkiller/internal/coordinator"
	"github.com/tombee/appkiller/internal/lifecycle"
	internallog "github.com/tombee/appkiller/internal/log"
	"github.com/tombee/appkiller/internal/metrics"
	"github.com/tombee/appkiller/internal/script"
	"github.com/tombee/appkiller/internal/tracing"
	akerrors "github.com/tombee/appkiller/pkg/errors"
)

// SessionBusEnv must name the session bus before anything is registered.
const SessionBusEnv = "DBUS_SESSION_BUS_ADDRESS"

// Dialer opens a bus connection.
type Dialer func(scope bus.Scope, logger *slog.Logger) (bus.Conn, error)

// Options configures the daemon.
type Options struct {
	Version    string
	Commit     string
	BuildDate  string
	ConfigFile string

	// Dial defaults to bus.Connect.
	Dial Dialer

	// Runner defaults to script.NewExecRunner.
	Runner script.Runner

	// Registerer receives the OTel Prometheus collector.
	// Default: prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

func dialDBus(scope bus.Scope, logger *slog.Logger) (bus.Conn, error) {
	return bus.Connect(scope, logger)
}

// Daemon is the appkillerd process.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	otel    *tracing.Provider
	events  *lifecycle.EventLog
	pidFile *lifecycle.PIDFile
	metrics *metrics.Server
	conns   *coordinator.Connections
	coord   *coordinator.Coordinator

	mu      sync.Mutex
	started bool
}

// New creates a daemon. Nothing touches the bus until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Daemon, error) {
	if opts.Dial == nil {
		opts.Dial = dialDBus
	}
	if opts.Runner == nil {
		opts.Runner = script.NewExecRunner(internallog.WithComponent(logger, "script"))
	}

	otelProvider, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "appkillerd",
		ServiceVersion: opts.Version,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		Registerer:     opts.Registerer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry provider: %w", err)
	}

	return &Daemon{
		cfg:    cfg,
		opts:   opts,
		logger: internallog.WithComponent(logger, "daemon"),
		otel:   otelProvider,
		events: lifecycle.NewEventLog(cfg.Lifecycle.EventLog),
	}, nil
}

// Start runs every startup step in order. Any failure is fatal and leaves
// nothing registered on the bus.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return fmt.Errorf("daemon already started")
	}

	if err := d.start(); err != nil {
		if logErr := d.events.LogStartFailure(err); logErr != nil {
			d.logger.Warn("could not write lifecycle event", internallog.Error(logErr))
		}
		d.cleanup(ctx)
		return err
	}
	d.started = true

	if err := d.events.LogStart(d.opts.Version, d.opts.ConfigFile); err != nil {
		d.logger.Warn("could not write lifecycle event", internallog.Error(err))
	}
	d.logger.Info("coordinator started",
		slog.String("version", d.opts.Version),
		slog.String("name", d.cfg.Service.Name),
		slog.Int("pid", os.Getpid()))
	return nil
}

func (d *Daemon) start() error {
	if os.Getenv(SessionBusEnv) == "" {
		return &akerrors.RegistrationError{What: "session bus", Cause: fmt.Errorf("%s is not set", SessionBusEnv)}
	}

	if path := d.cfg.Lifecycle.PIDFile; path != "" {
		pf := lifecycle.NewPIDFile(path)
		stale, err := pf.Acquire(os.Getpid())
		if err != nil {
			return fmt.Errorf("failed to acquire PID file: %w", err)
		}
		if stale > 0 {
			d.logger.Warn("replaced stale PID file", slog.String("path", path), slog.Int("stale_pid", stale))
			if err := d.events.LogStalePID(stale); err != nil {
				d.logger.Warn("could not write lifecycle event", internallog.Error(err))
			}
		}
		d.pidFile = pf
	}

	if addr := d.cfg.Metrics.Listen; addr != "" {
		srv, err := metrics.Listen(addr, d.logger)
		if err != nil {
			return err
		}
		d.metrics = srv
		go func() {
			if err := srv.Serve(); err != nil {
				d.logger.Error("metrics listener failed", internallog.Error(err))
			}
		}()
	}

	session, err := d.opts.Dial(bus.Session, d.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to the session bus: %w", err)
	}
	system, err := d.opts.Dial(bus.System, d.logger)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("failed to connect to the system bus: %w", err)
	}
	conns, err := coordinator.NewConnections(session, system)
	if err != nil {
		return err
	}
	d.conns = conns

	coord, err := coordinator.New(coordinator.Options{
		Config:      d.cfg,
		Connections: conns,
		Runner:      d.opts.Runner,
		Tracer:      d.otel.Tracer(),
		FlowMetrics: d.otel.Metrics(),
		Events:      d.events,
		Logger:      d.logger,
	})
	if err != nil {
		return err
	}
	if err := coord.Start(); err != nil {
		return err
	}
	d.coord = coord
	return nil
}

// Run serves requests until the coordinator decides to terminate or ctx is
// cancelled.
func (d *Daemon) Run(ctx context.Context) coordinator.Termination {
	return d.coord.Run(ctx)
}

// Shutdown releases everything Start acquired. It is safe to call after a
// failed Start.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.cleanup(ctx)
	d.started = false
	return err
}

func (d *Daemon) cleanup(ctx context.Context) error {
	var errs []error

	if d.conns != nil {
		if err := d.conns.Close(); err != nil {
			errs = append(errs, err)
		}
		d.conns = nil
	}

	if d.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := d.metrics.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
		d.metrics = nil
	}

	if d.otel != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := d.otel.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("OpenTelemetry provider shutdown error", internallog.Error(err))
		}
		cancel()
		d.otel = nil
	}

	if d.pidFile != nil {
		if err := d.pidFile.Release(); err != nil {
			errs = append(errs, err)
		}
		d.pidFile = nil
	}

	return errors.Join(errs...)
}

// Events returns the daemon's lifecycle event log.
func (d *Daemon) Events() *lifecycle.EventLog {
	return d.events
}
