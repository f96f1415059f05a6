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

package coordinator

import (
	"context"
	"log/slog"

	"github.com/tombee/appkiller/internal/config"
	"github.com/tombee/appkiller/internal/lifecycle"
	"github.com/tombee/appkiller/internal/log"
	"github.com/tombee/appkiller/internal/script"
	"github.com/tombee/appkiller/internal/tracing"
	akerrors "github.com/tombee/appkiller/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

// Options configures a Coordinator. Config, Connections and Runner are
// required; everything else has a working default.
type Options struct {
	Config      *config.Config
	Connections *Connections
	Runner      script.Runner

	Tracer      trace.Tracer
	FlowMetrics *tracing.FlowMetrics
	Events      *lifecycle.EventLog
	Logger      *slog.Logger
}

// Coordinator wires the flows, dispatcher, watchdog and reactor together.
type Coordinator struct {
	dispatcher *Dispatcher
	reactor    *Reactor
	logger     *slog.Logger
}

// New assembles a coordinator. Nothing is registered on the bus until Start.
func New(opts Options) (*Coordinator, error) {
	if opts.Connections == nil {
		return nil, errMissing("connections")
	}
	if opts.Config == nil {
		return nil, errMissing("config")
	}
	if opts.Runner == nil {
		return nil, errMissing("script runner")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = log.WithComponent(logger, "coordinator")

	p := NewPrimitives(opts.Connections, opts.Runner, opts.Config, opts.Tracer, logger)
	d := NewDispatcher(opts.Connections, opts.Config, p, opts.Tracer, opts.FlowMetrics, opts.Events, logger)
	w := NewWatchdog(opts.Events, logger)

	return &Coordinator{
		dispatcher: d,
		reactor:    NewReactor(opts.Connections, d, w, opts.Config.Service.QueueSize, logger),
		logger:     logger,
	}, nil
}

// Start registers the endpoints and claims the service name. Requests are
// queued from this point on and handled once Run is called.
func (c *Coordinator) Start() error {
	return c.dispatcher.Register(c.reactor.Enqueue)
}

// Run blocks until the coordinator must terminate and reports why.
func (c *Coordinator) Run(ctx context.Context) Termination {
	term := c.reactor.Run(ctx)
	c.logger.Info("coordinator stopping", "termination", term.Kind.String(), "reason", term.Reason, "exit_code", term.ExitCode())
	return term
}

func errMissing(what string) error {
	return &akerrors.ConfigError{Key: "coordinator", Reason: what + " is required"}
}
