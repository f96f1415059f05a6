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
	"time"

	"github.com/tombee/appkiller/internal/bus"
	"github.com/tombee/appkiller/internal/config"
	"github.com/tombee/appkiller/internal/lifecycle"
	"github.com/tombee/appkiller/internal/log"
	"github.com/tombee/appkiller/internal/metrics"
	"github.com/tombee/appkiller/internal/tracing"
	"go.opentelemetry.io/otel/trace"
)

type route struct {
	endpoint Endpoint
	ep       config.EndpointConfig
	flow     Flow
}

// Dispatcher owns the endpoint table and runs the flow for each request.
type Dispatcher struct {
	conns       *Connections
	cfg         *config.Config
	routes      map[string]route
	order       []string
	tracer      trace.Tracer
	flowMetrics *tracing.FlowMetrics
	events      *lifecycle.EventLog
	logger      *slog.Logger
}

// NewDispatcher builds the endpoint table from cfg.
func NewDispatcher(conns *Connections, cfg *config.Config, p *Primitives, tracer trace.Tracer, fm *tracing.FlowMetrics, events *lifecycle.EventLog, logger *slog.Logger) *Dispatcher {
	if tracer == nil {
		tracer = tracing.NoopTracer()
	}
	d := &Dispatcher{
		conns:       conns,
		cfg:         cfg,
		routes:      make(map[string]route, 3),
		tracer:      tracer,
		flowMetrics: fm,
		events:      events,
		logger:      logger,
	}

	d.add(EndpointLocale, cfg.Endpoints.Locale, NewLocaleChangeFlow(p))
	d.add(EndpointRestore, cfg.Endpoints.Restore, NewRestoreFlow(p))
	d.add(EndpointRFSShutdown, cfg.Endpoints.RFSShutdown, NewRFSShutdownFlow(p))
	return d
}

func (d *Dispatcher) add(e Endpoint, ep config.EndpointConfig, f Flow) {
	d.routes[ep.Path] = route{endpoint: e, ep: ep, flow: f}
	d.order = append(d.order, ep.Path)
}

// Register exports every endpoint on the session bus with handler h, then
// claims the well-known name. Exporting first means calls queued by bus
// activation find their endpoints once the name is owned.
func (d *Dispatcher) Register(h bus.Handler) error {
	for _, path := range d.order {
		r := d.routes[path]
		if err := d.conns.Session.Export(r.ep.Path, r.ep.Interface, r.ep.Method, h); err != nil {
			d.logger.Error("could not register handler", "flow", r.flow.Name(), log.EndpointKey, path, log.Error(err))
			return err
		}
	}
	if err := d.conns.Session.RequestName(d.cfg.Service.Name); err != nil {
		d.logger.Error("could not acquire bus name", "name", d.cfg.Service.Name, log.Error(err))
		return err
	}
	d.logger.Info("endpoints registered", "name", d.cfg.Service.Name, "count", len(d.order))
	return nil
}

// Dispatch runs the flow registered for req's path to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, req *bus.Request) Termination {
	r, ok := d.routes[req.Path]
	if !ok {
		d.logger.Warn("request for unknown endpoint ignored", log.EndpointKey, req.Path, "member", req.Member)
		return continueServing("unknown endpoint", nil)
	}
	name := r.flow.Name()

	logger := log.WithRequest(d.logger, req.ID, req.Path).With(log.FlowKey, name)
	ctx = withLogger(ctx, logger)
	ctx, span := tracing.StartFlow(ctx, d.tracer, name, req.ID, req.Path)

	metrics.RecordRequest(name)
	if err := d.events.LogRequest(req.ID, name, req.Path, req.Sender); err != nil {
		logger.Warn("could not write lifecycle event", log.Error(err))
	}

	var term Termination
	start := time.Now()
	log.NewDispatchMiddleware(logger).Handle(&log.Dispatch{
		RequestID: req.ID,
		Endpoint:  req.Path,
		Member:    req.Member,
		Sender:    req.Sender,
		Flow:      name,
	}, func() *log.DispatchResult {
		term = r.flow.Handle(ctx, req)
		return &log.DispatchResult{Outcome: term.Kind.String(), Fatal: term.Kind == TerminateFatally}
	})
	elapsed := time.Since(start)

	span.SetAttributes(tracing.AttrOutcome.String(term.Kind.String()))
	tracing.End(span, term.Err)

	metrics.RecordFlowOutcome(name, term.Kind.String())
	d.flowMetrics.RecordFlow(ctx, name, term.Kind.String(), elapsed)
	if err := d.events.LogFlowResult(req.ID, name, term.Kind.String(), term.Err); err != nil {
		logger.Warn("could not write lifecycle event", log.Error(err))
	}
	return term
}
