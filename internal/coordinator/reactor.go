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
	"sync"

	"github.com/tombee/appkiller/internal/bus"
	"github.com/tombee/appkiller/internal/log"
)

// Reactor serializes everything: bus events from both connections and
// endpoint requests are consumed by a single goroutine, and a flow runs to
// completion before the next item is looked at.
type Reactor struct {
	conns      *Connections
	dispatcher *Dispatcher
	watchdog   *Watchdog
	logger     *slog.Logger

	requests chan *bus.Request
	done     chan struct{}
	stopOnce sync.Once
}

// NewReactor creates a reactor with a request queue of queueSize.
func NewReactor(conns *Connections, d *Dispatcher, w *Watchdog, queueSize int, logger *slog.Logger) *Reactor {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Reactor{
		conns:      conns,
		dispatcher: d,
		watchdog:   w,
		logger:     logger,
		requests:   make(chan *bus.Request, queueSize),
		done:       make(chan struct{}),
	}
}

// Enqueue hands a request to the reactor. It is the bus.Handler for every
// endpoint and blocks while the queue is full. Requests arriving after the
// reactor stopped are dropped.
func (r *Reactor) Enqueue(req *bus.Request) {
	select {
	case r.requests <- req:
		log.Trace(r.logger, "request queued",
			slog.String(log.RequestIDKey, req.ID),
			slog.String(log.EndpointKey, req.Path))
	case <-r.done:
		r.logger.Debug("request dropped, reactor stopped", log.RequestIDKey, req.ID, log.EndpointKey, req.Path)
	}
}

// Run services events and requests until a flow or the watchdog asks to
// terminate, or ctx is cancelled. Cancellation is only observed between
// dispatches; a running flow always completes.
func (r *Reactor) Run(ctx context.Context) Termination {
	defer r.stopOnce.Do(func() { close(r.done) })

	sessionEvents := r.conns.Session.Events()
	systemEvents := r.conns.System.Events()
	flowCtx := context.WithoutCancel(ctx)

	for {
		if term, stop := r.guard(sessionEvents, systemEvents); stop {
			return term
		}

		select {
		case <-ctx.Done():
			r.logger.Warn("reactor stopped by signal")
			return terminateGracefully("shutdown requested", nil)

		case ev := <-sessionEvents:
			if term, stop := r.watchdog.Check(ev); stop {
				return term
			}

		case ev := <-systemEvents:
			if term, stop := r.watchdog.Check(ev); stop {
				return term
			}

		case req := <-r.requests:
			// A disconnect that raced with this request wins.
			if term, stop := r.guard(sessionEvents, systemEvents); stop {
				return term
			}
			if term := r.dispatcher.Dispatch(flowCtx, req); term.Terminates() {
				return term
			}
		}
	}
}

// guard drains every pending event without blocking and reports the first
// one that stops the reactor.
func (r *Reactor) guard(session, system <-chan bus.Event) (Termination, bool) {
	for {
		select {
		case ev := <-system:
			if term, stop := r.watchdog.Check(ev); stop {
				return term, true
			}
		case ev := <-session:
			if term, stop := r.watchdog.Check(ev); stop {
				return term, true
			}
		default:
			return Termination{}, false
		}
	}
}
