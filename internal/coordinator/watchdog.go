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
	"fmt"
	"log/slog"

	"github.com/tombee/appkiller/internal/bus"
	"github.com/tombee/appkiller/internal/lifecycle"
	"github.com/tombee/appkiller/internal/log"
	"github.com/tombee/appkiller/internal/metrics"
)

// Watchdog inspects bus events before any dispatch. Losing either bus is
// fatal; the coordinator cannot do its job without both.
type Watchdog struct {
	events *lifecycle.EventLog
	logger *slog.Logger
}

// NewWatchdog creates a watchdog.
func NewWatchdog(events *lifecycle.EventLog, logger *slog.Logger) *Watchdog {
	return &Watchdog{events: events, logger: logger}
}

// Check returns a fatal termination and true for a disconnect event.
// Other events pass through.
func (w *Watchdog) Check(ev bus.Event) (Termination, bool) {
	if !ev.IsDisconnect() {
		return Termination{}, false
	}

	metrics.RecordDisconnect(string(ev.Scope))
	if err := w.events.LogDisconnect(string(ev.Scope)); err != nil {
		w.logger.Warn("could not write lifecycle event", log.Error(err))
	}

	if ev.Scope == bus.System {
		w.logger.Error("system bus disconnected", log.ScopeKey, string(ev.Scope), "critical", true)
	} else {
		w.logger.Debug("session bus disconnected", log.ScopeKey, string(ev.Scope))
	}
	return terminateFatally(fmt.Sprintf("%s bus disconnected", ev.Scope), nil), true
}
