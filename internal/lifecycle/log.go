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

package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event names written to the event log.
const (
	EventStart        = "start"
	EventStartFailure = "start_failure"
	EventStalePID     = "stale_pid_detected"
	EventRequest      = "request"
	EventFlowResult   = "flow_result"
	EventDisconnect   = "disconnect"
	EventTermination  = "termination"
)

// LifecycleEvent is one line of the event log.
type LifecycleEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	PID       int       `json:"pid,omitempty"`
	Version   string    `json:"version,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Flow      string    `json:"flow,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Bus       string    `json:"bus,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventLog appends lifecycle events to a JSON-lines file. A nil or
// zero-path EventLog discards events.
type EventLog struct {
	path string
	pid  int
	now  func() time.Time

	mu sync.Mutex
}

// NewEventLog creates an event log writing to path.
func NewEventLog(path string) *EventLog {
	return &EventLog{
		path: path,
		pid:  os.Getpid(),
		now:  time.Now,
	}
}

// Enabled reports whether events are persisted.
func (l *EventLog) Enabled() bool {
	return l != nil && l.path != ""
}

// LogStart records coordinator startup.
func (l *EventLog) LogStart(version, configFile string) error {
	msg := "coordinator started"
	if configFile != "" {
		msg = fmt.Sprintf("coordinator started (config %s)", configFile)
	}
	return l.write(LifecycleEvent{Event: EventStart, Version: version, Success: true, Message: msg})
}

// LogStartFailure records a startup error.
func (l *EventLog) LogStartFailure(err error) error {
	return l.write(LifecycleEvent{Event: EventStartFailure, Success: false, Error: errString(err)})
}

// LogStalePID records replacement of a PID file left by a dead process.
func (l *EventLog) LogStalePID(stalePID int) error {
	return l.write(LifecycleEvent{
		Event:   EventStalePID,
		Success: true,
		Message: fmt.Sprintf("stale PID file from pid %d replaced", stalePID),
	})
}

// LogRequest records an accepted endpoint call.
func (l *EventLog) LogRequest(requestID, flow, endpoint, sender string) error {
	return l.write(LifecycleEvent{
		Event:     EventRequest,
		RequestID: requestID,
		Flow:      flow,
		Endpoint:  endpoint,
		Sender:    sender,
		Success:   true,
	})
}

// LogFlowResult records how a flow finished. err is the first failed step, if any.
func (l *EventLog) LogFlowResult(requestID, flow, outcome string, err error) error {
	return l.write(LifecycleEvent{
		Event:     EventFlowResult,
		RequestID: requestID,
		Flow:      flow,
		Outcome:   outcome,
		Success:   err == nil,
		Error:     errString(err),
	})
}

// LogDisconnect records a lost bus connection.
func (l *EventLog) LogDisconnect(bus string) error {
	return l.write(LifecycleEvent{Event: EventDisconnect, Bus: bus, Success: false, Message: "bus connection lost"})
}

// LogTermination records the exit status the process is about to use.
func (l *EventLog) LogTermination(exitCode int, reason string) error {
	return l.write(LifecycleEvent{
		Event:    EventTermination,
		ExitCode: &exitCode,
		Success:  exitCode == 0,
		Message:  reason,
	})
}

// write appends one event to the log file.
func (l *EventLog) write(event LifecycleEvent) error {
	if !l.Enabled() {
		return nil
	}
	event.Timestamp = l.now().UTC()
	event.PID = l.pid

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lifecycle log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
