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

package log

import (
	"context"
	"log/slog"
	"time"
)

// Dispatch describes one inbound bus request for logging purposes.
type Dispatch struct {
	// RequestID is the correlation ID assigned on arrival.
	RequestID string

	// Endpoint is the object path the request was sent to.
	Endpoint string

	// Member is the method name used by the caller.
	Member string

	// Sender is the unique bus name of the caller.
	Sender string

	// Flow is the flow selected for the request.
	Flow string
}

// DispatchResult describes how a flow finished.
type DispatchResult struct {
	// Outcome is the terminal outcome ("continue", "terminate_graceful", ...).
	Outcome string

	// DurationMs is the time spent inside the flow.
	DurationMs int64

	// Fatal marks outcomes that end the process with a failure status.
	Fatal bool
}

// LogDispatch logs an incoming request before its flow runs.
func LogDispatch(logger *slog.Logger, d *Dispatch) {
	attrs := []any{
		"event", "dispatch",
		RequestIDKey, d.RequestID,
		EndpointKey, d.Endpoint,
		"member", d.Member,
		FlowKey, d.Flow,
	}
	if d.Sender != "" {
		attrs = append(attrs, "sender", d.Sender)
	}

	logger.Info("bus request received", attrs...)
}

// LogDispatchResult logs the outcome of a flow.
func LogDispatchResult(logger *slog.Logger, d *Dispatch, res *DispatchResult) {
	attrs := []any{
		"event", "dispatch_result",
		RequestIDKey, d.RequestID,
		FlowKey, d.Flow,
		"outcome", res.Outcome,
		DurationKey, res.DurationMs,
	}

	level := slog.LevelInfo
	if res.Fatal {
		level = slog.LevelError
	}

	logger.Log(context.Background(), level, "flow finished", attrs...)
}

// DispatchMiddleware wraps flow execution with request/result logging.
type DispatchMiddleware struct {
	logger *slog.Logger
}

// NewDispatchMiddleware creates a new dispatch logging middleware.
func NewDispatchMiddleware(logger *slog.Logger) *DispatchMiddleware {
	return &DispatchMiddleware{logger: logger}
}

// Handle logs d, runs handler, and logs the result it reports.
func (m *DispatchMiddleware) Handle(d *Dispatch, handler func() *DispatchResult) *DispatchResult {
	start := time.Now()
	LogDispatch(m.logger, d)

	res := handler()
	if res == nil {
		res = &DispatchResult{Outcome: "unknown"}
	}
	res.DurationMs = time.Since(start).Milliseconds()

	LogDispatchResult(m.logger, d, res)
	return res
}
