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

// Package metrics holds the coordinator's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal tracks inbound endpoint calls by flow.
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appkiller_requests_total",
			Help: "Total endpoint requests received by flow",
		},
		[]string{"flow"},
	)

	// flowOutcomes tracks how flows finished.
	flowOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appkiller_flow_outcomes_total",
			Help: "Total flow completions by flow and termination",
		},
		[]string{"flow", "termination"},
	)

	// stepFailures tracks failed orchestration steps.
	stepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appkiller_step_failures_total",
			Help: "Total failed orchestration steps by step and error type",
		},
		[]string{"step", "error_type"},
	)

	// repliesTotal tracks replies sent to callers.
	repliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appkiller_replies_total",
			Help: "Total replies sent by kind and result",
		},
		[]string{"kind", "result"},
	)

	// disconnects tracks bus connection losses.
	disconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appkiller_bus_disconnects_total",
			Help: "Total bus disconnections observed by scope",
		},
		[]string{"bus"},
	)

	// saveStateDuration observes the blocking save-state call.
	saveStateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appkiller_save_state_duration_seconds",
			Help:    "Latency of the save-state request",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 4, 5, 10},
		},
	)

	// scriptDuration observes external script runs.
	scriptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appkiller_script_duration_seconds",
			Help:    "Duration of external script runs by flow",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"flow"},
	)
)

// RecordRequest counts an inbound request for flow.
func RecordRequest(flow string) {
	requestsTotal.WithLabelValues(flow).Inc()
}

// RecordFlowOutcome counts a finished flow. termination is one of
// continue, terminate_graceful, terminate_fatal.
func RecordFlowOutcome(flow, termination string) {
	flowOutcomes.WithLabelValues(flow, termination).Inc()
}

// RecordStepFailure counts a failed step (save_state, broadcast, script, reply).
// errorType comes from the error's classifier (transport, timeout, script).
func RecordStepFailure(step, errorType string) {
	stepFailures.WithLabelValues(step, errorType).Inc()
}

// RecordReply counts a reply attempt. kind is success or error.
func RecordReply(kind string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	repliesTotal.WithLabelValues(kind, result).Inc()
}

// RecordDisconnect counts a lost bus connection.
func RecordDisconnect(scope string) {
	disconnects.WithLabelValues(scope).Inc()
}

// ObserveSaveState records the save-state latency.
func ObserveSaveState(d time.Duration) {
	saveStateDuration.Observe(d.Seconds())
}

// ObserveScript records a script run's duration.
func ObserveScript(flow string, d time.Duration) {
	scriptDuration.WithLabelValues(flow).Observe(d.Seconds())
}
