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

package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// FlowMetrics records flow-level OTel instruments.
type FlowMetrics struct {
	flowsTotal   metric.Int64Counter
	flowDuration metric.Float64Histogram
}

// NewFlowMetrics creates the instruments on the given meter provider.
func NewFlowMetrics(mp metric.MeterProvider) (*FlowMetrics, error) {
	meter := mp.Meter(instrumentationName)

	fm := &FlowMetrics{}
	var err error

	fm.flowsTotal, err = meter.Int64Counter(
		"appkiller_flows",
		metric.WithDescription("Number of flows run to completion"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, err
	}

	fm.flowDuration, err = meter.Float64Histogram(
		"appkiller_flow_duration",
		metric.WithDescription("Time spent inside a flow, including the save-state wait and script"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	return fm, nil
}

// NoopFlowMetrics returns instruments that record nothing.
func NoopFlowMetrics() *FlowMetrics {
	fm, _ := NewFlowMetrics(noop.NewMeterProvider())
	return fm
}

// RecordFlow records one finished flow.
func (m *FlowMetrics) RecordFlow(ctx context.Context, flow, termination string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("termination", termination),
	)
	m.flowsTotal.Add(ctx, 1, attrs)
	m.flowDuration.Record(ctx, d.Seconds(), attrs)
}
