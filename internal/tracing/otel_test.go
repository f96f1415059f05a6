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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProvider(t *testing.T) (*Provider, *tracetest.InMemoryExporter, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	mem := tracetest.NewInMemoryExporter()

	p, err := NewProvider(context.Background(), Config{ServiceName: "appkillerd-test", Registerer: reg},
		sdktrace.WithSyncer(mem))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, mem, reg
}

func TestProvider_FlowAndStepSpans(t *testing.T) {
	p, mem, _ := newTestProvider(t)

	ctx, flow := StartFlow(context.Background(), p.Tracer(), "restore", "req-1", "/com/nokia/osso_app_killer/restore")
	_, step := StartStep(ctx, p.Tracer(), "broadcast")
	End(step, errors.New("bus gone"))
	End(flow, nil)

	spans := mem.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "step.broadcast", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())

	assert.Equal(t, "flow.restore", spans[1].Name)
	assert.Equal(t, codes.Ok, spans[1].Status.Code)

	var gotRequest bool
	for _, a := range spans[1].Attributes {
		if a.Key == AttrRequestID && a.Value.AsString() == "req-1" {
			gotRequest = true
		}
	}
	assert.True(t, gotRequest, "flow span should carry the request id")
}

func TestProvider_FlowMetricsExported(t *testing.T) {
	p, _, reg := newTestProvider(t)

	p.Metrics().RecordFlow(context.Background(), "locale", "terminate_graceful", 1500*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	joined := strings.Join(names, ",")
	assert.Contains(t, joined, "appkiller_flow_duration")
	assert.Contains(t, joined, "appkiller_flows")

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestProvider_UnknownExporter(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:    true,
		Exporter:   "zipkin",
		Registerer: prometheus.NewRegistry(),
	})
	assert.Error(t, err)
}

func TestNoops(t *testing.T) {
	_, span := StartStep(context.Background(), NoopTracer(), "script")
	End(span, nil)
	assert.False(t, span.SpanContext().IsValid())

	var nilMetrics *FlowMetrics
	nilMetrics.RecordFlow(context.Background(), "x", "y", time.Second)
	NoopFlowMetrics().RecordFlow(context.Background(), "x", "y", time.Second)
}
