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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys.
const (
	AttrRequestID = attribute.Key("appkiller.request_id")
	AttrFlow      = attribute.Key("appkiller.flow")
	AttrStep      = attribute.Key("appkiller.step")
	AttrEndpoint  = attribute.Key("appkiller.endpoint")
	AttrOutcome   = attribute.Key("appkiller.outcome")
)

// NoopTracer returns a tracer that records nothing.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer(instrumentationName)
}

// StartFlow starts the root span for one dispatched request.
func StartFlow(ctx context.Context, tracer trace.Tracer, flow, requestID, endpoint string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flow."+flow,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			AttrFlow.String(flow),
			AttrRequestID.String(requestID),
			AttrEndpoint.String(endpoint),
		),
	)
}

// StartStep starts a child span for an orchestration step.
func StartStep(ctx context.Context, tracer trace.Tracer, step string) (context.Context, trace.Span) {
	kind := trace.SpanKindInternal
	switch step {
	case "save_state", "reply":
		kind = trace.SpanKindClient
	case "broadcast":
		kind = trace.SpanKindProducer
	}
	return tracer.Start(ctx, "step."+step,
		trace.WithSpanKind(kind),
		trace.WithAttributes(AttrStep.String(step)),
	)
}

// End closes span, recording err as the span status.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
