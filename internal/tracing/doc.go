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

// Package tracing wires OpenTelemetry for the coordinator.
//
// A Provider owns the tracer provider (spans per flow and per orchestration
// step, exported to the console or an OTLP collector) and a meter provider
// backed by the Prometheus exporter, so OTel instruments show up on the same
// /metrics endpoint as the native collectors. The supervisor flushes the
// Provider before the process exits.
package tracing
