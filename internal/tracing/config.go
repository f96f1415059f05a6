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

import "github.com/prometheus/client_golang/prometheus"

// Config configures a Provider.
type Config struct {
	// Enabled turns span export on. Metrics are always recorded.
	Enabled bool

	// ServiceName and ServiceVersion populate the OTel resource.
	ServiceName    string
	ServiceVersion string

	// Exporter is "console", "otlp" (gRPC) or "otlphttp".
	Exporter string

	// Endpoint is the collector address for OTLP exporters.
	Endpoint string

	// Insecure disables TLS for OTLP exporters.
	Insecure bool

	// Registerer receives the Prometheus exporter's collector.
	// Default: prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// DefaultConfig returns a configuration with span export disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName: "appkillerd",
		Exporter:    "console",
	}
}
