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

package export

import (
	"bytes"
	"context"
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestConsoleExporter_WritesSpans(t *testing.T) {
	var buf bytes.Buffer
	exp, err := NewConsoleExporter(ConsoleConfig{Writer: &buf})
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("test").Start(context.Background(), "step.broadcast")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))

	assert.Contains(t, buf.String(), "step.broadcast")
}

func TestOTLPExporters_RequireEndpoint(t *testing.T) {
	_, err := NewOTLPExporter(context.Background(), OTLPConfig{})
	assert.Error(t, err)

	_, err = NewOTLPHTTPExporter(context.Background(), OTLPHTTPConfig{})
	assert.Error(t, err)
}

func TestOTLPExporters_LazyConnect(t *testing.T) {
	ctx := context.Background()

	grpcExp, err := NewOTLPExporter(ctx, OTLPConfig{Endpoint: "127.0.0.1:1", Insecure: true})
	require.NoError(t, err)
	assert.NoError(t, grpcExp.Shutdown(ctx))

	httpExp, err := NewOTLPHTTPExporter(ctx, OTLPHTTPConfig{Endpoint: "127.0.0.1:1", URLPath: "/traces"})
	require.NoError(t, err)
	assert.NoError(t, httpExp.Shutdown(ctx))
}

func TestClientTLS(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS12), clientTLS(nil).MinVersion)

	in := &tls.Config{MinVersion: tls.VersionTLS10, ServerName: "collector"}
	out := clientTLS(in)
	assert.Equal(t, uint16(tls.VersionTLS12), out.MinVersion)
	assert.Equal(t, "collector", out.ServerName)
	assert.Equal(t, uint16(tls.VersionTLS10), in.MinVersion, "input must not be mutated")
}
