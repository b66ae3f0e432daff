package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "makoto-test", Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestLoggingExporterForwardsSpans(t *testing.T) {
	mem := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(&loggingExporter{inner: mem}))
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "agent.chat.run")
	span.End()

	spans := mem.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "agent.chat.run", spans[0].Name)
}

func TestLoggingTransportPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &loggingTransport{inner: http.DefaultTransport}}
	resp, err := client.Post(srv.URL+"/v1/traces", "application/x-protobuf", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions(Config{}), 1)
	assert.Len(t, exporterOptions(Config{Insecure: true, Endpoint: "otel:4318", URLPath: "/v1/traces", APIKey: "k"}), 5)
}
