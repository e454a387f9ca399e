package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSetupTracing(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TraceConfig
		wantErr bool
	}{
		{name: "disabled", cfg: TraceConfig{Exporter: "none"}},
		{name: "empty", cfg: TraceConfig{}},
		{name: "stdout", cfg: TraceConfig{ServiceName: "imageops-test", Exporter: "stdout"}},
		{name: "otlp without endpoint", cfg: TraceConfig{Exporter: "otlp"}, wantErr: true},
		{name: "unknown exporter", cfg: TraceConfig{Exporter: "zipkin"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := SetupTracing(context.Background(), tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, shutdown(context.Background()))
		})
	}
}

func TestMiddleware_RecordsServerSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	r := gin.New()
	r.Use(Middleware(tp.Tracer("test")))
	r.POST("/api/process", func(c *gin.Context) {
		require.True(t, trace.SpanFromContext(c.Request.Context()).SpanContext().IsValid())
		c.Status(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/process", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, "POST /api/process", spans[0].Name())
	require.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Contains(t, spans[0].Attributes(), attribute.Int("http.status_code", 500))
}
