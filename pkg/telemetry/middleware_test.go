package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddlewareTagsTileSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/v1/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/tile/:z/:x/:y", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/api/v1/healthz", "/api/v1/tile/3/1/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, health checks are skipped; got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /api/v1/tile/:z/:x/:y" {
		t.Errorf("unexpected span name %q", span.Name())
	}

	want := map[attribute.Key]string{"tile.z": "3", "tile.x": "1", "tile.y": "2"}
	for _, kv := range span.Attributes() {
		if v, ok := want[kv.Key]; ok {
			if kv.Value.AsString() != v {
				t.Errorf("%s = %q, want %q", kv.Key, kv.Value.AsString(), v)
			}
			delete(want, kv.Key)
		}
	}
	if len(want) != 0 {
		t.Errorf("missing attributes %v", want)
	}
	if span.Status().Code.String() != "Error" {
		t.Errorf("expected error status for 404, got %s", span.Status().Code)
	}
}
