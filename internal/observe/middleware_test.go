package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newInstrumentedRouter mounts handler behind the middleware on a mux route,
// mirroring how the control API wires it. Returns the router plus the span
// exporter and metric reader for inspection.
func newInstrumentedRouter(t *testing.T, pattern string, handler http.HandlerFunc) (*mux.Router, *tracetest.InMemoryExporter, *sdkmetric.ManualReader) {
	t.Helper()

	m, rd := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	r := mux.NewRouter()
	r.Use(Middleware(m))
	r.HandleFunc(pattern, handler)
	return r, exp, rd
}

func TestMiddlewareSetsCorrelationID(t *testing.T) {
	var inHandler string
	r, _, _ := newInstrumentedRouter(t, "/api/guides", func(w http.ResponseWriter, req *http.Request) {
		inHandler = CorrelationID(req.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/guides", nil))

	if len(inHandler) != 32 {
		t.Errorf("correlation ID in handler = %q, want a 32-char trace ID", inHandler)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != inHandler {
		t.Errorf("X-Correlation-ID header = %q, want %q", got, inHandler)
	}
}

func TestMiddlewareSpansUseRouteTemplate(t *testing.T) {
	r, exp, _ := newInstrumentedRouter(t, "/api/messages/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages/b1946ac9", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if want := "HTTP GET /api/messages/{id}"; spans[0].Name != want {
		t.Errorf("span name = %q, want %q", spans[0].Name, want)
	}
}

func TestMiddlewareRecordsDurationPerRoute(t *testing.T) {
	r, _, rd := newInstrumentedRouter(t, "/api/messages/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Two distinct message IDs must land on one metric stream.
	for _, id := range []string{"aaa", "bbb"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages/"+id, nil))
	}

	rm := collect(t, rd)
	met := findMetric(rm, "noorvoice.http.request.duration")
	if met == nil {
		t.Fatal("request duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T, want float64 histogram", met.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1 (path attribute should be the route template)", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("sample count = %d, want 2", dp.Count)
	}
	path, ok := dp.Attributes.Value("path")
	if !ok || path.AsString() != "/api/messages/{id}" {
		t.Errorf("path attribute = %v, want /api/messages/{id}", path.Emit())
	}
	method, ok := dp.Attributes.Value("method")
	if !ok || method.AsString() != http.MethodGet {
		t.Errorf("method attribute = %v, want GET", method.Emit())
	}
}

func TestMiddlewareCapturesStatusCode(t *testing.T) {
	r, exp, _ := newInstrumentedRouter(t, "/api/devices", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/devices", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("response status = %d, want 404", rec.Code)
	}
	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatal("no spans recorded")
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 404 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code=404")
	}
}

func TestMiddlewareJoinsIncomingTrace(t *testing.T) {
	const upstream = "4bf92f3577b34da6a3ce929d0e0e4736"

	var inHandler string
	r, _, _ := newInstrumentedRouter(t, "/api/guides", func(w http.ResponseWriter, req *http.Request) {
		inHandler = CorrelationID(req.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/guides", nil)
	req.Header.Set("traceparent", "00-"+upstream+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if inHandler != upstream {
		t.Errorf("correlation ID = %q, want the upstream trace ID %q", inHandler, upstream)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != upstream {
		t.Errorf("X-Correlation-ID header = %q, want %q", got, upstream)
	}
}
