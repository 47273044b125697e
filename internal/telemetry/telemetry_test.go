/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRecordSolve(t *testing.T) {
	before := testutil.ToFloat64(SolvesTotal.WithLabelValues("infeasible"))
	RecordSolve("infeasible", 0.01, 12, 3)
	after := testutil.ToFloat64(SolvesTotal.WithLabelValues("infeasible"))
	if after != before+1 {
		t.Fatalf("solves_total{infeasible}: got %v, want %v", after, before+1)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheLookups.WithLabelValues("hit"))
	misses := testutil.ToFloat64(CacheLookups.WithLabelValues("miss"))
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)
	if got := testutil.ToFloat64(CacheLookups.WithLabelValues("hit")); got != hits+1 {
		t.Fatalf("hits: got %v", got)
	}
	if got := testutil.ToFloat64(CacheLookups.WithLabelValues("miss")); got != misses+2 {
		t.Fatalf("misses: got %v", got)
	}
}

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/runs/{runID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := APIRequestsTotal.WithLabelValues(http.MethodGet, "/runs/{runID}", "404")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/abc", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d", rec.Code)
	}
	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Fatalf("requests_total: got %v, want %v", got, before+1)
	}
}

func TestTracingMiddlewareNamesSpanByRoute(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := chi.NewRouter()
	r.Use(TracingMiddleware("paraspace-test"))
	r.Get("/runs/{runID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"abc", "def"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/runs/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	spans := rec.Ended()
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	for _, span := range spans[:2] {
		if span.Name() != "GET /runs/{runID}" {
			t.Fatalf("span name = %q, want route pattern", span.Name())
		}
	}
	if name := spans[2].Name(); strings.Contains(name, "nowhere") {
		t.Fatalf("unmatched request span name %q carries the raw path", name)
	}
}

func TestHandlerExposesSolverMetrics(t *testing.T) {
	RecordSolve("solved", 0.002, 1, 1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "paraspace_solver_solves_total") {
		t.Fatal("metrics output missing paraspace_solver_solves_total")
	}
}

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{ServiceName: "paraspace"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	ctx, span := StartSolveSpan(context.Background(), "fp", 2)
	if ctx == nil {
		t.Fatal("nil context")
	}
	EndSolveSpan(span, "infeasible", 4, errors.New("no plan"))
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNewSamplerBounds(t *testing.T) {
	cases := []struct {
		rate float64
		want string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tc := range cases {
		if got := newSampler(tc.rate).Description(); !strings.HasPrefix(got, "ParentBased{root:"+tc.want) {
			t.Fatalf("newSampler(%v) = %q, want root sampler %q", tc.rate, got, tc.want)
		}
	}
}
