package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIntakeMetricsObserver(t *testing.T) {
	m := NewIntakeMetrics("worker")

	m.ObserveDocument("committed", 2*time.Second)
	m.ObserveDocument("deleted", time.Second)
	m.ObserveDocument("committed", time.Second)
	m.ObserveGate(true)
	m.ObserveGate(false)
	m.ObserveNotification(errors.New("smtp down"))

	if got := testutil.ToFloat64(m.documentTotal.WithLabelValues("worker", "committed")); got != 2 {
		t.Fatalf("expected 2 committed documents, got %v", got)
	}
	if got := testutil.ToFloat64(m.gateTotal.WithLabelValues("worker", "fired")); got != 1 {
		t.Fatalf("expected one gate fire, got %v", got)
	}
	if got := testutil.ToFloat64(m.notifyTotal.WithLabelValues("worker", "failed")); got != 1 {
		t.Fatalf("expected one failed notification, got %v", got)
	}

	m.StartBatch()
	if got := testutil.ToFloat64(m.batchInFlight); got != 1 {
		t.Fatalf("expected one batch in flight, got %v", got)
	}
	m.FinishBatch()
	if got := testutil.ToFloat64(m.batchInFlight); got != 0 {
		t.Fatalf("expected no batch in flight, got %v", got)
	}
}

func TestBreakerStateGauge(t *testing.T) {
	m := NewIntakeMetrics("worker")

	m.ObserveBreakerState("analysis.cross_verify", "open")
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("worker", "analysis.cross_verify")); got != 2 {
		t.Fatalf("expected open breaker gauge 2, got %v", got)
	}
	m.ObserveBreakerState("analysis.cross_verify", "closed")
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("worker", "analysis.cross_verify")); got != 0 {
		t.Fatalf("expected closed breaker gauge 0, got %v", got)
	}
}

func TestHTTPMiddlewareNormalizesPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	for _, id := range []string{"case-1", "case-2"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/cases/"+id+"/documents", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues(http.MethodPost, "/v1/cases/{caseID}/documents", "202"))
	if got != 2 {
		t.Fatalf("expected 2 normalized requests, got %v", got)
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin", nil))
	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues(http.MethodGet, "other", "202")); got != 1 {
		t.Fatalf("expected unknown paths collapsed to other, got %v", got)
	}
}

func TestHTTPMiddlewareUsesMuxPattern(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/documents/{documentID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	m.Middleware(mux).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/documents/doc-9", nil))

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues(http.MethodGet, "/v1/documents/{documentID}", "404")); got != 1 {
		t.Fatalf("expected request counted under route pattern, got %v", got)
	}
}

func TestHTTPHandlerExposesIntakeSeries(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	intake := NewIntakeMetrics("api")
	m.MustRegister(intake.Collectors()...)
	intake.ObservePoll(4, true)
	m.RecordUpload(2, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{"intake_extraction_poll_attempts", "intake_upload_files_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}
