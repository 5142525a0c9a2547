package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordAndServe(t *testing.T) {
	m := NewMetrics()
	m.ObserveAPI("GET", "/api/drafts/:id", "200", 15*time.Millisecond)
	m.IncDraftAction("apply_edit", "applied")
	m.IncDraftAction("apply_edit", "applied")
	m.IncHandoffPlan("")

	if got := testutil.ToFloat64(m.draftActions.WithLabelValues("apply_edit", "applied")); got != 2 {
		t.Fatalf("draft actions: want=2 got=%v", got)
	}
	if got := testutil.ToFloat64(m.handoffPlans.WithLabelValues("none")); got != 1 {
		t.Fatalf("handoff plans: want=1 got=%v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`drafts_api_requests_total{method="GET",route="/api/drafts/:id",status="200"} 1`,
		`drafts_actions_total{action="apply_edit",outcome="applied"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/", "200", time.Millisecond)
	m.IncDraftAction("undo", "noop")
	m.ObserveGeneration("t", "success", time.Second)
	m.IncSnapshotCapture("durable")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: want=503 got=%d", rec.Code)
	}
}
