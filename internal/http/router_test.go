package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/draftstudio-backend/internal/drafts/handoff"
	"github.com/yungbote/draftstudio-backend/internal/drafts/runner"
	"github.com/yungbote/draftstudio-backend/internal/drafts/snapshot"
	"github.com/yungbote/draftstudio-backend/internal/generator"
	httpH "github.com/yungbote/draftstudio-backend/internal/http/handlers"
	"github.com/yungbote/draftstudio-backend/internal/observability"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
	"github.com/yungbote/draftstudio-backend/internal/services"
)

type testAPI struct {
	engine *gin.Engine
	runner *runner.Runner
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	metrics := observability.NewMetrics()

	ws := services.NewWorkspace(services.NewMemoryDraftRepo(), 10, log)
	run := runner.New(generator.NewMock(), time.Minute, log)
	t.Cleanup(run.Close)

	snaps := snapshot.NewService(snapshot.NewMemoryStore(), nil, log, snapshot.ServiceOptions{})
	reg := handoff.NewRegistry()
	if err := reg.RegisterBuiltins("campaigns", "composer"); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	importer := handoff.NewImporter(reg, handoff.NewMemoryLedger(time.Hour, 100, nil), nil, log)
	channels := handoff.NewMemoryChannels(nil)

	engine := NewRouter(RouterConfig{
		Log:             log,
		Metrics:         metrics,
		MaxRequestBytes: 1 << 20,
		HealthHandler: httpH.NewHealthHandler(map[string]httpH.ReadinessCheck{
			"store": func(context.Context) error { return nil },
		}),
		DraftHandler:    httpH.NewDraftHandler(services.NewDraftService(ws, run, metrics, log)),
		SnapshotHandler: httpH.NewSnapshotHandler(services.NewSnapshotService(ws, snaps, metrics, log)),
		HandoffHandler: httpH.NewHandoffHandler(services.NewHandoffService(ws, snaps, channels, importer, metrics, log, services.HandoffServiceOptions{
			TTL: 10 * time.Minute,
		})),
	})
	return &testAPI{engine: engine, runner: run}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

// createGenerated creates a draft and waits for its first generation.
func (a *testAPI) createGenerated(t *testing.T, id string) map[string]any {
	t.Helper()
	rec, _ := a.do(t, http.MethodPost, "/api/drafts", map[string]any{
		"id":     id,
		"tool":   "emailer",
		"inputs": map[string]any{"topic": "launch"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: status=%d body=%s", id, rec.Code, rec.Body.String())
	}
	rec, _ = a.do(t, http.MethodPost, "/api/drafts/"+id+"/generate", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("generate %s: status=%d body=%s", id, rec.Code, rec.Body.String())
	}
	a.runner.Wait()
	rec, out := a.do(t, http.MethodGet, "/api/drafts/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get %s: status=%d", id, rec.Code)
	}
	return out["draft"].(map[string]any)
}

func errorCode(t *testing.T, out map[string]any) string {
	t.Helper()
	env, ok := out["error"].(map[string]any)
	if !ok {
		t.Fatalf("missing error envelope: %v", out)
	}
	code, _ := env["code"].(string)
	return code
}

func active(view map[string]any) map[string]any {
	m, _ := view["active"].(map[string]any)
	return m
}

func TestHealthcheckAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	rec, _ := api.do(t, http.MethodGet, "/healthcheck", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: status=%d body=%q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing X-Request-Id header")
	}

	if rec, _ = api.do(t, http.MethodGet, "/api/drafts", nil); rec.Code != http.StatusOK {
		t.Fatalf("list drafts: status=%d", rec.Code)
	}

	rec, _ = api.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status=%d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`drafts_api_requests_total{method="GET",route="/api/drafts",status="200"} 1`)) {
		t.Fatalf("metrics body missing api counter")
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(`route="/healthcheck"`)) {
		t.Fatalf("probe routes should not be observed")
	}
}

func TestReadiness(t *testing.T) {
	api := newTestAPI(t)
	rec, body := api.do(t, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("readyz: status=%d body=%v", rec.Code, body)
	}

	engine := NewRouter(RouterConfig{
		Log: logger.NewNop(),
		HealthHandler: httpH.NewHealthHandler(map[string]httpH.ReadinessCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
			"store": func(context.Context) error { return nil },
		}),
	})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz degraded: want=503 got=%d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("connection refused")) {
		t.Fatalf("readyz body missing failing check: %s", w.Body.String())
	}
}

func TestDraftLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	view := api.createGenerated(t, "d1")

	if view["status"] != "generated" {
		t.Fatalf("status: want=generated got=%v", view["status"])
	}
	generated := active(view)["title"]
	if generated != "[emailer] title: topic=launch" {
		t.Fatalf("generated title: got=%v", generated)
	}

	rec, out := api.do(t, http.MethodPut, "/api/drafts/d1/fields/title", map[string]any{"value": "Hand written"})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit: status=%d body=%s", rec.Code, rec.Body.String())
	}
	view = out["draft"].(map[string]any)
	if view["status"] != "edited" || active(view)["title"] != "Hand written" {
		t.Fatalf("edit: unexpected view %v", view)
	}

	rec, out = api.do(t, http.MethodPost, "/api/drafts/d1/undo", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("undo: status=%d", rec.Code)
	}
	view = out["draft"].(map[string]any)
	if active(view)["title"] != generated || view["status"] != "generated" {
		t.Fatalf("undo: unexpected view %v", view)
	}

	rec, out = api.do(t, http.MethodPost, "/api/drafts/d1/undo", nil)
	if rec.Code != http.StatusConflict || errorCode(t, out) != "nothing_to_undo" {
		t.Fatalf("second undo: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = api.do(t, http.MethodPost, "/api/drafts/d1/reset", map[string]any{"inputs": map[string]any{"topic": "fresh"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: status=%d", rec.Code)
	}
	view = out["draft"].(map[string]any)
	if view["status"] != "draft" || view["has_baseline"] != false {
		t.Fatalf("reset: unexpected view %v", view)
	}

	rec, _ = api.do(t, http.MethodDelete, "/api/drafts/d1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status=%d", rec.Code)
	}
	rec, out = api.do(t, http.MethodGet, "/api/drafts/d1", nil)
	if rec.Code != http.StatusNotFound || errorCode(t, out) != "draft_not_found" {
		t.Fatalf("get deleted: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestDraftErrorsOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	rec, out := api.do(t, http.MethodPost, "/api/drafts", map[string]any{"inputs": map[string]any{}})
	if rec.Code != http.StatusBadRequest || errorCode(t, out) != "invalid_request" {
		t.Fatalf("create without tool: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, _ = api.do(t, http.MethodPost, "/api/drafts", map[string]any{"id": "d1", "tool": "emailer"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status=%d", rec.Code)
	}
	rec, out = api.do(t, http.MethodPost, "/api/drafts", map[string]any{"id": "d1", "tool": "emailer"})
	if rec.Code != http.StatusConflict || errorCode(t, out) != "draft_exists" {
		t.Fatalf("duplicate create: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = api.do(t, http.MethodPut, "/api/drafts/d1/fields/title", map[string]any{"value": "x"})
	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, out) != "no_baseline" {
		t.Fatalf("edit without baseline: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = api.do(t, http.MethodPost, "/api/drafts/d1/snapshots", nil)
	if rec.Code != http.StatusUnprocessableEntity || errorCode(t, out) != "no_baseline" {
		t.Fatalf("capture without baseline: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestSnapshotsOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.createGenerated(t, "d1")

	rec, out := api.do(t, http.MethodPost, "/api/drafts/d1/snapshots", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("capture: status=%d body=%s", rec.Code, rec.Body.String())
	}
	first := out["snapshot"].(map[string]any)["id"].(string)
	if first == "" {
		t.Fatalf("capture: missing snapshot id")
	}
	if got := out["snapshot"].(map[string]any)["persist_status"]; got != "local_only" {
		t.Fatalf("persist_status: want=local_only got=%v", got)
	}

	rec, out = api.do(t, http.MethodPost, "/api/drafts/d1/snapshots", map[string]any{"set_active": false})
	if rec.Code != http.StatusCreated {
		t.Fatalf("second capture: status=%d", rec.Code)
	}
	second := out["snapshot"].(map[string]any)["id"].(string)
	if got := out["history"].(map[string]any)["active_snapshot_id"]; got != first {
		t.Fatalf("active after inactive capture: want=%s got=%v", first, got)
	}

	rec, out = api.do(t, http.MethodPut, "/api/drafts/d1/snapshots/active", map[string]any{"snapshot_id": second})
	if rec.Code != http.StatusOK || out["history"].(map[string]any)["active_snapshot_id"] != second {
		t.Fatalf("set active: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = api.do(t, http.MethodPut, "/api/drafts/d1/snapshots/active", map[string]any{"snapshot_id": "missing"})
	if rec.Code != http.StatusNotFound || errorCode(t, out) != "snapshot_not_found" {
		t.Fatalf("set active unknown: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, _ = api.do(t, http.MethodPatch, "/api/drafts/d1/snapshots/active/derived", map[string]any{
		"derived_state": map[string]any{"sent": true},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update derived: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = api.do(t, http.MethodGet, "/api/drafts/d1/snapshots/"+second+"/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status=%d", rec.Code)
	}
	if out["kind"] != snapshot.ExportKind || out["history_key"] != "d1" {
		t.Fatalf("export: unexpected document %v", out)
	}
	derived := out["snapshot"].(map[string]any)["derived_state"].(map[string]any)
	if derived["sent"] != true {
		t.Fatalf("export: derived state not carried: %v", derived)
	}
}

func TestHandoffOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.createGenerated(t, "src")
	api.createGenerated(t, "dst")

	rec, _ := api.do(t, http.MethodPut, "/api/drafts/src/fields/title", map[string]any{"value": "Carried over"})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit src: status=%d", rec.Code)
	}
	rec, _ = api.do(t, http.MethodPost, "/api/drafts/src/snapshots", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("capture src: status=%d", rec.Code)
	}

	session := []string{"X-Session-Id", "sess-1"}
	rec, out := api.do(t, http.MethodPost, "/api/handoffs", map[string]any{
		"source":      "campaigns",
		"destination": "composer",
		"draft_id":    "src",
		"kind":        "fields",
		"fields":      []string{"title"},
	}, session...)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if out["envelope"].(map[string]any)["source_app"] != "campaigns" {
		t.Fatalf("send: unexpected envelope %v", out)
	}

	// Other sessions do not see the envelope.
	rec, out = api.do(t, http.MethodGet, "/api/handoffs/campaigns/composer?target=dst", nil, "X-Session-Id", "sess-2")
	if rec.Code != http.StatusOK || out["plan"].(map[string]any)["block"] != string(handoff.BlockAbsent) {
		t.Fatalf("plan other session: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = api.do(t, http.MethodGet, "/api/handoffs/campaigns/composer?target=dst", nil, session...)
	if rec.Code != http.StatusOK || out["plan"].(map[string]any)["can_apply"] != true {
		t.Fatalf("plan: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = api.do(t, http.MethodPost, "/api/handoffs/campaigns/composer/apply", map[string]any{"target_draft_id": "dst"}, session...)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply: status=%d body=%s", rec.Code, rec.Body.String())
	}
	view := out["draft"].(map[string]any)
	if active(view)["title"] != "Carried over" || view["status"] != "edited" {
		t.Fatalf("apply: unexpected target view %v", view)
	}

	// The channel is consumed by a successful import.
	rec, out = api.do(t, http.MethodPost, "/api/handoffs/campaigns/composer/apply", map[string]any{"target_draft_id": "dst"}, session...)
	if rec.Code != http.StatusNotFound || errorCode(t, out) != "handoff_absent" {
		t.Fatalf("second apply: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, _ = api.do(t, http.MethodDelete, "/api/handoffs/campaigns/composer", nil, session...)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("dismiss: status=%d", rec.Code)
	}
}

func TestHandoffSendRequiresActiveSnapshot(t *testing.T) {
	api := newTestAPI(t)
	api.createGenerated(t, "src")

	rec, out := api.do(t, http.MethodPost, "/api/handoffs", map[string]any{
		"source":      "campaigns",
		"destination": "composer",
		"draft_id":    "src",
		"kind":        "fields",
	})
	if rec.Code != http.StatusConflict || errorCode(t, out) != "no_active_snapshot" {
		t.Fatalf("send without snapshot: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec, out = api.do(t, http.MethodPost, "/api/handoffs", map[string]any{
		"source":      "campaigns",
		"destination": "composer",
		"draft_id":    "src",
		"kind":        "bogus",
	})
	if rec.Code != http.StatusBadRequest || errorCode(t, out) != "invalid_request" {
		t.Fatalf("send bad kind: status=%d body=%s", rec.Code, rec.Body.String())
	}
}
