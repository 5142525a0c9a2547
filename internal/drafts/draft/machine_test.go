package draft

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func mustDispatch(t *testing.T, m *Machine, a Action) Result {
	t.Helper()
	res, err := m.Dispatch(a)
	if err != nil {
		t.Fatalf("dispatch %s: %v", ActionName(a), err)
	}
	return res
}

func generated(t *testing.T, m *Machine, baseline Content) {
	t.Helper()
	req := mustDispatch(t, m, GenerateRequest{})
	mustDispatch(t, m, GenerateSuccess{Seq: req.Seq, Baseline: baseline})
}

func TestGenerateLifecycle(t *testing.T) {
	m := New("d1", nil)
	if got := m.Status(); got != StatusDraft {
		t.Fatalf("initial status: want=%s got=%s", StatusDraft, got)
	}

	req := mustDispatch(t, m, GenerateRequest{})
	if req.Status != StatusGenerating {
		t.Fatalf("after request: want=%s got=%s", StatusGenerating, req.Status)
	}
	if req.Seq != 1 {
		t.Fatalf("seq: want=1 got=%d", req.Seq)
	}

	res := mustDispatch(t, m, GenerateSuccess{Seq: req.Seq, Baseline: Content{"title": "A"}})
	if res.Status != StatusGenerated {
		t.Fatalf("after success: want=%s got=%s", StatusGenerated, res.Status)
	}
	if v := m.View(); v.HasEdits() {
		t.Fatalf("overlay should be empty, got %v", v.Overlay)
	}
}

func TestEditBackToBaselinePrunes(t *testing.T) {
	m := New("d1", nil)
	generated(t, m, Content{"f": "A", "g": "B"})

	if res := mustDispatch(t, m, ApplyEdit{Field: "f", Value: "X"}); res.Status != StatusEdited {
		t.Fatalf("after edit: want=%s got=%s", StatusEdited, res.Status)
	}
	if got := m.View().Active["f"]; got != "X" {
		t.Fatalf("active f: want=X got=%v", got)
	}
	res := mustDispatch(t, m, ApplyEdit{Field: "f", Value: "A"})
	if res.Status != StatusGenerated {
		t.Fatalf("after revert: want=%s got=%s", StatusGenerated, res.Status)
	}
	if !res.Pruned {
		t.Fatalf("expected revert to prune the overlay entry")
	}
}

func TestPruningIdempotence(t *testing.T) {
	baseline := Content{
		"tags":  []any{"a", "b"},
		"meta":  map[string]any{"k": 1.0, "z": "y"},
		"count": 3.0,
	}
	histories := [][]ApplyEdit{
		nil,
		{{Field: "tags", Value: []any{"c"}}},
		{{Field: "tags", Value: []any{"c"}}, {Field: "tags", Value: []any{"d"}}},
		{{Field: "meta", Value: map[string]any{"k": 2}}, {Field: "count", Value: 9}},
	}
	for i, h := range histories {
		m := New("d", nil)
		generated(t, m, baseline)
		for _, e := range h {
			mustDispatch(t, m, e)
		}
		// Structurally equal values written with different Go types and key order.
		mustDispatch(t, m, ApplyEdit{Field: "tags", Value: []string{"a", "b"}})
		mustDispatch(t, m, ApplyEdit{Field: "meta", Value: map[string]any{"z": "y", "k": 1}})
		mustDispatch(t, m, ApplyEdit{Field: "count", Value: 3})
		if v := m.View(); v.HasEdits() {
			t.Fatalf("history %d: overlay not empty: %v", i, v.Overlay)
		}
		if got := m.Status(); got != StatusGenerated {
			t.Fatalf("history %d: want=%s got=%s", i, StatusGenerated, got)
		}
	}
}

func TestStatusPurity(t *testing.T) {
	m := New("d", map[string]any{"topic": "x"})
	actions := []Action{
		InitFromInputs{Inputs: map[string]any{"topic": "y"}},
		GenerateRequest{},
		GenerateError{Seq: 1, Message: "boom"},
		GenerateRequest{},
		GenerateSuccess{Seq: 2, Baseline: Content{"a": "1"}},
		ApplyEdit{Field: "a", Value: "2"},
		ApplyEdit{Field: "b", Value: "3"},
		Undo{},
		ResetField{Field: "a"},
		ApplyEdit{Field: "a", Value: "9"},
		GenerateRequest{},
		GenerateSuccess{Seq: 3, Baseline: Content{"a": "9"}, PreserveEdits: true},
		ResetAllEdits{},
		GenerateRequest{ClearBaseline: true},
		GenerateError{Seq: 4, Message: "again"},
		ResetDraft{},
	}
	for i, a := range actions {
		res, _ := m.Dispatch(a)
		st := m.State()
		want := ProjectStatus(false, st.Error != "", st.HasBaseline, len(st.Overlay) > 0)
		if m.View().Status == StatusGenerating {
			want = StatusGenerating
		}
		if res.Status != want {
			t.Fatalf("step %d (%s): want=%s got=%s", i, ActionName(a), want, res.Status)
		}
	}
}

func TestGenerateRequestRejectedWhileInFlight(t *testing.T) {
	m := New("d", nil)
	mustDispatch(t, m, GenerateRequest{})
	_, err := m.Dispatch(GenerateRequest{})
	if !errors.Is(err, ErrGenerationInFlight) {
		t.Fatalf("want ErrGenerationInFlight, got %v", err)
	}
}

func TestStaleCompletionsDiscarded(t *testing.T) {
	m := New("d", nil)
	first := mustDispatch(t, m, GenerateRequest{})
	mustDispatch(t, m, ResetDraft{Inputs: map[string]any{"n": 1}})
	second := mustDispatch(t, m, GenerateRequest{})
	if second.Seq <= first.Seq {
		t.Fatalf("seq must increase: first=%d second=%d", first.Seq, second.Seq)
	}

	res := mustDispatch(t, m, GenerateSuccess{Seq: first.Seq, Baseline: Content{"old": true}})
	if !res.Stale {
		t.Fatalf("expected stale completion")
	}
	if got := m.Status(); got != StatusGenerating {
		t.Fatalf("stale success changed status: got=%s", got)
	}
	res = mustDispatch(t, m, GenerateError{Seq: first.Seq, Message: "late"})
	if !res.Stale {
		t.Fatalf("expected stale error")
	}

	mustDispatch(t, m, GenerateSuccess{Seq: second.Seq, Baseline: Content{"new": true}})
	v := m.View()
	if diff := cmp.Diff(Content{"new": true}, v.Baseline); diff != "" {
		t.Fatalf("baseline mismatch (-want +got):\n%s", diff)
	}
	// A duplicate completion after the generation finished is stale as well.
	if res := mustDispatch(t, m, GenerateSuccess{Seq: second.Seq, Baseline: Content{}}); !res.Stale {
		t.Fatalf("expected duplicate completion to be stale")
	}
}

func TestErrorRetainsBaseline(t *testing.T) {
	m := New("d", nil)
	generated(t, m, Content{"title": "A"})
	mustDispatch(t, m, ApplyEdit{Field: "title", Value: "B"})
	req := mustDispatch(t, m, GenerateRequest{})
	res := mustDispatch(t, m, GenerateError{Seq: req.Seq, Message: "upstream timeout"})
	if res.Status != StatusError {
		t.Fatalf("want=%s got=%s", StatusError, res.Status)
	}
	v := m.View()
	if v.Error != "upstream timeout" {
		t.Fatalf("error: want=%q got=%q", "upstream timeout", v.Error)
	}
	if got := v.Active["title"]; got != "B" {
		t.Fatalf("active title: want=B got=%v", got)
	}
	if !v.HasBaseline {
		t.Fatalf("baseline should be retained")
	}

	// A fresh request clears the error.
	if res := mustDispatch(t, m, GenerateRequest{}); res.Status != StatusGenerating {
		t.Fatalf("want=%s got=%s", StatusGenerating, res.Status)
	}
	if m.View().Error != "" {
		t.Fatalf("error should be cleared by a new request")
	}
}

func TestClearBaselineOnRequest(t *testing.T) {
	m := New("d", nil)
	generated(t, m, Content{"title": "A"})
	mustDispatch(t, m, GenerateRequest{ClearBaseline: true})
	if v := m.View(); v.HasBaseline {
		t.Fatalf("baseline should be discarded")
	}
}

func TestPreserveEditsRePrunes(t *testing.T) {
	m := New("d", nil)
	generated(t, m, Content{"a": "1", "b": "2"})
	mustDispatch(t, m, ApplyEdit{Field: "a", Value: "x"})
	mustDispatch(t, m, ApplyEdit{Field: "b", Value: "y"})

	req := mustDispatch(t, m, GenerateRequest{})
	mustDispatch(t, m, GenerateSuccess{Seq: req.Seq, Baseline: Content{"a": "x", "b": "3"}, PreserveEdits: true})
	v := m.View()
	if diff := cmp.Diff(Overlay{"b": "y"}, v.Overlay); diff != "" {
		t.Fatalf("overlay mismatch (-want +got):\n%s", diff)
	}
	if v.CanUndo {
		t.Fatalf("undo history should be cleared by a fresh generation")
	}
}

func TestApplyEditWithoutBaseline(t *testing.T) {
	m := New("d", nil)
	if _, err := m.Dispatch(ApplyEdit{Field: "f", Value: "x"}); !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("want ErrNoBaseline, got %v", err)
	}
	generated(t, m, Content{})
	if _, err := m.Dispatch(ApplyEdit{Field: "  ", Value: "x"}); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("want ErrInvalidField, got %v", err)
	}
}

func TestUndo(t *testing.T) {
	m := New("d", nil)
	generated(t, m, Content{"f": "A"})

	if _, err := m.Dispatch(Undo{}); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("want ErrNothingToUndo, got %v", err)
	}

	mustDispatch(t, m, ApplyEdit{Field: "f", Value: "X"})
	mustDispatch(t, m, ApplyEdit{Field: "f", Value: "Y"})
	mustDispatch(t, m, ApplyEdit{Field: "g", Value: "new"})

	mustDispatch(t, m, Undo{})
	if _, ok := m.View().Overlay["g"]; ok {
		t.Fatalf("undo should remove the g entry")
	}
	mustDispatch(t, m, Undo{})
	if got := m.View().Active["f"]; got != "X" {
		t.Fatalf("active f: want=X got=%v", got)
	}
	res := mustDispatch(t, m, Undo{})
	if !res.Pruned || res.Status != StatusGenerated {
		t.Fatalf("undo to baseline: want pruned generated, got %+v", res)
	}
}

func TestUndoDepthDropsOldest(t *testing.T) {
	m := New("d", nil, WithUndoDepth(2))
	generated(t, m, Content{"f": "A"})
	mustDispatch(t, m, ApplyEdit{Field: "f", Value: "1"})
	mustDispatch(t, m, ApplyEdit{Field: "f", Value: "2"})
	mustDispatch(t, m, ApplyEdit{Field: "f", Value: "3"})

	mustDispatch(t, m, Undo{})
	mustDispatch(t, m, Undo{})
	if got := m.View().Active["f"]; got != "1" {
		t.Fatalf("active f: want=1 got=%v", got)
	}
	if _, err := m.Dispatch(Undo{}); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("oldest entry should have been dropped, got %v", err)
	}
}

func TestResetDraft(t *testing.T) {
	m := New("d", map[string]any{"topic": "a"})
	generated(t, m, Content{"f": "A"})
	mustDispatch(t, m, ApplyEdit{Field: "f", Value: "X"})
	res := mustDispatch(t, m, ResetDraft{Inputs: map[string]any{"topic": "b"}})
	if res.Status != StatusDraft {
		t.Fatalf("want=%s got=%s", StatusDraft, res.Status)
	}
	v := m.View()
	if v.CanUndo || v.HasBaseline || v.HasEdits() {
		t.Fatalf("reset left state behind: %+v", v)
	}
	if diff := cmp.Diff(map[string]any{"topic": "b"}, v.Inputs); diff != "" {
		t.Fatalf("inputs mismatch (-want +got):\n%s", diff)
	}
}

func TestViewIsDeepCopy(t *testing.T) {
	inputs := map[string]any{"items": []any{"a"}}
	m := New("d", inputs)
	inputs["items"].([]any)[0] = "mutated"

	generated(t, m, Content{"meta": map[string]any{"k": "v"}})
	v := m.View()
	v.Active["meta"].(map[string]any)["k"] = "changed"
	v.Inputs["items"].([]any)[0] = "changed"

	again := m.View()
	if got := again.Active["meta"].(map[string]any)["k"]; got != "v" {
		t.Fatalf("view leaked baseline reference: got=%v", got)
	}
	if got := again.Inputs["items"].([]any)[0]; got != "a" {
		t.Fatalf("view leaked inputs reference: got=%v", got)
	}
}

func TestDefaultsFillActiveContent(t *testing.T) {
	m := New("d", nil, WithDefaults(Defaults{"notes": "", "tags": []any{}}))
	generated(t, m, Content{"tags": []any{"x"}})
	v := m.View()
	want := Content{"notes": "", "tags": []any{"x"}}
	if diff := cmp.Diff(want, v.Active); diff != "" {
		t.Fatalf("active mismatch (-want +got):\n%s", diff)
	}
}

func TestStateRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := New("d", map[string]any{"topic": "a"}, WithTool("emailer"), WithClock(func() time.Time { return now }))
	generated(t, m, Content{"f": "A"})
	mustDispatch(t, m, ApplyEdit{Field: "f", Value: "X"})
	mustDispatch(t, m, GenerateRequest{})

	st := m.State()
	r := Restore(st)
	v := r.View()
	if v.Status != StatusEdited {
		t.Fatalf("restored draft must not resume generating: got=%s", v.Status)
	}
	if v.Tool != "emailer" || v.Seq != st.Seq || !v.CanUndo {
		t.Fatalf("restored view mismatch: %+v", v)
	}
	mustDispatch(t, r, Undo{})
	if r.View().HasEdits() {
		t.Fatalf("restored undo history should revert the edit")
	}
}

func TestStateRoundTripKeepsEmptyBaseline(t *testing.T) {
	m := New("d", nil)
	generated(t, m, Content{})
	if got := m.Status(); got != StatusGenerated {
		t.Fatalf("before save: want=%s got=%s", StatusGenerated, got)
	}

	raw, err := json.Marshal(m.State())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	r := Restore(st)
	if got := r.Status(); got != StatusGenerated {
		t.Fatalf("after restore: want=%s got=%s", StatusGenerated, got)
	}
	mustDispatch(t, r, ApplyEdit{Field: "f", Value: "X"})
	if got := r.Status(); got != StatusEdited {
		t.Fatalf("edit after restore: want=%s got=%s", StatusEdited, got)
	}

	// A draft that never generated stays without a baseline.
	raw, _ = json.Marshal(New("fresh", nil).State())
	var fresh State
	if err := json.Unmarshal(raw, &fresh); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if Restore(fresh).View().HasBaseline {
		t.Fatalf("fresh draft must not gain a baseline")
	}
}

func TestApplyEditsAllOrNothing(t *testing.T) {
	m := New("d", nil)
	generated(t, m, Content{"a": "A", "b": "B"})
	before := m.View().Version

	_, err := m.Dispatch(ApplyEdits{Edits: []ApplyEdit{{Field: "a", Value: "X"}, {Field: " ", Value: "Y"}}})
	if !errors.Is(err, ErrInvalidField) {
		t.Fatalf("blank field: want=%v got=%v", ErrInvalidField, err)
	}
	if v := m.View(); v.HasEdits() || v.Version != before {
		t.Fatalf("rejected batch must not write: overlay=%v version=%d", v.Overlay, v.Version)
	}

	notified := 0
	unsubscribe := m.OnChange(func(View) { notified++ })
	res := mustDispatch(t, m, ApplyEdits{Edits: []ApplyEdit{{Field: "a", Value: "X"}, {Field: "b", Value: "B"}, {Field: "c", Value: "Z"}}})
	unsubscribe()
	if notified != 1 {
		t.Fatalf("notifications: want=1 got=%d", notified)
	}
	if !res.Pruned || res.Status != StatusEdited {
		t.Fatalf("batch result: %+v", res)
	}
	if diff := cmp.Diff(Overlay{"a": "X", "c": "Z"}, m.View().Overlay); diff != "" {
		t.Fatalf("overlay mismatch (-want +got):\n%s", diff)
	}

	mustDispatch(t, m, Undo{})
	mustDispatch(t, m, Undo{})
	if m.View().HasEdits() {
		t.Fatalf("undo should revert each batched edit: %v", m.View().Overlay)
	}

	mustDispatch(t, m, GenerateRequest{ClearBaseline: true})
	_, err = m.Dispatch(ApplyEdits{Edits: []ApplyEdit{{Field: "a", Value: "X"}}})
	if !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("no baseline: want=%v got=%v", ErrNoBaseline, err)
	}
}

func TestClearingBaselineDropsUndo(t *testing.T) {
	m := New("d", nil)
	generated(t, m, Content{"f": "A"})
	mustDispatch(t, m, ApplyEdit{Field: "f", Value: "X"})
	mustDispatch(t, m, ApplyEdit{Field: "f", Value: "Y"})

	mustDispatch(t, m, GenerateRequest{ClearBaseline: true})
	if m.View().CanUndo {
		t.Fatalf("clearing the baseline must drop undo history")
	}
	if _, err := m.Dispatch(Undo{}); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("undo: want=%v got=%v", ErrNothingToUndo, err)
	}
	if got := m.View().Overlay["f"]; got != "Y" {
		t.Fatalf("overlay: want=Y got=%v", got)
	}

	// Persisted undo entries without a baseline are refused, not replayed.
	st := State{ID: "d", Overlay: Overlay{"f": "Y"}, Undo: []UndoEntry{{Field: "f", Prev: "X", HadPrev: true}}}
	r := Restore(st)
	if _, err := r.Dispatch(Undo{}); !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("restored undo: want=%v got=%v", ErrNoBaseline, err)
	}
	if got := r.View().Overlay["f"]; got != "Y" {
		t.Fatalf("restored overlay: want=Y got=%v", got)
	}
}

func TestOnChange(t *testing.T) {
	m := New("d", nil)
	var mu sync.Mutex
	var seen []Status
	unsubscribe := m.OnChange(func(v View) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, v.Status)
	})

	generated(t, m, Content{"f": "A"})
	// No-op actions do not notify.
	mustDispatch(t, m, ResetAllEdits{})
	unsubscribe()
	mustDispatch(t, m, ApplyEdit{Field: "f", Value: "B"})

	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusGenerating, StatusGenerated}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Fatalf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentDispatch(t *testing.T) {
	m := New("d", nil)
	generated(t, m, Content{"f": "A"})
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = m.Dispatch(ApplyEdit{Field: "f", Value: i})
			} else {
				_ = m.View()
			}
		}(i)
	}
	wg.Wait()
	if got := m.Status(); got != StatusEdited {
		t.Fatalf("want=%s got=%s", StatusEdited, got)
	}
}

func TestUnknownAction(t *testing.T) {
	m := New("d", nil)
	if _, err := m.Dispatch(nil); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("want ErrUnknownAction, got %v", err)
	}
}
