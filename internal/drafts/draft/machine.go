package draft

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrGenerationInFlight = errors.New("generation already in flight")
	ErrNoBaseline         = errors.New("draft has no generated content")
	ErrNothingToUndo      = errors.New("nothing to undo")
	ErrInvalidField       = errors.New("field key required")
	ErrUnknownAction      = errors.New("unknown draft action")
)

// Result describes the outcome of one dispatched action.
type Result struct {
	Status  Status
	Seq     uint64
	Stale   bool
	Pruned  bool
	Version uint64
}

// View is an immutable, deep-copied read of a draft.
type View struct {
	ID          string         `json:"id"`
	Tool        string         `json:"tool,omitempty"`
	Status      Status         `json:"status"`
	Inputs      map[string]any `json:"inputs"`
	HasBaseline bool           `json:"has_baseline"`
	Baseline    Content        `json:"baseline,omitempty"`
	Overlay     Overlay        `json:"overlay"`
	Active      Content        `json:"active"`
	Error       string         `json:"error,omitempty"`
	Seq         uint64         `json:"seq"`
	CanUndo     bool           `json:"can_undo"`
	Version     uint64         `json:"version"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// HasEdits mirrors the overlay existence check for callers holding a View.
func (v View) HasEdits() bool { return HasEdits(v.Overlay) }

// State is the persisted form of a draft. A restored draft is never
// generating: in-flight requests do not survive a restart.
type State struct {
	ID     string         `json:"id"`
	Tool   string         `json:"tool,omitempty"`
	Inputs map[string]any `json:"inputs"`
	// HasBaseline keeps an empty generated baseline distinct from none.
	HasBaseline bool        `json:"has_baseline"`
	Baseline    Content     `json:"baseline,omitempty"`
	Overlay     Overlay     `json:"overlay,omitempty"`
	Defaults    Defaults    `json:"defaults,omitempty"`
	Error       string      `json:"error,omitempty"`
	Seq         uint64      `json:"seq"`
	Undo        []UndoEntry `json:"undo,omitempty"`
	UndoDepth   int         `json:"undo_depth,omitempty"`
	Version     uint64      `json:"version"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type Option func(*Machine)

func WithUndoDepth(depth int) Option {
	return func(m *Machine) { m.undo = NewUndoStack(depth) }
}

func WithDefaults(d Defaults) Option {
	return func(m *Machine) { m.defaults = cloneDefaults(d) }
}

func WithTool(tool string) Option {
	return func(m *Machine) { m.tool = strings.TrimSpace(tool) }
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// Machine owns one draft. Dispatch applies actions one at a time; two
// transitions never interleave.
type Machine struct {
	mu         sync.Mutex
	id         string
	tool       string
	inputs     map[string]any
	baseline   Content
	overlay    Overlay
	defaults   Defaults
	errMsg     string
	generating bool
	seq        uint64
	undo       *UndoStack
	version    uint64
	updatedAt  time.Time
	now        func() time.Time

	subsMu sync.Mutex
	subs   map[int]func(View)
	nextID int
}

func New(id string, inputs map[string]any, opts ...Option) *Machine {
	m := &Machine{
		id:       id,
		inputs:   CloneInputs(inputs),
		overlay:  Overlay{},
		defaults: Defaults{},
		undo:     NewUndoStack(DefaultUndoDepth),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(m)
	}
	m.updatedAt = m.now()
	return m
}

// Restore rebuilds a machine from its persisted state.
func Restore(st State, opts ...Option) *Machine {
	m := New(st.ID, st.Inputs, opts...)
	if st.Tool != "" {
		m.tool = st.Tool
	}
	if st.Defaults != nil {
		m.defaults = cloneDefaults(st.Defaults)
	}
	if st.UndoDepth > 0 {
		m.undo = NewUndoStack(st.UndoDepth)
	}
	m.baseline = CloneContent(st.Baseline)
	if st.HasBaseline && m.baseline == nil {
		m.baseline = Content{}
	}
	m.overlay = cloneOverlay(st.Overlay)
	if m.baseline != nil {
		m.overlay, _ = Prune(m.overlay, m.baseline)
	}
	m.errMsg = st.Error
	m.seq = st.Seq
	m.undo.restore(st.Undo)
	m.version = st.Version
	if !st.UpdatedAt.IsZero() {
		m.updatedAt = st.UpdatedAt
	}
	return m
}

func (m *Machine) ID() string { return m.id }

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		ID:          m.id,
		Tool:        m.tool,
		Inputs:      CloneInputs(m.inputs),
		HasBaseline: m.baseline != nil,
		Baseline:    CloneContent(m.baseline),
		Overlay:     cloneOverlay(m.overlay),
		Defaults:    cloneDefaults(m.defaults),
		Error:       m.errMsg,
		Seq:         m.seq,
		Undo:        m.undo.snapshot(),
		UndoDepth:   m.undo.Depth(),
		Version:     m.version,
		UpdatedAt:   m.updatedAt,
	}
}

// OnChange registers fn to run after every action that changed the draft.
// Callbacks run outside the draft lock, in dispatch order per caller.
func (m *Machine) OnChange(fn func(View)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if m.subs == nil {
		m.subs = map[int]func(View){}
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		delete(m.subs, id)
	}
}

// Dispatch applies one action and recomputes the status.
func (m *Machine) Dispatch(a Action) (Result, error) {
	m.mu.Lock()
	res, changed, err := m.apply(a)
	var view View
	if changed {
		m.version++
		m.updatedAt = m.now()
		view = m.viewLocked()
	}
	res.Status = m.statusLocked()
	res.Version = m.version
	m.mu.Unlock()

	if changed {
		m.notify(view)
	}
	return res, err
}

func (m *Machine) notify(v View) {
	m.subsMu.Lock()
	fns := make([]func(View), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subsMu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (m *Machine) apply(a Action) (Result, bool, error) {
	switch act := a.(type) {
	case InitFromInputs:
		m.inputs = CloneInputs(act.Inputs)
		return Result{}, true, nil

	case GenerateRequest:
		if m.generating {
			return Result{Seq: m.seq}, false, ErrGenerationInFlight
		}
		m.seq++
		m.generating = true
		m.errMsg = ""
		if act.ClearBaseline {
			m.baseline = nil
			m.undo.Clear()
		}
		return Result{Seq: m.seq}, true, nil

	case GenerateSuccess:
		if !m.generating || act.Seq != m.seq {
			return Result{Seq: act.Seq, Stale: true}, false, nil
		}
		m.generating = false
		m.errMsg = ""
		m.baseline = CloneContent(act.Baseline)
		if m.baseline == nil {
			m.baseline = Content{}
		}
		if act.PreserveEdits {
			m.overlay, _ = Prune(m.overlay, m.baseline)
		} else {
			m.overlay = Overlay{}
		}
		m.undo.Clear()
		return Result{Seq: act.Seq}, true, nil

	case GenerateError:
		if !m.generating || act.Seq != m.seq {
			return Result{Seq: act.Seq, Stale: true}, false, nil
		}
		m.generating = false
		msg := strings.TrimSpace(act.Message)
		if msg == "" {
			msg = "generation failed"
		}
		m.errMsg = msg
		return Result{Seq: act.Seq}, true, nil

	case ApplyEdit:
		field := strings.TrimSpace(act.Field)
		if field == "" {
			return Result{}, false, ErrInvalidField
		}
		if m.baseline == nil {
			return Result{}, false, ErrNoBaseline
		}
		pruned, changed := m.editLocked(field, act.Value)
		return Result{Pruned: pruned}, changed, nil

	case ApplyEdits:
		for _, e := range act.Edits {
			if strings.TrimSpace(e.Field) == "" {
				return Result{}, false, ErrInvalidField
			}
		}
		if len(act.Edits) == 0 {
			return Result{}, false, nil
		}
		if m.baseline == nil {
			return Result{}, false, ErrNoBaseline
		}
		var res Result
		changed := false
		for _, e := range act.Edits {
			pruned, c := m.editLocked(strings.TrimSpace(e.Field), e.Value)
			res.Pruned = res.Pruned || pruned
			changed = changed || c
		}
		return res, changed, nil

	case ResetField:
		field := strings.TrimSpace(act.Field)
		if field == "" {
			return Result{}, false, ErrInvalidField
		}
		if _, ok := m.overlay[field]; !ok {
			return Result{}, false, nil
		}
		delete(m.overlay, field)
		return Result{}, true, nil

	case ResetAllEdits:
		if len(m.overlay) == 0 {
			return Result{}, false, nil
		}
		m.overlay = Overlay{}
		return Result{}, true, nil

	case Undo:
		if m.baseline == nil && m.undo.Len() > 0 {
			return Result{}, false, ErrNoBaseline
		}
		e, ok := m.undo.Pop()
		if !ok {
			return Result{}, false, ErrNothingToUndo
		}
		if !e.HadPrev || EqualsBaseline(m.baseline, e.Field, e.Prev) {
			delete(m.overlay, e.Field)
			return Result{Pruned: true}, true, nil
		}
		m.overlay[e.Field] = CloneValue(e.Prev)
		return Result{}, true, nil

	case ResetDraft:
		m.seq++
		m.generating = false
		m.inputs = CloneInputs(act.Inputs)
		m.baseline = nil
		m.overlay = Overlay{}
		m.errMsg = ""
		m.undo.Clear()
		return Result{}, true, nil

	default:
		return Result{}, false, fmt.Errorf("%w: %T", ErrUnknownAction, a)
	}
}

// editLocked writes one overlay entry against an existing baseline. An edit
// equal to the baseline removes the entry instead.
func (m *Machine) editLocked(field string, value any) (pruned, changed bool) {
	prev, had := m.overlay[field]
	pruned = EqualsBaseline(m.baseline, field, value)
	if pruned && !had {
		return true, false
	}
	if !pruned && had && fieldEqual(prev, value) {
		return false, false
	}
	m.undo.Push(UndoEntry{Field: field, Prev: prev, HadPrev: had})
	if pruned {
		delete(m.overlay, field)
	} else {
		m.overlay[field] = CloneValue(value)
	}
	return pruned, true
}

func fieldEqual(a, b any) bool {
	return EqualsBaseline(Content{"v": a}, "v", b)
}

func (m *Machine) statusLocked() Status {
	return ProjectStatus(m.generating, m.errMsg != "", m.baseline != nil, HasEdits(m.overlay))
}

func (m *Machine) viewLocked() View {
	return View{
		ID:          m.id,
		Tool:        m.tool,
		Status:      m.statusLocked(),
		Inputs:      CloneInputs(m.inputs),
		HasBaseline: m.baseline != nil,
		Baseline:    CloneContent(m.baseline),
		Overlay:     cloneOverlay(m.overlay),
		Active:      ActiveContent(m.baseline, m.overlay, m.defaults),
		Error:       m.errMsg,
		Seq:         m.seq,
		CanUndo:     m.undo.Len() > 0,
		Version:     m.version,
		UpdatedAt:   m.updatedAt,
	}
}
