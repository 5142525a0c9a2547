package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/draftstudio-backend/internal/drafts/draft"
	"github.com/yungbote/draftstudio-backend/internal/platform/dbctx"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

var (
	ErrDraftNotFound = errors.New("draft not found")
	ErrDraftExists   = errors.New("draft already exists")
)

const flushTimeout = 5 * time.Second

// Workspace is the explicit home of every live draft. Load is its init
// point; each applied action flushes the draft's state to the repo.
type Workspace struct {
	log       *logger.Logger
	repo      DraftRepo
	undoDepth int

	mu     sync.RWMutex
	drafts map[string]*draft.Machine
	unsub  map[string]func()
}

func NewWorkspace(repo DraftRepo, undoDepth int, baseLog *logger.Logger) *Workspace {
	if undoDepth <= 0 {
		undoDepth = draft.DefaultUndoDepth
	}
	return &Workspace{
		log:       baseLog.With("service", "Workspace"),
		repo:      repo,
		undoDepth: undoDepth,
		drafts:    map[string]*draft.Machine{},
		unsub:     map[string]func(){},
	}
}

// Load restores every persisted draft. Drafts that were generating when the
// process stopped come back without the in-flight marker.
func (w *Workspace) Load(ctx context.Context) (int, error) {
	states, err := w.repo.List(dbctx.New(ctx))
	if err != nil {
		return 0, fmt.Errorf("load drafts: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, st := range states {
		if _, exists := w.drafts[st.ID]; exists {
			continue
		}
		m := draft.Restore(st, draft.WithUndoDepth(w.undoDepth))
		w.attachLocked(m)
	}
	w.log.Info("Workspace loaded", "drafts", len(states))
	return len(states), nil
}

func (w *Workspace) Create(ctx context.Context, id, tool string, inputs map[string]any, defaults draft.Defaults) (*draft.Machine, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	opts := []draft.Option{draft.WithUndoDepth(w.undoDepth), draft.WithTool(strings.TrimSpace(tool))}
	if len(defaults) > 0 {
		opts = append(opts, draft.WithDefaults(defaults))
	}

	w.mu.Lock()
	if _, exists := w.drafts[id]; exists {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDraftExists, id)
	}
	m := draft.New(id, inputs, opts...)
	w.attachLocked(m)
	w.mu.Unlock()

	if err := w.repo.Upsert(dbctx.New(ctx), m.State()); err != nil {
		w.mu.Lock()
		w.detachLocked(id)
		w.mu.Unlock()
		return nil, fmt.Errorf("persist draft %s: %w", id, err)
	}
	return m, nil
}

func (w *Workspace) Get(id string) (*draft.Machine, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m, ok := w.drafts[id]
	return m, ok
}

// IDs lists live draft ids, sorted.
func (w *Workspace) IDs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.drafts))
	for id := range w.drafts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (w *Workspace) Delete(ctx context.Context, id string) error {
	w.mu.Lock()
	_, ok := w.drafts[id]
	if ok {
		w.detachLocked(id)
	}
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	return w.repo.Delete(dbctx.New(ctx), id)
}

// Flush writes the current state of one draft.
func (w *Workspace) Flush(ctx context.Context, id string) error {
	m, ok := w.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	return w.repo.Upsert(dbctx.New(ctx), m.State())
}

func (w *Workspace) attachLocked(m *draft.Machine) {
	id := m.ID()
	w.drafts[id] = m
	w.unsub[id] = m.OnChange(func(draft.View) {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := w.repo.Upsert(dbctx.New(ctx), m.State()); err != nil {
			// In-memory state stays authoritative; the next action retries.
			w.log.Warn("Draft flush failed", "draft_id", id, "error", err)
		}
	})
}

func (w *Workspace) detachLocked(id string) {
	if fn, ok := w.unsub[id]; ok {
		fn()
	}
	delete(w.unsub, id)
	delete(w.drafts, id)
}
