package snapshot

import (
	"fmt"
	"strings"

	"github.com/yungbote/draftstudio-backend/internal/drafts/draft"
)

// History is an append-only list of snapshots with at most one active
// pointer. Every function below is copy-on-write: the input history is never
// mutated. Revision is owned by the Store.
type History struct {
	Key              string     `json:"key"`
	SchemaVersion    int        `json:"schema_version"`
	Snapshots        []Snapshot `json:"snapshots"`
	ActiveSnapshotID string     `json:"active_snapshot_id,omitempty"`
	Revision         int64      `json:"revision"`
}

// Mutable is the only part of a snapshot a mutator can reach.
type Mutable struct {
	DerivedState map[string]any
	ExternalRef  string
}

func NewHistory(key string) History {
	return History{Key: key, SchemaVersion: SchemaVersion, Snapshots: []Snapshot{}}
}

func (h History) clone() History {
	out := h
	out.Snapshots = make([]Snapshot, len(h.Snapshots))
	copy(out.Snapshots, h.Snapshots)
	return out
}

func (h History) indexOf(id string) int {
	for i := range h.Snapshots {
		if h.Snapshots[i].ID == id {
			return i
		}
	}
	return -1
}

// Append adds s at the end of the list. Duplicate ids are rejected. When
// setActive is true the active pointer moves to s.
func Append(h History, s Snapshot, setActive bool) (History, error) {
	if strings.TrimSpace(s.ID) == "" {
		return h, fmt.Errorf("%w: empty id", ErrInvalidSnapshot)
	}
	if h.indexOf(s.ID) >= 0 {
		return h, fmt.Errorf("%w: %s", ErrDuplicateSnapshot, s.ID)
	}
	out := h.clone()
	if out.SchemaVersion == 0 {
		out.SchemaVersion = SchemaVersion
	}
	out.Snapshots = append(out.Snapshots, s.Clone())
	if setActive {
		out.ActiveSnapshotID = s.ID
	}
	return out, nil
}

// SetActive repoints the active pointer. Unknown ids are rejected, never
// ignored.
func SetActive(h History, id string) (History, error) {
	if h.indexOf(id) < 0 {
		return h, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	out := h.clone()
	out.ActiveSnapshotID = id
	return out, nil
}

// UpdateActive replaces the active entry with a copy whose DerivedState and
// ExternalRef went through mutate. Generated content and inputs are not
// reachable from the mutator.
func UpdateActive(h History, mutate func(*Mutable) error) (History, error) {
	if h.ActiveSnapshotID == "" {
		return h, ErrNoActiveSnapshot
	}
	return updateByID(h, h.ActiveSnapshotID, mutate)
}

func updateByID(h History, id string, mutate func(*Mutable) error) (History, error) {
	i := h.indexOf(id)
	if i < 0 {
		return h, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	cur := h.Snapshots[i]
	m := Mutable{ExternalRef: cur.ExternalRef}
	if cur.DerivedState != nil {
		m.DerivedState = draft.CloneInputs(cur.DerivedState)
	}
	if mutate != nil {
		if err := mutate(&m); err != nil {
			return h, err
		}
	}
	next := cur
	next.ExternalRef = strings.TrimSpace(m.ExternalRef)
	next.DerivedState = nil
	if m.DerivedState != nil {
		next.DerivedState = draft.CloneInputs(m.DerivedState)
	}
	out := h.clone()
	out.Snapshots[i] = next
	return out, nil
}

func setPersistStatus(h History, id string, status PersistStatus, ref string) (History, error) {
	i := h.indexOf(id)
	if i < 0 {
		return h, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	out := h.clone()
	out.Snapshots[i].PersistStatus = status
	// A reference recorded through UpdateActive meanwhile wins.
	if ref != "" && out.Snapshots[i].ExternalRef == "" {
		out.Snapshots[i].ExternalRef = ref
	}
	return out, nil
}

// Active returns a deep copy of the active snapshot.
func Active(h History) (Snapshot, bool) {
	if h.ActiveSnapshotID == "" {
		return Snapshot{}, false
	}
	return Find(h, h.ActiveSnapshotID)
}

func Find(h History, id string) (Snapshot, bool) {
	i := h.indexOf(id)
	if i < 0 {
		return Snapshot{}, false
	}
	return h.Snapshots[i].Clone(), true
}

// Validate checks the structural invariants: unique ids, and an active
// pointer that is either empty or names exactly one entry.
func Validate(h History) error {
	if h.SchemaVersion > SchemaVersion {
		return fmt.Errorf("%w: schema version %d is newer than %d", ErrInvalidHistory, h.SchemaVersion, SchemaVersion)
	}
	seen := make(map[string]struct{}, len(h.Snapshots))
	for _, s := range h.Snapshots {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("%w: snapshot with empty id", ErrInvalidHistory)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate snapshot %s", ErrInvalidHistory, s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.PersistStatus != "" && !s.PersistStatus.Valid() {
			return fmt.Errorf("%w: snapshot %s has persist status %q", ErrInvalidHistory, s.ID, s.PersistStatus)
		}
	}
	if h.ActiveSnapshotID != "" {
		if _, ok := seen[h.ActiveSnapshotID]; !ok {
			return fmt.Errorf("%w: active snapshot %s not in history", ErrInvalidHistory, h.ActiveSnapshotID)
		}
	}
	return nil
}
