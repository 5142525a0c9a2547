package snapshot

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Store persists histories with compare-and-swap on Revision. Save either
// writes the whole history or nothing. Stored snapshots are append-only:
// Save may add entries and may change an existing entry's DerivedState,
// ExternalRef and PersistStatus, nothing else.
type Store interface {
	Load(ctx context.Context, key string) (History, error)
	Save(ctx context.Context, h History, expectedRevision int64) (History, error)
}

type memoryStore struct {
	mu        sync.Mutex
	histories map[string]History
}

func NewMemoryStore() Store {
	return &memoryStore{histories: map[string]History{}}
}

func (s *memoryStore) Load(ctx context.Context, key string) (History, error) {
	if err := ctx.Err(); err != nil {
		return History{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[key]
	if !ok {
		return NewHistory(key), nil
	}
	return deepCopyHistory(h), nil
}

func (s *memoryStore) Save(ctx context.Context, h History, expectedRevision int64) (History, error) {
	if err := ctx.Err(); err != nil {
		return History{}, err
	}
	if strings.TrimSpace(h.Key) == "" {
		return History{}, fmt.Errorf("%w: empty key", ErrInvalidHistory)
	}
	if err := Validate(h); err != nil {
		return History{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.histories[h.Key]
	if !ok {
		cur = NewHistory(h.Key)
	}
	if cur.Revision != expectedRevision {
		return History{}, fmt.Errorf("%w: key=%s want=%d have=%d", ErrRevisionConflict, h.Key, expectedRevision, cur.Revision)
	}
	merged, err := mergeAppendOnly(cur, h)
	if err != nil {
		return History{}, err
	}
	merged.Revision = expectedRevision + 1
	s.histories[h.Key] = merged
	return deepCopyHistory(merged), nil
}

// mergeAppendOnly keeps the stored immutable fields of every existing
// snapshot and takes only the mutable ones from next.
func mergeAppendOnly(cur, next History) (History, error) {
	incoming := make(map[string]int, len(next.Snapshots))
	for i, snap := range next.Snapshots {
		incoming[snap.ID] = i
	}
	out := History{
		Key:              next.Key,
		SchemaVersion:    SchemaVersion,
		ActiveSnapshotID: next.ActiveSnapshotID,
		Snapshots:        make([]Snapshot, 0, len(next.Snapshots)),
	}
	known := make(map[string]struct{}, len(cur.Snapshots))
	for _, stored := range cur.Snapshots {
		i, ok := incoming[stored.ID]
		if !ok {
			return History{}, fmt.Errorf("%w: snapshot %s cannot be removed", ErrInvalidHistory, stored.ID)
		}
		upd := next.Snapshots[i]
		merged := stored.Clone()
		merged.ExternalRef = upd.ExternalRef
		merged.PersistStatus = upd.PersistStatus
		merged.DerivedState = nil
		if upd.DerivedState != nil {
			merged.DerivedState = upd.Clone().DerivedState
		}
		out.Snapshots = append(out.Snapshots, merged)
		known[stored.ID] = struct{}{}
	}
	for _, snap := range next.Snapshots {
		if _, ok := known[snap.ID]; ok {
			continue
		}
		c := snap.Clone()
		if c.PersistStatus == "" {
			c.PersistStatus = PersistPending
		}
		out.Snapshots = append(out.Snapshots, c)
	}
	return out, nil
}

func deepCopyHistory(h History) History {
	out := h
	out.Snapshots = make([]Snapshot, len(h.Snapshots))
	for i, snap := range h.Snapshots {
		out.Snapshots[i] = snap.Clone()
	}
	return out
}
