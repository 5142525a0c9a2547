package snapshot

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/draftstudio-backend/internal/drafts/draft"
)

// SchemaVersion is stamped on every snapshot and history written by this
// build. Readers refuse histories from a newer schema.
const SchemaVersion = 1

var (
	ErrDuplicateSnapshot = errors.New("snapshot id already in history")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrNoActiveSnapshot  = errors.New("history has no active snapshot")
	ErrRevisionConflict  = errors.New("history revision conflict")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
	ErrInvalidHistory    = errors.New("invalid history")
)

// PersistStatus is a side-channel flag. It never gates reading a snapshot.
type PersistStatus string

const (
	PersistPending   PersistStatus = "pending"
	PersistDurable   PersistStatus = "durable"
	PersistLocalOnly PersistStatus = "local_only"
)

func (p PersistStatus) Valid() bool {
	switch p {
	case PersistPending, PersistDurable, PersistLocalOnly:
		return true
	default:
		return false
	}
}

// Snapshot is an immutable copy of a draft's inputs and generated output.
// Only DerivedState, ExternalRef and PersistStatus change after creation.
type Snapshot struct {
	ID               string         `json:"id"`
	CreatedAt        time.Time      `json:"created_at"`
	SchemaVersion    int            `json:"schema_version"`
	SourceInputs     map[string]any `json:"source_inputs"`
	GeneratedContent map[string]any `json:"generated_content"`
	DerivedState     map[string]any `json:"derived_state,omitempty"`
	ExternalRef      string         `json:"external_ref,omitempty"`
	PersistStatus    PersistStatus  `json:"persist_status"`
}

// Clone returns a deep copy; no map is shared with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.SourceInputs = draft.CloneInputs(s.SourceInputs)
	out.GeneratedContent = draft.CloneInputs(s.GeneratedContent)
	if s.DerivedState != nil {
		out.DerivedState = draft.CloneInputs(s.DerivedState)
	}
	return out
}

type Options struct {
	Now          func() time.Time
	NewID        func() string
	DerivedState map[string]any
}

// New deep-copies inputs and content into a fresh pending snapshot. Later
// changes to the caller's maps never reach the snapshot.
func New(inputs, content map[string]any, opts Options) (Snapshot, error) {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	id := ""
	if opts.NewID != nil {
		id = strings.TrimSpace(opts.NewID())
	} else {
		u, err := uuid.NewV7()
		if err != nil {
			return Snapshot{}, err
		}
		id = u.String()
	}
	if id == "" {
		return Snapshot{}, ErrInvalidSnapshot
	}
	s := Snapshot{
		ID:               id,
		CreatedAt:        now(),
		SchemaVersion:    SchemaVersion,
		SourceInputs:     draft.CloneInputs(inputs),
		GeneratedContent: draft.CloneInputs(content),
		PersistStatus:    PersistPending,
	}
	if opts.DerivedState != nil {
		s.DerivedState = draft.CloneInputs(opts.DerivedState)
	}
	return s, nil
}

// FromView snapshots the active content of a draft, overlay applied.
func FromView(v draft.View, opts Options) (Snapshot, error) {
	return New(v.Inputs, v.Active, opts)
}
