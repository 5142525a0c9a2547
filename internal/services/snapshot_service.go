package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/draftstudio-backend/internal/drafts/draft"
	"github.com/yungbote/draftstudio-backend/internal/drafts/fingerprint"
	"github.com/yungbote/draftstudio-backend/internal/drafts/snapshot"
	"github.com/yungbote/draftstudio-backend/internal/observability"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

type CompareInput struct {
	A          string   `json:"a" binding:"required"`
	B          string   `json:"b" binding:"required"`
	Collection string   `json:"collection" binding:"required"`
	Key        string   `json:"key"`
	Fields     []string `json:"fields"`
}

// SnapshotService captures a draft's active content into the draft's
// history. The history key is the draft id.
type SnapshotService interface {
	Capture(ctx context.Context, draftID string, setActive bool) (snapshot.Snapshot, snapshot.History, error)
	History(ctx context.Context, draftID string) (snapshot.History, error)
	SetActive(ctx context.Context, draftID, snapshotID string) (snapshot.History, error)
	UpdateDerived(ctx context.Context, draftID string, derived map[string]any, externalRef *string) (snapshot.History, error)
	Export(ctx context.Context, draftID, snapshotID string) (snapshot.ExportDocument, error)
	Compare(ctx context.Context, draftID string, in CompareInput) (snapshot.Summary, error)
}

type snapshotService struct {
	log       *logger.Logger
	workspace *Workspace
	snapshots *snapshot.Service
	metrics   *observability.Metrics
}

func NewSnapshotService(workspace *Workspace, snapshots *snapshot.Service, metrics *observability.Metrics, baseLog *logger.Logger) SnapshotService {
	return &snapshotService{
		log:       baseLog.With("service", "DraftSnapshotService"),
		workspace: workspace,
		snapshots: snapshots,
		metrics:   metrics,
	}
}

func (s *snapshotService) Capture(ctx context.Context, draftID string, setActive bool) (snapshot.Snapshot, snapshot.History, error) {
	m, ok := s.workspace.Get(strings.TrimSpace(draftID))
	if !ok {
		return snapshot.Snapshot{}, snapshot.History{}, asAPIError(fmt.Errorf("%w: %s", ErrDraftNotFound, draftID))
	}
	v := m.View()
	if !v.HasBaseline {
		return snapshot.Snapshot{}, snapshot.History{}, asAPIError(fmt.Errorf("capture snapshot: %w", draft.ErrNoBaseline))
	}
	snap, h, err := s.snapshots.Capture(ctx, v.ID, v.Inputs, v.Active, setActive)
	if err != nil {
		return snapshot.Snapshot{}, snapshot.History{}, asAPIError(err)
	}
	s.metrics.IncSnapshotCapture(string(snap.PersistStatus))
	s.log.Info("Snapshot captured", "draft_id", v.ID, "snapshot_id", snap.ID, "persist_status", snap.PersistStatus, "active", setActive)
	return snap, h, nil
}

func (s *snapshotService) History(ctx context.Context, draftID string) (snapshot.History, error) {
	h, err := s.snapshots.History(ctx, strings.TrimSpace(draftID))
	return h, asAPIError(err)
}

func (s *snapshotService) SetActive(ctx context.Context, draftID, snapshotID string) (snapshot.History, error) {
	h, err := s.snapshots.SetActive(ctx, strings.TrimSpace(draftID), strings.TrimSpace(snapshotID))
	return h, asAPIError(err)
}

// UpdateDerived replaces the active snapshot's derived state. externalRef is
// left alone when nil.
func (s *snapshotService) UpdateDerived(ctx context.Context, draftID string, derived map[string]any, externalRef *string) (snapshot.History, error) {
	h, err := s.snapshots.UpdateActive(ctx, strings.TrimSpace(draftID), func(m *snapshot.Mutable) error {
		m.DerivedState = derived
		if externalRef != nil {
			m.ExternalRef = *externalRef
		}
		return nil
	})
	return h, asAPIError(err)
}

func (s *snapshotService) Export(ctx context.Context, draftID, snapshotID string) (snapshot.ExportDocument, error) {
	doc, err := s.snapshots.Export(ctx, strings.TrimSpace(draftID), strings.TrimSpace(snapshotID))
	return doc, asAPIError(err)
}

func (s *snapshotService) Compare(ctx context.Context, draftID string, in CompareInput) (snapshot.Summary, error) {
	if strings.TrimSpace(in.A) == "" || strings.TrimSpace(in.B) == "" || strings.TrimSpace(in.Collection) == "" {
		return snapshot.Summary{}, asAPIError(fmt.Errorf("%w: a, b and collection are required", ErrInvalidRequest))
	}
	spec := fingerprint.Spec{Key: in.Key, Fields: in.Fields}
	sum, err := s.snapshots.Compare(ctx, strings.TrimSpace(draftID), in.A, in.B, in.Collection, spec)
	return sum, asAPIError(err)
}
