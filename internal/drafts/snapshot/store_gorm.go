package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/draftstudio-backend/internal/platform/dbctx"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

// HistoryRow is the header of one history: its active pointer and revision.
type HistoryRow struct {
	HistoryKey       string `gorm:"column:history_key;primaryKey" json:"history_key"`
	SchemaVersion    int    `gorm:"column:schema_version;not null" json:"schema_version"`
	ActiveSnapshotID string `gorm:"column:active_snapshot_id" json:"active_snapshot_id"`
	Revision         int64  `gorm:"column:revision;not null" json:"revision"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (HistoryRow) TableName() string { return "snapshot_history" }

// RecordRow is one snapshot. Inputs and generated content are written once.
type RecordRow struct {
	ID         string `gorm:"column:id;primaryKey" json:"id"`
	HistoryKey string `gorm:"column:history_key;not null;index:idx_snapshot_record_history_pos,unique,priority:1" json:"history_key"`
	Position   int    `gorm:"column:position;not null;index:idx_snapshot_record_history_pos,unique,priority:2" json:"position"`

	SchemaVersion    int            `gorm:"column:schema_version;not null" json:"schema_version"`
	SourceInputs     datatypes.JSON `gorm:"column:source_inputs" json:"source_inputs"`
	GeneratedContent datatypes.JSON `gorm:"column:generated_content" json:"generated_content"`

	// mutable after creation
	DerivedState  datatypes.JSON `gorm:"column:derived_state" json:"derived_state"`
	ExternalRef   string         `gorm:"column:external_ref" json:"external_ref"`
	PersistStatus string         `gorm:"column:persist_status;not null;index" json:"persist_status"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (RecordRow) TableName() string { return "snapshot_record" }

// Models lists the gorm models this package owns, for auto-migration.
func Models() []any {
	return []any{&HistoryRow{}, &RecordRow{}}
}

type gormStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGormStore(db *gorm.DB, baseLog *logger.Logger) Store {
	return &gormStore{db: db, log: baseLog.With("repo", "SnapshotStore")}
}

func (r *gormStore) Load(ctx context.Context, key string) (History, error) {
	return r.load(dbctx.Context{Ctx: ctx}, key)
}

func (r *gormStore) load(dbc dbctx.Context, key string) (History, error) {
	t := dbc.Conn(r.db)

	var head HistoryRow
	if err := t.Where("history_key = ?", key).Limit(1).Find(&head).Error; err != nil {
		return History{}, fmt.Errorf("load history %s: %w", key, err)
	}
	if head.HistoryKey == "" {
		return NewHistory(key), nil
	}

	var rows []RecordRow
	if err := t.Where("history_key = ?", key).Order("position ASC").Find(&rows).Error; err != nil {
		return History{}, fmt.Errorf("load snapshots %s: %w", key, err)
	}
	h := History{
		Key:              head.HistoryKey,
		SchemaVersion:    head.SchemaVersion,
		ActiveSnapshotID: head.ActiveSnapshotID,
		Revision:         head.Revision,
		Snapshots:        make([]Snapshot, 0, len(rows)),
	}
	for _, row := range rows {
		snap, err := rowToSnapshot(row)
		if err != nil {
			return History{}, err
		}
		h.Snapshots = append(h.Snapshots, snap)
	}
	return h, nil
}

func (r *gormStore) Save(ctx context.Context, h History, expectedRevision int64) (History, error) {
	if strings.TrimSpace(h.Key) == "" {
		return History{}, fmt.Errorf("%w: empty key", ErrInvalidHistory)
	}
	if err := Validate(h); err != nil {
		return History{}, err
	}

	var saved History
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		now := time.Now().UTC()
		next := expectedRevision + 1

		// The revision check-and-bump comes first so a losing writer fails
		// before touching any snapshot row.
		if expectedRevision == 0 {
			head := HistoryRow{
				HistoryKey:       h.Key,
				SchemaVersion:    SchemaVersion,
				ActiveSnapshotID: h.ActiveSnapshotID,
				Revision:         next,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			res := dbc.Conn(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&head)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: key=%s already exists", ErrRevisionConflict, h.Key)
			}
		} else {
			res := dbc.Conn(r.db).Model(&HistoryRow{}).
				Where("history_key = ? AND revision = ?", h.Key, expectedRevision).
				Updates(map[string]interface{}{
					"active_snapshot_id": h.ActiveSnapshotID,
					"revision":           next,
					"schema_version":     SchemaVersion,
					"updated_at":         now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: key=%s want=%d", ErrRevisionConflict, h.Key, expectedRevision)
			}
		}

		var existing []RecordRow
		if err := dbc.Conn(r.db).Select("id", "position").Where("history_key = ?", h.Key).Find(&existing).Error; err != nil {
			return err
		}
		stored := make(map[string]int, len(existing))
		maxPos := -1
		for _, row := range existing {
			stored[row.ID] = row.Position
			if row.Position > maxPos {
				maxPos = row.Position
			}
		}
		incoming := make(map[string]struct{}, len(h.Snapshots))
		for _, snap := range h.Snapshots {
			incoming[snap.ID] = struct{}{}
		}
		for id := range stored {
			if _, ok := incoming[id]; !ok {
				return fmt.Errorf("%w: snapshot %s cannot be removed", ErrInvalidHistory, id)
			}
		}

		for _, snap := range h.Snapshots {
			if _, ok := stored[snap.ID]; ok {
				derived, err := marshalJSON(snap.DerivedState)
				if err != nil {
					return err
				}
				status := snap.PersistStatus
				if status == "" {
					status = PersistPending
				}
				if err := dbc.Conn(r.db).Model(&RecordRow{}).
					Where("id = ? AND history_key = ?", snap.ID, h.Key).
					Updates(map[string]interface{}{
						"derived_state":  derived,
						"external_ref":   snap.ExternalRef,
						"persist_status": string(status),
						"updated_at":     now,
					}).Error; err != nil {
					return err
				}
				continue
			}
			maxPos++
			row, err := snapshotToRow(h.Key, maxPos, snap, now)
			if err != nil {
				return err
			}
			if err := dbc.Conn(r.db).Create(&row).Error; err != nil {
				return fmt.Errorf("insert snapshot %s: %w", snap.ID, err)
			}
		}

		loaded, err := r.load(dbc, h.Key)
		if err != nil {
			return err
		}
		saved = loaded
		return nil
	})
	if err != nil {
		return History{}, err
	}
	r.log.Debug("Snapshot history saved", "history_key", saved.Key, "revision", saved.Revision, "snapshots", len(saved.Snapshots))
	return saved, nil
}

func snapshotToRow(key string, pos int, s Snapshot, now time.Time) (RecordRow, error) {
	inputs, err := marshalJSON(s.SourceInputs)
	if err != nil {
		return RecordRow{}, err
	}
	content, err := marshalJSON(s.GeneratedContent)
	if err != nil {
		return RecordRow{}, err
	}
	derived, err := marshalJSON(s.DerivedState)
	if err != nil {
		return RecordRow{}, err
	}
	status := s.PersistStatus
	if status == "" {
		status = PersistPending
	}
	created := s.CreatedAt
	if created.IsZero() {
		created = now
	}
	return RecordRow{
		ID:               s.ID,
		HistoryKey:       key,
		Position:         pos,
		SchemaVersion:    s.SchemaVersion,
		SourceInputs:     inputs,
		GeneratedContent: content,
		DerivedState:     derived,
		ExternalRef:      s.ExternalRef,
		PersistStatus:    string(status),
		CreatedAt:        created,
		UpdatedAt:        now,
	}, nil
}

func rowToSnapshot(row RecordRow) (Snapshot, error) {
	s := Snapshot{
		ID:            row.ID,
		CreatedAt:     row.CreatedAt.UTC(),
		SchemaVersion: row.SchemaVersion,
		ExternalRef:   row.ExternalRef,
		PersistStatus: PersistStatus(row.PersistStatus),
	}
	var err error
	if s.SourceInputs, err = unmarshalMap(row.SourceInputs); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s inputs: %w", row.ID, err)
	}
	if s.GeneratedContent, err = unmarshalMap(row.GeneratedContent); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s content: %w", row.ID, err)
	}
	if s.DerivedState, err = unmarshalMap(row.DerivedState); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s derived state: %w", row.ID, err)
	}
	if s.SourceInputs == nil {
		s.SourceInputs = map[string]any{}
	}
	if s.GeneratedContent == nil {
		s.GeneratedContent = map[string]any{}
	}
	return s, nil
}

func marshalJSON(m map[string]any) (datatypes.JSON, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func unmarshalMap(raw datatypes.JSON) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
