package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/draftstudio-backend/internal/drafts/draft"
	"github.com/yungbote/draftstudio-backend/internal/platform/dbctx"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

// DraftRow persists one draft's full state as a JSON document.
type DraftRow struct {
	ID      string         `gorm:"column:id;primaryKey" json:"id"`
	Tool    string         `gorm:"column:tool;index" json:"tool"`
	State   datatypes.JSON `gorm:"column:state;not null" json:"state"`
	Version uint64         `gorm:"column:version;not null" json:"version"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
}

func (DraftRow) TableName() string { return "draft_state" }

func DraftModels() []any { return []any{&DraftRow{}} }

type DraftRepo interface {
	List(dbc dbctx.Context) ([]draft.State, error)
	// Upsert writes st unless a newer version is already stored.
	Upsert(dbc dbctx.Context, st draft.State) error
	Delete(dbc dbctx.Context, id string) error
}

type draftRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDraftRepo(db *gorm.DB, baseLog *logger.Logger) DraftRepo {
	return &draftRepo{db: db, log: baseLog.With("repo", "DraftRepo")}
}

func (r *draftRepo) List(dbc dbctx.Context) ([]draft.State, error) {
	var rows []DraftRow
	if err := dbc.Conn(r.db).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]draft.State, 0, len(rows))
	for _, row := range rows {
		var st draft.State
		if err := json.Unmarshal(row.State, &st); err != nil {
			// One corrupt row should not keep the rest of the workspace down.
			r.log.Warn("Skipping unreadable draft state", "draft_id", row.ID, "error", err)
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (r *draftRepo) Upsert(dbc dbctx.Context, st draft.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode draft %s: %w", st.ID, err)
	}
	now := time.Now().UTC()
	row := DraftRow{
		ID:        st.ID,
		Tool:      st.Tool,
		State:     datatypes.JSON(raw),
		Version:   st.Version,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Flushes run outside the draft lock, so an older version can arrive
	// after a newer one; the version guard drops it.
	return dbc.Conn(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tool", "state", "version", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "draft_state.version < excluded.version"},
		}},
	}).Create(&row).Error
}

func (r *draftRepo) Delete(dbc dbctx.Context, id string) error {
	return dbc.Conn(r.db).Where("id = ?", id).Delete(&DraftRow{}).Error
}

type memoryDraftRepo struct {
	mu     sync.Mutex
	states map[string][]byte
	order  map[string]int
	next   int
}

func NewMemoryDraftRepo() DraftRepo {
	return &memoryDraftRepo{states: map[string][]byte{}, order: map[string]int{}}
}

func (r *memoryDraftRepo) List(dbctx.Context) ([]draft.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return r.order[ids[i]] < r.order[ids[j]] })
	out := make([]draft.State, 0, len(ids))
	for _, id := range ids {
		var st draft.State
		if err := json.Unmarshal(r.states[id], &st); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (r *memoryDraftRepo) Upsert(_ dbctx.Context, st draft.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode draft %s: %w", st.ID, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.states[st.ID]; ok {
		var cur struct {
			Version uint64 `json:"version"`
		}
		if json.Unmarshal(prev, &cur) == nil && cur.Version >= st.Version {
			return nil
		}
	} else {
		r.order[st.ID] = r.next
		r.next++
	}
	r.states[st.ID] = raw
	return nil
}

func (r *memoryDraftRepo) Delete(_ dbctx.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, id)
	delete(r.order, id)
	return nil
}
