package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/draftstudio-backend/internal/drafts/draft"
	"github.com/yungbote/draftstudio-backend/internal/drafts/fingerprint"
	"github.com/yungbote/draftstudio-backend/internal/drafts/handoff"
	"github.com/yungbote/draftstudio-backend/internal/drafts/snapshot"
	"github.com/yungbote/draftstudio-backend/internal/observability"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

// ChannelRef addresses one handoff slot.
type ChannelRef struct {
	Session     string
	Source      string
	Destination string
}

// SendHandoffInput extracts part of a draft's active snapshot into an
// envelope. Kind "fields" copies Fields (all generated fields when empty);
// kind "records" copies the list stored under Collection.
type SendHandoffInput struct {
	Session     string        `json:"-"`
	Source      string        `json:"source" binding:"required"`
	Destination string        `json:"destination" binding:"required"`
	DraftID     string        `json:"draft_id" binding:"required"`
	Kind        string        `json:"kind" binding:"required,oneof=fields records"`
	Fields      []string      `json:"fields"`
	Collection  string        `json:"collection"`
	Key         string        `json:"key"`
	Scope       string        `json:"scope"`
	TTL         time.Duration `json:"-"`
}

// PlanView is the JSON form of a handoff plan.
type PlanView struct {
	State    handoff.ReadState `json:"state"`
	CanApply bool              `json:"can_apply"`
	Block    handoff.Block     `json:"block,omitempty"`
	Detail   string            `json:"detail,omitempty"`
	Target   string            `json:"target,omitempty"`
	Hash     string            `json:"hash,omitempty"`
	Envelope *handoff.Envelope `json:"envelope,omitempty"`
	Payload  handoff.Payload   `json:"payload,omitempty"`
}

type HandoffService interface {
	Send(ctx context.Context, in SendHandoffInput) (handoff.Envelope, error)
	Plan(ctx context.Context, ref ChannelRef, scope, targetDraftID string) (PlanView, error)
	Apply(ctx context.Context, ref ChannelRef, scope, targetDraftID string) (PlanView, draft.View, error)
	Dismiss(ctx context.Context, ref ChannelRef) error
}

type HandoffServiceOptions struct {
	TTL   time.Duration
	Grace time.Duration
	Now   func() time.Time
}

type handoffService struct {
	log       *logger.Logger
	workspace *Workspace
	snapshots *snapshot.Service
	channels  handoff.ChannelStore
	importer  *handoff.Importer
	metrics   *observability.Metrics
	ttl       time.Duration
	grace     time.Duration
	now       func() time.Time
}

func NewHandoffService(
	workspace *Workspace,
	snapshots *snapshot.Service,
	channels handoff.ChannelStore,
	importer *handoff.Importer,
	metrics *observability.Metrics,
	baseLog *logger.Logger,
	opts HandoffServiceOptions,
) HandoffService {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	grace := opts.Grace
	if grace <= 0 {
		grace = handoff.DefaultGrace
	}
	return &handoffService{
		log:       baseLog.With("service", "HandoffService"),
		workspace: workspace,
		snapshots: snapshots,
		channels:  channels,
		importer:  importer,
		metrics:   metrics,
		ttl:       ttl,
		grace:     grace,
		now:       now,
	}
}

func (s *handoffService) channel(ref ChannelRef) (*handoff.Channel, error) {
	key := handoff.NewChannelKey(ref.Session, ref.Source, ref.Destination)
	if !key.Valid() {
		return nil, asAPIError(fmt.Errorf("%w: source and destination are required", ErrInvalidRequest))
	}
	return handoff.NewChannel(s.channels, key, handoff.WithClock(s.now), handoff.WithGrace(s.grace)), nil
}

func (s *handoffService) Send(ctx context.Context, in SendHandoffInput) (handoff.Envelope, error) {
	ch, err := s.channel(ChannelRef{Session: in.Session, Source: in.Source, Destination: in.Destination})
	if err != nil {
		return handoff.Envelope{}, err
	}
	h, err := s.snapshots.History(ctx, strings.TrimSpace(in.DraftID))
	if err != nil {
		return handoff.Envelope{}, asAPIError(err)
	}
	active, ok := snapshot.Active(h)
	if !ok {
		return handoff.Envelope{}, asAPIError(fmt.Errorf("send handoff from %s: %w", in.DraftID, snapshot.ErrNoActiveSnapshot))
	}

	payload, err := extractPayload(active, in)
	if err != nil {
		return handoff.Envelope{}, asAPIError(err)
	}
	ttl := in.TTL
	if ttl == 0 {
		ttl = s.ttl
	}
	env, err := handoff.Build(in.Source, payload.Kind(), payload, ttl, s.now(), handoff.WithScope(in.Scope))
	if err != nil {
		return handoff.Envelope{}, asAPIError(err)
	}
	if err := ch.Store(ctx, env); err != nil {
		return handoff.Envelope{}, asAPIError(err)
	}
	s.metrics.IncHandoffSend(env.SourceApp, env.Type)
	s.log.Info("Handoff sent", "channel", ch.Key().String(), "kind", env.Type, "draft_id", in.DraftID, "snapshot_id", active.ID, "expires_at", env.ExpiresAt)
	return env, nil
}

func extractPayload(active snapshot.Snapshot, in SendHandoffInput) (handoff.Payload, error) {
	content := active.GeneratedContent
	switch strings.TrimSpace(in.Kind) {
	case handoff.KindFields:
		out := map[string]any{}
		if len(in.Fields) == 0 {
			for k, v := range content {
				out[k] = draft.CloneValue(v)
			}
		}
		for _, f := range in.Fields {
			f = strings.TrimSpace(f)
			v, ok := content[f]
			if !ok {
				return nil, fmt.Errorf("%w: snapshot %s has no field %q", ErrInvalidRequest, active.ID, f)
			}
			out[f] = draft.CloneValue(v)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: nothing to send", ErrInvalidRequest)
		}
		return handoff.FieldsPayload{Fields: out}, nil
	case handoff.KindRecords:
		col := strings.TrimSpace(in.Collection)
		if col == "" {
			return nil, fmt.Errorf("%w: collection is required for records", ErrInvalidRequest)
		}
		raw, ok := content[col]
		if !ok {
			return nil, fmt.Errorf("%w: snapshot %s has no collection %q", ErrInvalidRequest, active.ID, col)
		}
		if _, isList := raw.([]any); !isList {
			return nil, fmt.Errorf("%w: field %q is not a list", snapshot.ErrInvalidSnapshot, col)
		}
		entities := fingerprint.Entities(raw)
		records := make([]map[string]any, 0, len(entities))
		for _, e := range entities {
			records = append(records, draft.CloneInputs(e))
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("%w: collection %q is empty", ErrInvalidRequest, col)
		}
		return handoff.RecordsPayload{Collection: col, Key: strings.TrimSpace(in.Key), Records: records}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, in.Kind)
	}
}

func (s *handoffService) Plan(ctx context.Context, ref ChannelRef, scope, targetDraftID string) (PlanView, error) {
	ch, err := s.channel(ref)
	if err != nil {
		return PlanView{}, err
	}
	target := strings.TrimSpace(targetDraftID)
	if target == "" {
		return PlanView{}, asAPIError(fmt.Errorf("%w: target draft is required", ErrInvalidRequest))
	}
	plan, err := s.importer.Plan(ctx, ch, scope, target)
	if err != nil {
		return PlanView{}, asAPIError(err)
	}
	s.metrics.IncHandoffPlan(string(plan.Block))
	return toPlanView(plan), nil
}

// Apply writes the payload into the target draft as overlay edits. Imports
// are additive: they never install or replace a baseline.
func (s *handoffService) Apply(ctx context.Context, ref ChannelRef, scope, targetDraftID string) (PlanView, draft.View, error) {
	ch, err := s.channel(ref)
	if err != nil {
		return PlanView{}, draft.View{}, err
	}
	target := strings.TrimSpace(targetDraftID)
	m, ok := s.workspace.Get(target)
	if !ok {
		return PlanView{}, draft.View{}, asAPIError(fmt.Errorf("%w: %s", ErrDraftNotFound, target))
	}

	plan, err := s.importer.Plan(ctx, ch, scope, target)
	if err != nil {
		return PlanView{}, draft.View{}, asAPIError(err)
	}
	plan, err = s.importer.Apply(ctx, ch, plan, func(_ context.Context, p handoff.Payload) error {
		return applyPayload(m, p)
	})
	if err != nil {
		s.metrics.IncHandoffImport(importOutcome(err))
		return toPlanView(plan), m.View(), asAPIError(err)
	}
	s.metrics.IncHandoffImport("applied")
	return toPlanView(plan), m.View(), nil
}

func (s *handoffService) Dismiss(ctx context.Context, ref ChannelRef) error {
	ch, err := s.channel(ref)
	if err != nil {
		return err
	}
	if err := ch.Dismiss(ctx); err != nil {
		return asAPIError(err)
	}
	s.log.Info("Handoff dismissed", "channel", ch.Key().String())
	return nil
}

// applyPayload turns the payload into one ApplyEdits batch. The machine takes
// the whole batch in a single transition or rejects it, so an import is never
// partially applied.
func applyPayload(m *draft.Machine, p handoff.Payload) error {
	v := m.View()
	if !v.HasBaseline {
		return fmt.Errorf("import into %s: %w", v.ID, draft.ErrNoBaseline)
	}
	var edits []draft.ApplyEdit
	switch t := p.(type) {
	case handoff.FieldsPayload:
		keys := make([]string, 0, len(t.Fields))
		for k := range t.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			edits = append(edits, draft.ApplyEdit{Field: k, Value: t.Fields[k]})
		}
	case handoff.RecordsPayload:
		merged := mergeRecords(v.Active[t.Collection], t.Records, t.Key)
		edits = append(edits, draft.ApplyEdit{Field: t.Collection, Value: merged})
	default:
		return fmt.Errorf("%w: %s", handoff.ErrUnknownVariant, p.Kind())
	}
	if _, err := m.Dispatch(draft.ApplyEdits{Edits: edits}); err != nil {
		return fmt.Errorf("import into %s: %w", v.ID, err)
	}
	return nil
}

// mergeRecords appends incoming records to the current list. With a key,
// an incoming record replaces the existing one carrying the same key value.
func mergeRecords(current any, incoming []map[string]any, key string) []any {
	existing, _ := current.([]any)
	out := make([]any, 0, len(existing)+len(incoming))
	index := map[string]int{}
	for _, item := range existing {
		item = draft.CloneValue(item)
		if key != "" {
			if rec, ok := item.(map[string]any); ok {
				if kv, ok := rec[key]; ok {
					index[fmt.Sprint(kv)] = len(out)
				}
			}
		}
		out = append(out, item)
	}
	for _, rec := range incoming {
		cp := draft.CloneInputs(rec)
		if key != "" {
			if kv, ok := cp[key]; ok {
				if i, seen := index[fmt.Sprint(kv)]; seen {
					out[i] = cp
					continue
				}
				index[fmt.Sprint(kv)] = len(out)
			}
		}
		out = append(out, cp)
	}
	return out
}

func toPlanView(p handoff.Plan) PlanView {
	pv := PlanView{
		State:    p.State,
		CanApply: p.CanApply,
		Block:    p.Block,
		Detail:   p.Detail,
		Target:   p.Target,
		Hash:     p.Hash,
		Payload:  p.Payload,
	}
	if p.State != handoff.StateAbsent && p.State != "" {
		env := p.Envelope
		pv.Envelope = &env
	}
	return pv
}

func importOutcome(err error) string {
	switch {
	case errors.Is(err, handoff.ErrAlreadyImported):
		return "duplicate"
	case errors.Is(err, handoff.ErrHandoffExpired):
		return "expired"
	case errors.Is(err, handoff.ErrHandoffAbsent):
		return "absent"
	case errors.Is(err, handoff.ErrScopeMismatch):
		return "scope_mismatch"
	case errors.Is(err, handoff.ErrPlanStale):
		return "stale"
	case errors.Is(err, handoff.ErrInvalidPayload), errors.Is(err, handoff.ErrUnknownVariant):
		return "invalid_payload"
	default:
		return "failed"
	}
}
