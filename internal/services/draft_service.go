package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/draftstudio-backend/internal/drafts/draft"
	"github.com/yungbote/draftstudio-backend/internal/drafts/runner"
	"github.com/yungbote/draftstudio-backend/internal/observability"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

type CreateDraftInput struct {
	ID       string         `json:"id"`
	Tool     string         `json:"tool" binding:"required"`
	Inputs   map[string]any `json:"inputs"`
	Defaults map[string]any `json:"defaults"`
}

type GenerateInput struct {
	ClearBaseline bool     `json:"clear_baseline"`
	PreserveEdits bool     `json:"preserve_edits"`
	Fields        []string `json:"fields"`
}

type DraftService interface {
	Create(ctx context.Context, in CreateDraftInput) (draft.View, error)
	Get(ctx context.Context, id string) (draft.View, error)
	List(ctx context.Context) ([]draft.View, error)
	Delete(ctx context.Context, id string) error
	UpdateInputs(ctx context.Context, id string, inputs map[string]any) (draft.View, error)
	// Generate starts generation and returns immediately; the view reports
	// the generating status and the request's sequence number.
	Generate(ctx context.Context, id string, in GenerateInput) (draft.View, error)
	Edit(ctx context.Context, id, field string, value any) (draft.View, error)
	ResetField(ctx context.Context, id, field string) (draft.View, error)
	ResetAll(ctx context.Context, id string) (draft.View, error)
	Undo(ctx context.Context, id string) (draft.View, error)
	Reset(ctx context.Context, id string, inputs map[string]any) (draft.View, error)
}

type draftService struct {
	log       *logger.Logger
	workspace *Workspace
	runner    *runner.Runner
	metrics   *observability.Metrics
}

func NewDraftService(workspace *Workspace, r *runner.Runner, metrics *observability.Metrics, baseLog *logger.Logger) DraftService {
	return &draftService{
		log:       baseLog.With("service", "DraftService"),
		workspace: workspace,
		runner:    r,
		metrics:   metrics,
	}
}

func (s *draftService) Create(ctx context.Context, in CreateDraftInput) (draft.View, error) {
	if strings.TrimSpace(in.Tool) == "" {
		return draft.View{}, asAPIError(fmt.Errorf("%w: tool is required", ErrInvalidRequest))
	}
	m, err := s.workspace.Create(ctx, in.ID, in.Tool, in.Inputs, draft.Defaults(in.Defaults))
	if err != nil {
		return draft.View{}, asAPIError(err)
	}
	s.log.Info("Draft created", "draft_id", m.ID(), "tool", in.Tool)
	return m.View(), nil
}

func (s *draftService) Get(_ context.Context, id string) (draft.View, error) {
	m, err := s.machine(id)
	if err != nil {
		return draft.View{}, err
	}
	return m.View(), nil
}

func (s *draftService) List(context.Context) ([]draft.View, error) {
	ids := s.workspace.IDs()
	out := make([]draft.View, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.workspace.Get(id); ok {
			out = append(out, m.View())
		}
	}
	return out, nil
}

func (s *draftService) Delete(ctx context.Context, id string) error {
	return asAPIError(s.workspace.Delete(ctx, id))
}

func (s *draftService) UpdateInputs(_ context.Context, id string, inputs map[string]any) (draft.View, error) {
	return s.dispatch(id, draft.InitFromInputs{Inputs: inputs})
}

func (s *draftService) Generate(ctx context.Context, id string, in GenerateInput) (draft.View, error) {
	m, err := s.machine(id)
	if err != nil {
		return draft.View{}, err
	}
	seq, err := s.runner.Generate(ctx, m, runner.Options{
		ClearBaseline: in.ClearBaseline,
		PreserveEdits: in.PreserveEdits,
		Fields:        in.Fields,
	})
	s.observe(draft.GenerateRequest{}, draft.Result{}, err)
	if err != nil {
		return draft.View{}, asAPIError(err)
	}
	s.log.Debug("Generation requested", "draft_id", id, "seq", seq)
	return m.View(), nil
}

func (s *draftService) Edit(_ context.Context, id, field string, value any) (draft.View, error) {
	return s.dispatch(id, draft.ApplyEdit{Field: field, Value: value})
}

func (s *draftService) ResetField(_ context.Context, id, field string) (draft.View, error) {
	return s.dispatch(id, draft.ResetField{Field: field})
}

func (s *draftService) ResetAll(_ context.Context, id string) (draft.View, error) {
	return s.dispatch(id, draft.ResetAllEdits{})
}

func (s *draftService) Undo(_ context.Context, id string) (draft.View, error) {
	return s.dispatch(id, draft.Undo{})
}

func (s *draftService) Reset(_ context.Context, id string, inputs map[string]any) (draft.View, error) {
	return s.dispatch(id, draft.ResetDraft{Inputs: inputs})
}

func (s *draftService) machine(id string) (*draft.Machine, error) {
	m, ok := s.workspace.Get(strings.TrimSpace(id))
	if !ok {
		return nil, asAPIError(fmt.Errorf("%w: %s", ErrDraftNotFound, id))
	}
	return m, nil
}

func (s *draftService) dispatch(id string, a draft.Action) (draft.View, error) {
	m, err := s.machine(id)
	if err != nil {
		return draft.View{}, err
	}
	res, err := m.Dispatch(a)
	s.observe(a, res, err)
	if err != nil {
		return draft.View{}, asAPIError(err)
	}
	return m.View(), nil
}

func (s *draftService) observe(a draft.Action, res draft.Result, err error) {
	outcome := "applied"
	switch {
	case err != nil && errors.Is(err, draft.ErrUnknownAction):
		outcome = "error"
	case err != nil:
		outcome = "rejected"
	case res.Stale:
		outcome = "stale"
	}
	s.metrics.IncDraftAction(draft.ActionName(a), outcome)
}
