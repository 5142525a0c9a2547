package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/draftstudio-backend/internal/drafts/draft"
	"github.com/yungbote/draftstudio-backend/internal/platform/dbctx"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

func generated(t *testing.T, m *draft.Machine, content draft.Content) {
	t.Helper()
	req, err := m.Dispatch(draft.GenerateRequest{})
	require.NoError(t, err)
	_, err = m.Dispatch(draft.GenerateSuccess{Seq: req.Seq, Baseline: content})
	require.NoError(t, err)
}

func TestWorkspaceFlushesEveryAction(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDraftRepo()
	ws := NewWorkspace(repo, 5, logger.NewNop())

	m, err := ws.Create(ctx, "d1", "emailer", map[string]any{"topic": "launch"}, nil)
	require.NoError(t, err)
	generated(t, m, draft.Content{"title": "Hello"})
	_, err = m.Dispatch(draft.ApplyEdit{Field: "title", Value: "Edited"})
	require.NoError(t, err)

	states, err := repo.List(dbctx.New(ctx))
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, m.View().Version, states[0].Version)
	assert.Equal(t, "Edited", states[0].Overlay["title"])
}

func TestWorkspaceLoadRestoresDrafts(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDraftRepo()
	first := NewWorkspace(repo, 5, logger.NewNop())

	m, err := first.Create(ctx, "d1", "emailer", nil, nil)
	require.NoError(t, err)
	generated(t, m, draft.Content{"title": "Hello"})
	_, err = m.Dispatch(draft.ApplyEdit{Field: "title", Value: "Edited"})
	require.NoError(t, err)
	// Leave a request in flight; it must not survive the restart.
	_, err = m.Dispatch(draft.GenerateRequest{})
	require.NoError(t, err)

	second := NewWorkspace(repo, 5, logger.NewNop())
	n, err := second.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	restored, ok := second.Get("d1")
	require.True(t, ok)
	v := restored.View()
	assert.Equal(t, draft.StatusEdited, v.Status)
	assert.Equal(t, "Edited", v.Active["title"])
	assert.Equal(t, "emailer", v.Tool)
	assert.True(t, v.CanUndo)
}

func TestWorkspaceCreateAndDelete(t *testing.T) {
	ctx := context.Background()
	ws := NewWorkspace(NewMemoryDraftRepo(), 0, logger.NewNop())

	m, err := ws.Create(ctx, "", "emailer", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID())

	_, err = ws.Create(ctx, m.ID(), "emailer", nil, nil)
	require.ErrorIs(t, err, ErrDraftExists)

	require.NoError(t, ws.Delete(ctx, m.ID()))
	_, ok := ws.Get(m.ID())
	assert.False(t, ok)
	require.ErrorIs(t, ws.Delete(ctx, m.ID()), ErrDraftNotFound)
	assert.Empty(t, ws.IDs())
}
