// Package runner drives generation for a draft. The state machine only sees
// discrete actions: a GenerateRequest now, and a GenerateSuccess or
// GenerateError later carrying the same sequence number.
package runner

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/draftstudio-backend/internal/drafts/draft"
	"github.com/yungbote/draftstudio-backend/internal/generator"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

const DefaultTimeout = 2 * time.Minute

var tracer = otel.Tracer("github.com/yungbote/draftstudio-backend/internal/drafts/runner")

type Options struct {
	ClearBaseline bool
	PreserveEdits bool
	Fields        []string
}

type Runner struct {
	log     *logger.Logger
	gen     generator.Generator
	timeout time.Duration

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(gen generator.Generator, timeout time.Duration, baseLog *logger.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		log:     baseLog.With("service", "GenerationRunner"),
		gen:     gen,
		timeout: timeout,
		base:    base,
		cancel:  cancel,
	}
}

// Generate dispatches the request and returns its sequence number without
// waiting for the generator. A rejected request (already in flight) starts
// nothing.
func (r *Runner) Generate(ctx context.Context, m *draft.Machine, opts Options) (uint64, error) {
	res, err := m.Dispatch(draft.GenerateRequest{ClearBaseline: opts.ClearBaseline})
	if err != nil {
		return res.Seq, err
	}
	view := m.View()
	req := generator.Request{
		DraftID: view.ID,
		Tool:    view.Tool,
		Inputs:  view.Inputs,
		Fields:  requestedFields(opts.Fields, view),
	}

	// The caller's context usually ends with its HTTP request; the
	// generation outlives it but keeps its trace.
	gctx := trace.ContextWithSpanContext(r.base, trace.SpanContextFromContext(ctx))

	r.wg.Add(1)
	go func(seq uint64) {
		defer r.wg.Done()
		r.run(gctx, m, seq, req, opts.PreserveEdits)
	}(res.Seq)
	return res.Seq, nil
}

func (r *Runner) run(ctx context.Context, m *draft.Machine, seq uint64, req generator.Request, preserveEdits bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "draft.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("draft.id", req.DraftID),
		attribute.String("draft.tool", req.Tool),
		attribute.Int64("draft.seq", int64(seq)),
	)

	start := time.Now()
	content, err := r.gen.Generate(ctx, req)
	var action draft.Action
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "generation timed out"
		}
		action = draft.GenerateError{Seq: seq, Message: msg}
		r.log.Warn("Generation failed", "draft_id", req.DraftID, "seq", seq, "retryable", generator.IsRetryable(err), "error", err)
	} else {
		action = draft.GenerateSuccess{Seq: seq, Baseline: content, PreserveEdits: preserveEdits}
	}

	res, derr := m.Dispatch(action)
	if derr != nil {
		r.log.Error("Failed to apply generation result", "draft_id", req.DraftID, "seq", seq, "error", derr)
		return
	}
	if res.Stale {
		span.SetAttributes(attribute.Bool("draft.stale", true))
		r.log.Info("Discarded stale generation result", "draft_id", req.DraftID, "seq", seq)
		return
	}
	r.log.Debug("Generation applied", "draft_id", req.DraftID, "seq", seq, "status", res.Status, "elapsed", time.Since(start).String())
}

// Wait blocks until every started generation has fed its result back.
func (r *Runner) Wait() { r.wg.Wait() }

// Close cancels in-flight generations and waits for them.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

func requestedFields(explicit []string, v draft.View) []string {
	if len(explicit) > 0 {
		return append([]string(nil), explicit...)
	}
	fields := make([]string, 0, len(v.Active))
	for k := range v.Active {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}
