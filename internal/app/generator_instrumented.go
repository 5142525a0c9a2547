package app

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/draftstudio-backend/internal/generator"
	"github.com/yungbote/draftstudio-backend/internal/observability"
)

type instrumentedGenerator struct {
	inner   generator.Generator
	metrics *observability.Metrics
}

func instrumentGenerator(inner generator.Generator, metrics *observability.Metrics) generator.Generator {
	if inner == nil {
		return nil
	}
	return &instrumentedGenerator{inner: inner, metrics: metrics}
}

func (g *instrumentedGenerator) Generate(ctx context.Context, req generator.Request) (map[string]any, error) {
	start := time.Now()
	out, err := g.inner.Generate(ctx, req)
	g.observe(req.Tool, err, time.Since(start))
	return out, err
}

func (g *instrumentedGenerator) observe(tool string, err error, dur time.Duration) {
	if g == nil || g.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	default:
		outcome = "error"
	}
	if tool == "" {
		tool = "unknown"
	}
	g.metrics.ObserveGeneration(tool, outcome, dur)
}
