package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// mockGenerator is deterministic: the same request always yields the same
// content. It is the default engine for local development.
type mockGenerator struct{}

func NewMock() Generator { return mockGenerator{} }

func (mockGenerator) Generate(ctx context.Context, req Request) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, Fail(err, true)
	}
	keys := make([]string, 0, len(req.Inputs))
	for k := range req.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, req.Inputs[k]))
	}
	summary := strings.Join(parts, ", ")

	fields := req.Fields
	if len(fields) == 0 {
		fields = []string{"title", "body"}
	}
	tool := req.Tool
	if tool == "" {
		tool = "draft"
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f] = fmt.Sprintf("[%s] %s: %s", tool, f, summary)
	}
	return out, nil
}
