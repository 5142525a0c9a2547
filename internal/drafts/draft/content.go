package draft

import (
	"encoding/json"
	"sort"

	"github.com/yungbote/draftstudio-backend/internal/drafts/fingerprint"
)

// Content is one generated baseline: field key -> decoded JSON value.
// A baseline is replaced wholesale, never merged field by field.
type Content map[string]any

// Overlay holds sparse user overrides. An entry exists only while it differs
// structurally from the baseline value of the same field.
type Overlay map[string]any

// Defaults are the per-field empty values returned when neither the overlay
// nor the baseline has a field.
type Defaults map[string]any

// Active resolves what the user currently sees for a field. It never fails:
// overlay, then baseline, then default, then nil.
func Active(baseline Content, overlay Overlay, defaults Defaults, field string) any {
	if v, ok := overlay[field]; ok {
		return CloneValue(v)
	}
	if v, ok := baseline[field]; ok {
		return CloneValue(v)
	}
	if v, ok := defaults[field]; ok {
		return CloneValue(v)
	}
	return nil
}

// ActiveContent merges defaults, baseline and overlay into one deep-copied map.
func ActiveContent(baseline Content, overlay Overlay, defaults Defaults) Content {
	out := make(Content, len(defaults)+len(baseline)+len(overlay))
	for k, v := range defaults {
		out[k] = CloneValue(v)
	}
	for k, v := range baseline {
		out[k] = CloneValue(v)
	}
	for k, v := range overlay {
		out[k] = CloneValue(v)
	}
	return out
}

// HasEdits is an existence check; pruning keeps it exact.
func HasEdits(overlay Overlay) bool {
	return len(overlay) > 0
}

// EqualsBaseline reports whether v structurally equals the baseline's value
// for field. A field missing from the baseline compares against nil.
func EqualsBaseline(baseline Content, field string, v any) bool {
	if baseline == nil {
		return false
	}
	return fingerprint.Equal(baseline[field], v)
}

// Prune drops overlay entries that equal the baseline. It returns the pruned
// copy and the fields that were removed, sorted.
func Prune(overlay Overlay, baseline Content) (Overlay, []string) {
	out := make(Overlay, len(overlay))
	var removed []string
	for k, v := range overlay {
		if EqualsBaseline(baseline, k, v) {
			removed = append(removed, k)
			continue
		}
		out[k] = v
	}
	sort.Strings(removed)
	return out, removed
}

// Fields returns the sorted union of keys in defaults, baseline and overlay.
func Fields(baseline Content, overlay Overlay, defaults Defaults) []string {
	seen := map[string]bool{}
	var out []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	for k := range defaults {
		add(k)
	}
	for k := range baseline {
		add(k)
	}
	for k := range overlay {
		add(k)
	}
	sort.Strings(out)
	return out
}

// CloneValue deep-copies a JSON-shaped value. Maps and slices of the decoded
// JSON kinds are copied structurally; anything else round-trips through JSON
// so no caller ever shares a mutable reference with the draft.
func CloneValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = CloneValue(item)
		}
		return out
	case Content:
		return map[string]any(cloneMap(t))
	case Overlay:
		return map[string]any(cloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = CloneValue(m)
		}
		return out
	case json.RawMessage:
		return decodeJSON(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return t
		}
		return decodeJSON(raw)
	}
}

func decodeJSON(raw []byte) any {
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func cloneMap[M ~map[string]any](m M) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneContent deep-copies a baseline. nil stays nil ("no baseline").
func CloneContent(c Content) Content {
	if c == nil {
		return nil
	}
	return Content(cloneMap(c))
}

func cloneOverlay(o Overlay) Overlay {
	out := make(Overlay, len(o))
	for k, v := range o {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneInputs deep-copies source inputs, never returning nil.
func CloneInputs(in map[string]any) map[string]any {
	out := cloneMap(in)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

func cloneDefaults(d Defaults) Defaults {
	if d == nil {
		return Defaults{}
	}
	return Defaults(cloneMap(d))
}
