package snapshot

import (
	"fmt"

	"github.com/yungbote/draftstudio-backend/internal/drafts/fingerprint"
)

// Summary answers "did anything tracked change?" and nothing more. It does
// not describe which entity changed.
type Summary struct {
	Changed     bool   `json:"changed"`
	Before      string `json:"before_fingerprint"`
	After       string `json:"after_fingerprint"`
	BeforeCount int    `json:"before_count"`
	AfterCount  int    `json:"after_count"`
}

func Summarize(before, after []fingerprint.Entity, spec fingerprint.Spec) Summary {
	b := fingerprint.Of(before, spec)
	a := fingerprint.Of(after, spec)
	return Summary{
		Changed:     a != b,
		Before:      b,
		After:       a,
		BeforeCount: len(before),
		AfterCount:  len(after),
	}
}

// CompareSnapshots summarizes the entity collection stored under
// collection in each snapshot's generated content. A missing collection is
// treated as empty; a non-list value is an error.
func CompareSnapshots(a, b Snapshot, collection string, spec fingerprint.Spec) (Summary, error) {
	before, err := collectionOf(a, collection)
	if err != nil {
		return Summary{}, err
	}
	after, err := collectionOf(b, collection)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(before, after, spec), nil
}

func collectionOf(s Snapshot, collection string) ([]fingerprint.Entity, error) {
	v, ok := s.GeneratedContent[collection]
	if !ok || v == nil {
		return nil, nil
	}
	switch v.(type) {
	case []any, []map[string]any, []fingerprint.Entity:
		return fingerprint.Entities(v), nil
	default:
		return nil, fmt.Errorf("%w: snapshot %s field %q is not a list", ErrInvalidSnapshot, s.ID, collection)
	}
}
