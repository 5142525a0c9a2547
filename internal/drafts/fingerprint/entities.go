package fingerprint

import (
	"fmt"
	"sort"
	"strings"
)

// Entity is one record of a collection (a contact, a queued item, a section).
type Entity map[string]any

// Spec names the stable sort key and the tracked field subset of an entity
// collection. Fields outside Fields never influence a fingerprint.
type Spec struct {
	Key    string   `json:"key"`
	Fields []string `json:"fields"`
}

func (s Spec) normalized() Spec {
	fields := make([]string, 0, len(s.Fields))
	seen := map[string]bool{}
	for _, f := range s.Fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return Spec{Key: strings.TrimSpace(s.Key), Fields: fields}
}

// OfEntity fingerprints the tracked fields of a single entity. A tracked field
// that is absent and one that is explicitly null produce different digests.
func OfEntity(e Entity, spec Spec) string {
	spec = spec.normalized()
	var sb strings.Builder
	for _, f := range spec.Fields {
		sb.WriteString(f)
		v, ok := e[f]
		if !ok {
			sb.WriteString("=~;")
			continue
		}
		canon, err := Canonicalize(v)
		if err != nil {
			canon = []byte(fmt.Sprintf("%#v", v))
		}
		sb.WriteByte('=')
		sb.Write(canon)
		sb.WriteByte(';')
	}
	return Hash([]byte(sb.String()))
}

type keyed struct {
	key    string
	digest string
}

// Of returns the collection fingerprint: per-entity digests sorted by the
// spec's key (digest breaks ties), concatenated, hashed. Input order is
// irrelevant.
func Of(entities []Entity, spec Spec) string {
	spec = spec.normalized()
	rows := make([]keyed, 0, len(entities))
	for _, e := range entities {
		k := ""
		if spec.Key != "" {
			if v, ok := e[spec.Key]; ok && v != nil {
				if canon, err := Canonicalize(v); err == nil {
					k = string(canon)
				} else {
					k = fmt.Sprint(v)
				}
			}
		}
		rows = append(rows, keyed{key: k, digest: OfEntity(e, spec)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].key != rows[j].key {
			return rows[i].key < rows[j].key
		}
		return rows[i].digest < rows[j].digest
	})
	var sb strings.Builder
	sb.WriteString("fields=")
	sb.WriteString(strings.Join(spec.Fields, ","))
	sb.WriteString("|n=")
	sb.WriteString(fmt.Sprint(len(rows)))
	for _, r := range rows {
		sb.WriteByte('|')
		sb.WriteString(r.digest)
	}
	return Hash([]byte(sb.String()))
}

// Changed compares whole fingerprints. It cannot say what changed.
func Changed(before, after []Entity, spec Spec) bool {
	return Of(before, spec) != Of(after, spec)
}

// Entities converts a decoded JSON array ([]any of objects) into entities.
// Non-object elements are skipped.
func Entities(v any) []Entity {
	switch t := v.(type) {
	case []Entity:
		return t
	case []map[string]any:
		out := make([]Entity, 0, len(t))
		for _, m := range t {
			out = append(out, Entity(m))
		}
		return out
	case []any:
		out := make([]Entity, 0, len(t))
		for _, item := range t {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, Entity(m))
			case Entity:
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}
