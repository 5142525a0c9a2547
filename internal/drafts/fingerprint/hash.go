// Package fingerprint derives deterministic change signatures from JSON-shaped
// values. Two values that serialize to the same canonical JSON are considered
// structurally equal, which is what the edit overlay uses for pruning and what
// the snapshot history uses for cheap change summaries.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
)

func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Canonicalize marshals a JSON value with stable key ordering and no whitespace.
// Input may be raw bytes, a json.RawMessage, a map/struct, or any json-marshalable value.
// Structs are normalized through a decode pass so that struct and map forms of the
// same document canonicalize identically.
func Canonicalize(v any) ([]byte, error) {
	var raw []byte
	switch t := v.(type) {
	case []byte:
		raw = t
	case json.RawMessage:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeNumbers(obj))
}

// HashValue is Hash(Canonicalize(v)).
func HashValue(v any) (string, error) {
	canon, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return Hash(canon), nil
}

// Equal reports structural equality. Map key order, numeric representation
// (1 vs 1.0) and slice element types never matter; values that cannot be
// serialized fall back to reflect.DeepEqual.
func Equal(a, b any) bool {
	ca, errA := Canonicalize(a)
	cb, errB := Canonicalize(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ca, cb)
}

// normalizeNumbers rewrites json.Number so 1, 1.0 and 1e0 share one form.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			if f == float64(int64(f)) && f < 1<<53 && f > -(1<<53) {
				return int64(f)
			}
			return f
		}
		return t.String()
	default:
		return v
	}
}
