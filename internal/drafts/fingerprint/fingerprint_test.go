package fingerprint

import (
	"encoding/json"
	"testing"
)

var contactSpec = Spec{Key: "email", Fields: []string{"email", "name", "status"}}

func contacts() []Entity {
	return []Entity{
		{"email": "a@example.com", "name": "Ann", "status": "queued", "notes": "x"},
		{"email": "b@example.com", "name": "Bob", "status": "sent"},
		{"email": "c@example.com", "name": "Cid", "status": "queued"},
	}
}

func TestCanonicalizeStableKeyOrder(t *testing.T) {
	a, err := Canonicalize([]byte(`{"b":1,"a":{"y":2,"x":[1,2]}}`))
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	b, err := Canonicalize(map[string]any{"a": map[string]any{"x": []any{1, 2}, "y": 2.0}, "b": 1})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("canonical mismatch: want=%s got=%s", a, b)
	}
	if string(a) != `{"a":{"x":[1,2],"y":2},"b":1}` {
		t.Fatalf("unexpected canonical form: %s", a)
	}
}

func TestEqualStructural(t *testing.T) {
	type rec struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}
	cases := []struct {
		name string
		a, b any
		want bool
	}{
		{"same string", "A", "A", true},
		{"different string", "A", "X", false},
		{"int vs float", 1, 1.0, true},
		{"struct vs map", rec{Name: "n", Tags: []string{"t"}}, map[string]any{"tags": []any{"t"}, "name": "n"}, true},
		{"nested list order matters", []any{1, 2}, []any{2, 1}, false},
		{"nil vs nil", nil, nil, true},
		{"nil vs empty string", nil, "", false},
		{"raw json", json.RawMessage(`{"a": 1}`), map[string]any{"a": 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equal(tc.a, tc.b); got != tc.want {
				t.Fatalf("Equal(%v, %v): want=%v got=%v", tc.a, tc.b, tc.want, got)
			}
		})
	}
}

func TestOfIsOrderIndependent(t *testing.T) {
	in := contacts()
	reversed := []Entity{in[2], in[1], in[0]}
	if Of(in, contactSpec) != Of(reversed, contactSpec) {
		t.Fatalf("fingerprint depends on input order")
	}
	if Changed(in, reversed, contactSpec) {
		t.Fatalf("Changed reported a reorder as a change")
	}
}

func TestOfIgnoresUntrackedFieldsAndKeyOrder(t *testing.T) {
	in := contacts()
	mod := contacts()
	mod[0]["notes"] = "something else"
	if Changed(in, mod, contactSpec) {
		t.Fatalf("untracked field change must not change the fingerprint")
	}

	var reparsed []Entity
	raw, _ := json.Marshal(in)
	if err := json.Unmarshal(raw, &reparsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if Of(in, contactSpec) != Of(reparsed, contactSpec) {
		t.Fatalf("re-serialization changed the fingerprint")
	}

	specShuffled := Spec{Key: "email", Fields: []string{"status", "email", "name", "name"}}
	if Of(in, contactSpec) != Of(in, specShuffled) {
		t.Fatalf("field list order must not matter")
	}
}

func TestOfChangesWhenTrackedFieldChanges(t *testing.T) {
	in := contacts()
	for _, field := range contactSpec.Fields {
		mod := contacts()
		mod[1][field] = "changed"
		if !Changed(in, mod, contactSpec) {
			t.Fatalf("tracked field %q change not detected", field)
		}
	}

	added := append(contacts(), Entity{"email": "d@example.com", "name": "Dee", "status": "queued"})
	if !Changed(in, added, contactSpec) {
		t.Fatalf("added entity not detected")
	}
	if !Changed(in, contacts()[:2], contactSpec) {
		t.Fatalf("removed entity not detected")
	}
}

func TestOfEntityAbsentVersusNull(t *testing.T) {
	spec := Spec{Fields: []string{"x"}}
	if OfEntity(Entity{}, spec) == OfEntity(Entity{"x": nil}, spec) {
		t.Fatalf("absent and null tracked field should differ")
	}
}

func TestEntitiesFromDecodedJSON(t *testing.T) {
	var decoded any
	if err := json.Unmarshal([]byte(`[{"email":"a"},3,{"email":"b"}]`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := Entities(decoded)
	if len(got) != 2 {
		t.Fatalf("Entities len: want=2 got=%d", len(got))
	}
	if Entities("nope") != nil {
		t.Fatalf("Entities(non-slice) should be nil")
	}
}
