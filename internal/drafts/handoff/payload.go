package handoff

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	KindFields  = "fields"
	KindRecords = "records"
)

var (
	ErrUnknownVariant = errors.New("unknown handoff payload variant")
	ErrInvalidPayload = errors.New("invalid handoff payload")
)

// Payload is one decoded, validated variant. The set of variants is the
// registry's; nothing outside it is ever partially consumed.
type Payload interface {
	Kind() string
}

// FieldsPayload carries field values to be written into a target draft.
type FieldsPayload struct {
	Fields map[string]any `json:"fields" validate:"required,min=1,dive,keys,fieldkey,endkeys"`
}

func (FieldsPayload) Kind() string { return KindFields }

// RecordsPayload carries entity records appended to one collection field of
// a target draft.
type RecordsPayload struct {
	Collection string           `json:"collection" validate:"required,fieldkey"`
	Key        string           `json:"key,omitempty"`
	Records    []map[string]any `json:"records" validate:"required,min=1,max=10000"`
}

func (RecordsPayload) Kind() string { return KindRecords }

type variantKey struct {
	source string
	kind   string
}

// Registry maps (sourceApp, kind) to a payload factory.
type Registry struct {
	mu       sync.RWMutex
	variants map[variantKey]func() Payload
	validate *validator.Validate
}

func NewRegistry() *Registry {
	v := validator.New()
	_ = v.RegisterValidation("fieldkey", validateFieldKey)
	return &Registry{variants: map[variantKey]func() Payload{}, validate: v}
}

// fieldkey: non-blank, no surrounding whitespace.
func validateFieldKey(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s != "" && strings.TrimSpace(s) == s
}

// Register adds a variant. factory must return a pointer to a fresh value.
func (r *Registry) Register(sourceApp, kind string, factory func() Payload) error {
	sourceApp = strings.TrimSpace(sourceApp)
	kind = strings.TrimSpace(kind)
	if sourceApp == "" || kind == "" || factory == nil {
		return fmt.Errorf("register handoff variant: source, kind and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := variantKey{source: sourceApp, kind: kind}
	if _, exists := r.variants[k]; exists {
		return fmt.Errorf("register handoff variant: %s/%s already registered", sourceApp, kind)
	}
	r.variants[k] = factory
	return nil
}

// RegisterBuiltins registers the fields and records variants for every
// source app.
func (r *Registry) RegisterBuiltins(sources ...string) error {
	for _, src := range sources {
		if err := r.Register(src, KindFields, func() Payload { return &FieldsPayload{} }); err != nil {
			return err
		}
		if err := r.Register(src, KindRecords, func() Payload { return &RecordsPayload{} }); err != nil {
			return err
		}
	}
	return nil
}

// Variants lists registered "source/kind" pairs, sorted.
func (r *Registry) Variants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.variants))
	for k := range r.variants {
		out = append(out, k.source+"/"+k.kind)
	}
	sort.Strings(out)
	return out
}

// Decode strictly decodes env.Payload into its registered variant: unknown
// fields, trailing data and failed validation all reject the whole payload.
func (r *Registry) Decode(env Envelope) (Payload, error) {
	r.mu.RLock()
	factory, ok := r.variants[variantKey{source: env.SourceApp, kind: env.Type}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownVariant, env.SourceApp, env.Type)
	}
	target := factory()
	if err := decodeStrict(env.Payload, target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := r.validate.Struct(target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return deref(target), nil
}

func decodeStrict(raw []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing data after payload")
	}
	return nil
}

// deref returns the built-in variants by value so callers can switch on
// FieldsPayload / RecordsPayload directly.
func deref(p Payload) Payload {
	switch t := p.(type) {
	case *FieldsPayload:
		return *t
	case *RecordsPayload:
		return *t
	default:
		return p
	}
}
