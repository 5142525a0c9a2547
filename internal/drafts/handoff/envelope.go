package handoff

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/draftstudio-backend/internal/drafts/fingerprint"
)

// ProtocolVersion is part of every channel key. Envelopes carrying another
// version are invisible to this reader.
const ProtocolVersion = 1

var (
	ErrInvalidTTL      = errors.New("handoff ttl must be positive")
	ErrInvalidEnvelope = errors.New("invalid handoff envelope")
)

// Envelope is a versioned, expiring message passing a content subset from
// one tool to another. It is plain data end to end.
type Envelope struct {
	Version   int             `json:"version"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	SourceApp string          `json:"source_app"`
	ScopeID   string          `json:"scope_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type BuildOption func(*Envelope)

// WithScope tags the envelope with the sender's tenant or business id.
func WithScope(scopeID string) BuildOption {
	return func(e *Envelope) { e.ScopeID = strings.TrimSpace(scopeID) }
}

// Build canonicalizes payload into the envelope. The payload must survive a
// JSON round trip; anything else is rejected here rather than on read.
func Build(sourceApp, kind string, payload any, ttl time.Duration, now time.Time, opts ...BuildOption) (Envelope, error) {
	if ttl <= 0 {
		return Envelope{}, ErrInvalidTTL
	}
	sourceApp = strings.TrimSpace(sourceApp)
	kind = strings.TrimSpace(kind)
	if sourceApp == "" || kind == "" {
		return Envelope{}, fmt.Errorf("%w: source app and kind are required", ErrInvalidEnvelope)
	}
	raw, err := fingerprint.Canonicalize(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: payload is not serializable: %v", ErrInvalidEnvelope, err)
	}
	now = now.UTC()
	env := Envelope{
		Version:   ProtocolVersion,
		Type:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		SourceApp: sourceApp,
		Payload:   json.RawMessage(raw),
	}
	for _, o := range opts {
		o(&env)
	}
	return env, nil
}

func (e Envelope) Marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Parse decodes a stored envelope. Any failure, including an unknown
// protocol version, is reported as ErrInvalidEnvelope.
func Parse(text string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.Version != ProtocolVersion {
		return Envelope{}, fmt.Errorf("%w: version %d", ErrInvalidEnvelope, env.Version)
	}
	if env.SourceApp == "" || env.Type == "" || env.ExpiresAt.IsZero() || len(env.Payload) == 0 {
		return Envelope{}, fmt.Errorf("%w: missing required fields", ErrInvalidEnvelope)
	}
	return env, nil
}

// Expired reports now > ExpiresAt. An envelope read exactly at its expiry
// instant is still valid.
func (e Envelope) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Hash is the content hash of the normalized payload, used by the import
// ledger.
func (e Envelope) Hash() (string, error) {
	return fingerprint.HashValue(e.Payload)
}
