package handoff

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ChannelKey names the single slot an envelope travels through. Session
// scopes the slot to one user session.
type ChannelKey struct {
	Session     string
	Source      string
	Destination string
	Version     int
}

func NewChannelKey(session, source, destination string) ChannelKey {
	return ChannelKey{
		Session:     strings.TrimSpace(session),
		Source:      strings.TrimSpace(source),
		Destination: strings.TrimSpace(destination),
		Version:     ProtocolVersion,
	}
}

func (k ChannelKey) String() string {
	v := k.Version
	if v == 0 {
		v = ProtocolVersion
	}
	base := fmt.Sprintf("handoff:v%d:%s:%s", v, k.Source, k.Destination)
	if k.Session == "" {
		return base
	}
	return "session:" + k.Session + ":" + base
}

func (k ChannelKey) Valid() bool {
	return k.Source != "" && k.Destination != ""
}

// ChannelStore is a transient key to text store.
type ChannelStore interface {
	Put(ctx context.Context, key string, text string, ttl time.Duration) error
	// Get reports ok=false when nothing is stored under key.
	Get(ctx context.Context, key string) (text string, ok bool, err error)
	Delete(ctx context.Context, key string) error
}

type ReadState string

const (
	StatePresent ReadState = "present"
	StateAbsent  ReadState = "absent"
	StateExpired ReadState = "expired"
)

type ReadResult struct {
	State    ReadState
	Envelope Envelope
}

// Channel holds at most one pending envelope; Store is last-write-wins.
type Channel struct {
	store ChannelStore
	key   ChannelKey
	now   func() time.Time
	// grace keeps entries in the backing store a little past ExpiresAt so the
	// reader observes Expired instead of Absent.
	grace time.Duration
}

type ChannelOption func(*Channel)

func WithClock(now func() time.Time) ChannelOption {
	return func(c *Channel) {
		if now != nil {
			c.now = now
		}
	}
}

func WithGrace(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d >= 0 {
			c.grace = d
		}
	}
}

const DefaultGrace = 10 * time.Minute

func NewChannel(store ChannelStore, key ChannelKey, opts ...ChannelOption) *Channel {
	c := &Channel{
		store: store,
		key:   key,
		now:   func() time.Time { return time.Now().UTC() },
		grace: DefaultGrace,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Channel) Key() ChannelKey { return c.key }

func (c *Channel) Store(ctx context.Context, env Envelope) error {
	if !c.key.Valid() {
		return fmt.Errorf("%w: channel needs source and destination", ErrInvalidEnvelope)
	}
	text, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	ttl := env.ExpiresAt.Sub(c.now())
	if ttl < 0 {
		ttl = 0
	}
	return c.store.Put(ctx, c.key.String(), text, ttl+c.grace)
}

// Read never fails on bad data: unparseable entries read as Absent. An
// expired entry is purged and reported once as Expired. Only a failing
// backing store returns an error.
func (c *Channel) Read(ctx context.Context) (ReadResult, error) {
	text, ok, err := c.store.Get(ctx, c.key.String())
	if err != nil {
		return ReadResult{}, err
	}
	if !ok {
		return ReadResult{State: StateAbsent}, nil
	}
	env, err := Parse(text)
	if err != nil {
		return ReadResult{State: StateAbsent}, nil
	}
	if env.Expired(c.now()) {
		if err := c.store.Delete(ctx, c.key.String()); err != nil {
			return ReadResult{}, err
		}
		return ReadResult{State: StateExpired, Envelope: env}, nil
	}
	return ReadResult{State: StatePresent, Envelope: env}, nil
}

// Consume clears the channel after a successful apply.
func (c *Channel) Consume(ctx context.Context) error {
	return c.store.Delete(ctx, c.key.String())
}

// Dismiss clears the channel without applying anything.
func (c *Channel) Dismiss(ctx context.Context) error {
	return c.Consume(ctx)
}
