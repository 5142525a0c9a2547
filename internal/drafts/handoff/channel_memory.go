package handoff

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	text     string
	deadline time.Time
}

// MemoryChannels is a process-local ChannelStore. Entries past their store
// TTL are dropped lazily on access.
type MemoryChannels struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryChannels(now func() time.Time) *MemoryChannels {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryChannels{now: now, entries: map[string]memoryEntry{}}
}

func (m *MemoryChannels) Put(ctx context.Context, key, text string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{text: text}
	if ttl > 0 {
		e.deadline = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryChannels) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.deadline.IsZero() && m.now().After(e.deadline) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.text, true, nil
}

func (m *MemoryChannels) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
