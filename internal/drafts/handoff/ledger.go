package handoff

import (
	"container/list"
	"context"
	"sync"
	"time"
)

const (
	DefaultLedgerTTL        = 24 * time.Hour
	DefaultLedgerMaxEntries = 10000
)

// Ledger remembers which payload hashes were already imported into which
// target. It is additive: entries only disappear through retention.
type Ledger interface {
	Has(ctx context.Context, target, hash string) (bool, error)
	Record(ctx context.Context, target, hash string) error
}

func ledgerKey(target, hash string) string { return target + "|" + hash }

type ledgerEntry struct {
	key      string
	recorded time.Time
}

// MemoryLedger keeps entries for ttl and at most maxEntries of them,
// evicting the oldest first.
type MemoryLedger struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	order      *list.List
	index      map[string]*list.Element
}

func NewMemoryLedger(ttl time.Duration, maxEntries int, now func() time.Time) *MemoryLedger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultLedgerMaxEntries
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryLedger{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		order:      list.New(),
		index:      map[string]*list.Element{},
	}
}

func (l *MemoryLedger) Has(ctx context.Context, target, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.index[ledgerKey(target, hash)]
	if !ok {
		return false, nil
	}
	if l.expired(el.Value.(ledgerEntry)) {
		l.remove(el)
		return false, nil
	}
	return true, nil
}

func (l *MemoryLedger) Record(ctx context.Context, target, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k := ledgerKey(target, hash)
	if el, ok := l.index[k]; ok {
		l.remove(el)
	}
	l.index[k] = l.order.PushBack(ledgerEntry{key: k, recorded: l.now()})
	for l.order.Len() > l.maxEntries {
		l.remove(l.order.Front())
	}
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (l *MemoryLedger) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for el := l.order.Front(); el != nil; {
		next := el.Next()
		if !l.expired(el.Value.(ledgerEntry)) {
			break
		}
		l.remove(el)
		n++
		el = next
	}
	return n
}

func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// RunSweeper calls Sweep every interval until ctx is done.
func (l *MemoryLedger) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *MemoryLedger) expired(e ledgerEntry) bool {
	return l.now().Sub(e.recorded) >= l.ttl
}

func (l *MemoryLedger) remove(el *list.Element) {
	delete(l.index, el.Value.(ledgerEntry).key)
	l.order.Remove(el)
}
