package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/draftstudio-backend/internal/drafts/fingerprint"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

const maxSaveAttempts = 3

var tracer = otel.Tracer("github.com/yungbote/draftstudio-backend/internal/drafts/snapshot")

type ServiceOptions struct {
	Now   func() time.Time
	NewID func() string
}

// Service runs history read-modify-write cycles against a Store, retrying
// revision conflicts, and hands new snapshots to a Persister in the
// background.
type Service struct {
	log       *logger.Logger
	store     Store
	persister Persister
	now       func() time.Time
	newID     func() string

	wg sync.WaitGroup
}

func NewService(store Store, persister Persister, baseLog *logger.Logger, opts ServiceOptions) *Service {
	if persister == nil {
		persister = NewNoopPersister()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		log:       baseLog.With("service", "SnapshotService"),
		store:     store,
		persister: persister,
		now:       now,
		newID:     opts.NewID,
	}
}

func (s *Service) History(ctx context.Context, key string) (History, error) {
	return s.store.Load(ctx, key)
}

// Capture creates a snapshot from deep copies of inputs and content and
// appends it to the history. Durable persistence runs in the background: the
// snapshot is returned as pending and its status moves to durable or
// local_only once the persister answers. With persistence disabled the
// snapshot is local_only immediately.
func (s *Service) Capture(ctx context.Context, key string, inputs, content map[string]any, setActive bool) (Snapshot, History, error) {
	ctx, span := tracer.Start(ctx, "snapshot.Capture")
	defer span.End()
	span.SetAttributes(attribute.String("snapshot.history_key", key), attribute.Bool("snapshot.set_active", setActive))

	snap, err := New(inputs, content, Options{Now: s.now, NewID: s.newID})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "new snapshot")
		return Snapshot{}, History{}, err
	}
	_, disabled := s.persister.(noopPersister)
	if disabled {
		snap.PersistStatus = PersistLocalOnly
	}
	h, err := s.mutate(ctx, key, func(h History) (History, error) {
		return Append(h, snap, setActive)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append snapshot")
		return Snapshot{}, History{}, err
	}
	span.SetAttributes(attribute.String("snapshot.id", snap.ID))

	if !disabled {
		doc := NewExportDocument(key, snap, s.now())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.persist(context.WithoutCancel(ctx), key, doc)
		}()
	}
	found, _ := Find(h, snap.ID)
	return found, h, nil
}

// Wait blocks until every background persistence started by Capture has
// recorded its outcome.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) persist(ctx context.Context, key string, doc ExportDocument) {
	ctx, span := tracer.Start(ctx, "snapshot.Persist")
	defer span.End()
	id := doc.Snapshot.ID
	span.SetAttributes(attribute.String("snapshot.history_key", key), attribute.String("snapshot.id", id))

	status := PersistDurable
	ref, err := s.persister.Persist(ctx, doc)
	if err != nil {
		status = PersistLocalOnly
		ref = ""
		if !errors.Is(err, ErrPersistenceDisabled) {
			s.log.Warn("Snapshot persistence failed; snapshot kept locally", "history_key", key, "snapshot_id", id, "error", err)
			span.RecordError(err)
		}
	}
	if _, err := s.mutate(ctx, key, func(h History) (History, error) {
		return setPersistStatus(h, id, status, ref)
	}); err != nil {
		// The snapshot itself is stored; only the side-channel flag is stale.
		s.log.Warn("Failed to record snapshot persist status", "history_key", key, "snapshot_id", id, "status", status, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "record persist status")
		return
	}
	s.log.Debug("Snapshot persist status recorded", "history_key", key, "snapshot_id", id, "status", status)
}

func (s *Service) SetActive(ctx context.Context, key, id string) (History, error) {
	return s.mutate(ctx, key, func(h History) (History, error) {
		return SetActive(h, id)
	})
}

func (s *Service) UpdateActive(ctx context.Context, key string, mutate func(*Mutable) error) (History, error) {
	return s.mutate(ctx, key, func(h History) (History, error) {
		return UpdateActive(h, mutate)
	})
}

func (s *Service) Export(ctx context.Context, key, id string) (ExportDocument, error) {
	h, err := s.store.Load(ctx, key)
	if err != nil {
		return ExportDocument{}, err
	}
	snap, ok := Find(h, id)
	if !ok {
		return ExportDocument{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	return NewExportDocument(key, snap, s.now()), nil
}

func (s *Service) Compare(ctx context.Context, key, a, b, collection string, spec fingerprint.Spec) (Summary, error) {
	h, err := s.store.Load(ctx, key)
	if err != nil {
		return Summary{}, err
	}
	sa, ok := Find(h, a)
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, a)
	}
	sb, ok := Find(h, b)
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, b)
	}
	return CompareSnapshots(sa, sb, collection, spec)
}

func (s *Service) mutate(ctx context.Context, key string, fn func(History) (History, error)) (History, error) {
	var lastErr error
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		cur, err := s.store.Load(ctx, key)
		if err != nil {
			return History{}, err
		}
		next, err := fn(cur)
		if err != nil {
			return History{}, err
		}
		saved, err := s.store.Save(ctx, next, cur.Revision)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, ErrRevisionConflict) {
			return History{}, err
		}
		lastErr = err
		s.log.Debug("Snapshot history revision conflict; retrying", "history_key", key, "attempt", attempt)
	}
	return History{}, lastErr
}
