package handoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

var (
	ErrHandoffExpired  = errors.New("handoff expired")
	ErrHandoffAbsent   = errors.New("no pending handoff")
	ErrAlreadyImported = errors.New("payload already imported into target")
	ErrPlanStale       = errors.New("handoff changed since it was planned")
)

var tracer = otel.Tracer("github.com/yungbote/draftstudio-backend/internal/drafts/handoff")

// Block names why an import cannot run.
type Block string

const (
	BlockNone            Block = ""
	BlockExpired         Block = "expired"
	BlockAbsent          Block = "absent"
	BlockScopeMismatch   Block = "scope_mismatch"
	BlockAlreadyImported Block = "already_imported"
	BlockInvalidPayload  Block = "invalid_payload"
)

func (b Block) Err() error {
	switch b {
	case BlockNone:
		return nil
	case BlockExpired:
		return ErrHandoffExpired
	case BlockAbsent:
		return ErrHandoffAbsent
	case BlockScopeMismatch:
		return ErrScopeMismatch
	case BlockAlreadyImported:
		return ErrAlreadyImported
	default:
		return ErrInvalidPayload
	}
}

// Plan is what the receiver shows before the user applies a handoff.
// Dismissing is always possible; applying only when CanApply is set.
type Plan struct {
	State         ReadState
	Envelope      Envelope
	Payload       Payload
	Hash          string
	Target        string
	ReceiverScope string
	CanApply      bool
	Block         Block
	Detail        string
}

// Resolver enriches a decoded payload before apply, typically by fetching
// richer records from a remote system.
type Resolver interface {
	Resolve(ctx context.Context, env Envelope, p Payload) (Payload, error)
}

type ResolverFunc func(ctx context.Context, env Envelope, p Payload) (Payload, error)

func (f ResolverFunc) Resolve(ctx context.Context, env Envelope, p Payload) (Payload, error) {
	return f(ctx, env, p)
}

type Importer struct {
	log      *logger.Logger
	registry *Registry
	ledger   Ledger
	resolver Resolver
	// serializes applies so two callers cannot both pass the ledger check.
	applyMu sync.Mutex
}

func NewImporter(registry *Registry, ledger Ledger, resolver Resolver, baseLog *logger.Logger) *Importer {
	return &Importer{
		log:      baseLog.With("service", "HandoffImporter"),
		registry: registry,
		ledger:   ledger,
		resolver: resolver,
	}
}

func (i *Importer) Plan(ctx context.Context, ch *Channel, receiverScope, target string) (Plan, error) {
	target = strings.TrimSpace(target)
	plan := Plan{Target: target, ReceiverScope: strings.TrimSpace(receiverScope)}

	res, err := ch.Read(ctx)
	if err != nil {
		return Plan{}, err
	}
	plan.State = res.State
	plan.Envelope = res.Envelope
	switch res.State {
	case StateAbsent:
		plan.Block = BlockAbsent
		return plan, nil
	case StateExpired:
		plan.Block = BlockExpired
		return plan, nil
	}

	if err := CheckScope(res.Envelope.ScopeID, plan.ReceiverScope); err != nil {
		plan.Block = BlockScopeMismatch
		return plan, nil
	}

	payload, err := i.registry.Decode(res.Envelope)
	if err != nil {
		plan.Block = BlockInvalidPayload
		plan.Detail = err.Error()
		return plan, nil
	}
	plan.Payload = payload

	hash, err := res.Envelope.Hash()
	if err != nil {
		plan.Block = BlockInvalidPayload
		plan.Detail = err.Error()
		return plan, nil
	}
	plan.Hash = hash

	if target == "" {
		return plan, fmt.Errorf("import target is required")
	}
	seen, err := i.ledger.Has(ctx, target, hash)
	if err != nil {
		return Plan{}, err
	}
	if seen {
		plan.Block = BlockAlreadyImported
		return plan, nil
	}
	plan.CanApply = true
	return plan, nil
}

// Apply runs apply for a plan that allowed it. The channel and ledger are
// re-checked first; if apply fails nothing is recorded and the envelope
// stays pending, so a handoff is never partially applied.
func (i *Importer) Apply(ctx context.Context, ch *Channel, plan Plan, apply func(context.Context, Payload) error) (Plan, error) {
	ctx, span := tracer.Start(ctx, "handoff.Apply")
	defer span.End()
	span.SetAttributes(
		attribute.String("handoff.channel", ch.Key().String()),
		attribute.String("handoff.target", plan.Target),
	)

	if !plan.CanApply {
		return plan, plan.Block.Err()
	}

	i.applyMu.Lock()
	defer i.applyMu.Unlock()

	fresh, err := i.Plan(ctx, ch, plan.ReceiverScope, plan.Target)
	if err != nil {
		return plan, err
	}
	if !fresh.CanApply {
		return fresh, fresh.Block.Err()
	}
	if fresh.Hash != plan.Hash {
		return fresh, ErrPlanStale
	}

	payload := fresh.Payload
	if i.resolver != nil {
		resolved, err := i.resolver.Resolve(ctx, fresh.Envelope, payload)
		if err != nil {
			span.RecordError(err)
			return fresh, fmt.Errorf("resolve handoff payload: %w", err)
		}
		payload = resolved
	}

	if err := apply(ctx, payload); err != nil {
		span.RecordError(err)
		return fresh, err
	}

	if err := i.ledger.Record(ctx, fresh.Target, fresh.Hash); err != nil {
		// The content is applied; a missing ledger entry only weakens the
		// duplicate guard.
		i.log.Warn("Failed to record handoff import", "target", fresh.Target, "hash", fresh.Hash, "error", err)
	}
	if err := ch.Consume(ctx); err != nil {
		i.log.Warn("Failed to clear handoff channel", "channel", ch.Key().String(), "error", err)
	}

	i.log.Info("Handoff applied", "source_app", fresh.Envelope.SourceApp, "kind", fresh.Envelope.Type, "target", fresh.Target)
	fresh.CanApply = false
	fresh.Block = BlockAlreadyImported
	return fresh, nil
}
