package app

import (
	"context"
	"fmt"

	"github.com/yungbote/draftstudio-backend/internal/config"
	"github.com/yungbote/draftstudio-backend/internal/drafts/handoff"
	"github.com/yungbote/draftstudio-backend/internal/drafts/runner"
	"github.com/yungbote/draftstudio-backend/internal/drafts/snapshot"
	"github.com/yungbote/draftstudio-backend/internal/observability"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
	"github.com/yungbote/draftstudio-backend/internal/services"
)

type Services struct {
	Workspace *services.Workspace
	Runner    *runner.Runner
	Importer  *handoff.Importer
	History   *snapshot.Service

	Drafts    services.DraftService
	Snapshots services.SnapshotService
	Handoffs  services.HandoffService
}

func wireServices(ctx context.Context, log *logger.Logger, cfg *config.Config, stores Stores, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	ws := services.NewWorkspace(stores.Drafts, cfg.Drafts.UndoDepth, log)
	if _, err := ws.Load(ctx); err != nil {
		return Services{}, err
	}

	registry := handoff.NewRegistry()
	if err := registry.RegisterBuiltins(cfg.Handoff.Sources...); err != nil {
		return Services{}, fmt.Errorf("register handoff variants: %w", err)
	}
	log.Info("Handoff variants registered", "variants", registry.Variants())
	importer := handoff.NewImporter(registry, clients.Ledger, nil, log)

	run := runner.New(clients.Generator, cfg.Drafts.GenerateTimeout, log)
	snaps := snapshot.NewService(stores.Snapshots, clients.Persister, log, snapshot.ServiceOptions{})

	return Services{
		Workspace: ws,
		Runner:    run,
		Importer:  importer,
		History:   snaps,
		Drafts:    services.NewDraftService(ws, run, metrics, log),
		Snapshots: services.NewSnapshotService(ws, snaps, metrics, log),
		Handoffs: services.NewHandoffService(ws, snaps, clients.Channels, importer, metrics, log, services.HandoffServiceOptions{
			TTL:   cfg.Handoff.TTL,
			Grace: cfg.Handoff.Grace,
		}),
	}, nil
}
