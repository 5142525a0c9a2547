package app

import (
	"fmt"

	"github.com/yungbote/draftstudio-backend/internal/config"
	"github.com/yungbote/draftstudio-backend/internal/drafts/snapshot"
	"github.com/yungbote/draftstudio-backend/internal/platform/db"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
	"github.com/yungbote/draftstudio-backend/internal/services"
)

// Stores are the durable homes of drafts and snapshot histories. Both use
// the same backend.
type Stores struct {
	DB        *db.Service
	Drafts    services.DraftRepo
	Snapshots snapshot.Store
}

func wireStores(log *logger.Logger, cfg config.StoreConfig) (Stores, error) {
	log.Info("Wiring stores...", "backend", cfg.Backend, "driver", cfg.Driver)
	if cfg.Backend != config.StoreGorm {
		return Stores{
			Drafts:    services.NewMemoryDraftRepo(),
			Snapshots: snapshot.NewMemoryStore(),
		}, nil
	}

	svc, err := db.Open(db.Config{
		Driver:       cfg.Driver,
		DSN:          cfg.DSN,
		MaxOpenConns: cfg.MaxOpenConns,
	}, log)
	if err != nil {
		return Stores{}, fmt.Errorf("open database: %w", err)
	}
	models := append(snapshot.Models(), services.DraftModels()...)
	if err := svc.Migrate(models...); err != nil {
		_ = svc.Close()
		return Stores{}, fmt.Errorf("automigrate: %w", err)
	}
	return Stores{
		DB:        svc,
		Drafts:    services.NewDraftRepo(svc.DB(), log),
		Snapshots: snapshot.NewGormStore(svc.DB(), log),
	}, nil
}

func (s *Stores) Close() {
	if s == nil || s.DB == nil {
		return
	}
	_ = s.DB.Close()
}
