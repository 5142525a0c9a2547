package app

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/draftstudio-backend/internal/config"
	"github.com/yungbote/draftstudio-backend/internal/http"
	httpH "github.com/yungbote/draftstudio-backend/internal/http/handlers"
	"github.com/yungbote/draftstudio-backend/internal/observability"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

type Handlers struct {
	Health    *httpH.HealthHandler
	Drafts    *httpH.DraftHandler
	Snapshots *httpH.SnapshotHandler
	Handoffs  *httpH.HandoffHandler
}

func wireHandlers(log *logger.Logger, stores Stores, clients Clients, svcs Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    httpH.NewHealthHandler(readinessChecks(stores, clients)),
		Drafts:    httpH.NewDraftHandler(svcs.Drafts),
		Snapshots: httpH.NewSnapshotHandler(svcs.Snapshots),
		Handoffs:  httpH.NewHandoffHandler(svcs.Handoffs),
	}
}

func wireRouter(log *logger.Logger, cfg *config.Config, handlers Handlers, metrics *observability.Metrics) *gin.Engine {
	serviceName := ""
	if cfg.OTel.Enabled {
		serviceName = cfg.OTel.ServiceName
	}
	return http.NewRouter(http.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     serviceName,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		MaxRequestBytes: cfg.HTTP.MaxRequestBytes,
		HealthHandler:   handlers.Health,
		DraftHandler:    handlers.Drafts,
		SnapshotHandler: handlers.Snapshots,
		HandoffHandler:  handlers.Handoffs,
	})
}

func readinessChecks(stores Stores, clients Clients) map[string]httpH.ReadinessCheck {
	checks := map[string]httpH.ReadinessCheck{}
	if stores.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := stores.DB.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if clients.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return clients.Redis.Ping(ctx).Err()
		}
	}
	if clients.Badger != nil {
		checks["ledger"] = func(context.Context) error {
			if clients.Badger.IsClosed() {
				return errors.New("badger closed")
			}
			return nil
		}
	}
	return checks
}
