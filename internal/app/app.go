package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/draftstudio-backend/internal/config"
	"github.com/yungbote/draftstudio-backend/internal/drafts/handoff"
	httpapi "github.com/yungbote/draftstudio-backend/internal/http"
	"github.com/yungbote/draftstudio-backend/internal/observability"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      *config.Config
	Router   *gin.Engine
	Metrics  *observability.Metrics
	Stores   Stores
	Clients  Clients
	Services Services

	server       *http.Server
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.NewWithOptions(cfg.Env, logger.Options{
		Level:         cfg.Log.Level,
		HashSalt:      cfg.Log.HashSalt,
		DisableRedact: cfg.Log.DisableRedact,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := NewWithConfig(context.Background(), cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

// NewWithConfig wires the application from an already loaded config.
func NewWithConfig(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	otelShutdown := observability.InitOTel(ctx, log, cfg.Env, cfg.OTel)
	metrics := observability.NewMetrics()

	stores, err := wireStores(log, cfg.Store)
	if err != nil {
		return nil, err
	}
	clients, err := wireClients(ctx, log, cfg, metrics)
	if err != nil {
		stores.Close()
		return nil, err
	}
	svcs, err := wireServices(ctx, log, cfg, stores, clients, metrics)
	if err != nil {
		clients.Close()
		stores.Close()
		return nil, err
	}
	router := wireRouter(log, cfg, wireHandlers(log, stores, clients, svcs), metrics)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Router:       router,
		Metrics:      metrics,
		Stores:       stores,
		Clients:      clients,
		Services:     svcs,
		server:       httpapi.NewServer(cfg.HTTP.Addr, router),
		otelShutdown: otelShutdown,
	}, nil
}

// Run serves until ctx is done, then drains in-flight requests and
// releases every client.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.server == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Log.Info("HTTP server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	if l, ok := a.Clients.Ledger.(*handoff.MemoryLedger); ok {
		g.Go(func() error { return l.RunSweeper(gctx, a.Cfg.Handoff.SweepInterval) })
	}
	if a.Clients.Badger != nil {
		g.Go(func() error { return a.Clients.Badger.RunGC(gctx) })
	}

	err := g.Wait()
	a.Close()
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.Runner != nil {
		a.Services.Runner.Close()
	}
	// Background snapshot exports still need the storage client.
	if a.Services.History != nil {
		a.Services.History.Wait()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	a.Clients.Close()
	a.Stores.Close()
	if a.Log != nil {
		a.Log.Sync()
	}
}
