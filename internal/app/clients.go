package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/draftstudio-backend/internal/config"
	"github.com/yungbote/draftstudio-backend/internal/drafts/handoff"
	"github.com/yungbote/draftstudio-backend/internal/drafts/snapshot"
	"github.com/yungbote/draftstudio-backend/internal/generator"
	"github.com/yungbote/draftstudio-backend/internal/observability"
	"github.com/yungbote/draftstudio-backend/internal/platform/badgerdb"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

// Clients are the external systems the engine talks to. Each one is
// optional and falls back to an in-process implementation.
type Clients struct {
	Redis     *goredis.Client
	Badger    *badgerdb.DB
	Storage   *storage.Client
	Channels  handoff.ChannelStore
	Ledger    handoff.Ledger
	Persister snapshot.Persister
	Generator generator.Generator
}

func wireClients(ctx context.Context, log *logger.Logger, cfg *config.Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Handoff channels
	switch cfg.Handoff.Channels {
	case config.ChannelsRedis:
		rdb, err := handoff.DialRedis(ctx, handoff.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		c.Redis = rdb
		c.Channels = handoff.NewRedisChannels(rdb, cfg.Redis.Prefix, log)
	default:
		c.Channels = handoff.NewMemoryChannels(nil)
	}

	// Import ledger
	switch cfg.Handoff.Ledger {
	case config.LedgerBadger:
		bcfg := badgerdb.DefaultConfig()
		bcfg.Path = cfg.Badger.Path
		bcfg.InMemory = cfg.Badger.InMemory
		bdb, err := badgerdb.Open(bcfg, log)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init badger: %w", err)
		}
		c.Badger = bdb
		c.Ledger = handoff.NewBadgerLedger(bdb.DB, cfg.Handoff.LedgerTTL)
	default:
		c.Ledger = handoff.NewMemoryLedger(cfg.Handoff.LedgerTTL, cfg.Handoff.LedgerMaxEntries, nil)
	}

	// Snapshot export
	persister, client, err := resolveSnapshotPersister(ctx, log, cfg.Snapshot)
	if err != nil {
		c.Close()
		return Clients{}, err
	}
	c.Persister = persister
	c.Storage = client

	// Generator
	var gen generator.Generator
	switch cfg.Drafts.Generator {
	case config.GeneratorOpenAI:
		gen, err = generator.NewOpenAI(generator.OpenAIConfig{
			APIKey:       cfg.OpenAI.APIKey,
			Model:        cfg.OpenAI.Model,
			BaseURL:      cfg.OpenAI.BaseURL,
			SystemPrompt: cfg.OpenAI.SystemPrompt,
			MaxRetries:   cfg.OpenAI.MaxRetries,
			Timeout:      cfg.OpenAI.Timeout,
		}, log)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init openai generator: %w", err)
		}
	default:
		gen = generator.NewMock()
	}
	c.Generator = instrumentGenerator(gen, metrics)

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Badger != nil {
		_ = c.Badger.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
