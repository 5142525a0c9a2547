package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/draftstudio-backend/internal/drafts/draft"
	"github.com/yungbote/draftstudio-backend/internal/drafts/handoff"
)

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			MaxRequestBytes: 10 << 20,
			CORSOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5173",
			},
		},
		Drafts: DraftsConfig{
			UndoDepth:       draft.DefaultUndoDepth,
			GenerateTimeout: 2 * time.Minute,
			Generator:       GeneratorMock,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
			Driver:  "sqlite",
		},
		Handoff: HandoffConfig{
			Sources:          []string{"campaigns", "composer", "contacts"},
			TTL:              30 * time.Minute,
			Grace:            handoff.DefaultGrace,
			Channels:         ChannelsMemory,
			Ledger:           LedgerMemory,
			LedgerTTL:        handoff.DefaultLedgerTTL,
			LedgerMaxEntries: handoff.DefaultLedgerMaxEntries,
			SweepInterval:    5 * time.Minute,
		},
		Redis:    RedisConfig{Prefix: "drafts"},
		Snapshot: SnapshotConfig{Prefix: "snapshots"},
		OTel:     OTelConfig{ServiceName: "draftstudio", SampleRatio: 0.1},
	}
}

// Load builds the config from defaults, then the optional YAML file named by
// DRAFTS_CONFIG_PATH, then environment variables. Unset variables leave the
// file's values alone.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := strings.TrimSpace(os.Getenv("DRAFTS_CONFIG_PATH")); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.Env = strings.TrimSpace(c.Env)
	if c.Env == "" {
		c.Env = "development"
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.MaxRequestBytes <= 0 {
		c.HTTP.MaxRequestBytes = 10 << 20
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 15 * time.Second
	}

	if c.Drafts.UndoDepth <= 0 {
		return fmt.Errorf("drafts.undo_depth must be positive, got %d", c.Drafts.UndoDepth)
	}
	if c.Drafts.GenerateTimeout <= 0 {
		return errors.New("drafts.generate_timeout must be positive")
	}
	c.Drafts.Generator = strings.ToLower(strings.TrimSpace(c.Drafts.Generator))
	switch c.Drafts.Generator {
	case GeneratorMock:
	case GeneratorOpenAI:
		if strings.TrimSpace(c.OpenAI.APIKey) == "" {
			return errors.New("OPENAI_API_KEY is required when the openai generator is selected")
		}
	default:
		return fmt.Errorf("invalid drafts.generator=%q", c.Drafts.Generator)
	}

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case StoreMemory:
	case StoreGorm:
		switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
		case "postgres":
			if strings.TrimSpace(c.Store.DSN) == "" {
				return errors.New("store.dsn is required for the postgres driver")
			}
		case "sqlite", "":
		default:
			return fmt.Errorf("invalid store.driver=%q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("invalid store.backend=%q", c.Store.Backend)
	}

	h := &c.Handoff
	h.Sources = cleanList(h.Sources)
	if len(h.Sources) == 0 {
		return errors.New("handoff.sources must name at least one source app")
	}
	if h.TTL <= 0 {
		return errors.New("handoff.ttl must be positive")
	}
	if h.Grace < 0 {
		return errors.New("handoff.grace must not be negative")
	}
	// Ledger entries must outlive any envelope they guard.
	if h.LedgerTTL < h.TTL+h.Grace {
		return fmt.Errorf("handoff.ledger_ttl (%s) must be at least ttl+grace (%s)", h.LedgerTTL, h.TTL+h.Grace)
	}
	if h.LedgerMaxEntries <= 0 {
		h.LedgerMaxEntries = handoff.DefaultLedgerMaxEntries
	}
	if h.SweepInterval <= 0 {
		h.SweepInterval = 5 * time.Minute
	}
	h.Channels = strings.ToLower(strings.TrimSpace(h.Channels))
	switch h.Channels {
	case ChannelsMemory:
	case ChannelsRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("REDIS_ADDR is required for redis handoff channels")
		}
	default:
		return fmt.Errorf("invalid handoff.channels=%q", h.Channels)
	}
	h.Ledger = strings.ToLower(strings.TrimSpace(h.Ledger))
	switch h.Ledger {
	case LedgerMemory:
	case LedgerBadger:
		if strings.TrimSpace(c.Badger.Path) == "" && !c.Badger.InMemory {
			return errors.New("DRAFTS_BADGER_PATH is required for the badger ledger")
		}
	default:
		return fmt.Errorf("invalid handoff.ledger=%q", h.Ledger)
	}

	if c.OTel.SampleRatio < 0 {
		c.OTel.SampleRatio = 0
	}
	if c.OTel.SampleRatio > 1 {
		c.OTel.SampleRatio = 1
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
