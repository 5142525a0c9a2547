package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DRAFTS_CONFIG_PATH", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Drafts.UndoDepth != 50 {
		t.Fatalf("undo depth: want=50 got=%d", cfg.Drafts.UndoDepth)
	}
	if cfg.Handoff.LedgerTTL != 24*time.Hour {
		t.Fatalf("ledger ttl: want=24h got=%s", cfg.Handoff.LedgerTTL)
	}
	if cfg.Store.Backend != StoreMemory || cfg.Drafts.Generator != GeneratorMock {
		t.Fatalf("unexpected backends: store=%s generator=%s", cfg.Store.Backend, cfg.Drafts.Generator)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drafts.yaml")
	body := strings.Join([]string{
		"drafts:",
		"  undo_depth: 10",
		"handoff:",
		"  ttl: 5m",
		"  sources: [alpha, beta]",
		"store:",
		"  backend: gorm",
		"  driver: sqlite",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("DRAFTS_CONFIG_PATH", path)
	t.Setenv("DRAFTS_UNDO_DEPTH", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Drafts.UndoDepth != 25 {
		t.Fatalf("env should override file: want=25 got=%d", cfg.Drafts.UndoDepth)
	}
	if cfg.Handoff.TTL != 5*time.Minute {
		t.Fatalf("handoff ttl from file: want=5m got=%s", cfg.Handoff.TTL)
	}
	if got := strings.Join(cfg.Handoff.Sources, ","); got != "alpha,beta" {
		t.Fatalf("sources: want=alpha,beta got=%s", got)
	}
	if cfg.Store.Backend != StoreGorm {
		t.Fatalf("store backend: want=gorm got=%s", cfg.Store.Backend)
	}
	// Values the file does not mention keep their defaults.
	if cfg.Handoff.LedgerTTL != 24*time.Hour {
		t.Fatalf("ledger ttl default lost: got=%s", cfg.Handoff.LedgerTTL)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"zero undo depth":               {"DRAFTS_UNDO_DEPTH": "0"},
		"unknown store":                   {"DRAFTS_STORE": "mongo"},
		"openai without key":         {"DRAFTS_GENERATOR": "openai", "OPENAI_API_KEY": ""},
		"redis without addr":         {"DRAFTS_HANDOFF_CHANNELS": "redis", "REDIS_ADDR": ""},
		"ledger shorter than ttl": {"DRAFTS_LEDGER_TTL": "1m"},
		"postgres without dsn":     {"DRAFTS_STORE": "gorm", "DRAFTS_DB_DRIVER": "postgres", "DRAFTS_DB_DSN": ""},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DRAFTS_CONFIG_PATH", "")
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadParsesOTelHeaders(t *testing.T) {
	t.Setenv("DRAFTS_CONFIG_PATH", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-api-key=abc,x-tenant=t1")
	t.Setenv("OTEL_SAMPLER_RATIO", "3")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OTel.Headers["x-api-key"] != "abc" || cfg.OTel.Headers["x-tenant"] != "t1" {
		t.Fatalf("headers: got=%v", cfg.OTel.Headers)
	}
	if cfg.OTel.SampleRatio != 1 {
		t.Fatalf("sample ratio clamp: want=1 got=%v", cfg.OTel.SampleRatio)
	}
}
