package config

import "time"

const (
	StoreMemory = "memory"
	StoreGorm   = "gorm"

	GeneratorMock   = "mock"
	GeneratorOpenAI = "openai"

	LedgerMemory = "memory"
	LedgerBadger = "badger"

	ChannelsMemory = "memory"
	ChannelsRedis  = "redis"
)

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"DRAFTS_HTTP_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"DRAFTS_HTTP_SHUTDOWN_TIMEOUT"`
	MaxRequestBytes int64         `yaml:"max_request_bytes" env:"DRAFTS_HTTP_MAX_REQUEST_BYTES"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"DRAFTS_CORS_ORIGINS" envSeparator:","`
}

type DraftsConfig struct {
	UndoDepth       int           `yaml:"undo_depth" env:"DRAFTS_UNDO_DEPTH"`
	GenerateTimeout time.Duration `yaml:"generate_timeout" env:"DRAFTS_GENERATE_TIMEOUT"`
	Generator       string        `yaml:"generator" env:"DRAFTS_GENERATOR"`
}

type StoreConfig struct {
	// Backend is "memory" or "gorm". Drafts and snapshot histories share it.
	Backend      string `yaml:"backend" env:"DRAFTS_STORE"`
	Driver       string `yaml:"driver" env:"DRAFTS_DB_DRIVER"`
	DSN          string `yaml:"dsn" env:"DRAFTS_DB_DSN"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DRAFTS_DB_MAX_OPEN_CONNS"`
}

type HandoffConfig struct {
	Sources          []string      `yaml:"sources" env:"DRAFTS_HANDOFF_SOURCES" envSeparator:","`
	TTL              time.Duration `yaml:"ttl" env:"DRAFTS_HANDOFF_TTL"`
	Grace            time.Duration `yaml:"grace" env:"DRAFTS_HANDOFF_GRACE"`
	Channels         string        `yaml:"channels" env:"DRAFTS_HANDOFF_CHANNELS"`
	Ledger           string        `yaml:"ledger" env:"DRAFTS_LEDGER"`
	LedgerTTL        time.Duration `yaml:"ledger_ttl" env:"DRAFTS_LEDGER_TTL"`
	LedgerMaxEntries int           `yaml:"ledger_max_entries" env:"DRAFTS_LEDGER_MAX_ENTRIES"`
	SweepInterval    time.Duration `yaml:"sweep_interval" env:"DRAFTS_LEDGER_SWEEP_INTERVAL"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"DRAFTS_REDIS_PREFIX"`
}

type BadgerConfig struct {
	Path     string `yaml:"path" env:"DRAFTS_BADGER_PATH"`
	InMemory bool   `yaml:"in_memory" env:"DRAFTS_BADGER_IN_MEMORY"`
}

type SnapshotConfig struct {
	// Bucket enables durable export to GCS. Empty keeps snapshots local_only.
	Bucket       string `yaml:"bucket" env:"DRAFTS_SNAPSHOT_BUCKET"`
	Prefix       string `yaml:"prefix" env:"DRAFTS_SNAPSHOT_PREFIX"`
	StorageMode  string `yaml:"storage_mode" env:"OBJECT_STORAGE_MODE"`
	EmulatorHost string `yaml:"emulator_host" env:"STORAGE_EMULATOR_HOST"`
	Credentials  string `yaml:"credentials" env:"DRAFTS_SNAPSHOT_CREDENTIALS"`
}

type OpenAIConfig struct {
	APIKey       string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model        string        `yaml:"model" env:"OPENAI_MODEL"`
	BaseURL      string        `yaml:"base_url" env:"OPENAI_BASE_URL"`
	SystemPrompt string        `yaml:"system_prompt" env:"OPENAI_SYSTEM_PROMPT"`
	MaxRetries   int           `yaml:"max_retries" env:"OPENAI_MAX_RETRIES"`
	Timeout      time.Duration `yaml:"timeout" env:"OPENAI_TIMEOUT"`
}

type OTelConfig struct {
	Enabled     bool              `yaml:"enabled" env:"OTEL_ENABLED"`
	ServiceName string            `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
	Version     string            `yaml:"version" env:"APP_VERSION"`
	Endpoint    string            `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure    bool              `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE"`
	Headers     map[string]string `yaml:"headers" env:"OTEL_EXPORTER_OTLP_HEADERS" envSeparator:"," envKeyValSeparator:"="`
	SampleRatio float64           `yaml:"sample_ratio" env:"OTEL_SAMPLER_RATIO"`
}

type LogConfig struct {
	Level         string `yaml:"level" env:"LOG_LEVEL"`
	HashSalt      string `yaml:"hash_salt" env:"LOG_HASH_SALT"`
	DisableRedact bool   `yaml:"disable_redact" env:"LOG_DISABLE_REDACT"`
}

type Config struct {
	Env      string         `yaml:"env" env:"LOG_MODE"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Drafts   DraftsConfig   `yaml:"drafts"`
	Store    StoreConfig    `yaml:"store"`
	Handoff  HandoffConfig  `yaml:"handoff"`
	Redis    RedisConfig    `yaml:"redis"`
	Badger   BadgerConfig   `yaml:"badger"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	OTel     OTelConfig     `yaml:"otel"`
}
