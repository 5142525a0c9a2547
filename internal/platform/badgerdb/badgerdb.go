package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

type Config struct {
	// Path is ignored when InMemory is set.
	Path              string
	InMemory          bool
	SyncWrites        bool
	NumVersionsToKeep int
	GCInterval        time.Duration
	GCDiscardRatio    float64
}

func DefaultConfig() Config {
	return Config{
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
	}
}

// InMemoryConfig is for tests: no disk, no sync, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true, NumVersionsToKeep: 1}
}

type badgerLogger struct {
	log *logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

// DB wraps a badger instance with the GC settings it was opened with.
type DB struct {
	*badger.DB
	log        *logger.Logger
	gcInterval time.Duration
	gcRatio    float64
}

func Open(cfg Config, baseLog *logger.Logger) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for a persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	versions := cfg.NumVersionsToKeep
	if versions <= 0 {
		versions = 1
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(versions)

	var serviceLog *logger.Logger
	if baseLog != nil {
		serviceLog = baseLog.With("service", "BadgerDB")
		opts = opts.WithLogger(&badgerLogger{log: serviceLog})
	} else {
		serviceLog = logger.NewNop()
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	serviceLog.Info("Badger opened", "path", cfg.Path, "in_memory", cfg.InMemory)
	return &DB{DB: db, log: serviceLog, gcInterval: cfg.GCInterval, gcRatio: cfg.GCDiscardRatio}, nil
}

// RunGC triggers value log GC every interval until ctx is done. It returns
// nil on cancellation so it can run inside an errgroup.
func (d *DB) RunGC(ctx context.Context) error {
	if d.gcInterval <= 0 || d.DB.Opts().InMemory {
		<-ctx.Done()
		return nil
	}
	ratio := d.gcRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	ticker := time.NewTicker(d.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := d.DB.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				d.log.Warn("Badger value log GC failed", "error", err)
			}
		}
	}
}
