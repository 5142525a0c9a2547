package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/yungbote/draftstudio-backend/internal/config"
	"github.com/yungbote/draftstudio-backend/internal/drafts/snapshot"
	"github.com/yungbote/draftstudio-backend/internal/platform/gcp"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

var newStorageClient = gcp.NewStorageClient

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveSnapshotPersister selects where captured snapshots are exported.
// Without a bucket snapshots stay local_only and no client is opened.
func resolveSnapshotPersister(ctx context.Context, log *logger.Logger, cfg config.SnapshotConfig) (snapshot.Persister, *storage.Client, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		log.Info("Snapshot export disabled; no bucket configured")
		return snapshot.NewNoopPersister(), nil, nil
	}

	storageCfg, err := gcp.ResolveStorageConfig(cfg.StorageMode, cfg.EmulatorHost)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Object storage provider selection failed",
			"mode", cfg.StorageMode,
			"emulator_host", cfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, nil, classified
	}
	storageCfg.Credentials = cfg.Credentials

	log.Info(
		"Selecting object storage provider",
		"mode", storageCfg.Mode,
		"emulator_host", storageCfg.EmulatorHost,
		"bucket", bucket,
	)

	client, err := newStorageClient(ctx, storageCfg)
	if err != nil {
		classified := classifyStorageProviderBootstrapError(storageCfg, err)
		log.Error(
			"Object storage provider bootstrap failed",
			"mode", storageCfg.Mode,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, nil, classified
	}

	persister, err := snapshot.NewGCSPersister(client, bucket, cfg.Prefix, log)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return persister, client, nil
}

func classifyStorageProviderBootstrapError(storageCfg gcp.StorageConfig, err error) error {
	out := &StorageProviderBootstrapError{
		Code:         StorageProviderBootstrapErrorConnectFailed,
		Mode:         string(storageCfg.Mode),
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
	var cfgErr *gcp.StorageConfigError
	if errors.As(err, &cfgErr) {
		if cfgErr.Mode != "" {
			out.Mode = cfgErr.Mode
		}
		switch cfgErr.Code {
		case gcp.StorageConfigErrorInvalidMode:
			out.Code = StorageProviderBootstrapErrorInvalidMode
		case gcp.StorageConfigErrorMissingEmulatorHost:
			out.Code = StorageProviderBootstrapErrorMissingEmulatorHost
		case gcp.StorageConfigErrorInvalidEmulatorHost:
			out.Code = StorageProviderBootstrapErrorInvalidEmulatorHost
		}
	}
	return out
}

func storageProviderBootstrapErrorCode(err error) StorageProviderBootstrapErrorCode {
	var bootstrapErr *StorageProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return StorageProviderBootstrapErrorConnectFailed
}
