package gcp

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

type StorageConfig struct {
	Mode         StorageMode
	EmulatorHost string
	// Credentials is inline JSON or a key file path. Ignored by the emulator.
	Credentials string
}

type StorageConfigErrorCode string

const (
	StorageConfigErrorInvalidMode         StorageConfigErrorCode = "invalid_mode"
	StorageConfigErrorMissingEmulatorHost StorageConfigErrorCode = "missing_emulator_host"
	StorageConfigErrorInvalidEmulatorHost StorageConfigErrorCode = "invalid_emulator_host"
)

type StorageConfigError struct {
	Code         StorageConfigErrorCode
	Mode         string
	EmulatorHost string
	Msg          string
}

func (e *StorageConfigError) Error() string {
	if e == nil {
		return "invalid storage config"
	}
	return e.Msg
}

// ResolveStorageConfig picks the storage mode. An empty mode with an
// emulator host selects the emulator, so local compose setups only need
// STORAGE_EMULATOR_HOST.
func ResolveStorageConfig(rawMode, emulatorHost string) (StorageConfig, error) {
	cfg := StorageConfig{EmulatorHost: strings.TrimRight(strings.TrimSpace(emulatorHost), "/")}
	switch mode := StorageMode(strings.ToLower(strings.TrimSpace(rawMode))); mode {
	case "":
		cfg.Mode = StorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = StorageModeGCSEmulator
		}
	case StorageModeGCS, StorageModeGCSEmulator:
		cfg.Mode = mode
	default:
		return cfg, &StorageConfigError{
			Code:         StorageConfigErrorInvalidMode,
			Mode:         rawMode,
			EmulatorHost: cfg.EmulatorHost,
			Msg:          fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", rawMode, StorageModeGCS, StorageModeGCSEmulator),
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg StorageConfig) Validate() error {
	switch cfg.Mode {
	case StorageModeGCS:
		return nil
	case StorageModeGCSEmulator:
	default:
		return &StorageConfigError{
			Code: StorageConfigErrorInvalidMode,
			Mode: string(cfg.Mode),
			Msg:  fmt.Sprintf("invalid storage mode %q", cfg.Mode),
		}
	}
	if cfg.EmulatorHost == "" {
		return &StorageConfigError{
			Code: StorageConfigErrorMissingEmulatorHost,
			Mode: string(cfg.Mode),
			Msg:  fmt.Sprintf("storage mode %q requires STORAGE_EMULATOR_HOST to be set", StorageModeGCSEmulator),
		}
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return &StorageConfigError{
			Code:         StorageConfigErrorInvalidEmulatorHost,
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Msg:          fmt.Sprintf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", cfg.EmulatorHost),
		}
	}
	return nil
}

func NewStorageClient(ctx context.Context, cfg StorageConfig) (*storage.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == StorageModeGCSEmulator {
		// The storage client reads the emulator endpoint from the environment.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := ClientOptions(cfg.Credentials)
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}
