package gcp

import (
	"errors"
	"testing"
)

func TestResolveStorageConfigDefaultGCS(t *testing.T) {
	cfg, err := ResolveStorageConfig("", "")
	if err != nil {
		t.Fatalf("ResolveStorageConfig: %v", err)
	}
	if cfg.Mode != StorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", StorageModeGCS, cfg.Mode)
	}
}

func TestResolveStorageConfigExplicitGCSIgnoresEmulator(t *testing.T) {
	cfg, err := ResolveStorageConfig("gcs", "http://fake-gcs:4443")
	if err != nil {
		t.Fatalf("ResolveStorageConfig: %v", err)
	}
	if cfg.Mode != StorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", StorageModeGCS, cfg.Mode)
	}
}

func TestResolveStorageConfigEmulatorFallback(t *testing.T) {
	cfg, err := ResolveStorageConfig("", "http://fake-gcs:4443/")
	if err != nil {
		t.Fatalf("ResolveStorageConfig: %v", err)
	}
	if cfg.Mode != StorageModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", StorageModeGCSEmulator, cfg.Mode)
	}
	if cfg.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("emulator host: want=%q got=%q", "http://fake-gcs:4443", cfg.EmulatorHost)
	}
}

func TestResolveStorageConfigRejects(t *testing.T) {
	cases := []struct {
		mode, host string
		code       StorageConfigErrorCode
	}{
		{"local", "", StorageConfigErrorInvalidMode},
		{"gcs_emulator", "", StorageConfigErrorMissingEmulatorHost},
		{"gcs_emulator", "fake-gcs:4443", StorageConfigErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		_, err := ResolveStorageConfig(tc.mode, tc.host)
		var cfgErr *StorageConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("ResolveStorageConfig(%q, %q): expected StorageConfigError, got=%v", tc.mode, tc.host, err)
		}
		if cfgErr.Code != tc.code {
			t.Fatalf("ResolveStorageConfig(%q, %q) code: want=%q got=%q", tc.mode, tc.host, tc.code, cfgErr.Code)
		}
	}
}

func TestClientOptionsPrefersExplicitCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	if opts := ClientOptions(""); len(opts) != 0 {
		t.Fatalf("no credentials: want=0 options got=%d", len(opts))
	}
	if opts := ClientOptions(`{"type":"service_account"}`); len(opts) != 1 {
		t.Fatalf("inline json: want=1 option got=%d", len(opts))
	}

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/keys/drafts.json")
	if opts := ClientOptions(""); len(opts) != 1 {
		t.Fatalf("env fallback: want=1 option got=%d", len(opts))
	}
}
