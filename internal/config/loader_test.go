package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"XIAOZHI_HOST", "XIAOZHI_PORT", "STT_PROVIDER", "LLM_PROVIDER",
		"TTS_PROVIDER", "DTX_THRESHOLD", "WAKE_GUARD_MS", "JWT_SECRET_KEY",
		"AUTH_ENABLED",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingPathUsesDefaults(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Fatalf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Providers.TTS != "lokutor" {
		t.Fatalf("expected default tts provider lokutor, got %q", cfg.Providers.TTS)
	}
}

func TestLoadNonexistentFileIsNotAnError(t *testing.T) {
	clearProviderEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("expected a missing file to fall back to defaults, got error: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("expected default host, got %q", cfg.Server.Host)
	}
}

func TestLoadMalformedYAMLIsAnError(t *testing.T) {
	clearProviderEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [this is not valid: yaml"), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected malformed YAML to be rejected")
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	clearProviderEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlBody := "server:\n  port: 9999\nproviders:\n  stt: openai\n  llm: openai\n  tts: lokutor\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("expected file override for port, got %d", cfg.Server.Port)
	}
	if cfg.Providers.STT != "openai" {
		t.Fatalf("expected file override for stt provider, got %q", cfg.Providers.STT)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("XIAOZHI_PORT", "7000")
	t.Setenv("STT_PROVIDER", "deepgram")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Fatalf("expected env override for port, got %d", cfg.Server.Port)
	}
	if cfg.Providers.STT != "deepgram" {
		t.Fatalf("expected env override for stt provider, got %q", cfg.Providers.STT)
	}
}

func TestLoadMissingTTSProviderIsAnError(t *testing.T) {
	clearProviderEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("providers:\n  tts: \"\"\n"), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an empty tts provider to be rejected")
	}
}
