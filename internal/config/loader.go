package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/corerrors"
)

// Load reads a YAML configuration file (if present), falls back to defaults
// for anything unset, then overlays process environment variables — the
// file + environment layering the spec's Configuration collaborator
// describes. A missing path is not an error; a malformed file is.
func Load(path string) (Config, error) {
	// Best-effort .env loading, exactly like the teacher's cmd/agent/main.go.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Providers.TTS == "" {
		return Config{}, fmt.Errorf("config: %w: providers.tts", corerrors.ErrConfigMissing)
	}
	return cfg, nil
}

// Reload re-reads the same snapshot shape from disk. It never mutates a
// Config already handed to a live session — callers swap the returned value
// in for newly accepted connections only, matching
// core/websocket_server.py's update_config().
func Reload(path string) (Config, error) {
	return Load(path)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("XIAOZHI_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("XIAOZHI_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("STT_PROVIDER"); v != "" {
		cfg.Providers.STT = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.Providers.LLM = v
	}
	if v := os.Getenv("TTS_PROVIDER"); v != "" {
		cfg.Providers.TTS = v
	}
	if v := os.Getenv("DTX_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Decoder.DTXThresholdBytes = n
		}
	}
	if v := os.Getenv("WAKE_GUARD_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EoS.WakeGuardMs = n
		}
	}
	if v := os.Getenv("JWT_SECRET_KEY"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = v == "1" || v == "true"
	}
}
