package vad

import (
	"fmt"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
)

// New selects and constructs the configured VAD variant (spec.md 4.2).
func New(cfg config.VADConfig) (Provider, error) {
	switch cfg.Kind {
	case config.VADKindEnergy, "":
		return NewEnergyVAD(cfg), nil
	case config.VADKindModel:
		return NewModelVAD(cfg)
	default:
		return nil, fmt.Errorf("vad: unknown kind %q", cfg.Kind)
	}
}
