package vad

import (
	"fmt"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
)

// modelWindowSamples is the neural engine's native inference window (512
// samples / 32ms at 16kHz for the Silero VAD v5 graph), independent of the
// pipeline's 20ms frame size. ModelVAD accumulates frames into this window
// itself so callers never need to know the engine's native chunking.
const modelWindowSamples = 512

// ModelVAD is the neural-model VAD variant (spec.md 4.2's "model" kind). It
// wraps a build-tag-selected inference engine — the real ONNX Runtime
// backend when built with -tags silero, a deterministic stub otherwise —
// grounded on nupi-ai-plugin-vad-local-silero's engine.Engine split.
type ModelVAD struct {
	engine    nativeEngine
	gateHigh  float64
	gateLow   float64
	lastVoice bool

	pcmBuf []byte
	window *slidingWindow
}

// nativeEngine is the subset of the neural backend ModelVAD depends on.
// It is satisfied by both the real ONNX session and the deterministic stub.
type nativeEngine interface {
	Infer(window []byte) (prob float64, err error)
	Reset()
	Close() error
}

// NewModelVAD builds a ModelVAD, preferring the compiled-in native engine
// and falling back to the deterministic stub when the build lacks the
// silero tag (or the shared library can't be resolved at runtime).
func NewModelVAD(cfg config.VADConfig) (*ModelVAD, error) {
	eng, err := newNativeEngine(cfg.ModelThresholdHigh)
	if err != nil {
		eng = newStubEngine()
	}
	return &ModelVAD{
		engine:   eng,
		gateHigh: cfg.ModelThresholdHigh,
		gateLow:  cfg.ModelThresholdLow,
		window:   newSlidingWindow(cfg.FrameWindowSize, cfg.FrameWindowThreshold),
	}, nil
}

func (v *ModelVAD) Name() string { return "model" }

func (v *ModelVAD) Reset() {
	v.engine.Reset()
	v.pcmBuf = v.pcmBuf[:0]
	v.lastVoice = false
	v.window.reset()
}

// Process buffers the incoming 20ms frame and runs inference once enough
// samples have accumulated for the engine's native window, applying the
// dual-threshold hysteresis original_source's silero.py performs (a
// probability between the two thresholds holds the previous verdict rather
// than flipping on every frame).
func (v *ModelVAD) Process(frame []byte) (Result, error) {
	v.pcmBuf = append(v.pcmBuf, frame...)

	voiced := v.lastVoice
	windowBytes := modelWindowSamples * 2
	for len(v.pcmBuf) >= windowBytes {
		chunk := v.pcmBuf[:windowBytes]
		v.pcmBuf = v.pcmBuf[windowBytes:]

		prob, err := v.engine.Infer(chunk)
		if err != nil {
			return Result{}, fmt.Errorf("vad: model inference: %w", err)
		}

		switch {
		case prob >= v.gateHigh:
			voiced = true
		case prob <= v.gateLow:
			voiced = false
		}
		v.lastVoice = voiced
	}

	return Result{Voiced: voiced, HaveVoice: v.window.push(voiced)}, nil
}

// Close releases the underlying engine's resources (ONNX session handles
// under the silero build tag; a no-op for the stub).
func (v *ModelVAD) Close() error {
	return v.engine.Close()
}
