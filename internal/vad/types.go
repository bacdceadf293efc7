// Package vad implements the two interchangeable voice-activity-detection
// variants named in spec.md section 4.2: an energy-threshold detector with
// no external model, and a neural model detector. Both report through the
// same Result shape so the rest of the pipeline (buffer, EoS controller)
// never has to know which is active.
package vad

// Result is one VAD decision for a single 20ms frame, after the
// frame-window vote has been applied.
type Result struct {
	// Voiced is this single frame's raw classification.
	Voiced bool
	// HaveVoice is true once at least FrameWindowThreshold of the last
	// FrameWindowSize frames were voiced (spec.md 4.2's debounce rule).
	HaveVoice bool
}

// Provider classifies 20ms, 16kHz mono PCM16LE frames as voiced or silent.
// Implementations keep per-session state (calibration, sliding window,
// hysteresis) and must not be shared across sessions.
type Provider interface {
	// Process classifies one frame. frame must be FrameBytes long; shorter
	// trailing frames from a DTX boundary should not be passed in here —
	// callers treat DTX as an implicit non-voiced advance upstream.
	Process(frame []byte) (Result, error)
	// Reset clears calibration and window state (called on session close,
	// not between utterances).
	Reset()
	// Name identifies the variant for logging and metrics labels.
	Name() string
}
