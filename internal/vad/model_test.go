package vad

import (
	"testing"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/audioio"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
)

func TestModelVADFallsBackToStubWithoutNativeBackend(t *testing.T) {
	cfg := config.Default().VAD
	cfg.Kind = config.VADKindModel
	v, err := NewModelVAD(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer v.Close()

	if _, ok := v.engine.(*stubEngine); !ok {
		t.Fatalf("expected stub engine fallback when built without the silero tag, got %T", v.engine)
	}
}

func TestModelVADAccumulatesToNativeWindow(t *testing.T) {
	cfg := config.Default().VAD
	v, err := NewModelVAD(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer v.Close()

	frame := make([]byte, audioio.FrameBytes)
	for i := 0; i < 5; i++ {
		if _, err := v.Process(frame); err != nil {
			t.Fatalf("unexpected error on frame %d: %v", i, err)
		}
	}
	// 5 frames of 640 bytes = 3200 bytes; three 1024-byte windows ran, 128 remain.
	if got, want := len(v.pcmBuf), 5*audioio.FrameBytes-3*modelWindowSamples*2; got != want {
		t.Fatalf("expected %d leftover bytes after windowed inference, got %d", want, got)
	}
}
