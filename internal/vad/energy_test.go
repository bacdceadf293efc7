package vad

import (
	"math"
	"testing"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/audioio"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
)

func toneFrame(t *testing.T, amplitude float64) []byte {
	t.Helper()
	samples := make([]int16, audioio.FrameSamples)
	for i := range samples {
		samples[i] = int16(amplitude * math.Sin(float64(i)*0.3) * 32767)
	}
	return audioio.Int16LEToBytes(samples)
}

func silentFrame() []byte {
	return make([]byte, audioio.FrameBytes)
}

func TestEnergyVADCalibratesThenDetectsVoice(t *testing.T) {
	cfg := config.Default().VAD
	cfg.EnergyCalibrationMs = 40 // 2 frames
	v := NewEnergyVAD(cfg)

	for i := 0; i < 2; i++ {
		res, err := v.Process(silentFrame())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Voiced {
			t.Fatalf("calibration frame %d should never report voiced", i)
		}
	}

	var lastVoiced bool
	for i := 0; i < 10; i++ {
		res, err := v.Process(toneFrame(t, 0.8))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lastVoiced = res.Voiced
	}
	if !lastVoiced {
		t.Fatalf("expected loud tone to register as voiced after calibration")
	}
}

func TestEnergyVADStaysQuietOnSilence(t *testing.T) {
	cfg := config.Default().VAD
	cfg.EnergyCalibrationMs = 20
	v := NewEnergyVAD(cfg)

	for i := 0; i < 20; i++ {
		res, err := v.Process(silentFrame())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Voiced {
			t.Fatalf("silence should never register as voiced, frame %d", i)
		}
	}
}

func TestEnergyVADResetClearsCalibration(t *testing.T) {
	cfg := config.Default().VAD
	cfg.EnergyCalibrationMs = 20
	v := NewEnergyVAD(cfg)
	v.Process(toneFrame(t, 0.5))
	v.Reset()
	if v.framesSeen != 0 {
		t.Fatalf("expected framesSeen reset to 0, got %d", v.framesSeen)
	}
}
