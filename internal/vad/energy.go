package vad

import (
	"math"
	"time"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/audioio"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
)

const silenceFloorDB = -90.0

// EnergyVAD is the no-external-model VAD variant (spec.md 4.2's "energy"
// kind). It is grounded on the teacher's RMSVAD hysteresis/confirmed-frame
// pattern (pkg/orchestrator/vad.go), generalized with the noise-floor
// calibration and dual-threshold gating original_source's webrtc.py
// fallback path performs when the webrtcvad C library isn't available —
// this server never links that C library, so the energy variant always
// runs the degraded dB-gate path the Python fallback describes.
type EnergyVAD struct {
	gateOnDB       float64
	gateOffDeltaDB float64
	tau            time.Duration

	calibrationFrames int
	framesSeen        int
	noiseFloorDB      float64
	prevVoiced        bool

	window *slidingWindow
}

// NewEnergyVAD builds an EnergyVAD from the static VAD configuration.
func NewEnergyVAD(cfg config.VADConfig) *EnergyVAD {
	calibrationFrames := cfg.EnergyCalibrationMs / audioio.FrameDurationMs
	if calibrationFrames < 1 {
		calibrationFrames = 1
	}
	return &EnergyVAD{
		gateOnDB:          cfg.EnergyGateOnDB,
		gateOffDeltaDB:    cfg.EnergyGateOffDeltaDB,
		tau:               time.Duration(cfg.EnergyTauMs) * time.Millisecond,
		calibrationFrames: calibrationFrames,
		noiseFloorDB:      silenceFloorDB,
		window:            newSlidingWindow(cfg.FrameWindowSize, cfg.FrameWindowThreshold),
	}
}

func (v *EnergyVAD) Name() string { return "energy" }

func (v *EnergyVAD) Reset() {
	v.framesSeen = 0
	v.noiseFloorDB = silenceFloorDB
	v.prevVoiced = false
	v.window.reset()
}

// Process classifies one frame using a dB-domain dual threshold around a
// continuously calibrated noise floor: the gate opens gateOnDB above the
// floor and, once open, closes only once the level drops to gateOnDB minus
// gateOffDeltaDB, so a trailing fricative doesn't chop the end of an
// utterance into flicker. The lower close threshold only applies coming
// from an already-voiced frame — closed-to-open always requires the full
// gateOnDB (spec.md 4.2: "returns to unvoiced when it falls to gate_off ≈
// gate_on − 4 dB").
func (v *EnergyVAD) Process(frame []byte) (Result, error) {
	db := frameEnergyDB(frame)

	if v.framesSeen < v.calibrationFrames {
		v.framesSeen++
		v.updateFloor(db)
		return Result{Voiced: false, HaveVoice: v.window.push(false)}, nil
	}

	delta := db - v.noiseFloorDB
	gate := v.gateOnDB
	if v.prevVoiced {
		gate = v.gateOnDB - v.gateOffDeltaDB
	}
	voiced := delta > gate
	if !voiced {
		// Only let quiet frames pull the floor down; loud frames would bias
		// it upward and raise the gate out from under real speech.
		v.updateFloor(db)
	}
	v.prevVoiced = voiced

	return Result{Voiced: voiced, HaveVoice: v.window.push(voiced)}, nil
}

// updateFloor applies a one-pole leaky integrator toward db with the
// configured time constant, evaluated once per 20ms frame.
func (v *EnergyVAD) updateFloor(db float64) {
	if v.tau <= 0 {
		v.noiseFloorDB = db
		return
	}
	alpha := 1 - math.Exp(-float64(audioio.FrameDurationMs)/float64(v.tau.Milliseconds()))
	v.noiseFloorDB += alpha * (db - v.noiseFloorDB)
}

func frameEnergyDB(frame []byte) float64 {
	samples := audioio.BytesToInt16LE(frame)
	if len(samples) == 0 {
		return silenceFloorDB
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms <= 0 {
		return silenceFloorDB
	}
	db := 20 * math.Log10(rms)
	if db < silenceFloorDB {
		return silenceFloorDB
	}
	return db
}
