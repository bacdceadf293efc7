package audioio

import (
	"encoding/binary"
	"testing"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
)

func TestDecodePassThroughDTX(t *testing.T) {
	d, err := NewDecoder(config.AudioFormatPCM16_16k, 3, 12, TargetSampleRate, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	frame, err := d.Decode([]byte{0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !frame.DTX {
		t.Fatalf("expected a tiny payload to be classified DTX")
	}
}

func TestDecodePassThroughVoicedFrame(t *testing.T) {
	d, err := NewDecoder(config.AudioFormatPCM16_16k, 3, 12, TargetSampleRate, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := make([]byte, 320)
	frame, err := d.Decode(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.DTX {
		t.Fatalf("expected a full-size payload to not be classified DTX")
	}
	if frame.Rate != TargetSampleRate || frame.Channels != TargetChannels {
		t.Fatalf("expected output format %d/%d, got %d/%d", TargetSampleRate, TargetChannels, frame.Rate, frame.Channels)
	}
	if len(frame.PCM) != len(payload) {
		t.Fatalf("expected pass-through PCM to be unchanged in length, got %d want %d", len(frame.PCM), len(payload))
	}
}

func TestResamplerIdentityWhenRatesMatch(t *testing.T) {
	r := NewResampler(16000, 16000)
	in := []int16{1, 2, 3, 4}
	out := r.Process(in)
	if len(out) != len(in) {
		t.Fatalf("expected identity passthrough, got len %d want %d", len(out), len(in))
	}
}

func TestResamplerDownsamplesFewerSamples(t *testing.T) {
	r := NewResampler(48000, 16000)
	in := make([]int16, 480)
	for i := range in {
		in[i] = int16(i)
	}
	out := r.Process(in)
	if len(out) == 0 || len(out) >= len(in) {
		t.Fatalf("expected downsampling to produce fewer samples, got %d from %d", len(out), len(in))
	}
}

func TestResamplerResetClearsCarriedState(t *testing.T) {
	r := NewResampler(48000, 16000)
	r.Process(make([]int16, 480))
	r.Reset()
	if r.haveLast || r.pos != 0 {
		t.Fatalf("expected Reset to clear carried interpolation state")
	}
}

func TestDownmixToMonoAveragesChannels(t *testing.T) {
	stereo := []int16{10, 20, 30, 40}
	mono := DownmixToMono(stereo, 2)
	if len(mono) != 2 {
		t.Fatalf("expected 2 mono frames, got %d", len(mono))
	}
	if mono[0] != 15 || mono[1] != 35 {
		t.Fatalf("unexpected downmix result: %v", mono)
	}
}

func TestDownmixToMonoPassesThroughAlreadyMono(t *testing.T) {
	mono := []int16{1, 2, 3}
	out := DownmixToMono(mono, 1)
	if len(out) != 3 {
		t.Fatalf("expected mono input to be unchanged, got %v", out)
	}
}

func TestBytesInt16RoundTrip(t *testing.T) {
	samples := []int16{-1000, 0, 1000, 32000}
	b := Int16LEToBytes(samples)
	back := BytesToInt16LE(b)
	for i, v := range samples {
		if back[i] != v {
			t.Fatalf("round-trip mismatch at %d: got %d want %d", i, back[i], v)
		}
	}
}

func TestNewWAVBufferHeaderFields(t *testing.T) {
	pcm := make([]byte, 32)
	buf := NewWAVBuffer(pcm, 16000, 1)
	if string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		t.Fatalf("expected a RIFF/WAVE header")
	}
	sampleRate := binary.LittleEndian.Uint32(buf[24:28])
	if sampleRate != 16000 {
		t.Fatalf("expected sample rate 16000 encoded in header, got %d", sampleRate)
	}
	channels := binary.LittleEndian.Uint16(buf[22:24])
	if channels != 1 {
		t.Fatalf("expected 1 channel encoded in header, got %d", channels)
	}
}

func TestNewWAVBufferDefaultsToMono(t *testing.T) {
	buf := NewWAVBuffer(make([]byte, 8), 8000, 0)
	channels := binary.LittleEndian.Uint16(buf[22:24])
	if channels != 1 {
		t.Fatalf("expected non-positive channel count to default to mono, got %d", channels)
	}
}
