package audioio

import (
	"fmt"

	"layeh.com/gopus"
)

// TargetSampleRate and TargetChannels are the pipeline's fixed output format
// (spec.md section 1: "16 kHz mono").
const (
	TargetSampleRate = 16000
	TargetChannels   = 1
	FrameDurationMs  = 20
	FrameSamples     = TargetSampleRate * FrameDurationMs / 1000 // 320
	FrameBytes       = FrameSamples * 2                          // 640
)

// opusDecoder wraps a gopus decoder for one connection's compressed stream.
// Each session owns its own decoder so Opus's inter-frame state (and our
// resampler's carried state) is never shared across connections — grounded
// on MrWong99-glyphoxa's per-participant opusDecoder.
type opusDecoder struct {
	dec        *gopus.Decoder
	srcRate    int
	srcChannels int
	resampler  *Resampler
}

func newOpusDecoder(srcRate, srcChannels int) (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(srcRate, srcChannels)
	if err != nil {
		return nil, fmt.Errorf("audioio: create opus decoder: %w", err)
	}
	return &opusDecoder{
		dec:         dec,
		srcRate:     srcRate,
		srcChannels: srcChannels,
		resampler:   NewResampler(srcRate, TargetSampleRate),
	}, nil
}

// decode decodes one Opus packet and returns 16 kHz mono PCM16LE bytes,
// downmixing and resampling as needed (spec.md 4.1).
func (d *opusDecoder) decode(packet []byte) ([]byte, error) {
	frameSize := d.srcRate * FrameDurationMs / 1000
	pcm, err := d.dec.Decode(packet, frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audioio: opus decode: %w", err)
	}

	mono := DownmixToMono(pcm, d.srcChannels)
	if d.srcRate != TargetSampleRate {
		mono = d.resampler.Process(mono)
	}
	return Int16LEToBytes(mono), nil
}

func (d *opusDecoder) reset() {
	d.resampler.Reset()
}
