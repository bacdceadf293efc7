package audioio

import (
	"fmt"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/corelog"
)

// Frame is the decoder's output for one inbound binary payload.
type Frame struct {
	DTX      bool
	PCM      []byte // 16 kHz mono PCM16LE; empty when DTX
	Rate     int
	Channels int
}

// Decoder implements spec.md section 4.1. One Decoder is owned per session;
// it is not safe for concurrent use (the session's single-writer discipline
// guarantees this).
type Decoder struct {
	format       config.AudioFormat
	dtxBytes     int
	dtxCodecBytes int
	srcRate      int
	srcChannels  int
	opus         *opusDecoder
	logger       corelog.Logger
}

// NewDecoder builds a Decoder for one session's negotiated format.
// srcRate/srcChannels describe the device's compressed codec output before
// downmix/resample; callers pass 16000/1 for devices already encoding at
// the target rate.
func NewDecoder(format config.AudioFormat, dtxThresholdBytes, dtxCodecBoundaryBytes, srcRate, srcChannels int, logger corelog.Logger) (*Decoder, error) {
	if logger == nil {
		logger = corelog.NoOpLogger{}
	}
	d := &Decoder{
		format:        format,
		dtxBytes:      dtxThresholdBytes,
		dtxCodecBytes: dtxCodecBoundaryBytes,
		srcRate:       srcRate,
		srcChannels:   srcChannels,
		logger:        logger,
	}
	if format == config.AudioFormatCompressed {
		dec, err := newOpusDecoder(srcRate, srcChannels)
		if err != nil {
			return nil, err
		}
		d.opus = dec
	}
	return d, nil
}

// Decode consumes one inbound binary payload (spec.md 4.1 contract).
// Decode failures on a single packet are non-fatal: the packet is reported
// as a zero-value Frame with an error the caller should log and continue
// past, never propagate as a session fault.
func (d *Decoder) Decode(payload []byte) (Frame, error) {
	// Pass-through mode: the session already negotiated raw PCM16LE/16kHz.
	if d.format == config.AudioFormatPCM16_16k {
		if len(payload) <= d.dtxBytes {
			return Frame{DTX: true}, nil
		}
		return Frame{PCM: payload, Rate: TargetSampleRate, Channels: TargetChannels}, nil
	}

	// Compressed format: DTX is signalled by a tiny packet at the codec
	// boundary (default 12 bytes) before we ever touch the Opus decoder.
	if len(payload) <= d.dtxCodecBytes {
		return Frame{DTX: true}, nil
	}

	pcm, err := d.opus.decode(payload)
	if err != nil {
		d.logger.Warn("decode-single-frame failed, dropping packet", "len", len(payload), "error", err)
		return Frame{}, fmt.Errorf("audioio: %w", err)
	}

	// A decoded-but-silent packet can still resolve to <= the raw DTX
	// threshold once downmixed; that is a legitimate tiny-frame DTX case at
	// the frame boundary, not a codec boundary one.
	if len(pcm) <= d.dtxBytes {
		return Frame{DTX: true}, nil
	}

	return Frame{PCM: pcm, Rate: TargetSampleRate, Channels: TargetChannels}, nil
}

// Reset clears the resampler's carried state on the compressed path (called
// on session close); the Opus decoder's own inter-frame state is kept.
func (d *Decoder) Reset() {
	if d.opus != nil {
		d.opus.reset()
	}
}
