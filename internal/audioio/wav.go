// Package audioio implements the frame decoder (spec.md section 4.1): DTX
// detection, Opus decode, downmix/resample to 16 kHz mono, and the WAV
// envelope some STT providers require.
package audioio

import (
	"bytes"
	"encoding/binary"
)

// NewWAVBuffer wraps raw 16-bit little-endian PCM in a minimal RIFF/WAVE
// header; a non-positive channel count is written as mono. Adapted from the teacher's pkg/audio/wav.go, generalized to take an
// explicit channel count (the teacher always assumed mono).
func NewWAVBuffer(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	buf := new(bytes.Buffer)
	blockAlign := channels * 2
	byteRate := sampleRate * blockAlign

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
