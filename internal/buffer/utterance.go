// Package buffer accumulates decoded PCM for one utterance until the EoS
// controller decides to flush it to the recognition dispatcher (spec.md
// section 4.3), grounded on original_source's conn.asr_audio accumulation
// in receiveAudioHandle.py.
package buffer

import "sync"

// Utterance accumulates 16kHz mono PCM16LE audio for a single in-progress
// utterance. It is safe for concurrent Append/Flush calls, although the
// session's single-writer discipline means this is not exercised in
// practice: the connection's read loop decodes frames, runs the EoS
// watchdog, and flushes, all on one goroutine.
type Utterance struct {
	mu   sync.Mutex
	data []byte
}

// New creates an empty utterance buffer.
func New() *Utterance {
	return &Utterance{}
}

// Append adds decoded PCM to the buffer. DTX frames carry no PCM and must
// not be passed here — callers skip Append entirely for DTX frames
// (original_source's `conn.asr_audio.clear()`/ignore-on-DTX behavior). Every
// non-DTX frame is appended, voiced or not, so the buffer also holds the
// unvoiced frames around and after the speech.
func (u *Utterance) Append(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	u.mu.Lock()
	u.data = append(u.data, pcm...)
	u.mu.Unlock()
}

// Size returns the number of buffered PCM bytes.
func (u *Utterance) Size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.data)
}

// Flush atomically takes ownership of the buffered audio and resets the
// buffer to empty, so a flush in progress is never appended to mid-drain.
func (u *Utterance) Flush() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.data) == 0 {
		return nil
	}
	out := u.data
	u.data = nil
	return out
}

// Reset discards any buffered audio without returning it (called from the
// connection's teardown on session close).
func (u *Utterance) Reset() {
	u.mu.Lock()
	u.data = nil
	u.mu.Unlock()
}
