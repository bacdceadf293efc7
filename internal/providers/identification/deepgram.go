// Package identification implements the optional speaker-identification
// provider the recognition dispatcher fans out to alongside transcription
// (spec.md section 4.5). There is no dedicated speaker-ID client anywhere
// in the example pack, so this is grounded on the nearest real capability
// present in the pack's own providers: Deepgram's diarization flag
// (internal/providers/stt/deepgram.go, itself adapted from the teacher's
// pkg/providers/stt/deepgram.go), which returns a per-word speaker index
// alongside the transcript. The dispatcher already runs a concurrent
// second call here per spec.md; this just asks Deepgram to diarize instead
// of introducing an unrelated, ungrounded vendor.
package identification

import (
	"context"
	"fmt"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/providers/stt"
)

// DeepgramID resolves a speaker label from Deepgram's diarization output:
// the most frequent speaker index across the returned words, reported as
// "speaker_<n>". Deepgram doesn't return a cross-utterance speaker
// identity or confidence score, so the confidence is derived from the
// fraction of words attributed to the winning speaker index.
type DeepgramID struct {
	client *stt.DeepgramSTT
}

// NewDeepgramID builds a DeepgramID client.
func NewDeepgramID(apiKey string) *DeepgramID {
	return &DeepgramID{client: stt.NewDeepgramSTT(apiKey)}
}

func (d *DeepgramID) Name() string { return "deepgram-diarize" }

func (d *DeepgramID) Identify(ctx context.Context, pcm []byte, sampleRate int) (string, float64, error) {
	_, words, err := d.client.TranscribeDiarized(ctx, pcm, sampleRate, true)
	if err != nil {
		return "", 0, err
	}
	if len(words) == 0 {
		return "", 0, nil
	}

	counts := map[int]int{}
	for _, w := range words {
		counts[w.Speaker]++
	}
	var best int
	var bestCount int
	for speaker, count := range counts {
		if count > bestCount {
			best, bestCount = speaker, count
		}
	}
	confidence := float64(bestCount) / float64(len(words))
	return fmt.Sprintf("speaker_%d", best), confidence, nil
}
