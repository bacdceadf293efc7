// Package synth implements the synthesis pump (spec.md section 4.7):
// accumulate reply-text chunks into sentences, synthesize each sentence's
// audio, and emit it as a lazy, cancellation-aware, ordered sequence of
// frames. Grounded on the teacher's ManagedStream.runLLMAndTTS
// (pkg/orchestrator/managed_stream.go), which drives TTS the same way —
// one StreamSynthesize call per reply, a per-turn cancellable context, and
// an onChunk callback forwarding audio as it is produced — generalized
// here from one call per whole reply to one call per sentence, since
// spec.md requires a sentence_start control message ahead of each
// sentence's audio, not just once per turn.
package synth

import (
	"context"
	"strings"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/providers"
)

// Kind distinguishes the three frame shapes a Pump emits.
type Kind int

const (
	// SentenceStart carries a sentence's text and no audio; the caller
	// sends a tts:sentence_start control message for it (and, on the very
	// first SentenceStart of a turn, a tts:start message first).
	KindSentenceStart Kind = iota
	// Audio carries one chunk of synthesized PCM/opus bytes.
	KindAudio
	// TurnEnd marks the final frame of the turn; the caller sends
	// tts:stop on receiving it.
	KindTurnEnd
)

// Position marks where a frame falls within the whole turn's audio stream:
// audio frames carry FIRST or MIDDLE, and the closing KindTurnEnd frame
// carries LAST (spec.md: "emitting a lazy finite sequence of audio frames
// annotated with position markers {FIRST, MIDDLE, LAST}").
type Position int

const (
	PositionMiddle Position = iota
	PositionFirst
	PositionLast
)

// Frame is one unit the pump hands to its caller.
type Frame struct {
	Kind     Kind
	Position Position // FIRST or MIDDLE on KindAudio; LAST on KindTurnEnd
	Audio    []byte   // populated only when Kind == KindAudio
	Text     string   // populated only when Kind == KindSentenceStart
}

var sentenceBoundary = []rune{'.', '!', '?', '。', '！', '？', '\n'}

func isSentenceBoundary(r rune) bool {
	for _, b := range sentenceBoundary {
		if r == b {
			return true
		}
	}
	return false
}

// Pump converts a lazy sequence of reply-text chunks into a lazy sequence
// of frames. One Pump is used per ReplyTurn; it holds no state across
// turns.
type Pump struct {
	tts providers.TTSProvider
}

// New builds a Pump against a synthesis provider.
func New(tts providers.TTSProvider) *Pump {
	return &Pump{tts: tts}
}

// Run consumes tokens from nextToken until it returns ok=false (the
// language-model stream is exhausted) or ctx is cancelled, synthesizing
// one sentence at a time and forwarding frames to onFrame in order.
// Cancellation is observed between sentences and between audio chunks
// within a sentence (spec.md: "no work is retained beyond the
// cancellation boundary") — on cancellation Run returns ctx.Err() without
// emitting a KindTurnEnd frame; the caller still issues a TTS-stop control
// message on the cancellation path itself (session/dialog driver
// responsibility, not the pump's).
func (p *Pump) Run(ctx context.Context, nextToken func() (string, bool), onFrame func(Frame) error) error {
	var sentence strings.Builder
	audioEmitted := false

	flush := func() error {
		text := strings.TrimSpace(sentence.String())
		sentence.Reset()
		if text == "" {
			return nil
		}
		return p.speakSentence(ctx, text, &audioEmitted, onFrame)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		token, ok := nextToken()
		if !ok {
			break
		}
		for _, r := range token {
			sentence.WriteRune(r)
			if isSentenceBoundary(r) {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	return onFrame(Frame{Kind: KindTurnEnd, Position: PositionLast})
}

func (p *Pump) speakSentence(ctx context.Context, text string, audioEmitted *bool, onFrame func(Frame) error) error {
	if err := onFrame(Frame{Kind: KindSentenceStart, Text: text}); err != nil {
		return err
	}

	return p.tts.StreamSynthesize(ctx, text, func(chunk []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		pos := PositionMiddle
		if !*audioEmitted {
			pos = PositionFirst
			*audioEmitted = true
		}
		return onFrame(Frame{Kind: KindAudio, Position: pos, Audio: chunk})
	})
}
