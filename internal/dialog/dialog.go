// Package dialog implements the dialog driver (spec.md section 4.6):
// intent matching first, then — if no intent consumed the turn — an
// LLM-streamed reply forwarded chunk-by-chunk to the synthesis pump.
// Grounded on original_source's startToChat (receiveAudioHandle.py): intent
// check before chat, display-transcript message before the LLM call, and
// on the teacher's ManagedStream.runLLMAndTTS for the streaming/cancellation
// shape in Go (a per-turn context the caller can cancel between chunks).
package dialog

import (
	"context"
	"sync"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/providers"
)

// Result reports how a turn was handled: either an intent fully answered
// it (Handled true, IntentReply carries the fixed response text if any), or
// the LLM streamed a reply through onToken as Driver.Run executed. Reply
// always carries the full text spoken this turn — the intent's fixed
// response or the LLM's complete streamed output — so the caller can append
// it to the session's dialog history.
type Result struct {
	Handled     bool
	IntentReply string
	Reply       string
}

// Driver wires intent matching to LLM streaming. It holds no per-turn
// state; callers construct one Driver per process and reuse it across
// sessions and turns.
type Driver struct {
	intent providers.IntentProvider
	llm    providers.StreamingLLMProvider
}

// New builds a Driver. intent may be nil to skip intent matching entirely.
func New(intent providers.IntentProvider, llm providers.StreamingLLMProvider) *Driver {
	return &Driver{intent: intent, llm: llm}
}

// Run performs intent matching, then (if unhandled) streams an LLM
// completion against history+transcript, forwarding each token to onToken
// as it arrives. onToken is never called after ctx is cancelled; Run
// returns ctx.Err() promptly once cancellation is observed (spec.md: "must
// honor cancellation ... within one chunk boundary").
//
// onDisplayTranscript is invoked once, before the LLM call begins, to let
// the caller emit the stt display-transcript control message — spec.md
// requires this message precede any tts:* message for the turn.
func (d *Driver) Run(ctx context.Context, transcript string, history []providers.Message, onDisplayTranscript func(string) error, onToken func(string) error) (Result, error) {
	if d.intent != nil {
		handled, reply, err := d.intent.Match(ctx, transcript)
		if err != nil {
			return Result{}, err
		}
		if handled {
			return Result{Handled: true, IntentReply: reply, Reply: reply}, nil
		}
	}

	if err := onDisplayTranscript(transcript); err != nil {
		return Result{}, err
	}

	messages := append(append([]providers.Message(nil), history...), providers.Message{Role: "user", Content: transcript})

	full, err := d.llm.StreamComplete(ctx, messages, func(token string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return onToken(token)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Reply: full}, nil
}

// tokenQueue adapts an onToken push-style callback into the pull-style
// nextToken function internal/synth.Pump.Run expects, so the dialog
// driver's LLM stream and the synthesis pump's sentence accumulation can
// run concurrently: the driver pushes tokens as the LLM emits them, the
// pump pulls them as it builds sentences, and a bounded channel provides
// backpressure between the two without either blocking the inbound
// session reader.
type tokenQueue struct {
	ch     chan string
	closed bool
	mu     sync.Mutex
}

// NewTokenQueue builds a buffered bridge between an LLM token stream and a
// synthesis pump's pull-based token source.
func NewTokenQueue(buffer int) *tokenQueue {
	if buffer <= 0 {
		buffer = 32
	}
	return &tokenQueue{ch: make(chan string, buffer)}
}

// Push enqueues one token; it must not be called after Close.
func (q *tokenQueue) Push(token string) {
	q.ch <- token
}

// Close signals no further tokens will arrive.
func (q *tokenQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Next implements the nextToken contract internal/synth.Pump.Run expects.
func (q *tokenQueue) Next() (string, bool) {
	token, ok := <-q.ch
	return token, ok
}
