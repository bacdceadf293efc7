// Package providers defines the external-service contracts the dialog
// driver and recognition dispatcher depend on: transcription, speaker
// identification, language-model completion, and speech synthesis.
// Grounded on the teacher's pkg/orchestrator/types.go provider interfaces,
// extended with an identification provider the spec adds.
package providers

import "context"

// Message is one turn in a dialog history, passed to an LLMProvider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// STTProvider transcribes a complete utterance's PCM audio.
type STTProvider interface {
	Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error)
	Name() string
}

// StreamingSTTProvider additionally supports incremental transcription as
// audio arrives, for providers that support it.
type StreamingSTTProvider interface {
	STTProvider
	StreamTranscribe(ctx context.Context, sampleRate int, onTranscript func(transcript string, isFinal bool) error) (chan<- []byte, error)
}

// IdentificationProvider resolves a speaker identity from an utterance's
// audio, independent of and concurrent with transcription (spec.md 4.5).
type IdentificationProvider interface {
	Identify(ctx context.Context, audio []byte, sampleRate int) (speakerID string, confidence float64, err error)
	Name() string
}

// LLMProvider completes a dialog turn given the conversation history.
type LLMProvider interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Name() string
}

// StreamingLLMProvider additionally streams partial completions as tokens
// arrive, letting the synthesis pump start speaking before the full
// response is ready.
type StreamingLLMProvider interface {
	LLMProvider
	StreamComplete(ctx context.Context, messages []Message, onToken func(token string) error) (string, error)
}

// TTSProvider synthesizes speech audio for one block of text.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	StreamSynthesize(ctx context.Context, text string, onChunk func([]byte) error) error
	Name() string
}

// IntentProvider matches a transcript against built-in intents (spec.md's
// supplemented intent-handling feature, grounded on original_source's
// handle_user_intent) before falling through to the LLM.
type IntentProvider interface {
	// Match returns handled=true when the intent fully owns the response
	// (e.g. "stop listening", a device command) and the LLM should not run.
	Match(ctx context.Context, transcript string) (handled bool, response string, err error)
}
