// Package corerrors holds the sentinel errors shared across the pipeline,
// one per error kind named in SPEC_FULL.md section 2.3.
package corerrors

import "errors"

var (
	// ErrEmptyTranscript is returned (never fatal) when transcription yields
	// no text; the dialog driver must not be invoked in this case.
	ErrEmptyTranscript = errors.New("xiaozhi: transcription returned empty text")

	// ErrTranscriptionFailed covers provider errors and timeouts during STT.
	ErrTranscriptionFailed = errors.New("xiaozhi: speech-to-text failed")

	// ErrIdentificationFailed covers speaker-ID provider errors and timeouts.
	// Non-fatal: the caller proceeds without a speaker label.
	ErrIdentificationFailed = errors.New("xiaozhi: speaker identification failed")

	// ErrLLMStreamFailed covers mid-stream language-model failures.
	ErrLLMStreamFailed = errors.New("xiaozhi: language model stream failed")

	// ErrSynthesisFailed covers text-to-speech provider failures.
	ErrSynthesisFailed = errors.New("xiaozhi: speech synthesis failed")

	// ErrAuthFailed is returned when a connection fails authentication; the
	// session must close the socket immediately without further processing.
	ErrAuthFailed = errors.New("xiaozhi: authentication failed")

	// ErrSocketIO covers any read/write failure on the device socket.
	ErrSocketIO = errors.New("xiaozhi: socket I/O failed")

	// ErrConfigMissing is returned at boot when a required configuration
	// field is absent; callers should exit non-zero.
	ErrConfigMissing = errors.New("xiaozhi: required configuration missing")

	// ErrNilProvider guards constructors against a missing collaborator.
	ErrNilProvider = errors.New("xiaozhi: required provider is nil")

	// ErrBufferTooSmall names a flush attempted below the minimum PCM size
	// guard. eos.Controller does not return it: it handles that case by
	// reverting to VOICED without flushing.
	ErrBufferTooSmall = errors.New("xiaozhi: utterance buffer below minimum size")
)
