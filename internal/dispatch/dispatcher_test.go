package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
)

type fakeSTT struct {
	transcript string
	err        error
	delay      time.Duration
}

func (f *fakeSTT) Name() string { return "fake-stt" }
func (f *fakeSTT) Transcribe(ctx context.Context, audio []byte, sampleRate int) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.transcript, f.err
}

type fakeIdent struct {
	speakerID  string
	confidence float64
	err        error
}

func (f *fakeIdent) Name() string { return "fake-ident" }
func (f *fakeIdent) Identify(ctx context.Context, audio []byte, sampleRate int) (string, float64, error) {
	return f.speakerID, f.confidence, f.err
}

func TestDispatchJoinsBothTasks(t *testing.T) {
	stt := &fakeSTT{transcript: "hello world"}
	ident := &fakeIdent{speakerID: "alice", confidence: 0.9}
	cfg := config.DispatchConfig{
		TranscriptionTimeout:  time.Second,
		IdentificationTimeout: time.Second,
		IdentificationEnabled: true,
	}
	d := New(stt, ident, cfg)

	res, err := d.Dispatch(context.Background(), Utterance{PCM: []byte{1, 2, 3}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Transcript != "hello world" {
		t.Fatalf("expected transcript, got %q", res.Transcript)
	}
	if res.SpeakerID != "alice" {
		t.Fatalf("expected speaker id, got %q", res.SpeakerID)
	}
}

func TestDispatchTranscriptionFailureDoesNotBlockIdentification(t *testing.T) {
	stt := &fakeSTT{err: errors.New("stt exploded")}
	ident := &fakeIdent{speakerID: "bob", confidence: 0.7}
	cfg := config.DispatchConfig{
		TranscriptionTimeout:  time.Second,
		IdentificationTimeout: time.Second,
		IdentificationEnabled: true,
	}
	d := New(stt, ident, cfg)

	res, err := d.Dispatch(context.Background(), Utterance{PCM: []byte{1, 2, 3}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TranscriptErr == nil {
		t.Fatalf("expected a transcription error to be recorded")
	}
	if res.SpeakerID != "bob" {
		t.Fatalf("expected identification to still complete, got %q", res.SpeakerID)
	}
}

func TestDispatchTranscriptionTimeout(t *testing.T) {
	stt := &fakeSTT{transcript: "too slow", delay: 50 * time.Millisecond}
	cfg := config.DispatchConfig{
		TranscriptionTimeout:  5 * time.Millisecond,
		IdentificationTimeout: time.Second,
	}
	d := New(stt, nil, cfg)

	res, err := d.Dispatch(context.Background(), Utterance{PCM: []byte{1, 2, 3}, SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.TranscriptErr == nil {
		t.Fatalf("expected a timeout error on transcription")
	}
}

func TestDispatchRejectsEmptyAudio(t *testing.T) {
	d := New(&fakeSTT{}, nil, config.DispatchConfig{TranscriptionTimeout: time.Second})
	_, err := d.Dispatch(context.Background(), Utterance{})
	if err == nil {
		t.Fatalf("expected an error for empty PCM")
	}
}
