package dialog

import (
	"context"
	"errors"
	"testing"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/providers"
)

type fakeIntent struct {
	handled bool
	reply   string
}

func (f *fakeIntent) Match(ctx context.Context, transcript string) (bool, string, error) {
	return f.handled, f.reply, nil
}

type fakeLLM struct {
	tokens []string
	err    error
}

func (f *fakeLLM) Name() string { return "fake-llm" }
func (f *fakeLLM) Complete(ctx context.Context, messages []providers.Message) (string, error) {
	return "", nil
}
func (f *fakeLLM) StreamComplete(ctx context.Context, messages []providers.Message, onToken func(string) error) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	var full string
	for _, tok := range f.tokens {
		if err := onToken(tok); err != nil {
			return full, err
		}
		full += tok
	}
	return full, nil
}

func TestDriverIntentShortCircuitsLLM(t *testing.T) {
	d := New(&fakeIntent{handled: true, reply: "ok"}, &fakeLLM{tokens: []string{"should not run"}})
	var tokens []string
	res, err := d.Run(context.Background(), "stop listening", nil,
		func(string) error { return nil },
		func(tok string) error { tokens = append(tokens, tok); return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Handled {
		t.Fatalf("expected intent to short-circuit")
	}
	if len(tokens) != 0 {
		t.Fatalf("expected no LLM tokens, got %v", tokens)
	}
}

func TestDriverStreamsLLMWhenUnhandled(t *testing.T) {
	d := New(&fakeIntent{handled: false}, &fakeLLM{tokens: []string{"hel", "lo"}})
	var transcriptSeen string
	var got []string
	res, err := d.Run(context.Background(), "hello there", nil,
		func(t string) error { transcriptSeen = t; return nil },
		func(tok string) error { got = append(got, tok); return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Handled {
		t.Fatalf("expected intent not to handle this turn")
	}
	if transcriptSeen != "hello there" {
		t.Fatalf("expected display-transcript callback with transcript, got %q", transcriptSeen)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 streamed tokens, got %v", got)
	}
}

func TestDriverPropagatesCancellation(t *testing.T) {
	d := New(nil, &fakeLLM{tokens: []string{"a", "b", "c"}})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := d.Run(ctx, "hi", nil,
		func(string) error { return nil },
		func(tok string) error {
			calls++
			if calls == 1 {
				cancel()
			}
			return nil
		})
	if err == nil {
		t.Fatalf("expected cancellation to propagate")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDriverPropagatesLLMFailure(t *testing.T) {
	d := New(nil, &fakeLLM{err: errors.New("boom")})
	_, err := d.Run(context.Background(), "hi", nil,
		func(string) error { return nil },
		func(string) error { return nil })
	if err == nil {
		t.Fatalf("expected LLM failure to propagate")
	}
}
