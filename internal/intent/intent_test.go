package intent

import (
	"context"
	"testing"
)

func TestMatchFirstRuleWins(t *testing.T) {
	m := New([]Rule{
		{Keywords: []string{"hello"}, Response: "hi"},
		{Keywords: []string{"hello world"}, Response: "shadowed"},
	})
	handled, resp, err := m.Match(context.Background(), "Hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handled || resp != "hi" {
		t.Fatalf("expected first rule to win, got handled=%v resp=%q", handled, resp)
	}
}

func TestMatchIsCaseInsensitive(t *testing.T) {
	m := New([]Rule{{Keywords: []string{"STOP"}, Response: ""}})
	handled, _, err := m.Match(context.Background(), "please stop now")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handled {
		t.Fatalf("expected case-insensitive match to succeed")
	}
}

func TestMatchNoRuleMatches(t *testing.T) {
	m := New([]Rule{{Keywords: []string{"xyz"}, Response: "nope"}})
	handled, resp, err := m.Match(context.Background(), "totally unrelated transcript")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handled || resp != "" {
		t.Fatalf("expected no match, got handled=%v resp=%q", handled, resp)
	}
}

func TestMatchEmptyTranscript(t *testing.T) {
	m := Default()
	handled, _, err := m.Match(context.Background(), "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handled {
		t.Fatalf("expected blank transcript to never match")
	}
}

func TestMatchRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := Default()
	if _, _, err := m.Match(ctx, "stop listening"); err == nil {
		t.Fatalf("expected an error from a cancelled context")
	}
}

func TestDefaultStopListeningHasEmptyResponse(t *testing.T) {
	m := Default()
	handled, resp, err := m.Match(context.Background(), "please stop listening now")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handled {
		t.Fatalf("expected the built-in stop-listening rule to match")
	}
	if resp != "" {
		t.Fatalf("expected stop-listening to carry no spoken response, got %q", resp)
	}
}

func TestDefaultClearHistoryRespondsInChinese(t *testing.T) {
	m := Default()
	handled, resp, err := m.Match(context.Background(), "忘记之前的对话 please")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handled || resp == "" {
		t.Fatalf("expected the built-in clear-history rule to match with a reply")
	}
}
