package session

import (
	"sync"
	"testing"
	"time"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
)

func TestNewAssignsIDAndDefaults(t *testing.T) {
	cfg := config.SessionConfig{
		DefaultListenMode:  config.ListenModeAuto,
		DefaultAudioFormat: config.AudioFormatCompressed,
	}
	s := New("device-1", cfg)
	if s.ID == "" {
		t.Fatalf("expected a generated session ID")
	}
	if s.DeviceID != "device-1" {
		t.Fatalf("expected device ID to be preserved, got %q", s.DeviceID)
	}
	if s.ListenMode() != config.ListenModeAuto {
		t.Fatalf("expected default listen mode, got %q", s.ListenMode())
	}
}

func TestAddMessageTrimsHistory(t *testing.T) {
	s := New("device-1", config.SessionConfig{})
	for i := 0; i < 25; i++ {
		s.AddMessage("user", "hi")
	}
	if got := len(s.HistorySnapshot()); got != 20 {
		t.Fatalf("expected history trimmed to 20, got %d", got)
	}
}

func TestClearHistory(t *testing.T) {
	s := New("device-1", config.SessionConfig{})
	s.AddMessage("user", "hello")
	s.ClearHistory()
	if got := len(s.HistorySnapshot()); got != 0 {
		t.Fatalf("expected empty history after clear, got %d", got)
	}
}

func TestHistorySnapshotIsADefensiveCopy(t *testing.T) {
	s := New("device-1", config.SessionConfig{})
	s.AddMessage("user", "hello")
	snap := s.HistorySnapshot()
	snap[0].Content = "mutated"
	if got := s.HistorySnapshot()[0].Content; got != "hello" {
		t.Fatalf("expected internal history to be unaffected by snapshot mutation, got %q", got)
	}
}

func TestSpeakingCloseAfterChatAndSpeakerIDRoundTrip(t *testing.T) {
	s := New("device-1", config.SessionConfig{})
	s.SetSpeaking(true)
	if !s.IsSpeaking() {
		t.Fatalf("expected speaking flag to be set")
	}
	s.SetCloseAfterChat(true)
	if !s.CloseAfterChat() {
		t.Fatalf("expected close-after-chat flag to be set")
	}
	s.SetSpeakerID("alice")
	if s.SpeakerID() != "alice" {
		t.Fatalf("expected speaker id to round-trip, got %q", s.SpeakerID())
	}
}

func TestNextUtteranceSeqIncrementsMonotonically(t *testing.T) {
	s := New("device-1", config.SessionConfig{})
	first := s.NextUtteranceSeq()
	second := s.NextUtteranceSeq()
	if second != first+1 {
		t.Fatalf("expected monotonically increasing sequence, got %d then %d", first, second)
	}
}

func TestTouchResetsIdleFor(t *testing.T) {
	s := New("device-1", config.SessionConfig{})
	time.Sleep(5 * time.Millisecond)
	before := s.IdleFor()
	s.Touch()
	after := s.IdleFor()
	if after >= before {
		t.Fatalf("expected Touch to reset the idle clock, before=%v after=%v", before, after)
	}
}

func TestLatencyBreakdownComputesStageDurations(t *testing.T) {
	s := New("device-1", config.SessionConfig{})

	s.MarkUserSpeechEnd(time.Now())
	time.Sleep(2 * time.Millisecond)
	s.MarkSTTStart()
	time.Sleep(2 * time.Millisecond)
	s.MarkSTTEnd()
	s.MarkLLMStart()
	time.Sleep(2 * time.Millisecond)
	s.MarkLLMEnd()
	s.MarkTTSFirstByte()
	time.Sleep(2 * time.Millisecond)
	s.MarkTTSEnd()

	bd := s.LatencyBreakdown()
	if bd.STT <= 0 {
		t.Fatalf("expected a positive STT duration, got %d", bd.STT)
	}
	if bd.LLM <= 0 {
		t.Fatalf("expected a positive LLM duration, got %d", bd.LLM)
	}
	if bd.TurnTotal <= 0 {
		t.Fatalf("expected a positive turn total, got %d", bd.TurnTotal)
	}
}

func TestLatencyBreakdownIsZeroBeforeAnyMark(t *testing.T) {
	s := New("device-1", config.SessionConfig{})
	bd := s.LatencyBreakdown()
	if bd.STT != 0 || bd.LLM != 0 || bd.TTSTotal != 0 || bd.TurnTotal != 0 {
		t.Fatalf("expected a zero-value breakdown before any mark, got %+v", bd)
	}
}

func TestResetLatencyMarksClearsBreakdown(t *testing.T) {
	s := New("device-1", config.SessionConfig{})
	s.MarkUserSpeechEnd(time.Now())
	s.MarkSTTStart()
	s.MarkSTTEnd()
	s.ResetLatencyMarks()
	bd := s.LatencyBreakdown()
	if bd.STT != 0 {
		t.Fatalf("expected marks cleared after reset, got STT=%d", bd.STT)
	}
}

func TestConcurrentAccessIsRaceFree(t *testing.T) {
	s := New("device-1", config.SessionConfig{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.AddMessage("user", "hi")
			s.SetSpeaking(n%2 == 0)
			s.Touch()
			_ = s.HistorySnapshot()
		}(i)
	}
	wg.Wait()
}
