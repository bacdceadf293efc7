package eos

import (
	"testing"
	"time"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
)

func newTestController(cfg config.EoSConfig) (*Controller, *time.Time) {
	c := New(cfg)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestCleanUtteranceFlushesOnSilenceCounter(t *testing.T) {
	cfg := config.Default().EoS
	cfg.SilenceFalseFrames = 10
	cfg.MinSilenceDurationMs = 100000 // force the counter path to win
	c, clock := newTestController(cfg)
	c.SetBufferedBytes(cfg.MinPCMBytes)

	d := c.Advance(true, false)
	if d.State != StateVoiced {
		t.Fatalf("expected VOICED after first voiced frame, got %s", d.State)
	}

	*clock = clock.Add(time.Duration(cfg.WakeGuardMs+50) * time.Millisecond)

	var last Decision
	for i := 0; i < 10; i++ {
		*clock = clock.Add(20 * time.Millisecond)
		last = c.Advance(false, false)
	}

	if !last.Flush {
		t.Fatalf("expected flush on the 10th consecutive unvoiced frame, got state %s", last.State)
	}
	if last.StopCause == "" {
		t.Fatalf("expected a non-empty stop cause")
	}
}

func TestTooShortUtteranceAbortsFlush(t *testing.T) {
	cfg := config.Default().EoS
	cfg.SilenceFalseFrames = 3
	c, clock := newTestController(cfg)
	c.SetBufferedBytes(cfg.MinPCMBytes - 1)

	c.Advance(true, false)
	*clock = clock.Add(time.Duration(cfg.WakeGuardMs+10) * time.Millisecond)

	var last Decision
	for i := 0; i < 3; i++ {
		*clock = clock.Add(20 * time.Millisecond)
		last = c.Advance(false, false)
	}

	if last.Flush {
		t.Fatalf("expected no flush when buffer is below min_pcm_bytes")
	}
	if last.State != StateVoiced {
		t.Fatalf("expected state to return to VOICED after aborted flush, got %s", last.State)
	}
}

func TestWakeGuardSuppressesFlushing(t *testing.T) {
	cfg := config.Default().EoS
	cfg.SilenceFalseFrames = 5
	c, clock := newTestController(cfg)
	c.SetBufferedBytes(cfg.MinPCMBytes)

	c.Advance(true, false) // enters VOICED, arms wake_until = now + 300ms

	for i := 0; i < 12; i++ {
		*clock = clock.Add(20 * time.Millisecond) // still inside the 300ms guard
		d := c.Advance(false, false)
		if d.Flush {
			t.Fatalf("flush fired during wake guard at frame %d", i)
		}
	}

	*clock = clock.Add(400 * time.Millisecond) // guard has now lapsed
	var fired bool
	for i := 0; i < 5; i++ {
		*clock = clock.Add(20 * time.Millisecond)
		if c.Advance(false, false).Flush {
			fired = true
			break
		}
	}
	if !fired {
		t.Fatalf("expected flush to fire once the wake guard lapsed")
	}
}

func TestVoicedFrameDuringTrailingSilenceCancelsFlush(t *testing.T) {
	cfg := config.Default().EoS
	cfg.SilenceFalseFrames = 10
	c, clock := newTestController(cfg)
	c.SetBufferedBytes(cfg.MinPCMBytes)

	c.Advance(true, false)
	*clock = clock.Add(time.Duration(cfg.WakeGuardMs+10) * time.Millisecond)

	for i := 0; i < 5; i++ {
		*clock = clock.Add(20 * time.Millisecond)
		c.Advance(false, false)
	}
	if c.State() != StateTrailingSilence {
		t.Fatalf("expected TRAILING_SILENCE mid-run, got %s", c.State())
	}

	*clock = clock.Add(20 * time.Millisecond)
	d := c.Advance(true, false)
	if d.State != StateVoiced {
		t.Fatalf("expected a voiced frame to cancel trailing silence, got %s", d.State)
	}
}

func TestWatchdogFiresOnDTXStarvedSilence(t *testing.T) {
	cfg := config.Default().EoS
	cfg.WatchdogSilenceMs = 1000
	cfg.SilenceFalseFrames = 1000   // never wins the race
	cfg.MinSilenceDurationMs = 1000000 // never wins the race
	c, clock := newTestController(cfg)
	c.SetBufferedBytes(cfg.MinPCMBytes)

	c.Advance(true, false) // enters VOICED
	*clock = clock.Add(time.Duration(cfg.WakeGuardMs+10) * time.Millisecond)

	// A DTX-only stream never reaches Advance's counters (spec.md: "DTX
	// frames never touch the counters"), so only the wall-clock watchdog can
	// ever flush this sequence.
	for i := 0; i < 20; i++ {
		*clock = clock.Add(20 * time.Millisecond)
		if c.Advance(false, true).Flush {
			t.Fatalf("a DTX frame must never itself trigger a flush")
		}
	}

	if d := c.Watchdog(); d.Flush {
		t.Fatalf("watchdog fired before its silence threshold elapsed")
	}

	*clock = clock.Add(time.Second)
	d := c.Watchdog()
	if !d.Flush {
		t.Fatalf("expected the watchdog to flush once 1s of wall-clock silence elapsed")
	}
	if d.StopCause != "watchdog_silence_1s" {
		t.Fatalf("expected watchdog stop cause, got %q", d.StopCause)
	}
}

func TestWatchdogNoOpOutsideVoicedStates(t *testing.T) {
	cfg := config.Default().EoS
	c, clock := newTestController(cfg)

	*clock = clock.Add(10 * time.Second)
	if d := c.Watchdog(); d.Flush {
		t.Fatalf("watchdog must never fire outside VOICED/TRAILING_SILENCE, got state %s", d.State)
	}
	if c.State() != StateListening {
		t.Fatalf("watchdog must not change state outside VOICED/TRAILING_SILENCE")
	}
}

func TestSpeakLockActiveReportsWindow(t *testing.T) {
	cfg := config.Default().EoS
	c, clock := newTestController(cfg)

	c.SpeakLock(500 * time.Millisecond)
	if !c.SpeakLockActive() {
		t.Fatalf("expected the speak-lock window to be active immediately after arming")
	}

	*clock = clock.Add(600 * time.Millisecond)
	if c.SpeakLockActive() {
		t.Fatalf("expected the speak-lock window to have lapsed")
	}
}

func TestDTXFrameNeverAdvancesCounters(t *testing.T) {
	cfg := config.Default().EoS
	c, _ := newTestController(cfg)

	for i := 0; i < 100; i++ {
		d := c.Advance(false, true)
		if d.Flush {
			t.Fatalf("DTX-only stream must never trigger a flush")
		}
	}
	if c.State() != StateListening {
		t.Fatalf("expected to remain LISTENING through a DTX-only stream, got %s", c.State())
	}
}
