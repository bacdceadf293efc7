// Package eos implements the end-of-speech state machine: spec.md section
// 4.4, grounded on original_source's receiveAudioHandle.py (wake-guard,
// counter/timer dual stop triggers, 1s watchdog) and the teacher's RMSVAD
// hysteresis idiom for how state transitions are expressed in Go.
package eos

import (
	"fmt"
	"time"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
)

// State is one of the six states named in spec.md section 4.4.
type State int

const (
	StateIdle State = iota
	StateListening
	StateVoiced
	StateTrailingSilence
	StateFlushing
	StateSuppressed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateVoiced:
		return "VOICED"
	case StateTrailingSilence:
		return "TRAILING_SILENCE"
	case StateFlushing:
		return "FLUSHING"
	case StateSuppressed:
		return "SUPPRESSED"
	default:
		return "UNKNOWN"
	}
}

// Decision is returned from every Controller.Advance call.
type Decision struct {
	State     State
	Flush     bool   // true exactly on the transition into a successful flush
	StopCause string // populated only when Flush is true
}

// Controller drives the per-session EoS state machine. One Controller is
// owned per connection; it is not safe for concurrent use.
type Controller struct {
	cfg   config.EoSConfig
	state State

	wakeUntil      time.Time
	speakLockUntil time.Time

	lastVoiceAt      time.Time
	lastVoiceUpdated time.Time // for the ≥100ms debounce guard
	consecutiveFalse int
	bufferedBytes    int

	now func() time.Time
}

// New builds a Controller starting in LISTENING (spec.md: "IDLE → LISTENING
// on session ready" — callers construct a Controller once a session is
// accepted, so it never needs to be driven through IDLE explicitly).
func New(cfg config.EoSConfig) *Controller {
	return &Controller{
		cfg:   cfg,
		state: StateListening,
		now:   time.Now,
	}
}

// SpeakLock arms the speak-guard until now+d (spec.md: "speak-guard" while
// the session is actively synthesizing a reply), preventing FLUSHING and
// barge-in stop-triggering from firing mid-reply unless barge-in is enabled.
func (c *Controller) SpeakLock(d time.Duration) {
	c.speakLockUntil = c.now().Add(d)
}

// State reports the controller's current state.
func (c *Controller) State() State { return c.state }

// SpeakLockActive reports whether the speak-guard window is still open
// (spec.md section 8: "Barge-in during the speak-lock window is ignored;
// after the window it aborts"). Callers gate an implicit barge-in abort on
// this returning false.
func (c *Controller) SpeakLockActive() bool {
	return c.now().Before(c.speakLockUntil)
}

// SetBufferedBytes records the PCM byte count the caller reports before each
// Advance call — kept here only as the value FLUSHING's min-size guard
// checks; the caller (utterance buffer owner) is the source of truth.
func (c *Controller) SetBufferedBytes(n int) { c.bufferedBytes = n }

// Advance feeds one frame's VAD classification into the state machine and
// returns the resulting decision. voiced is the post-window-debounce
// HaveVoice verdict from internal/vad; dtx must be true for frames the
// frame decoder classified as DTX (these never touch the counters).
func (c *Controller) Advance(voiced bool, dtx bool) Decision {
	now := c.now()

	if dtx {
		return Decision{State: c.state}
	}

	suppressed := now.Before(c.wakeUntil) || (c.speakLockUntil.After(now) && !c.cfg.BargeInEnabled)

	switch c.state {
	case StateIdle, StateListening:
		if voiced {
			c.enterVoiced(now)
			return Decision{State: c.state}
		}
		return Decision{State: c.state}

	case StateVoiced:
		if voiced {
			c.refreshVoice(now)
			return Decision{State: c.state}
		}
		c.state = StateTrailingSilence
		c.consecutiveFalse = 1
		return c.evaluateSilence(now, suppressed, "consecutive_false")

	case StateTrailingSilence:
		if voiced {
			c.enterVoiced(now)
			return Decision{State: c.state}
		}
		c.consecutiveFalse++
		return c.evaluateSilence(now, suppressed, "")

	case StateFlushing:
		// Transient; Advance should not be called again until the owner has
		// consumed the flush and called Continue.
		return Decision{State: c.state}

	case StateSuppressed:
		if voiced {
			c.refreshVoice(now)
		}
		if !suppressed {
			c.state = StateVoiced
		}
		return Decision{State: c.state}
	}

	return Decision{State: c.state}
}

func (c *Controller) enterVoiced(now time.Time) {
	c.state = StateVoiced
	c.wakeUntil = now.Add(time.Duration(c.cfg.WakeGuardMs) * time.Millisecond)
	c.lastVoiceAt = now
	c.lastVoiceUpdated = now
	c.consecutiveFalse = 0
}

func (c *Controller) refreshVoice(now time.Time) {
	c.consecutiveFalse = 0
	if now.Sub(c.lastVoiceUpdated) >= time.Duration(c.cfg.LastVoiceDebounceMs)*time.Millisecond {
		c.lastVoiceAt = now
		c.lastVoiceUpdated = now
	}
}

// evaluateSilence checks the watchdog backstop first, so it overrides the
// other triggers when its threshold is met, then the counter trigger, then
// the timer trigger (spec.md: "whichever fires first among counter or timer
// wins").
func (c *Controller) evaluateSilence(now time.Time, suppressed bool, forcedReason string) Decision {
	sinceVoice := now.Sub(c.lastVoiceAt)

	if sinceVoice >= c.watchdogDuration() {
		return c.requestFlush(now, suppressed, "watchdog_silence_1s")
	}

	if c.consecutiveFalse >= c.cfg.SilenceFalseFrames {
		return c.requestFlush(now, suppressed, fmt.Sprintf("vad:consecutive_false(false=%d)", c.consecutiveFalse))
	}

	if sinceVoice >= time.Duration(c.cfg.MinSilenceDurationMs)*time.Millisecond {
		return c.requestFlush(now, suppressed, fmt.Sprintf("vad:silence_ms(ms=%d)", sinceVoice.Milliseconds()))
	}

	return Decision{State: c.state}
}

func (c *Controller) watchdogDuration() time.Duration {
	if c.cfg.WatchdogSilenceMs <= 0 {
		return time.Second
	}
	return time.Duration(c.cfg.WatchdogSilenceMs) * time.Millisecond
}

// Watchdog re-checks the independent silence backstop using wall-clock time
// alone, driven by a caller-owned timer rather than frame arrival (spec.md
// section 4.4: "an independent watchdog fires FLUSHING if now − last_voice_ms
// ≥ 1000 ms while state is VOICED/TRAILING_SILENCE ... this guards against
// DTX sequences that starve the counter path"). Unlike Advance, it never
// advances consecutiveFalse; it changes state only through requestFlush
// (into FLUSHING, or back to VOICED with the counter cleared when the
// buffer is below min_pcm_bytes). Frames reported as DTX return from
// Advance before touching the counters, so without this a device that goes
// silent via DTX after speaking would stay in VOICED forever.
func (c *Controller) Watchdog() Decision {
	now := c.now()
	if c.state != StateVoiced && c.state != StateTrailingSilence {
		return Decision{State: c.state}
	}
	if now.Sub(c.lastVoiceAt) < c.watchdogDuration() {
		return Decision{State: c.state}
	}
	suppressed := now.Before(c.wakeUntil) || (c.speakLockUntil.After(now) && !c.cfg.BargeInEnabled)
	return c.requestFlush(now, suppressed, "watchdog_silence_1s")
}

func (c *Controller) requestFlush(now time.Time, suppressed bool, cause string) Decision {
	if suppressed {
		// Wake-guard/speak-guard: the transition to FLUSHING never fires,
		// and the state is left as it was (VOICED or TRAILING_SILENCE) so
		// counters keep advancing.
		return Decision{State: c.state}
	}
	if c.bufferedBytes < c.cfg.MinPCMBytes {
		// spec.md: "FLUSHING aborts with no flush if buffered size <
		// min_pcm_bytes ... stop request is cleared and the state returns
		// to VOICED/TRAILING_SILENCE".
		c.consecutiveFalse = 0
		c.state = StateVoiced
		c.lastVoiceAt = now
		return Decision{State: c.state}
	}
	c.state = StateFlushing
	return Decision{State: StateFlushing, Flush: true, StopCause: cause}
}

// Continue transitions FLUSHING back to LISTENING once the owner has
// drained the buffered utterance (spec.md: "FLUSHING → LISTENING after
// buffer flush succeeds").
func (c *Controller) Continue() {
	c.state = StateListening
	c.consecutiveFalse = 0
	c.bufferedBytes = 0
}
