package wsserver

import (
	"context"
	"time"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/dialog"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/dispatch"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/synth"
)

// startTurn launches the dialog/synthesis concurrency domain for one
// flushed utterance (spec.md section 5: "a dialog/synthesis task, at most
// one active at a time"). A turn already in flight is implicitly gone by
// the time this runs — FLUSHING only fires from LISTENING/TRAILING_SILENCE,
// and barge-in aborts any prior turn before a new utterance is captured.
func (c *conn) startTurn(u dispatch.Utterance) {
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.mu.Lock()
	c.turnCancel = cancel
	c.turnActive = true
	c.mu.Unlock()

	beat := make(chan struct{}, 1)
	go c.watchTurnIdle(ctx, cancel, beat)

	go func() {
		defer func() {
			c.mu.Lock()
			c.turnCancel = nil
			c.turnActive = false
			c.mu.Unlock()
			cancel()
		}()
		c.runTurn(ctx, u, beat)
	}()
}

// watchTurnIdle cancels the turn if no chunk — an LLM token or a synthesized
// audio frame — arrives within the configured idle window (spec.md section
// 5: "a per-chunk idle timeout ... cancels the turn"). Every onToken/onFrame
// call during the turn sends on beat to reset the timer.
func (c *conn) watchTurnIdle(ctx context.Context, cancel context.CancelFunc, beat <-chan struct{}) {
	timeout := c.cfg.Session.ChunkIdleTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-beat:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)
		case <-timer.C:
			c.logger.Warn("turn idle timeout exceeded, cancelling", "session", c.sess.ID, "timeout", timeout)
			cancel()
			return
		}
	}
}

// runTurn dispatches transcription/identification, then drives the dialog
// driver and synthesis pump concurrently — the driver pushes LLM tokens as
// they stream, the pump pulls them to build sentences — emitting the exact
// wire message order spec.md section 8 requires: optional stt, tts:start,
// one-or-more tts:sentence_start interleaved with binary audio, tts:stop.
func (c *conn) runTurn(ctx context.Context, u dispatch.Utterance, beat chan<- struct{}) {
	c.sess.MarkUserSpeechEnd(u.EndTime)
	c.sess.MarkSTTStart()
	result, err := c.dispatcher.Dispatch(ctx, u)
	c.sess.MarkSTTEnd()
	if c.metr != nil {
		c.metr.RecordUtterance(ctx, u.StopCause)
	}
	if err != nil {
		c.logger.Warn("dispatch failed", "session", c.sess.ID, "seq", u.UtteranceSeq, "error", err)
		c.sess.ResetLatencyMarks()
		return
	}
	if result.IdentifyErr != nil {
		c.logger.Info("speaker identification failed, continuing without a label",
			"session", c.sess.ID, "seq", u.UtteranceSeq, "error", result.IdentifyErr)
	}
	if result.SpeakerID != "" {
		c.sess.SetSpeakerID(result.SpeakerID)
	}
	if result.TranscriptErr != nil || result.Transcript == "" {
		// spec.md section 7: transcription failure or empty result reports
		// no stt, no tts, and leaves the session ready for the next
		// utterance.
		c.logger.Info("utterance produced no transcript", "session", c.sess.ID, "seq", u.UtteranceSeq)
		c.sess.ResetLatencyMarks()
		return
	}

	transcript := result.Transcript
	history := c.sess.HistorySnapshot()

	tq := dialog.NewTokenQueue(32)
	firstSentence := true
	spoke := false

	touch := func() {
		select {
		case beat <- struct{}{}:
		default:
		}
	}

	onFrame := func(f synth.Frame) error {
		touch()
		switch f.Kind {
		case synth.KindSentenceStart:
			if firstSentence {
				firstSentence = false
				spoke = true
				c.sess.SetSpeaking(true)
				c.eosCtrl.SpeakLock(time.Duration(c.cfg.EoS.SpeakLockMs) * time.Millisecond)
				if err := c.sendText(ttsMessage{Type: "tts", State: "start", SessionID: c.sess.ID}); err != nil {
					return err
				}
			}
			return c.sendText(ttsMessage{Type: "tts", State: "sentence_start", Text: f.Text, SessionID: c.sess.ID})
		case synth.KindAudio:
			c.sess.MarkTTSFirstByte()
			return c.sendBinary(f.Audio)
		case synth.KindTurnEnd:
			if !spoke {
				// Nothing was ever said this turn (e.g. a silent intent
				// like "stop listening") — no tts:start was sent, so no
				// matching tts:stop should be either.
				return nil
			}
			c.sess.MarkTTSEnd()
			c.sess.SetSpeaking(false)
			c.eosCtrl.SpeakLock(0)
			return c.sendText(ttsMessage{Type: "tts", State: "stop", SessionID: c.sess.ID})
		}
		return nil
	}

	driverErrCh := make(chan error, 1)
	var turnResult dialog.Result
	c.sess.MarkLLMStart()
	go func() {
		defer c.sess.MarkLLMEnd()
		res, err := c.dialogDrv.Run(ctx, transcript, history,
			func(t string) error {
				c.sess.AddMessage("user", t)
				return c.sendText(sttMessage{Type: "stt", Text: t, SessionID: c.sess.ID})
			},
			func(tok string) error {
				touch()
				tq.Push(tok)
				return nil
			})
		turnResult = res
		if err == nil && res.Handled && res.IntentReply != "" {
			if sendErr := c.sendText(sttMessage{Type: "stt", Text: transcript, SessionID: c.sess.ID}); sendErr != nil {
				err = sendErr
			} else {
				tq.Push(res.IntentReply)
			}
		}
		tq.Close()
		driverErrCh <- err
	}()

	pumpErr := c.ttsPump.Run(ctx, tq.Next, onFrame)
	driverErr := <-driverErrCh

	if driverErr != nil {
		c.logger.Info("dialog turn ended", "session", c.sess.ID, "seq", u.UtteranceSeq, "error", driverErr)
	}
	if pumpErr != nil {
		c.logger.Info("synthesis pump ended", "session", c.sess.ID, "seq", u.UtteranceSeq, "error", pumpErr)
		c.sess.SetSpeaking(false)
		c.eosCtrl.SpeakLock(0)
		if spoke {
			// The pump returned before reaching KindTurnEnd (cancellation or a
			// synthesis-provider failure), so onFrame never sent tts:stop —
			// spec.md section 4.7/7: "On cancellation, the pump ... sends
			// TTS-stop" / "Synthesis-fail ... cancel current turn; send
			// TTS-stop". c.baseCtx (not the per-turn ctx) still runs, so this
			// still reaches the device.
			if err := c.sendText(ttsMessage{Type: "tts", State: "stop", SessionID: c.sess.ID}); err != nil {
				c.logger.Warn("failed to send tts:stop after cancellation", "session", c.sess.ID, "error", err)
			}
		}
	}
	if driverErr == nil && turnResult.Reply != "" {
		c.sess.AddMessage("assistant", turnResult.Reply)
	}
	if c.metr != nil {
		c.metr.RecordLatencyBreakdown(ctx, c.sess.LatencyBreakdown())
	}
	c.sess.ResetLatencyMarks()
	if c.sess.CloseAfterChat() {
		c.cancelBase()
	}
}

type sttMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

type ttsMessage struct {
	Type      string `json:"type"`
	State     string `json:"state"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id"`
}
