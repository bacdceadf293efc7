package wsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/audioio"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/auth"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/buffer"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/corelog"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/dialog"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/dispatch"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/eos"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/metrics"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/session"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/synth"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/vad"
)

// inboundFrame is one message the read goroutine hands to the session loop.
type inboundFrame struct {
	binary bool
	data   []byte
	err    error
}

// conn is one live device session: the socket plus every per-connection
// collaborator spec.md section 4.8 names.
type conn struct {
	ws     *websocket.Conn
	sess   *session.Session
	cfg    config.Config
	logger corelog.Logger
	metr   *metrics.Metrics

	decoder    *audioio.Decoder
	vadProv    vad.Provider
	eosCtrl    *eos.Controller
	utterance  *buffer.Utterance
	dispatcher *dispatch.Dispatcher
	dialogDrv  *dialog.Driver
	ttsPump    *synth.Pump

	baseCtx    context.Context
	cancelBase context.CancelFunc

	outbound chan outboundMsg

	mu         sync.Mutex
	turnCancel context.CancelFunc
	turnActive bool
}

// outboundMsg is one item the outbound writer drains; exactly one of the
// two fields is set (spec.md: "writes to the socket MUST be serialized
// across domains").
type outboundMsg struct {
	text   []byte
	binary []byte
}

// acceptConnection upgrades the HTTP request to a WebSocket and builds the
// per-connection pipeline from the process-scoped Deps.
func acceptConnection(w http.ResponseWriter, r *http.Request, deps Deps, authResult auth.Result, deviceID string) (*conn, error) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: subprotocols,
	})
	if err != nil {
		return nil, err
	}

	if deviceID == "" {
		deviceID = authResult.Principal
	}
	sess := session.New(deviceID, deps.Config.Session)

	decoder, err := audioio.NewDecoder(
		deps.Config.Session.DefaultAudioFormat,
		deps.Config.Decoder.DTXThresholdBytes,
		deps.Config.Decoder.DTXCodecBoundaryBytes,
		audioio.TargetSampleRate, audioio.TargetChannels,
		deps.Logger,
	)
	if err != nil {
		ws.Close(websocket.StatusInternalError, "decoder init failed")
		return nil, err
	}

	vadProv, err := vad.New(deps.Config.VAD)
	if err != nil {
		ws.Close(websocket.StatusInternalError, "vad init failed")
		return nil, err
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	c := &conn{
		ws:         ws,
		sess:       sess,
		cfg:        deps.Config,
		logger:     deps.Logger,
		metr:       deps.Metrics,
		decoder:    decoder,
		vadProv:    vadProv,
		eosCtrl:    eos.New(deps.Config.EoS),
		utterance:  buffer.New(),
		dispatcher: dispatch.New(deps.STT, deps.Identification, deps.Config.Dispatch),
		dialogDrv:  dialog.New(deps.Intent, deps.LLM),
		ttsPump:    synth.New(deps.TTS),
		baseCtx:    baseCtx,
		cancelBase: cancel,
		outbound:   make(chan outboundMsg, 64),
	}
	return c, nil
}

// run drives the session until the socket closes or the idle-close
// watchdog fires. It owns the inbound-reader and outbound-writer
// concurrency domains named in spec.md section 5; the dialog/synthesis
// domain runs as a per-turn goroutine started from handleFlush.
func (c *conn) run() {
	defer c.cancelBase()
	defer c.ws.Close(websocket.StatusNormalClosure, "")
	defer c.teardown()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writeLoop() }()
	go func() { defer wg.Done(); c.readLoop() }()
	wg.Wait()
}

// teardown releases per-session component state on session close (spec.md
// section 3: "VADState ... reset ... on session close"). The neural VAD
// variant additionally holds native inference-engine resources (an ONNX
// session) that must be released explicitly; the energy variant has none.
func (c *conn) teardown() {
	c.vadProv.Reset()
	if closer, ok := c.vadProv.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			c.logger.Warn("vad provider close failed", "session", c.sess.ID, "error", err)
		}
	}
	c.decoder.Reset()
	c.utterance.Reset()
}

// writeLoop is the single outbound domain: every text/binary message for
// every turn is serialized through this one goroutine.
func (c *conn) writeLoop() {
	interval := c.cfg.Session.HeartbeatInterval
	if interval <= 0 {
		interval = 7 * time.Second
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.baseCtx.Done():
			return
		case <-heartbeat.C:
			pingCtx, cancel := context.WithTimeout(c.baseCtx, 5*time.Second)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				c.logger.Warn("heartbeat ping failed, closing session", "session", c.sess.ID, "error", err)
				c.cancelBase()
				return
			}
		case msg, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := c.writeOne(msg); err != nil {
				c.logger.Warn("socket write failed, terminating session", "session", c.sess.ID, "error", err)
				c.cancelBase()
				return
			}
		}
	}
}

func (c *conn) writeOne(msg outboundMsg) error {
	ctx, cancel := context.WithTimeout(c.baseCtx, 10*time.Second)
	defer cancel()
	if msg.text != nil {
		return c.ws.Write(ctx, websocket.MessageText, msg.text)
	}
	return c.ws.Write(ctx, websocket.MessageBinary, msg.binary)
}

// sendText enqueues one JSON control message for the outbound writer.
func (c *conn) sendText(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.outbound <- outboundMsg{text: data}:
		return nil
	case <-c.baseCtx.Done():
		return c.baseCtx.Err()
	}
}

// sendBinary enqueues one binary audio chunk for the outbound writer.
func (c *conn) sendBinary(b []byte) error {
	select {
	case c.outbound <- outboundMsg{binary: b}:
		return nil
	case <-c.baseCtx.Done():
		return c.baseCtx.Err()
	}
}

// readLoop is the serialized inbound domain: it reads frames off the
// socket, decodes audio through decoder → VAD → EoS, and parses JSON
// control frames, all on this one goroutine so the utterance buffer and
// VAD state are never touched concurrently (spec.md section 5).
func (c *conn) readLoop() {
	defer close(c.outbound)
	defer c.cancelBase()

	frames := make(chan inboundFrame, 4)
	go c.pumpReads(frames)

	idleCheck := time.NewTicker(5 * time.Second)
	defer idleCheck.Stop()
	watchdog := time.NewTicker(100 * time.Millisecond)
	defer watchdog.Stop()

	for {
		select {
		case <-c.baseCtx.Done():
			return

		case f, ok := <-frames:
			if !ok {
				return
			}
			if f.err != nil {
				c.logger.Info("socket closed", "session", c.sess.ID, "error", f.err)
				return
			}
			if f.binary {
				c.handleBinary(f.data)
			} else {
				c.handleText(f.data)
			}

		case <-idleCheck.C:
			limit := time.Duration(c.cfg.Session.CloseNoVoiceSeconds) * time.Second
			if limit > 0 && c.sess.IdleFor() >= limit {
				if c.turnInFlight() {
					// A reply is still streaming to the device; let it finish
					// rather than cutting the audio off mid-sentence. turn.go
					// checks CloseAfterChat once the turn completes on its own.
					c.sess.SetCloseAfterChat(true)
					continue
				}
				c.logger.Info("idle-close: no voiced frame within limit", "session", c.sess.ID, "limit", limit)
				return
			}

		case <-watchdog.C:
			// Re-check the silence backstop on wall-clock time alone, covering
			// both VOICED and TRAILING_SILENCE: a device that goes from speech
			// straight into DTX still reaches Advance, but DTX frames
			// short-circuit before touching the counters, so the counter/timer
			// paths alone would starve forever (spec.md section 4.4: "this
			// guards against DTX sequences that starve the counter path").
			c.runWatchdog()
		}
	}
}

// pumpReads continuously reads frames off the socket and forwards them;
// it exits (closing frames) on the first read error, including normal
// close.
func (c *conn) pumpReads(frames chan<- inboundFrame) {
	defer close(frames)
	for {
		msgType, data, err := c.ws.Read(c.baseCtx)
		if err != nil {
			select {
			case frames <- inboundFrame{err: err}:
			case <-c.baseCtx.Done():
			}
			return
		}
		f := inboundFrame{binary: msgType == websocket.MessageBinary, data: data}
		select {
		case frames <- f:
		case <-c.baseCtx.Done():
			return
		}
	}
}

func (c *conn) handleBinary(payload []byte) {
	frame, err := c.decoder.Decode(payload)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", "session", c.sess.ID, "error", err)
		return
	}

	voiced := false
	if !frame.DTX {
		result, err := c.vadProv.Process(frame.PCM)
		if err != nil {
			c.logger.Warn("vad classification failed, treating frame as unvoiced", "session", c.sess.ID, "error", err)
		} else {
			voiced = result.HaveVoice
		}
	}

	if voiced && c.sess.IsSpeaking() {
		// Barge-in (spec.md section 4.4/8): a voiced frame arrived while a
		// reply is in flight. Outside the speak-lock window, and only when
		// barge-in is enabled, it aborts the active turn; otherwise — inside
		// the lock, or with barge-in disabled — it is dropped rather than
		// fed into the utterance buffer/EoS machinery, so the bot's own TTS
		// echo never seeds a new utterance.
		if c.cfg.EoS.BargeInEnabled && !c.eosCtrl.SpeakLockActive() {
			c.abortActiveTurn()
		}
		return
	}

	if !frame.DTX {
		c.utterance.Append(frame.PCM)
		if voiced {
			c.sess.Touch()
		}
	}

	c.evaluateEoS(voiced, frame.DTX)
}

// evaluateEoS advances the EoS controller and flushes a completed utterance
// to the recognition dispatcher when FLUSHING fires.
func (c *conn) evaluateEoS(voiced, dtx bool) {
	c.eosCtrl.SetBufferedBytes(c.utterance.Size())
	c.handleDecision(c.eosCtrl.Advance(voiced, dtx))
}

// runWatchdog re-checks the silence backstop on wall-clock time alone,
// independent of frame arrival (spec.md section 4.4/5): it is the backstop
// for DTX sequences, which Advance returns from without touching counters.
func (c *conn) runWatchdog() {
	c.eosCtrl.SetBufferedBytes(c.utterance.Size())
	c.handleDecision(c.eosCtrl.Watchdog())
}

// handleDecision flushes the utterance buffer and starts a turn when decision
// reports FLUSHING; it is a no-op otherwise.
func (c *conn) handleDecision(decision eos.Decision) {
	if !decision.Flush {
		return
	}

	pcm := c.utterance.Flush()
	c.eosCtrl.Continue()
	seq := c.sess.NextUtteranceSeq()

	u := dispatch.Utterance{
		SessionID:    c.sess.ID,
		UtteranceSeq: seq,
		PCM:          pcm,
		SampleRate:   audioio.TargetSampleRate,
		StartTime:    time.Now(),
		EndTime:      time.Now(),
		StopCause:    decision.StopCause,
	}
	c.startTurn(u)
}

// turnInFlight reports whether a dialog/synthesis task is currently active.
func (c *conn) turnInFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turnActive
}

// abortActiveTurn cancels the in-flight dialog/synthesis task, if any.
func (c *conn) abortActiveTurn() {
	c.mu.Lock()
	cancel := c.turnCancel
	active := c.turnActive
	c.mu.Unlock()
	if !active || cancel == nil {
		return
	}
	if c.metr != nil {
		c.metr.BargeInsTotal.Add(c.baseCtx, 1)
	}
	cancel()
	c.sess.SetSpeaking(false)
}

type controlMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

// handleText parses one JSON control frame and routes it (spec.md section
// 6: hello, listen start/stop/detect/abort, abort).
func (c *conn) handleText(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn("ignoring unparseable control message", "session", c.sess.ID, "error", err)
		return
	}

	switch msg.Type {
	case "hello":
		_ = c.sendText(map[string]any{
			"type":       "hello",
			"session_id": c.sess.ID,
		})

	case "listen":
		switch msg.State {
		case "start":
			c.sess.SetListenMode(config.ListenModeAuto)
		case "stop":
			c.sess.SetListenMode(config.ListenModeManual)
		case "detect":
			// Wake-word detect mode: listening continues under the
			// session's current mode: no further state change here.
		case "abort":
			c.abortActiveTurn()
		}

	case "abort":
		c.abortActiveTurn()
	}
}
