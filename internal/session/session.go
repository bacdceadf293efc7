// Package session holds per-connection state that outlives any single
// utterance: identity, dialog history, and the lifecycle flags the
// WebSocket handler and dialog driver both read. Grounded on the teacher's
// ConversationSession (pkg/orchestrator/types.go), adapted from a
// single-user-ID conversation cache to a device-connection session with
// the additional flags original_source's Connection object carries
// (client_is_speaking, close_after_chat, wake/listen state). The
// device-bind/provisioning-prompt flag is out of scope — see DESIGN.md.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/providers"
)

// ListenMode mirrors the device's requested listen behavior.
type ListenMode = config.ListenMode

// Session is the per-connection state shared across the inbound reader,
// the dialog driver, and the outbound writer. All mutation goes through
// its methods, which hold the lock internally.
type Session struct {
	ID       string
	DeviceID string

	mu              sync.RWMutex
	history         []providers.Message
	maxHistory      int
	speaking        bool
	closeAfterChat  bool
	listenMode      ListenMode
	audioFormat     config.AudioFormat
	lastActivity    time.Time
	utteranceSeq    uint64
	speakerID       string

	latMu   sync.Mutex
	lat     latencyMarks
}

// latencyMarks are the timestamps recorded over the course of one reply
// turn, used to build a LatencyBreakdown once the turn completes. Grounded
// on the teacher's ManagedStream timestamp fields (userSpeechEndTime,
// sttStartTime, sttEndTime, llmStartTime, llmEndTime, ttsStartTime,
// lastAudioSentAt in pkg/orchestrator/managed_stream.go).
type latencyMarks struct {
	userSpeechEnd time.Time
	sttStart      time.Time
	sttEnd        time.Time
	llmStart      time.Time
	llmEnd        time.Time
	ttsFirstByte  time.Time
	ttsEnd        time.Time
}

// LatencyBreakdown holds per-stage timings for one reply turn, all in
// milliseconds. Grounded on the teacher's ManagedStream.GetLatencyBreakdown,
// narrowed to the stages this server's turn actually distinguishes.
type LatencyBreakdown struct {
	UserToSTT          int64 // user stop -> STT/identification joined
	STT                int64 // STT+identification dispatch duration
	UserToLLM          int64 // user stop -> LLM stream end
	LLM                int64 // LLM stream duration
	UserToTTSFirstByte int64 // user stop -> first synthesized audio chunk
	LLMToTTSFirstByte  int64 // LLM stream end -> first synthesized audio chunk
	TTSTotal           int64 // first audio chunk -> last audio chunk
	TurnTotal          int64 // user stop -> tts:stop
}

// New creates a Session for a newly accepted device connection.
func New(deviceID string, cfg config.SessionConfig) *Session {
	return &Session{
		ID:           uuid.NewString(),
		DeviceID:     deviceID,
		maxHistory:   20,
		listenMode:   cfg.DefaultListenMode,
		audioFormat:  cfg.DefaultAudioFormat,
		lastActivity: time.Now(),
	}
}

// NextUtteranceSeq returns a monotonically increasing per-session sequence
// number, used to tag Utterance values and correlate log lines.
func (s *Session) NextUtteranceSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utteranceSeq++
	return s.utteranceSeq
}

// AddMessage appends a dialog turn, trimming the oldest entries once
// maxHistory is exceeded (teacher's ConversationSession.AddMessage).
func (s *Session) AddMessage(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, providers.Message{Role: role, Content: content})
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
}

// HistorySnapshot returns a defensive copy of the current dialog history.
func (s *Session) HistorySnapshot() []providers.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]providers.Message, len(s.history))
	copy(out, s.history)
	return out
}

// ClearHistory discards the dialog history (used on explicit reset intents).
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

func (s *Session) SetSpeaking(v bool) {
	s.mu.Lock()
	s.speaking = v
	s.mu.Unlock()
}

func (s *Session) IsSpeaking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaking
}

func (s *Session) SetCloseAfterChat(v bool) {
	s.mu.Lock()
	s.closeAfterChat = v
	s.mu.Unlock()
}

func (s *Session) CloseAfterChat() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closeAfterChat
}

func (s *Session) SetListenMode(m ListenMode) {
	s.mu.Lock()
	s.listenMode = m
	s.mu.Unlock()
}

func (s *Session) ListenMode() ListenMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenMode
}

func (s *Session) SetAudioFormat(f config.AudioFormat) {
	s.mu.Lock()
	s.audioFormat = f
	s.mu.Unlock()
}

func (s *Session) AudioFormat() config.AudioFormat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audioFormat
}

func (s *Session) SetSpeakerID(id string) {
	s.mu.Lock()
	s.speakerID = id
	s.mu.Unlock()
}

func (s *Session) SpeakerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speakerID
}

// Touch records activity for the idle-close watchdog
// (original_source's conn.last_activity_time).
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IdleFor reports how long it has been since the last recorded activity.
func (s *Session) IdleFor() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.lastActivity)
}

// MarkUserSpeechEnd records when the EoS controller flushed the utterance
// that started this turn (the teacher's userSpeechEndTime).
func (s *Session) MarkUserSpeechEnd(t time.Time) {
	s.latMu.Lock()
	s.lat.userSpeechEnd = t
	s.latMu.Unlock()
}

// MarkSTTStart records when the recognition dispatcher was invoked.
func (s *Session) MarkSTTStart() {
	s.latMu.Lock()
	s.lat.sttStart = time.Now()
	s.latMu.Unlock()
}

// MarkSTTEnd records when the recognition dispatcher returned.
func (s *Session) MarkSTTEnd() {
	s.latMu.Lock()
	s.lat.sttEnd = time.Now()
	s.latMu.Unlock()
}

// MarkLLMStart records when the dialog driver began streaming a reply.
func (s *Session) MarkLLMStart() {
	s.latMu.Lock()
	s.lat.llmStart = time.Now()
	s.latMu.Unlock()
}

// MarkLLMEnd records when the dialog driver's token stream closed.
func (s *Session) MarkLLMEnd() {
	s.latMu.Lock()
	s.lat.llmEnd = time.Now()
	s.latMu.Unlock()
}

// MarkTTSFirstByte records the first synthesized audio chunk of the turn.
// Later calls are no-ops; only the first chunk is meaningful here.
func (s *Session) MarkTTSFirstByte() {
	s.latMu.Lock()
	if s.lat.ttsFirstByte.IsZero() {
		s.lat.ttsFirstByte = time.Now()
	}
	s.latMu.Unlock()
}

// MarkTTSEnd records the last synthesized audio chunk of the turn.
func (s *Session) MarkTTSEnd() {
	s.latMu.Lock()
	s.lat.ttsEnd = time.Now()
	s.latMu.Unlock()
}

// LatencyBreakdown computes per-stage timings from the marks recorded so
// far. Stages whose marks are incomplete report zero rather than a
// misleading negative or huge duration.
func (s *Session) LatencyBreakdown() LatencyBreakdown {
	s.latMu.Lock()
	defer s.latMu.Unlock()

	var bd LatencyBreakdown
	m := s.lat
	if m.userSpeechEnd.IsZero() {
		return bd
	}

	if !m.sttEnd.IsZero() {
		bd.UserToSTT = m.sttEnd.Sub(m.userSpeechEnd).Milliseconds()
	}
	if !m.sttStart.IsZero() && !m.sttEnd.IsZero() {
		bd.STT = m.sttEnd.Sub(m.sttStart).Milliseconds()
	}
	if !m.llmEnd.IsZero() {
		bd.UserToLLM = m.llmEnd.Sub(m.userSpeechEnd).Milliseconds()
	}
	if !m.llmStart.IsZero() && !m.llmEnd.IsZero() {
		bd.LLM = m.llmEnd.Sub(m.llmStart).Milliseconds()
	}
	if !m.ttsFirstByte.IsZero() {
		bd.UserToTTSFirstByte = m.ttsFirstByte.Sub(m.userSpeechEnd).Milliseconds()
		if !m.llmEnd.IsZero() {
			bd.LLMToTTSFirstByte = m.ttsFirstByte.Sub(m.llmEnd).Milliseconds()
		}
	}
	if !m.ttsFirstByte.IsZero() && !m.ttsEnd.IsZero() {
		bd.TTSTotal = m.ttsEnd.Sub(m.ttsFirstByte).Milliseconds()
	}
	if !m.ttsEnd.IsZero() {
		bd.TurnTotal = m.ttsEnd.Sub(m.userSpeechEnd).Milliseconds()
	}
	return bd
}

// ResetLatencyMarks clears every recorded mark, preparing the session for
// the next reply turn.
func (s *Session) ResetLatencyMarks() {
	s.latMu.Lock()
	s.lat = latencyMarks{}
	s.latMu.Unlock()
}
