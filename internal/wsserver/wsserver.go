// Package wsserver implements the connection session (spec.md section
// 4.8): it owns the device WebSocket, authenticates the connection,
// demultiplexes inbound binary audio and JSON control frames, and wires
// together every per-connection collaborator — decoder, VAD, EoS
// controller, utterance buffer, recognition dispatcher, dialog driver, and
// synthesis pump — into the three concurrency domains spec.md section 5
// names: a serialized inbound reader, a single-active dialog/synthesis
// task, and a strictly ordered outbound writer.
//
// Grounded on original_source's WebSocketServer/ConnectionHandler
// (core/websocket_server.py) for connection acceptance and lifecycle, and
// on core/handle/sendAudioHandle.py and receiveAudioHandle.py for the
// exact wire message shapes and ordering. The concurrent-writer discipline
// and per-connection goroutine shape follow the teacher's ManagedStream
// (pkg/orchestrator/managed_stream.go); the WebSocket transport itself is
// github.com/coder/websocket, already a dependency via the teacher's
// Lokutor TTS client.
package wsserver

import (
	"net/http"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/auth"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/corelog"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/metrics"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/providers"
)

// Deps holds the process-scoped collaborators every session shares.
// Provider handles are required to be safe for concurrent invocation
// (spec.md section 5: "provider handles ... are process-scoped ...
// required to be safe for concurrent invocation").
type Deps struct {
	Config config.Config
	Logger corelog.Logger
	Metrics *metrics.Metrics
	Auth    *auth.Authenticator

	STT            providers.STTProvider
	Identification providers.IdentificationProvider
	LLM            providers.StreamingLLMProvider
	TTS            providers.TTSProvider
	Intent         providers.IntentProvider
}

// subprotocols are the subprotocols this server advertises: the current
// wire version and a legacy alias some already-deployed firmware still
// requests (spec.md section 6: "Subprotocols advertised: v1, and a legacy
// alias").
var subprotocols = []string{"v1", "xiaozhi-v1"}

// Server accepts device WebSocket connections and runs one session per
// connection until it closes.
type Server struct {
	deps Deps
}

// New builds a Server from its process-scoped dependencies.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = corelog.NoOpLogger{}
	}
	return &Server{deps: deps}
}

// ServeHTTP authenticates the connection, upgrades it to a WebSocket, and
// blocks running the session until the connection ends. Each call runs on
// its own goroutine courtesy of net/http's connection-per-goroutine model.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	headers := map[string]string{
		"authorization": r.Header.Get("Authorization"),
		"device-id":     firstNonEmpty(r.Header.Get("Device-Id"), r.URL.Query().Get("device-id")),
	}

	result, err := s.deps.Auth.Authenticate(headers)
	if err != nil || !result.OK {
		s.deps.Logger.Warn("rejecting unauthenticated connection", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	c, err := acceptConnection(w, r, s.deps, result, headers["device-id"])
	if err != nil {
		s.deps.Logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveSessions.Add(r.Context(), 1)
		defer s.deps.Metrics.ActiveSessions.Add(r.Context(), -1)
	}

	c.run()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
