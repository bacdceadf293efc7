// Package httpapi implements the device-provisioning HTTP endpoint (spec.md
// section 6): a trivial JSON responder returning firmware metadata and the
// WebSocket URL, with permissive CORS. Grounded on original_source's
// OTAHandler (core/api/ota_handler.py): same response shape
// (firmware/websocket/xiaozhi_websocket), GET/POST both succeed, OPTIONS is
// answered for CORS preflight.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
)

const firmwareVersion = "1.6.8"

type otaResponse struct {
	Firmware struct {
		Version string `json:"version"`
		URL     string `json:"url"`
	} `json:"firmware"`
	WebSocket struct {
		Endpoint string `json:"endpoint"`
		Port     int    `json:"port"`
	} `json:"websocket"`
	XiaozhiWebSocket struct {
		WSURL           string `json:"ws_url"`
		WSProtocol      string `json:"ws_protocol"`
		ProtocolVersion int    `json:"protocol_version"`
		Origin          string `json:"origin"`
	} `json:"xiaozhi_websocket"`
}

// OTAHandler serves the provisioning endpoint. It holds a read-only
// reference to the server configuration and is safe to share across
// concurrent requests.
type OTAHandler struct {
	cfg config.ServerConfig
}

// NewOTAHandler builds an OTAHandler from the server configuration
// snapshot.
func NewOTAHandler(cfg config.ServerConfig) *OTAHandler {
	return &OTAHandler{cfg: cfg}
}

func (h *OTAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	origin := scheme + "://" + r.Host

	var resp otaResponse
	resp.Firmware.Version = firmwareVersion
	resp.WebSocket.Endpoint = origin
	resp.WebSocket.Port = 443
	resp.XiaozhiWebSocket.WSURL = scheme + "://" + r.Host + h.cfg.WebSocketPath
	resp.XiaozhiWebSocket.WSProtocol = "v1"
	resp.XiaozhiWebSocket.ProtocolVersion = 1
	resp.XiaozhiWebSocket.Origin = origin

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
