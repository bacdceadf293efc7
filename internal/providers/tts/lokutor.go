// Package tts adapts the teacher's Lokutor streaming synthesis client
// (pkg/providers/tts/lokutor.go) to the providers.TTSProvider contract.
package tts

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// LokutorTTS streams synthesized speech over a persistent WebSocket
// connection to the Lokutor API.
type LokutorTTS struct {
	apiKey string
	host   string
	voice  string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewLokutorTTS builds a LokutorTTS client for the given API key and voice.
func NewLokutorTTS(apiKey, voice string) *LokutorTTS {
	if voice == "" {
		voice = "F1"
	}
	return &LokutorTTS{apiKey: apiKey, host: "api.lokutor.com", voice: voice}
}

func (t *LokutorTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: "wss", Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("lokutor: dial: %w", err)
	}

	t.conn = conn
	return conn, nil
}

// Synthesize buffers a StreamSynthesize call into a single byte slice.
func (t *LokutorTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	err := t.StreamSynthesize(ctx, text, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// StreamSynthesize sends one synthesis request and forwards each binary
// audio chunk to onChunk as it arrives, returning once the server reports
// end-of-stream.
func (t *LokutorTTS) StreamSynthesize(ctx context.Context, text string, onChunk func([]byte) error) error {
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	req := map[string]interface{}{
		"text":    text,
		"voice":   t.voice,
		"speed":   1.05,
		"steps":   5,
		"version": "versa-1.0",
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return fmt.Errorf("lokutor: send request: %w", err)
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.conn = nil
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return fmt.Errorf("lokutor: read: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return fmt.Errorf("lokutor: %s", msg)
			}
		}
	}
}

func (t *LokutorTTS) Name() string { return "lokutor" }

// Close releases the underlying WebSocket connection, if open.
func (t *LokutorTTS) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
		return err
	}
	return nil
}
