// Package stt adapts the teacher's HTTP transcription clients
// (pkg/providers/stt/*.go) to the providers.STTProvider contract: audio
// sample rate now travels with the call instead of through provider state,
// since one process serves many devices at possibly different negotiated
// rates.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/audioio"
)

// GroqSTT transcribes via Groq's OpenAI-compatible Whisper endpoint.
type GroqSTT struct {
	apiKey string
	url    string
	model  string
}

// NewGroqSTT builds a GroqSTT client; model defaults to
// "whisper-large-v3-turbo" when empty.
func NewGroqSTT(apiKey, model string) *GroqSTT {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &GroqSTT{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/audio/transcriptions",
		model:  model,
	}
}

func (s *GroqSTT) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	wavData := audioio.NewWAVBuffer(pcm, sampleRate, 1)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", s.model); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, bytes.NewReader(wavData)); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("groq stt error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}

func (s *GroqSTT) Name() string { return "groq-stt" }
