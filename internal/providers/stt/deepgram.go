package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DeepgramSTT transcribes via Deepgram's pre-recorded /v1/listen endpoint.
// Adapted from the teacher's pkg/providers/stt/deepgram.go: the language
// parameter is dropped (the core pipeline never negotiates a transcription
// language per utterance) and the content-type now advertises the 16kHz
// mono PCM16LE the decoder always produces, instead of the teacher's
// hardcoded 44.1kHz assumption.
type DeepgramSTT struct {
	apiKey string
	url    string
}

// NewDeepgramSTT builds a DeepgramSTT client.
func NewDeepgramSTT(apiKey string) *DeepgramSTT {
	return &DeepgramSTT{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen",
	}
}

func (s *DeepgramSTT) Name() string { return "deepgram-stt" }

func (s *DeepgramSTT) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	transcript, _, err := s.TranscribeDiarized(ctx, pcm, sampleRate, false)
	return transcript, err
}

// TranscribeDiarized additionally requests word-level speaker diarization
// when diarize is true; internal/providers/identification's DeepgramID
// calls this directly so speaker labeling reuses the same transcription
// endpoint; it is a separate request from the one Transcribe makes.
func (s *DeepgramSTT) TranscribeDiarized(ctx context.Context, pcm []byte, sampleRate int, diarize bool) (string, []DeepgramWord, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", nil, err
	}
	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if diarize {
		params.Set("diarize", "true")
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(pcm))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", fmt.Sprintf("audio/l16; rate=%d; channels=1", sampleRate))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", nil, fmt.Errorf("deepgram error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string         `json:"transcript"`
					Words      []DeepgramWord `json:"words"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", nil, err
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil, nil
	}
	alt := result.Results.Channels[0].Alternatives[0]
	return alt.Transcript, alt.Words, nil
}

// DeepgramWord is one diarized word from a transcription response.
type DeepgramWord struct {
	Word    string  `json:"word"`
	Speaker int     `json:"speaker"`
	Conf    float64 `json:"confidence"`
}
