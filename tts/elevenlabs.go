package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// ElevenLabsClient renders response sentences to speech and streams the
// audio, base64-encoded chunk by chunk, into the output device channel for
// playback in the browser.
type ElevenLabsClient struct {
	apiKey  string
	voiceID string
	modelID string
	http    *http.Client
	out     chan<- string
}

// NewElevenLabsClient creates a TTS client emitting audio chunks into out.
func NewElevenLabsClient(apiKey, voiceID, modelID string, out chan<- string) (*ElevenLabsClient, error) {
	if out == nil {
		return nil, errors.New("output device channel is required")
	}
	if modelID == "" {
		modelID = "eleven_multilingual_v2"
	}
	return &ElevenLabsClient{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: modelID,
		http:    &http.Client{Timeout: 60 * time.Second},
		out:     out,
	}, nil
}

// GenerateSpeech synthesizes one sentence and forwards the audio chunks.
func (c *ElevenLabsClient) GenerateSpeech(ctx context.Context, text string) error {
	base, err := url.Parse("https://api.elevenlabs.io/v1/text-to-speech/" + c.voiceID + "/stream/with-timestamps")
	if err != nil {
		return errors.Wrap(err, "build endpoint")
	}
	q := base.Query()
	q.Set("output_format", "mp3_44100_128")
	base.RawQuery = q.Encode()

	payload := map[string]interface{}{
		"text":     text,
		"model_id": c.modelID,
		"voice_settings": map[string]float64{
			"stability":        0.75,
			"similarity_boost": 0.7,
		},
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "tts request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("tts bad status: %s", resp.Status)
	}

	// The endpoint streams one JSON object per audio chunk.
	dec := json.NewDecoder(resp.Body)
	for {
		var chunk struct {
			AudioBase64 string `json:"audio_base64"`
		}
		if err := dec.Decode(&chunk); err != nil {
			if err == io.EOF {
				break
			}
			return errors.Wrap(err, "decode audio chunk")
		}
		if chunk.AudioBase64 == "" {
			continue
		}
		select {
		case c.out <- chunk.AudioBase64:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
