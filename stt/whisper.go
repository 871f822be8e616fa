package stt

import (
	"bytes"
	"context"
	"log"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/mrsingh-rishi/voice-web/audio"
)

// WhisperClient transcribes combined payloads through the OpenAI audio
// transcription endpoint.
type WhisperClient struct {
	client *openai.Client
	model  string
}

// NewWhisperClient creates a client for the given API key and model.
func NewWhisperClient(apiKey, model string) (*WhisperClient, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Transcribe uploads the payload and returns the transcribed text. Rate
// limit and payload rejections are mapped to the package sentinel errors so
// the dispatcher can react without knowing about HTTP.
func (w *WhisperClient) Transcribe(ctx context.Context, payload audio.Payload, sc SessionContext) (string, error) {
	req := openai.AudioRequest{
		Model:    w.model,
		Reader:   bytes.NewReader(payload.Data),
		FilePath: fileNameFor(payload.Encoding),
	}

	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		classified := classifyAPIError(err)
		if classified != err {
			log.Printf("Whisper request rejected (session=%s): %v", sc.SessionID, classified)
			return "", classified
		}
		// Forward partial text if the service produced any before failing.
		return resp.Text, errors.Wrap(err, "whisper transcription")
	}

	return resp.Text, nil
}

// fileNameFor gives the upload a name whose extension matches the payload
// encoding; the service uses it to pick a decoder.
func fileNameFor(encoding string) string {
	switch {
	case strings.Contains(encoding, "webm"):
		return "capture.webm"
	case strings.Contains(encoding, "ogg"):
		return "capture.ogg"
	case strings.Contains(encoding, "wav"):
		return "capture.wav"
	default:
		return "capture.webm"
	}
}
