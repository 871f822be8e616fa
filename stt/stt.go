package stt

import (
	"context"

	"github.com/mrsingh-rishi/voice-web/audio"
)

// SessionContext identifies who the audio belongs to. Forwarded to the
// transcription service so usage can be attributed per visitor.
type SessionContext struct {
	VisitorID string
	SessionID string
}

// Transcriber converts one combined audio payload into a text fragment.
// An empty fragment with a nil error means the service heard nothing.
// Implementations may return a non-empty fragment together with an error
// when the service produced partial text before failing; callers should
// forward such text best-effort.
type Transcriber interface {
	Transcribe(ctx context.Context, payload audio.Payload, sc SessionContext) (string, error)
}
