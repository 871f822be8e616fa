package stt

import (
	"context"
	"math/rand"

	"github.com/mrsingh-rishi/voice-web/audio"
)

// cannedPhrases is the fixed rotation emitted when transcription runs in
// degraded mode (no API key, or the real device could not be acquired).
var cannedPhrases = []string{
	"I've been thinking about how these systems connect together.",
	"It reminds me of a conversation I had a while ago.",
	"There are so many ideas worth exploring here.",
	"Sometimes the simplest explanation is the right one.",
	"Let me put that a different way.",
}

// DummyTranscriber emits canned phrases at randomized intervals, ignoring
// the audio entirely. It keeps the whole pipeline exercised when the real
// service is unreachable: fragments still flow, the reconciler still
// merges, the UI still updates.
type DummyTranscriber struct {
	next int
	rng  *rand.Rand
}

// NewDummyTranscriber creates a dummy transcriber seeded with seed.
func NewDummyTranscriber(seed int64) *DummyTranscriber {
	return &DummyTranscriber{rng: rand.New(rand.NewSource(seed))}
}

// Transcribe returns the next canned phrase roughly every other call and an
// empty fragment otherwise, so transcripts appear at a plausible rate
// instead of on every tick.
func (d *DummyTranscriber) Transcribe(ctx context.Context, payload audio.Payload, sc SessionContext) (string, error) {
	if len(payload.Data) == 0 {
		return "", nil
	}
	if d.rng.Intn(2) == 0 {
		return "", nil
	}
	phrase := cannedPhrases[d.next%len(cannedPhrases)]
	d.next++
	return phrase, nil
}
