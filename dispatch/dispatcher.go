package dispatch

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/mrsingh-rishi/voice-web/audio"
	"github.com/mrsingh-rishi/voice-web/ratelimit"
	"github.com/mrsingh-rishi/voice-web/stt"
	"github.com/mrsingh-rishi/voice-web/transcript"
)

// RateLimitSentinel is forwarded through the transcript callback when the
// transcription service is rate limiting us and the user should know. It is
// a reserved constant that cannot collide with real transcription text, so
// the UI layer can special-case it without an exception-style control path.
const RateLimitSentinel = "__RATE_LIMIT_ERROR__"

// minWindow is the floor for the degraded chunk window. Retrying with less
// audio beats failing repeatedly on a payload the service keeps rejecting.
const minWindow = 5

// Dispatcher runs the periodic "package the buffer, call the service,
// interpret the response" cycle. Transcription failures never propagate:
// the session keeps capturing no matter what the service does.
type Dispatcher struct {
	buffer      *audio.Buffer
	limiter     *ratelimit.Limiter
	reconciler  *transcript.Reconciler
	transcriber stt.Transcriber
	sc          stt.SessionContext

	interval     time.Duration
	fullLimit    int
	payloadError bool

	onTranscript func(text string)
}

// New wires a Dispatcher. onTranscript receives the merged accumulated
// transcript after each fragment lands, or the rate-limit sentinel.
func New(
	buffer *audio.Buffer,
	limiter *ratelimit.Limiter,
	reconciler *transcript.Reconciler,
	transcriber stt.Transcriber,
	sc stt.SessionContext,
	interval time.Duration,
	onTranscript func(text string),
) *Dispatcher {
	return &Dispatcher{
		buffer:       buffer,
		limiter:      limiter,
		reconciler:   reconciler,
		transcriber:  transcriber,
		sc:           sc,
		interval:     interval,
		fullLimit:    buffer.Limit(),
		onTranscript: onTranscript,
	}
}

// Run ticks the dispatch cycle until ctx is cancelled, then flushes once so
// audio captured after the last tick still gets transcribed. The network
// call happens inline in this goroutine, which is the in-flight guard: a
// new dispatch can never start while the previous call is pending, so
// fragments reach the reconciler in request-issue order.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.Flush()
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one dispatch cycle. No-op while rate limited or when the
// buffer is empty; buffered chunks are never dropped by a skipped cycle.
func (d *Dispatcher) Tick(ctx context.Context) {
	if !d.limiter.CanProceed() {
		return
	}
	if d.buffer.ChunkCount() == 0 {
		return
	}

	if d.payloadError {
		half := d.buffer.Limit() / 2
		if half < minWindow {
			half = minWindow
		}
		d.buffer.SetLimit(half)
		log.Printf("Dispatcher: shrinking chunk window to %d after payload rejection", half)
	}

	payload := d.buffer.CombinedPayload()
	text, err := d.transcriber.Transcribe(ctx, payload, d.sc)

	switch {
	case errors.Is(err, stt.ErrRateLimited):
		if d.limiter.RecordRateLimitError() && d.onTranscript != nil {
			d.onTranscript(RateLimitSentinel)
		}
		log.Printf("Dispatcher: rate limited, backing off %s", d.limiter.Backoff())

	case errors.Is(err, stt.ErrBadPayload):
		d.payloadError = true
		log.Printf("Dispatcher: service rejected payload (%d bytes), will retry with a smaller window", len(payload.Data))

	case err != nil:
		log.Printf("Dispatcher: transcription error: %v", err)
		// Best-effort delivery: partial text still counts.
		if text != "" {
			d.forward(text)
		}

	case text != "":
		d.limiter.RecordSuccess()
		d.clearPayloadError()
		d.forward(text)

	default:
		// Service heard nothing; nothing to merge, nothing to report.
	}
}

// Flush performs the final dispatch at session stop.
func (d *Dispatcher) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.Tick(ctx)
}

// Transcript returns the current accumulated transcript. Only valid once
// Run has returned; while running, read the snapshots the callback delivers.
func (d *Dispatcher) Transcript() string {
	return d.reconciler.Snapshot()
}

func (d *Dispatcher) forward(fragment string) {
	merged := d.reconciler.Apply(fragment)
	if d.onTranscript != nil {
		d.onTranscript(merged)
	}
}

func (d *Dispatcher) clearPayloadError() {
	if !d.payloadError {
		return
	}
	d.payloadError = false
	d.buffer.SetLimit(d.fullLimit)
	log.Printf("Dispatcher: restoring chunk window to %d", d.fullLimit)
}
