package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrsingh-rishi/voice-web/audio"
	"github.com/mrsingh-rishi/voice-web/capture"
	"github.com/mrsingh-rishi/voice-web/config"
	"github.com/mrsingh-rishi/voice-web/dispatch"
	"github.com/mrsingh-rishi/voice-web/ratelimit"
	"github.com/mrsingh-rishi/voice-web/stt"
	"github.com/mrsingh-rishi/voice-web/transcript"
)

// Options configures a capture session. Zero values degrade rather than
// fail: a nil Device means synthetic audio, a nil Transcriber means canned
// dummy transcripts.
type Options struct {
	Config      config.Config
	Device      capture.Device
	Transcriber stt.Transcriber
	VisitorID   string

	// TranscriptOut, when set, receives the accumulated transcript at each
	// response checkpoint and once more at stop, feeding the downstream
	// response pipeline. Sends are non-blocking; a slow consumer misses
	// checkpoints, never stalls capture.
	TranscriptOut chan<- string
}

// Session binds a capture device, the transcription dispatcher, and the
// transcript reconciler into one Idle -> Capturing -> Idle lifecycle.
// Start while capturing and Stop while idle are both no-ops: the caller can
// never misuse the lifecycle into an error.
type Session struct {
	opts Options

	mu             sync.Mutex
	active         bool
	generation     int
	id             string
	degraded       bool
	lastTranscript string
	lastCheckpoint string

	device     capture.Device
	dispatcher *dispatch.Dispatcher
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates an idle session.
func New(opts Options) *Session {
	return &Session{opts: opts}
}

// Start acquires the capture device (with synthetic fallback), resets all
// per-session state, and begins the chunk emission loop and the dispatch
// timer. Device acquisition failure is never fatal: the session reports
// started either way, just in degraded mode. Starting an active session is
// a no-op.
func (s *Session) Start(onAudioLevel func(level float64), onTranscript func(text string)) {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	s.active = true
	s.id = uuid.NewString()
	s.lastTranscript = ""
	s.lastCheckpoint = ""
	s.done = make(chan struct{})
	id := s.id
	s.mu.Unlock()

	cfg := s.opts.Config
	buffer := audio.NewBuffer(cfg.MaxChunks)
	limiter := ratelimit.New(cfg.MinBackoff, cfg.MaxBackoff, cfg.NotifyInterval)
	reconciler := transcript.NewReconciler(cfg.MinOverlap, cfg.MaxOverlap)

	onChunk := func(data []byte) {
		if !s.current(gen) {
			return
		}
		buffer.AddChunk(audio.Chunk{Data: data, Timestamp: time.Now()})
		if onAudioLevel != nil {
			onAudioLevel(audio.RMSEnergy(data))
		}
	}

	cadenceMs := int(cfg.ChunkCadence / time.Millisecond)
	device, degraded := capture.Acquire(s.opts.Device, cadenceMs, onChunk)

	transcriber := s.opts.Transcriber
	if transcriber == nil || degraded {
		// No real audio or no real service: run the dummy transcription
		// path so the experience stays alive end to end.
		transcriber = stt.NewDummyTranscriber(time.Now().UnixNano())
	}

	textCb := func(text string) {
		if !s.current(gen) {
			return
		}
		if text != dispatch.RateLimitSentinel {
			s.mu.Lock()
			s.lastTranscript = text
			s.mu.Unlock()
		}
		if onTranscript != nil {
			onTranscript(text)
		}
	}

	sc := stt.SessionContext{VisitorID: s.opts.VisitorID, SessionID: id}
	dispatcher := dispatch.New(buffer, limiter, reconciler, transcriber, sc, cfg.DispatchInterval, textCb)

	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.device = device
	s.degraded = degraded
	s.dispatcher = dispatcher
	s.cancel = cancel
	done := s.done
	s.mu.Unlock()

	go func() {
		dispatcher.Run(ctx)
		s.finalize(dispatcher)
		close(done)
	}()
	go s.checkpointLoop(ctx, gen)

	log.Printf("Session %s started (degraded=%v)", id, degraded)
}

// Stop halts the emission loop and dispatch timer, releases the device, and
// waits for the final flush. The accumulated transcript stays readable via
// Transcript. Idempotent: stopping an idle session is a no-op, and no
// callbacks fire after Stop returns.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.generation++ // in-flight results for the old generation are discarded
	device := s.device
	cancel := s.cancel
	done := s.done
	id := s.id
	s.mu.Unlock()

	if device != nil {
		device.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(15 * time.Second):
			log.Printf("Session %s: final flush timed out", id)
		}
	}

	log.Printf("Session %s stopped", id)
}

// Active reports whether the session is capturing.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ID returns the current session identifier, empty before the first Start.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Degraded reports whether the session fell back to synthetic capture.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Transcript returns the latest accumulated transcript snapshot.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTranscript
}

func (s *Session) current(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.generation == gen
}

// checkpointLoop periodically hands the accumulated transcript to the
// response pipeline so the agent can answer mid-session, not only at stop.
func (s *Session) checkpointLoop(ctx context.Context, gen int) {
	if s.opts.TranscriptOut == nil || s.opts.Config.ResponseCheckpoints <= 0 {
		return
	}
	ticker := time.NewTicker(s.opts.Config.ResponseCheckpoints)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.current(gen) {
				return
			}
			s.emitCheckpoint()
		}
	}
}

// finalize runs after the dispatcher's last flush: cache the final
// transcript and emit a last checkpoint for the response pipeline.
func (s *Session) finalize(d *dispatch.Dispatcher) {
	final := d.Transcript()

	s.mu.Lock()
	if final != "" {
		s.lastTranscript = final
	}
	s.mu.Unlock()

	s.emitCheckpoint()
}

// emitCheckpoint sends the transcript downstream if it grew since the last
// send. Non-blocking by design.
func (s *Session) emitCheckpoint() {
	if s.opts.TranscriptOut == nil {
		return
	}

	s.mu.Lock()
	text := s.lastTranscript
	changed := text != "" && text != s.lastCheckpoint
	if changed {
		s.lastCheckpoint = text
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	select {
	case s.opts.TranscriptOut <- text:
	default:
		log.Println("Session: response pipeline busy, skipping checkpoint")
	}
}
