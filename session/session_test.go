package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mrsingh-rishi/voice-web/audio"
	"github.com/mrsingh-rishi/voice-web/capture"
	"github.com/mrsingh-rishi/voice-web/config"
	"github.com/mrsingh-rishi/voice-web/dispatch"
	"github.com/mrsingh-rishi/voice-web/stt"
)

func testConfig() config.Config {
	return config.Config{
		ChunkCadence:        10 * time.Millisecond,
		DispatchInterval:    20 * time.Millisecond,
		MaxChunks:           40,
		MinBackoff:          50 * time.Millisecond,
		MaxBackoff:          500 * time.Millisecond,
		NotifyInterval:      10 * time.Second,
		MinOverlap:          5,
		MaxOverlap:          100,
		ResponseCheckpoints: 30 * time.Millisecond,
	}
}

// failingDevice simulates a denied microphone permission.
type failingDevice struct{}

func (failingDevice) Start(func(data []byte)) error { return errors.New("permission denied") }
func (failingDevice) Stop()                         {}

// recorder collects callback invocations behind a lock.
type recorder struct {
	mu      sync.Mutex
	levels  []float64
	texts   []string
	stopped bool
}

func (r *recorder) onLevel(l float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		panic("level callback after stop")
	}
	r.levels = append(r.levels, l)
}

func (r *recorder) onText(t string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		panic("transcript callback after stop")
	}
	r.texts = append(r.texts, t)
}

func (r *recorder) markStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
}

func (r *recorder) snapshot() ([]float64, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.levels...), append([]string(nil), r.texts...)
}

func TestDegradedSessionEndToEnd(t *testing.T) {
	s := New(Options{Config: testConfig(), Device: failingDevice{}})
	rec := &recorder{}

	s.Start(rec.onLevel, rec.onText)
	if !s.Active() {
		t.Fatal("session should report active even when device acquisition fails")
	}
	if !s.Degraded() {
		t.Fatal("session should be in degraded mode")
	}
	if s.ID() == "" {
		t.Fatal("session should mint an id")
	}

	// Synthetic chunks and dummy transcripts flow; give them a moment.
	deadline := time.Now().Add(3 * time.Second)
	for {
		levels, texts := rec.snapshot()
		if len(levels) > 0 && len(texts) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no synthetic activity: %d levels, %d texts", len(levels), len(texts))
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Stop()
	rec.markStopped()
	// Any callback past this point panics via the recorder.
	time.Sleep(100 * time.Millisecond)

	if s.Active() {
		t.Error("session should be idle after stop")
	}
	if s.Transcript() == "" {
		t.Error("accumulated transcript should survive stop")
	}
	s.Stop() // idempotent
}

func TestStartWhileActiveIsNoOp(t *testing.T) {
	s := New(Options{Config: testConfig(), Device: failingDevice{}})
	s.Start(nil, nil)
	defer s.Stop()

	id := s.ID()
	s.Start(nil, nil)
	if s.ID() != id {
		t.Error("starting an active session should not restart it")
	}
}

func TestStopIdleIsNoOp(t *testing.T) {
	s := New(Options{Config: testConfig()})
	s.Stop()
	if s.Active() {
		t.Error("idle session should stay idle")
	}
}

// scriptedTranscriber replays results; used with a real stream device so
// the full start -> chunks -> dispatch -> merge path runs.
type scriptedTranscriber struct {
	mu     sync.Mutex
	script []struct {
		text string
		err  error
	}
	calls int
}

func (s *scriptedTranscriber) Transcribe(ctx context.Context, payload audio.Payload, sc stt.SessionContext) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.script) {
		return "", nil
	}
	step := s.script[s.calls]
	s.calls++
	return step.text, step.err
}

func TestRateLimitThenRecovery(t *testing.T) {
	tr := &scriptedTranscriber{}
	tr.script = []struct {
		text string
		err  error
	}{
		{err: stt.ErrRateLimited},
		{text: "hello world"},
		{text: "world peace"},
	}

	dev := capture.NewStreamDevice()
	s := New(Options{Config: testConfig(), Device: dev, Transcriber: tr})
	rec := &recorder{}
	s.Start(rec.onLevel, rec.onText)

	// Feed chunks like a browser stream would.
	stopFeed := make(chan struct{})
	go func() {
		for {
			select {
			case <-stopFeed:
				return
			default:
				_ = dev.Push([]byte{1, 2, 3, 4})
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()

	deadline := time.Now().Add(3 * time.Second)
	var texts []string
	for {
		_, texts = rec.snapshot()
		if len(texts) >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pipeline did not recover, texts = %v", texts)
		}
		time.Sleep(10 * time.Millisecond)
	}
	close(stopFeed)

	sentinels := 0
	for _, txt := range texts {
		if txt == dispatch.RateLimitSentinel {
			sentinels++
		}
	}
	if sentinels != 1 {
		t.Errorf("got %d rate-limit notifications, want exactly 1 (texts = %v)", sentinels, texts)
	}
	final := texts[len(texts)-1]
	if !strings.Contains(final, "hello world peace") {
		t.Errorf("final transcript = %q, want overlap-merged text", final)
	}

	s.Stop()
	rec.markStopped()
	if got := s.Transcript(); !strings.Contains(got, "hello world peace") {
		t.Errorf("Transcript() = %q", got)
	}
}

func TestRestartReusesStreamDevice(t *testing.T) {
	tr := &scriptedTranscriber{}
	tr.script = []struct {
		text string
		err  error
	}{
		{text: "first session"},
		{text: "second session"},
	}

	dev := capture.NewStreamDevice()
	s := New(Options{Config: testConfig(), Device: dev, Transcriber: tr})

	s.Start(nil, nil)
	firstID := s.ID()
	_ = dev.Push([]byte{1, 2})
	s.Stop()

	// The browser sends start again on the same socket; the same device
	// must come back for real, not fall back to synthetic audio.
	rec := &recorder{}
	s.Start(rec.onLevel, rec.onText)
	defer s.Stop()

	if s.Degraded() {
		t.Fatal("restarted session should not be degraded")
	}
	if s.ID() == firstID {
		t.Error("restart should mint a fresh session id")
	}
	if err := dev.Push([]byte{3, 4}); err != nil {
		t.Fatalf("Push after restart: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		levels, _ := rec.snapshot()
		if len(levels) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no chunks reached the restarted session")
		}
		_ = dev.Push([]byte{5, 6})
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCheckpointDelivery(t *testing.T) {
	tr := &scriptedTranscriber{}
	tr.script = []struct {
		text string
		err  error
	}{
		{text: "checkpoint me"},
	}

	out := make(chan string, 4)
	dev := capture.NewStreamDevice()
	s := New(Options{Config: testConfig(), Device: dev, Transcriber: tr, TranscriptOut: out})
	s.Start(nil, nil)

	for i := 0; i < 10; i++ {
		_ = dev.Push([]byte{9, 9})
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case got := <-out:
		if got != "checkpoint me" {
			t.Errorf("checkpoint = %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no checkpoint delivered")
	}
	s.Stop()
}
