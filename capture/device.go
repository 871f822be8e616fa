package capture

import (
	"errors"
	"log"
	"sync"
)

// Device is a source of fixed-cadence audio chunks. Start registers the
// chunk callback and begins emission; Stop halts emission and releases the
// underlying source. A Device belongs to exactly one session at a time.
type Device interface {
	Start(onChunk func(data []byte)) error
	Stop()
}

// ErrDeviceClosed is returned when pushing into a stopped StreamDevice.
var ErrDeviceClosed = errors.New("capture: device closed")

// StreamDevice adapts a browser media stream to the Device interface. The
// websocket handler pushes decoded chunk bytes in; the device forwards them
// to the session's chunk callback.
type StreamDevice struct {
	mu      sync.Mutex
	onChunk func(data []byte)
	closed  bool
}

// NewStreamDevice creates an idle stream device.
func NewStreamDevice() *StreamDevice {
	return &StreamDevice{}
}

// Start registers the chunk callback and opens the device, reopening it
// after a previous Stop so one connection can run several sessions back to
// back. Chunks pushed before Start are lost, matching the browser behavior
// of joining a stream mid-flight.
func (s *StreamDevice) Start(onChunk func(data []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChunk = onChunk
	s.closed = false
	return nil
}

// Push hands one decoded media chunk to the session. Called from the
// websocket read loop.
func (s *StreamDevice) Push(data []byte) error {
	s.mu.Lock()
	cb := s.onChunk
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return ErrDeviceClosed
	}
	if cb != nil && len(data) > 0 {
		cb(data)
	}
	return nil
}

// Stop detaches the callback and rejects pushes until the next Start.
func (s *StreamDevice) Stop() {
	s.mu.Lock()
	s.onChunk = nil
	s.closed = true
	s.mu.Unlock()
}

// Acquire starts the preferred device, falling back to a synthetic
// generator when acquisition fails. It never returns an error: a session
// always gets a working chunk source, degraded or not. The returned bool
// reports whether the fallback was taken.
func Acquire(preferred Device, cadenceMs int, onChunk func(data []byte)) (Device, bool) {
	if preferred != nil {
		if err := preferred.Start(onChunk); err == nil {
			return preferred, false
		} else {
			log.Printf("Capture device unavailable, using synthetic source: %v", err)
		}
	}

	synth := NewSyntheticDevice(cadenceMs)
	// Synthetic start cannot fail; it only spins a timer.
	_ = synth.Start(onChunk)
	return synth, true
}
