package capture

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// SyntheticDevice generates plausible fake audio when no real capture
// source is available: a low-amplitude sine carrier with a slowly wandering
// envelope, so downstream level meters animate like real speech. Emission
// runs at the same cadence a real device would use.
type SyntheticDevice struct {
	cadence time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	rng     *rand.Rand
}

// NewSyntheticDevice creates a generator emitting every cadenceMs.
func NewSyntheticDevice(cadenceMs int) *SyntheticDevice {
	if cadenceMs <= 0 {
		cadenceMs = 250
	}
	return &SyntheticDevice{
		cadence: time.Duration(cadenceMs) * time.Millisecond,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins emitting synthetic PCM chunks on its own goroutine.
func (d *SyntheticDevice) Start(onChunk func(data []byte)) error {
	d.ctx, d.cancel = context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(d.cadence)
		defer ticker.Stop()

		phase := 0.0
		envelope := 0.3
		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				chunk, nextPhase, nextEnv := d.generate(phase, envelope)
				phase, envelope = nextPhase, nextEnv
				onChunk(chunk)
			}
		}
	}()
	return nil
}

// Stop halts emission. Safe to call more than once.
func (d *SyntheticDevice) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
}

// generate produces one cadence worth of 16kHz mono 16-bit PCM.
func (d *SyntheticDevice) generate(phase, envelope float64) ([]byte, float64, float64) {
	const sampleRate = 16000
	samples := int(float64(sampleRate) * d.cadence.Seconds())
	chunk := make([]byte, samples*2)

	// Random-walk the envelope so amplitude rises and falls like speech.
	envelope += (d.rng.Float64() - 0.5) * 0.1
	if envelope < 0.05 {
		envelope = 0.05
	}
	if envelope > 0.8 {
		envelope = 0.8
	}

	freq := 180.0 + d.rng.Float64()*60.0
	step := 2 * math.Pi * freq / sampleRate
	for i := 0; i < samples; i++ {
		phase += step
		v := math.Sin(phase) * envelope
		sample := int16(v * 32767)
		chunk[i*2] = byte(sample & 0xFF)
		chunk[i*2+1] = byte((sample >> 8) & 0xFF)
	}
	return chunk, phase, envelope
}
