package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/mrsingh-rishi/voice-web/audio"
)

func TestStreamDevicePushForwards(t *testing.T) {
	d := NewStreamDevice()

	var got [][]byte
	if err := d.Start(func(data []byte) { got = append(got, data) }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := d.Push([]byte("abc")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := d.Push(nil); err != nil {
		t.Fatalf("Push(nil): %v", err)
	}
	if len(got) != 1 || string(got[0]) != "abc" {
		t.Errorf("chunks = %v, want one chunk %q", got, "abc")
	}
}

func TestStreamDeviceStopRejectsPush(t *testing.T) {
	d := NewStreamDevice()
	_ = d.Start(func([]byte) {})
	d.Stop()

	if err := d.Push([]byte("late")); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("Push after Stop = %v, want ErrDeviceClosed", err)
	}
}

func TestStreamDeviceRestarts(t *testing.T) {
	d := NewStreamDevice()
	_ = d.Start(func([]byte) {})
	d.Stop()

	// A second Start on the same device reopens it; browsers reuse one
	// connection across several capture sessions.
	var got [][]byte
	if err := d.Start(func(data []byte) { got = append(got, data) }); err != nil {
		t.Fatalf("Start after Stop: %v", err)
	}
	if err := d.Push([]byte("again")); err != nil {
		t.Fatalf("Push after restart: %v", err)
	}
	if len(got) != 1 || string(got[0]) != "again" {
		t.Errorf("chunks = %v, want one chunk %q", got, "again")
	}
}

// failingDevice always refuses to start.
type failingDevice struct{}

func (failingDevice) Start(func(data []byte)) error { return errors.New("permission denied") }
func (failingDevice) Stop()                         {}

func TestAcquireFallsBackToSynthetic(t *testing.T) {
	chunks := make(chan []byte, 16)
	dev, degraded := Acquire(failingDevice{}, 10, func(data []byte) {
		select {
		case chunks <- data:
		default:
		}
	})
	defer dev.Stop()

	if !degraded {
		t.Fatal("acquisition failure should report degraded mode")
	}

	select {
	case chunk := <-chunks:
		if len(chunk) == 0 {
			t.Fatal("synthetic chunk should not be empty")
		}
		if level := audio.RMSEnergy(chunk); level <= 0 {
			t.Errorf("synthetic audio level = %f, want > 0", level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("synthetic device emitted no chunks")
	}
}

func TestSyntheticStopsEmitting(t *testing.T) {
	d := NewSyntheticDevice(5)
	chunks := make(chan []byte, 64)
	_ = d.Start(func(data []byte) {
		select {
		case chunks <- data:
		default:
		}
	})

	// Wait for at least one chunk so we know the loop is running.
	select {
	case <-chunks:
	case <-time.After(2 * time.Second):
		t.Fatal("no chunks before stop")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	drained := len(chunks)
	time.Sleep(100 * time.Millisecond)
	if len(chunks) > drained {
		t.Error("chunks kept arriving after Stop")
	}
	d.Stop() // idempotent
}
