package output

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/mrsingh-rishi/voice-web/dispatch"
)

// EndOfUtterance is pushed through the audio channel after the last chunk
// of a spoken response so the browser can mark playback boundaries.
const EndOfUtterance = "__END_OF_UTTERANCE__"

// Event is one JSON frame pushed to the browser.
type Event struct {
	Event     string  `json:"event"`
	SessionID string  `json:"sessionId,omitempty"`
	Payload   string  `json:"payload,omitempty"`
	Level     float64 `json:"level,omitempty"`
}

// BrowserOutput serializes everything the server pushes down the websocket:
// transcript updates, audio-level ticks, response audio, playback marks,
// and rate-limit notices. All writes funnel through one goroutine because
// the websocket connection does not tolerate concurrent writers.
type BrowserOutput struct {
	ctx     context.Context
	cancel  context.CancelFunc
	ws      *websocket.Conn
	audioIn <-chan string
	events  chan Event

	mu        sync.Mutex
	sessionID string
}

// NewBrowserOutput creates an output worker for one connection.
func NewBrowserOutput(sessionID string, ws *websocket.Conn, audioIn <-chan string) (*BrowserOutput, error) {
	if ws == nil {
		return nil, fmt.Errorf("websocket connection is required")
	}
	if audioIn == nil {
		return nil, fmt.Errorf("audio input channel is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BrowserOutput{
		ctx:       ctx,
		cancel:    cancel,
		ws:        ws,
		sessionID: sessionID,
		audioIn:   audioIn,
		events:    make(chan Event, 64),
	}, nil
}

// Start begins draining audio and events onto the wire.
func (o *BrowserOutput) Start() {
	go func() {
		for {
			select {
			case <-o.ctx.Done():
				return
			case payload, ok := <-o.audioIn:
				if !ok {
					return
				}
				if payload == EndOfUtterance {
					o.write(Event{Event: "mark", SessionID: o.session()})
				} else {
					o.write(Event{Event: "audio", SessionID: o.session(), Payload: payload})
				}
			case ev := <-o.events:
				o.write(ev)
			}
		}
	}()
}

// SendTranscript queues a transcript update. The dispatcher's rate-limit
// sentinel becomes a distinct event so the UI can show a toast instead of
// rendering the sentinel as text.
func (o *BrowserOutput) SendTranscript(text string) {
	if text == dispatch.RateLimitSentinel {
		o.enqueue(Event{Event: "rate_limited", SessionID: o.session()})
		return
	}
	o.enqueue(Event{Event: "transcript", SessionID: o.session(), Payload: text})
}

// SendLevel queues an audio-level tick for UI animation.
func (o *BrowserOutput) SendLevel(level float64) {
	o.enqueue(Event{Event: "level", SessionID: o.session(), Level: level})
}

// SetSessionID updates the session id stamped on outgoing events. Set once
// the capture session has minted its id.
func (o *BrowserOutput) SetSessionID(id string) {
	o.mu.Lock()
	o.sessionID = id
	o.mu.Unlock()
}

func (o *BrowserOutput) session() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

func (o *BrowserOutput) enqueue(ev Event) {
	select {
	case o.events <- ev:
	default:
		// A wedged connection must not stall the pipeline.
	}
}

func (o *BrowserOutput) write(ev Event) {
	if err := o.ws.WriteJSON(ev); err != nil {
		log.Printf("BrowserOutput write error: %v", err)
	}
}

// Stop halts the drain loop. The connection is closed by its read loop
// owner, not here.
func (o *BrowserOutput) Stop() {
	o.cancel()
}
