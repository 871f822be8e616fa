// Package conversation binds one browser websocket connection to a capture
// session and the response pipeline for its lifetime.
package conversation

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"log"

	"github.com/gofiber/websocket/v2"

	"github.com/mrsingh-rishi/voice-web/capture"
	"github.com/mrsingh-rishi/voice-web/config"
	"github.com/mrsingh-rishi/voice-web/output"
	"github.com/mrsingh-rishi/voice-web/session"
	"github.com/mrsingh-rishi/voice-web/store"
	"github.com/mrsingh-rishi/voice-web/stt"
	"github.com/mrsingh-rishi/voice-web/workers"
)

// mediaEvent is the envelope the browser sends over /stream.
type mediaEvent struct {
	Event string `json:"event"` // "start", "media", "stop"
	Media struct {
		Payload string `json:"payload"` // base64 audio chunk
	} `json:"media"`
}

// Conversation owns everything attached to one websocket connection: the
// stream-fed capture device, the capture session, the agent workers, and
// the output writer. It is created on upgrade and torn down on disconnect.
type Conversation struct {
	ws        *websocket.Conn
	cfg       config.Config
	st        *store.Store
	visitorID string

	device  *capture.StreamDevice
	sess    *session.Session
	out     *output.BrowserOutput
	agent   *workers.AgentWorker
	speaker *workers.AgentResponseWorker

	transcriptChannel chan string
	agentInChannel    chan workers.Checkpoint
	streamingChannel  chan string
	outputChannel     chan string

	// per-session relay lifetime, reset on every start event
	relayStop chan struct{}
	relayDone chan struct{}

	workersStarted bool
}

// New wires a conversation for an upgraded connection. The response
// pipeline (LLM + TTS) is only attached when both API keys are configured;
// without them transcription still works, replies just never come.
func New(ws *websocket.Conn, cfg config.Config, st *store.Store, visitorID string) (*Conversation, error) {
	c := &Conversation{
		ws:                ws,
		cfg:               cfg,
		st:                st,
		visitorID:         visitorID,
		device:            capture.NewStreamDevice(),
		transcriptChannel: make(chan string, 4),
		agentInChannel:    make(chan workers.Checkpoint, 4),
		streamingChannel:  make(chan string, 16),
		outputChannel:     make(chan string, 64),
	}

	var transcriber stt.Transcriber
	if cfg.OpenAIAPIKey != "" {
		whisper, err := stt.NewWhisperClient(cfg.OpenAIAPIKey, cfg.WhisperModel)
		if err != nil {
			return nil, err
		}
		transcriber = whisper
	}

	c.sess = session.New(session.Options{
		Config:        cfg,
		Device:        c.device,
		Transcriber:   transcriber,
		VisitorID:     visitorID,
		TranscriptOut: c.transcriptChannel,
	})

	if cfg.OpenAIAPIKey != "" && cfg.ElevenLabsAPIKey != "" {
		agent, err := workers.NewAgentWorker(cfg.OpenAIAPIKey, cfg.OpenAIChatModel, c.streamingChannel, c.agentInChannel, c.saveResponse)
		if err != nil {
			return nil, err
		}
		speaker, err := workers.NewAgentResponseWorker(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoice, "", c.streamingChannel, c.outputChannel)
		if err != nil {
			return nil, err
		}
		c.agent = agent
		c.speaker = speaker
	} else {
		log.Println("Conversation: response pipeline disabled (missing API keys)")
	}

	return c, nil
}

// Run processes media events until the browser disconnects, then cleans up.
// It blocks for the connection's lifetime, on the websocket read loop.
func (c *Conversation) Run() {
	defer c.cleanup()

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Println("WebSocket closed:", err)
			} else {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		var ev mediaEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			log.Printf("JSON unmarshal error: %v", err)
			continue
		}

		switch ev.Event {
		case "start":
			c.start()

		case "media":
			chunk, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
			if err != nil {
				log.Printf("Base64 decode error: %v", err)
				continue
			}
			if err := c.device.Push(chunk); err != nil {
				log.Printf("Chunk push error: %v", err)
			}

		case "stop":
			c.stop()

		default:
			log.Printf("Unknown event: %s", ev.Event)
		}
	}
}

// start spins up the session and all attached workers.
func (c *Conversation) start() {
	if c.sess.Active() {
		return
	}

	if c.out == nil {
		out, err := output.NewBrowserOutput("", c.ws, c.outputChannel)
		if err != nil {
			log.Printf("Conversation: output setup failed: %v", err)
			return
		}
		c.out = out
		c.out.Start()
	}

	c.sess.Start(c.out.SendLevel, c.out.SendTranscript)
	sessionID := c.sess.ID()
	c.out.SetSessionID(sessionID)

	if _, err := c.st.CreateSession(sessionID, c.visitorID); err != nil {
		log.Printf("Conversation: session persist failed: %v", err)
	}

	c.relayStop = make(chan struct{})
	c.relayDone = make(chan struct{})
	go c.relayTranscripts(sessionID, c.relayStop, c.relayDone)
	// The agent workers are connection-scoped; start them once, not per
	// session.
	if c.agent != nil && !c.workersStarted {
		c.agent.Start()
		c.speaker.Start()
		c.workersStarted = true
	}

	log.Printf("Conversation: session %s started (visitor=%s, degraded=%v)", sessionID, c.visitorID, c.sess.Degraded())
}

// relayTranscripts persists each transcript checkpoint for one session and
// hands it to the agent worker. The relay lives exactly as long as its
// session: on stop it drains checkpoints already buffered, so the final
// transcript lands under the right session id, then exits.
func (c *Conversation) relayTranscripts(sessionID string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			for {
				select {
				case text := <-c.transcriptChannel:
					c.persistCheckpoint(sessionID, text)
				default:
					return
				}
			}
		case text := <-c.transcriptChannel:
			c.persistCheckpoint(sessionID, text)
		}
	}
}

func (c *Conversation) persistCheckpoint(sessionID, text string) {
	tr, err := c.st.SaveTranscript(sessionID, text)
	if err != nil {
		log.Printf("Conversation: transcript persist failed: %v", err)
		return
	}
	if c.agent != nil {
		select {
		case c.agentInChannel <- workers.Checkpoint{TranscriptID: tr.ID, Text: text}:
		default:
			log.Println("Conversation: agent busy, dropping checkpoint")
		}
	}
}

// saveResponse persists a completed reply against its transcript record.
func (c *Conversation) saveResponse(transcriptID, reply string) {
	if _, err := c.st.SaveResponse(transcriptID, reply, ""); err != nil {
		log.Printf("Conversation: response persist failed: %v", err)
	}
}

// stop ends the session but keeps the connection open so the browser can
// start a fresh session on the same socket.
func (c *Conversation) stop() {
	if !c.sess.Active() {
		return
	}
	sessionID := c.sess.ID()
	c.sess.Stop()

	// The session's final flush has already queued its last checkpoint;
	// wait for the relay to drain and exit before a new session can start.
	if c.relayStop != nil {
		close(c.relayStop)
		<-c.relayDone
		c.relayStop, c.relayDone = nil, nil
	}

	if err := c.st.EndSession(sessionID); err != nil {
		log.Printf("Conversation: session end persist failed: %v", err)
	}
	if final := c.sess.Transcript(); final != "" {
		if tr, err := c.st.LatestTranscript(sessionID); err == sql.ErrNoRows || (err == nil && tr.Text != final) {
			if _, err := c.st.SaveTranscript(sessionID, final); err != nil {
				log.Printf("Conversation: final transcript persist failed: %v", err)
			}
		}
	}
}

// cleanup releases every resource owned by the conversation.
func (c *Conversation) cleanup() {
	c.stop()
	c.device.Stop()
	if c.agent != nil {
		c.agent.Stop()
	}
	if c.speaker != nil {
		c.speaker.Stop()
	}
	if c.out != nil {
		c.out.Stop()
	}
	c.ws.Close()
}
