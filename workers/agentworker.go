package workers

import (
	"context"
	"fmt"
	"log"

	"github.com/mrsingh-rishi/voice-web/llm"
)

// Checkpoint is one finalized transcript snapshot handed to the agent. It
// carries the persisted transcript record id so the completed reply can be
// stored against it.
type Checkpoint struct {
	TranscriptID string
	Text         string
}

// responder generates a spoken reply for a transcript, streaming sentences
// downstream as a side effect and returning the full reply text.
type responder interface {
	StreamResponse(ctx context.Context, transcriptText string) string
}

// AgentWorker turns finalized transcript checkpoints into spoken responses.
// It consumes the session's transcript channel and streams each reply,
// sentence by sentence, into the streaming channel for TTS. Completed
// replies are reported through onResponse for persistence.
type AgentWorker struct {
	ctx               context.Context
	cancel            context.CancelFunc
	client            responder
	transcriptChannel <-chan Checkpoint
	onResponse        func(transcriptID, reply string)
}

// NewAgentWorker wires an LLM client between the transcript channel and the
// streaming channel. onResponse may be nil when replies need no persistence.
func NewAgentWorker(apiKey, model string, streamingChannel chan<- string, transcriptChannel <-chan Checkpoint, onResponse func(transcriptID, reply string)) (*AgentWorker, error) {
	if transcriptChannel == nil {
		return nil, fmt.Errorf("transcript channel is required")
	}
	client, err := llm.NewClient(apiKey, model, "", streamingChannel)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AgentWorker{
		ctx:               ctx,
		cancel:            cancel,
		client:            client,
		transcriptChannel: transcriptChannel,
		onResponse:        onResponse,
	}, nil
}

// Start begins consuming transcripts on its own goroutine. Responses are
// generated one at a time; a transcript arriving mid-response waits its
// turn, so replies never interleave.
func (aw *AgentWorker) Start() {
	go func() {
		for {
			select {
			case <-aw.ctx.Done():
				return
			case cp, ok := <-aw.transcriptChannel:
				if !ok {
					return
				}
				if cp.Text == "" {
					continue
				}
				log.Printf("AgentWorker: responding to transcript (%d chars)", len(cp.Text))
				reply := aw.client.StreamResponse(aw.ctx, cp.Text)
				if reply != "" && aw.onResponse != nil {
					aw.onResponse(cp.TranscriptID, reply)
				}
			}
		}
	}()
}

// Stop signals the worker to exit.
func (aw *AgentWorker) Stop() {
	aw.cancel()
}
