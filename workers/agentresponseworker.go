package workers

import (
	"context"
	"fmt"
	"log"

	"github.com/mrsingh-rishi/voice-web/output"
	"github.com/mrsingh-rishi/voice-web/tts"
)

// AgentResponseWorker renders streamed response sentences to speech and
// forwards the audio to the output device channel, marking the end of each
// utterance so the browser can sequence playback.
type AgentResponseWorker struct {
	ctx              context.Context
	cancel           context.CancelFunc
	ttsClient        *tts.ElevenLabsClient
	streamingChannel <-chan string
	outputChannel    chan<- string
}

// NewAgentResponseWorker wires an ElevenLabs client between the streaming
// channel and the output device channel.
func NewAgentResponseWorker(apiKey, voiceID, modelID string, streamingChannel <-chan string, outputChannel chan<- string) (*AgentResponseWorker, error) {
	if streamingChannel == nil {
		return nil, fmt.Errorf("streaming channel is required")
	}
	client, err := tts.NewElevenLabsClient(apiKey, voiceID, modelID, outputChannel)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AgentResponseWorker{
		ctx:              ctx,
		cancel:           cancel,
		ttsClient:        client,
		streamingChannel: streamingChannel,
		outputChannel:    outputChannel,
	}, nil
}

// Start begins rendering sentences on its own goroutine. Synthesis is
// sequential so sentences play back in order.
func (w *AgentResponseWorker) Start() {
	go func() {
		for {
			select {
			case <-w.ctx.Done():
				return
			case sentence, ok := <-w.streamingChannel:
				if !ok {
					return
				}
				if sentence == "" {
					continue
				}
				if err := w.ttsClient.GenerateSpeech(w.ctx, sentence); err != nil {
					log.Printf("AgentResponseWorker: tts failed: %v", err)
					continue
				}
				select {
				case w.outputChannel <- output.EndOfUtterance:
				case <-w.ctx.Done():
					return
				}
			}
		}
	}()
}

// Stop signals the worker to exit.
func (w *AgentResponseWorker) Stop() {
	w.cancel()
}
