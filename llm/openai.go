package llm

import (
	"context"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultSystemPrompt = `You are a thoughtful voice companion. The user is speaking aloud and their words arrive as an evolving transcript, so fragments may be mid-thought. Reply conversationally in a few short sentences suitable for being read out loud. Never mention the transcription process.`

// sentenceRe matches one complete sentence including its terminator.
var sentenceRe = regexp.MustCompile(`[^\.!\?]*[\.!\?]`)

// Client streams chat completions for accumulated transcripts. Responses
// are cut into whole sentences as they stream so TTS can start speaking
// before the model finishes.
type Client struct {
	client   *openai.Client
	model    string
	messages []openai.ChatCompletionMessage
	out      chan<- string
}

// NewClient creates a Client streaming response sentences into out.
func NewClient(apiKey, model, systemPrompt string, out chan<- string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if out == nil {
		return nil, fmt.Errorf("output channel is required")
	}
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	return &Client{
		client: openai.NewClient(apiKey),
		model:  model,
		messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
		out: out,
	}, nil
}

// StreamResponse sends the transcript as the next user turn and streams the
// reply sentence by sentence into the output channel. Errors are logged,
// never fatal: a failed response leaves the conversation open. Returns the
// complete reply, empty when the stream failed or was cancelled before
// finishing.
func (c *Client) StreamResponse(ctx context.Context, transcriptText string) string {
	c.messages = append(c.messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: transcriptText,
	})

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: c.messages,
		Stream:   true,
	})
	if err != nil {
		log.Printf("LLM stream create failed: %v", err)
		return ""
	}
	defer stream.Close()

	var buffer strings.Builder
	var full strings.Builder

	for {
		select {
		case <-ctx.Done():
			return ""
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if err != io.EOF {
				log.Printf("LLM stream recv: %v", err)
			}
			break
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		for _, sentence := range cutSentences(&buffer, delta) {
			if !c.emit(ctx, sentence) {
				return ""
			}
		}
	}

	if leftover := strings.TrimSpace(buffer.String()); leftover != "" {
		if !c.emit(ctx, leftover) {
			return ""
		}
	}

	// Keep the assistant turn in history so follow-up transcripts get
	// conversational context.
	reply := full.String()
	if reply != "" {
		c.messages = append(c.messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: reply,
		})
	}
	return reply
}

// emit pushes one sentence downstream, giving up when ctx is cancelled so a
// stopped consumer never wedges the stream loop.
func (c *Client) emit(ctx context.Context, sentence string) bool {
	select {
	case c.out <- sentence:
		return true
	case <-ctx.Done():
		return false
	}
}

// cutSentences appends the delta to the running buffer and extracts every
// complete sentence, leaving the partial tail buffered.
func cutSentences(buffer *strings.Builder, delta string) []string {
	buffer.WriteString(delta)
	text := buffer.String()

	var sentences []string
	for {
		loc := sentenceRe.FindStringIndex(text)
		if loc == nil {
			break
		}
		if s := strings.TrimSpace(text[:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		text = text[loc[1]:]
	}

	buffer.Reset()
	buffer.WriteString(text)
	return sentences
}
