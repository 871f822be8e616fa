package workers

import (
	"context"
	"testing"
	"time"
)

// fakeResponder maps transcripts to canned replies.
type fakeResponder struct {
	replies map[string]string
}

func (f *fakeResponder) StreamResponse(ctx context.Context, transcriptText string) string {
	return f.replies[transcriptText]
}

type savedReply struct {
	transcriptID string
	reply        string
}

func newTestWorker(fake *fakeResponder, in <-chan Checkpoint, saved chan<- savedReply) *AgentWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &AgentWorker{
		ctx:               ctx,
		cancel:            cancel,
		client:            fake,
		transcriptChannel: in,
		onResponse: func(id, reply string) {
			saved <- savedReply{transcriptID: id, reply: reply}
		},
	}
}

func TestAgentWorkerPersistsCompletedReplies(t *testing.T) {
	in := make(chan Checkpoint, 2)
	saved := make(chan savedReply, 2)
	fake := &fakeResponder{replies: map[string]string{
		"hello there": "Hi! What's on your mind?",
	}}

	aw := newTestWorker(fake, in, saved)
	aw.Start()
	defer aw.Stop()

	in <- Checkpoint{TranscriptID: "tr-1", Text: "hello there"}

	select {
	case got := <-saved:
		if got.transcriptID != "tr-1" {
			t.Errorf("transcript id = %q, want tr-1", got.transcriptID)
		}
		if got.reply != "Hi! What's on your mind?" {
			t.Errorf("reply = %q", got.reply)
		}
	case <-time.After(time.Second):
		t.Fatal("completed reply was never reported")
	}
}

func TestAgentWorkerSkipsEmptyReplies(t *testing.T) {
	in := make(chan Checkpoint, 2)
	saved := make(chan savedReply, 2)
	fake := &fakeResponder{replies: map[string]string{
		"broken checkpoint": "",
		"working one":       "A real answer.",
	}}

	aw := newTestWorker(fake, in, saved)
	aw.Start()
	defer aw.Stop()

	// The failed reply must not be persisted; the next one still is,
	// proving the first was skipped rather than delayed.
	in <- Checkpoint{TranscriptID: "tr-1", Text: "broken checkpoint"}
	in <- Checkpoint{TranscriptID: "tr-2", Text: "working one"}

	select {
	case got := <-saved:
		if got.transcriptID != "tr-2" {
			t.Errorf("persisted reply for %q, want only tr-2", got.transcriptID)
		}
	case <-time.After(time.Second):
		t.Fatal("second reply was never reported")
	}
}
