package llm

import (
	"context"
	"strings"
	"testing"
	"time"
)

// scriptedClient streams a fixed set of fragments, optionally failing or
// stalling after them.
type scriptedClient struct {
	model     *Model
	fragments []string
	failWith  error
	stall     bool
}

func (c *scriptedClient) Model() *Model     { return c.model }
func (c *scriptedClient) SetModel(m *Model) { c.model = m }

func (c *scriptedClient) SendMessage(ctx context.Context, data SendData) (string, error) {
	if c.failWith != nil {
		return "", c.failWith
	}
	return strings.Join(c.fragments, ""), nil
}

func (c *scriptedClient) SendMessageStreaming(ctx context.Context, data SendData, handler *ReplyHandler) error {
	return streamWithAbort(ctx, data, handler, func(ctx context.Context, data SendData, handler *ReplyHandler) error {
		for _, f := range c.fragments {
			if err := handler.Text(f); err != nil {
				return err
			}
		}
		if c.stall {
			<-ctx.Done()
			return ctx.Err()
		}
		return c.failWith
	})
}

func drain(events *EventQueue) error {
	for {
		if _, ok := events.Next(); !ok {
			return nil
		}
	}
}

func TestSendStreamCollectsReply(t *testing.T) {
	client := &scriptedClient{fragments: []string{"hel", "lo"}}
	reply, err := SendStream(context.Background(), client, SendData{}, NewAbortSignal(), drain)
	if err != nil {
		t.Fatalf("SendStream failed: %v", err)
	}
	if reply != "hello" {
		t.Errorf("Expected reply 'hello', got %q", reply)
	}
}

func TestSendStreamAbortIsSuccess(t *testing.T) {
	client := &scriptedClient{fragments: []string{"partial "}, stall: true}
	abort := NewAbortSignal()
	go func() {
		time.Sleep(20 * time.Millisecond)
		abort.Set()
	}()

	reply, err := SendStream(context.Background(), client, SendData{}, abort, drain)
	if err != nil {
		t.Fatalf("Expected an aborted stream to succeed, got %v", err)
	}
	if reply != "partial " {
		t.Errorf("Expected the partial text to survive the abort, got %q", reply)
	}
}

func TestSendStreamErrorPreservesPartialText(t *testing.T) {
	client := &scriptedClient{
		fragments: []string{"before the crash"},
		failWith:  context.DeadlineExceeded,
	}
	reply, err := SendStream(context.Background(), client, SendData{}, NewAbortSignal(), drain)
	if err == nil {
		t.Fatal("Expected the stream error to surface, got nil")
	}
	if reply != "before the crash" {
		t.Errorf("Expected partial text to be preserved, got %q", reply)
	}
}

func TestStreamWithAbortFinalizesOnError(t *testing.T) {
	handler := NewReplyHandler(NewAbortSignal())
	go drain(handler.Events())

	err := streamWithAbort(context.Background(), SendData{}, handler, func(ctx context.Context, data SendData, h *ReplyHandler) error {
		return context.DeadlineExceeded
	})
	if err == nil {
		t.Fatal("Expected the inner error to surface, got nil")
	}
	// Finalization must have happened before the error surfaced.
	if textErr := handler.Text("late"); textErr == nil {
		t.Error("Expected the handler to be finalized before the error returned")
	}
}

func TestSendStreamRendererSeesEveryFragmentOnceDone(t *testing.T) {
	client := &scriptedClient{fragments: []string{"a", "b", "c"}}
	var rendered strings.Builder
	doneEvents := 0

	_, err := SendStream(context.Background(), client, SendData{}, NewAbortSignal(), func(events *EventQueue) error {
		for {
			ev, ok := events.Next()
			if !ok {
				return nil
			}
			if ev.Done {
				doneEvents++
				continue
			}
			rendered.WriteString(ev.Text)
		}
	})
	if err != nil {
		t.Fatalf("SendStream failed: %v", err)
	}
	if rendered.String() != "abc" {
		t.Errorf("Expected renderer to see 'abc', got %q", rendered.String())
	}
	if doneEvents != 1 {
		t.Errorf("Expected exactly 1 done event, got %d", doneEvents)
	}
}

func TestMockClientStreaming(t *testing.T) {
	client := &MockClient{Reply: "canned"}
	reply, err := SendStream(context.Background(), client, SendData{}, NewAbortSignal(), drain)
	if err != nil {
		t.Fatalf("SendStream failed: %v", err)
	}
	if reply != "canned" {
		t.Errorf("Expected reply 'canned', got %q", reply)
	}
}
