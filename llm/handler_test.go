package llm

import (
	"sync"
	"testing"
)

func TestEventQueueOrder(t *testing.T) {
	q := NewEventQueue()
	q.Push(StreamEvent{Text: "a"})
	q.Push(StreamEvent{Text: "b"})
	q.Push(StreamEvent{Text: "c"})
	q.Close()

	var got []string
	for {
		ev, ok := q.Next()
		if !ok {
			break
		}
		got = append(got, ev.Text)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("Expected events in push order [a b c], got %v", got)
	}
}

func TestEventQueuePushAfterClose(t *testing.T) {
	q := NewEventQueue()
	q.Close()
	q.Push(StreamEvent{Text: "late"})
	if _, ok := q.Next(); ok {
		t.Error("Expected no events after close, got one")
	}
}

func TestEventQueueBlocksUntilPush(t *testing.T) {
	q := NewEventQueue()
	done := make(chan StreamEvent)
	go func() {
		ev, _ := q.Next()
		done <- ev
	}()
	q.Push(StreamEvent{Text: "x"})
	if ev := <-done; ev.Text != "x" {
		t.Errorf("Expected blocked Next to receive 'x', got %q", ev.Text)
	}
}

func TestReplyHandlerAccumulatesAndForwards(t *testing.T) {
	h := NewReplyHandler(NewAbortSignal())
	if err := h.Text("hel"); err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if err := h.Text("lo"); err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if h.Snapshot() != "hello" {
		t.Errorf("Expected snapshot 'hello', got %q", h.Snapshot())
	}
	h.Done()

	var texts []string
	doneEvents := 0
	for {
		ev, ok := h.Events().Next()
		if !ok {
			break
		}
		if ev.Done {
			doneEvents++
		} else {
			texts = append(texts, ev.Text)
		}
	}
	if len(texts) != 2 {
		t.Errorf("Expected 2 text events, got %d", len(texts))
	}
	if doneEvents != 1 {
		t.Errorf("Expected exactly 1 done event, got %d", doneEvents)
	}
}

func TestReplyHandlerDoneIsIdempotent(t *testing.T) {
	h := NewReplyHandler(NewAbortSignal())
	h.Done()
	h.Done()
	h.Done()

	doneEvents := 0
	for {
		ev, ok := h.Events().Next()
		if !ok {
			break
		}
		if ev.Done {
			doneEvents++
		}
	}
	if doneEvents != 1 {
		t.Errorf("Expected exactly 1 done event after repeated Done, got %d", doneEvents)
	}
}

func TestReplyHandlerTextAfterDone(t *testing.T) {
	h := NewReplyHandler(NewAbortSignal())
	h.Done()
	if err := h.Text("late"); err == nil {
		t.Error("Expected an error for Text after Done, got nil")
	}
	if h.Snapshot() != "" {
		t.Errorf("Expected late text to be dropped, snapshot is %q", h.Snapshot())
	}
}

func TestReplyHandlerConcurrentTextPreservesAll(t *testing.T) {
	h := NewReplyHandler(NewAbortSignal())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Text("x")
		}()
	}
	wg.Wait()
	if len(h.Snapshot()) != 50 {
		t.Errorf("Expected 50 bytes in the snapshot, got %d", len(h.Snapshot()))
	}
}
