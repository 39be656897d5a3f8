package llm

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pmeller/verba/errors"
)

// StreamEvent is one item on the token-sink queue: either a text fragment or
// the terminal done marker.
type StreamEvent struct {
	Text string
	Done bool
}

// AbortSignal is an externally settable cancellation flag. The streaming
// pipeline observes it cooperatively on a poll interval.
type AbortSignal struct {
	aborted atomic.Bool
}

func NewAbortSignal() *AbortSignal {
	return &AbortSignal{}
}

func (a *AbortSignal) Set() {
	a.aborted.Store(true)
}

func (a *AbortSignal) Reset() {
	a.aborted.Store(false)
}

func (a *AbortSignal) Aborted() bool {
	return a.aborted.Load()
}

// EventQueue is an unbounded in-order queue of stream events. Producers never
// block; the consumer blocks in Next until an event arrives or the queue is
// closed.
type EventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []StreamEvent
	closed bool
}

func NewEventQueue() *EventQueue {
	q := &EventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *EventQueue) Push(ev StreamEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, ev)
	q.cond.Signal()
}

func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Next returns the next event in arrival order. The second return is false
// once the queue is closed and drained.
func (q *EventQueue) Next() (StreamEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return StreamEvent{}, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	return ev, true
}

// ReplyHandler accumulates the reply text for one in-flight exchange and
// forwards each fragment to the event queue. The buffer only ever grows, and
// Snapshot may be read at any point while tokens keep arriving; fragments are
// whole UTF-8 tokens, so a snapshot never splits a character.
type ReplyHandler struct {
	mu     sync.Mutex
	buffer strings.Builder
	done   bool
	events *EventQueue
	abort  *AbortSignal
}

func NewReplyHandler(abort *AbortSignal) *ReplyHandler {
	return &ReplyHandler{
		events: NewEventQueue(),
		abort:  abort,
	}
}

// Text appends a decoded fragment and forwards it to the renderer. After Done
// has run it fails, which aborts any still-running stream consumer.
func (h *ReplyHandler) Text(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return errors.New("reply already finalized")
	}
	if text == "" {
		return nil
	}
	h.buffer.WriteString(text)
	h.events.Push(StreamEvent{Text: text})
	return nil
}

// Done finalizes the exchange. Only the first call emits the done marker;
// later calls are no-ops, so the caller may finalize on every exit path.
func (h *ReplyHandler) Done() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	h.done = true
	h.events.Push(StreamEvent{Done: true})
	h.events.Close()
}

// Snapshot returns the text accumulated so far.
func (h *ReplyHandler) Snapshot() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buffer.String()
}

func (h *ReplyHandler) Events() *EventQueue {
	return h.events
}

func (h *ReplyHandler) Abort() *AbortSignal {
	return h.abort
}
