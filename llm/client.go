package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/pmeller/verba/errors"
)

// abortPollInterval is how often the watcher checks the abort signal while a
// stream is being consumed. An abort is observed at the next tick, so token
// delivery already in flight for that tick still completes.
const abortPollInterval = 50 * time.Millisecond

// SendData is the provider-independent request payload built from the active
// session, role and overrides.
type SendData struct {
	Messages    []Message
	Temperature *float64
	TopP        *float64
	Stream      bool
}

// Client is the interface every backend adapter implements. SendMessage
// returns the full reply text; SendMessageStreaming feeds fragments through
// the handler and finalizes it exactly once on every path.
type Client interface {
	Model() *Model
	SetModel(*Model)
	SendMessage(ctx context.Context, data SendData) (string, error)
	SendMessageStreaming(ctx context.Context, data SendData, handler *ReplyHandler) error
}

// streamFunc is a backend's inner streaming implementation.
type streamFunc func(ctx context.Context, data SendData, handler *ReplyHandler) error

// streamWithAbort races inner against the handler's abort signal. Whichever
// finishes first decides the outcome: on completion the error (if any) is
// surfaced only after the handler is finalized, so accumulated partial text
// survives; on abort the inner context is cancelled, the handler is finalized
// and the call reports success, because a user abort is not an error.
func streamWithAbort(ctx context.Context, data SendData, handler *ReplyHandler, inner streamFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- inner(ctx, data, handler)
	}()

	ticker := time.NewTicker(abortPollInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-result:
			handler.Done()
			return errors.Wrapf(err, "failed to get answer")
		case <-ticker.C:
			if handler.Abort().Aborted() {
				handler.Done()
				return nil
			}
		}
	}
}

// SendStream runs one streaming exchange: the client feeds tokens into the
// handler while render drains the event queue. It returns the accumulated
// text, which is preserved even when the stream fails mid-reply.
func SendStream(ctx context.Context, client Client, data SendData, abort *AbortSignal, render func(*EventQueue) error) (string, error) {
	data.Stream = true
	handler := NewReplyHandler(abort)

	renderResult := make(chan error, 1)
	go func() {
		renderResult <- render(handler.Events())
	}()

	sendErr := client.SendMessageStreaming(ctx, data, handler)
	renderErr := <-renderResult

	output := handler.Snapshot()
	if sendErr != nil {
		return output, sendErr
	}
	if renderErr != nil {
		return output, errors.Wrapf(renderErr, "render failed")
	}
	return output, nil
}

// newHTTPClient builds the shared transport for the raw-HTTP adapters.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: connectTimeout,
		},
	}
}
