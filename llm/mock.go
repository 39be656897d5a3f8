package llm

import (
	"context"
	"fmt"
)

// MockClient is a placeholder for testing. It parrots the last message back,
// or returns the canned Reply when one is set.
type MockClient struct {
	Reply string
	Err   error
	model *Model
}

func (c *MockClient) Model() *Model     { return c.model }
func (c *MockClient) SetModel(m *Model) { c.model = m }

func (c *MockClient) reply(data SendData) string {
	if c.Reply != "" {
		return c.Reply
	}
	if len(data.Messages) == 0 {
		return "I am a mock client."
	}
	last := data.Messages[len(data.Messages)-1]
	return fmt.Sprintf("I am a mock client. You said: '%s'.", last.Content.ToText())
}

func (c *MockClient) SendMessage(ctx context.Context, data SendData) (string, error) {
	if c.Err != nil {
		return "", c.Err
	}
	return c.reply(data), nil
}

func (c *MockClient) SendMessageStreaming(ctx context.Context, data SendData, handler *ReplyHandler) error {
	return streamWithAbort(ctx, data, handler, func(ctx context.Context, data SendData, handler *ReplyHandler) error {
		if c.Err != nil {
			return c.Err
		}
		for _, r := range c.reply(data) {
			if err := handler.Text(string(r)); err != nil {
				return err
			}
		}
		return nil
	})
}
