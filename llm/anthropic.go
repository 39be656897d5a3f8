package llm

import (
	"context"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pmeller/verba/errors"
)

// ClaudeConfig configures the native Anthropic API client.
type ClaudeConfig struct {
	Name    string        `yaml:"name"`
	APIKey  string        `yaml:"api_key,omitempty"`
	APIBase string        `yaml:"api_base,omitempty"`
	Models  []ModelConfig `yaml:"models"`
}

// ClaudeClient is a client for the Anthropic API, built on the official SDK.
type ClaudeClient struct {
	client *anthropic.Client
	model  *Model
}

// NewClaudeClient creates a ClaudeClient. The API key comes from the config
// or the ANTHROPIC_API_KEY environment variable.
func NewClaudeClient(config ClaudeConfig, model *Model) (*ClaudeClient, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("client '%s' has no api_key and ANTHROPIC_API_KEY is not set", config.Name)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if config.APIBase != "" {
		opts = append(opts, option.WithBaseURL(config.APIBase))
	}
	client := anthropic.NewClient(opts...)
	return &ClaudeClient{client: &client, model: model}, nil
}

func (c *ClaudeClient) Model() *Model     { return c.model }
func (c *ClaudeClient) SetModel(m *Model) { c.model = m }

func (c *ClaudeClient) buildParams(data SendData) anthropic.MessageNewParams {
	messages, system := ExtractSystemMessage(data.Messages)

	var anthropicMessages []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{{
					OfText: &anthropic.TextBlockParam{Text: msg.Content.ToText()},
				}},
			})
		default:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content.ToText()),
			))
		}
	}

	maxTokens := int64(4096)
	if c.model.MaxOutputTokens > 0 {
		maxTokens = int64(c.model.MaxOutputTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model.Name),
		MaxTokens: maxTokens,
		Messages:  anthropicMessages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if data.Temperature != nil {
		params.Temperature = anthropic.Float(*data.Temperature)
	}
	if data.TopP != nil {
		params.TopP = anthropic.Float(*data.TopP)
	}
	return params
}

// SendMessage sends a buffered chat request to the Anthropic API.
func (c *ClaudeClient) SendMessage(ctx context.Context, data SendData) (string, error) {
	resp, err := c.client.Messages.New(ctx, c.buildParams(data))
	if err != nil {
		return "", errors.Wrapf(err, "failed to send message to Anthropic")
	}
	var text string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += tb.Text
		}
	}
	return text, nil
}

// SendMessageStreaming races the SDK event stream against the abort watcher.
func (c *ClaudeClient) SendMessageStreaming(ctx context.Context, data SendData, handler *ReplyHandler) error {
	return streamWithAbort(ctx, data, handler, c.stream)
}

func (c *ClaudeClient) stream(ctx context.Context, data SendData, handler *ReplyHandler) error {
	stream := c.client.Messages.NewStreaming(ctx, c.buildParams(data))
	for stream.Next() {
		event := stream.Current()
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta.Delta.Type == "text_delta" {
				if err := handler.Text(delta.Delta.Text); err != nil {
					return err
				}
			}
		}
	}
	return errors.Wrapf(stream.Err(), "Anthropic stream failed")
}
