package llm

import (
	"context"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/pmeller/verba/errors"
)

// OpenAIConfig configures the official OpenAI API client.
type OpenAIConfig struct {
	Name    string        `yaml:"name"`
	APIKey  string        `yaml:"api_key,omitempty"`
	APIBase string        `yaml:"api_base,omitempty"`
	Models  []ModelConfig `yaml:"models"`
}

// OpenAIClient is a client for the OpenAI Chat Completion API, built on the
// official SDK.
type OpenAIClient struct {
	client *openai.Client
	model  *Model
}

// NewOpenAIClient creates an OpenAIClient. The API key comes from the config
// or the OPENAI_API_KEY environment variable.
func NewOpenAIClient(config OpenAIConfig, model *Model) (*OpenAIClient, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("client '%s' has no api_key and OPENAI_API_KEY is not set", config.Name)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if config.APIBase != "" {
		opts = append(opts, option.WithBaseURL(config.APIBase))
	}
	c := openai.NewClient(opts...)
	return &OpenAIClient{client: &c, model: model}, nil
}

func (o *OpenAIClient) Model() *Model     { return o.model }
func (o *OpenAIClient) SetModel(m *Model) { o.model = m }

func (o *OpenAIClient) buildParams(data SendData) openai.ChatCompletionNewParams {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	for _, msg := range data.Messages {
		text := msg.Content.ToText()
		switch msg.Role {
		case RoleSystem:
			chatMessages = append(chatMessages, openai.SystemMessage(text))
		case RoleAssistant:
			chatMessages = append(chatMessages, openai.AssistantMessage(text))
		default:
			chatMessages = append(chatMessages, openai.UserMessage(text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model.Name),
		Messages: chatMessages,
	}
	if data.Temperature != nil {
		params.Temperature = openai.Float(*data.Temperature)
	}
	if data.TopP != nil {
		params.TopP = openai.Float(*data.TopP)
	}
	return params
}

// SendMessage sends a buffered chat request to OpenAI.
func (o *OpenAIClient) SendMessage(ctx context.Context, data SendData) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, o.buildParams(data))
	if err != nil {
		return "", errors.Wrapf(err, "failed to send message to OpenAI")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("OpenAI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// SendMessageStreaming races the SDK chunk stream against the abort watcher.
func (o *OpenAIClient) SendMessageStreaming(ctx context.Context, data SendData, handler *ReplyHandler) error {
	return streamWithAbort(ctx, data, handler, o.stream)
}

func (o *OpenAIClient) stream(ctx context.Context, data SendData, handler *ReplyHandler) error {
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.buildParams(data))
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if err := handler.Text(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	return errors.Wrapf(stream.Err(), "OpenAI stream failed")
}
