package llm

import (
	"context"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/pmeller/verba/errors"
)

// GeminiConfig configures the Google Gemini API client.
type GeminiConfig struct {
	Name   string        `yaml:"name"`
	APIKey string        `yaml:"api_key,omitempty"`
	Models []ModelConfig `yaml:"models"`
}

// GeminiClient is a client for the Google Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  *Model
}

// NewGeminiClient creates a GeminiClient. The API key comes from the config
// or the GEMINI_API_KEY environment variable.
func NewGeminiClient(ctx context.Context, config GeminiConfig, model *Model) (*GeminiClient, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("client '%s' has no api_key and GEMINI_API_KEY is not set", config.Name)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (g *GeminiClient) Model() *Model     { return g.model }
func (g *GeminiClient) SetModel(m *Model) { g.model = m }

// buildChat prepares a chat session with all history but the final message,
// which is returned as the new prompt. Gemini has no system role; a leading
// system message is folded into the first user turn.
func (g *GeminiClient) buildChat(data SendData) (*genai.ChatSession, []genai.Part, error) {
	messages := PatchSystemMessage(data.Messages)
	if len(messages) == 0 {
		return nil, nil, errors.New("empty message list")
	}

	var history []*genai.Content
	for _, msg := range messages {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content.ToText())},
		})
	}

	model := g.client.GenerativeModel(g.model.Name)
	if data.Temperature != nil {
		model.SetTemperature(float32(*data.Temperature))
	}
	if data.TopP != nil {
		model.SetTopP(float32(*data.TopP))
	}

	last := history[len(history)-1]
	chat := model.StartChat()
	chat.History = history[:len(history)-1]
	return chat, last.Parts, nil
}

// SendMessage sends a buffered chat request to Gemini.
func (g *GeminiClient) SendMessage(ctx context.Context, data SendData) (string, error) {
	chat, prompt, err := g.buildChat(data)
	if err != nil {
		return "", err
	}
	resp, err := chat.SendMessage(ctx, prompt...)
	if err != nil {
		return "", errors.Wrapf(err, "failed to send message to Gemini")
	}
	return geminiResponseText(resp), nil
}

// SendMessageStreaming races the response iterator against the abort watcher.
func (g *GeminiClient) SendMessageStreaming(ctx context.Context, data SendData, handler *ReplyHandler) error {
	return streamWithAbort(ctx, data, handler, g.stream)
}

func (g *GeminiClient) stream(ctx context.Context, data SendData, handler *ReplyHandler) error {
	chat, prompt, err := g.buildChat(data)
	if err != nil {
		return err
	}
	iter := chat.SendMessageStream(ctx, prompt...)
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "Gemini stream failed")
		}
		if err := handler.Text(geminiResponseText(resp)); err != nil {
			return err
		}
	}
}

func geminiResponseText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return text
}
