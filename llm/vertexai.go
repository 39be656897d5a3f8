package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/pmeller/verba/errors"
)

const vertexAnthropicVersion = "vertex-2023-10-16"

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// vertexTokenCache is shared by every Vertex AI client in the process; token
// issuance is idempotent, so redundant refreshes are tolerated.
var vertexTokenCache = NewTokenCache()

// VertexAIClaudeConfig configures Claude models served through Vertex AI.
type VertexAIClaudeConfig struct {
	Name           string        `yaml:"name"`
	ProjectID      string        `yaml:"project_id"`
	Location       string        `yaml:"location"`
	ADCFile        string        `yaml:"adc_file,omitempty"`
	ConnectTimeout int           `yaml:"connect_timeout,omitempty"`
	Models         []ModelConfig `yaml:"models"`
}

// VertexAIClaudeClient calls the Claude publisher endpoints on Vertex AI over
// raw HTTP. Streaming responses arrive as concatenated JSON objects and are
// split by the frame extractor.
type VertexAIClaudeClient struct {
	config VertexAIClaudeConfig
	model  *Model
	http   *http.Client
}

func NewVertexAIClaudeClient(config VertexAIClaudeConfig, model *Model) (*VertexAIClaudeClient, error) {
	if config.ProjectID == "" || config.Location == "" {
		return nil, errors.New("client '%s' needs project_id and location", config.Name)
	}
	return &VertexAIClaudeClient{
		config: config,
		model:  model,
		http:   newHTTPClient(time.Duration(config.ConnectTimeout) * time.Second),
	}, nil
}

func (c *VertexAIClaudeClient) Model() *Model     { return c.model }
func (c *VertexAIClaudeClient) SetModel(m *Model) { c.model = m }

func (c *VertexAIClaudeClient) endpoint(stream bool) string {
	action := "rawPredict"
	if stream {
		action = "streamRawPredict"
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/anthropic/models/%s:%s",
		c.config.Location, c.config.ProjectID, c.config.Location, c.model.Name, action,
	)
}

func (c *VertexAIClaudeClient) fetchToken(ctx context.Context) (string, time.Time, error) {
	var creds *google.Credentials
	var err error
	if c.config.ADCFile != "" {
		var raw []byte
		raw, err = os.ReadFile(c.config.ADCFile)
		if err != nil {
			return "", time.Time{}, errors.Wrapf(err, "failed to read adc_file")
		}
		creds, err = google.CredentialsFromJSON(ctx, raw, cloudPlatformScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, cloudPlatformScope)
	}
	if err != nil {
		return "", time.Time{}, errors.Wrapf(err, "failed to load google credentials")
	}
	token, err := creds.TokenSource.Token()
	if err != nil {
		return "", time.Time{}, errors.Wrapf(err, "failed to mint access token")
	}
	return token.AccessToken, token.Expiry, nil
}

func (c *VertexAIClaudeClient) buildRequest(ctx context.Context, data SendData) (*http.Request, error) {
	token, err := vertexTokenCache.Token(ctx, c.fetchToken)
	if err != nil {
		return nil, err
	}

	messages, system := ExtractSystemMessage(data.Messages)
	body := map[string]interface{}{
		"anthropic_version": vertexAnthropicVersion,
		"max_tokens":        4096,
		"messages":          claudeMessages(messages),
		"stream":            data.Stream,
	}
	if c.model.MaxOutputTokens > 0 {
		body["max_tokens"] = c.model.MaxOutputTokens
	}
	if system != "" {
		body["system"] = system
	}
	if data.Temperature != nil {
		body["temperature"] = *data.Temperature
	}
	if data.TopP != nil {
		body["top_p"] = *data.TopP
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(data.Stream), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build vertexai request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// claudeMessages converts the common history into Claude's wire shape. A
// leading system message must already be extracted; multi-part content is
// flattened to text.
func claudeMessages(messages []Message) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		out = append(out, map[string]interface{}{
			"role":    string(msg.Role),
			"content": msg.Content.ToText(),
		})
	}
	return out
}

func (c *VertexAIClaudeClient) SendMessage(ctx context.Context, data SendData) (string, error) {
	data.Stream = false
	req, err := c.buildRequest(ctx, data)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "vertexai request failed")
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.New("vertexai returned %s: %s", resp.Status, string(raw))
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errors.Wrapf(err, "unexpected vertexai response")
	}
	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func (c *VertexAIClaudeClient) SendMessageStreaming(ctx context.Context, data SendData, handler *ReplyHandler) error {
	return streamWithAbort(ctx, data, handler, c.stream)
}

func (c *VertexAIClaudeClient) stream(ctx context.Context, data SendData, handler *ReplyHandler) error {
	req, err := c.buildRequest(ctx, data)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "vertexai request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return errors.New("vertexai returned %s: %s", resp.Status, string(raw))
	}

	return JSONStream(resp.Body, func(frame string) error {
		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(frame), &event); err != nil {
			return errors.Wrapf(err, "unparseable stream frame")
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" {
				return handler.Text(event.Delta.Text)
			}
		case "error":
			return errors.New("vertexai stream error: %s", event.Error.Message)
		}
		return nil
	})
}
