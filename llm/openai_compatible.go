package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pmeller/verba/errors"
)

// OpenAICompatibleConfig configures any endpoint that speaks the OpenAI chat
// completions API: self-hosted gateways, proxies, local runtimes.
type OpenAICompatibleConfig struct {
	Name           string        `yaml:"name"`
	APIBase        string        `yaml:"api_base"`
	APIKey         string        `yaml:"api_key,omitempty"`
	ChatEndpoint   string        `yaml:"chat_endpoint,omitempty"`
	ConnectTimeout int           `yaml:"connect_timeout,omitempty"`
	Models         []ModelConfig `yaml:"models"`
}

// OpenAICompatibleClient talks to an OpenAI-compatible endpoint over raw
// HTTP, with SSE decoding for the streaming path.
type OpenAICompatibleClient struct {
	config OpenAICompatibleConfig
	model  *Model
	http   *http.Client
}

func NewOpenAICompatibleClient(config OpenAICompatibleConfig, model *Model) (*OpenAICompatibleClient, error) {
	if config.APIBase == "" {
		return nil, errors.New("client '%s' has no api_base", config.Name)
	}
	return &OpenAICompatibleClient{
		config: config,
		model:  model,
		http:   newHTTPClient(time.Duration(config.ConnectTimeout) * time.Second),
	}, nil
}

func (c *OpenAICompatibleClient) Model() *Model     { return c.model }
func (c *OpenAICompatibleClient) SetModel(m *Model) { c.model = m }

func (c *OpenAICompatibleClient) apiKey() string {
	if c.config.APIKey != "" {
		return c.config.APIKey
	}
	envName := strings.ToUpper(strings.ReplaceAll(c.config.Name, "-", "_")) + "_API_KEY"
	return os.Getenv(envName)
}

func (c *OpenAICompatibleClient) buildRequest(ctx context.Context, data SendData) (*http.Request, error) {
	body := map[string]interface{}{
		"model":    c.model.Name,
		"messages": data.Messages,
		"stream":   data.Stream,
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

	endpoint := c.config.ChatEndpoint
	if endpoint == "" {
		endpoint = "/chat/completions"
	}
	url := strings.TrimSuffix(c.config.APIBase, "/") + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build request for %s", url)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := c.apiKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req, nil
}

// SendMessage sends a buffered (non-streaming) chat request.
func (c *OpenAICompatibleClient) SendMessage(ctx context.Context, data SendData) (string, error) {
	data.Stream = false
	req, err := c.buildRequest(ctx, data)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "request to %s failed", c.config.Name)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.New("%s returned %s: %s", c.config.Name, resp.Status, strings.TrimSpace(string(raw)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errors.Wrapf(err, "unexpected response from %s", c.config.Name)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("%s returned no choices", c.config.Name)
	}
	return parsed.Choices[0].Message.Content, nil
}

// SendMessageStreaming races the SSE consumer against the abort watcher.
func (c *OpenAICompatibleClient) SendMessageStreaming(ctx context.Context, data SendData, handler *ReplyHandler) error {
	return streamWithAbort(ctx, data, handler, c.stream)
}

func (c *OpenAICompatibleClient) stream(ctx context.Context, data SendData, handler *ReplyHandler) error {
	req, err := c.buildRequest(ctx, data)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "request to %s failed", c.config.Name)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return errors.New("%s returned %s: %s", c.config.Name, resp.Status, strings.TrimSpace(string(raw)))
	}
	return decodeSSE(resp.Body, handler)
}

// decodeSSE reads "data:" lines from an event stream and forwards each delta
// to the handler until the [DONE] sentinel or EOF.
func decodeSSE(r io.Reader, handler *ReplyHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			if payload == "[DONE]" {
				return nil
			}
			continue
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return errors.Wrapf(err, "unparseable stream frame")
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if err := handler.Text(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	return scanner.Err()
}
