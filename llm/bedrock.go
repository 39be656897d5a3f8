package llm

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/pmeller/verba/errors"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockConfig configures Claude models served through AWS Bedrock.
// Credentials and region come from the standard AWS environment.
type BedrockConfig struct {
	Name   string        `yaml:"name"`
	Region string        `yaml:"region,omitempty"`
	Models []ModelConfig `yaml:"models"`
}

// BedrockClient is a client for Anthropic models on AWS Bedrock.
type BedrockClient struct {
	client *bedrockruntime.Client
	model  *Model
}

// NewBedrockClient creates a BedrockClient from the default AWS config chain.
func NewBedrockClient(ctx context.Context, config BedrockConfig, model *Model) (*BedrockClient, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	return &BedrockClient{
		client: bedrockruntime.NewFromConfig(cfg),
		model:  model,
	}, nil
}

func (b *BedrockClient) Model() *Model     { return b.model }
func (b *BedrockClient) SetModel(m *Model) { b.model = m }

func (b *BedrockClient) buildBody(data SendData) ([]byte, error) {
	messages, system := ExtractSystemMessage(data.Messages)
	body := map[string]interface{}{
		"anthropic_version": bedrockAnthropicVersion,
		"max_tokens":        4096,
		"messages":          claudeMessages(messages),
	}
	if b.model.MaxOutputTokens > 0 {
		body["max_tokens"] = b.model.MaxOutputTokens
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
	return json.Marshal(body)
}

// SendMessage sends a buffered request to the Anthropic model via Bedrock.
func (b *BedrockClient) SendMessage(ctx context.Context, data SendData) (string, error) {
	body, err := b.buildBody(data)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create Bedrock request")
	}
	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model.Name),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to invoke Bedrock model")
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// SendMessageStreaming races the Bedrock response stream against the abort
// watcher.
func (b *BedrockClient) SendMessageStreaming(ctx context.Context, data SendData, handler *ReplyHandler) error {
	return streamWithAbort(ctx, data, handler, b.stream)
}

func (b *BedrockClient) stream(ctx context.Context, data SendData, handler *ReplyHandler) error {
	body, err := b.buildBody(data)
	if err != nil {
		return errors.Wrapf(err, "failed to create Bedrock request")
	}
	out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(b.model.Name),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to invoke Bedrock model")
	}

	stream := out.GetStream()
	defer stream.Close()
	for event := range stream.Events() {
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		var parsed struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		}
		if err := json.Unmarshal(chunk.Value.Bytes, &parsed); err != nil {
			return errors.Wrapf(err, "unparseable stream frame")
		}
		if parsed.Type == "content_block_delta" && parsed.Delta.Type == "text_delta" {
			if err := handler.Text(parsed.Delta.Text); err != nil {
				return err
			}
		}
	}
	return errors.Wrapf(stream.Err(), "Bedrock stream failed")
}
