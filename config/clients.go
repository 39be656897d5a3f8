package config

import (
	"context"

	"gopkg.in/yaml.v3"

	"github.com/pmeller/verba/errors"
	"github.com/pmeller/verba/llm"
)

// Client type tags accepted in the `clients` list of config.yaml.
const (
	ClientClaude           = "claude"
	ClientOpenAI           = "openai"
	ClientGemini           = "gemini"
	ClientBedrock          = "bedrock"
	ClientOpenAICompatible = "openai-compatible"
	ClientVertexAIClaude   = "vertexai-claude"
)

// ClientConfig is one entry of the `clients` list, discriminated by its
// `type` field. Unknown types are kept so one odd entry does not reject the
// whole config; they just offer no models.
type ClientConfig struct {
	Type string

	Claude           *llm.ClaudeConfig
	OpenAI           *llm.OpenAIConfig
	Gemini           *llm.GeminiConfig
	Bedrock          *llm.BedrockConfig
	OpenAICompatible *llm.OpenAICompatibleConfig
	VertexAIClaude   *llm.VertexAIClaudeConfig
}

func (c *ClientConfig) UnmarshalYAML(value *yaml.Node) error {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := value.Decode(&head); err != nil {
		return err
	}
	c.Type = head.Type

	switch head.Type {
	case ClientClaude:
		cfg := llm.ClaudeConfig{}
		if err := value.Decode(&cfg); err != nil {
			return err
		}
		c.Claude = &cfg
	case ClientOpenAI:
		cfg := llm.OpenAIConfig{}
		if err := value.Decode(&cfg); err != nil {
			return err
		}
		c.OpenAI = &cfg
	case ClientGemini:
		cfg := llm.GeminiConfig{}
		if err := value.Decode(&cfg); err != nil {
			return err
		}
		c.Gemini = &cfg
	case ClientBedrock:
		cfg := llm.BedrockConfig{}
		if err := value.Decode(&cfg); err != nil {
			return err
		}
		c.Bedrock = &cfg
	case ClientOpenAICompatible:
		cfg := llm.OpenAICompatibleConfig{}
		if err := value.Decode(&cfg); err != nil {
			return err
		}
		c.OpenAICompatible = &cfg
	case ClientVertexAIClaude:
		cfg := llm.VertexAIClaudeConfig{}
		if err := value.Decode(&cfg); err != nil {
			return err
		}
		c.VertexAIClaude = &cfg
	}
	return nil
}

// Name returns the configured client name, defaulting to the type tag.
func (c *ClientConfig) Name() string {
	name := ""
	switch {
	case c.Claude != nil:
		name = c.Claude.Name
	case c.OpenAI != nil:
		name = c.OpenAI.Name
	case c.Gemini != nil:
		name = c.Gemini.Name
	case c.Bedrock != nil:
		name = c.Bedrock.Name
	case c.OpenAICompatible != nil:
		name = c.OpenAICompatible.Name
	case c.VertexAIClaude != nil:
		name = c.VertexAIClaude.Name
	}
	if name == "" {
		name = c.Type
	}
	return name
}

// Models lists the models this client block declares.
func (c *ClientConfig) Models() []*llm.Model {
	var configs []llm.ModelConfig
	switch {
	case c.Claude != nil:
		configs = c.Claude.Models
	case c.OpenAI != nil:
		configs = c.OpenAI.Models
	case c.Gemini != nil:
		configs = c.Gemini.Models
	case c.Bedrock != nil:
		configs = c.Bedrock.Models
	case c.OpenAICompatible != nil:
		configs = c.OpenAICompatible.Models
	case c.VertexAIClaude != nil:
		configs = c.VertexAIClaude.Models
	}
	return llm.ModelsFromConfig(c.Name(), configs)
}

// NewClient constructs the backend adapter for model, found by its client
// name among the configured client blocks.
func (c *Config) NewClient(ctx context.Context, model *llm.Model) (llm.Client, error) {
	for i := range c.Clients {
		cc := &c.Clients[i]
		if cc.Name() != model.ClientName {
			continue
		}
		switch {
		case cc.Claude != nil:
			return llm.NewClaudeClient(*cc.Claude, model)
		case cc.OpenAI != nil:
			return llm.NewOpenAIClient(*cc.OpenAI, model)
		case cc.Gemini != nil:
			return llm.NewGeminiClient(ctx, *cc.Gemini, model)
		case cc.Bedrock != nil:
			return llm.NewBedrockClient(ctx, *cc.Bedrock, model)
		case cc.OpenAICompatible != nil:
			return llm.NewOpenAICompatibleClient(*cc.OpenAICompatible, model)
		case cc.VertexAIClaude != nil:
			return llm.NewVertexAIClaudeClient(*cc.VertexAIClaude, model)
		}
	}
	return nil, errors.New("unknown client '%s'", model.ClientName)
}
