package llm

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Model describes one model offered by a configured backend. The full id is
// "<client>:<name>", e.g. "openai:gpt-4o".
type Model struct {
	ClientName      string
	Name            string
	MaxInputTokens  int
	MaxOutputTokens int
}

// ModelConfig is the per-model block under a client in config.yaml.
type ModelConfig struct {
	Name            string `yaml:"name"`
	MaxInputTokens  int    `yaml:"max_input_tokens,omitempty"`
	MaxOutputTokens int    `yaml:"max_output_tokens,omitempty"`
}

func (m *Model) ID() string {
	return fmt.Sprintf("%s:%s", m.ClientName, m.Name)
}

// ModelsFromConfig materializes a client's configured model list.
func ModelsFromConfig(clientName string, configs []ModelConfig) []*Model {
	models := make([]*Model, 0, len(configs))
	for _, mc := range configs {
		models = append(models, &Model{
			ClientName:      clientName,
			Name:            mc.Name,
			MaxInputTokens:  mc.MaxInputTokens,
			MaxOutputTokens: mc.MaxOutputTokens,
		})
	}
	return models
}

// FindModel resolves an id against the known models. The id may be a bare
// client name (first model of that client wins), a full "client:name" id, or
// a glob such as "openai:gpt-4*".
func FindModel(models []*Model, id string) *Model {
	if id == "" {
		return nil
	}
	if !strings.Contains(id, ":") {
		for _, m := range models {
			if m.ClientName == id {
				return m
			}
		}
		return nil
	}
	for _, m := range models {
		if m.ID() == id {
			return m
		}
	}
	for _, m := range models {
		if ok, err := doublestar.Match(id, m.ID()); err == nil && ok {
			return m
		}
	}
	return nil
}
