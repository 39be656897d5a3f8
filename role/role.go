package role

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pmeller/verba/errors"
	"github.com/pmeller/verba/llm"
)

// InputPlaceholder marks where the user input is embedded in a role prompt.
// A role whose prompt carries the placeholder produces a single user message;
// any other role contributes a system message ahead of the input.
const InputPlaceholder = "__INPUT__"

// TempName identifies an ad-hoc role created from a one-off prompt.
const TempName = "%%"

// Role is a named prompt template with optional per-role generation
// overrides.
type Role struct {
	Name        string   `yaml:"name"`
	Prompt      string   `yaml:"prompt"`
	ModelID     string   `yaml:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	TopP        *float64 `yaml:"top_p,omitempty"`
}

// Temp wraps a one-off prompt as an unnamed role.
func Temp(prompt string) *Role {
	return &Role{Name: TempName, Prompt: prompt}
}

// Embedded reports whether the prompt embeds the input inline.
func (r *Role) Embedded() bool {
	return strings.Contains(r.Prompt, InputPlaceholder)
}

// BuildMessages shapes the input according to the role template.
func (r *Role) BuildMessages(input llm.MessageContent) []llm.Message {
	if r.Embedded() {
		content := input
		content.MergePrompt(func(text string) string {
			return strings.ReplaceAll(r.Prompt, InputPlaceholder, text)
		})
		return []llm.Message{{Role: llm.RoleUser, Content: content}}
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: llm.TextContent(r.Prompt)},
		{Role: llm.RoleUser, Content: input},
	}
}

// SystemPrompt returns the role's system text, empty for embedded roles.
func (r *Role) SystemPrompt() string {
	if r.Embedded() {
		return ""
	}
	return r.Prompt
}

func (r *Role) SetTemperature(v *float64) { r.Temperature = v }

func (r *Role) SetTopP(v *float64) { r.TopP = v }

// Export renders the role as YAML, for display.
func (r *Role) Export() (string, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", errors.Wrapf(err, "failed to export role")
	}
	return string(data), nil
}

// Load reads roles from a YAML file and appends the builtin roles that the
// file does not override. A missing file yields just the builtins.
func Load(path string) ([]*Role, error) {
	var roles []*Role
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &roles); err != nil {
			return nil, errors.Wrapf(err, "invalid roles file %s", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to read roles file %s", path)
	}

	names := make(map[string]bool, len(roles))
	for _, r := range roles {
		names[r.Name] = true
	}
	for _, r := range builtin() {
		if !names[r.Name] {
			roles = append(roles, r)
		}
	}
	return roles, nil
}

// Find returns the role with the given name.
func Find(roles []*Role, name string) (*Role, error) {
	for _, r := range roles {
		if r.Name == name {
			copied := *r
			return &copied, nil
		}
	}
	return nil, errors.New("unknown role '%s'", name)
}

func builtin() []*Role {
	return []*Role{
		{
			Name: "shell",
			Prompt: "Provide only the shell command to accomplish the task, " +
				"with no explanation and no markdown fences.\n\n" + InputPlaceholder,
		},
		{
			Name: "explain-shell",
			Prompt: "Explain what the given shell command does, step by step.\n\n" +
				InputPlaceholder,
		},
		{
			Name: "code",
			Prompt: "Answer with code only, no explanation and no markdown fences. " +
				"Use comments sparingly for non-obvious parts.",
		},
	}
}
