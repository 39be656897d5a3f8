package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MessageRole identifies who produced a message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn of a conversation in the common model shared by all
// backend adapters.
type Message struct {
	Role    MessageRole    `json:"role" yaml:"role"`
	Content MessageContent `json:"content" yaml:"content"`
}

// MessageContent is either plain text or an ordered list of typed parts.
// It serializes as a bare string in the text case and as an array otherwise,
// both in JSON and in YAML.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// ContentPart is one element of a multi-part message body.
type ContentPart struct {
	Type     string    `json:"type" yaml:"type"`
	Text     string    `json:"text,omitempty" yaml:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty" yaml:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL string `json:"url" yaml:"url"`
}

// TextContent wraps plain text as message content.
func TextContent(text string) MessageContent {
	return MessageContent{Text: text}
}

// IsText reports whether the content is the plain-text variant.
func (c MessageContent) IsText() bool {
	return c.Parts == nil
}

// ToText flattens the content to plain text. Image parts are dropped; text
// parts are joined with blank lines.
func (c MessageContent) ToText() string {
	if c.IsText() {
		return c.Text
	}
	var parts []string
	for _, p := range c.Parts {
		if p.Type == "text" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// MergePrompt rewrites the leading text of the content through replace. For
// part-based content the first text part is rewritten, or one is prepended
// when none exists.
func (c *MessageContent) MergePrompt(replace func(string) string) {
	if c.IsText() {
		c.Text = replace(c.Text)
		return
	}
	if len(c.Parts) == 0 {
		c.Parts = append(c.Parts, ContentPart{Type: "text", Text: replace("")})
		return
	}
	if c.Parts[0].Type == "text" {
		c.Parts[0].Text = replace(c.Parts[0].Text)
	}
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsText() {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Parts)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = MessageContent{Text: text}
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content must be a string or a part list: %w", err)
	}
	*c = MessageContent{Parts: parts}
	return nil
}

func (c MessageContent) MarshalYAML() (interface{}, error) {
	if c.IsText() {
		return c.Text, nil
	}
	return c.Parts, nil
}

func (c *MessageContent) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var text string
		if err := value.Decode(&text); err != nil {
			return err
		}
		*c = MessageContent{Text: text}
		return nil
	}
	var parts []ContentPart
	if err := value.Decode(&parts); err != nil {
		return fmt.Errorf("message content must be a string or a part list: %w", err)
	}
	*c = MessageContent{Parts: parts}
	return nil
}

// PatchSystemMessage folds a leading system message into the first user
// turn. Backends that lack a dedicated system field receive history that
// never carries a system role.
func PatchSystemMessage(messages []Message) []Message {
	if len(messages) == 0 || messages[0].Role != RoleSystem {
		return messages
	}
	system := messages[0]
	messages = messages[1:]
	if len(messages) > 0 && system.Content.IsText() && messages[0].Content.IsText() {
		messages[0].Content = TextContent(system.Content.Text + "\n\n" + messages[0].Content.Text)
	}
	return messages
}

// ExtractSystemMessage splits a leading system message off the history and
// returns its text, for backends that take the system prompt out of band.
func ExtractSystemMessage(messages []Message) ([]Message, string) {
	if len(messages) == 0 || messages[0].Role != RoleSystem {
		return messages, ""
	}
	return messages[1:], messages[0].Content.ToText()
}
