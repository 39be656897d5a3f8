package llm

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestMessageContentJSONString(t *testing.T) {
	msg := Message{Role: RoleUser, Content: TextContent("hello")}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"role":"user","content":"hello"}` {
		t.Errorf("Expected plain text to serialize as a bare string, got %s", data)
	}

	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !back.Content.IsText() || back.Content.Text != "hello" {
		t.Errorf("Expected text content 'hello' back, got %+v", back.Content)
	}
}

func TestMessageContentJSONParts(t *testing.T) {
	msg := Message{Role: RoleUser, Content: MessageContent{Parts: []ContentPart{
		{Type: "text", Text: "look at this"},
		{Type: "image_url", ImageURL: &ImageURL{URL: "https://example.com/x.png"}},
	}}}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var back Message
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if back.Content.IsText() {
		t.Fatal("Expected part-based content back, got plain text")
	}
	if len(back.Content.Parts) != 2 {
		t.Fatalf("Expected 2 parts, got %d", len(back.Content.Parts))
	}
	if back.Content.Parts[1].ImageURL == nil || back.Content.Parts[1].ImageURL.URL != "https://example.com/x.png" {
		t.Errorf("Expected the image part to survive, got %+v", back.Content.Parts[1])
	}
}

func TestMessageContentYAMLRoundTrip(t *testing.T) {
	original := []Message{
		{Role: RoleSystem, Content: TextContent("be terse")},
		{Role: RoleUser, Content: MessageContent{Parts: []ContentPart{{Type: "text", Text: "hi"}}}},
	}
	data, err := yaml.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var back []Message
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !back[0].Content.IsText() || back[0].Content.Text != "be terse" {
		t.Errorf("Expected text content back, got %+v", back[0].Content)
	}
	if back[1].Content.IsText() || back[1].Content.Parts[0].Text != "hi" {
		t.Errorf("Expected part content back, got %+v", back[1].Content)
	}
}

func TestToTextJoinsTextParts(t *testing.T) {
	content := MessageContent{Parts: []ContentPart{
		{Type: "text", Text: "first"},
		{Type: "image_url", ImageURL: &ImageURL{URL: "data:..."}},
		{Type: "text", Text: "second"},
	}}
	if got := content.ToText(); got != "first\n\nsecond" {
		t.Errorf("Expected text parts joined with blank lines, got %q", got)
	}
}

func TestPatchSystemMessage(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: TextContent("act as a pirate")},
		{Role: RoleUser, Content: TextContent("hello")},
	}
	patched := PatchSystemMessage(messages)
	if len(patched) != 1 {
		t.Fatalf("Expected the system message to be folded away, got %d messages", len(patched))
	}
	if patched[0].Role != RoleUser {
		t.Errorf("Expected a user message, got %s", patched[0].Role)
	}
	if patched[0].Content.Text != "act as a pirate\n\nhello" {
		t.Errorf("Expected the system text folded into the user turn, got %q", patched[0].Content.Text)
	}
}

func TestPatchSystemMessageNoSystem(t *testing.T) {
	messages := []Message{{Role: RoleUser, Content: TextContent("hello")}}
	patched := PatchSystemMessage(messages)
	if len(patched) != 1 || patched[0].Content.Text != "hello" {
		t.Errorf("Expected the history unchanged, got %+v", patched)
	}
}

func TestExtractSystemMessage(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: TextContent("be helpful")},
		{Role: RoleUser, Content: TextContent("hi")},
	}
	rest, system := ExtractSystemMessage(messages)
	if system != "be helpful" {
		t.Errorf("Expected system text 'be helpful', got %q", system)
	}
	if len(rest) != 1 || rest[0].Role != RoleUser {
		t.Errorf("Expected only the user message left, got %+v", rest)
	}
}

func TestMergePromptEmbedsInput(t *testing.T) {
	content := TextContent("ls -la")
	content.MergePrompt(func(text string) string { return "explain: " + text })
	if content.Text != "explain: ls -la" {
		t.Errorf("Expected the prompt merged into the text, got %q", content.Text)
	}
}
