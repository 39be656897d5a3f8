package session

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/pmeller/verba/errors"
	"github.com/pmeller/verba/llm"
)

func testModel() *llm.Model {
	return &llm.Model{ClientName: "openai", Name: "gpt-4o", MaxInputTokens: 8000}
}

func TestSessionSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.yaml")
	s := New("chat", testModel(), "be brief", nil, nil)
	s.AddMessage(llm.TextContent("hello"), "hi there")

	if err := s.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if s.Dirty() {
		t.Error("Expected a saved session to be clean")
	}

	loaded, err := Load("chat", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ModelID != "openai:gpt-4o" {
		t.Errorf("Expected model id to survive the round trip, got %q", loaded.ModelID)
	}
	if len(loaded.Messages) != 3 {
		t.Fatalf("Expected 3 messages (system + exchange), got %d", len(loaded.Messages))
	}
	if loaded.Messages[0].Role != llm.RoleSystem || loaded.Messages[0].Content.Text != "be brief" {
		t.Errorf("Expected the system prompt materialized first, got %+v", loaded.Messages[0])
	}
	if loaded.Messages[2].Content.Text != "hi there" {
		t.Errorf("Expected the assistant reply back, got %+v", loaded.Messages[2])
	}

	loadedTokens, _ := loaded.TokensAndPercent()
	originalTokens, _ := s.TokensAndPercent()
	if loadedTokens != originalTokens {
		t.Errorf("Expected token estimate %d after load, got %d", originalTokens, loadedTokens)
	}
}

func TestSessionLoadRenames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copy.yaml")
	s := New("original", testModel(), "", nil, nil)
	s.AddMessage(llm.TextContent("q"), "a")
	if err := s.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load("copy", path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != "copy" {
		t.Errorf("Expected the requested name to win, got %q", loaded.Name)
	}
}

func TestBuildMessagesLeadsWithSystemPromptOnce(t *testing.T) {
	s := New("chat", testModel(), "be brief", nil, nil)

	messages := s.BuildMessages(llm.TextContent("first"))
	if len(messages) != 2 || messages[0].Role != llm.RoleSystem {
		t.Fatalf("Expected system + user on the first exchange, got %+v", messages)
	}

	s.AddMessage(llm.TextContent("first"), "reply")
	messages = s.BuildMessages(llm.TextContent("second"))
	// The system prompt is already part of the stored history now.
	systemCount := 0
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			systemCount++
		}
	}
	if systemCount != 1 {
		t.Errorf("Expected exactly 1 system message, got %d", systemCount)
	}
	if messages[len(messages)-1].Content.Text != "second" {
		t.Errorf("Expected the new input last, got %+v", messages[len(messages)-1])
	}
}

func TestGuardEmpty(t *testing.T) {
	s := New("chat", testModel(), "", nil, nil)
	if err := s.GuardEmpty(); err != nil {
		t.Errorf("Expected an empty session to pass the guard, got %v", err)
	}
	s.AddMessage(llm.TextContent("q"), "a")
	if err := s.GuardEmpty(); !errors.Is(err, errors.ErrSessionNotEmpty) {
		t.Errorf("Expected ErrSessionNotEmpty, got %v", err)
	}
}

func TestNeedCompress(t *testing.T) {
	s := New("chat", testModel(), "", nil, nil)
	s.AddMessage(llm.TextContent(strings.Repeat("x", 1000)), strings.Repeat("y", 1000))

	if !s.NeedCompress(100) {
		t.Error("Expected compression to trigger above the threshold")
	}
	if s.NeedCompress(0) {
		t.Error("Expected a zero threshold to disable compression")
	}
	if s.NeedCompress(-1) {
		t.Error("Expected a negative threshold to disable compression")
	}

	override := 100000
	s.SetCompressThreshold(&override)
	if s.NeedCompress(100) {
		t.Error("Expected the session override to win over the default")
	}
	s.SetCompressThreshold(nil)

	s.SetCompressing(true)
	if s.NeedCompress(100) {
		t.Error("Expected no trigger while a compression is in flight")
	}
}

func TestCompressKeepsNewestExchange(t *testing.T) {
	s := New("chat", testModel(), "", nil, nil)
	s.AddMessage(llm.TextContent("old question"), "old answer")
	s.AddMessage(llm.TextContent("new question"), "new answer")
	s.SetCompressing(true)

	s.Compress("the summary")

	if len(s.Messages) != 3 {
		t.Fatalf("Expected summary + newest exchange, got %d messages", len(s.Messages))
	}
	if s.Messages[0].Role != llm.RoleSystem || s.Messages[0].Content.Text != "the summary" {
		t.Errorf("Expected the summary as a leading system message, got %+v", s.Messages[0])
	}
	if s.Messages[1].Content.Text != "new question" || s.Messages[2].Content.Text != "new answer" {
		t.Errorf("Expected the newest exchange preserved, got %+v", s.Messages[1:])
	}
	if s.Compressing() {
		t.Error("Expected the compressing flag released after Compress")
	}

	// The shrunken history sits below the threshold again until it regrows.
	if s.NeedCompress(100) {
		t.Error("Expected no immediate re-trigger after compression")
	}
	s.AddMessage(llm.TextContent(strings.Repeat("x", 1000)), "ok")
	if !s.NeedCompress(100) {
		t.Error("Expected compression to trigger again once the history regrows")
	}
}

func TestTokensAndPercent(t *testing.T) {
	s := New("chat", testModel(), "", nil, nil)
	s.AddMessage(llm.TextContent("12345678"), "1234")
	tokens, percent := s.TokensAndPercent()
	// (8+3)/4 + 4 for the user turn, (4+3)/4 + 4 for the reply.
	if tokens != 11 {
		t.Errorf("Expected 11 tokens, got %d", tokens)
	}
	if percent <= 0 {
		t.Errorf("Expected a positive percentage, got %f", percent)
	}

	unlimited := New("chat", &llm.Model{ClientName: "x", Name: "y"}, "", nil, nil)
	unlimited.AddMessage(llm.TextContent("hello"), "hi")
	if _, percent := unlimited.TokensAndPercent(); percent != 0 {
		t.Errorf("Expected 0 percent without an input limit, got %f", percent)
	}
}

func TestClearMessages(t *testing.T) {
	s := New("chat", testModel(), "", nil, nil)
	s.AddMessage(llm.TextContent("q"), "a")
	s.ClearMessages()
	if !s.IsEmpty() {
		t.Error("Expected an empty session after ClearMessages")
	}
	if tokens, _ := s.TokensAndPercent(); tokens != 0 {
		t.Errorf("Expected 0 tokens after ClearMessages, got %d", tokens)
	}
}

func TestIsTemp(t *testing.T) {
	if !New(TempName, testModel(), "", nil, nil).IsTemp() {
		t.Error("Expected the temp session to report IsTemp")
	}
	if New("chat", testModel(), "", nil, nil).IsTemp() {
		t.Error("Expected a named session not to report IsTemp")
	}
}
