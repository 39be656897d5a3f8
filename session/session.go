package session

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pmeller/verba/errors"
	"github.com/pmeller/verba/llm"
)

// TempName is the name of the ephemeral session cleaned up on the next
// '.session' without a name.
const TempName = "temp"

// Session owns one ordered conversation history together with its token
// accounting, compression bookkeeping and persistence. Serialized fields
// appear in declaration order, so saved files are stable and diffable.
type Session struct {
	Name              string        `yaml:"name"`
	ModelID           string        `yaml:"model"`
	Temperature       *float64      `yaml:"temperature,omitempty"`
	TopP              *float64      `yaml:"top_p,omitempty"`
	CompressThreshold *int          `yaml:"compress_threshold,omitempty"`
	Messages          []llm.Message `yaml:"messages"`

	model        *llm.Model
	systemPrompt string
	tokens       int
	dirty        bool
	compressing  bool
}

// New creates an empty session. systemPrompt, when non-empty, becomes the
// session's single leading system message on the first exchange; temperature
// and topP seed the session-scope overrides (typically from an active role).
func New(name string, model *llm.Model, systemPrompt string, temperature, topP *float64) *Session {
	return &Session{
		Name:         name,
		ModelID:      model.ID(),
		Temperature:  temperature,
		TopP:         topP,
		model:        model,
		systemPrompt: systemPrompt,
	}
}

// Load reads a previously saved session. The file must be valid serialized
// session data; the stored name is replaced by the requested one so renamed
// files stay consistent.
func Load(name, path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read session file %s", path)
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "invalid session file %s", path)
	}
	s.Name = name
	s.recount()
	return &s, nil
}

// Save serializes the session to path, creating the session directory first.
// On success the session is clean again.
func (s *Session) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create session directory %s", dir)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrapf(err, "failed to serialize session")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write session file %s", path)
	}
	s.dirty = false
	return nil
}

func (s *Session) IsEmpty() bool { return len(s.Messages) == 0 }

func (s *Session) IsTemp() bool { return s.Name == TempName }

func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) Compressing() bool { return s.compressing }

func (s *Session) SetCompressing(v bool) { s.compressing = v }

// Model returns the session's resolved model; nil for a freshly loaded
// session until BindModel runs.
func (s *Session) Model() *llm.Model { return s.model }

// BindModel attaches the resolved model after a load, without marking the
// session dirty.
func (s *Session) BindModel(model *llm.Model) {
	s.model = model
	s.ModelID = model.ID()
}

func (s *Session) SetModel(model *llm.Model) {
	if s.ModelID != model.ID() {
		s.dirty = true
	}
	s.model = model
	s.ModelID = model.ID()
}

func (s *Session) SetTemperature(v *float64) {
	s.Temperature = v
	s.dirty = true
}

func (s *Session) SetTopP(v *float64) {
	s.TopP = v
	s.dirty = true
}

func (s *Session) SetCompressThreshold(v *int) {
	s.CompressThreshold = v
	s.dirty = true
}

// SetSystemPrompt replaces the pending system prompt. It only matters before
// the first exchange; afterwards the prompt is already part of the history.
func (s *Session) SetSystemPrompt(prompt string) {
	s.systemPrompt = prompt
}

// GuardEmpty fails when the session already has messages. It protects
// settings whose change would silently contradict the stored history.
func (s *Session) GuardEmpty() error {
	if !s.IsEmpty() {
		return errors.ErrSessionNotEmpty
	}
	return nil
}

// BuildMessages assembles the request history: stored messages plus the new
// user input, with the session's system prompt leading on the very first
// exchange.
func (s *Session) BuildMessages(input llm.MessageContent) []llm.Message {
	var messages []llm.Message
	if s.IsEmpty() && s.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: llm.TextContent(s.systemPrompt)})
	}
	messages = append(messages, s.Messages...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input})
	return messages
}

// AddMessage records one completed exchange. The first exchange also
// materializes the session's system prompt so the role's effect is baked into
// the stored history.
func (s *Session) AddMessage(input llm.MessageContent, reply string) {
	if s.IsEmpty() && s.systemPrompt != "" {
		s.Messages = append(s.Messages, llm.Message{Role: llm.RoleSystem, Content: llm.TextContent(s.systemPrompt)})
	}
	s.Messages = append(s.Messages,
		llm.Message{Role: llm.RoleUser, Content: input},
		llm.Message{Role: llm.RoleAssistant, Content: llm.TextContent(reply)},
	)
	s.dirty = true
	s.recount()
}

// NeedCompress reports whether the history's token estimate has crossed the
// effective threshold. It stays false while a compression is in flight and
// when the threshold is unset or non-positive.
func (s *Session) NeedCompress(defaultThreshold int) bool {
	if s.compressing {
		return false
	}
	threshold := defaultThreshold
	if s.CompressThreshold != nil {
		threshold = *s.CompressThreshold
	}
	return threshold > 0 && s.tokens > threshold
}

// Compress swaps the accumulated history for a single synthetic system
// message carrying the summary. The newest exchange, if complete, survives:
// the turn currently being answered is never summarized away.
func (s *Session) Compress(summary string) {
	var keep []llm.Message
	if n := len(s.Messages); n >= 2 &&
		s.Messages[n-2].Role == llm.RoleUser &&
		s.Messages[n-1].Role == llm.RoleAssistant {
		keep = s.Messages[n-2:]
	}
	s.Messages = append(
		[]llm.Message{{Role: llm.RoleSystem, Content: llm.TextContent(summary)}},
		keep...,
	)
	s.compressing = false
	s.dirty = true
	s.recount()
}

// TokensAndPercent returns the running token estimate and its share of the
// model's input window. The percentage is 0 when the model declares no limit.
func (s *Session) TokensAndPercent() (int, float32) {
	if s.model == nil || s.model.MaxInputTokens <= 0 {
		return s.tokens, 0
	}
	percent := float32(s.tokens) / float32(s.model.MaxInputTokens) * 100
	return s.tokens, percent
}

// ClearMessages drops the whole history but keeps the session and its
// overrides alive.
func (s *Session) ClearMessages() {
	s.Messages = nil
	s.dirty = true
	s.recount()
}

// Export renders the persisted form, for display.
func (s *Session) Export() (string, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return "", errors.Wrapf(err, "failed to export session")
	}
	return string(data), nil
}

func (s *Session) recount() {
	tokens := 0
	for _, msg := range s.Messages {
		tokens += estimateTokens(msg.Content.ToText()) + perMessageTokens
	}
	s.tokens = tokens
}
