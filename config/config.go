package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pmeller/verba/errors"
	"github.com/pmeller/verba/llm"
	"github.com/pmeller/verba/role"
	"github.com/pmeller/verba/session"
)

const (
	configFileName  = "config.yaml"
	rolesFileName   = "roles.yaml"
	sessionsDirName = "sessions"

	defaultCompressThreshold = 2000

	defaultSummarizePrompt = "Summarize the discussion briefly in 200 words or less " +
		"to use as a prompt for future context."
	defaultSummaryPrompt = "This is a summary of the chat history as a recap: "
)

// Config is the process-wide configuration plus the live role/session state.
// Serialized fields come from config.yaml; everything else is runtime state
// owned by the single active conversation.
type Config struct {
	ModelID           string         `yaml:"model"`
	Temperature       *float64       `yaml:"temperature,omitempty"`
	TopP              *float64       `yaml:"top_p,omitempty"`
	SaveSession       *bool          `yaml:"save_session,omitempty"`
	CompressThreshold int            `yaml:"compress_threshold,omitempty"`
	SummarizePrompt   string         `yaml:"summarize_prompt,omitempty"`
	SummaryPrompt     string         `yaml:"summary_prompt,omitempty"`
	Clients           []ClientConfig `yaml:"clients"`

	dir        string
	roles      []*role.Role
	activeRole *role.Role
	session    *session.Session
	model      *llm.Model
	lastReply  string
}

// Dir returns the configuration directory, honoring VERBA_CONFIG_DIR and
// falling back to ~/.verba.
func Dir() (string, error) {
	if dir := os.Getenv("VERBA_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "failed to locate home directory")
	}
	return filepath.Join(home, ".verba"), nil
}

// Init loads config.yaml and roles.yaml from dir and resolves the default
// model. A missing config file is an error: without client blocks there is
// nothing to talk to.
func Init(dir string) (*Config, error) {
	cfg := &Config{
		CompressThreshold: defaultCompressThreshold,
		dir:               dir,
	}

	path := filepath.Join(dir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load config at %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "invalid config at %s", path)
	}
	if cfg.CompressThreshold == 0 {
		cfg.CompressThreshold = defaultCompressThreshold
	}

	cfg.roles, err = role.Load(filepath.Join(dir, rolesFileName))
	if err != nil {
		return nil, err
	}

	if err := cfg.setupModel(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setupModel() error {
	models := c.Models()
	if len(models) == 0 {
		return errors.New("no models configured")
	}
	if c.ModelID == "" {
		c.model = models[0]
		c.ModelID = c.model.ID()
		return nil
	}
	model := llm.FindModel(models, c.ModelID)
	if model == nil {
		return errors.Wrapf(errors.ErrNoModel, "no model '%s'", c.ModelID)
	}
	c.model = model
	return nil
}

// Models lists every model declared by the configured clients.
func (c *Config) Models() []*llm.Model {
	var models []*llm.Model
	for i := range c.Clients {
		models = append(models, c.Clients[i].Models()...)
	}
	return models
}

// Model returns the effective model for the next request.
func (c *Config) Model() *llm.Model { return c.model }

// Session returns the active session, nil outside one.
func (c *Config) Session() *session.Session { return c.session }

// Role returns the active role, nil when none is set.
func (c *Config) Role() *role.Role { return c.activeRole }

// Roles lists all known roles, file-defined and builtin.
func (c *Config) Roles() []*role.Role { return c.roles }

// State derives the operating state from the active role and session.
func (c *Config) State() State {
	if c.session != nil {
		if c.session.IsEmpty() {
			if c.activeRole != nil {
				return StateEmptySessionWithRole
			}
			return StateEmptySession
		}
		return StateSession
	}
	if c.activeRole != nil {
		return StateRole
	}
	return StateNormal
}

// SetRole activates a role by name. Inside an empty session the role's
// overrides are written into the session scope; once the session has
// messages the change is rejected, because the previous role is already part
// of the stored history.
func (c *Config) SetRole(name string) error {
	r, err := role.Find(c.roles, name)
	if err != nil {
		return err
	}
	return c.setRole(r)
}

// SetPrompt activates a one-off prompt as a temporary role.
func (c *Config) SetPrompt(prompt string) error {
	return c.setRole(role.Temp(prompt))
}

func (c *Config) setRole(r *role.Role) error {
	if !c.State().CanChangeRole() {
		return errors.ErrUnableChangeRole
	}
	if c.session != nil {
		if err := c.session.GuardEmpty(); err != nil {
			return err
		}
		c.session.SetTemperature(r.Temperature)
		c.session.SetTopP(r.TopP)
		c.session.SetSystemPrompt(r.SystemPrompt())
	}
	if r.ModelID != "" {
		if err := c.SetModel(r.ModelID); err != nil {
			return err
		}
	}
	c.activeRole = r
	return nil
}

// ClearRole deactivates the role and restores the configured default model.
// Like SetRole it is illegal once the session has messages.
func (c *Config) ClearRole() error {
	if !c.State().CanChangeRole() {
		return errors.ErrUnableChangeRole
	}
	c.activeRole = nil
	if c.session != nil {
		c.session.SetSystemPrompt("")
	}
	return c.restoreModel()
}

// SetModel switches the model, writing the choice into the innermost active
// scope: session, then role, then the global default.
func (c *Config) SetModel(id string) error {
	model := llm.FindModel(c.Models(), id)
	if model == nil {
		return errors.Wrapf(errors.ErrNoModel, "no model '%s'", id)
	}
	switch {
	case c.session != nil:
		c.session.SetModel(model)
	case c.activeRole != nil:
		c.activeRole.ModelID = model.ID()
	default:
		c.ModelID = model.ID()
	}
	c.model = model
	return nil
}

func (c *Config) restoreModel() error {
	model := llm.FindModel(c.Models(), c.ModelID)
	if model == nil {
		return errors.Wrapf(errors.ErrNoModel, "no model '%s'", c.ModelID)
	}
	c.model = model
	return nil
}

// SetTemperature writes the override into the innermost active scope.
func (c *Config) SetTemperature(v *float64) {
	switch {
	case c.session != nil:
		c.session.SetTemperature(v)
	case c.activeRole != nil:
		c.activeRole.SetTemperature(v)
	default:
		c.Temperature = v
	}
}

// SetTopP writes the override into the innermost active scope.
func (c *Config) SetTopP(v *float64) {
	switch {
	case c.session != nil:
		c.session.SetTopP(v)
	case c.activeRole != nil:
		c.activeRole.SetTopP(v)
	default:
		c.TopP = v
	}
}

// SetCompressThreshold writes the override into the session scope when one
// is active, otherwise changes the global default.
func (c *Config) SetCompressThreshold(v *int) {
	if c.session != nil {
		c.session.SetCompressThreshold(v)
		return
	}
	if v == nil {
		c.CompressThreshold = defaultCompressThreshold
	} else {
		c.CompressThreshold = *v
	}
}

// EffectiveTemperature resolves the precedence session > role > global.
func (c *Config) EffectiveTemperature() *float64 {
	if c.session != nil && c.session.Temperature != nil {
		return c.session.Temperature
	}
	if c.activeRole != nil && c.activeRole.Temperature != nil {
		return c.activeRole.Temperature
	}
	return c.Temperature
}

// EffectiveTopP resolves the precedence session > role > global.
func (c *Config) EffectiveTopP() *float64 {
	if c.session != nil && c.session.TopP != nil {
		return c.session.TopP
	}
	if c.activeRole != nil && c.activeRole.TopP != nil {
		return c.activeRole.TopP
	}
	return c.TopP
}

// BuildSendData assembles the request payload for input under the current
// state: session history, role template, or the bare input.
func (c *Config) BuildSendData(input llm.MessageContent) llm.SendData {
	var messages []llm.Message
	switch {
	case c.session != nil:
		messages = c.session.BuildMessages(input)
	case c.activeRole != nil:
		messages = c.activeRole.BuildMessages(input)
	default:
		messages = []llm.Message{{Role: llm.RoleUser, Content: input}}
	}
	return llm.SendData{
		Messages:    messages,
		Temperature: c.EffectiveTemperature(),
		TopP:        c.EffectiveTopP(),
	}
}

// SaveMessage records a completed exchange into the session, if one is
// active, and remembers it as the last exchange either way.
func (c *Config) SaveMessage(input llm.MessageContent, reply string) {
	c.lastReply = reply
	if c.session != nil {
		c.session.AddMessage(input, reply)
	}
}

// LastReply returns the reply of the most recent exchange.
func (c *Config) LastReply() string { return c.lastReply }

// SessionFile returns the path a named session persists to.
func (c *Config) SessionFile(name string) string {
	return filepath.Join(c.dir, sessionsDirName, name+".yaml")
}

// StartSession enters a session. An empty name starts the ephemeral temp
// session, discarding any stale temp file from an earlier run; a named
// session is loaded when its file exists and created fresh otherwise.
func (c *Config) StartSession(name string) error {
	if c.session != nil {
		return errors.ErrAlreadyInSession
	}
	if name == "" {
		name = session.TempName
		if err := os.Remove(c.SessionFile(name)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to clean up previous '%s' session", name)
		}
	}

	path := c.SessionFile(name)
	if _, err := os.Stat(path); err == nil {
		s, err := session.Load(name, path)
		if err != nil {
			return err
		}
		model := llm.FindModel(c.Models(), s.ModelID)
		if model == nil {
			return errors.Wrapf(errors.ErrNoModel, "session '%s' uses unknown model '%s'", name, s.ModelID)
		}
		s.BindModel(model)
		c.session = s
		c.model = model
		return nil
	}

	var systemPrompt string
	var temperature, topP *float64
	if c.activeRole != nil {
		systemPrompt = c.activeRole.SystemPrompt()
		temperature = c.activeRole.Temperature
		topP = c.activeRole.TopP
	}
	c.session = session.New(name, c.model, systemPrompt, temperature, topP)
	return nil
}

// EndSession leaves the session. A dirty session is persisted when saving is
// enabled for it; the temp session is never saved implicitly. The model
// falls back to the configured default.
func (c *Config) EndSession() error {
	s := c.session
	if s == nil {
		return nil
	}
	c.session = nil
	c.lastReply = ""

	if s.Dirty() && !s.IsTemp() && c.saveSessionEnabled() {
		if err := s.Save(c.SessionFile(s.Name)); err != nil {
			return err
		}
	}
	return c.restoreModel()
}

func (c *Config) saveSessionEnabled() bool {
	return c.SaveSession != nil && *c.SaveSession
}

// SaveActiveSession persists the session under name (or its current name
// when empty). Renaming away from "temp" makes an ephemeral session
// permanent.
func (c *Config) SaveActiveSession(name string) error {
	if c.session == nil {
		return errors.New("no active session")
	}
	if name != "" {
		c.session.Name = name
	}
	return c.session.Save(c.SessionFile(c.session.Name))
}

// ClearSessionMessages empties the active session's history; without a
// session it is a no-op.
func (c *Config) ClearSessionMessages() {
	if c.session != nil {
		c.session.ClearMessages()
	}
}

// ListSessions names the sessions on disk, sorted.
func (c *Config) ListSessions() []string {
	entries, err := os.ReadDir(filepath.Join(c.dir, sessionsDirName))
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if name, ok := strings.CutSuffix(entry.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ShouldCompressSession checks the compression trigger and latches the
// compressing flag, so a second trigger cannot fire while a summarization
// request is in flight.
func (c *Config) ShouldCompressSession() bool {
	if c.session != nil && c.session.NeedCompress(c.CompressThreshold) {
		c.session.SetCompressing(true)
		return true
	}
	return false
}

// CompressSession swaps the session history for the summary. Without an
// active session it is a deliberate no-op.
func (c *Config) CompressSession(summary string) {
	if c.session == nil {
		return
	}
	prompt := c.SummaryPrompt
	if prompt == "" {
		prompt = defaultSummaryPrompt
	}
	c.session.Compress(prompt + summary)
}

// EndCompressingSession releases the compressing latch, for the path where
// summarization failed and no swap happened.
func (c *Config) EndCompressingSession() {
	if c.session != nil {
		c.session.SetCompressing(false)
	}
}

// SummarizeInstruction is the instruction text sent to the provider when the
// engine requests a summary.
func (c *Config) SummarizeInstruction() string {
	if c.SummarizePrompt != "" {
		return c.SummarizePrompt
	}
	return defaultSummarizePrompt
}

// Info renders the innermost active scope: session, role, or the global
// settings.
func (c *Config) Info() (string, error) {
	if c.session != nil {
		return c.session.Export()
	}
	if c.activeRole != nil {
		return c.activeRole.Export()
	}
	return c.systemInfo(), nil
}

func (c *Config) systemInfo() string {
	items := [][2]string{
		{"model", c.ModelID},
		{"temperature", formatOption(c.Temperature)},
		{"top_p", formatOption(c.TopP)},
		{"compress_threshold", fmt.Sprintf("%d", c.CompressThreshold)},
		{"config_dir", c.dir},
	}
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "%-20s%s\n", item[0], item[1])
	}
	return b.String()
}

func formatOption(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

// NewClientForModel builds the adapter for the current model.
func (c *Config) NewClientForModel(ctx context.Context) (llm.Client, error) {
	return c.NewClient(ctx, c.model)
}
