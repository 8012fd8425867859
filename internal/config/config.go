// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/jeranaias/ochat/internal/provider"
	"github.com/jeranaias/ochat/internal/sysprompt"
	"github.com/jeranaias/ochat/internal/transcript"
	"github.com/jeranaias/ochat/internal/util"
)

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete ochat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Delimiters   DelimiterConfig    `toml:"delimiters" json:"delimiters"`
	SystemPrompt SystemPromptConfig `toml:"system_prompt" json:"system_prompt"`
	Model        ModelConfig        `toml:"model" json:"model"`
	Provider     ProviderConfig     `toml:"provider" json:"provider"`
	Storage      StorageConfig      `toml:"storage" json:"storage"`
	UI           UIConfig           `toml:"ui" json:"ui"`
	Logging      LoggingConfig      `toml:"logging" json:"logging"`
}

// DelimiterConfig holds the role tokens. The marker is the token plus ":".
type DelimiterConfig struct {
	User      string `toml:"user" json:"user"`
	Assistant string `toml:"assistant" json:"assistant"`
	System    string `toml:"system" json:"system"`
}

// SystemPromptConfig is the default system prompt for every chat.
type SystemPromptConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// Hidden keeps the prompt out of the editable buffer; it is still sent.
	Hidden  bool   `toml:"hidden" json:"hidden"`
	Content string `toml:"content" json:"content"`
}

// ModelConfig picks the model selected at startup.
type ModelConfig struct {
	// Fixed always wins when it names an available model.
	Fixed string `toml:"fixed" json:"fixed"`
	// Previous is the model of the last submission. Written by ochat.
	Previous string `toml:"previous" json:"previous"`
}

// ProviderConfig selects and configures the model backend.
type ProviderConfig struct {
	// Name is one of: ollama, anthropic, openai, gemini
	Name      string `toml:"name" json:"name"`
	OllamaURL string `toml:"ollama_url" json:"ollama_url"`
	// AutoStart launches "ollama serve" when the server is not reachable
	AutoStart bool   `toml:"auto_start" json:"auto_start"`
	KeepAlive string `toml:"keep_alive" json:"keep_alive"`

	AnthropicKey string `toml:"anthropic_key" json:"anthropic_key"`
	OpenAIKey    string `toml:"openai_key" json:"openai_key"`
	GeminiKey    string `toml:"gemini_key" json:"gemini_key"`

	// MaxTokens caps the answer length for the cloud providers
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`
}

// StorageConfig locates chat history and the generation log.
type StorageConfig struct {
	// DataDir holds the chat files (empty: ~/.ochat/history)
	DataDir string `toml:"data_dir" json:"data_dir"`
	// AutosaveSecs is how often the open chat is snapshotted (0 disables)
	AutosaveSecs int `toml:"autosave_secs" json:"autosave_secs"`
	// Stats enables the sqlite generation log
	Stats bool `toml:"stats" json:"stats"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	// Markdown renders the preview pane through glamour
	Markdown bool `toml:"markdown" json:"markdown"`
	// ShowRaw opens chats in the raw editor instead of the preview
	ShowRaw bool   `toml:"show_raw" json:"show_raw"`
	Theme   string `toml:"theme" json:"theme"`
}

// LoggingConfig controls the debug log. The log never goes to the terminal
// the TUI draws on.
type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
	// File is the log path (empty: ~/.ochat/ochat.log)
	File string `toml:"file" json:"file"`
}

// Default returns a configuration with default values.
func Default() *Config {
	d := transcript.DefaultDelimiters()
	return &Config{
		Version: CurrentVersion,
		Delimiters: DelimiterConfig{
			User:      d.User,
			Assistant: d.Assistant,
			System:    d.System,
		},
		Provider: ProviderConfig{
			Name:      provider.NameOllama,
			OllamaURL: "http://127.0.0.1:11434",
			AutoStart: true,
			MaxTokens: provider.DefaultMaxTokens,
		},
		Storage: StorageConfig{
			AutosaveSecs: 30,
			Stats:        true,
		},
		UI: UIConfig{
			Markdown: true,
			ShowRaw:  true,
			Theme:    "dark",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the ochat directory, ~/.ochat unless OCHAT_HOME is set.
func ConfigDir() (string, error) {
	if dir := os.Getenv("OCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".ochat"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	return inConfigDir("config.toml")
}

// StatsPath returns the path to the generation log database.
func StatsPath() (string, error) {
	return inConfigDir("stats.db")
}

func inConfigDir(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// HistoryDir returns the directory holding chat files.
func (c *Config) HistoryDir() (string, error) {
	if c.Storage.DataDir != "" {
		return expandHome(c.Storage.DataDir)
	}
	return inConfigDir("history")
}

// LogPath returns the log file path.
func (c *Config) LogPath() (string, error) {
	if c.Logging.File != "" {
		return expandHome(c.Logging.File)
	}
	return inConfigDir("ochat.log")
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the config file, falling back to defaults when it does not
// exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg, err := LoadFromPath(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return cfg, err
}

// LoadFromPath loads and validates the configuration in path.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// decodeFile reads path without env overrides or validation.
func decodeFile(path string) (*Config, error) {
	cfg := &Config{}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		var perr toml.ParseError
		if errors.As(err, &perr) {
			return nil, fmt.Errorf("failed to parse %s: %s", path, perr.ErrorWithPosition())
		}
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		log.Warn("unknown config keys ignored", "path", path, "keys", strings.Join(keys, ", "))
	}
	fillDefaults(cfg, md)
	return cfg, nil
}

// fillDefaults fills in any values the file did not set.
func fillDefaults(cfg *Config, md toml.MetaData) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	if cfg.Delimiters.User == "" {
		cfg.Delimiters.User = defaults.Delimiters.User
	}
	if cfg.Delimiters.Assistant == "" {
		cfg.Delimiters.Assistant = defaults.Delimiters.Assistant
	}
	if cfg.Delimiters.System == "" {
		cfg.Delimiters.System = defaults.Delimiters.System
	}

	if cfg.Provider.Name == "" {
		cfg.Provider.Name = defaults.Provider.Name
	}
	if cfg.Provider.OllamaURL == "" {
		cfg.Provider.OllamaURL = defaults.Provider.OllamaURL
	}
	if cfg.Provider.MaxTokens == 0 {
		cfg.Provider.MaxTokens = defaults.Provider.MaxTokens
	}

	// Booleans default to true, so only an explicit false may turn them off.
	if !md.IsDefined("provider", "auto_start") {
		cfg.Provider.AutoStart = defaults.Provider.AutoStart
	}
	if !md.IsDefined("storage", "autosave_secs") {
		cfg.Storage.AutosaveSecs = defaults.Storage.AutosaveSecs
	}
	if !md.IsDefined("storage", "stats") {
		cfg.Storage.Stats = defaults.Storage.Stats
	}
	if !md.IsDefined("ui", "markdown") {
		cfg.UI.Markdown = defaults.UI.Markdown
	}
	if !md.IsDefined("ui", "show_raw") {
		cfg.UI.ShowRaw = defaults.UI.ShowRaw
	}

	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration to path. The file holds API keys and
// is created with mode 0600.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# ochat configuration file\n")
	buf.WriteString("# Written by ochat - edit with care. Changes apply while ochat runs.\n")
	buf.WriteString("\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0o600, 0o700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Update applies fn to the configuration file as written, without the
// environment overrides, and saves the result. A missing file starts from
// the defaults. Nothing is written if fn fails or the result is invalid.
func Update(fn func(cfg *Config) error) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}

	cfg, err := decodeFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return err
	}

	if err := fn(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return SaveTOML(cfg, path)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validThemes = []string{"dark", "light"}

// Validate checks the configuration and returns ValidateErrors listing every
// problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if _, err := transcript.NewDelimiterSet(c.Delimiters.User, c.Delimiters.Assistant, c.Delimiters.System); err != nil {
		errs = append(errs, ValidationError{Field: "delimiters", Message: err.Error()})
	}

	if !slices.Contains(provider.Names, strings.ToLower(c.Provider.Name)) {
		errs = append(errs, ValidationError{
			Field:   "provider.name",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: %s", c.Provider.Name, strings.Join(provider.Names, ", ")),
		})
	}

	if u, err := url.Parse(c.Provider.OllamaURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "provider.ollama_url",
			Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host:port", c.Provider.OllamaURL),
		})
	}

	if c.Provider.MaxTokens < 0 {
		errs = append(errs, ValidationError{Field: "provider.max_tokens", Message: "must not be negative"})
	}

	if c.Storage.AutosaveSecs < 0 {
		errs = append(errs, ValidationError{Field: "storage.autosave_secs", Message: "must not be negative"})
	}

	if !slices.Contains(validThemes, strings.ToLower(c.UI.Theme)) {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: %s", c.UI.Theme, strings.Join(validThemes, ", ")),
		})
	}

	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
//
//   - OCHAT_MODEL: overrides model.fixed
//   - OCHAT_PROVIDER: overrides provider.name
//   - OCHAT_OLLAMA_URL: overrides provider.ollama_url
//   - OCHAT_DATA_DIR: overrides storage.data_dir
//   - OCHAT_LOG_LEVEL: overrides logging.level
//   - OCHAT_MAX_TOKENS: overrides provider.max_tokens
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY: fill empty keys
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("OCHAT_MODEL"); model != "" {
		c.Model.Fixed = model
	}
	if name := os.Getenv("OCHAT_PROVIDER"); name != "" {
		c.Provider.Name = strings.ToLower(name)
	}
	if u := os.Getenv("OCHAT_OLLAMA_URL"); u != "" {
		c.Provider.OllamaURL = u
	}
	if dir := os.Getenv("OCHAT_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
	if level := os.Getenv("OCHAT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if v := os.Getenv("OCHAT_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Provider.MaxTokens = n
		}
	}

	// Config file keys win over the providers' conventional variables.
	if c.Provider.AnthropicKey == "" {
		c.Provider.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Provider.OpenAIKey == "" {
		c.Provider.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Provider.GeminiKey == "" {
		c.Provider.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
}

// =============================================================================
// TYPED VIEWS
// =============================================================================

// DelimiterSet returns the configured delimiters, normalised. Call Validate
// first; an invalid set falls back to the defaults.
func (c *Config) DelimiterSet() transcript.DelimiterSet {
	d, err := transcript.NewDelimiterSet(c.Delimiters.User, c.Delimiters.Assistant, c.Delimiters.System)
	if err != nil {
		return transcript.DefaultDelimiters()
	}
	return d
}

// SetDelimiters stores d as the configured delimiters.
func (c *Config) SetDelimiters(d transcript.DelimiterSet) {
	c.Delimiters = DelimiterConfig{User: d.User, Assistant: d.Assistant, System: d.System}
}

// PromptState returns the configured system prompt.
func (c *Config) PromptState() sysprompt.State {
	return sysprompt.State{
		Enabled: c.SystemPrompt.Enabled,
		Hidden:  c.SystemPrompt.Hidden,
		Content: c.SystemPrompt.Content,
	}
}

// ProviderOptions returns the options for provider.New.
func (c *Config) ProviderOptions() provider.Options {
	return provider.Options{
		Name:         strings.ToLower(c.Provider.Name),
		OllamaURL:    c.Provider.OllamaURL,
		KeepAlive:    c.Provider.KeepAlive,
		AnthropicKey: c.Provider.AnthropicKey,
		OpenAIKey:    c.Provider.OpenAIKey,
		GeminiKey:    c.Provider.GeminiKey,
		MaxTokens:    c.Provider.MaxTokens,
	}
}

// ResolveModel picks the model to select from available. current, when it
// is available, is an explicit choice and is kept. Otherwise the fixed model
// wins if available, then the previous model, then the first in sorted
// order. It returns "" when nothing is available.
func (c *Config) ResolveModel(available []string, current string) string {
	if len(available) == 0 {
		return ""
	}
	for _, candidate := range []string{current, c.Model.Fixed, c.Model.Previous} {
		if candidate != "" && slices.Contains(available, candidate) {
			return candidate
		}
	}
	sorted := slices.Clone(available)
	sort.Strings(sorted)
	return sorted[0]
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a JSON rendering of the config with API keys redacted.
func (c *Config) String() string {
	safe := c.Clone()
	for _, key := range []*string{&safe.Provider.AnthropicKey, &safe.Provider.OpenAIKey, &safe.Provider.GeminiKey} {
		if *key != "" {
			*key = "[REDACTED]"
		}
	}

	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance, loading it on first
// access. A config that fails to load is reported and replaced by defaults.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn("using default configuration", "err", err)
			cfg = Default()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
