// Package config handles Scribe configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/scribe/config.yaml, /etc/scribe/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "scribe", "config.yaml"))
	}

	paths = append(paths, "/etc/scribe/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Scribe configuration.
type Config struct {
	Coral     CoralConfig  `yaml:"coral"`
	LLM       LLMConfig    `yaml:"llm"`
	Mem0      Mem0Config   `yaml:"mem0"`
	Loop      LoopConfig   `yaml:"loop"`
	Listen    ListenConfig `yaml:"listen"`
	DataDir   string       `yaml:"data_dir"`
	LogLevel  string       `yaml:"log_level"`
	LogFormat string       `yaml:"log_format"` // text or json
}

// CoralConfig defines the Coral MCP server session endpoint.
type CoralConfig struct {
	// SSEURL is the server's SSE endpoint, without the agent identity
	// query parameters (those are appended at connect time).
	SSEURL string `yaml:"sse_url"`
	// AgentID identifies this agent to the Coral server.
	AgentID string `yaml:"agent_id"`
	// AgentDescription is advertised to other agents on the server.
	AgentDescription string `yaml:"agent_description"`
	// ConnectTimeoutSec bounds session establishment (default 600).
	ConnectTimeoutSec int `yaml:"connect_timeout_sec"`
	// ReadTimeoutSec is the SSE stream inactivity limit (default 600).
	// Mention waits routinely sit idle for minutes; keep this generous.
	ReadTimeoutSec int `yaml:"read_timeout_sec"`
}

// Configured reports whether the Coral session can be established.
func (c CoralConfig) Configured() bool {
	return c.SSEURL != "" && c.AgentID != ""
}

// LLMConfig defines the language model endpoint settings.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"` // OpenAI-compatible endpoint
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// Mem0Config defines the hosted memory service settings.
type Mem0Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// UserID is the fixed logical identity all memories are keyed by.
	UserID string `yaml:"user_id"`
}

// LoopConfig defines the supervisor loop delays. Both are deliberate,
// configurable knobs: the values carry no documented rationale beyond
// observed behavior, so tests and deployments can substitute their own.
type LoopConfig struct {
	// IdleDelaySec is the pause after a successful cycle (default 1).
	IdleDelaySec int `yaml:"idle_delay_sec"`
	// RetryDelaySec is the pause after a failed cycle (default 5).
	RetryDelaySec int `yaml:"retry_delay_sec"`
}

// ListenConfig defines the optional status server. Port 0 disables it.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Coral: CoralConfig{
			AgentDescription:  "An AI agent that generates Reddit posts with memory-enhanced personalization",
			ConnectTimeoutSec: 600,
			ReadTimeoutSec:    600,
		},
		LLM: LLMConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "openai/gpt-4.1-mini",
		},
		Mem0: Mem0Config{
			BaseURL: "https://api.mem0.ai",
			UserID:  "reddit_user",
		},
		Loop: LoopConfig{
			IdleDelaySec:  1,
			RetryDelaySec: 5,
		},
		DataDir: "data",
	}
}

// applyEnv overlays well-known environment variables on top of the file
// values. Deployment environments (Coral orchestration in particular)
// inject these directly rather than editing the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("CORAL_SSE_URL"); v != "" {
		c.Coral.SSEURL = v
	}
	if v := os.Getenv("CORAL_AGENT_ID"); v != "" {
		c.Coral.AgentID = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("MEM0_API_KEY"); v != "" {
		c.Mem0.APIKey = v
	}
}

// applyDefaults fills zero values that Unmarshal may have cleared.
func (c *Config) applyDefaults() {
	if c.Coral.ConnectTimeoutSec <= 0 {
		c.Coral.ConnectTimeoutSec = 600
	}
	if c.Coral.ReadTimeoutSec <= 0 {
		c.Coral.ReadTimeoutSec = 600
	}
	if c.Loop.IdleDelaySec <= 0 {
		c.Loop.IdleDelaySec = 1
	}
	if c.Loop.RetryDelaySec <= 0 {
		c.Loop.RetryDelaySec = 5
	}
	if c.Mem0.UserID == "" {
		c.Mem0.UserID = "reddit_user"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
}

// Validate checks that required fields are present and well-formed.
func (c *Config) Validate() error {
	if !c.Coral.Configured() {
		return fmt.Errorf("coral.sse_url and coral.agent_id are required (or CORAL_SSE_URL / CORAL_AGENT_ID)")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (or OPENROUTER_API_KEY)")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat)
	}
	return nil
}
