// Package config loads a role's YAML configuration: which phase todo
// templates to use, the context/compaction thresholds, the checkpoint and
// snapshot locations, and the LLM/tool wiring for a job.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// RoleConfig is the top-level shape of a role's YAML configuration file.
type RoleConfig struct {
	Name          string         `yaml:"name"`
	WorkspacePath string         `yaml:"workspace_path"`
	SnapshotBase  string         `yaml:"snapshot_base"`
	CheckpointDB  string         `yaml:"checkpoint_db"`
	Model         string         `yaml:"model"`
	SystemPrompt  string         `yaml:"system_prompt"`
	MaxIterations int            `yaml:"max_iterations"`
	EnableGit     bool           `yaml:"enable_git"`
	Context       ContextConfig  `yaml:"context"`
	Todos         TodosConfig    `yaml:"todos"`
	LLM           LLMConfig      `yaml:"llm"`
	Tools         map[string]any `yaml:"tools"`
	Metadata      map[string]any `yaml:"metadata"`
}

// LLMConfig points the HTTP collaborator client at a provider endpoint. The
// API key itself is never written to YAML; APIKeyEnv names the environment
// variable it's read from at startup.
type LLMConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	ContextLimit int           `yaml:"context_limit"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ContextConfig mirrors contextmanager.Config's YAML-facing subset.
type ContextConfig struct {
	CompactionThresholdTokens    int           `yaml:"compaction_threshold_tokens"`
	SummarizationThresholdTokens int           `yaml:"summarization_threshold_tokens"`
	MessageCountThreshold        int           `yaml:"message_count_threshold"`
	MessageCountMinTokens        int           `yaml:"message_count_min_tokens"`
	KeepRecentToolResults        int           `yaml:"keep_recent_tool_results"`
	KeepRecentMessages           int           `yaml:"keep_recent_messages"`
	MaxToolResultLength          int           `yaml:"max_tool_result_length"`
	IdleTimeout                  time.Duration `yaml:"idle_timeout"`
}

// TodosConfig mirrors todomanager.Config.
type TodosConfig struct {
	MinTodos      int    `yaml:"min_todos"`
	MaxTodos      int    `yaml:"max_todos"`
	TemplatesPath string `yaml:"templates_path"`
}

// ToolConfig decodes one entry of RoleConfig.Tools via mapstructure, for
// tools whose options aren't known ahead of time by this package.
type ToolConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Options map[string]any `mapstructure:"options"`
}

// Load reads .env files (if present), then the YAML file at path, expanding
// ${VAR} references against the process environment before decoding.
func Load(path string) (*RoleConfig, error) {
	if err := LoadEnvFiles(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	expanded := ExpandEnvVarsInData(raw)

	cfg := &RoleConfig{}
	if err := decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *RoleConfig) applyDefaults() {
	if c.Context.CompactionThresholdTokens == 0 {
		c.Context.CompactionThresholdTokens = 80000
	}
	if c.Context.SummarizationThresholdTokens == 0 {
		c.Context.SummarizationThresholdTokens = 100000
	}
	if c.Context.MessageCountThreshold == 0 {
		c.Context.MessageCountThreshold = 60
	}
	if c.Context.MessageCountMinTokens == 0 {
		c.Context.MessageCountMinTokens = 40000
	}
	if c.Context.KeepRecentToolResults == 0 {
		c.Context.KeepRecentToolResults = 5
	}
	if c.Context.KeepRecentMessages == 0 {
		c.Context.KeepRecentMessages = 20
	}
	if c.Context.MaxToolResultLength == 0 {
		c.Context.MaxToolResultLength = 2000
	}
	if c.Todos.MinTodos == 0 {
		c.Todos.MinTodos = 5
	}
	if c.Todos.MaxTodos == 0 {
		c.Todos.MaxTodos = 20
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 500
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = "AGENTCORE_API_KEY"
	}
	if c.LLM.ContextLimit == 0 {
		c.LLM.ContextLimit = 128000
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
}

// decode maps a freeform YAML-sourced value onto a typed struct the way the
// tool-options blocks get decoded: yaml-tagged fields, weakly typed input
// (YAML numbers/bools arriving as strings after env interpolation), and a
// duration hook so "30s"-style strings land in time.Duration fields.
func decode(input any, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	return decoder.Decode(input)
}

// DecodeToolConfig decodes one RoleConfig.Tools entry into a ToolConfig.
func DecodeToolConfig(raw any) (ToolConfig, error) {
	var tc ToolConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &tc,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return tc, fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return tc, fmt.Errorf("decode tool config: %w", err)
	}
	return tc, nil
}
