package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentcore/pkg/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadExpandsEnvVarsAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGENTCORE_MODEL", "gpt-4o")

	cfgPath := filepath.Join(dir, "role.yaml")
	writeFile(t, cfgPath, `
name: builder
workspace_path: /tmp/ws
model: ${AGENTCORE_MODEL}
context:
  compaction_threshold_tokens: 1000
todos:
  min_todos: 3
`)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "builder", cfg.Name)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, 1000, cfg.Context.CompactionThresholdTokens)
	assert.Equal(t, 100000, cfg.Context.SummarizationThresholdTokens) // default
	assert.Equal(t, 3, cfg.Todos.MinTodos)
	assert.Equal(t, 20, cfg.Todos.MaxTodos) // default
}

func TestLoadExpandsDefaultFallback(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "role.yaml")
	writeFile(t, cfgPath, `
name: builder
model: ${UNSET_MODEL_VAR:-fallback-model}
`)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "fallback-model", cfg.Model)
}

func TestLoadAppliesLLMAndEngineDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "role.yaml")
	writeFile(t, cfgPath, "name: builder\n")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.MaxIterations)
	assert.False(t, cfg.EnableGit)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "AGENTCORE_API_KEY", cfg.LLM.APIKeyEnv)
	assert.Equal(t, 128000, cfg.LLM.ContextLimit)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
}

func TestLoadHonorsExplicitLLMOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "role.yaml")
	writeFile(t, cfgPath, `
name: builder
enable_git: true
max_iterations: 50
llm:
  base_url: http://localhost:11434/v1
  api_key_env: OLLAMA_API_KEY
  context_limit: 32000
  timeout: 10s
`)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.True(t, cfg.EnableGit)
	assert.Equal(t, 50, cfg.MaxIterations)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "OLLAMA_API_KEY", cfg.LLM.APIKeyEnv)
	assert.Equal(t, 32000, cfg.LLM.ContextLimit)
	assert.Equal(t, 10*time.Second, cfg.LLM.Timeout)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := config.Load("/nonexistent/role.yaml")
	assert.Error(t, err)
}

func TestDecodeToolConfigWeaklyTypedInput(t *testing.T) {
	raw := map[string]any{
		"enabled": "true",
		"options": map[string]any{"max_results": 5},
	}
	tc, err := config.DecodeToolConfig(raw)
	require.NoError(t, err)
	assert.True(t, tc.Enabled)
	assert.Equal(t, 5, tc.Options["max_results"])
}

func TestLoadEnvFilesReadsDotEnvBesideConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "AGENTCORE_TEST_VAR=from-dotenv\n")
	cfgPath := filepath.Join(dir, "role.yaml")
	writeFile(t, cfgPath, "name: builder\n")

	require.NoError(t, config.LoadEnvFiles(cfgPath))
	assert.Equal(t, "from-dotenv", os.Getenv("AGENTCORE_TEST_VAR"))
}
