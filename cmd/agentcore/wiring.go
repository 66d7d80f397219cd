package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kadirpekel/agentcore/pkg/checkpoint"
	"github.com/kadirpekel/agentcore/pkg/config"
	"github.com/kadirpekel/agentcore/pkg/contextmanager"
	"github.com/kadirpekel/agentcore/pkg/engine"
	"github.com/kadirpekel/agentcore/pkg/llm"
	"github.com/kadirpekel/agentcore/pkg/metrics"
	"github.com/kadirpekel/agentcore/pkg/snapshot"
	"github.com/kadirpekel/agentcore/pkg/todomanager"
	"github.com/kadirpekel/agentcore/pkg/tool"
	"github.com/kadirpekel/agentcore/pkg/workspace"
)

// rig bundles every collaborator a job needs, plus the teardown its
// resource-holding members require.
type rig struct {
	Engine      *engine.Engine
	Workspace   *workspace.Workspace
	Checkpoints *checkpoint.Store
	Metrics     *metrics.Metrics
}

func (r *rig) Close() {
	if r.Checkpoints != nil {
		_ = r.Checkpoints.Close()
	}
}

// buildRig loads the role config at cli.RoleConfig and assembles the
// engine and its collaborators for jobID, rooted under cli.WorkspacePath.
func buildRig(cli *CLI, jobID string) (*rig, error) {
	if cli.RoleConfig == "" {
		return nil, fmt.Errorf("--role-config is required")
	}
	cfg, err := config.Load(cli.RoleConfig)
	if err != nil {
		return nil, fmt.Errorf("load role config: %w", err)
	}

	base := workspace.ResolveBasePath(cli.WorkspacePath)
	if cfg.WorkspacePath != "" {
		base = cfg.WorkspacePath
	}
	ws := workspace.New(base, jobID, nil, cfg.EnableGit)
	if err := ws.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize workspace: %w", err)
	}

	snapshotBase := cfg.SnapshotBase
	if snapshotBase == "" {
		snapshotBase = filepath.Join(base, "snapshots")
	}
	checkpointDB := cfg.CheckpointDB
	if checkpointDB == "" {
		checkpointDB = filepath.Join(base, "checkpoints", "job_"+jobID+".db")
	}
	if err := os.MkdirAll(filepath.Dir(checkpointDB), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}

	todos := todomanager.New(ws, commitFunc(ws), todomanager.Config{
		MinTodos: cfg.Todos.MinTodos,
		MaxTodos: cfg.Todos.MaxTodos,
	})

	ctxCfg := contextmanager.DefaultConfig(cfg.Model)
	if cfg.Context.CompactionThresholdTokens > 0 {
		ctxCfg.CompactionThresholdTokens = cfg.Context.CompactionThresholdTokens
	}
	if cfg.Context.SummarizationThresholdTokens > 0 {
		ctxCfg.SummarizationThresholdTokens = cfg.Context.SummarizationThresholdTokens
	}
	if cfg.Context.MessageCountThreshold > 0 {
		ctxCfg.MessageCountThreshold = cfg.Context.MessageCountThreshold
	}
	if cfg.Context.MessageCountMinTokens > 0 {
		ctxCfg.MessageCountMinTokens = cfg.Context.MessageCountMinTokens
	}
	if cfg.Context.KeepRecentToolResults > 0 {
		ctxCfg.KeepRecentToolResults = cfg.Context.KeepRecentToolResults
	}
	if cfg.Context.KeepRecentMessages > 0 {
		ctxCfg.KeepRecentMessages = cfg.Context.KeepRecentMessages
	}
	if cfg.Context.MaxToolResultLength > 0 {
		ctxCfg.MaxToolResultLength = cfg.Context.MaxToolResultLength
	}
	ctxMgr := contextmanager.New(ctxCfg, nil)

	snapshots := snapshot.New(snapshotBase, jobID, ws.Root(), checkpointDB)

	checkpoints, err := checkpoint.Open(checkpointDB)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	tools := tool.NewRegistry(tool.DefaultRegistryConfig())
	tools.Register(tool.NewJobCompleteTool(jobID))
	tools.Register(tool.NewNextPhaseTodosTool())
	tools.Register(tool.NewReadFileTool())
	tools.Register(tool.NewWriteFileTool())

	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	llmClient := llm.NewHTTPClient(llm.Config{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       apiKey,
		Model:        cfg.Model,
		Timeout:      cfg.LLM.Timeout,
		ContextLimit: cfg.LLM.ContextLimit,
	}, ctxMgr)
	llmClient.BindTools(tools.Definitions())

	m := metrics.New("agentcore")

	engineCfg := engine.DefaultConfig()
	if cfg.SystemPrompt != "" {
		engineCfg.SystemPrompt = cfg.SystemPrompt
	}
	engineCfg.MaxIterations = cfg.MaxIterations
	engineCfg.TemplatesPath = cfg.Todos.TemplatesPath

	eng := engine.New(engineCfg, ws, todos, ctxMgr, snapshots, checkpoints, tools, llmClient, m)

	return &rig{Engine: eng, Workspace: ws, Checkpoints: checkpoints, Metrics: m}, nil
}

// commitFunc adapts Workspace's optional git sink to todomanager.CommitFunc.
// When git is disabled ws.Git is nil, so every commit call is a harmless
// false rather than a nil-pointer panic.
func commitFunc(ws *workspace.Workspace) todomanager.CommitFunc {
	return func(message string, allowEmpty bool) bool {
		if ws.Git == nil {
			return false
		}
		return ws.Git.Commit(message, allowEmpty)
	}
}
