// Package engine drives the nested-loop execution graph: initialize once,
// then alternate between an execute/tools inner loop (bounded by the
// current phase's todo list) and an outer strategic/tactical phase
// transition, until the job's goal is achieved or it's stopped.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentcore/pkg/checkpoint"
	"github.com/kadirpekel/agentcore/pkg/contextmanager"
	"github.com/kadirpekel/agentcore/pkg/jobstate"
	"github.com/kadirpekel/agentcore/pkg/llm"
	"github.com/kadirpekel/agentcore/pkg/memorymanager"
	"github.com/kadirpekel/agentcore/pkg/metrics"
	"github.com/kadirpekel/agentcore/pkg/phase"
	"github.com/kadirpekel/agentcore/pkg/planmanager"
	"github.com/kadirpekel/agentcore/pkg/snapshot"
	"github.com/kadirpekel/agentcore/pkg/todomanager"
	"github.com/kadirpekel/agentcore/pkg/tool"
	"github.com/kadirpekel/agentcore/pkg/workspace"
)

// Node names, used only as routing values inside Run; never persisted on
// JobState (every Run, fresh or resumed, enters at nodeInitialize, which
// rehydrates a resumed job's managers from JobState and then routes to
// execute).
const (
	nodeInitialize       = "initialize"
	nodeExecute          = "execute"
	nodeTools            = "tools"
	nodeCheckTodos       = "check_todos"
	nodeArchivePhase     = "archive_phase"
	nodeHandleTransition = "handle_transition"
	nodeCheckGoal        = "check_goal"
	nodeEnd              = "end"
)

const maxConsecutiveLLMErrors = 3

// Config parameterizes one Engine.
type Config struct {
	SystemPrompt     string
	MaxIterations    int
	CompactOnArchive bool
	TemplatesPath    string
	ToolTimeout      time.Duration
}

// DefaultConfig returns sane defaults for a role with no overrides.
func DefaultConfig() Config {
	return Config{
		SystemPrompt:     "You are an autonomous engineering agent working through a phased plan.",
		MaxIterations:    500,
		CompactOnArchive: true,
		ToolTimeout:      60 * time.Second,
	}
}

// Engine wires every collaborator together and drives the state machine.
type Engine struct {
	cfg Config
	log *slog.Logger

	Workspace   *workspace.Workspace
	Plan        *planmanager.Manager
	Memory      *memorymanager.Manager
	Todos       *todomanager.Manager
	Context     *contextmanager.Manager
	Snapshots   *snapshot.Manager
	Checkpoints *checkpoint.Store
	Tools       *tool.Registry
	LLM         llm.Collaborator
	Metrics     *metrics.Metrics
}

// New assembles an Engine from its collaborators. Checkpoints and Metrics
// may be nil (checkpointing and instrumentation become no-ops).
func New(cfg Config, ws *workspace.Workspace, todos *todomanager.Manager, ctxMgr *contextmanager.Manager,
	snapshots *snapshot.Manager, checkpoints *checkpoint.Store, tools *tool.Registry, collaborator llm.Collaborator, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:         cfg,
		log:         slog.Default(),
		Workspace:   ws,
		Plan:        planmanager.New(ws),
		Memory:      memorymanager.New(ws),
		Todos:       todos,
		Context:     ctxMgr,
		Snapshots:   snapshots,
		Checkpoints: checkpoints,
		Tools:       tools,
		LLM:         collaborator,
		Metrics:     m,
	}
}

// Run drives state through the execution graph until it reaches END,
// persisting a checkpoint after every node so a crash between any two
// nodes resumes cleanly. The returned JobState always reflects the job's
// final disposition; Run itself never returns a non-nil error for
// business failures (those land in state.Error) — only for conditions the
// caller must know the engine couldn't even attempt to handle.
func (e *Engine) Run(ctx context.Context, state *jobstate.JobState) (*jobstate.JobState, error) {
	if state.ThreadID == "" {
		state.ThreadID = uuid.NewString()
	}

	node := nodeInitialize

	for node != nodeEnd {
		select {
		case <-ctx.Done():
			state.Error = &jobstate.JobError{Type: "cancelled", Message: ctx.Err().Error(), Recoverable: true}
			state.ShouldStop = true
			e.checkpoint(state)
			return state, nil
		default:
		}

		started := time.Now()
		next, err := e.runNode(ctx, node, state)
		e.Metrics.ObserveIterationDuration(node, time.Since(started).Seconds())
		if err != nil {
			e.abort(state, "internal", err.Error(), false)
			next = nodeEnd
		}

		state.UpdatedAt = time.Now()
		e.checkpoint(state)

		if state.ShouldStop {
			return state, nil
		}
		node = next
	}
	return state, nil
}

func (e *Engine) checkpoint(state *jobstate.JobState) {
	if e.Checkpoints == nil {
		return
	}
	if err := e.Checkpoints.Save(state.ThreadID, state); err != nil {
		e.log.Warn("engine: checkpoint save failed", "job_id", state.JobID, "error", err)
	}
}

func (e *Engine) runNode(ctx context.Context, node string, state *jobstate.JobState) (string, error) {
	switch node {
	case nodeInitialize:
		return e.initialize(ctx, state)
	case nodeExecute:
		return e.execute(ctx, state)
	case nodeTools:
		return e.tools(ctx, state)
	case nodeCheckTodos:
		return e.checkTodos(ctx, state)
	case nodeArchivePhase:
		return e.archivePhase(ctx, state)
	case nodeHandleTransition:
		return e.handleTransition(ctx, state)
	case nodeCheckGoal:
		return e.checkGoal(ctx, state)
	default:
		return nodeEnd, fmt.Errorf("engine: unknown node %q", node)
	}
}

const seedInstructions = "# Instructions\n\nNo instructions were supplied for this job.\n"

func (e *Engine) initialize(ctx context.Context, state *jobstate.JobState) (string, error) {
	if err := e.Workspace.Initialize(); err != nil {
		return nodeEnd, fmt.Errorf("initialize workspace: %w", err)
	}

	if state.Initialized {
		// Resuming within the same process (or from a reloaded checkpoint):
		// TodoManager itself isn't checkpointed, only its JobState mirror, so
		// it must be rehydrated before execute can rely on it.
		e.Todos.RestoreState(todomanager.State{
			Todos:            fromJobTodos(state.Todos),
			StagedTodos:      fromJobTodos(state.StagedTodos),
			NextID:           state.TodoNextID,
			IsStrategicPhase: state.IsStrategic,
			PhaseNumber:      state.PhaseNumber,
			CurrentPhaseName: state.CurrentPhaseName,
			StagedPhaseName:  state.StagedPhaseName,
		})
	} else {
		if !e.Memory.Exists() {
			_ = e.Memory.Write("# Workspace Memory\n\nNothing recorded yet.\n")
		}
		if !e.Workspace.Exists("instructions.md") {
			_ = e.Workspace.WriteFile("instructions.md", seedInstructions)
		}

		todos, err := phase.Templates(phase.KindInitial, e.cfg.TemplatesPath)
		if err != nil {
			return nodeEnd, fmt.Errorf("load initial todos: %w", err)
		}
		for _, content := range todos {
			e.Todos.Add(content, todomanager.PriorityMedium)
		}
		e.Todos.SetPhase(true, state.PhaseNumber, "Initial planning")
	}

	state.WorkspaceMemory = e.Memory.Read()
	state.Initialized = true
	return nodeExecute, nil
}

func (e *Engine) protectedContext() string {
	plan := e.Plan.Read()
	if len(plan) > 2000 {
		plan = plan[:2000] + "\n...[truncated]"
	}
	var b strings.Builder
	b.WriteString("## Current Plan\n\n")
	if plan == "" {
		b.WriteString("(plan.md not yet written)\n")
	} else {
		b.WriteString(plan)
	}
	b.WriteString("\n\n## Current Todos\n\n")
	b.WriteString(e.Todos.FormatForDisplay())
	return b.String()
}

func (e *Engine) buildRequestMessages(state *jobstate.JobState) []jobstate.Message {
	systemContent := e.cfg.SystemPrompt + "\n\n" + state.WorkspaceMemory + "\n\n" + e.protectedContext()

	if len(state.Messages) == 0 || state.Messages[0].Role != jobstate.RoleSystem {
		state.Messages = append([]jobstate.Message{jobstate.NewSystem(systemContent)}, state.Messages...)
	} else {
		state.Messages[0].Content = systemContent
	}
	return state.Messages
}

func (e *Engine) execute(ctx context.Context, state *jobstate.JobState) (string, error) {
	requestMessages := e.buildRequestMessages(state)

	prepared, outcome, err := e.Context.EnsureWithinLimits(ctx, requestMessages, e.LLM, false)
	if err != nil {
		e.abort(state, "LLMFatal", fmt.Sprintf("summarization failed: %v", err), false)
		return nodeEnd, nil
	}
	recordCompactionMetrics(e.Metrics, outcome)
	applyCompactionOutcome(state, outcome)
	state.Messages = prepared

	assistant, err := e.LLM.Invoke(ctx, state.Messages)
	if err != nil {
		return e.handleLLMError(ctx, state, err)
	}

	state.Messages = append(state.Messages, assistant)
	state.ConsecutiveLLMErrors = 0
	state.Iteration++

	if assistant.HasToolCalls() {
		return nodeTools, nil
	}
	return nodeCheckTodos, nil
}

func (e *Engine) handleLLMError(ctx context.Context, state *jobstate.JobState, err error) (string, error) {
	var overflow *contextmanager.OverflowError
	var transient *llm.TransientError
	var fatal *llm.FatalError

	switch {
	case errors.As(err, &overflow):
		e.Metrics.RecordLLMError("overflow")
	case errors.As(err, &transient):
		e.Metrics.RecordLLMError("transient")
	case errors.As(err, &fatal):
		e.Metrics.RecordLLMError("fatal")
		e.abort(state, "LLMFatal", err.Error(), false)
		return nodeEnd, nil
	default:
		e.Metrics.RecordLLMError("transient")
	}

	state.ConsecutiveLLMErrors++
	if state.ConsecutiveLLMErrors >= maxConsecutiveLLMErrors {
		e.abort(state, "LLMTransient", fmt.Sprintf("%d consecutive LLM errors: %v", state.ConsecutiveLLMErrors, err), false)
		return nodeEnd, nil
	}

	aggressive := e.Context.PrepareMessagesForLLM(state.Messages, true)
	compacted, compErr := e.Context.SummarizeAndCompact(ctx, aggressive, e.LLM)
	if compErr != nil {
		state.Messages = aggressive
	} else {
		state.Messages = compacted
		state.ContextStats.Summarizations++
		state.ContextStats.LastCompactionIteration = state.Iteration
	}
	state.ContextStats.Tokens = e.Context.CountTokens(state.Messages)
	e.Metrics.RecordCompaction("summarize")
	return nodeExecute, nil
}

func (e *Engine) tools(ctx context.Context, state *jobstate.JobState) (string, error) {
	last, ok := state.LastAssistant()
	if !ok {
		return nodeCheckTodos, nil
	}

	toolCtx := tool.Context{Ctx: ctx, Workspace: e.Workspace, Todos: e.Todos}
	for _, tc := range last.ToolCalls {
		result, ok, retries := e.Tools.Invoke(toolCtx, tc.Name, tc.Arguments)
		state.Messages = append(state.Messages, jobstate.NewToolResult(tc.ID, result))

		if state.ToolRetryState.CurrentRetries == nil {
			state.ToolRetryState = jobstate.NewToolRetryState()
		}
		state.ToolRetryState.CurrentRetries[tc.Name] = retries
		state.ToolRetryState.TotalRetries += retries
		if retries > 0 {
			e.Metrics.RecordToolRetry(tc.Name)
		}
		if !ok {
			state.ToolRetryState.FailedTools[tc.Name]++
		}
		if ok && tc.Name == "job_complete" {
			state.MarkJobComplete()
		}
	}
	return nodeCheckTodos, nil
}

func (e *Engine) checkTodos(ctx context.Context, state *jobstate.JobState) (string, error) {
	state.PhaseComplete = e.Todos.AllComplete()
	exported := e.Todos.ExportState()
	state.Todos = toJobTodos(exported.Todos)
	state.StagedTodos = toJobTodos(exported.StagedTodos)
	state.TodoNextID = exported.NextID
	state.CurrentPhaseName = exported.CurrentPhaseName
	state.StagedPhaseName = exported.StagedPhaseName

	if state.PhaseComplete {
		return nodeArchivePhase, nil
	}
	return nodeExecute, nil
}

func (e *Engine) archivePhase(ctx context.Context, state *jobstate.JobState) (string, error) {
	if e.cfg.CompactOnArchive {
		prepared, outcome, err := e.Context.EnsureWithinLimits(ctx, state.Messages, e.LLM, state.IsStrategic)
		if err == nil {
			state.Messages = prepared
			recordCompactionMetrics(e.Metrics, outcome)
			applyCompactionOutcome(state, outcome)
		}
	}

	state.Messages = append(state.Messages, jobstate.NewHuman(fmt.Sprintf("Phase complete. Archiving %q before moving on.", e.Todos.CurrentPhaseName())))

	if _, err := e.Todos.Archive(e.Todos.CurrentPhaseName(), time.Now()); err != nil {
		e.log.Warn("engine: archive failed", "job_id", state.JobID, "error", err)
	}
	return nodeHandleTransition, nil
}

func (e *Engine) handleTransition(ctx context.Context, state *jobstate.JobState) (string, error) {
	completed, total := todoCounts(e.Todos)
	e.Snapshots.CreateSnapshot(state.PhaseNumber, state.Iteration, len(state.Messages), state.IsStrategic, completed, total, state.ThreadID)

	systemMsgs := make([]jobstate.Message, 0, len(state.Messages))
	for _, m := range state.Messages {
		if m.Role == jobstate.RoleSystem {
			systemMsgs = append(systemMsgs, m)
		}
	}

	fromPhase, toPhaseKind := phaseLabel(state.IsStrategic), phaseLabel(!state.IsStrategic)
	state.IsStrategic = !state.IsStrategic
	state.PhaseNumber++
	e.Metrics.RecordPhaseTransition(fromPhase, toPhaseKind)

	seed := jobstate.NewHuman(fmt.Sprintf("You are now in %s phase %d. Continue the job.", toPhaseKind, state.PhaseNumber))
	state.Messages = append(systemMsgs, seed)

	if state.IsStrategic {
		kind := phase.KindTransition
		if isFeedbackResume(state) {
			kind = phase.KindResumeFromFeedback
		}
		todos, err := phase.Templates(kind, e.cfg.TemplatesPath)
		if err != nil {
			return nodeEnd, fmt.Errorf("load %s todos: %w", kind, err)
		}
		for _, content := range todos {
			e.Todos.Add(content, todomanager.PriorityMedium)
		}
		e.Todos.SetPhase(true, state.PhaseNumber, "")
	} else {
		raw, err := e.Workspace.ReadFile("todos.yaml")
		if err != nil {
			e.abort(state, "YAMLValidation", fmt.Sprintf("todos.yaml missing or unreadable: %v", err), false)
			return nodeEnd, nil
		}
		validated, verr := phase.ValidateTodosYAML([]byte(raw), e.Todos.MinTodos(), e.Todos.MaxTodos())
		if verr != nil {
			e.abort(state, "YAMLValidation", verr.Error(), false)
			return nodeEnd, nil
		}
		if _, err := e.Todos.StageTacticalTodos(validated, fmt.Sprintf("Phase %d", state.PhaseNumber)); err != nil {
			e.abort(state, "YAMLValidation", err.Error(), false)
			return nodeEnd, nil
		}
		e.Todos.ApplyStagedTodos()
		e.Todos.SetPhase(false, state.PhaseNumber, e.Todos.CurrentPhaseName())
	}

	state.PhaseComplete = false
	return nodeCheckGoal, nil
}

func (e *Engine) checkGoal(ctx context.Context, state *jobstate.JobState) (string, error) {
	if e.Workspace.Exists("output/job_completion.json") || e.Plan.IsComplete("") || state.JobCompleteInvoked() {
		state.GoalAchieved = true
		state.ShouldStop = true
		return nodeEnd, nil
	}

	if state.Iteration >= e.cfg.MaxIterations {
		e.writeErrorReport(state, "IterationLimit", fmt.Sprintf("reached max_iterations=%d", e.cfg.MaxIterations))
		state.Error = &jobstate.JobError{Type: "IterationLimit", Message: "iteration limit reached", Recoverable: false}
		state.ShouldStop = true
		return nodeEnd, nil
	}

	return nodeExecute, nil
}

// abort marks state non-recoverable-failed and writes the diagnostic
// report, mirroring every non-recoverable branch's disposition in one
// place.
func (e *Engine) abort(state *jobstate.JobState, kind, message string, recoverable bool) {
	state.Error = &jobstate.JobError{Type: kind, Message: message, Recoverable: recoverable}
	state.ShouldStop = true
	e.writeErrorReport(state, kind, message)
}

func (e *Engine) writeErrorReport(state *jobstate.JobState, kind, message string) {
	ts := time.Now().UTC().Format("20060102_150405")
	body := fmt.Sprintf("# Job Error\n\nTimestamp: %s\nKind: %s\nMessage: %s\nIteration: %d\nJob ID: %s\n\n## Stack\n\n```\n%s\n```\n",
		time.Now().UTC().Format(time.RFC3339), kind, message, state.Iteration, state.JobID, debug.Stack())
	if err := e.Workspace.WriteFile(fmt.Sprintf("output/error_%s.md", ts), body); err != nil {
		e.log.Error("engine: failed to write error report", "job_id", state.JobID, "error", err)
	}
}

func phaseLabel(isStrategic bool) string {
	if isStrategic {
		return "strategic"
	}
	return "tactical"
}

func isFeedbackResume(state *jobstate.JobState) bool {
	v, ok := state.Metadata["feedback_resume"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func todoCounts(m *todomanager.Manager) (completed, total int) {
	for _, t := range m.ListAll() {
		total++
		if t.Status == todomanager.StatusCompleted {
			completed++
		}
	}
	return completed, total
}

func recordCompactionMetrics(m *metrics.Metrics, outcome contextmanager.CompactionOutcome) {
	if outcome.Cleared {
		m.RecordCompaction("clear")
	}
	if outcome.Trimmed {
		m.RecordCompaction("trim")
	}
	if outcome.Summarized {
		m.RecordCompaction("summarize")
	}
}

// applyCompactionOutcome folds a CompactionOutcome into the checkpointed
// JobState.ContextStats, so a resumed job's counters reflect compaction that
// happened before the crash rather than resetting to zero.
func applyCompactionOutcome(state *jobstate.JobState, outcome contextmanager.CompactionOutcome) {
	state.ContextStats.Tokens = outcome.Tokens
	if outcome.Cleared {
		state.ContextStats.Clears++
	}
	if outcome.Trimmed {
		state.ContextStats.Trims++
	}
	if outcome.Summarized {
		state.ContextStats.Summarizations++
	}
	if outcome.Cleared || outcome.Trimmed || outcome.Summarized {
		state.ContextStats.LastCompactionIteration = state.Iteration
	}
}

func fromJobTodos(todos []jobstate.Todo) []todomanager.Todo {
	out := make([]todomanager.Todo, len(todos))
	for i, t := range todos {
		out[i] = todomanager.Todo{ID: t.ID, Content: t.Content, Status: t.Status, Priority: t.Priority, Notes: t.Notes, CreatedAt: t.CreatedAt}
	}
	return out
}

func toJobTodos(todos []todomanager.Todo) []jobstate.Todo {
	out := make([]jobstate.Todo, len(todos))
	for i, t := range todos {
		out[i] = jobstate.Todo{ID: t.ID, Content: t.Content, Status: t.Status, Priority: t.Priority, Notes: t.Notes, CreatedAt: t.CreatedAt}
	}
	return out
}
