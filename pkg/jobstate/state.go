package jobstate

import "time"

// JobError carries the engine-visible description of the failure that
// stopped a job. Recoverable records whether a resume can pick the job back
// up (a cancellation, for instance, is attached with Recoverable true).
type JobError struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	Recoverable bool   `json:"recoverable"`
}

// ContextStats mirrors ContextManager's aggregate counters,
// cheap to recompute but checkpointed anyway so observability survives a
// resume without replaying history.
type ContextStats struct {
	Tokens                  int `json:"tokens"`
	Clears                  int `json:"clears"`
	Trims                   int `json:"trims"`
	Summarizations          int `json:"summarizations"`
	LastCompactionIteration int `json:"last_compaction_iteration"`
}

// ToolRetryState tracks retry accounting across the lifetime of a job.
type ToolRetryState struct {
	CurrentRetries map[string]int `json:"current_retries"`
	FailedTools    map[string]int `json:"failed_tools"`
	TotalRetries   int            `json:"total_retries"`
}

// NewToolRetryState returns a zeroed, ready-to-use ToolRetryState.
func NewToolRetryState() ToolRetryState {
	return ToolRetryState{
		CurrentRetries: make(map[string]int),
		FailedTools:    make(map[string]int),
	}
}

// JobState is the value flowing through the execution graph.
// It is the single source of truth at node boundaries: managers may hold a
// working copy between reads, but must re-serialize into JobState before
// routing to the next node.
type JobState struct {
	JobID         string `json:"job_id"`
	WorkspacePath string `json:"workspace_path"`

	Messages []Message `json:"messages"`

	Initialized    bool `json:"initialized"`
	PhaseComplete  bool `json:"phase_complete"`
	GoalAchieved   bool `json:"goal_achieved"`
	IsStrategic    bool `json:"is_strategic_phase"`
	PhaseNumber    int  `json:"phase_number"`
	IsFinalPhase   bool `json:"is_final_phase"`

	Iteration             int `json:"iteration"`
	ConsecutiveLLMErrors  int `json:"consecutive_llm_errors"`

	WorkspaceMemory string `json:"workspace_memory"`

	Error      *JobError `json:"error,omitempty"`
	ShouldStop bool      `json:"should_stop"`

	Metadata map[string]any `json:"metadata"`

	ContextStats   ContextStats   `json:"context_stats"`
	ToolRetryState ToolRetryState `json:"tool_retry_state"`

	// Mirrors of TodoManager, synced at the check_todos node so a
	// checkpoint written at any point can restore them without the
	// TodoManager itself being serializable in place.
	Todos        []Todo `json:"todos"`
	StagedTodos  []Todo `json:"staged_todos"`
	TodoNextID   int    `json:"todo_next_id"`

	CurrentPhaseName string `json:"current_phase_name,omitempty"`
	StagedPhaseName  string `json:"staged_phase_name,omitempty"`

	ThreadID  string    `json:"thread_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a fresh JobState for a job that has never been initialized.
func New(jobID, workspacePath string) *JobState {
	return &JobState{
		JobID:          jobID,
		WorkspacePath:  workspacePath,
		IsStrategic:    true,
		PhaseNumber:    1,
		Metadata:       make(map[string]any),
		ToolRetryState: NewToolRetryState(),
	}
}

// LastAssistant returns the most recent Assistant message and whether one
// was found.
func (s *JobState) LastAssistant() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// JobCompleteInvoked reports whether the job_complete tool has been recorded
// as invoked via the metadata flag the engine's tools node sets (and its
// check_goal node reads).
func (s *JobState) JobCompleteInvoked() bool {
	v, ok := s.Metadata["job_complete_invoked"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// MarkJobComplete sets the metadata flag consumed by JobCompleteInvoked.
func (s *JobState) MarkJobComplete() {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	s.Metadata["job_complete_invoked"] = true
}
