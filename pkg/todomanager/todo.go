// Package todomanager implements the stateful, in-memory per-phase task
// list for a running job. This manager is in-memory only:
// export_state/restore_state synchronize it into JobState at checkpoint
// boundaries, and save_state/load_state mirror it to a human-readable YAML
// file for operator inspection. The two persistence paths never fight over
// being the source of truth.
package todomanager

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/agentcore/pkg/workspace"
)

// Status values a Todo can hold.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Priority values, ordered high to low for sorting.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

var priorityRank = map[string]int{PriorityHigh: 0, PriorityMedium: 1, PriorityLow: 2}

// minTrimmedChars is the minimum length a staged todo must carry, after
// trimming leading/trailing whitespace, to be considered a real task
// description rather than a stub.
const minTrimmedChars = 10

// Todo is a single task.
type Todo struct {
	ID        string    `yaml:"id"`
	Content   string    `yaml:"content"`
	Status    string    `yaml:"status"`
	Priority  string    `yaml:"priority"`
	Notes     []string  `yaml:"notes,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
}

// StagingError is returned by StageTacticalTodos when the proposed list
// violates the count bounds or a content-length floor.
type StagingError struct {
	Reason string
}

func (e *StagingError) Error() string { return "todomanager: staging rejected: " + e.Reason }

// CommitFunc is the narrow interface the manager needs from Workspace's git
// sink to record todo completion, injected so tests can fake it.
type CommitFunc func(message string, allowEmpty bool) bool

// Manager is the stateful per-job TodoManager.
type Manager struct {
	ws     *workspace.Workspace
	commit CommitFunc

	todos       []Todo
	stagedTodos []Todo
	nextID      int

	isStrategicPhase bool
	phaseNumber      int
	currentPhaseName string
	stagedPhaseName  string

	minTodos int
	maxTodos int
}

// Config bounds the accepted size of a staged tactical todo list.
type Config struct {
	MinTodos int
	MaxTodos int
}

// DefaultConfig bounds a staged tactical todo list to 5-20 items.
func DefaultConfig() Config { return Config{MinTodos: 5, MaxTodos: 20} }

// New creates a TodoManager fresh for a job activation. commit may be nil,
// in which case Complete's git commit step is skipped.
func New(ws *workspace.Workspace, commit CommitFunc, cfg Config) *Manager {
	if cfg.MinTodos <= 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		ws:          ws,
		commit:      commit,
		nextID:      1,
		phaseNumber: 1,
		minTodos:    cfg.MinTodos,
		maxTodos:    cfg.MaxTodos,
	}
}

func (m *Manager) newID() string {
	id := fmt.Sprintf("todo_%d", m.nextID)
	m.nextID++
	return id
}

// Add creates a new pending Todo.
func (m *Manager) Add(content, priority string) Todo {
	t := Todo{
		ID:        m.newID(),
		Content:   content,
		Status:    StatusPending,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
	m.todos = append(m.todos, t)
	return t
}

func (m *Manager) index(id string) int {
	for i, t := range m.todos {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Start transitions a todo to in_progress.
func (m *Manager) Start(id string) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	m.todos[i].Status = StatusInProgress
	return true
}

// Complete marks a todo completed, appends notes, and triggers a git commit
// Commit failures are logged by the Workspace's git sink,
// never propagated here.
func (m *Manager) Complete(id string, notes string) bool {
	i := m.index(id)
	if i < 0 {
		return false
	}
	m.todos[i].Status = StatusCompleted
	if notes != "" {
		m.todos[i].Notes = append(m.todos[i].Notes, notes)
	}

	if m.commit != nil {
		phaseKind := "Tactical"
		if m.isStrategicPhase {
			phaseKind = "Strategic"
		}
		msg := fmt.Sprintf("[Phase %d %s] Completed %s: %s", m.phaseNumber, phaseKind, id, m.todos[i].Content)
		if notes != "" {
			msg += fmt.Sprintf("; Notes: %s", notes)
		}
		m.commit(msg, false)
	}
	return true
}

// Get returns a todo by ID.
func (m *Manager) Get(id string) (Todo, bool) {
	i := m.index(id)
	if i < 0 {
		return Todo{}, false
	}
	return m.todos[i], true
}

// ListAll returns a copy of every todo.
func (m *Manager) ListAll() []Todo {
	out := make([]Todo, len(m.todos))
	copy(out, m.todos)
	return out
}

// ListPending returns pending and in-progress todos, sorted high-to-low
// priority then by creation time.
func (m *Manager) ListPending() []Todo {
	var out []Todo
	for _, t := range m.todos {
		if t.Status == StatusPending || t.Status == StatusInProgress {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priorityRank[out[i].Priority], priorityRank[out[j].Priority]
		if pi != pj {
			return pi < pj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// AllComplete is true iff todos is non-empty and every element is completed
func (m *Manager) AllComplete() bool {
	if len(m.todos) == 0 {
		return false
	}
	for _, t := range m.todos {
		if t.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// FormatForDisplay renders the compact multi-section view injected into the
// protected context.
func (m *Manager) FormatForDisplay() string {
	kind := "Tactical"
	if m.isStrategicPhase {
		kind = "Strategic"
	}
	header := fmt.Sprintf("## Phase %d (%s)", m.phaseNumber, kind)
	if m.currentPhaseName != "" {
		header += ": " + m.currentPhaseName
	}

	var inProgress, pending []Todo
	completed := 0
	for _, t := range m.todos {
		switch t.Status {
		case StatusInProgress:
			inProgress = append(inProgress, t)
		case StatusPending:
			pending = append(pending, t)
		case StatusCompleted:
			completed++
		}
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n### In Progress\n")
	if len(inProgress) == 0 {
		b.WriteString("(none)\n")
	}
	for _, t := range inProgress {
		fmt.Fprintf(&b, "- %s: %s\n", t.ID, t.Content)
	}

	b.WriteString("\n### Pending\n")
	if len(pending) == 0 {
		b.WriteString("(none)\n")
	}
	for _, t := range pending {
		prefix := ""
		if t.Priority == PriorityHigh {
			prefix = "[!] "
		}
		fmt.Fprintf(&b, "- %s%s: %s\n", prefix, t.ID, t.Content)
	}

	fmt.Fprintf(&b, "\nCompleted: %d/%d\n", completed, len(m.todos))
	return b.String()
}

// Archive writes a markdown summary of the current phase's todos to
// archive/todos_phase_<n>_<strategic|tactical>_<timestamp>.md, then clears
// the in-memory list and resets next_id to 1.
// now lets tests control the timestamp deterministically.
func (m *Manager) Archive(phaseName string, now time.Time) (string, error) {
	kind := "tactical"
	if m.isStrategicPhase {
		kind = "strategic"
	}
	path := fmt.Sprintf("archive/todos_phase_%d_%s_%s.md", m.phaseNumber, kind, now.Format("20060102_150405"))
	content := m.renderArchive(phaseName, "")
	if err := m.ws.WriteFile(path, content); err != nil {
		return "", fmt.Errorf("todomanager: archive: %w", err)
	}
	m.resetAfterArchive()
	return path, nil
}

// ArchiveWithFailureNote is Archive's variant for an agent-requested
// rollback: it appends a failure note and uses the REWIND filename shape.
func (m *Manager) ArchiveWithFailureNote(issue string, now time.Time) (string, error) {
	path := fmt.Sprintf("archive/todos_REWIND_phase%d_%s.md", m.phaseNumber, now.Format("20060102_150405"))
	content := m.renderArchive("", issue)
	if err := m.ws.WriteFile(path, content); err != nil {
		return "", fmt.Errorf("todomanager: archive with failure note: %w", err)
	}
	m.resetAfterArchive()
	return path, nil
}

func (m *Manager) renderArchive(phaseName, failureNote string) string {
	var completed, notCompleted []Todo
	for _, t := range m.todos {
		if t.Status == StatusCompleted {
			completed = append(completed, t)
		} else {
			notCompleted = append(notCompleted, t)
		}
	}

	var b strings.Builder
	kind := "Tactical"
	if m.isStrategicPhase {
		kind = "Strategic"
	}
	fmt.Fprintf(&b, "# Phase %d %s Archive\n", m.phaseNumber, kind)
	if phaseName != "" {
		fmt.Fprintf(&b, "Phase: %s\n", phaseName)
	}
	if failureNote != "" {
		fmt.Fprintf(&b, "\n## Failure Note\n%s\n", failureNote)
	}

	b.WriteString("\n## Completed\n")
	for _, t := range completed {
		fmt.Fprintf(&b, "- %s: %s", t.ID, t.Content)
		if len(t.Notes) > 0 {
			fmt.Fprintf(&b, " (notes: %s)", strings.Join(t.Notes, "; "))
		}
		b.WriteString("\n")
	}
	if len(completed) == 0 {
		b.WriteString("(none)\n")
	}

	b.WriteString("\n## Not Completed\n")
	for _, t := range notCompleted {
		fmt.Fprintf(&b, "- %s [%s]: %s\n", t.ID, t.Status, t.Content)
	}
	if len(notCompleted) == 0 {
		b.WriteString("(none)\n")
	}

	fmt.Fprintf(&b, "\n## Summary\nCompleted %d/%d todos.\n", len(completed), len(m.todos))
	return b.String()
}

func (m *Manager) resetAfterArchive() {
	m.todos = nil
	m.nextID = 1
}

// StageTacticalTodos validates and stores a pending next-phase todo list
// authored by the agent. It does not activate them;
// ApplyStagedTodos does.
func (m *Manager) StageTacticalTodos(contents []string, phaseName string) (string, error) {
	if len(contents) < m.minTodos || len(contents) > m.maxTodos {
		return "", &StagingError{Reason: fmt.Sprintf("expected %d-%d items, got %d", m.minTodos, m.maxTodos, len(contents))}
	}
	for i, c := range contents {
		if len(strings.TrimSpace(c)) < minTrimmedChars {
			return "", &StagingError{Reason: fmt.Sprintf("item %d is shorter than %d characters", i, minTrimmedChars)}
		}
	}

	m.stagedTodos = make([]Todo, 0, len(contents))
	for _, c := range contents {
		m.stagedTodos = append(m.stagedTodos, Todo{
			ID:        m.newID(),
			Content:   c,
			Status:    StatusPending,
			Priority:  PriorityMedium,
			CreatedAt: time.Now().UTC(),
		})
	}
	m.stagedPhaseName = phaseName
	return phaseName, nil
}

// HasStagedTodos reports whether a tactical list is waiting to be applied.
func (m *Manager) HasStagedTodos() bool {
	return len(m.stagedTodos) > 0
}

// ApplyStagedTodos moves the staged list into the active list, clears
// staging, and resets next_id to 1 before reassigning IDs sequentially so
// that len(todos) == staged_count and next_id == len(todos)+1 hold.
func (m *Manager) ApplyStagedTodos() {
	m.nextID = 1
	applied := make([]Todo, 0, len(m.stagedTodos))
	for _, t := range m.stagedTodos {
		t.ID = m.newID()
		applied = append(applied, t)
	}
	m.todos = applied
	m.currentPhaseName = m.stagedPhaseName
	m.stagedTodos = nil
	m.stagedPhaseName = ""
}

// SetPhase updates the manager's phase bookkeeping. Called by the engine's
// handle_transition node.
func (m *Manager) SetPhase(isStrategic bool, phaseNumber int, phaseName string) {
	m.isStrategicPhase = isStrategic
	m.phaseNumber = phaseNumber
	m.currentPhaseName = phaseName
}

// IsStrategicPhase, PhaseNumber, CurrentPhaseName expose read-only phase
// bookkeeping to callers building the protected context.
func (m *Manager) IsStrategicPhase() bool   { return m.isStrategicPhase }
func (m *Manager) PhaseNumber() int         { return m.phaseNumber }
func (m *Manager) CurrentPhaseName() string { return m.currentPhaseName }

// MinTodos and MaxTodos expose the configured staging bounds so the engine
// can validate an agent-authored todos.yaml against the same limits.
func (m *Manager) MinTodos() int { return m.minTodos }
func (m *Manager) MaxTodos() int { return m.maxTodos }

// State is the (de)serializable snapshot used by ExportState/RestoreState
// and the YAML mirror.
type State struct {
	Todos            []Todo `yaml:"todos"`
	StagedTodos      []Todo `yaml:"staged_todos"`
	NextID           int    `yaml:"next_id"`
	IsStrategicPhase bool   `yaml:"is_strategic_phase"`
	PhaseNumber      int    `yaml:"phase_number"`
	CurrentPhaseName string `yaml:"current_phase_name"`
	StagedPhaseName  string `yaml:"staged_phase_name"`
}

// ExportState captures the manager's full state for checkpointing into
// JobState.
func (m *Manager) ExportState() State {
	return State{
		Todos:            append([]Todo(nil), m.todos...),
		StagedTodos:      append([]Todo(nil), m.stagedTodos...),
		NextID:           m.nextID,
		IsStrategicPhase: m.isStrategicPhase,
		PhaseNumber:      m.phaseNumber,
		CurrentPhaseName: m.currentPhaseName,
		StagedPhaseName:  m.stagedPhaseName,
	}
}

// RestoreState reinstates a previously exported State. next_id is clamped
// above the max restored todo ID so newly added todos never collide.
func (m *Manager) RestoreState(s State) {
	m.todos = append([]Todo(nil), s.Todos...)
	m.stagedTodos = append([]Todo(nil), s.StagedTodos...)
	m.isStrategicPhase = s.IsStrategicPhase
	m.phaseNumber = s.PhaseNumber
	m.currentPhaseName = s.CurrentPhaseName
	m.stagedPhaseName = s.StagedPhaseName

	m.nextID = s.NextID
	for _, t := range append(s.Todos, s.StagedTodos...) {
		var n int
		if _, err := fmt.Sscanf(t.ID, "todo_%d", &n); err == nil && n >= m.nextID {
			m.nextID = n + 1
		}
	}
}

const statePath = "todos_state.yaml"

// SaveState YAML-round-trips the manager's state to todos_state.yaml,
// returning the path written.
func (m *Manager) SaveState() (string, error) {
	data, err := yaml.Marshal(m.ExportState())
	if err != nil {
		return "", fmt.Errorf("todomanager: marshal state: %w", err)
	}
	if err := m.ws.WriteFile(statePath, string(data)); err != nil {
		return "", fmt.Errorf("todomanager: save state: %w", err)
	}
	return statePath, nil
}

// LoadState restores the manager's state from todos_state.yaml, returning
// false if the file doesn't exist.
func (m *Manager) LoadState() (bool, error) {
	if !m.ws.Exists(statePath) {
		return false, nil
	}
	raw, err := m.ws.ReadFile(statePath)
	if err != nil {
		return false, fmt.Errorf("todomanager: read state: %w", err)
	}
	var s State
	if err := yaml.Unmarshal([]byte(raw), &s); err != nil {
		return false, fmt.Errorf("todomanager: unmarshal state: %w", err)
	}
	m.RestoreState(s)
	return true, nil
}

// ClearSavedState removes todos_state.yaml. A no-op (not an error) if the
// file is already absent.
func (m *Manager) ClearSavedState() error {
	if !m.ws.Exists(statePath) {
		return nil
	}
	return m.ws.DeleteFile(statePath)
}
