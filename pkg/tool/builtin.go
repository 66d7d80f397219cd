package tool

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobCompletionRecord mirrors the output/job_completion.json schema.
type JobCompletionRecord struct {
	Status       string   `json:"status"`
	Timestamp    string   `json:"timestamp"`
	Summary      string   `json:"summary"`
	Deliverables []string `json:"deliverables"`
	Confidence   float64  `json:"confidence"`
	JobID        string   `json:"job_id"`
	Notes        string   `json:"notes,omitempty"`
}

// JobCompleteTool writes output/job_completion.json, the sentinel
// check_goal looks for. jobID is bound at construction since tools aren't
// JobState-aware.
type JobCompleteTool struct {
	jobID string
}

// NewJobCompleteTool builds the job_complete tool for a job.
func NewJobCompleteTool(jobID string) *JobCompleteTool { return &JobCompleteTool{jobID: jobID} }

func (t *JobCompleteTool) Name() string        { return "job_complete" }
func (t *JobCompleteTool) Description() string { return "Signal that the job's goal has been achieved." }
func (t *JobCompleteTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":      map[string]any{"type": "string"},
			"deliverables": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"confidence":   map[string]any{"type": "number"},
			"notes":        map[string]any{"type": "string"},
		},
		"required": []string{"summary", "confidence"},
	}
}

func (t *JobCompleteTool) Call(tc Context, args map[string]any) (string, error) {
	summary, _ := args["summary"].(string)
	confidence, _ := args["confidence"].(float64)
	notes, _ := args["notes"].(string)

	var deliverables []string
	if raw, ok := args["deliverables"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				deliverables = append(deliverables, s)
			}
		}
	}

	record := JobCompletionRecord{
		Status:       "job_completed",
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Summary:      summary,
		Deliverables: deliverables,
		Confidence:   confidence,
		JobID:        t.jobID,
		Notes:        notes,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("job_complete: marshal record: %w", err)
	}
	if err := tc.Workspace.WriteFile("output/job_completion.json", string(data)); err != nil {
		return "", fmt.Errorf("job_complete: write record: %w", err)
	}
	return "Job marked complete.", nil
}

// NextPhaseTodosTool stages the next tactical phase's todo list for
// activation at the strategic-to-tactical transition.
type NextPhaseTodosTool struct{}

// NewNextPhaseTodosTool builds the next_phase_todos tool.
func NewNextPhaseTodosTool() *NextPhaseTodosTool { return &NextPhaseTodosTool{} }

func (t *NextPhaseTodosTool) Name() string { return "next_phase_todos" }
func (t *NextPhaseTodosTool) Description() string {
	return "Stage the todo list for the next tactical phase."
}
func (t *NextPhaseTodosTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"phase_name": map[string]any{"type": "string"},
			"todos":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"phase_name", "todos"},
	}
}

func (t *NextPhaseTodosTool) Call(tc Context, args map[string]any) (string, error) {
	phaseName, _ := args["phase_name"].(string)
	raw, _ := args["todos"].([]any)

	todos := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			todos = append(todos, s)
		}
	}

	if _, err := tc.Todos.StageTacticalTodos(todos, phaseName); err != nil {
		return "", fmt.Errorf("next_phase_todos: %w", err)
	}
	return fmt.Sprintf("Staged %d todos for phase %q.", len(todos), phaseName), nil
}

// ReadFileTool exposes Workspace.ReadFile to the agent.
type ReadFileTool struct{}

func NewReadFileTool() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read a file from the workspace." }
func (t *ReadFileTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []string{"path"},
	}
}

func (t *ReadFileTool) Call(tc Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	content, err := tc.Workspace.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("error: %w", err)
	}
	return content, nil
}

// WriteFileTool exposes Workspace.WriteFile to the agent.
type WriteFileTool struct{}

func NewWriteFileTool() *WriteFileTool { return &WriteFileTool{} }

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write a file in the workspace." }
func (t *WriteFileTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Call(tc Context, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if err := tc.Workspace.WriteFile(path, content); err != nil {
		return "", fmt.Errorf("error: %w", err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s.", len(content), path), nil
}
