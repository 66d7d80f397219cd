// Package phase owns the built-in strategic todo templates and the
// validation rules applied to an agent-authored todos.yaml file before a
// tactical phase can start.
package phase

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies which of the three strategic phase templates applies.
type Kind string

const (
	// KindInitial is the very first strategic phase of a job.
	KindInitial Kind = "initial"
	// KindTransition is a strategic phase entered after a tactical phase
	// completes normally.
	KindTransition Kind = "transition"
	// KindResumeFromFeedback is a strategic phase entered after human
	// feedback rewinds the job to re-plan.
	KindResumeFromFeedback Kind = "resume_from_feedback"
)

// builtinTemplates holds the four-todo list for each strategic phase kind,
// used when no on-disk template override exists for the kind.
var builtinTemplates = map[Kind][]string{
	KindInitial: {
		"Explore the workspace and populate workspace.md with what you find",
		"Read the job instructions and draft plan.md",
		"Divide plan.md into tactical phases of 5 to 20 todos each",
		"Create the first tactical phase using the staging tool",
	},
	KindTransition: {
		"Summarize the previous tactical phase's work",
		"Update workspace.md with anything learned during the phase",
		"Update plan.md: mark completed work, revise what's upcoming",
		"Create the next tactical phase, or call job_complete if the goal is met",
	},
	KindResumeFromFeedback: {
		"Process the human feedback and update workspace.md",
		"Evaluate existing outputs against the feedback",
		"Rewrite plan.md with corrective phases",
		"Stage corrective todos for the next tactical phase (do not call job_complete)",
	},
}

// Templates loads a strategic phase's todo list. If templatesPath is
// non-empty and a file named "<kind>.yaml" exists beneath it, that file's
// contents (a YAML list of strings) win; otherwise the built-in list for
// the kind is returned.
func Templates(kind Kind, templatesPath string) ([]string, error) {
	if templatesPath != "" {
		path := templatesPath + "/" + string(kind) + ".yaml"
		if data, err := os.ReadFile(path); err == nil {
			var todos []string
			if err := yaml.Unmarshal(data, &todos); err != nil {
				return nil, fmt.Errorf("phase: parse template %s: %w", path, err)
			}
			return todos, nil
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("phase: read template %s: %w", path, err)
		}
	}

	todos, ok := builtinTemplates[kind]
	if !ok {
		return nil, fmt.Errorf("phase: unknown strategic phase kind %q", kind)
	}
	out := make([]string, len(todos))
	copy(out, todos)
	return out, nil
}

// ValidationError reports which item in a todos.yaml file failed
// validation, or a length violation if index is -1.
type ValidationError struct {
	Index   int // -1 for a length violation
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// minTrimmedChars is the minimum length a staged todo must carry, after
// trimming leading/trailing whitespace, to be considered a real task
// description rather than a stub.
const minTrimmedChars = 10

// ValidateTodosYAML parses raw as a YAML list of strings and checks the
// length bound and per-item minimum content length.
func ValidateTodosYAML(raw []byte, minTodos, maxTodos int) ([]string, error) {
	var todos []string
	if err := yaml.Unmarshal(raw, &todos); err != nil {
		return nil, &ValidationError{Index: -1, Message: fmt.Sprintf("todos.yaml: invalid YAML: %v", err)}
	}

	if len(todos) < minTodos || len(todos) > maxTodos {
		return nil, &ValidationError{
			Index:   -1,
			Message: fmt.Sprintf("todos.yaml: expected %d-%d items, got %d", minTodos, maxTodos, len(todos)),
		}
	}

	for i, t := range todos {
		if len(strings.TrimSpace(t)) < minTrimmedChars {
			return nil, &ValidationError{
				Index:   i,
				Message: fmt.Sprintf("todos.yaml: item %d has fewer than %d characters", i, minTrimmedChars),
			}
		}
	}

	return todos, nil
}
