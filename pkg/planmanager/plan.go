// Package planmanager is a stateless service over plan.md:
// existence, read/write, and a text-heuristic completion check. It holds no
// state of its own; every call recomputes from the live workspace.
package planmanager

import (
	"regexp"
	"strings"

	"github.com/kadirpekel/agentcore/pkg/workspace"
)

const planPath = "plan.md"

// Manager computes over plan.md in a Workspace.
type Manager struct {
	ws *workspace.Workspace
}

// New returns a Manager bound to ws.
func New(ws *workspace.Workspace) *Manager {
	return &Manager{ws: ws}
}

// Exists reports whether plan.md has been written yet.
func (m *Manager) Exists() bool {
	return m.ws.Exists(planPath)
}

// Read returns plan.md's content, or an empty string if absent.
func (m *Manager) Read() string {
	content, err := m.ws.ReadFile(planPath)
	if err != nil {
		return ""
	}
	return content
}

// Write overwrites plan.md.
func (m *Manager) Write(content string) error {
	return m.ws.WriteFile(planPath, content)
}

var (
	docCompleteMarkers = []string{
		"# complete", "## complete", "status: complete", "status: done",
		"goal achieved", "all phases complete", "job complete",
	}
	incompleteMarkers = []string{
		"- [ ]", "status: pending", "status: in progress", "status: todo",
		"(pending)", "(in progress)",
	}
	completeMarkers = []string{
		"- [x]", "status: complete", "status: done", "(complete)", "(done)",
	}
	phaseOrStepHeader = regexp.MustCompile(`(?im)^#+\s*(phase|step)\b`)
	phaseHeaderLine   = regexp.MustCompile(`(?im)^#+\s*(phase|step)\b.*$`)
)

// IsComplete applies an ordered heuristic over marker text. If content is
// empty, the live plan.md is read.
func (m *Manager) IsComplete(content string) bool {
	if content == "" {
		content = m.Read()
	}
	lower := strings.ToLower(content)

	// 1. Document-level completion marker.
	for _, marker := range docCompleteMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	hasPhaseHeader := phaseOrStepHeader.MatchString(content)

	// 2. Phase/step header present + any incomplete marker anywhere -> not complete.
	if hasPhaseHeader {
		for _, marker := range incompleteMarkers {
			if strings.Contains(lower, marker) {
				return false
			}
		}
	}

	// 3. Any completed marker -> complete.
	for _, marker := range completeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	// 4. Otherwise, not complete.
	return false
}

// GetCurrentPhase returns the first phase header whose surrounding window of
// 5 lines contains no completion marker, or nil if every phase is marked
// complete (or none exist).
func (m *Manager) GetCurrentPhase() *string {
	content := m.Read()
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		if !phaseHeaderLine.MatchString(line) {
			continue
		}
		start := i
		end := i + 5
		if end > len(lines) {
			end = len(lines)
		}
		window := strings.ToLower(strings.Join(lines[start:end], "\n"))
		if strings.Contains(window, "(complete)") || strings.Contains(window, "(done)") ||
			strings.Contains(window, "status: complete") || strings.Contains(window, "status: done") {
			continue
		}
		phase := strings.TrimSpace(line)
		return &phase
	}
	return nil
}

// MarkPhaseComplete appends a "(complete)" marker to the line whose text
// equals id (trimmed), writing the file back. Returns false if id isn't
// found.
func (m *Manager) MarkPhaseComplete(id string) bool {
	content := m.Read()
	lines := strings.Split(content, "\n")
	found := false
	for i, line := range lines {
		if strings.TrimSpace(line) == strings.TrimSpace(id) {
			lower := strings.ToLower(line)
			if !strings.Contains(lower, "(complete)") && !strings.Contains(lower, "(done)") {
				lines[i] = line + " (complete)"
			}
			found = true
			break
		}
	}
	if !found {
		return false
	}
	_ = m.Write(strings.Join(lines, "\n"))
	return true
}
