// Package memorymanager is a stateless service over workspace.md: the
// agent's long-term memory, always injected into the system prompt and
// always surviving context compaction.
package memorymanager

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kadirpekel/agentcore/pkg/workspace"
)

const memoryPath = "workspace.md"

// Manager computes over workspace.md in a Workspace.
type Manager struct {
	ws *workspace.Workspace
}

// New returns a Manager bound to ws.
func New(ws *workspace.Workspace) *Manager {
	return &Manager{ws: ws}
}

// Exists reports whether workspace.md has been written yet.
func (m *Manager) Exists() bool {
	return m.ws.Exists(memoryPath)
}

// Read returns workspace.md's content, or an empty string if absent.
func (m *Manager) Read() string {
	content, err := m.ws.ReadFile(memoryPath)
	if err != nil {
		return ""
	}
	return content
}

// Write overwrites workspace.md.
func (m *Manager) Write(content string) error {
	return m.ws.WriteFile(memoryPath, content)
}

type section struct {
	headerLine int // index into lines
	level      int
	bodyStart  int
	bodyEnd    int // exclusive
}

var headerRe = regexp.MustCompile(`^(#{1,6})\s*(.+?)\s*$`)

// findSection locates a section by case-insensitive header text, scoped by
// level: the body runs until the next header of the same or shallower
// level.
func findSection(lines []string, name string) (section, bool) {
	target := strings.ToLower(strings.TrimSpace(name))
	for i, line := range lines {
		match := headerRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		if strings.ToLower(strings.TrimSpace(match[2])) != target {
			continue
		}
		level := len(match[1])
		end := len(lines)
		for j := i + 1; j < len(lines); j++ {
			if m2 := headerRe.FindStringSubmatch(lines[j]); m2 != nil && len(m2[1]) <= level {
				end = j
				break
			}
		}
		return section{headerLine: i, level: level, bodyStart: i + 1, bodyEnd: end}, true
	}
	return section{}, false
}

// GetSection returns the body of a section by header text, or nil if absent.
func (m *Manager) GetSection(name string) *string {
	content := m.Read()
	lines := strings.Split(content, "\n")
	sec, ok := findSection(lines, name)
	if !ok {
		return nil
	}
	body := strings.TrimSpace(strings.Join(lines[sec.bodyStart:sec.bodyEnd], "\n"))
	return &body
}

// UpdateSection replaces a section's body, or appends a new "## name"
// section at document end if the section doesn't exist yet. Returns true on
// success (always true unless the write fails).
func (m *Manager) UpdateSection(name, content string) bool {
	doc := m.Read()
	lines := strings.Split(doc, "\n")
	sec, ok := findSection(lines, name)

	var out []string
	if ok {
		out = append(out, lines[:sec.bodyStart]...)
		out = append(out, strings.Split(content, "\n")...)
		out = append(out, lines[sec.bodyEnd:]...)
	} else {
		out = lines
		if doc != "" && !strings.HasSuffix(doc, "\n\n") {
			out = append(out, "")
		}
		out = append(out, "## "+name, "", content)
	}
	return m.Write(strings.Join(out, "\n")) == nil
}

// AppendToSection adds "- item" as a new line at the end of a section's
// body, creating the section if absent. Returns true on success.
func (m *Manager) AppendToSection(name, item string) bool {
	existing := m.GetSection(name)
	bullet := "- " + item
	var newBody string
	if existing == nil || *existing == "" {
		newBody = bullet
	} else {
		newBody = *existing + "\n" + bullet
	}
	return m.UpdateSection(name, newBody)
}

const stateHeader = "Current State"

var kvLine = regexp.MustCompile(`^\s*-?\s*([^:]+):\s*(.*)$`)

// GetState parses the "Current State" section's body as `key: value` lines.
func (m *Manager) GetState() map[string]string {
	state := make(map[string]string)
	body := m.GetSection(stateHeader)
	if body == nil {
		return state
	}
	for _, line := range strings.Split(*body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		match := kvLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		state[strings.TrimSpace(match[1])] = strings.TrimSpace(match[2])
	}
	return state
}

// SetState updates a single key in the "Current State" section, preserving
// the others. Returns true on success.
func (m *Manager) SetState(key, value string) bool {
	state := m.GetState()
	state[key] = value

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	// Deterministic ordering keeps the file diff-stable across calls.
	sortStrings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("- %s: %s", k, state[k]))
	}
	return m.UpdateSection(stateHeader, b.String())
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
