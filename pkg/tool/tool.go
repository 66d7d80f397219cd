// Package tool defines the Tool collaborator interface the execution graph
// invokes, a registry with retrying dispatch, and the handful of built-in
// tools the engine itself depends on (job_complete, next_phase_todos).
package tool

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/kadirpekel/agentcore/pkg/todomanager"
	"github.com/kadirpekel/agentcore/pkg/workspace"
)

// Context gives a tool read/write access to the job's collaborators. It is
// built fresh per tool call by the engine.
type Context struct {
	Ctx       context.Context
	Workspace *workspace.Workspace
	Todos     *todomanager.Manager
}

// Tool is the collaborator interface the engine dispatches tool calls
// through.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Call(tc Context, args map[string]any) (string, error)
}

// Registry holds the tools available to a job and knows how to retry a
// failing call with exponential backoff.
type Registry struct {
	tools map[string]Tool

	retryCount    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	jitterPercent float64
}

// RegistryConfig parameterizes retry behavior.
type RegistryConfig struct {
	RetryCount    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterPercent float64 // e.g. 0.10 for 10%
}

// DefaultRegistryConfig matches the core's default tool retry policy.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{RetryCount: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, JitterPercent: 0.10}
}

// NewRegistry builds an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.RetryCount <= 0 {
		cfg = DefaultRegistryConfig()
	}
	return &Registry{
		tools:         make(map[string]Tool),
		retryCount:    cfg.RetryCount,
		baseDelay:     cfg.BaseDelay,
		maxDelay:      cfg.MaxDelay,
		jitterPercent: cfg.JitterPercent,
	}
}

// Register adds a tool, replacing any prior registration under the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns name/description/schema triples for every registered
// tool, the shape an LLM request's tool list needs.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return defs
}

// Definition is a tool's LLM-facing description.
type Definition struct {
	Name        string
	Description string
	Schema      map[string]any
}

// errorPrefixes are fixed substrings that mark a tool result as a failure
// worth retrying. Checked case-insensitively. Kept narrow so legitimate
// content that happens to mention "error" doesn't trigger a retry.
var errorPrefixes = []string{
	"error:", "failed to", "traceback", "file not found",
	"permission denied", "cannot ", "unable to", "invalid ",
}

// looksLikeFailure reports whether a tool's successful return value should
// still be treated as a retryable failure based on its content.
func looksLikeFailure(result string) bool {
	lower := strings.ToLower(result)
	for _, prefix := range errorPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Invoke dispatches a tool call by name with retry. It never returns a bare
// error for a missing or failing tool: callers always get a string result
// meant to become a ToolResult's content, preserving the pairing invariant.
// ok reports whether the final attempt succeeded without looking like a
// failure. retries counts only the attempts beyond the first, so a call that
// succeeds on its first try reports 0.
func (r *Registry) Invoke(tc Context, name string, args map[string]any) (result string, ok bool, retries int) {
	t, found := r.Get(name)
	if !found {
		return fmt.Sprintf("error: unknown tool %q", name), false, 0
	}

	var lastErr error
	for attempt := 0; attempt < r.retryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(r.backoff(attempt))
		}
		out, err := t.Call(tc, args)
		if err == nil && !looksLikeFailure(out) {
			return out, true, attempt
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("%s", out)
		}
	}

	return fmt.Sprintf("Tool execution failed after %d attempts: %v\nPlease try an alternative approach or skip this step.", r.retryCount, lastErr), false, r.retryCount - 1
}

// backoff computes delay = min(maxDelay, baseDelay * 2^attempt) * (1 + jitter).
func (r *Registry) backoff(attempt int) time.Duration {
	scaled := float64(r.baseDelay) * math.Pow(2, float64(attempt))
	capped := math.Min(float64(r.maxDelay), scaled)
	jitter := 1 + rand.Float64()*r.jitterPercent
	return time.Duration(capped * jitter)
}

// DangerousTools are recognized by name so the engine can set JobState
// flags (job completion, phase staging) without every tool needing to know
// about JobState itself.
var DangerousTools = map[string]bool{
	"job_complete":     true,
	"next_phase_todos": true,
}
