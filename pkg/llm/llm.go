// Package llm defines the LLM collaborator interface the execution graph
// drives, and a generic OpenAI-compatible HTTP client implementing it with
// the context-overflow preflight check ("Layer 0") ahead of every request.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kadirpekel/agentcore/pkg/contextmanager"
	"github.com/kadirpekel/agentcore/pkg/jobstate"
	"github.com/kadirpekel/agentcore/pkg/tool"
)

// Collaborator is the interface the execution graph's execute node depends
// on: invoke the model with the current conversation, optionally bound to a
// tool list.
type Collaborator interface {
	BindTools(defs []tool.Definition)
	Invoke(ctx context.Context, messages []jobstate.Message) (jobstate.Message, error)
}

// TransientError marks a retryable transport failure (LLMTransient).
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return fmt.Sprintf("llm: transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a malformed or unrecoverable response (LLMFatal).
type FatalError struct{ Err error }

func (e *FatalError) Error() string { return fmt.Sprintf("llm: fatal: %v", e.Err) }
func (e *FatalError) Unwrap() error { return e.Err }

// Config parameterizes the HTTP client.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	ContextLimit int // hard token limit enforced by CheckOverflow
}

// HTTPClient is a generic OpenAI-compatible chat-completions client. It
// works against any provider exposing that wire shape (OpenAI itself,
// Azure OpenAI, and most self-hosted gateways); provider-specific SDKs are
// out of scope for the core execution engine.
type HTTPClient struct {
	cfg     Config
	http    *http.Client
	ctxMgr  *contextmanager.Manager
	toolDef []tool.Definition
}

// NewHTTPClient builds a client whose overflow preflight check shares the
// same token counter the engine's ContextManager uses.
func NewHTTPClient(cfg Config, ctxMgr *contextmanager.Manager) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		ctxMgr: ctxMgr,
	}
}

// BindTools records the tool list included with every subsequent request.
func (c *HTTPClient) BindTools(defs []tool.Definition) {
	c.toolDef = defs
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function wireToolCallFn `json:"function"`
}

type wireToolCallFn struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireToolSpec `json:"function"`
}

type wireToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Tools    []wireTool    `json:"tools,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func toWireRole(r jobstate.Role) string {
	switch r {
	case jobstate.RoleSystem:
		return "system"
	case jobstate.RoleHuman:
		return "user"
	case jobstate.RoleAssistant:
		return "assistant"
	case jobstate.RoleToolResult:
		return "tool"
	default:
		return "user"
	}
}

func toWireMessages(msgs []jobstate.Message) []wireMessage {
	out := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		wm := wireMessage{Role: toWireRole(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireToolCallFn{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out[i] = wm
	}
	return out
}

// Invoke sends messages to the configured endpoint, running the overflow
// preflight first. Transport failures are wrapped as TransientError;
// malformed responses as FatalError.
func (c *HTTPClient) Invoke(ctx context.Context, messages []jobstate.Message) (jobstate.Message, error) {
	if c.ctxMgr != nil && c.cfg.ContextLimit > 0 {
		if err := c.ctxMgr.CheckOverflow(messages, c.cfg.ContextLimit); err != nil {
			return jobstate.Message{}, err // *contextmanager.OverflowError
		}
	}

	req := wireRequest{Model: c.cfg.Model, Messages: toWireMessages(messages)}
	for _, d := range c.toolDef {
		req.Tools = append(req.Tools, wireTool{
			Type: "function",
			Function: wireToolSpec{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Schema,
			},
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return jobstate.Message{}, &FatalError{Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return jobstate.Message{}, &FatalError{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return jobstate.Message{}, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return jobstate.Message{}, &TransientError{Err: err}
	}

	if resp.StatusCode >= 500 {
		return jobstate.Message{}, &TransientError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, raw)}
	}
	if resp.StatusCode >= 400 {
		return jobstate.Message{}, &FatalError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, raw)}
	}

	var parsed wireResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return jobstate.Message{}, &FatalError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if parsed.Error != nil {
		return jobstate.Message{}, &FatalError{Err: fmt.Errorf("provider error: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return jobstate.Message{}, &FatalError{Err: fmt.Errorf("no choices in response")}
	}

	return fromWireMessage(parsed.Choices[0].Message), nil
}

func fromWireMessage(wm wireMessage) jobstate.Message {
	var calls []jobstate.ToolCall
	for _, tc := range wm.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		calls = append(calls, jobstate.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return jobstate.NewAssistant(wm.Content, calls)
}
