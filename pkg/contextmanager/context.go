// Package contextmanager keeps a job's conversation within a model's token
// budget: it counts tokens, clears and truncates stale tool results, trims
// older turns while protecting the messages every other component assumes
// are present, and drives LLM-backed summarization when trimming alone
// isn't enough.
package contextmanager

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/agentcore/pkg/jobstate"
)

// Config parameterizes every threshold the manager applies.
type Config struct {
	Model                        string
	CompactionThresholdTokens    int
	SummarizationThresholdTokens int
	MessageCountThreshold        int
	MessageCountMinTokens        int
	KeepRecentToolResults        int
	KeepRecentMessages           int
	MaxToolResultLength          int
	PlaceholderText              string
}

// DefaultConfig mirrors the thresholds a mid-sized chat model (128k
// context) comfortably supports.
func DefaultConfig(model string) Config {
	return Config{
		Model:                        model,
		CompactionThresholdTokens:    80000,
		SummarizationThresholdTokens: 100000,
		MessageCountThreshold:        60,
		MessageCountMinTokens:        40000,
		KeepRecentToolResults:        5,
		KeepRecentMessages:           20,
		MaxToolResultLength:          2000,
		PlaceholderText:              "[tool result cleared to save context]",
	}
}

// Summarizer is the minimal LLM collaborator contextmanager needs: given a
// message list it returns the model's reply. Implemented by pkg/llm's
// client; declared here so contextmanager has no dependency on it.
type Summarizer interface {
	Invoke(ctx context.Context, messages []jobstate.Message) (jobstate.Message, error)
}

// Manager applies Config's thresholds to a conversation using counter for
// token accounting.
type Manager struct {
	cfg     Config
	counter TokenCounter
}

// New builds a Manager. If counter is nil, NewTokenCounter(cfg.Model) is used.
func New(cfg Config, counter TokenCounter) *Manager {
	if counter == nil {
		counter = NewTokenCounter(cfg.Model)
	}
	return &Manager{cfg: cfg, counter: counter}
}

// CountTokens exposes the manager's counter for callers building requests.
func (m *Manager) CountTokens(msgs []jobstate.Message) int {
	return m.counter.CountMessages(msgs)
}

// ClearOldToolResults replaces the content of every ToolResult message
// except the most recent KeepRecentToolResults with PlaceholderText,
// preserving ToolCallID so the pairing invariant still holds.
func (m *Manager) ClearOldToolResults(msgs []jobstate.Message) []jobstate.Message {
	total := 0
	for _, msg := range msgs {
		if msg.Role == jobstate.RoleToolResult {
			total++
		}
	}
	toClear := total - m.cfg.KeepRecentToolResults
	if toClear <= 0 {
		return msgs
	}

	out := make([]jobstate.Message, len(msgs))
	copy(out, msgs)
	cleared := 0
	for i := range out {
		if out[i].Role != jobstate.RoleToolResult {
			continue
		}
		if cleared < toClear {
			out[i].Content = m.cfg.PlaceholderText
			cleared++
		}
	}
	return out
}

// TruncateLongToolResults shortens any ToolResult outside the most recent
// KeepRecentToolResults window to MaxToolResultLength characters.
func (m *Manager) TruncateLongToolResults(msgs []jobstate.Message) []jobstate.Message {
	total := 0
	for _, msg := range msgs {
		if msg.Role == jobstate.RoleToolResult {
			total++
		}
	}
	recentThreshold := total - m.cfg.KeepRecentToolResults

	out := make([]jobstate.Message, len(msgs))
	copy(out, msgs)
	seen := 0
	for i := range out {
		if out[i].Role != jobstate.RoleToolResult {
			continue
		}
		seen++
		if seen > recentThreshold {
			continue // within the recent window, leave untouched
		}
		if len(out[i].Content) > m.cfg.MaxToolResultLength {
			omitted := len(out[i].Content) - m.cfg.MaxToolResultLength
			out[i].Content = out[i].Content[:m.cfg.MaxToolResultLength] +
				fmt.Sprintf("\n[TRUNCATED - %d chars omitted, see workspace]", omitted)
		}
	}
	return out
}

// safeSliceStart walks start backward while it points at a ToolResult,
// landing on the Assistant message that requested it (or an earlier System
// or tool-call-free message) so slicing from the returned index never
// orphans a ToolResult.
func safeSliceStart(msgs []jobstate.Message, start int) int {
	if start < 0 {
		start = 0
	}
	if start >= len(msgs) {
		return len(msgs)
	}
	for start > 0 && msgs[start].Role == jobstate.RoleToolResult {
		start--
	}
	return start
}

// TrimMessages preserves every System message, the first Human message, and
// the last KeepRecentMessages messages (safely sliced); everything else is
// dropped.
func (m *Manager) TrimMessages(msgs []jobstate.Message) []jobstate.Message {
	firstHuman := -1
	for i, msg := range msgs {
		if msg.Role == jobstate.RoleHuman {
			firstHuman = i
			break
		}
	}

	recentStart := len(msgs) - m.cfg.KeepRecentMessages
	recentStart = safeSliceStart(msgs, recentStart)

	out := make([]jobstate.Message, 0, len(msgs))
	for i, msg := range msgs {
		switch {
		case msg.Role == jobstate.RoleSystem:
			out = append(out, msg)
		case i == firstHuman:
			out = append(out, msg)
		case i >= recentStart:
			out = append(out, msg)
		}
	}
	return out
}

// PrepareMessagesForLLM applies the layered compaction steps (clear, then
// truncate, then trim) without invoking an LLM. aggressive forces the
// clear step even under threshold; trim still runs only when the recount
// after clearing and truncating exceeds CompactionThresholdTokens.
func (m *Manager) PrepareMessagesForLLM(msgs []jobstate.Message, aggressive bool) []jobstate.Message {
	out := msgs
	tokens := m.counter.CountMessages(out)

	if aggressive || tokens > m.cfg.CompactionThresholdTokens {
		out = m.ClearOldToolResults(out)
	}

	out = m.TruncateLongToolResults(out)

	tokens = m.counter.CountMessages(out)
	if tokens > m.cfg.CompactionThresholdTokens {
		out = m.TrimMessages(out)
	}
	return out
}

// ShouldSummarize reports whether msgs warrants LLM-backed summarization.
func (m *Manager) ShouldSummarize(msgs []jobstate.Message) bool {
	tokens := m.counter.CountMessages(msgs)
	if tokens > m.cfg.SummarizationThresholdTokens {
		return true
	}
	return len(msgs) > m.cfg.MessageCountThreshold && tokens > m.cfg.MessageCountMinTokens
}

// SummarizeConversation formats msgs into a compact prompt (Human turns
// truncated to 500 characters, Assistant tool calls reduced to a name
// list, tool results reduced to a byte count) and asks llm to summarize it.
func (m *Manager) SummarizeConversation(ctx context.Context, msgs []jobstate.Message, llm Summarizer, prompt string) (string, error) {
	var b strings.Builder
	for _, msg := range msgs {
		switch msg.Role {
		case jobstate.RoleSystem:
			continue
		case jobstate.RoleHuman:
			content := msg.Content
			if len(content) > 500 {
				content = content[:500] + "..."
			}
			fmt.Fprintf(&b, "Human: %s\n", content)
		case jobstate.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				names := make([]string, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					names[i] = tc.Name
				}
				fmt.Fprintf(&b, "Assistant: [called %s]\n", strings.Join(names, ", "))
			} else {
				fmt.Fprintf(&b, "Assistant: %s\n", msg.Content)
			}
		case jobstate.RoleToolResult:
			fmt.Fprintf(&b, "Tool result: %d bytes\n", len(msg.Content))
		}
	}

	if prompt == "" {
		prompt = "Summarize the conversation below, preserving goals achieved, key decisions, and open work."
	}
	request := []jobstate.Message{
		jobstate.NewSystem(prompt),
		jobstate.NewHuman(b.String()),
	}
	reply, err := llm.Invoke(ctx, request)
	if err != nil {
		return "", fmt.Errorf("contextmanager: summarize conversation: %w", err)
	}
	return reply.Content, nil
}

// SummarizeAndCompact preserves System messages, replaces everything older
// than the last KeepRecentMessages with a single synthetic summary System
// message, and returns the new list.
func (m *Manager) SummarizeAndCompact(ctx context.Context, msgs []jobstate.Message, llm Summarizer) ([]jobstate.Message, error) {
	summary, err := m.SummarizeConversation(ctx, msgs, llm, "")
	if err != nil {
		return nil, err
	}

	var systemMsgs []jobstate.Message
	for _, msg := range msgs {
		if msg.Role == jobstate.RoleSystem {
			systemMsgs = append(systemMsgs, msg)
		}
	}

	recentStart := safeSliceStart(msgs, len(msgs)-m.cfg.KeepRecentMessages)
	var recent []jobstate.Message
	for i := recentStart; i < len(msgs); i++ {
		if msgs[i].Role != jobstate.RoleSystem {
			recent = append(recent, msgs[i])
		}
	}

	out := make([]jobstate.Message, 0, len(systemMsgs)+1+len(recent))
	out = append(out, systemMsgs...)
	out = append(out, jobstate.NewSystem("[Summary of prior work]\n"+summary))
	out = append(out, recent...)
	return out, nil
}

// CompactionOutcome reports what EnsureWithinLimits actually did, so the
// caller can fold the counts into JobState.ContextStats.
type CompactionOutcome struct {
	Tokens     int
	Cleared    bool
	Trimmed    bool
	Summarized bool
}

// EnsureWithinLimits applies layered compaction and, when thresholds are
// exceeded or force is set, LLM-backed summarization. force=true is used at
// the strategic-to-tactical phase boundary to guarantee a clean context
// regardless of current token usage.
func (m *Manager) EnsureWithinLimits(ctx context.Context, msgs []jobstate.Message, llm Summarizer, force bool) ([]jobstate.Message, CompactionOutcome, error) {
	before := m.counter.CountMessages(msgs)
	aggressive := force || before > m.cfg.CompactionThresholdTokens

	out := m.PrepareMessagesForLLM(msgs, aggressive)
	outcome := CompactionOutcome{
		Tokens:  m.counter.CountMessages(out),
		Cleared: aggressive,
		Trimmed: len(out) < len(msgs),
	}

	if force || m.ShouldSummarize(out) {
		if llm == nil {
			return out, outcome, nil
		}
		compacted, err := m.SummarizeAndCompact(ctx, out, llm)
		if err != nil {
			return out, outcome, err
		}
		out = compacted
		outcome.Summarized = true
		outcome.Tokens = m.counter.CountMessages(out)
	}

	return out, outcome, nil
}

// OverflowError is raised by the LLM request preflight check when a
// message list's token cost exceeds the model's hard limit.
type OverflowError struct {
	TokenCount int
	Limit      int
	BodyBytes  int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("contextmanager: context overflow: %d tokens exceeds limit %d (%d body bytes)", e.TokenCount, e.Limit, e.BodyBytes)
}

// CheckOverflow is the Layer 0 safety net: it runs before a request is sent
// and fails fast rather than letting the provider reject an oversized body.
func (m *Manager) CheckOverflow(msgs []jobstate.Message, limit int) error {
	tokens := m.counter.CountMessages(msgs)
	if tokens <= limit {
		return nil
	}
	bodyBytes := 0
	for _, msg := range msgs {
		bodyBytes += len(msg.Content)
	}
	return &OverflowError{TokenCount: tokens, Limit: limit, BodyBytes: bodyBytes}
}
