package contextmanager

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kadirpekel/agentcore/pkg/jobstate"
)

// TokenCounter estimates the token cost of text and message lists.
// Implementations must be safe for concurrent use.
type TokenCounter interface {
	Count(text string) int
	CountMessages(msgs []jobstate.Message) int
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	encodingMu    sync.RWMutex
)

// NewTokenCounter returns the best available counter for model: an
// accurate tiktoken-go encoding, falling back to cl100k_base, falling
// back to the arithmetic character counter if tiktoken-go's encoding
// tables can't be loaded at all (e.g. no network access to fetch BPE
// ranks on first use in an offline environment).
func NewTokenCounter(model string) TokenCounter {
	encodingMu.RLock()
	cached, ok := encodingCache[model]
	encodingMu.RUnlock()
	if ok {
		return &tiktokenCounter{enc: cached}
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return FallbackCounter{}
	}

	encodingMu.Lock()
	encodingCache[model] = enc
	encodingMu.Unlock()
	return &tiktokenCounter{enc: enc}
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
	mu  sync.Mutex
}

func (c *tiktokenCounter) Count(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}

// CountMessages follows OpenAI's documented per-message overhead: 3 tokens
// of framing per message plus 3 for the reply's priming tokens.
func (c *tiktokenCounter) CountMessages(msgs []jobstate.Message) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	const tokensPerMessage = 3
	total := 0
	for _, m := range msgs {
		total += tokensPerMessage
		total += len(c.enc.Encode(string(m.Role), nil, nil))
		total += len(c.enc.Encode(m.Content, nil, nil))
		for _, tc := range m.ToolCalls {
			total += len(c.enc.Encode(tc.Name, nil, nil))
		}
	}
	total += 3
	return total
}

// FallbackCounter is the arithmetic counter used when no tokenizer is
// available. It is deliberately simple: total content characters plus the
// characters needed to dump any tool-call structures, divided by four
// using integer division.
type FallbackCounter struct{}

func (FallbackCounter) Count(text string) int {
	return len(text) / 4
}

func (FallbackCounter) CountMessages(msgs []jobstate.Message) int {
	chars := 0
	toolCallChars := 0
	for _, m := range msgs {
		chars += len(m.Content)
		for _, tc := range m.ToolCalls {
			toolCallChars += len(dumpToolCall(tc))
		}
	}
	return (chars + toolCallChars) / 4
}

func dumpToolCall(tc jobstate.ToolCall) string {
	s := tc.ID + tc.Name
	for k, v := range tc.Arguments {
		s += k
		s += argString(v)
	}
	return s
}

func argString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
