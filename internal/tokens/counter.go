// internal/tokens/counter.go
package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/genie/internal/types"
)

// perMessageOverhead approximates the role and separator tokens a chat
// format adds around each message.
const perMessageOverhead = 4

// Counter estimates token usage of conversation history. Counts are
// approximate for non-OpenAI models, which use their own tokenizers.
type Counter struct {
	tokenizer *tiktoken.Tiktoken
}

// New creates a counter using the tokenizer for model, falling back to
// cl100k_base for models tiktoken does not know.
func New(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Counter{tokenizer: enc}, nil
}

// Count returns the token count for a string.
func (c *Counter) Count(text string) int {
	return len(c.tokenizer.Encode(text, nil, nil))
}

// CountMessages sums the tokens of the messages that are replayed to a
// backend. Error and system messages are skipped.
func (c *Counter) CountMessages(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		if !m.Role.InHistory() {
			continue
		}
		total += c.Count(m.Content) + perMessageOverhead
	}
	return total
}

// Breakdown returns per-role token totals over all messages.
func (c *Counter) Breakdown(messages []types.Message) map[types.Role]int {
	out := make(map[types.Role]int)
	for _, m := range messages {
		out[m.Role] += c.Count(m.Content)
	}
	return out
}
