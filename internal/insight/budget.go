package insight

import (
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/chatpilot/internal/types"
)

// historyBudget keeps rendered conversation history inside a token budget.
type historyBudget struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
}

// newHistoryBudget selects a tokenizer for model. Unknown models fall back
// to cl100k_base; if no encoding can be loaded at all, token counts are
// estimated from rune length.
func newHistoryBudget(model string, maxTokens int) *historyBudget {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tokenizer unavailable, estimating tokens", "model", model, "error", err)
			enc = nil
		}
	}
	return &historyBudget{tokenizer: enc, maxTokens: maxTokens}
}

func (b *historyBudget) countTokens(text string) int {
	if b == nil || b.tokenizer == nil {
		return utf8.RuneCountInString(text)/4 + 1
	}
	return len(b.tokenizer.Encode(text, nil, nil))
}

// render formats messages oldest first as "Eu: ..." / "Cliente: ..." lines.
// When the budget is exceeded the oldest lines are dropped.
func (b *historyBudget) render(messages []*types.MessageRecord) string {
	ordered := chronological(messages)
	lines := make([]string, len(ordered))
	for i, m := range ordered {
		lines[i] = speaker(m) + ": " + m.Content
	}

	if b == nil || b.maxTokens <= 0 {
		return strings.Join(lines, "\n")
	}

	used := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		n := b.countTokens(lines[i]) + 1
		if used+n > b.maxTokens {
			break
		}
		used += n
		start = i
	}
	if start > 0 {
		slog.Debug("history trimmed to token budget", "dropped", start, "kept", len(lines)-start)
	}
	return strings.Join(lines[start:], "\n")
}

func speaker(m *types.MessageRecord) string {
	if m.FromSelf {
		return "Eu"
	}
	return "Cliente"
}

// chronological returns a copy sorted by timestamp ascending. Stores hand
// history back newest first.
func chronological(messages []*types.MessageRecord) []*types.MessageRecord {
	out := make([]*types.MessageRecord, 0, len(messages))
	for _, m := range messages {
		if m != nil {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
