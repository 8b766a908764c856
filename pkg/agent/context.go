package agent

import (
	"strings"

	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/go-go-golems/atomclaw/pkg/memory"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

const summaryHeader = "## What you remember about this user"

// BuildSystemPrompt renders the persona and, when present, the remote
// conversation summary. A missing summary and an empty one render the same.
func BuildSystemPrompt(persona, summary string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(persona))
	if s := strings.TrimSpace(summary); s != "" {
		b.WriteString("\n\n")
		b.WriteString(summaryHeader)
		b.WriteString("\n")
		b.WriteString(s)
	}
	return b.String()
}

// historyMessages converts stored turns to model messages. A window that
// starts on an assistant turn is advanced to the first user turn since
// providers expect the conversation to open with the user.
func historyMessages(turns []memory.Turn) []engine.Message {
	start := 0
	for start < len(turns) && turns[start].Role != memory.RoleUser {
		start++
	}
	out := make([]engine.Message, 0, len(turns)-start)
	for _, t := range turns[start:] {
		switch t.Role {
		case memory.RoleAssistant:
			out = append(out, engine.AssistantText(t.Text))
		default:
			out = append(out, engine.UserText(t.Text))
		}
	}
	return out
}

// tokenCounter estimates prompt size with the cl100k encoding. It is an
// estimate for every provider, not an exact count.
type tokenCounter struct {
	codec tokenizer.Codec
}

func newTokenCounter() *tokenCounter {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("token counter unavailable, prompt budget disabled")
		return nil
	}
	return &tokenCounter{codec: codec}
}

func (c *tokenCounter) count(s string) int {
	ids, _, err := c.codec.Encode(s)
	if err != nil {
		// roughly four bytes per token
		return len(s)/4 + 1
	}
	return len(ids)
}

// fitBudget drops the oldest history messages until system plus messages fit
// in budget tokens. The last message, the new user turn, is always kept.
func (c *tokenCounter) fitBudget(system string, msgs []engine.Message, budget int) ([]engine.Message, int) {
	if c == nil || budget <= 0 || len(msgs) == 0 {
		return msgs, 0
	}
	sizes := make([]int, len(msgs))
	total := c.count(system)
	for i, m := range msgs {
		sizes[i] = c.count(m.Text())
		total += sizes[i]
	}

	dropped := 0
	for total > budget && dropped < len(msgs)-1 {
		total -= sizes[dropped]
		dropped++
	}
	msgs = msgs[dropped:]
	// keep the conversation opening on a user turn
	for len(msgs) > 1 && msgs[0].Role != engine.RoleUser {
		msgs = msgs[1:]
		dropped++
	}
	return msgs, dropped
}
