package agent

import (
	"context"
	"strings"

	"github.com/go-go-golems/atomclaw/pkg/events"
	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/rs/zerolog/log"
)

const SummarizerPrompt = "You are a concise summarizer. Summarize the conversation " +
	"in 3-5 sentences focusing on key facts and user preferences. " +
	"Write in third person about 'the user'. " +
	"Reply with only the summary text, no extra commentary."

// summaryRequest is the closing user turn of a summary request.
const summaryRequest = "Summarize the conversation above."

// summarize asks the model for a fresh summary of everything stored locally
// for the conversation and pushes it to the remote store. It reports whether
// a summary was written.
func (a *Agent) summarize(ctx context.Context, msg msgInfo) bool {
	msgs := historyMessages(a.store.History(msg.conversationID, 0))
	if len(msgs) == 0 {
		return false
	}
	msgs = append(msgs, engine.UserText(summaryRequest))

	res, err := a.engine.Chat(ctx, engine.Request{System: SummarizerPrompt, Messages: msgs})
	if err != nil {
		log.Warn().Err(err).Str("conversation", msg.conversationID).Msg("summary generation failed")
		return false
	}
	var text string
	switch r := res.(type) {
	case engine.Final:
		text = r.Text
	case engine.ToolUse:
		text = r.Text
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	if err := a.cloud.UpdateSummary(ctx, msg.conversationID, text); err != nil {
		log.Warn().Err(err).Str("conversation", msg.conversationID).Msg("summary update failed")
		return false
	}

	e := events.NewEvent(ctx, events.EventTypeSummaryUpdated, msg.conversationID, msg.channel)
	e.Text = text
	events.Publish(ctx, e)
	return true
}
