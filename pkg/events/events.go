// Package events carries agent lifecycle events over an in-process watermill
// pub/sub so observers never sit on the turn's critical path.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-go-golems/atomclaw/pkg/helpers"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeTurnStart      EventType = "turn-start"
	EventTypeToolCall       EventType = "tool-call"
	EventTypeToolResult     EventType = "tool-result"
	EventTypeTurnFinal      EventType = "turn-final"
	EventTypeMessageDropped EventType = "message-dropped"
	EventTypeSummaryUpdated EventType = "summary-updated"
)

type EventMetadata struct {
	ID             uuid.UUID `json:"id"`
	TurnID         string    `json:"turn_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Channel        string    `json:"channel,omitempty"`
	Time           time.Time `json:"time"`
}

func (m EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", m.ID.String())
	if m.TurnID != "" {
		e.Str("turn_id", m.TurnID)
	}
	if m.ConversationID != "" {
		e.Str("conversation_id", m.ConversationID)
	}
	if m.Channel != "" {
		e.Str("channel", m.Channel)
	}
}

// Event is a flat record; fields that do not apply to a type stay empty.
type Event struct {
	Type EventType     `json:"type"`
	Meta EventMetadata `json:"meta"`

	Iteration int    `json:"iteration,omitempty"`
	Tool      string `json:"tool,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}

// NewEvent stamps a fresh id, the current time and the turn id found in ctx.
func NewEvent(ctx context.Context, t EventType, conversationID, channel string) Event {
	return Event{
		Type: t,
		Meta: EventMetadata{
			ID:             uuid.New(),
			TurnID:         helpers.TurnIDFromContext(ctx),
			ConversationID: conversationID,
			Channel:        channel,
			Time:           time.Now().UTC(),
		},
	}
}

func (e Event) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type))
	ev.Object("meta", e.Meta)
	if e.Iteration > 0 {
		ev.Int("iteration", e.Iteration)
	}
	if e.Tool != "" {
		ev.Str("tool", e.Tool)
	}
	if e.ToolUseID != "" {
		ev.Str("tool_use_id", e.ToolUseID)
	}
	if e.Text != "" {
		ev.Str("text", helpers.Preview(e.Text, 120))
	}
	if e.Reason != "" {
		ev.Str("reason", e.Reason)
	}
	if e.Fallback {
		ev.Bool("fallback", true)
	}
}

func NewEventFromJSON(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	if e.Type == "" {
		return Event{}, errors.New("event has no type")
	}
	return e, nil
}
