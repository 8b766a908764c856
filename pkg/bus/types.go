package bus

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Channel identifies where a message came from and where its reply has to go.
type Channel int

const (
	ChannelWebhook Channel = iota + 1
	ChannelConsole
)

func (c Channel) String() string {
	switch c {
	case ChannelWebhook:
		return "discord"
	case ChannelConsole:
		return "console"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// ParseChannel is the inverse of Channel.String.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "discord", "webhook":
		return ChannelWebhook, nil
	case "console", "cli":
		return ChannelConsole, nil
	default:
		return 0, errors.Errorf("unknown channel %q", s)
	}
}

// Message is the unit of work carried by the bus. Once pushed, the producer
// must not touch it again; the consumer that pops it owns it.
type Message struct {
	Channel        Channel `json:"channel"`
	ConversationID string  `json:"conversation_id"`
	Content        string  `json:"content"`
	// Meta is opaque to the bus. For webhook messages it holds the interaction token.
	Meta string `json:"meta,omitempty"`
}

// Reply builds the outbound message answering m.
func (m Message) Reply(content string) Message {
	return Message{
		Channel:        m.Channel,
		ConversationID: m.ConversationID,
		Content:        content,
		Meta:           m.Meta,
	}
}

// Queue selects one of the two fixed queues.
type Queue int

const (
	Inbound Queue = iota
	Outbound
)

func (q Queue) String() string {
	switch q {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return fmt.Sprintf("queue(%d)", int(q))
	}
}
