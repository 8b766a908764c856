package ingress

import (
	"encoding/json"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
)

// Kind is the closed set of interaction types the router handles.
type Kind int

const (
	KindUnsupported Kind = iota
	KindPing
	KindCommand
	KindComponent
)

func (k Kind) String() string {
	switch k {
	case KindPing:
		return "ping"
	case KindCommand:
		return "command"
	case KindComponent:
		return "component"
	default:
		return "unsupported"
	}
}

func kindOf(t discordgo.InteractionType) Kind {
	switch t {
	case discordgo.InteractionPing:
		return KindPing
	case discordgo.InteractionApplicationCommand:
		return KindCommand
	case discordgo.InteractionMessageComponent:
		return KindComponent
	default:
		return KindUnsupported
	}
}

const unknownUser = "unknown"

// Interaction is the part of an interaction payload the agent cares about.
type Interaction struct {
	Kind   Kind
	Type   discordgo.InteractionType
	Token  string
	UserID string
	Text   string
}

type payloadUser struct {
	ID string `json:"id"`
}

type payloadOption struct {
	Value json.RawMessage `json:"value"`
}

type interactionPayload struct {
	Type   discordgo.InteractionType `json:"type"`
	Token  string                    `json:"token"`
	Member *struct {
		User *payloadUser `json:"user"`
	} `json:"member"`
	User *payloadUser `json:"user"`
	Data *struct {
		Options []payloadOption `json:"options"`
	} `json:"data"`
}

// ParseInteraction decodes an already authenticated body. The user id falls
// back from member.user.id to user.id to "unknown"; the text is the first
// option's value when it is a string.
func ParseInteraction(body []byte) (Interaction, error) {
	var p interactionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Interaction{}, errors.Wrap(err, "decode interaction")
	}

	in := Interaction{
		Kind:   kindOf(p.Type),
		Type:   p.Type,
		Token:  p.Token,
		UserID: unknownUser,
	}
	switch {
	case p.Member != nil && p.Member.User != nil && p.Member.User.ID != "":
		in.UserID = p.Member.User.ID
	case p.User != nil && p.User.ID != "":
		in.UserID = p.User.ID
	}
	if p.Data != nil && len(p.Data.Options) > 0 {
		var s string
		if err := json.Unmarshal(p.Data.Options[0].Value, &s); err == nil {
			in.Text = s
		}
	}
	return in, nil
}
