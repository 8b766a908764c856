// Package discord sends the deferred interaction replies back to Discord.
package discord

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultTimeout = 10 * time.Second

// editor is the slice of discordgo.Session used for follow-ups.
type editor interface {
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// FollowUp edits the original deferred response of an interaction, which is
// PATCH /webhooks/{app}/{token}/messages/@original. Webhook endpoints are
// authenticated by the token in the path, so the session carries no bot token.
type FollowUp struct {
	appID   string
	timeout time.Duration
	client  *http.Client
	session editor
}

type Option func(*FollowUp)

func WithTimeout(d time.Duration) Option {
	return func(f *FollowUp) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client of the underlying session.
func WithHTTPClient(c *http.Client) Option {
	return func(f *FollowUp) {
		f.client = c
	}
}

func withEditor(e editor) Option {
	return func(f *FollowUp) {
		f.session = e
	}
}

func NewFollowUp(appID string, opts ...Option) (*FollowUp, error) {
	if appID == "" {
		return nil, errors.New("discord: application id is required")
	}
	s, err := discordgo.New("")
	if err != nil {
		return nil, errors.Wrap(err, "discord: new session")
	}
	s.ShouldRetryOnRateLimit = false
	s.MaxRestRetries = 0

	f := &FollowUp{appID: appID, timeout: DefaultTimeout, session: s}
	for _, o := range opts {
		o(f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}
	s.Client = f.client
	return f, nil
}

// Send replaces the "thinking..." placeholder with content.
func (f *FollowUp) Send(ctx context.Context, token, content string) error {
	if token == "" {
		return errors.New("discord: empty interaction token")
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	_, err := f.session.InteractionResponseEdit(
		&discordgo.Interaction{AppID: f.appID, Token: token},
		&discordgo.WebhookEdit{Content: &content},
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return errors.Wrap(err, "discord: edit original response")
	}
	log.Debug().
		Int("bytes", len(content)).
		Dur("duration", time.Since(start)).
		Msg("discord follow-up sent")
	return nil
}
