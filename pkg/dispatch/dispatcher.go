// Package dispatch delivers agent replies from the outbound queue.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-go-golems/atomclaw/pkg/bus"
	"github.com/go-go-golems/atomclaw/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxReplyRunes is Discord's message content limit.
	DefaultMaxReplyRunes = 2000
)

// FollowUpSender answers a deferred webhook interaction.
type FollowUpSender interface {
	Send(ctx context.Context, token, content string) error
}

// Sink receives replies for every non-webhook channel.
type Sink interface {
	Deliver(ctx context.Context, msg bus.Message) error
}

// LogSink logs the reply.
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, msg bus.Message) error {
	log.Info().
		Str("channel", msg.Channel.String()).
		Str("conversation", msg.ConversationID).
		Str("reply", msg.Content).
		Msg("reply")
	return nil
}

// WriterSink prints replies to w, one per line.
type WriterSink struct {
	mu sync.Mutex
	W  io.Writer
}

func (s *WriterSink) Deliver(_ context.Context, msg bus.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.W, "%s\n", msg.Content)
	return err
}

// Outbox is the consuming side of the outbound queue.
type Outbox interface {
	Pop(ctx context.Context, q bus.Queue, timeout time.Duration) (bus.Message, error)
}

type Options struct {
	Outbox        Outbox
	FollowUp      FollowUpSender
	Sink          Sink
	MaxReplyRunes int
}

type Dispatcher struct {
	outbox     Outbox
	followUp   FollowUpSender
	sink       Sink
	maxRunes   int
}

func New(opts Options) (*Dispatcher, error) {
	if opts.Outbox == nil {
		return nil, errors.New("dispatch: outbox is required")
	}
	d := &Dispatcher{
		outbox:     opts.Outbox,
		followUp:   opts.FollowUp,
		sink:       opts.Sink,
		maxRunes:   opts.MaxReplyRunes,
	}
	if d.sink == nil {
		d.sink = LogSink{}
	}
	if d.maxRunes <= 0 {
		d.maxRunes = DefaultMaxReplyRunes
	}
	return d, nil
}

// Run delivers outbound messages until ctx is cancelled. Delivery failures
// are logged; the message is not requeued.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Info().Msg("dispatcher started")
	for {
		// no timeout: Pop only fails once ctx is done
		msg, err := d.outbox.Pop(ctx, bus.Outbound, 0)
		if err != nil {
			log.Info().Err(err).Msg("dispatcher stopped")
			return nil
		}
		if err := d.Dispatch(ctx, msg); err != nil {
			log.Error().
				Err(err).
				Str("channel", msg.Channel.String()).
				Str("conversation", msg.ConversationID).
				Msg("reply delivery failed")
		}
	}
}

// Dispatch delivers one message.
func (d *Dispatcher) Dispatch(ctx context.Context, msg bus.Message) error {
	switch msg.Channel {
	case bus.ChannelWebhook:
		if d.followUp == nil {
			return errors.New("no follow-up sender configured")
		}
		if msg.Meta == "" {
			return errors.New("webhook reply without interaction token")
		}
		content := helpers.TruncateRunes(msg.Content, d.maxRunes)
		if len(content) < len(msg.Content) {
			log.Debug().
				Str("conversation", msg.ConversationID).
				Int("max_runes", d.maxRunes).
				Msg("reply truncated")
		}
		return d.followUp.Send(ctx, msg.Meta, content)
	default:
		return d.sink.Deliver(ctx, msg)
	}
}
