package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/atomclaw/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultTopic is where the agent publishes its lifecycle events.
const DefaultTopic = "agent"

type EventRouter struct {
	logger     watermill.LoggerAdapter
	bufferSize int64

	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

// WithBufferSize sets the per-subscriber output buffer of the go channel pub/sub.
func WithBufferSize(n int64) EventRouterOption {
	return func(r *EventRouter) {
		r.bufferSize = n
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger:     watermill.NopLogger{},
		bufferSize: 64,
	}
	for _, o := range options {
		o(ret)
	}

	// publishing must not wait for handlers, a slow observer would stall the turn
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            ret.bufferSize,
		BlockPublishUntilSubscriberAck: false,
	}, ret.logger)
	ret.Publisher = helpers.TurnIDPublisher{Publisher: pubSub}
	ret.Subscriber = pubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "create router")
	}
	ret.router = router
	return ret, nil
}

// Sink returns a sink that publishes onto topic through this router.
func (e *EventRouter) Sink(topic string) *WatermillSink {
	return NewWatermillSink(e.Publisher, topic)
}

func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) Close() error {
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
	}
	if err := e.router.Close(); err != nil {
		return errors.Wrap(err, "close event router")
	}
	return nil
}

// LogEvents is a handler that writes every event to the global logger.
// Undecodable payloads are logged and acknowledged.
func LogEvents(msg *message.Message) error {
	e, err := NewEventFromJSON(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping undecodable event")
		return nil
	}
	log.Debug().
		Str("turn_id", msg.Metadata.Get(helpers.TurnIDMetadataKey)).
		Object("event", e).
		Msg("agent event")
	return nil
}
