package helpers

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lithammer/shortuuid/v3"
	"github.com/rs/zerolog"
)

// WatermillLogger routes watermill's internal logging into zerolog.
type WatermillLogger struct {
	logger zerolog.Logger
}

func NewWatermillLogger(logger zerolog.Logger) *WatermillLogger {
	return &WatermillLogger{logger: logger}
}

var _ watermill.LoggerAdapter = (*WatermillLogger)(nil)

func (w *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error().Fields(map[string]interface{}(fields)).Err(err).Msg(msg)
}

// Info is logged at debug level, the router is noisy at startup.
func (w *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	w.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.logger.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (w *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogger{logger: w.logger.With().Fields(map[string]interface{}(fields)).Logger()}
}

// TurnIDMetadataKey is the watermill metadata key carrying the turn id.
const TurnIDMetadataKey = "turn_id"

type turnIDKey struct{}

// WithTurnID attaches a turn id to ctx.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey{}, id)
}

// TurnIDFromContext returns the turn id stored in ctx, or "" if there is none.
func TurnIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(turnIDKey{}).(string)
	return v
}

// NewTurnID returns a short random id for one agent turn.
func NewTurnID() string {
	return shortuuid.New()
}

// TurnIDPublisher stamps the turn id from each message's context onto its
// metadata. Messages without one get a generated id prefixed with "gen_".
type TurnIDPublisher struct {
	message.Publisher
}

func (p TurnIDPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, m := range messages {
		if m.Metadata.Get(TurnIDMetadataKey) != "" {
			continue
		}
		id := TurnIDFromContext(m.Context())
		if id == "" {
			id = "gen_" + shortuuid.New()
		}
		m.Metadata.Set(TurnIDMetadataKey, id)
	}
	return p.Publisher.Publish(topic, messages...)
}
