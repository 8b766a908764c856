package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sink receives lifecycle events.
type Sink interface {
	PublishEvent(ctx context.Context, e Event) error
}

// NullSink discards everything.
type NullSink struct{}

func (NullSink) PublishEvent(context.Context, Event) error { return nil }

// WatermillSink publishes events as JSON to one topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{publisher: publisher, topic: topic}
}

func (w *WatermillSink) PublishEvent(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := w.publisher.Publish(w.topic, msg); err != nil {
		return errors.Wrapf(err, "publish %s", e.Type)
	}
	log.Trace().Str("topic", w.topic).Str("event_type", string(e.Type)).Msg("published event")
	return nil
}

var (
	_ Sink = NullSink{}
	_ Sink = (*WatermillSink)(nil)
)

type ctxKey int

const ctxKeySinks ctxKey = iota

// WithSinks attaches sinks to ctx so code deep in a turn can publish
// without being handed the sinks explicitly.
func WithSinks(ctx context.Context, sinks ...Sink) context.Context {
	if len(sinks) == 0 {
		return ctx
	}
	combined := append([]Sink{}, SinksFromContext(ctx)...)
	combined = append(combined, sinks...)
	return context.WithValue(ctx, ctxKeySinks, combined)
}

func SinksFromContext(ctx context.Context) []Sink {
	if s, ok := ctx.Value(ctxKeySinks).([]Sink); ok {
		return s
	}
	return nil
}

// Publish sends e to every sink in ctx. Sink errors are logged and dropped.
func Publish(ctx context.Context, e Event) {
	for _, s := range SinksFromContext(ctx) {
		if err := s.PublishEvent(ctx, e); err != nil {
			log.Debug().Err(err).Str("event_type", string(e.Type)).Msg("event sink failed")
		}
	}
}
