// Package bus carries messages between the transports and the agent on two
// bounded queues.
package bus

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrFull    = errors.New("queue full")
	ErrTimeout = errors.New("pop timed out")
)

const DefaultCapacity = 8

// MessageBus holds the inbound and outbound queues. It is the only
// synchronization point between the ingress, agent and dispatch tasks.
type MessageBus struct {
	inbound  chan Message
	outbound chan Message
}

func New(inboundCap, outboundCap int) *MessageBus {
	if inboundCap <= 0 {
		inboundCap = DefaultCapacity
	}
	if outboundCap <= 0 {
		outboundCap = DefaultCapacity
	}
	return &MessageBus{
		inbound:  make(chan Message, inboundCap),
		outbound: make(chan Message, outboundCap),
	}
}

func (b *MessageBus) queue(q Queue) chan Message {
	switch q {
	case Inbound:
		return b.inbound
	case Outbound:
		return b.outbound
	default:
		panic("bus: unknown queue " + q.String())
	}
}

// TryPush enqueues msg without blocking. It returns ErrFull when the queue is
// at capacity; the caller decides what to do with the message.
func (b *MessageBus) TryPush(q Queue, msg Message) error {
	select {
	case b.queue(q) <- msg:
		return nil
	default:
		return errors.Wrapf(ErrFull, "%s", q)
	}
}

// Pop waits for the next message on q. A timeout <= 0 waits until a message
// arrives or ctx is done.
func (b *MessageBus) Pop(ctx context.Context, q Queue, timeout time.Duration) (Message, error) {
	ch := b.queue(q)

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case msg := <-ch:
		return msg, nil
	case <-timer:
		return Message{}, ErrTimeout
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Len reports how many messages are waiting on q.
func (b *MessageBus) Len(q Queue) int {
	return len(b.queue(q))
}

// Cap reports the fixed capacity of q.
func (b *MessageBus) Cap(q Queue) int {
	return cap(b.queue(q))
}
