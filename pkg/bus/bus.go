package bus

import (
	"context"
	"sync"

	"botkit/pkg/schema"
)

const defaultBufferSize = 100

// MessageBus is an in-process queue of inbound and outbound activities plus a
// fan-out stream of turn events.
type MessageBus struct {
	inbound  chan *schema.Activity
	outbound chan *schema.Activity

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:          make(chan *schema.Activity, defaultBufferSize),
		outbound:         make(chan *schema.Activity, defaultBufferSize),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, activity *schema.Activity) bool {
	return mb.publish(ctx, mb.inbound, activity)
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (*schema.Activity, bool) {
	return mb.consume(ctx, mb.inbound)
}

func (mb *MessageBus) PublishOutbound(ctx context.Context, activity *schema.Activity) bool {
	return mb.publish(ctx, mb.outbound, activity)
}

func (mb *MessageBus) ConsumeOutbound(ctx context.Context) (*schema.Activity, bool) {
	return mb.consume(ctx, mb.outbound)
}

func (mb *MessageBus) publish(ctx context.Context, ch chan *schema.Activity, activity *schema.Activity) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	if activity == nil {
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case ch <- activity:
		return true
	}
}

func (mb *MessageBus) consume(ctx context.Context, ch chan *schema.Activity) (*schema.Activity, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return nil, false
	case <-mb.done:
		return nil, false
	case activity := <-ch:
		return activity, true
	}
}

// Close stops all bus operations and closes event subscriptions.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
