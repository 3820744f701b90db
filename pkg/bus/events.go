package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventTurnReceived       EventType = "turn_received"
	EventTurnCompleted      EventType = "turn_completed"
	EventTurnShortCircuited EventType = "turn_short_circuited"
	EventTurnFailed         EventType = "turn_failed"
)

// Event describes one turn lifecycle milestone.
type Event struct {
	Type           EventType         `json:"type"`
	At             time.Time         `json:"at"`
	Channel        string            `json:"channel,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	ActivityID     string            `json:"activity_id,omitempty"`
	ActivityType   string            `json:"activity_type,omitempty"`
	Payload        map[string]string `json:"payload,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// PublishEvent fans event out to every subscriber without blocking. Events
// for full subscriber buffers are dropped.
func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	mb.mu.RLock()
	subs := make([]chan Event, 0, len(mb.eventSubscribers))
	for _, ch := range mb.eventSubscribers {
		subs = append(subs, ch)
	}
	mb.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

// SubscribeEvents returns a buffered event stream and its unsubscribe func.
// The stream closes on unsubscribe, ctx cancellation or bus close.
func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = ch
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if eventCh, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(eventCh)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}

// LogEvents writes every turn event to log until ctx ends or the bus closes.
func LogEvents(ctx context.Context, mb *MessageBus, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "bus.events")

	events, unsubscribe := mb.SubscribeEvents(ctx, 32)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logEvent(log, event)
		}
	}
}

func logEvent(log *slog.Logger, event Event) {
	attrs := []any{
		"event_type", event.Type,
		"channel", event.Channel,
		"conversation_id", event.ConversationID,
		"activity_id", event.ActivityID,
		"activity_type", event.ActivityType,
		"timestamp", event.At.UTC().Format(time.RFC3339Nano),
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs, "payload", event.Payload)
	}

	switch event.Type {
	case EventTurnFailed:
		log.Error("Turn event", append(attrs, "error", event.Error)...)
	case EventTurnReceived, EventTurnCompleted:
		log.Info("Turn event", attrs...)
	default:
		log.Debug("Turn event", attrs...)
	}
}
