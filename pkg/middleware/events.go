package middleware

import (
	"context"

	"botkit/pkg/bot"
	"botkit/pkg/bus"
	"botkit/pkg/schema"
)

// Events publishes turn lifecycle events to the message bus.
func Events(mb *bus.MessageBus) bot.Middleware {
	return bot.MiddlewareFunc(func(ctx context.Context, turn *bot.TurnContext, next bot.NextFunc) error {
		activity := activityOf(turn)
		mb.PublishEvent(ctx, turnEvent(bus.EventTurnReceived, activity))

		err := next(ctx)

		var event bus.Event
		switch {
		case err != nil:
			event = turnEvent(bus.EventTurnFailed, activity)
			event.Error = err.Error()
		case turn.Completed():
			event = turnEvent(bus.EventTurnCompleted, activity)
		default:
			event = turnEvent(bus.EventTurnShortCircuited, activity)
		}
		// The turn may have been canceled; the event still describes it.
		mb.PublishEvent(context.WithoutCancel(ctx), event)

		return err
	})
}

func turnEvent(eventType bus.EventType, activity *schema.Activity) bus.Event {
	return bus.Event{
		Type:           eventType,
		Channel:        activity.ChannelID,
		ConversationID: activity.Conversation.ID,
		ActivityID:     activity.ID,
		ActivityType:   string(activity.Type),
	}
}
