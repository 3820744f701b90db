package middleware

import (
	"context"
	"log/slog"
	"strings"

	"botkit/pkg/bot"
	"botkit/pkg/schema"
	"botkit/pkg/store"
)

// References saves the conversation reference of every inbound activity so
// the conversation can be continued later. Proactive turns keep the stored
// reference, except in a conversation CreateConversation just opened, which
// is saved as the transport returned it. A failed save is logged and the turn
// goes on.
func References(st store.Store, log *slog.Logger) bot.Middleware {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "middleware.references")

	return bot.MiddlewareFunc(func(ctx context.Context, turn *bot.TurnContext, next bot.NextFunc) error {
		ref := schema.ReferenceFromActivity(activityOf(turn))
		if continued, ok := turn.ContinuedReference(); ok {
			if !turn.Created() {
				return next(ctx)
			}
			ref = continued
		}

		if strings.TrimSpace(ref.Conversation.ID) != "" {
			if err := st.Save(ctx, ref); err != nil {
				log.WarnContext(ctx, "Failed to save conversation reference", "key", ref.Key(), "error", err)
			}
		}

		return next(ctx)
	})
}
