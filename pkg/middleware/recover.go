package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"botkit/pkg/bot"
)

// Recover turns a panic in later middleware or the handler into an error.
func Recover(log *slog.Logger) bot.Middleware {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "middleware.recover")

	return bot.MiddlewareFunc(func(ctx context.Context, turn *bot.TurnContext, next bot.NextFunc) (err error) {
		defer func() {
			if r := recover(); r != nil {
				activity := activityOf(turn)
				log.Error("Recovered panic in turn",
					"panic", r,
					"channel", activity.ChannelID,
					"conversation_id", activity.Conversation.ID,
					"stack", string(debug.Stack()),
				)
				err = fmt.Errorf("panic in turn: %v", r)
			}
		}()

		return next(ctx)
	})
}
