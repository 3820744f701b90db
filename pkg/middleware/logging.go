package middleware

import (
	"context"
	"log/slog"
	"time"

	"botkit/pkg/bot"
	"botkit/pkg/logger"
)

// Logging scopes the rest of the turn to its channel, conversation and
// activity, and writes one entry when the turn starts and one when it ends.
// Later middleware and the handler pick up the scope by logging with ctx.
func Logging(log *slog.Logger) bot.Middleware {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "middleware.logging")

	return bot.MiddlewareFunc(func(ctx context.Context, turn *bot.TurnContext, next bot.NextFunc) error {
		activity := activityOf(turn)
		ctx = logger.WithTurn(ctx, logger.Turn{
			Channel:        activity.ChannelID,
			ConversationID: activity.Conversation.ID,
			ActivityID:     activity.ID,
		})
		attrs := []any{
			"activity_type", activity.Type,
			"from", activity.From.ID,
			"proactive", turn.Proactive(),
		}

		startedAt := time.Now()
		log.DebugContext(ctx, "Turn started", attrs...)

		err := next(ctx)

		attrs = append(attrs,
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"completed", turn.Completed(),
			"responded", turn.Responded(),
		)
		if err != nil {
			log.ErrorContext(ctx, "Turn failed", append(attrs, "error", err)...)
			return err
		}

		log.InfoContext(ctx, "Turn completed", attrs...)
		return nil
	})
}
