package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"botkit/pkg/bot"
)

const tracerName = "botkit/pkg/middleware"

// Tracing wraps the rest of the turn in a span. A nil tracer uses the global
// provider.
func Tracing(tracer trace.Tracer) bot.Middleware {
	return bot.MiddlewareFunc(func(ctx context.Context, turn *bot.TurnContext, next bot.NextFunc) error {
		t := tracer
		if t == nil {
			t = otel.Tracer(tracerName)
		}

		activity := activityOf(turn)
		ctx, span := t.Start(ctx, "bot.turn",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("bot.activity.type", string(activity.Type)),
				attribute.String("bot.activity.id", activity.ID),
				attribute.String("bot.channel", activity.ChannelID),
				attribute.String("bot.conversation.id", activity.Conversation.ID),
			),
		)
		defer span.End()

		err := next(ctx)

		span.SetAttributes(
			attribute.Bool("bot.turn.completed", turn.Completed()),
			attribute.Bool("bot.turn.responded", turn.Responded()),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	})
}
