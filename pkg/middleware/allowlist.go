package middleware

import (
	"context"
	"log/slog"
	"strings"

	"botkit/pkg/bot"
)

// AllowList drops turns from senders outside a configured set. An empty set
// accepts every sender.
type AllowList struct {
	allowed map[string]struct{}
	log     *slog.Logger
}

var _ bot.Middleware = (*AllowList)(nil)

func NewAllowList(senders []string, log *slog.Logger) *AllowList {
	if log == nil {
		log = slog.Default()
	}

	return &AllowList{
		allowed: allowFromSet(senders),
		log:     log.With("component", "middleware.allow_list"),
	}
}

// Allowed reports whether senderID may start a turn.
func (a *AllowList) Allowed(senderID string) bool {
	if len(a.allowed) == 0 {
		return true
	}

	_, ok := a.allowed[strings.TrimSpace(senderID)]
	return ok
}

// OnTurn short-circuits the turn when the sender is not allowed. Proactive
// turns have no real sender and always pass.
func (a *AllowList) OnTurn(ctx context.Context, turn *bot.TurnContext, next bot.NextFunc) error {
	activity := activityOf(turn)
	if !turn.Proactive() && !a.Allowed(activity.From.ID) {
		a.log.DebugContext(ctx, "Ignoring activity from unauthorized sender",
			"channel", activity.ChannelID,
			"sender_id", activity.From.ID,
		)
		return nil
	}

	return next(ctx)
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}
