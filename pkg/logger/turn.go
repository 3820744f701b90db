package logger

import (
	"context"
	"log/slog"
)

type turnKey struct{}

// Turn identifies the turn a log entry was written in.
type Turn struct {
	Channel        string
	ConversationID string
	ActivityID     string
}

// WithTurn returns a context whose log entries carry turn.
func WithTurn(ctx context.Context, turn Turn) context.Context {
	return context.WithValue(ctx, turnKey{}, turn)
}

// TurnFromContext returns the turn scope stored by WithTurn.
func TurnFromContext(ctx context.Context) (Turn, bool) {
	if ctx == nil {
		return Turn{}, false
	}

	turn, ok := ctx.Value(turnKey{}).(Turn)
	return turn, ok
}

func (t Turn) attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)
	if t.Channel != "" {
		attrs = append(attrs, slog.String("channel", t.Channel))
	}
	if t.ConversationID != "" {
		attrs = append(attrs, slog.String("conversation_id", t.ConversationID))
	}
	if t.ActivityID != "" {
		attrs = append(attrs, slog.String("activity_id", t.ActivityID))
	}

	return attrs
}

// turnHandler adds the context's turn scope to records before the wrapped
// handler formats them.
type turnHandler struct {
	slog.Handler
}

func (h turnHandler) Handle(ctx context.Context, record slog.Record) error {
	if turn, ok := TurnFromContext(ctx); ok {
		record = record.Clone()
		record.AddAttrs(turn.attrs()...)
	}

	return h.Handler.Handle(ctx, record)
}

func (h turnHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return turnHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h turnHandler) WithGroup(name string) slog.Handler {
	return turnHandler{Handler: h.Handler.WithGroup(name)}
}
